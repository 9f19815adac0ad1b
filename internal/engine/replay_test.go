package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/provalia/cbt-backend/internal/model"
)

// runSampleSession drives a session through marks, saves, clears and
// navigation so the log exercises every action kind.
func runSampleSession(t *testing.T, clock *fakeClock) *Engine {
	t.Helper()
	e := startedEngine(t, &recordingGateway{}, clock)

	_ = e.ToggleMark()
	_ = e.BufferAnswer(model.OptionsAnswer("B"))
	_ = e.SaveAnswer()
	clock.advance(20 * time.Second)
	_ = e.NavigateTo(2)
	_ = e.BufferAnswer(model.NumericAnswer(9.81))
	_ = e.SaveAnswer()
	_ = e.ClearAnswer()
	clock.advance(15 * time.Second)
	_ = e.NavigateTo(3)
	return e
}

func TestReplayReconstructsLiveState(t *testing.T) {
	clock := newFakeClock()
	e := runSampleSession(t, clock)

	replayed, err := Replay(e.Entries())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}

	liveSession := e.Session()
	if replayed.Session.CurrentQuestionID != liveSession.CurrentQuestionID {
		t.Fatalf("pointer mismatch: replay %d, live %d",
			replayed.Session.CurrentQuestionID, liveSession.CurrentQuestionID)
	}
	if replayed.Session.Status != liveSession.Status {
		t.Fatalf("status mismatch: replay %s, live %s", replayed.Session.Status, liveSession.Status)
	}
	if replayed.Session.RemainingSeconds != liveSession.RemainingSeconds {
		t.Fatalf("remaining mismatch: replay %d, live %d",
			replayed.Session.RemainingSeconds, liveSession.RemainingSeconds)
	}

	for _, live := range e.Questions() {
		rq, ok := replayed.Questions[live.ID]
		if !ok {
			// Questions never touched by the log stay at their initial
			// state; the log cannot and need not mention them.
			if live.Status != model.QuestionStatusNotVisited {
				t.Fatalf("mutated question %d missing from replay", live.ID)
			}
			continue
		}
		if rq.Status != live.Status {
			t.Fatalf("question %d status: replay %s, live %s", live.ID, rq.Status, live.Status)
		}
		if !rq.Answer.Equal(live.Answer) {
			t.Fatalf("question %d answer: replay %+v, live %+v", live.ID, rq.Answer, live.Answer)
		}
		if rq.TimeSpentSeconds != live.TimeSpentSeconds {
			t.Fatalf("question %d time: replay %d, live %d",
				live.ID, rq.TimeSpentSeconds, live.TimeSpentSeconds)
		}
	}
}

func TestReplayFinishedSession(t *testing.T) {
	clock := newFakeClock()
	e := runSampleSession(t, clock)
	_ = e.Finish(model.SubmitViaManual)

	replayed, err := Replay(e.Entries())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.Session.Status != model.SessionStatusFinished {
		t.Fatalf("expected finished, got %s", replayed.Session.Status)
	}
}

func TestReplayRejectsGapsAndEmptyLog(t *testing.T) {
	if _, err := Replay(nil); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog, got %v", err)
	}

	clock := newFakeClock()
	e := runSampleSession(t, clock)
	entries := e.Entries()
	gapped := append(entries[:2:2], entries[3:]...)

	if _, err := Replay(gapped); !errors.Is(err, ErrCorruptLog) {
		t.Fatalf("expected ErrCorruptLog, got %v", err)
	}
}

func TestRestoreContinuesNumbering(t *testing.T) {
	clock := newFakeClock()
	crashed := runSampleSession(t, clock)
	entries := crashed.Entries()
	lastID := entries[len(entries)-1].ID

	restored, err := New(testConfig(&recordingGateway{}, clock.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := restored.Restore(entries); err != nil {
		t.Fatalf("restore: %v", err)
	}
	t.Cleanup(func() { _ = restored.Finish(model.SubmitViaManual) })

	// Restore reopens the session with a resume entry numbered lastID+1.
	got := restored.Entries()
	if len(got) != 1 || got[0].ID != lastID+1 || got[0].Type != model.ActionSessionResumed {
		t.Fatalf("expected SESSION_RESUMED with id %d, got %+v", lastID+1, got)
	}

	sess := restored.Session()
	if sess.Status != model.SessionStatusOngoing || sess.CurrentQuestionID != 3 {
		t.Fatalf("unexpected restored session: %+v", sess)
	}

	// Summaries are rebuilt from the replayed question map.
	summaries := restored.Summaries()
	if summaries[0].MarkedAnswered != 1 || summaries[0].NotAnswered != 1 {
		t.Fatalf("unexpected restored PHY summary: %+v", summaries[0])
	}

	// Mutations keep the sequence gap-free after the seed.
	if err := restored.ToggleMark(); err != nil {
		t.Fatalf("mark after restore: %v", err)
	}
	got = restored.Entries()
	if got[len(got)-1].ID != lastID+2 {
		t.Fatalf("expected id %d after restore, got %d", lastID+2, got[len(got)-1].ID)
	}
}

func TestRestoreFinishedAttemptStaysSealed(t *testing.T) {
	clock := newFakeClock()
	finished := runSampleSession(t, clock)
	_ = finished.Finish(model.SubmitViaManual)

	restored, err := New(testConfig(&recordingGateway{}, clock.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := restored.Restore(finished.Entries()); err != nil {
		t.Fatalf("restore: %v", err)
	}

	if got := restored.Session().Status; got != model.SessionStatusFinished {
		t.Fatalf("expected finished, got %s", got)
	}
	if err := restored.ToggleMark(); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}
