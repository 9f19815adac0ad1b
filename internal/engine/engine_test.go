package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/model"
)

// recordingGateway captures every write the engine forwards.
type recordingGateway struct {
	mu            sync.Mutex
	entries       []model.LogEntry
	questionSnaps []model.QuestionSnapshot
	sessionSnaps  []sessionSnapCall
}

type sessionSnapCall struct {
	snap    model.SessionSnapshot
	isFinal bool
	crossed bool
}

func (g *recordingGateway) AppendLog(_ context.Context, entry model.LogEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.entries = append(g.entries, entry)
	return nil
}

func (g *recordingGateway) UpsertQuestionSnapshot(_ context.Context, snap model.QuestionSnapshot) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.questionSnaps = append(g.questionSnaps, snap)
	return nil
}

func (g *recordingGateway) UpsertSessionSnapshot(_ context.Context, snap model.SessionSnapshot, isFinal, crossed bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessionSnaps = append(g.sessionSnaps, sessionSnapCall{snap: snap, isFinal: isFinal, crossed: crossed})
	return nil
}

func testConfig(gw Gateway, clock func() time.Time) Config {
	return Config{
		AttemptID:       uuid.New(),
		ExamID:          uuid.New(),
		CandidateID:     7,
		DurationSeconds: 600,
		TickInterval:    testInterval,
		Sections: []model.Section{
			{ID: "PHY", Title: "Physics", OrderNum: 0},
			{ID: "CHEM", Title: "Chemistry", OrderNum: 1},
		},
		Questions: []model.QuestionContent{
			{ID: 1, SectionID: "PHY", Type: model.QuestionTypeSingleChoice},
			{ID: 2, SectionID: "PHY", Type: model.QuestionTypeNumeric},
			{ID: 3, SectionID: "CHEM", Type: model.QuestionTypeMultiChoice},
		},
		Gateway: gw,
		Logger:  zerolog.Nop(),
		Clock:   clock,
	}
}

func startedEngine(t *testing.T, gw Gateway, clock *fakeClock) *Engine {
	t.Helper()
	e, err := New(testConfig(gw, clock.now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = e.Finish(model.SubmitViaManual) })
	return e
}

func entriesOfType(entries []model.LogEntry, typ model.ActionType) []model.LogEntry {
	var out []model.LogEntry
	for _, entry := range entries {
		if entry.Type == typ {
			out = append(out, entry)
		}
	}
	return out
}

func TestStartOpensSession(t *testing.T) {
	gw := &recordingGateway{}
	e := startedEngine(t, gw, newFakeClock())

	sess := e.Session()
	if sess.Status != model.SessionStatusOngoing {
		t.Fatalf("expected ongoing, got %s", sess.Status)
	}
	if sess.CurrentQuestionID != 1 || sess.CurrentSectionID != "PHY" {
		t.Fatalf("expected pointer at question 1/PHY, got %d/%s", sess.CurrentQuestionID, sess.CurrentSectionID)
	}
	if sess.RemainingSeconds != 600 {
		t.Fatalf("expected 600s remaining, got %d", sess.RemainingSeconds)
	}

	entries := e.Entries()
	if len(entries) != 1 || entries[0].Type != model.ActionSessionStarted || entries[0].ID != 1 {
		t.Fatalf("expected single SESSION_STARTED entry with id 1, got %+v", entries)
	}

	// Double start is a no-op.
	if err := e.Start(); err != nil {
		t.Fatalf("double start errored: %v", err)
	}
	if got := len(e.Entries()); got != 1 {
		t.Fatalf("double start logged an entry: %d", got)
	}
}

func TestMarkSaveClearStatusScenario(t *testing.T) {
	clock := newFakeClock()
	e := startedEngine(t, &recordingGateway{}, clock)

	if err := e.ToggleMark(); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := e.BufferAnswer(model.OptionsAnswer("B")); err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if err := e.SaveAnswer(); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := e.ClearAnswer(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	q := e.Questions()[0]
	if q.Status != model.QuestionStatusMarked {
		t.Fatalf("expected MARKED after clear, got %s", q.Status)
	}
	if !q.Answer.IsNone() {
		t.Fatalf("expected cleared answer, got %+v", q.Answer)
	}

	entries := e.Entries()
	wantPrev := []struct {
		typ  model.ActionType
		prev model.QuestionStatus
	}{
		{model.ActionMarkToggled, model.QuestionStatusNotVisited},
		{model.ActionAnswerSaved, model.QuestionStatusMarked},
		{model.ActionAnswerCleared, model.QuestionStatusMarkedAnswered},
	}
	for _, want := range wantPrev {
		matched := entriesOfType(entries, want.typ)
		if len(matched) != 1 {
			t.Fatalf("expected one %s entry, got %d", want.typ, len(matched))
		}
		if matched[0].Details == nil || matched[0].Details.PrevStatus != want.prev {
			t.Fatalf("%s: expected prev status %s, got %+v", want.typ, want.prev, matched[0].Details)
		}
	}
}

func TestSaveAndClearCarryPreMutationValues(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	answer := model.OptionsAnswer("A")
	if err := e.BufferAnswer(answer); err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if err := e.SaveAnswer(); err != nil {
		t.Fatalf("save: %v", err)
	}

	saved := entriesOfType(e.Entries(), model.ActionAnswerSaved)[0]
	if saved.Details.PrevStatus != model.QuestionStatusNotVisited {
		t.Fatalf("expected prev status NOT_VISITED, got %s", saved.Details.PrevStatus)
	}
	if !saved.Details.PrevAnswer.IsNone() {
		t.Fatalf("expected empty prev answer, got %+v", saved.Details.PrevAnswer)
	}
	if !saved.Answer.Equal(answer) || saved.Status != model.QuestionStatusAnswered {
		t.Fatalf("expected saved snapshot ANSWERED/%+v, got %s/%+v", answer, saved.Status, saved.Answer)
	}

	if err := e.ClearAnswer(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared := entriesOfType(e.Entries(), model.ActionAnswerCleared)[0]
	if !cleared.Details.PrevAnswer.Equal(answer) {
		t.Fatalf("expected prev answer %+v, got %+v", answer, cleared.Details.PrevAnswer)
	}
	if cleared.Details.PrevStatus != model.QuestionStatusAnswered {
		t.Fatalf("expected prev status ANSWERED, got %s", cleared.Details.PrevStatus)
	}
	if cleared.Status != model.QuestionStatusNotAnswered {
		t.Fatalf("expected snapshot NOT_ANSWERED, got %s", cleared.Status)
	}
}

func TestBufferIsUncommittedAndDroppedOnNavigate(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	if err := e.BufferAnswer(model.NumericAnswer(42)); err != nil {
		t.Fatalf("buffer: %v", err)
	}
	if q := e.Questions()[0]; !q.Answer.IsNone() || q.Status != model.QuestionStatusNotVisited {
		t.Fatalf("buffering leaked into persisted state: %+v", q)
	}

	changed := entriesOfType(e.Entries(), model.ActionAnswerChanged)
	if len(changed) != 1 || changed[0].Details.NewAnswer == nil {
		t.Fatalf("expected ANSWER_CHANGED entry with new value, got %+v", changed)
	}

	if err := e.NavigateTo(2); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	if _, ok := e.BufferedAnswer(); ok {
		t.Fatal("buffer survived navigation")
	}

	before := len(e.Entries())
	if err := e.SaveAnswer(); err != nil {
		t.Fatalf("save with empty buffer: %v", err)
	}
	if got := len(e.Entries()); got != before {
		t.Fatal("empty save logged an entry")
	}
}

func TestNavigateCommitsTimeSpentAndDemotesStatus(t *testing.T) {
	clock := newFakeClock()
	gw := &recordingGateway{}
	e := startedEngine(t, gw, clock)

	clock.advance(30 * time.Second)
	if err := e.NavigateTo(3); err != nil {
		t.Fatalf("navigate: %v", err)
	}

	q1 := e.Questions()[0]
	if q1.TimeSpentSeconds != 30 {
		t.Fatalf("expected 30s charged to question 1, got %d", q1.TimeSpentSeconds)
	}
	if q1.Status != model.QuestionStatusNotAnswered {
		t.Fatalf("expected NOT_ANSWERED on navigate-away, got %s", q1.Status)
	}

	sess := e.Session()
	if sess.CurrentQuestionID != 3 || sess.CurrentSectionID != "CHEM" {
		t.Fatalf("pointer did not move: %d/%s", sess.CurrentQuestionID, sess.CurrentSectionID)
	}

	nav := entriesOfType(e.Entries(), model.ActionNavigated)[0]
	if nav.QuestionID != 1 || nav.Details.ToQuestionID != 3 {
		t.Fatalf("expected navigation 1 -> 3, got %d -> %d", nav.QuestionID, nav.Details.ToQuestionID)
	}
	if nav.TimeSpentSeconds != 30 {
		t.Fatalf("expected snapshot with committed time, got %d", nav.TimeSpentSeconds)
	}

	// Navigation is a checkpoint: question and session snapshots written,
	// with the section boundary flagged.
	gw.mu.Lock()
	defer gw.mu.Unlock()
	last := gw.sessionSnaps[len(gw.sessionSnaps)-1]
	if !last.crossed || last.isFinal {
		t.Fatalf("expected boundary-crossing non-final snapshot, got %+v", last)
	}
	if gw.questionSnaps[len(gw.questionSnaps)-1].QuestionID != 1 {
		t.Fatal("navigation did not checkpoint the departed question")
	}
}

func TestLogIDsAreGapFree(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	_ = e.ToggleMark()
	_ = e.BufferAnswer(model.OptionsAnswer("C"))
	_ = e.SaveAnswer()
	_ = e.NavigateTo(2)
	_ = e.BufferAnswer(model.NumericAnswer(3.14))
	_ = e.SaveAnswer()
	_ = e.ClearAnswer()
	_ = e.NavigateTo(3)
	_ = e.Finish(model.SubmitViaManual)

	entries := e.Entries()
	for i, entry := range entries {
		if entry.ID != int64(i+1) {
			t.Fatalf("entry %d has id %d, want %d", i, entry.ID, i+1)
		}
	}
}

func TestSummaryInvariantHoldsUnderMutations(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	sectionSize := map[string]int{"PHY": 2, "CHEM": 1}
	check := func(step string) {
		t.Helper()
		for _, summary := range e.Summaries() {
			if summary.Total() != sectionSize[summary.SectionID] {
				t.Fatalf("%s: section %s counts sum to %d, want %d",
					step, summary.SectionID, summary.Total(), sectionSize[summary.SectionID])
			}
		}
	}

	check("initial")
	_ = e.ToggleMark()
	check("mark")
	_ = e.BufferAnswer(model.OptionsAnswer("A"))
	_ = e.SaveAnswer()
	check("save")
	_ = e.NavigateTo(3)
	check("navigate")
	_ = e.BufferAnswer(model.OptionsAnswer("A", "C"))
	_ = e.SaveAnswer()
	_ = e.ClearAnswer()
	check("clear")
	_ = e.NavigateTo(2)
	check("demote")

	summaries := e.Summaries()
	phy := summaries[0]
	if phy.MarkedAnswered != 1 || phy.NotVisited != 1 {
		t.Fatalf("unexpected PHY summary: %+v", phy)
	}
	chem := summaries[1]
	if chem.NotAnswered != 1 {
		t.Fatalf("unexpected CHEM summary: %+v", chem)
	}
}

func TestPauseFreezesRemainingTime(t *testing.T) {
	clock := newFakeClock()
	e := startedEngine(t, &recordingGateway{}, clock)

	clock.advance(2 * time.Second)
	if err := e.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if got := e.Session().Status; got != model.SessionStatusPaused {
		t.Fatalf("expected paused, got %s", got)
	}

	clock.advance(3 * time.Second)
	if err := e.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}

	sess := e.Session()
	if sess.Status != model.SessionStatusOngoing {
		t.Fatalf("expected ongoing, got %s", sess.Status)
	}
	if sess.RemainingSeconds != 598 {
		t.Fatalf("expected 598s after paused interval added back, got %d", sess.RemainingSeconds)
	}

	// Duplicate pause/resume calls are silent no-ops.
	before := len(e.Entries())
	if err := e.Resume(); err != nil {
		t.Fatalf("duplicate resume: %v", err)
	}
	if got := len(e.Entries()); got != before {
		t.Fatal("duplicate resume logged an entry")
	}
}

func TestFinishIsIdempotentAndSealsSession(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	if err := e.Finish(model.SubmitViaManual); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := e.Finish(model.SubmitViaAuto); err != nil {
		t.Fatalf("second finish errored: %v", err)
	}

	finished := entriesOfType(e.Entries(), model.ActionSessionFinished)
	if len(finished) != 1 {
		t.Fatalf("expected one SESSION_FINISHED entry, got %d", len(finished))
	}
	if finished[0].Details.Via != model.SubmitViaManual {
		t.Fatalf("expected manual submit recorded, got %s", finished[0].Details.Via)
	}

	if err := e.NavigateTo(2); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
	if err := e.SaveAnswer(); !errors.Is(err, ErrSessionFinished) {
		t.Fatalf("expected ErrSessionFinished, got %v", err)
	}
}

func TestExpiryAutoSubmitsOnce(t *testing.T) {
	clock := newFakeClock()
	gw := &recordingGateway{}
	e := startedEngine(t, gw, clock)

	clock.advance(600 * time.Second)
	e.timer.tick()

	sess := e.Session()
	if sess.Status != model.SessionStatusFinished {
		t.Fatalf("expected finished on expiry, got %s", sess.Status)
	}
	if sess.RemainingSeconds != 0 {
		t.Fatalf("expected 0s remaining, got %d", sess.RemainingSeconds)
	}

	finished := entriesOfType(e.Entries(), model.ActionSessionFinished)
	if len(finished) != 1 || finished[0].Details.Via != model.SubmitViaAuto {
		t.Fatalf("expected single auto finish, got %+v", finished)
	}

	// A manual submit racing with expiry is a safe no-op.
	if err := e.Finish(model.SubmitViaManual); err != nil {
		t.Fatalf("manual submit after expiry errored: %v", err)
	}
	if got := len(entriesOfType(e.Entries(), model.ActionSessionFinished)); got != 1 {
		t.Fatalf("expected one finish entry, got %d", got)
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	last := gw.sessionSnaps[len(gw.sessionSnaps)-1]
	if !last.isFinal {
		t.Fatal("expiry checkpoint not marked final")
	}
}

func TestInvariantViolationsSurface(t *testing.T) {
	e, err := New(testConfig(&recordingGateway{}, newFakeClock().now))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	if err := e.NavigateTo(2); !errors.Is(err, ErrSessionNotStarted) {
		t.Fatalf("expected ErrSessionNotStarted, got %v", err)
	}

	if err := e.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer e.Finish(model.SubmitViaManual)

	if err := e.NavigateTo(99); !errors.Is(err, ErrQuestionNotFound) {
		t.Fatalf("expected ErrQuestionNotFound, got %v", err)
	}
}

func TestRejectsUnregisteredSection(t *testing.T) {
	cfg := testConfig(NopGateway{}, newFakeClock().now)
	cfg.Questions = append(cfg.Questions, model.QuestionContent{ID: 4, SectionID: "BIO"})

	if _, err := New(cfg); !errors.Is(err, ErrSectionNotFound) {
		t.Fatalf("expected ErrSectionNotFound, got %v", err)
	}
}

func TestSubscribeReceivesStatusFrames(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())

	ch, cancel := e.Subscribe()
	defer cancel()

	first := <-ch
	if first.Status != model.SessionStatusOngoing || first.RemainingSeconds != 600 {
		t.Fatalf("unexpected initial frame: %+v", first)
	}

	if err := e.Finish(model.SubmitViaManual); err != nil {
		t.Fatalf("finish: %v", err)
	}

	frame := <-ch
	if frame.Status != model.SessionStatusFinished {
		t.Fatalf("expected finished frame, got %+v", frame)
	}
}

func TestSubscribeThenImmediateCancelDeliversInitialFrame(t *testing.T) {
	e := startedEngine(t, &recordingGateway{}, newFakeClock())
	defer e.Finish(model.SubmitViaManual)

	// The initial frame is buffered before Subscribe returns, so a cancel
	// racing in right after must see the frame already sent and close the
	// channel behind it without panicking the sender.
	for i := 0; i < 100; i++ {
		ch, cancel := e.Subscribe()

		done := make(chan struct{})
		go func() {
			cancel()
			close(done)
		}()

		frame, open := <-ch
		if !open || frame.Status != model.SessionStatusOngoing {
			t.Fatalf("iteration %d: lost initial frame: %+v open=%t", i, frame, open)
		}
		<-done
		cancel()
	}
}

func TestFinalCheckpointCarriesSubmitChannel(t *testing.T) {
	gw := &recordingGateway{}
	e := startedEngine(t, gw, newFakeClock())

	if err := e.Finish(model.SubmitViaManual); err != nil {
		t.Fatalf("finish: %v", err)
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	last := gw.sessionSnaps[len(gw.sessionSnaps)-1]
	if !last.isFinal {
		t.Fatalf("last session snapshot not final: %+v", last)
	}
	if last.snap.SubmittedVia == nil || *last.snap.SubmittedVia != model.SubmitViaManual {
		t.Fatalf("final snapshot submitted_via = %v, want MANUAL", last.snap.SubmittedVia)
	}
}
