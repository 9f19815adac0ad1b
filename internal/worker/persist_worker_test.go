package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/gateway"
	"github.com/provalia/cbt-backend/internal/model"
)

type fakeLogStore struct {
	entries []model.LogEntry
}

func (f *fakeLogStore) Append(_ context.Context, _ uuid.UUID, entry model.LogEntry) error {
	f.entries = append(f.entries, entry)
	return nil
}

type fakeSnapshotStore struct {
	sessions  []model.SessionSnapshot
	questions []model.QuestionSnapshot
}

func (f *fakeSnapshotStore) UpsertQuestion(_ context.Context, snap model.QuestionSnapshot) error {
	f.questions = append(f.questions, snap)
	return nil
}

func (f *fakeSnapshotStore) UpsertSession(_ context.Context, snap model.SessionSnapshot) error {
	f.sessions = append(f.sessions, snap)
	return nil
}

type completion struct {
	attemptID  uuid.UUID
	finishedAt time.Time
	via        model.SubmitVia
}

type fakeAttemptStore struct {
	completions []completion
}

func (f *fakeAttemptStore) Complete(_ context.Context, attemptID uuid.UUID, finishedAt time.Time, via model.SubmitVia) error {
	f.completions = append(f.completions, completion{attemptID: attemptID, finishedAt: finishedAt, via: via})
	return nil
}

func newTestWorker(t *testing.T) (*PersistWorker, *miniredis.Miniredis, *fakeSnapshotStore, *fakeAttemptStore) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	snaps := &fakeSnapshotStore{}
	attempts := &fakeAttemptStore{}
	w := NewPersistWorker(client, &fakeLogStore{}, snaps, attempts, zerolog.Nop())
	return w, mr, snaps, attempts
}

func enqueueSessionSnap(t *testing.T, mr *miniredis.Miniredis, env gateway.SessionSnapEnvelope) {
	t.Helper()
	raw, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	if _, err := mr.Push(config.WorkerKey.PersistSessionSnapQueue, string(raw)); err != nil {
		t.Fatalf("push envelope: %v", err)
	}
}

func TestFinalSessionSnapshotSealsAttempt(t *testing.T) {
	w, mr, snaps, attempts := newTestWorker(t)

	attemptID := uuid.New()
	via := model.SubmitViaAuto
	capturedAt := time.Date(2026, 3, 1, 10, 30, 0, 0, time.UTC)
	enqueueSessionSnap(t, mr, gateway.SessionSnapEnvelope{
		Snapshot: model.SessionSnapshot{
			AttemptID:         attemptID,
			Status:            model.SessionStatusFinished,
			RemainingSeconds:  0,
			CurrentSectionID:  "PHY",
			CurrentQuestionID: 1,
			SubmittedVia:      &via,
			CapturedAt:        capturedAt,
		},
		IsFinal: true,
	})

	w.processNext(context.Background())

	if len(snaps.sessions) != 1 {
		t.Fatalf("session upserts = %d, want 1", len(snaps.sessions))
	}
	if len(attempts.completions) != 1 {
		t.Fatalf("completions = %d, want 1", len(attempts.completions))
	}
	done := attempts.completions[0]
	if done.attemptID != attemptID || done.via != model.SubmitViaAuto || !done.finishedAt.Equal(capturedAt) {
		t.Fatalf("unexpected completion: %+v", done)
	}
}

func TestNonFinalSessionSnapshotLeavesAttemptOpen(t *testing.T) {
	w, mr, snaps, attempts := newTestWorker(t)

	enqueueSessionSnap(t, mr, gateway.SessionSnapEnvelope{
		Snapshot: model.SessionSnapshot{
			AttemptID:         uuid.New(),
			Status:            model.SessionStatusOngoing,
			RemainingSeconds:  540,
			CurrentSectionID:  "CHEM",
			CurrentQuestionID: 3,
			CapturedAt:        time.Date(2026, 3, 1, 10, 21, 0, 0, time.UTC),
		},
		SectionCrossed: true,
	})

	w.processNext(context.Background())

	if len(snaps.sessions) != 1 {
		t.Fatalf("session upserts = %d, want 1", len(snaps.sessions))
	}
	if len(attempts.completions) != 0 {
		t.Fatalf("completions = %d, want 0", len(attempts.completions))
	}
}
