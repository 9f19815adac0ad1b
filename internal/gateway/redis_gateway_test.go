package gateway

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
	"github.com/provalia/cbt-backend/internal/model"
)

func newTestGateway(t *testing.T) (*RedisGateway, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisGateway(client, zerolog.Nop()), mr
}

func TestAppendLogPreservesQueueOrder(t *testing.T) {
	gw, mr := newTestGateway(t)
	attemptID := uuid.New()
	bound := gw.ForAttempt(attemptID)

	for i := int64(1); i <= 3; i++ {
		entry := model.LogEntry{
			ID:                   i,
			Timestamp:            time.Date(2026, 2, 10, 9, 0, int(i), 0, time.UTC),
			TimeRemainingSeconds: 600 - int(i),
			Type:                 model.ActionAnswerSaved,
			QuestionID:           i,
			SectionID:            "PHY",
			Status:               model.QuestionStatusAnswered,
			SessionStatus:        model.SessionStatusOngoing,
		}
		if err := bound.AppendLog(context.Background(), entry); err != nil {
			t.Fatalf("append log %d: %v", i, err)
		}
	}

	raws, err := mr.List(config.WorkerKey.PersistAuditLogQueue)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("queue length = %d, want 3", len(raws))
	}

	for i, raw := range raws {
		var env LogEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			t.Fatalf("unmarshal envelope %d: %v", i, err)
		}
		if env.AttemptID != attemptID {
			t.Fatalf("entry %d attempt id = %s, want %s", i, env.AttemptID, attemptID)
		}
		if env.Entry.ID != int64(i+1) {
			t.Fatalf("queue position %d holds entry id %d, want %d", i, env.Entry.ID, i+1)
		}
	}
}

func TestUpsertQuestionSnapshotQueuesAndCaches(t *testing.T) {
	gw, mr := newTestGateway(t)
	attemptID := uuid.New()

	snap := model.QuestionSnapshot{
		AttemptID:        attemptID,
		QuestionID:       7,
		SectionID:        "CHEM",
		Status:           model.QuestionStatusMarkedAnswered,
		Answer:           model.OptionsAnswer("A", "C"),
		TimeSpentSeconds: 42,
		CapturedAt:       time.Date(2026, 2, 10, 9, 5, 0, 0, time.UTC),
	}
	if err := gw.UpsertQuestionSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("upsert question snapshot: %v", err)
	}

	raws, err := mr.List(config.WorkerKey.PersistQuestionSnapQueue)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("queue length = %d, want 1", len(raws))
	}

	cached := mr.HGet(config.CacheKey.AttemptQuestionsKey(attemptID.String()), "7")
	if cached == "" {
		t.Fatal("question cache field missing")
	}

	var got model.QuestionSnapshot
	if err := json.Unmarshal([]byte(cached), &got); err != nil {
		t.Fatalf("unmarshal cached snapshot: %v", err)
	}
	if got.Status != model.QuestionStatusMarkedAnswered || got.TimeSpentSeconds != 42 {
		t.Fatalf("cached snapshot = %+v, want status %s spent 42", got, model.QuestionStatusMarkedAnswered)
	}
}

func TestUpsertSessionSnapshotCarriesFinalFlag(t *testing.T) {
	gw, mr := newTestGateway(t)
	attemptID := uuid.New()

	snap := model.SessionSnapshot{
		AttemptID:         attemptID,
		Status:            model.SessionStatusFinished,
		RemainingSeconds:  0,
		CurrentSectionID:  "CHEM",
		CurrentQuestionID: 9,
		CapturedAt:        time.Date(2026, 2, 10, 10, 0, 0, 0, time.UTC),
	}
	if err := gw.UpsertSessionSnapshot(context.Background(), snap, true, false); err != nil {
		t.Fatalf("upsert session snapshot: %v", err)
	}

	raws, err := mr.List(config.WorkerKey.PersistSessionSnapQueue)
	if err != nil {
		t.Fatalf("read queue: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("queue length = %d, want 1", len(raws))
	}

	var env SessionSnapEnvelope
	if err := json.Unmarshal([]byte(raws[0]), &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if !env.IsFinal {
		t.Fatal("IsFinal not set on final snapshot")
	}
	if env.Snapshot.Status != model.SessionStatusFinished {
		t.Fatalf("snapshot status = %s, want %s", env.Snapshot.Status, model.SessionStatusFinished)
	}

	cached, err := mr.Get(config.CacheKey.AttemptSessionKey(attemptID.String()))
	if err != nil {
		t.Fatalf("read session cache: %v", err)
	}
	var got model.SessionSnapshot
	if err := json.Unmarshal([]byte(cached), &got); err != nil {
		t.Fatalf("unmarshal cached session: %v", err)
	}
	if got.CurrentQuestionID != 9 {
		t.Fatalf("cached pointer = %d, want 9", got.CurrentQuestionID)
	}
}
