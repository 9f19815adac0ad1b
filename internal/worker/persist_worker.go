package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/gateway"
	"github.com/provalia/cbt-backend/internal/model"
)

// Durable stores the worker writes into. The repository types satisfy
// these directly.
type auditLogStore interface {
	Append(ctx context.Context, attemptID uuid.UUID, entry model.LogEntry) error
}

type snapshotStore interface {
	UpsertQuestion(ctx context.Context, snap model.QuestionSnapshot) error
	UpsertSession(ctx context.Context, snap model.SessionSnapshot) error
}

type attemptStore interface {
	Complete(ctx context.Context, attemptID uuid.UUID, finishedAt time.Time, via model.SubmitVia) error
}

// PersistWorker drains the Redis checkpoint queues into PostgreSQL.
// The engine enqueues log entries and snapshots fire-and-forget; this
// worker is the only writer of the durable tables, so attempt rows never
// see concurrent mutation.
type PersistWorker struct {
	rdb       *redis.Client
	logs      auditLogStore
	snapshots snapshotStore
	attempts  attemptStore
	log       zerolog.Logger
}

// NewPersistWorker creates a new PersistWorker.
func NewPersistWorker(rdb *redis.Client, logs auditLogStore, snapshots snapshotStore, attempts attemptStore, log zerolog.Logger) *PersistWorker {
	return &PersistWorker{
		rdb:       rdb,
		logs:      logs,
		snapshots: snapshots,
		attempts:  attempts,
		log:       log.With().Str("component", "persist_worker").Logger(),
	}
}

func (w *PersistWorker) queues() []string {
	return []string{
		config.WorkerKey.PersistAuditLogQueue,
		config.WorkerKey.PersistQuestionSnapQueue,
		config.WorkerKey.PersistSessionSnapQueue,
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *PersistWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			w.drain(context.Background())
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *PersistWorker) processNext(ctx context.Context) {
	// BLPop blocks across all three queues until an item arrives or the
	// 1 second timeout elapses.
	result, err := w.rdb.BLPop(ctx, time.Second, w.queues()...).Result()
	if err != nil {
		if err != redis.Nil && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
		}
		return
	}

	if len(result) < 2 {
		return
	}

	queue, raw := result[0], result[1]
	if err := w.persist(ctx, queue, raw); err != nil {
		w.log.Error().Err(err).Str("queue", queue).Msg("Persist error, retrying in 5s")
		// Push back to its queue for retry. Log inserts are keyed on
		// (attempt_id, entry_id), so the redelivery cannot duplicate rows.
		w.rdb.RPush(ctx, queue, raw)
		time.Sleep(5 * time.Second)
	}
}

func (w *PersistWorker) persist(ctx context.Context, queue, raw string) error {
	switch queue {
	case config.WorkerKey.PersistAuditLogQueue:
		var env gateway.LogEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return err
		}
		return w.logs.Append(ctx, env.AttemptID, env.Entry)

	case config.WorkerKey.PersistQuestionSnapQueue:
		var snap model.QuestionSnapshot
		if err := json.Unmarshal([]byte(raw), &snap); err != nil {
			return err
		}
		return w.snapshots.UpsertQuestion(ctx, snap)

	case config.WorkerKey.PersistSessionSnapQueue:
		var env gateway.SessionSnapEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			return err
		}
		if err := w.snapshots.UpsertSession(ctx, env.Snapshot); err != nil {
			return err
		}
		if env.SectionCrossed {
			w.log.Debug().
				Str("attempt_id", env.Snapshot.AttemptID.String()).
				Str("section_id", env.Snapshot.CurrentSectionID).
				Msg("Section boundary checkpoint")
		}
		if env.IsFinal {
			// The attempt row closes from here, not from a connected
			// client: expiry with nobody watching still gets sealed.
			via := model.SubmitViaAuto
			if env.Snapshot.SubmittedVia != nil {
				via = *env.Snapshot.SubmittedVia
			}
			if err := w.attempts.Complete(ctx, env.Snapshot.AttemptID, env.Snapshot.CapturedAt, via); err != nil {
				return err
			}
		}
		return nil
	}

	w.log.Warn().Str("queue", queue).Msg("Unknown queue payload dropped")
	return nil
}

// drain processes all remaining items in every queue before shutdown.
func (w *PersistWorker) drain(ctx context.Context) {
	drained := 0
	for _, queue := range w.queues() {
		for {
			raw, err := w.rdb.LPop(ctx, queue).Result()
			if err != nil {
				break
			}

			if err := w.persist(ctx, queue, raw); err != nil {
				w.log.Error().Err(err).Str("queue", queue).Msg("Drain persist error")
				w.rdb.RPush(ctx, queue, raw)
				break
			}
			drained++
		}
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
