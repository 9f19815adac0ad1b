package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/config"
	"github.com/provalia/cbt-backend/internal/model"
)

// LogEnvelope is the queue payload for a single audit log entry.
type LogEnvelope struct {
	AttemptID uuid.UUID      `json:"attempt_id"`
	Entry     model.LogEntry `json:"entry"`
}

// SessionSnapEnvelope is the queue payload for a session checkpoint.
type SessionSnapEnvelope struct {
	Snapshot       model.SessionSnapshot `json:"snapshot"`
	IsFinal        bool                  `json:"is_final"`
	SectionCrossed bool                  `json:"section_crossed"`
}

// RedisGateway pushes engine checkpoints onto Redis lists for the persist
// worker to drain into PostgreSQL, and mirrors the latest state into hot
// cache keys so reads never hit the database mid-attempt.
type RedisGateway struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisGateway creates a RedisGateway.
func NewRedisGateway(rdb *redis.Client, log zerolog.Logger) *RedisGateway {
	return &RedisGateway{
		rdb: rdb,
		log: log.With().Str("component", "redis_gateway").Logger(),
	}
}

// ForAttempt binds the gateway to a single attempt, yielding the narrow
// write surface the session engine expects. Snapshots already carry their
// attempt id; log entries pick it up from the binding.
func (g *RedisGateway) ForAttempt(attemptID uuid.UUID) *AttemptGateway {
	return &AttemptGateway{gw: g, attemptID: attemptID}
}

// AttemptGateway is a RedisGateway scoped to one attempt.
type AttemptGateway struct {
	gw        *RedisGateway
	attemptID uuid.UUID
}

func (a *AttemptGateway) AppendLog(ctx context.Context, entry model.LogEntry) error {
	return a.gw.AppendLog(ctx, a.attemptID, entry)
}

func (a *AttemptGateway) UpsertQuestionSnapshot(ctx context.Context, snap model.QuestionSnapshot) error {
	return a.gw.UpsertQuestionSnapshot(ctx, snap)
}

func (a *AttemptGateway) UpsertSessionSnapshot(ctx context.Context, snap model.SessionSnapshot, isFinal, sectionCrossed bool) error {
	return a.gw.UpsertSessionSnapshot(ctx, snap, isFinal, sectionCrossed)
}

// AppendLog enqueues an audit log entry for durable persistence.
func (g *RedisGateway) AppendLog(ctx context.Context, attemptID uuid.UUID, entry model.LogEntry) error {
	raw, err := json.Marshal(LogEnvelope{AttemptID: attemptID, Entry: entry})
	if err != nil {
		return fmt.Errorf("marshal log envelope: %w", err)
	}

	if err := g.rdb.RPush(ctx, config.WorkerKey.PersistAuditLogQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue log entry: %w", err)
	}
	return nil
}

// UpsertQuestionSnapshot enqueues a question checkpoint and refreshes the
// attempt's question hash in the cache.
func (g *RedisGateway) UpsertQuestionSnapshot(ctx context.Context, snap model.QuestionSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal question snapshot: %w", err)
	}

	if err := g.rdb.RPush(ctx, config.WorkerKey.PersistQuestionSnapQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue question snapshot: %w", err)
	}

	// Cache write is best-effort: the queue is the durable path.
	key := config.CacheKey.AttemptQuestionsKey(snap.AttemptID.String())
	field := strconv.FormatInt(snap.QuestionID, 10)
	if err := g.rdb.HSet(ctx, key, field, raw).Err(); err != nil {
		g.log.Warn().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Question cache write failed")
	}
	return nil
}

// UpsertSessionSnapshot enqueues a session checkpoint and refreshes the
// attempt's session key in the cache.
func (g *RedisGateway) UpsertSessionSnapshot(ctx context.Context, snap model.SessionSnapshot, isFinal, sectionCrossed bool) error {
	raw, err := json.Marshal(SessionSnapEnvelope{
		Snapshot:       snap,
		IsFinal:        isFinal,
		SectionCrossed: sectionCrossed,
	})
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}

	if err := g.rdb.RPush(ctx, config.WorkerKey.PersistSessionSnapQueue, raw).Err(); err != nil {
		return fmt.Errorf("enqueue session snapshot: %w", err)
	}

	snapRaw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	key := config.CacheKey.AttemptSessionKey(snap.AttemptID.String())
	if err := g.rdb.Set(ctx, key, snapRaw, 0).Err(); err != nil {
		g.log.Warn().Err(err).Str("attempt_id", snap.AttemptID.String()).Msg("Session cache write failed")
	}
	return nil
}
