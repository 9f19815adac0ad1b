package engine

import (
	"context"

	"github.com/provalia/cbt-backend/internal/model"
)

// Gateway is the narrow persistence surface the engine writes through.
// Calls are fire-and-forget from the engine's point of view: a returned
// error is logged and never blocks a mutation or a timer tick, because the
// in-memory log stays authoritative until the writer acknowledges it.
// Ordering is carried by the log entry id, not by write completion order.
type Gateway interface {
	AppendLog(ctx context.Context, entry model.LogEntry) error
	UpsertQuestionSnapshot(ctx context.Context, snap model.QuestionSnapshot) error
	UpsertSessionSnapshot(ctx context.Context, snap model.SessionSnapshot, isFinal, sectionBoundaryCrossed bool) error
}

// NopGateway discards every write. Useful for dry runs and tests.
type NopGateway struct{}

func (NopGateway) AppendLog(context.Context, model.LogEntry) error { return nil }

func (NopGateway) UpsertQuestionSnapshot(context.Context, model.QuestionSnapshot) error {
	return nil
}

func (NopGateway) UpsertSessionSnapshot(context.Context, model.SessionSnapshot, bool, bool) error {
	return nil
}
