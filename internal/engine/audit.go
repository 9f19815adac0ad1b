package engine

import (
	"time"

	"github.com/provalia/cbt-backend/internal/model"
)

// auditLog assigns gap-free monotonic ids to log entries and keeps the
// in-memory copy that stays authoritative until persistence acknowledges.
type auditLog struct {
	nextID  int64
	entries []model.LogEntry
}

func newAuditLog() *auditLog {
	return &auditLog{nextID: 1}
}

// seed continues numbering after a previously persisted log, so ids never
// reset or gap across a crash/reload cycle.
func (l *auditLog) seed(lastID int64) {
	if lastID >= l.nextID {
		l.nextID = lastID + 1
	}
}

// stamp assigns the next id and timestamp, records the entry, and returns
// the stamped copy. Entries are immutable once stamped.
func (l *auditLog) stamp(entry model.LogEntry, now time.Time) model.LogEntry {
	entry.ID = l.nextID
	entry.Timestamp = now
	l.nextID++
	l.entries = append(l.entries, entry)
	return entry
}

func (l *auditLog) lastID() int64 {
	return l.nextID - 1
}

// all returns a copy of the recorded entries in id order.
func (l *auditLog) all() []model.LogEntry {
	out := make([]model.LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}
