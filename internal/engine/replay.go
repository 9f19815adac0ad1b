package engine

import (
	"fmt"

	"github.com/provalia/cbt-backend/internal/model"
)

// ReplayResult is the state reconstructed from an ordered audit log.
type ReplayResult struct {
	Session   model.Session
	Questions map[int64]*model.Question
	LastID    int64
}

// Replay folds an ordered, gap-free audit log back into session and
// question state. Every entry snapshots the persisted state of the question
// it touched, so applying the snapshots in id order reproduces the exact
// state the engine held when the last entry was written — independent of
// any live store.
func Replay(entries []model.LogEntry) (*ReplayResult, error) {
	if len(entries) == 0 {
		return nil, ErrEmptyLog
	}

	result := &ReplayResult{
		Questions: make(map[int64]*model.Question),
	}

	expected := entries[0].ID
	for i := range entries {
		entry := &entries[i]
		if entry.ID != expected {
			return nil, fmt.Errorf("entry %d follows %d: %w", entry.ID, expected-1, ErrCorruptLog)
		}
		expected++

		q, ok := result.Questions[entry.QuestionID]
		if !ok {
			q = &model.Question{ID: entry.QuestionID, SectionID: entry.SectionID}
			result.Questions[entry.QuestionID] = q
		}
		q.Status = entry.Status
		q.Answer = entry.Answer
		q.TimeSpentSeconds = entry.TimeSpentSeconds

		// The navigation snapshot holds the departed question; the pointer
		// moved to the destination in the details.
		if entry.Type == model.ActionNavigated && entry.Details != nil {
			result.Session.CurrentQuestionID = entry.Details.ToQuestionID
			result.Session.CurrentSectionID = entry.Details.ToSectionID
		} else {
			result.Session.CurrentQuestionID = entry.QuestionID
			result.Session.CurrentSectionID = entry.SectionID
		}

		result.Session.Status = entry.SessionStatus
		result.Session.RemainingSeconds = entry.TimeRemainingSeconds
	}

	result.LastID = entries[len(entries)-1].ID
	return result, nil
}

// Restore rehydrates a freshly constructed engine from a persisted audit
// log and reopens the session with the remaining time of the last entry.
// Log numbering continues from the last persisted id, so the sequence stays
// gap-free across a crash or reload. Restoring a finished attempt leaves
// the engine finished with no timer.
func (e *Engine) Restore(entries []model.LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != model.SessionStatusNotStarted {
		return fmt.Errorf("restore: session already started")
	}

	replayed, err := Replay(entries)
	if err != nil {
		return fmt.Errorf("replay log: %w", err)
	}

	for id, rq := range replayed.Questions {
		q, ok := e.questions[id]
		if !ok {
			return fmt.Errorf("log references question %d: %w", id, ErrQuestionNotFound)
		}
		q.Status = rq.Status
		q.Answer = rq.Answer
		q.TimeSpentSeconds = rq.TimeSpentSeconds
	}
	for i := range e.sections {
		e.recomputeSection(e.sections[i].ID)
	}

	if _, ok := e.questions[replayed.Session.CurrentQuestionID]; !ok {
		return fmt.Errorf("log current pointer %d: %w", replayed.Session.CurrentQuestionID, ErrQuestionNotFound)
	}

	e.audit.seed(replayed.LastID)
	e.session.CurrentQuestionID = replayed.Session.CurrentQuestionID
	e.session.CurrentSectionID = replayed.Session.CurrentSectionID
	e.session.RemainingSeconds = replayed.Session.RemainingSeconds
	e.pointerRemaining = replayed.Session.RemainingSeconds

	if replayed.Session.Status == model.SessionStatusFinished {
		e.session.Status = model.SessionStatusFinished
		return nil
	}

	e.session.Status = model.SessionStatusOngoing
	e.timer.Start(secondsToDuration(replayed.Session.RemainingSeconds), e.timer.interval)

	current := e.questions[e.session.CurrentQuestionID]
	entry := e.appendLocked(model.ActionSessionResumed, current, nil)
	e.checkpointLocked(entry, current, false, false)
	e.broadcastLocked()
	return nil
}
