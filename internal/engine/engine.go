package engine

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/provalia/cbt-backend/internal/model"
)

// Config describes one exam attempt. Sections and questions are registered
// up front so lookups never create state as a side effect.
type Config struct {
	AttemptID       uuid.UUID
	ExamID          uuid.UUID
	CandidateID     int
	DurationSeconds int
	TickInterval    time.Duration
	Sections        []model.Section
	Questions       []model.QuestionContent
	Gateway         Gateway
	Logger          zerolog.Logger
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// ClockFrame is pushed to subscribers on every timer tick and on session
// status changes.
type ClockFrame struct {
	RemainingSeconds int                 `json:"remaining_seconds"`
	Status           model.SessionStatus `json:"status"`
}

// Engine is the authoritative state of a single exam attempt: the countdown
// timer, the current pointer, the per-question map, the derived section
// summaries, and the audit log. One Engine is constructed per attempt and
// owned by the attempt registry; all mutations are serialized under one
// mutex, with the timer tick as the only asynchronous caller.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger
	gw  Gateway
	now func() time.Time

	timer   *Timer
	session model.Session

	sections  []model.Section
	questions map[int64]*model.Question
	order     []int64

	summaries map[string]*model.SectionSummary
	audit     *auditLog

	// Uncommitted answer for the current question only. Dropped on
	// navigation, committed by SaveAnswer.
	buffer    model.Answer
	hasBuffer bool

	// Remaining seconds at the moment the current question became current;
	// the delta against the live reading is the time spent on it.
	pointerRemaining int

	subscribers map[chan ClockFrame]struct{}
}

// New builds an engine for a fresh attempt. Every question must reference a
// registered section.
func New(cfg Config) (*Engine, error) {
	if len(cfg.Sections) == 0 || len(cfg.Questions) == 0 {
		return nil, fmt.Errorf("attempt %s: exam has no sections or questions", cfg.AttemptID)
	}
	if cfg.Gateway == nil {
		cfg.Gateway = NopGateway{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}

	sectionSet := make(map[string]*model.Section, len(cfg.Sections))
	sections := make([]model.Section, len(cfg.Sections))
	for i, sec := range cfg.Sections {
		sec.QuestionIDs = nil
		sections[i] = sec
		sectionSet[sec.ID] = &sections[i]
	}

	questions := make(map[int64]*model.Question, len(cfg.Questions))
	order := make([]int64, 0, len(cfg.Questions))
	for _, qc := range cfg.Questions {
		sec, ok := sectionSet[qc.SectionID]
		if !ok {
			return nil, fmt.Errorf("question %d references section %q: %w", qc.ID, qc.SectionID, ErrSectionNotFound)
		}
		questions[qc.ID] = &model.Question{
			ID:        qc.ID,
			SectionID: qc.SectionID,
			Type:      qc.Type,
			Status:    model.QuestionStatusNotVisited,
			Answer:    model.NoAnswer(),
		}
		sec.QuestionIDs = append(sec.QuestionIDs, qc.ID)
		order = append(order, qc.ID)
	}

	e := &Engine{
		log: cfg.Logger.With().
			Str("component", "session_engine").
			Str("attempt_id", cfg.AttemptID.String()).
			Logger(),
		gw:  cfg.Gateway,
		now: cfg.Clock,
		session: model.Session{
			AttemptID:       cfg.AttemptID,
			ExamID:          cfg.ExamID,
			CandidateID:     cfg.CandidateID,
			Status:          model.SessionStatusNotStarted,
			DurationSeconds: cfg.DurationSeconds,
		},
		sections:    sections,
		questions:   questions,
		order:       order,
		summaries:   make(map[string]*model.SectionSummary, len(sections)),
		audit:       newAuditLog(),
		buffer:      model.NoAnswer(),
		subscribers: make(map[chan ClockFrame]struct{}),
	}

	e.timer = newTimerWithClock(e.handleTick, e.handleExpiry, cfg.Clock)
	e.timer.interval = cfg.TickInterval

	for i := range sections {
		e.recomputeSection(sections[i].ID)
	}

	return e, nil
}

// Start opens the session: arms the timer, points at the first question and
// writes the opening log entry. Duplicate calls are no-ops.
func (e *Engine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == model.SessionStatusFinished {
		return ErrSessionFinished
	}
	if e.session.Status != model.SessionStatusNotStarted {
		return nil
	}

	first := e.questions[e.order[0]]
	e.session.Status = model.SessionStatusOngoing
	e.session.RemainingSeconds = e.session.DurationSeconds
	e.session.CurrentQuestionID = first.ID
	e.session.CurrentSectionID = first.SectionID
	e.pointerRemaining = e.session.DurationSeconds

	e.timer.Start(time.Duration(e.session.DurationSeconds)*time.Second, e.timer.interval)

	entry := e.appendLocked(model.ActionSessionStarted, first, nil)
	e.checkpointLocked(entry, first, false, false)
	e.broadcastLocked()
	return nil
}

// NavigateTo moves the current pointer. Time spent on the departed question
// is committed first, and leaving a never-answered question demotes it from
// NotVisited to NotAnswered. The unsaved buffer is dropped. Every
// navigation is a durability checkpoint.
func (e *Engine) NavigateTo(questionID int64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mutableLocked(); err != nil {
		return err
	}
	target, ok := e.questions[questionID]
	if !ok {
		return fmt.Errorf("navigate to question %d: %w", questionID, ErrQuestionNotFound)
	}

	departed := e.questions[e.session.CurrentQuestionID]
	e.commitTimeSpentLocked(departed)
	if departed.Status == model.QuestionStatusNotVisited {
		departed.Status = model.QuestionStatusNotAnswered
		e.recomputeSection(departed.SectionID)
	}

	e.buffer = model.NoAnswer()
	e.hasBuffer = false

	crossed := target.SectionID != departed.SectionID
	e.session.CurrentQuestionID = target.ID
	e.session.CurrentSectionID = target.SectionID
	e.pointerRemaining = e.session.RemainingSeconds

	entry := e.appendLocked(model.ActionNavigated, departed, &model.ActionDetails{
		ToQuestionID: target.ID,
		ToSectionID:  target.SectionID,
	})
	e.checkpointLocked(entry, departed, false, crossed)
	return nil
}

// BufferAnswer stores an uncommitted answer for the current question. The
// persisted map is untouched; the log records the previous and new buffered
// values.
func (e *Engine) BufferAnswer(answer model.Answer) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mutableLocked(); err != nil {
		return err
	}

	current := e.questions[e.session.CurrentQuestionID]
	prev := e.buffer
	if !e.hasBuffer {
		prev = current.Answer
	}
	e.buffer = answer
	e.hasBuffer = true

	entry := e.appendLocked(model.ActionAnswerChanged, current, &model.ActionDetails{
		PrevAnswer: &prev,
		NewAnswer:  &answer,
	})
	e.forwardLocked(entry)
	return nil
}

// SaveAnswer commits the buffered answer into the persisted map and
// advances the question status. Saving with nothing buffered is a usage
// no-op.
func (e *Engine) SaveAnswer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mutableLocked(); err != nil {
		return err
	}
	if !e.hasBuffer {
		return nil
	}

	current := e.questions[e.session.CurrentQuestionID]
	prevAnswer := current.Answer
	prevStatus := current.Status

	current.Answer = e.buffer
	current.Status = statusOnSave(prevStatus)
	e.buffer = model.NoAnswer()
	e.hasBuffer = false
	e.recomputeSection(current.SectionID)

	entry := e.appendLocked(model.ActionAnswerSaved, current, &model.ActionDetails{
		PrevAnswer: &prevAnswer,
		PrevStatus: prevStatus,
	})
	e.forwardLocked(entry)
	e.upsertQuestionLocked(current)
	return nil
}

// ClearAnswer resets the persisted answer of the current question to none
// and demotes its status.
func (e *Engine) ClearAnswer() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mutableLocked(); err != nil {
		return err
	}

	current := e.questions[e.session.CurrentQuestionID]
	prevAnswer := current.Answer
	prevStatus := current.Status

	current.Answer = model.NoAnswer()
	current.Status = statusOnClear(prevStatus)
	e.recomputeSection(current.SectionID)

	entry := e.appendLocked(model.ActionAnswerCleared, current, &model.ActionDetails{
		PrevAnswer: &prevAnswer,
		PrevStatus: prevStatus,
	})
	e.forwardLocked(entry)
	e.upsertQuestionLocked(current)
	return nil
}

// ToggleMark flips the review mark on the current question.
func (e *Engine) ToggleMark() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.mutableLocked(); err != nil {
		return err
	}

	current := e.questions[e.session.CurrentQuestionID]
	prevStatus := current.Status
	current.Status = statusOnToggleMark(prevStatus)
	e.recomputeSection(current.SectionID)

	entry := e.appendLocked(model.ActionMarkToggled, current, &model.ActionDetails{
		PrevStatus: prevStatus,
	})
	e.forwardLocked(entry)
	return nil
}

// Pause freezes the session and the countdown. A no-op unless ongoing.
func (e *Engine) Pause() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == model.SessionStatusFinished {
		return ErrSessionFinished
	}
	if e.session.Status != model.SessionStatusOngoing {
		return nil
	}

	e.timer.Pause()
	e.session.Status = model.SessionStatusPaused
	e.session.RemainingSeconds = remainingSeconds(e.timer.Remaining())

	current := e.questions[e.session.CurrentQuestionID]
	entry := e.appendLocked(model.ActionSessionPaused, current, nil)
	e.checkpointLocked(entry, current, false, false)
	e.broadcastLocked()
	return nil
}

// Resume continues a paused session. A no-op unless paused.
func (e *Engine) Resume() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status == model.SessionStatusFinished {
		return ErrSessionFinished
	}
	if e.session.Status != model.SessionStatusPaused {
		return nil
	}

	e.timer.Resume()
	e.session.Status = model.SessionStatusOngoing
	e.session.RemainingSeconds = remainingSeconds(e.timer.Remaining())

	current := e.questions[e.session.CurrentQuestionID]
	entry := e.appendLocked(model.ActionSessionResumed, current, nil)
	e.forwardLocked(entry)
	e.broadcastLocked()
	return nil
}

// Finish closes the session. Idempotent: expiry and a manual submit can
// race and the first transition wins, with the second call a silent no-op.
func (e *Engine) Finish(via model.SubmitVia) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.finishLocked(via)
}

func (e *Engine) finishLocked(via model.SubmitVia) error {
	if e.session.Status == model.SessionStatusFinished {
		return nil
	}
	if e.session.Status == model.SessionStatusNotStarted {
		return ErrSessionNotStarted
	}

	current := e.questions[e.session.CurrentQuestionID]
	e.commitTimeSpentLocked(current)

	e.timer.Stop()
	e.session.Status = model.SessionStatusFinished
	e.session.RemainingSeconds = remainingSeconds(e.timer.Remaining())

	entry := e.appendLocked(model.ActionSessionFinished, current, &model.ActionDetails{Via: via})
	e.checkpointLocked(entry, current, true, false)
	e.broadcastLocked()

	e.log.Info().
		Str("via", string(via)).
		Int64("last_log_id", e.audit.lastID()).
		Msg("Session finished")
	return nil
}

// Session returns a copy of the current session state.
func (e *Engine) Session() model.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// Questions returns the per-question states in registration order.
func (e *Engine) Questions() []model.Question {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Question, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.questions[id])
	}
	return out
}

// Sections returns the registered sections in order.
func (e *Engine) Sections() []model.Section {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.Section, len(e.sections))
	copy(out, e.sections)
	return out
}

// Summaries returns the derived per-section status counts in section order.
func (e *Engine) Summaries() []model.SectionSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]model.SectionSummary, 0, len(e.sections))
	for i := range e.sections {
		out = append(out, *e.summaries[e.sections[i].ID])
	}
	return out
}

// BufferedAnswer returns the uncommitted answer for the current question,
// if any.
func (e *Engine) BufferedAnswer() (model.Answer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.buffer, e.hasBuffer
}

// Entries returns a copy of the in-memory audit log in id order.
func (e *Engine) Entries() []model.LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.audit.all()
}

// Subscribe registers a clock frame listener. The returned cancel function
// must be called to release the channel.
func (e *Engine) Subscribe() (<-chan ClockFrame, func()) {
	ch := make(chan ClockFrame, 8)

	e.mu.Lock()
	e.subscribers[ch] = struct{}{}
	// The initial frame goes out under the same lock that guards cancel's
	// close, so it can never hit an already-closed channel. The fresh
	// buffer guarantees the send does not block.
	ch <- ClockFrame{RemainingSeconds: e.session.RemainingSeconds, Status: e.session.Status}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if _, ok := e.subscribers[ch]; ok {
			delete(e.subscribers, ch)
			close(ch)
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

// ─── Timer callbacks ────────────────────────────────────────────────────

func (e *Engine) handleTick(remaining time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.Status != model.SessionStatusOngoing {
		return
	}
	e.session.RemainingSeconds = remainingSeconds(remaining)
	e.broadcastLocked()
}

// handleExpiry auto-submits when the countdown reaches zero. Expiry takes
// precedence over a manual submit in flight; finishLocked makes the second
// arrival a no-op either way.
func (e *Engine) handleExpiry() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.finishLocked(model.SubmitViaAuto); err != nil {
		e.log.Error().Err(err).Msg("Auto-submit on expiry failed")
	}
}

// ─── Internal helpers ───────────────────────────────────────────────────

// mutableLocked gates every question-level mutation.
func (e *Engine) mutableLocked() error {
	switch e.session.Status {
	case model.SessionStatusFinished:
		return ErrSessionFinished
	case model.SessionStatusNotStarted:
		return ErrSessionNotStarted
	}
	return nil
}

// commitTimeSpentLocked charges the time since the question became current
// to its accumulated total.
func (e *Engine) commitTimeSpentLocked(q *model.Question) {
	live := remainingSeconds(e.timer.Remaining())
	if e.session.Status == model.SessionStatusOngoing {
		e.session.RemainingSeconds = live
	}
	spent := e.pointerRemaining - e.session.RemainingSeconds
	if spent > 0 {
		q.TimeSpentSeconds += spent
	}
	e.pointerRemaining = e.session.RemainingSeconds
}

// appendLocked stamps a log entry snapshotting the given question at the
// moment of the event.
func (e *Engine) appendLocked(action model.ActionType, q *model.Question, details *model.ActionDetails) model.LogEntry {
	return e.audit.stamp(model.LogEntry{
		TimeRemainingSeconds: e.session.RemainingSeconds,
		Type:                 action,
		QuestionID:           q.ID,
		SectionID:            q.SectionID,
		Status:               q.Status,
		Answer:               q.Answer,
		TimeSpentSeconds:     q.TimeSpentSeconds,
		SessionStatus:        e.session.Status,
		Details:              details,
	}, e.now())
}

// forwardLocked hands a stamped entry to the gateway. Failures are logged
// and swallowed; the in-memory log remains authoritative and the writer
// retries from its queue.
func (e *Engine) forwardLocked(entry model.LogEntry) {
	if err := e.gw.AppendLog(context.Background(), entry); err != nil {
		e.log.Error().Err(err).Int64("log_id", entry.ID).Msg("Append log failed")
	}
}

func (e *Engine) upsertQuestionLocked(q *model.Question) {
	snap := model.QuestionSnapshot{
		AttemptID:        e.session.AttemptID,
		QuestionID:       q.ID,
		SectionID:        q.SectionID,
		Status:           q.Status,
		Answer:           q.Answer,
		TimeSpentSeconds: q.TimeSpentSeconds,
		CapturedAt:       e.now(),
	}
	if err := e.gw.UpsertQuestionSnapshot(context.Background(), snap); err != nil {
		e.log.Error().Err(err).Int64("question_id", q.ID).Msg("Question snapshot failed")
	}
}

// checkpointLocked is the durability point: log entry plus question and
// session snapshots go to the gateway together.
func (e *Engine) checkpointLocked(entry model.LogEntry, q *model.Question, isFinal, sectionBoundaryCrossed bool) {
	e.forwardLocked(entry)
	e.upsertQuestionLocked(q)

	snap := model.SessionSnapshot{
		AttemptID:         e.session.AttemptID,
		Status:            e.session.Status,
		RemainingSeconds:  e.session.RemainingSeconds,
		CurrentSectionID:  e.session.CurrentSectionID,
		CurrentQuestionID: e.session.CurrentQuestionID,
		CapturedAt:        e.now(),
	}
	if isFinal && entry.Details != nil && entry.Details.Via != "" {
		via := entry.Details.Via
		snap.SubmittedVia = &via
	}
	if err := e.gw.UpsertSessionSnapshot(context.Background(), snap, isFinal, sectionBoundaryCrossed); err != nil {
		e.log.Error().Err(err).Msg("Session snapshot failed")
	}
}

func (e *Engine) broadcastLocked() {
	frame := ClockFrame{
		RemainingSeconds: e.session.RemainingSeconds,
		Status:           e.session.Status,
	}
	for ch := range e.subscribers {
		select {
		case ch <- frame:
		default:
			// Drop the stale frame so a slow reader never blocks a tick.
			select {
			case <-ch:
			default:
			}
			ch <- frame
		}
	}
}

func remainingSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

func secondsToDuration(s int) time.Duration {
	return time.Duration(s) * time.Second
}

// ─── Status transitions ─────────────────────────────────────────────────

func statusOnSave(s model.QuestionStatus) model.QuestionStatus {
	switch s {
	case model.QuestionStatusMarked, model.QuestionStatusMarkedAnswered:
		return model.QuestionStatusMarkedAnswered
	default:
		return model.QuestionStatusAnswered
	}
}

func statusOnClear(s model.QuestionStatus) model.QuestionStatus {
	switch s {
	case model.QuestionStatusAnswered:
		return model.QuestionStatusNotAnswered
	case model.QuestionStatusMarkedAnswered:
		return model.QuestionStatusMarked
	default:
		return s
	}
}

func statusOnToggleMark(s model.QuestionStatus) model.QuestionStatus {
	switch s {
	case model.QuestionStatusAnswered:
		return model.QuestionStatusMarkedAnswered
	case model.QuestionStatusMarkedAnswered:
		return model.QuestionStatusAnswered
	case model.QuestionStatusMarked:
		return model.QuestionStatusNotAnswered
	default:
		return model.QuestionStatusMarked
	}
}
