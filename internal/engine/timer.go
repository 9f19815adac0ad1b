package engine

import (
	"sync"
	"time"
)

// TimerState enumerates countdown timer states.
type TimerState string

const (
	TimerIdle    TimerState = "IDLE"
	TimerRunning TimerState = "RUNNING"
	TimerPaused  TimerState = "PAUSED"
	TimerExpired TimerState = "EXPIRED"
)

// DefaultTickInterval is used when the exam does not configure one.
const DefaultTickInterval = 250 * time.Millisecond

// Timer is a drift-resistant countdown. Remaining time is always computed
// as max(0, endTime + paused − now) rather than by decrementing a counter,
// so variable tick scheduling delays never accumulate into drift. Pause
// time is added back through the cumulative paused accumulator.
//
// Callbacks are invoked without the timer lock held; expiry fires exactly
// once.
type Timer struct {
	mu       sync.Mutex
	now      func() time.Time
	state    TimerState
	endTime  time.Time
	pausedAt time.Time
	paused   time.Duration
	interval time.Duration
	stop     chan struct{}

	onTick   func(remaining time.Duration)
	onExpire func()
}

// NewTimer creates an idle timer. Both callbacks may be nil.
func NewTimer(onTick func(time.Duration), onExpire func()) *Timer {
	return newTimerWithClock(onTick, onExpire, time.Now)
}

// newTimerWithClock allows deterministic time in tests.
func newTimerWithClock(onTick func(time.Duration), onExpire func(), now func() time.Time) *Timer {
	return &Timer{
		now:      now,
		state:    TimerIdle,
		onTick:   onTick,
		onExpire: onExpire,
	}
}

// Start arms the countdown and begins ticking. A no-op unless the timer is
// idle, which protects against duplicate start events. The first reading is
// available from Remaining immediately; periodic callbacks begin one
// interval later.
func (t *Timer) Start(duration, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultTickInterval
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerIdle {
		return
	}
	t.state = TimerRunning
	t.endTime = t.now().Add(duration)
	t.paused = 0
	t.pausedAt = time.Time{}
	t.interval = interval
	t.stop = make(chan struct{})
	go t.loop(t.stop, interval)
}

// Pause freezes the countdown. A no-op unless running.
func (t *Timer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning {
		return
	}
	t.state = TimerPaused
	t.pausedAt = t.now()
	t.cancelLoopLocked()
}

// Resume continues after a pause, adding the paused interval back to the
// accumulator. A no-op unless paused.
func (t *Timer) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerPaused {
		return
	}
	t.paused += t.now().Sub(t.pausedAt)
	t.pausedAt = time.Time{}
	t.state = TimerRunning
	t.stop = make(chan struct{})
	go t.loop(t.stop, t.interval)
}

// Stop cancels the countdown and returns the timer to idle. A no-op once
// expired.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != TimerRunning && t.state != TimerPaused {
		return
	}
	t.state = TimerIdle
	t.cancelLoopLocked()
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining returns the time left on the countdown. While paused the value
// is frozen at the instant of the pause.
func (t *Timer) Remaining() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

// Paused returns the cumulative time the countdown has spent paused.
func (t *Timer) Paused() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *Timer) remainingLocked() time.Duration {
	if t.state == TimerIdle {
		return 0
	}
	base := t.now()
	if t.state == TimerPaused {
		base = t.pausedAt
	}
	remaining := t.endTime.Add(t.paused).Sub(base)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// cancelLoopLocked closes the tick loop's stop channel exactly once, so a
// later resume cannot leave two concurrent callback chains running.
func (t *Timer) cancelLoopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) loop(stop chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if t.tick() {
				return
			}
		}
	}
}

// tick computes the current reading and dispatches callbacks. It reports
// true when the countdown has expired, which ends the loop. The Running
// check under the lock makes a late tick after pause/stop harmless, and the
// Running→Expired transition guarantees onExpire fires only once.
func (t *Timer) tick() bool {
	t.mu.Lock()
	if t.state != TimerRunning {
		t.mu.Unlock()
		return true
	}
	remaining := t.remainingLocked()
	expired := remaining <= 0
	if expired {
		t.state = TimerExpired
		t.stop = nil
	}
	t.mu.Unlock()

	if t.onTick != nil {
		t.onTick(remaining)
	}
	if expired && t.onExpire != nil {
		t.onExpire()
	}
	return expired
}
