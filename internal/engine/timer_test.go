package engine

import (
	"math"
	"testing"
	"time"
)

// fakeClock lets tests advance time manually; tick intervals are set far in
// the future so the real ticker never fires during a test.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

const testInterval = time.Hour

func TestCountdownSequence(t *testing.T) {
	clock := newFakeClock()

	var readings []int
	expiries := 0
	tm := newTimerWithClock(func(remaining time.Duration) {
		readings = append(readings, int(math.Ceil(remaining.Seconds())))
	}, func() {
		expiries++
	}, clock.now)

	tm.Start(5*time.Second, testInterval)
	defer tm.Stop()

	readings = append([]int{int(tm.Remaining().Seconds())}, readings...)

	for i := 0; i < 5; i++ {
		clock.advance(time.Second)
		tm.tick()
	}

	want := []int{5, 4, 3, 2, 1, 0}
	if len(readings) != len(want) {
		t.Fatalf("expected readings %v, got %v", want, readings)
	}
	for i := range want {
		if readings[i] != want[i] {
			t.Fatalf("expected readings %v, got %v", want, readings)
		}
	}
	if expiries != 1 {
		t.Fatalf("expected exactly one expiry, got %d", expiries)
	}
	if tm.State() != TimerExpired {
		t.Fatalf("expected expired state, got %s", tm.State())
	}

	// A late duplicate tick must not fire a second expiry.
	clock.advance(time.Second)
	tm.tick()
	if expiries != 1 {
		t.Fatalf("duplicate expiry fired: %d", expiries)
	}
}

func TestPauseResumeAccumulation(t *testing.T) {
	clock := newFakeClock()
	tm := newTimerWithClock(nil, nil, clock.now)

	tm.Start(10*time.Second, testInterval)
	defer tm.Stop()

	clock.advance(2 * time.Second)
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("expected 8s remaining before pause, got %s", got)
	}

	tm.Pause()
	clock.advance(3 * time.Second)
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("remaining drifted while paused: %s", got)
	}

	tm.Resume()
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("expected 8s remaining after resume, got %s", got)
	}
	if got := tm.Paused(); got != 3*time.Second {
		t.Fatalf("expected 3s accumulated pause, got %s", got)
	}

	// Second pause cycle adds to the accumulator.
	tm.Pause()
	clock.advance(2 * time.Second)
	tm.Resume()
	if got := tm.Paused(); got != 5*time.Second {
		t.Fatalf("expected 5s accumulated pause, got %s", got)
	}
	if got := tm.Remaining(); got != 8*time.Second {
		t.Fatalf("expected 8s remaining after second cycle, got %s", got)
	}
}

func TestDuplicateLifecycleCallsAreNoOps(t *testing.T) {
	clock := newFakeClock()
	tm := newTimerWithClock(nil, nil, clock.now)

	tm.Pause()  // not running
	tm.Resume() // not paused
	if tm.State() != TimerIdle {
		t.Fatalf("expected idle, got %s", tm.State())
	}

	tm.Start(10*time.Second, testInterval)
	defer tm.Stop()

	clock.advance(4 * time.Second)
	tm.Start(10*time.Second, testInterval) // double start keeps the original deadline
	if got := tm.Remaining(); got != 6*time.Second {
		t.Fatalf("double start rearmed the countdown: %s", got)
	}

	tm.Resume() // running, not paused
	if tm.State() != TimerRunning {
		t.Fatalf("expected running, got %s", tm.State())
	}

	tm.Pause()
	tm.Pause() // double pause
	clock.advance(time.Second)
	tm.Resume()
	if got := tm.Paused(); got != time.Second {
		t.Fatalf("double pause corrupted accumulator: %s", got)
	}
}

func TestStopCancelsCountdown(t *testing.T) {
	clock := newFakeClock()
	expiries := 0
	tm := newTimerWithClock(nil, func() { expiries++ }, clock.now)

	tm.Start(5*time.Second, testInterval)
	tm.Stop()

	if tm.State() != TimerIdle {
		t.Fatalf("expected idle after stop, got %s", tm.State())
	}

	clock.advance(10 * time.Second)
	tm.tick()
	if expiries != 0 {
		t.Fatalf("stopped timer expired: %d", expiries)
	}
}
