package scheduler

import (
	"errors"
	"sync"
	"time"
)

// errTimersDisabled is returned by a ManualClock after FailTimers(true).
var errTimersDisabled = errors.New("manual clock: timers disabled")

// ManualClock is a Clock that only moves when told to. Timers fire during
// Advance, in due order. It is safe for concurrent use.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*manualTimer
	fail   bool
}

// NewManualClock returns a clock reading zero.
func NewManualClock() *ManualClock {
	return &ManualClock{}
}

func (c *ManualClock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// NewTimer arms a timer due d from now. A non-positive d fires immediately.
func (c *ManualClock) NewTimer(d time.Duration) (Timer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return nil, errTimersDisabled
	}
	t := &manualTimer{clock: c, at: c.now + d, ch: make(chan time.Duration, 1)}
	if d <= 0 {
		t.fired = true
		t.ch <- c.now
		return t, nil
	}
	c.timers = append(c.timers, t)
	return t, nil
}

// Advance moves the clock forward by d and fires every timer that became
// due.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
	kept := c.timers[:0]
	for _, t := range c.timers {
		if t.at <= c.now {
			t.fired = true
			t.ch <- c.now
			continue
		}
		kept = append(kept, t)
	}
	for i := len(kept); i < len(c.timers); i++ {
		c.timers[i] = nil
	}
	c.timers = kept
}

// Pending returns the number of armed timers that have not fired.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// FailTimers makes every later NewTimer call fail while on is true.
func (c *ManualClock) FailTimers(on bool) {
	c.mu.Lock()
	c.fail = on
	c.mu.Unlock()
}

type manualTimer struct {
	clock *ManualClock
	at    time.Duration
	ch    chan time.Duration
	fired bool
}

func (t *manualTimer) C() <-chan time.Duration { return t.ch }

func (t *manualTimer) Stop() bool {
	c := t.clock
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.fired {
		return false
	}
	for i, p := range c.timers {
		if p == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			t.fired = true
			return true
		}
	}
	return false
}
