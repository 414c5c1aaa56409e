package scheduler

import (
	"sync/atomic"
	"time"
)

// Clock is a monotonic time source able to arm one-shot timers.
// Now is measured from the clock's origin.
type Clock interface {
	Now() time.Duration
	NewTimer(d time.Duration) (Timer, error)
}

// Timer is a one-shot timer. C receives the clock reading at which it fired.
type Timer interface {
	C() <-chan time.Duration
	// Stop prevents the timer from firing. It reports false if the timer
	// already fired or was stopped.
	Stop() bool
}

// SystemClock reads the operating system's monotonic clock. The zero value
// is not usable; use NewSystemClock.
type SystemClock struct {
	origin time.Duration
	last   atomic.Int64
}

// NewSystemClock returns a clock whose origin is the moment of the call.
func NewSystemClock() (*SystemClock, error) {
	origin, err := monotonicNow()
	if err != nil {
		return nil, err
	}
	return &SystemClock{origin: origin}, nil
}

// Now returns the time elapsed since the clock was created. Should the
// underlying clock become unreadable, the last good reading is returned.
func (c *SystemClock) Now() time.Duration {
	now, err := monotonicNow()
	if err != nil {
		return time.Duration(c.last.Load())
	}
	d := now - c.origin
	c.last.Store(int64(d))
	return d
}

// NewTimer arms a timer firing after d. A non-positive d fires as soon as
// possible.
func (c *SystemClock) NewTimer(d time.Duration) (Timer, error) {
	if _, err := monotonicNow(); err != nil {
		return nil, err
	}
	t := &systemTimer{ch: make(chan time.Duration, 1)}
	t.t = time.AfterFunc(max(d, 0), func() {
		select {
		case t.ch <- c.Now():
		default:
		}
	})
	return t, nil
}

type systemTimer struct {
	t  *time.Timer
	ch chan time.Duration
}

func (t *systemTimer) C() <-chan time.Duration { return t.ch }
func (t *systemTimer) Stop() bool              { return t.t.Stop() }
