package protocol

import (
	"time"

	"github.com/metroloop/metroloop/internal/transport"
)

// Event tags.
const (
	TagTick     = "tick"
	TagFatal    = "fatal"
	TagSnapshot = "snapshot"
	TagError    = "error"
)

// FatalTimerUnavailable is the error carried by a fatal event when the
// scheduler could not arm its timer.
const FatalTimerUnavailable = "TimerUnavailable"

// Kinds of rejected commands.
const (
	KindValidation  = "validation"
	KindProtocol    = "protocol"
	KindUnavailable = "unavailable"
)

// Event is a scheduler to consumer message. The set of implementations is
// closed: Tick, Fatal, Snapshot and Rejected.
type Event interface {
	Tag() string
	isEvent()
}

// Tick is one scheduled beat. ScheduledTime is in milliseconds since the
// scheduler's clock origin.
type Tick struct {
	TickIndex     int     `json:"tickIndex"`
	Downbeat      bool    `json:"downbeat"`
	ScheduledTime float64 `json:"scheduledTime"`
}

// NewTick converts a transport tick into its wire form.
func NewTick(ev transport.TickEvent) Tick {
	return Tick{
		TickIndex:     ev.TickIndex,
		Downbeat:      ev.Downbeat,
		ScheduledTime: Millis(ev.ScheduledTime),
	}
}

// Scheduled returns ScheduledTime as a duration since the clock origin.
func (t Tick) Scheduled() time.Duration {
	return time.Duration(t.ScheduledTime * float64(time.Millisecond))
}

func (Tick) Tag() string { return TagTick }
func (Tick) isEvent()    {}

func (t Tick) MarshalJSON() ([]byte, error) {
	type body Tick
	return marshalTagged(TagTick, body(t))
}

// Fatal reports an unrecoverable scheduler failure. It is sent once.
type Fatal struct {
	Error string `json:"error"`
}

func (Fatal) Tag() string { return TagFatal }
func (Fatal) isEvent()    {}

func (f Fatal) MarshalJSON() ([]byte, error) {
	type body Fatal
	return marshalTagged(TagFatal, body(f))
}

// Snapshot carries the transport's read-only view.
type Snapshot struct {
	transport.Snapshot
}

func (Snapshot) Tag() string { return TagSnapshot }
func (Snapshot) isEvent()    {}

func (s Snapshot) MarshalJSON() ([]byte, error) {
	return marshalTagged(TagSnapshot, s.Snapshot)
}

// Rejected answers a command that could not be applied.
type Rejected struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

func (Rejected) Tag() string { return TagError }
func (Rejected) isEvent()    {}

func (r Rejected) MarshalJSON() ([]byte, error) {
	type body Rejected
	return marshalTagged(TagError, body(r))
}

// Millis converts a duration to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
