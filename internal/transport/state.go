package transport

import (
	"fmt"
	"time"
)

// State is the mutable transport owned by a single scheduler goroutine.
// It is not safe for concurrent use.
type State struct {
	status    Status
	tickIndex int
	tempo     Tempo
	meter     Meter
	loop      Loop
}

// NewState returns a stopped transport with default settings and no tick
// emitted yet.
func NewState() *State {
	d := DefaultSettings()
	return &State{
		status:    Stopped,
		tickIndex: -1,
		tempo:     d.Tempo,
		meter:     d.Meter,
		loop:      d.Loop,
	}
}

// Status returns the play/stop status.
func (s *State) Status() Status { return s.status }

// SetStatus changes the play/stop status. It never fails.
func (s *State) SetStatus(st Status) { s.status = st }

// TickIndex returns the index of the last emitted tick, or -1.
func (s *State) TickIndex() int { return s.tickIndex }

// Settings returns the current tempo, meter and loop.
func (s *State) Settings() Settings {
	return Settings{Tempo: s.tempo, Meter: s.meter, Loop: s.loop}
}

// LoopLength is the number of ticks in one loop.
func (s *State) LoopLength() int {
	return s.meter.BeatsPerMeasure * s.loop.MeasuresPerLoop
}

// BeatInterval is the time between two ticks at the current tempo and meter:
// (60 / bpm) * (4 / beatUnit) seconds.
func (s *State) BeatInterval() time.Duration {
	return BeatInterval(s.tempo, s.meter)
}

// BeatInterval converts a tempo and meter into the duration of one beat.
func BeatInterval(t Tempo, m Meter) time.Duration {
	seconds := 60 / t.BPM * (4 / float64(m.BeatUnit))
	return time.Duration(seconds * float64(time.Second))
}

// ApplyUpdate validates u against the current state and applies it. On
// error nothing changes. Status is never touched; the tick index is only
// folded into range when the loop gets shorter than the current position.
func (s *State) ApplyUpdate(u Update) error {
	tempo, meter, loop := s.tempo, s.meter, s.loop
	if u.BPM != nil {
		tempo.BPM = *u.BPM
	}
	if u.BeatsPerMeasure != nil {
		meter.BeatsPerMeasure = *u.BeatsPerMeasure
	}
	if u.BeatUnit != nil {
		meter.BeatUnit = *u.BeatUnit
	}
	if u.MeasuresPerLoop != nil {
		loop.MeasuresPerLoop = *u.MeasuresPerLoop
	}
	if err := tempo.Validate(); err != nil {
		return err
	}
	if err := meter.Validate(); err != nil {
		return err
	}
	if err := loop.Validate(); err != nil {
		return err
	}
	if BeatInterval(tempo, meter) < MinBeatInterval {
		return &ValidationError{Field: FieldBPM, Value: tempo.BPM, Reason: fmt.Sprintf("beats shorter than %s at %s", MinBeatInterval, meter)}
	}

	s.tempo, s.meter, s.loop = tempo, meter, loop
	if n := s.LoopLength(); s.tickIndex >= n {
		s.tickIndex %= n
	}
	return nil
}

// Reset clears the tick index so the next Advance yields tick 0.
func (s *State) Reset() {
	s.tickIndex = -1
}

// Advance moves to the next tick, wrapping at the loop boundary, and
// returns it. ScheduledTime is left for the caller.
func (s *State) Advance() TickEvent {
	s.tickIndex = (s.tickIndex + 1) % s.LoopLength()
	return TickEvent{
		TickIndex: s.tickIndex,
		Downbeat:  s.tickIndex%s.meter.BeatsPerMeasure == 0,
	}
}

// Snapshot returns the consumer-facing view of the state.
func (s *State) Snapshot() Snapshot {
	return Snapshot{
		BPM:             s.tempo.BPM,
		BeatsPerMeasure: s.meter.BeatsPerMeasure,
		BeatUnit:        s.meter.BeatUnit,
		MeasuresPerLoop: s.loop.MeasuresPerLoop,
		CurrentTick:     max(s.tickIndex%s.meter.BeatsPerMeasure, 0),
		CurrentMeasure:  max(s.tickIndex/s.meter.BeatsPerMeasure, 0),
		Playing:         s.status == Playing,
	}
}
