package transport

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Defaults used by a freshly created State.
const (
	DefaultBPM             = 120.0
	DefaultBeatsPerMeasure = 4
	DefaultBeatUnit        = 4
	DefaultMeasuresPerLoop = 2
)

// MinBeatInterval is the shortest beat a transport accepts.
const MinBeatInterval = time.Millisecond

// Status is the play/stop status of a transport.
type Status int

const (
	Stopped Status = iota
	Playing
)

func (s Status) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// Tempo is the speed of a quarter note in beats per minute.
type Tempo struct {
	BPM float64
}

// Validate reports whether the tempo is usable.
func (t Tempo) Validate() error {
	if math.IsNaN(t.BPM) || math.IsInf(t.BPM, 0) {
		return &ValidationError{Field: FieldBPM, Value: t.BPM, Reason: "must be a finite number"}
	}
	if t.BPM <= 0 {
		return &ValidationError{Field: FieldBPM, Value: t.BPM, Reason: "must be greater than zero"}
	}
	return nil
}

// Meter is a time signature: BeatsPerMeasure beats of note value BeatUnit.
type Meter struct {
	BeatsPerMeasure int
	BeatUnit        int
}

// DefaultMeter is common time, 4/4.
var DefaultMeter = Meter{BeatsPerMeasure: DefaultBeatsPerMeasure, BeatUnit: DefaultBeatUnit}

// Validate reports whether the meter is usable.
func (m Meter) Validate() error {
	if m.BeatsPerMeasure < 1 {
		return &ValidationError{Field: FieldBeatsPerMeasure, Value: m.BeatsPerMeasure, Reason: "must be at least 1"}
	}
	if m.BeatUnit < 1 || m.BeatUnit&(m.BeatUnit-1) != 0 {
		return &ValidationError{Field: FieldBeatUnit, Value: m.BeatUnit, Reason: "must be a power of two"}
	}
	return nil
}

func (m Meter) String() string {
	return fmt.Sprintf("%d/%d", m.BeatsPerMeasure, m.BeatUnit)
}

// ParseMeter parses a time signature written as "beats/unit", e.g. "7/8".
func ParseMeter(s string) (Meter, error) {
	beats, unit, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok {
		return Meter{}, fmt.Errorf("could not parse time signature %q", s)
	}
	b, err := strconv.Atoi(strings.TrimSpace(beats))
	if err != nil {
		return Meter{}, fmt.Errorf("could not convert time signature %q to numeric values", s)
	}
	u, err := strconv.Atoi(strings.TrimSpace(unit))
	if err != nil {
		return Meter{}, fmt.Errorf("could not convert time signature %q to numeric values", s)
	}
	m := Meter{BeatsPerMeasure: b, BeatUnit: u}
	if err := m.Validate(); err != nil {
		return Meter{}, err
	}
	return m, nil
}

// Loop is the number of measures after which the tick index wraps.
type Loop struct {
	MeasuresPerLoop int
}

// Validate reports whether the loop length is usable.
func (l Loop) Validate() error {
	if l.MeasuresPerLoop < 1 {
		return &ValidationError{Field: FieldMeasuresPerLoop, Value: l.MeasuresPerLoop, Reason: "must be at least 1"}
	}
	return nil
}

// Settings is a complete tempo/meter/loop triple, as carried by start.
type Settings struct {
	Tempo Tempo
	Meter Meter
	Loop  Loop
}

// DefaultSettings returns 120 bpm, 4/4, two measures per loop.
func DefaultSettings() Settings {
	return Settings{
		Tempo: Tempo{BPM: DefaultBPM},
		Meter: DefaultMeter,
		Loop:  Loop{MeasuresPerLoop: DefaultMeasuresPerLoop},
	}
}

// Update converts the settings into an update that sets every field.
func (s Settings) Update() Update {
	bpm := s.Tempo.BPM
	beats := s.Meter.BeatsPerMeasure
	unit := s.Meter.BeatUnit
	measures := s.Loop.MeasuresPerLoop
	return Update{
		BPM:             &bpm,
		BeatsPerMeasure: &beats,
		BeatUnit:        &unit,
		MeasuresPerLoop: &measures,
	}
}

// Update is a partial change of tempo, meter or loop. Nil fields are left
// untouched.
type Update struct {
	BPM             *float64
	BeatsPerMeasure *int
	BeatUnit        *int
	MeasuresPerLoop *int
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.BPM == nil && u.BeatsPerMeasure == nil && u.BeatUnit == nil && u.MeasuresPerLoop == nil
}

// TickEvent is one beat produced by Advance.
type TickEvent struct {
	TickIndex int
	Downbeat  bool
	// ScheduledTime is the monotonic due time of the tick, filled in by the
	// scheduler.
	ScheduledTime time.Duration
}

// Snapshot is the read-only view of a transport handed to polling
// consumers. The -1 "no tick yet" sentinel is never visible here.
type Snapshot struct {
	BPM             float64 `json:"bpm"`
	BeatsPerMeasure int     `json:"beatsPerMeasure"`
	BeatUnit        int     `json:"beatUnit"`
	MeasuresPerLoop int     `json:"measuresPerLoop"`
	CurrentTick     int     `json:"currentTick"`
	CurrentMeasure  int     `json:"currentMeasure"`
	Playing         bool    `json:"playing"`
}
