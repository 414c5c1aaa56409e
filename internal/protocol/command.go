package protocol

import (
	"github.com/metroloop/metroloop/internal/transport"
)

// Command tags.
const (
	TagStart  = "start"
	TagStop   = "stop"
	TagUpdate = "update"
)

// Command is a consumer to scheduler message. The set of implementations
// is closed: Start, Stop and Update.
type Command interface {
	Tag() string
	isCommand()
}

// Start begins playback with a complete set of transport settings.
type Start struct {
	BPM             float64 `json:"bpm"`
	BeatsPerMeasure int     `json:"beatsPerMeasure"`
	BeatUnit        int     `json:"beatUnit"`
	MeasuresPerLoop int     `json:"measuresPerLoop"`
}

// NewStart builds a start command from transport settings.
func NewStart(s transport.Settings) Start {
	return Start{
		BPM:             s.Tempo.BPM,
		BeatsPerMeasure: s.Meter.BeatsPerMeasure,
		BeatUnit:        s.Meter.BeatUnit,
		MeasuresPerLoop: s.Loop.MeasuresPerLoop,
	}
}

// Settings returns the transport settings carried by the command.
func (c Start) Settings() transport.Settings {
	return transport.Settings{
		Tempo: transport.Tempo{BPM: c.BPM},
		Meter: transport.Meter{BeatsPerMeasure: c.BeatsPerMeasure, BeatUnit: c.BeatUnit},
		Loop:  transport.Loop{MeasuresPerLoop: c.MeasuresPerLoop},
	}
}

func (Start) Tag() string { return TagStart }
func (Start) isCommand()  {}

func (c Start) MarshalJSON() ([]byte, error) {
	type body Start
	return marshalTagged(TagStart, body(c))
}

// Stop halts playback.
type Stop struct{}

func (Stop) Tag() string { return TagStop }
func (Stop) isCommand()  {}

func (Stop) MarshalJSON() ([]byte, error) {
	return marshalTagged(TagStop, struct{}{})
}

// Update changes any subset of tempo, meter and loop.
type Update struct {
	BPM             *float64 `json:"bpm,omitempty"`
	BeatsPerMeasure *int     `json:"beatsPerMeasure,omitempty"`
	BeatUnit        *int     `json:"beatUnit,omitempty"`
	MeasuresPerLoop *int     `json:"measuresPerLoop,omitempty"`
}

// NewUpdate builds an update command from a transport update.
func NewUpdate(u transport.Update) Update {
	return Update{
		BPM:             u.BPM,
		BeatsPerMeasure: u.BeatsPerMeasure,
		BeatUnit:        u.BeatUnit,
		MeasuresPerLoop: u.MeasuresPerLoop,
	}
}

// TransportUpdate returns the partial update carried by the command.
func (c Update) TransportUpdate() transport.Update {
	return transport.Update{
		BPM:             c.BPM,
		BeatsPerMeasure: c.BeatsPerMeasure,
		BeatUnit:        c.BeatUnit,
		MeasuresPerLoop: c.MeasuresPerLoop,
	}
}

func (Update) Tag() string { return TagUpdate }
func (Update) isCommand()  {}

func (c Update) MarshalJSON() ([]byte, error) {
	type body Update
	return marshalTagged(TagUpdate, body(c))
}
