package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/metroloop/metroloop/internal/transport"
)

// ProtocolError reports a message that could not be decoded.
type ProtocolError struct {
	Tag    string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := "protocol error"
	if e.Tag != "" {
		msg += fmt.Sprintf(" in %q message", e.Tag)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error { return e.Err }

type envelope struct {
	Message *string `json:"message"`
}

func readTag(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", &ProtocolError{Reason: "malformed message", Err: err}
	}
	if env.Message == nil {
		return "", &ProtocolError{Reason: `missing "message" field`}
	}
	return *env.Message, nil
}

// startBody mirrors Start with pointers so missing fields can be told apart
// from zero values.
type startBody struct {
	BPM             *float64 `json:"bpm"`
	BeatsPerMeasure *int     `json:"beatsPerMeasure"`
	BeatUnit        *int     `json:"beatUnit"`
	MeasuresPerLoop *int     `json:"measuresPerLoop"`
}

// Decode parses one command. Unknown tags, malformed bodies and start
// commands lacking a required field yield a *ProtocolError. A start without
// "beatUnit" gets a quarter note. Values are not range checked here.
func Decode(data []byte) (Command, error) {
	tag, err := readTag(data)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagStart:
		var b startBody
		if err := unmarshalBody(tag, data, &b); err != nil {
			return nil, err
		}
		switch {
		case b.BPM == nil:
			return nil, &ProtocolError{Tag: tag, Reason: `missing "bpm"`}
		case b.BeatsPerMeasure == nil:
			return nil, &ProtocolError{Tag: tag, Reason: `missing "beatsPerMeasure"`}
		case b.MeasuresPerLoop == nil:
			return nil, &ProtocolError{Tag: tag, Reason: `missing "measuresPerLoop"`}
		}
		c := Start{
			BPM:             *b.BPM,
			BeatsPerMeasure: *b.BeatsPerMeasure,
			BeatUnit:        transport.DefaultBeatUnit,
			MeasuresPerLoop: *b.MeasuresPerLoop,
		}
		if b.BeatUnit != nil {
			c.BeatUnit = *b.BeatUnit
		}
		return c, nil
	case TagStop:
		return Stop{}, nil
	case TagUpdate:
		var c Update
		if err := unmarshalBody(tag, data, &c); err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, &ProtocolError{Tag: tag, Reason: "unknown command"}
	}
}

// DecodeEvent parses one event.
func DecodeEvent(data []byte) (Event, error) {
	tag, err := readTag(data)
	if err != nil {
		return nil, err
	}
	var ev Event
	switch tag {
	case TagTick:
		var e Tick
		err = unmarshalBody(tag, data, &e)
		ev = e
	case TagFatal:
		var e Fatal
		err = unmarshalBody(tag, data, &e)
		ev = e
	case TagSnapshot:
		var e Snapshot
		err = unmarshalBody(tag, data, &e.Snapshot)
		ev = e
	case TagError:
		var e Rejected
		err = unmarshalBody(tag, data, &e)
		ev = e
	default:
		return nil, &ProtocolError{Tag: tag, Reason: "unknown event"}
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// Encode returns the wire form of an event.
func Encode(ev Event) ([]byte, error) {
	if ev == nil {
		return nil, &ProtocolError{Reason: "nil event"}
	}
	return json.Marshal(ev)
}

// EncodeCommand returns the wire form of a command.
func EncodeCommand(c Command) ([]byte, error) {
	if c == nil {
		return nil, &ProtocolError{Reason: "nil command"}
	}
	return json.Marshal(c)
}

func unmarshalBody(tag string, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return &ProtocolError{Tag: tag, Reason: "malformed body", Err: err}
	}
	return nil
}

// marshalTagged encodes body as a JSON object with the tag prepended as
// its "message" field. body must encode to an object.
func marshalTagged(tag string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"message":`)
	t, _ := json.Marshal(tag)
	buf.Write(t)
	if b = bytes.TrimSpace(b); len(b) > 2 {
		buf.WriteByte(',')
		buf.Write(b[1 : len(b)-1])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
