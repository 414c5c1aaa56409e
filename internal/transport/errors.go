package transport

import "fmt"

// Field names reported by ValidationError.
const (
	FieldBPM             = "bpm"
	FieldBeatsPerMeasure = "beatsPerMeasure"
	FieldBeatUnit        = "beatUnit"
	FieldMeasuresPerLoop = "measuresPerLoop"
)

// ValidationError reports a rejected tempo, meter or loop value.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
