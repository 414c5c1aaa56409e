package common

import (
	"encoding/json"
	"testing"
)

func TestUpdateParams_OmitsUnsetFields(t *testing.T) {
	bpm := 90.0
	data, err := json.Marshal(UpdateParams{BPM: &bpm})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"bpm":90}` {
		t.Errorf("got %s", data)
	}
}

func TestStartParams_ExplicitZeroIsKept(t *testing.T) {
	var p StartParams
	if err := json.Unmarshal([]byte(`{"bpm":0,"measuresPerLoop":2}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.BPM == nil || *p.BPM != 0 {
		t.Errorf("explicit zero bpm lost: %+v", p)
	}
	if p.BeatsPerMeasure != nil || p.BeatUnit != nil {
		t.Errorf("omitted fields set: %+v", p)
	}
	if p.MeasuresPerLoop == nil || *p.MeasuresPerLoop != 2 {
		t.Errorf("measuresPerLoop = %v", p.MeasuresPerLoop)
	}
}
