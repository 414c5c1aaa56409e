package common

// StartParams are the parameters of transport.start. Omitted fields take
// the daemon's configured defaults.
type StartParams struct {
	BPM             *float64 `json:"bpm,omitempty"`
	BeatsPerMeasure *int     `json:"beatsPerMeasure,omitempty"`
	BeatUnit        *int     `json:"beatUnit,omitempty"`
	MeasuresPerLoop *int     `json:"measuresPerLoop,omitempty"`
}

// UpdateParams are the parameters of transport.update. Omitted fields keep
// their current value.
type UpdateParams struct {
	BPM             *float64 `json:"bpm,omitempty"`
	BeatsPerMeasure *int     `json:"beatsPerMeasure,omitempty"`
	BeatUnit        *int     `json:"beatUnit,omitempty"`
	MeasuresPerLoop *int     `json:"measuresPerLoop,omitempty"`
}

// VersionInfo is the result of system.getVersion.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildType string `json:"buildType,omitempty"`
}
