package driver

import (
	"decant/internal/observ"
)

// TimingPayload is the serialisable timing of one run.
type TimingPayload struct {
	Kind    string               `json:"kind"`
	Path    string               `json:"path,omitempty"`
	TotalMS float64              `json:"total_ms"`
	Phases  []observ.PhaseReport `json:"phases"`
}

// Timings converts a timer report of path.
func Timings(kind, path string, r observ.Report) TimingPayload {
	if kind == "" {
		kind = "translate"
	}
	return TimingPayload{Kind: kind, Path: path, TotalMS: r.TotalMS, Phases: r.Phases}
}
