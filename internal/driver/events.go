package driver

import "time"

// Stage is a step of translating one file.
type Stage uint8

const (
	StageQueued Stage = iota
	StageParse
	StageBridge
	StageAnalyze
	StageGenerate
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageQueued:
		return "queued"
	case StageParse:
		return "parse"
	case StageBridge:
		return "bridge"
	case StageAnalyze:
		return "analyze"
	case StageGenerate:
		return "generate"
	default:
		return "done"
	}
}

// Status is the outcome reported with StageDone.
type Status uint8

const (
	StatusWorking Status = iota
	StatusOK
	StatusFallbacks // translated with at least one fallback
	StatusCached
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusFallbacks:
		return "fallbacks"
	case StatusCached:
		return "cached"
	case StatusFailed:
		return "failed"
	default:
		return "working"
	}
}

// Event describes the progress of one file.
type Event struct {
	File    string
	Stage   Stage
	Status  Status
	Elapsed time.Duration
}

// Observer receives events from the worker goroutines; it must be safe
// for concurrent use.
type Observer func(Event)

func (o Observer) emit(ev Event) {
	if o != nil {
		o(ev)
	}
}
