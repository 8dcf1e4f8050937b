package core

import "time"

// Recorder receives correlation events for metrics. Implementations must be
// safe for concurrent use.
type Recorder interface {
	TelemetryQueried(samples int)
	WindowRejected(filter string)
	AttemptFinished(outcome string, elapsed time.Duration, rate float64)
}

// Attempt outcomes passed to Recorder.AttemptFinished.
const (
	OutcomeAccepted = "accepted"
	OutcomeNoWindow = "no_window"
	OutcomeFailed   = "failed"
)

type noopRecorder struct{}

func (noopRecorder) TelemetryQueried(int)                           {}
func (noopRecorder) WindowRejected(string)                          {}
func (noopRecorder) AttemptFinished(string, time.Duration, float64) {}
