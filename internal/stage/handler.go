package stage

import (
	"context"

	"clipnote/internal/jobs"
)

// Reporter receives stage-local progress in the 0-100 range. Implementations
// remap it into the job's overall percentage.
type Reporter interface {
	Report(percent float64, message string)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(percent float64, message string)

// Report implements Reporter.
func (f ReporterFunc) Report(percent float64, message string) {
	if f != nil {
		f(percent, message)
	}
}

// NopReporter discards progress updates.
var NopReporter Reporter = ReporterFunc(nil)

// Handler describes the contract the workflow manager needs from each stage.
type Handler interface {
	Prepare(context.Context, *jobs.Job) error
	Execute(context.Context, *jobs.Job, Reporter) error
	HealthCheck(context.Context) Health
}
