// Package workflow drives jobs through the conversion pipeline.
//
// The Manager owns the job state machine: it accepts submissions, runs each
// job through the registered stage handlers on its own goroutine, remaps
// stage-local progress into the overall percentage using configured weights,
// classifies failures, and publishes progress events to the bus. Cancellation
// is cooperative and takes effect at stage boundaries.
package workflow
