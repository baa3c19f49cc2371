// Package progress carries per-job progress events from the workflow manager
// to API consumers. Delivery is at-least-once over a bounded per-job buffer;
// readers resynchronize from the job record when they fall behind.
package progress
