// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Inspect executes ffprobe and returns a parsed Result; helper methods on
// Result expose stream counts, duration, size, and bitrate without string
// handling at call sites.
package ffprobe
