// Package browser maintains the shared connection to the headless-browser
// automation surface used for player-based frame capture. One session is
// cached process-wide; acquisition reconnects with a bounded retry budget
// and invalidates the handle on out-of-band disconnects.
package browser
