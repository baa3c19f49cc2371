// Package subtitles fetches provider subtitle tracks for a job. Tracks are
// fetched concurrently with independent failure domains: a malformed or
// unreachable track becomes a warning, never a stage failure.
package subtitles
