// Package keyframes selects and captures representative frames from a job's
// video. Five strategies produce scored candidates; selection enforces a
// minimum spacing between frames and a maximum count, keeping the highest
// scores when the cap binds.
package keyframes
