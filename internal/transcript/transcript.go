package transcript

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Segment is one timed span of recognized speech. Times are seconds from the
// start of the media.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns the segment length in seconds, never negative.
func (s Segment) Duration() float64 {
	if s.End <= s.Start {
		return 0
	}
	return s.End - s.Start
}

// Transcript is the ordered result of a transcription run.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Engine   string    `json:"engine,omitempty"`
	Segments []Segment `json:"segments"`
}

// Normalize sorts segments by start time, drops empty text, and clamps
// negative or inverted spans. Small overlaps between adjacent segments are
// tolerated; the text is kept as produced by the engine.
func (t *Transcript) Normalize() {
	cleaned := t.Segments[:0]
	for _, seg := range t.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		if seg.Text == "" {
			continue
		}
		if seg.Start < 0 {
			seg.Start = 0
		}
		if seg.End < seg.Start {
			seg.End = seg.Start
		}
		cleaned = append(cleaned, seg)
	}
	t.Segments = cleaned
	sort.SliceStable(t.Segments, func(i, j int) bool {
		return t.Segments[i].Start < t.Segments[j].Start
	})
}

// Empty reports whether the transcript carries no usable text.
func (t *Transcript) Empty() bool {
	return t == nil || len(t.Segments) == 0
}

// Duration returns the end time of the last segment.
func (t *Transcript) Duration() float64 {
	if t.Empty() {
		return 0
	}
	var max float64
	for _, seg := range t.Segments {
		if seg.End > max {
			max = seg.End
		}
	}
	return max
}

// FullText joins all segment text with single spaces.
func (t *Transcript) FullText() string {
	if t.Empty() {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, seg := range t.Segments {
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// Window returns the text of segments overlapping [at-radius, at+radius],
// used to caption a keyframe with the speech around its timestamp.
func (t *Transcript) Window(at, radius float64) string {
	if t.Empty() || radius < 0 {
		return ""
	}
	lo, hi := at-radius, at+radius
	var parts []string
	for _, seg := range t.Segments {
		if seg.End < lo {
			continue
		}
		if seg.Start > hi {
			break
		}
		parts = append(parts, seg.Text)
	}
	return strings.Join(parts, " ")
}

// SegmentAt returns the segment covering the timestamp, or the nearest
// segment by start-time distance when none covers it.
func (t *Transcript) SegmentAt(at float64) (Segment, bool) {
	if t.Empty() {
		return Segment{}, false
	}
	best := t.Segments[0]
	bestDist := distance(best, at)
	for _, seg := range t.Segments {
		if seg.Start <= at && at <= seg.End {
			return seg, true
		}
		if d := distance(seg, at); d < bestDist {
			best, bestDist = seg, d
		}
	}
	return best, true
}

func distance(seg Segment, at float64) float64 {
	switch {
	case at < seg.Start:
		return seg.Start - at
	case at > seg.End:
		return at - seg.End
	default:
		return 0
	}
}

// RenderSRT renders the transcript in SubRip format with 1-based cue indexes.
func (t *Transcript) RenderSRT() string {
	if t.Empty() {
		return ""
	}
	var b strings.Builder
	for i, seg := range t.Segments {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, srtTimestamp(seg.Start), srtTimestamp(seg.End), seg.Text)
	}
	return b.String()
}

func srtTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	d := time.Duration(seconds * float64(time.Second))
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	ms := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}

// Marshal encodes the transcript for storage in the job record.
func (t *Transcript) Marshal() (string, error) {
	payload, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Unmarshal decodes a transcript stored in a job record.
func Unmarshal(raw string) (*Transcript, error) {
	if strings.TrimSpace(raw) == "" {
		return &Transcript{}, nil
	}
	var t Transcript
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}
