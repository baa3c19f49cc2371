package synthesize

import (
	"fmt"
	"strings"

	"clipnote/internal/keyframes"
	"clipnote/internal/transcript"
)

const promptHeader = `You turn a video transcript into a document. Image
markers of the form ![frame](path) mark where a captured keyframe belongs;
keep each marker in your output at the position that matches the
surrounding content.

%s

Title: %s

Transcript with frame markers:
---
%s
---`

// BuildPrompt renders the style-keyed template with keyframe captions
// interleaved at their relative position in the transcript.
func BuildPrompt(style, title string, tr *transcript.Transcript, frames []keyframes.Keyframe) (string, error) {
	instructions, ok := instructionsFor(style)
	if !ok {
		return "", fmt.Errorf("unknown document style %q", style)
	}
	if title == "" {
		title = "Untitled"
	}
	return fmt.Sprintf(promptHeader, instructions, title, InterleaveFrames(tr, frames)), nil
}

// InterleaveFrames renders the transcript as text with each keyframe's
// marker and caption inserted after the last segment that starts before the
// frame's timestamp.
func InterleaveFrames(tr *transcript.Transcript, frames []keyframes.Keyframe) string {
	var b strings.Builder
	next := 0
	writeFramesUpTo := func(limit float64) {
		for next < len(frames) && frames[next].Timestamp <= limit {
			frame := frames[next]
			fmt.Fprintf(&b, "\n![frame](%s)", frame.Path)
			if frame.Caption != "" {
				fmt.Fprintf(&b, "\n(frame context: %s)", frame.Caption)
			}
			b.WriteString("\n")
			next++
		}
	}

	if tr != nil {
		for _, seg := range tr.Segments {
			writeFramesUpTo(seg.Start)
			b.WriteString(seg.Text)
			b.WriteString(" ")
		}
	}
	writeFramesUpTo(1 << 30)
	return strings.TrimSpace(b.String())
}
