package transcript_test

import (
	"strings"
	"testing"

	"clipnote/internal/transcript"
)

func sample() *transcript.Transcript {
	return &transcript.Transcript{
		Language: "en",
		Segments: []transcript.Segment{
			{Start: 0, End: 4.5, Text: "Welcome back to the channel."},
			{Start: 4.5, End: 9.2, Text: "Today we look at goroutine leaks."},
			{Start: 9.0, End: 15.0, Text: "First, the happy path."},
		},
	}
}

func TestNormalizeOrdersAndDropsEmpty(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Start: 10, End: 12, Text: "second"},
		{Start: 2, End: 1, Text: "  first  "},
		{Start: 5, End: 6, Text: "   "},
	}}
	tr.Normalize()

	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if tr.Segments[0].Text != "first" || tr.Segments[1].Text != "second" {
		t.Fatalf("unexpected order: %+v", tr.Segments)
	}
	if tr.Segments[0].End != tr.Segments[0].Start {
		t.Fatalf("inverted span not clamped: %+v", tr.Segments[0])
	}
}

func TestWindowCollectsOverlappingSegments(t *testing.T) {
	tr := sample()
	got := tr.Window(9.0, 1.0)
	if !strings.Contains(got, "goroutine leaks") || !strings.Contains(got, "happy path") {
		t.Fatalf("window missing overlapping text: %q", got)
	}
	if strings.Contains(got, "Welcome") {
		t.Fatalf("window included out-of-range text: %q", got)
	}
}

func TestSegmentAtCoversAndFallsBackToNearest(t *testing.T) {
	tr := sample()

	seg, ok := tr.SegmentAt(5.0)
	if !ok || seg.Text != "Today we look at goroutine leaks." {
		t.Fatalf("expected covering segment, got %+v ok=%v", seg, ok)
	}

	seg, ok = tr.SegmentAt(100.0)
	if !ok || seg.Text != "First, the happy path." {
		t.Fatalf("expected nearest segment fallback, got %+v", seg)
	}
}

func TestRenderSRT(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Start: 0, End: 2.5, Text: "hello"},
		{Start: 61.25, End: 65, Text: "world"},
	}}
	srt := tr.RenderSRT()

	if !strings.Contains(srt, "1\n00:00:00,000 --> 00:00:02,500\nhello") {
		t.Fatalf("first cue malformed:\n%s", srt)
	}
	if !strings.Contains(srt, "2\n00:01:01,250 --> 00:01:05,000\nworld") {
		t.Fatalf("second cue malformed:\n%s", srt)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	tr := sample()
	raw, err := tr.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := transcript.Unmarshal(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.Language != "en" || len(back.Segments) != 3 {
		t.Fatalf("round trip mismatch: %+v", back)
	}
}

func TestUnmarshalEmptyString(t *testing.T) {
	tr, err := transcript.Unmarshal("")
	if err != nil {
		t.Fatalf("unmarshal empty: %v", err)
	}
	if !tr.Empty() {
		t.Fatal("expected empty transcript")
	}
}
