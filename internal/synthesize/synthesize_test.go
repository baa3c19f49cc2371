package synthesize_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/keyframes"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/synthesize"
	"clipnote/internal/transcript"
)

type stubGenerator struct {
	output string
	err    error
	prompt string
	calls  int
}

func (s *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	s.calls++
	s.prompt = prompt
	return s.output, s.err
}

func sampleTranscript(t *testing.T) string {
	t.Helper()
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Start: 0, End: 10, Text: "Setting up the cluster."},
		{Start: 10, End: 20, Text: "Deploying the service."},
		{Start: 20, End: 30, Text: "Checking the dashboards."},
	}}
	encoded, err := tr.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	return encoded
}

func synthJob(t *testing.T) *jobs.Job {
	t.Helper()
	return &jobs.Job{
		ID:             1,
		Title:          "Cluster Walkthrough",
		Style:          synthesize.StyleSummary,
		OutputDir:      t.TempDir(),
		TranscriptJSON: sampleTranscript(t),
	}
}

func TestInterleaveFramesPlacesMarkersByTimestamp(t *testing.T) {
	tr := &transcript.Transcript{Segments: []transcript.Segment{
		{Start: 0, End: 10, Text: "first"},
		{Start: 10, End: 20, Text: "second"},
		{Start: 20, End: 30, Text: "third"},
	}}
	frames := []keyframes.Keyframe{
		{Timestamp: 15, Path: "frame-001.png", Caption: "mid shot"},
		{Timestamp: 99, Path: "frame-002.png"},
	}
	text := synthesize.InterleaveFrames(tr, frames)

	firstIdx := strings.Index(text, "first")
	markerIdx := strings.Index(text, "frame-001.png")
	thirdIdx := strings.Index(text, "third")
	tailIdx := strings.Index(text, "frame-002.png")
	if !(firstIdx < markerIdx && markerIdx < thirdIdx) {
		t.Fatalf("marker not placed between segments:\n%s", text)
	}
	if tailIdx < thirdIdx {
		t.Fatalf("late frame not appended at end:\n%s", text)
	}
	if !strings.Contains(text, "mid shot") {
		t.Fatalf("caption missing:\n%s", text)
	}
}

func TestBuildPromptRejectsUnknownStyle(t *testing.T) {
	if _, err := synthesize.BuildPrompt("haiku", "t", &transcript.Transcript{}, nil); err == nil {
		t.Fatal("expected error for unknown style")
	}
}

func TestValidStyleEnumeration(t *testing.T) {
	for _, style := range synthesize.Styles() {
		if !synthesize.ValidStyle(style) {
			t.Fatalf("style %q not valid", style)
		}
	}
	if synthesize.ValidStyle("screenplay") {
		t.Fatal("unexpected style accepted")
	}
}

func TestExecutePersistsDocument(t *testing.T) {
	cfg := config.Default()
	gen := &stubGenerator{output: "# Summary\n\nAll good."}
	syn := synthesize.NewSynthesizer(&cfg, nil, gen)

	job := synthJob(t)
	if err := syn.Execute(context.Background(), job, stage.NopReporter); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if job.Document == "" {
		t.Fatal("document not set on job")
	}
	data, err := os.ReadFile(filepath.Join(job.OutputDir, "document.md"))
	if err != nil {
		t.Fatalf("document artifact: %v", err)
	}
	if !strings.Contains(string(data), "All good.") {
		t.Fatalf("artifact content wrong:\n%s", data)
	}
	if !strings.Contains(gen.prompt, "Cluster Walkthrough") {
		t.Fatal("title missing from prompt")
	}
}

func TestExecuteRejectsEmptyModelOutput(t *testing.T) {
	cfg := config.Default()
	syn := synthesize.NewSynthesizer(&cfg, nil, &stubGenerator{output: "   \n"})

	err := syn.Execute(context.Background(), synthJob(t), stage.NopReporter)
	if err == nil {
		t.Fatal("expected failure for empty output")
	}
	if services.KindOf(err) != services.KindGenerationFailed {
		t.Fatalf("kind = %s", services.KindOf(err))
	}
}

func TestExecuteClassifiesModelError(t *testing.T) {
	cfg := config.Default()
	syn := synthesize.NewSynthesizer(&cfg, nil, &stubGenerator{err: errors.New("backend exploded")})

	err := syn.Execute(context.Background(), synthJob(t), stage.NopReporter)
	if services.KindOf(err) != services.KindGenerationFailed {
		t.Fatalf("kind = %s", services.KindOf(err))
	}
}

func TestExecuteSkipsWhenDocumentPresent(t *testing.T) {
	cfg := config.Default()
	gen := &stubGenerator{output: "fresh"}
	syn := synthesize.NewSynthesizer(&cfg, nil, gen)

	job := synthJob(t)
	job.Document = "existing document"
	if err := syn.Execute(context.Background(), job, stage.NopReporter); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if gen.calls != 0 {
		t.Fatal("generator ran despite existing document")
	}
	if job.Document != "existing document" {
		t.Fatal("existing document overwritten")
	}
}

func TestPrepareRejectsUnknownStyle(t *testing.T) {
	cfg := config.Default()
	syn := synthesize.NewSynthesizer(&cfg, nil, &stubGenerator{})

	job := synthJob(t)
	job.Style = "screenplay"
	if err := syn.Prepare(context.Background(), job); err == nil {
		t.Fatal("expected prepare error for unknown style")
	}
}
