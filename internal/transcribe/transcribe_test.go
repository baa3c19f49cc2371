package transcribe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/transcribe"
	"clipnote/internal/transcript"
)

const whisperJSON = `{
	"result": {"language": "en"},
	"transcription": [
		{"offsets": {"from": 0, "to": 2500}, "text": " Hello there. "},
		{"offsets": {"from": 2500, "to": 5000}, "text": " General remarks."},
		{"offsets": {"from": 5000, "to": 5000}, "text": "   "}
	]
}`

func TestParseWhisperJSON(t *testing.T) {
	tr, err := transcribe.ParseWhisperJSON([]byte(whisperJSON))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if tr.Language != "en" {
		t.Fatalf("language = %q", tr.Language)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if tr.Segments[0].Start != 0 || tr.Segments[0].End != 2.5 {
		t.Fatalf("offsets not converted to seconds: %+v", tr.Segments[0])
	}
	if tr.Segments[0].Text != "Hello there." {
		t.Fatalf("text not trimmed: %q", tr.Segments[0].Text)
	}
}

func TestParseWhisperJSONRejectsEmpty(t *testing.T) {
	if _, err := transcribe.ParseWhisperJSON([]byte(`{"transcription":[]}`)); err == nil {
		t.Fatal("expected error for empty transcription")
	}
}

type stubEngine struct {
	result *transcript.Transcript
	err    error
	calls  int
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Transcribe(_ context.Context, _, _ string, onProgress func(float64, string)) (*transcript.Transcript, error) {
	s.calls++
	if onProgress != nil {
		onProgress(50, "halfway")
	}
	return s.result, s.err
}

func engines(e transcribe.Engine) map[string]transcribe.Engine {
	return map[string]transcribe.Engine{config.EngineLocal: e}
}

func audioJob(t *testing.T) *jobs.Job {
	t.Helper()
	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(audio, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &jobs.Job{ID: 1, AudioPath: audio, OutputDir: dir}
}

func TestExecutePersistsTranscriptAndArtifacts(t *testing.T) {
	cfg := config.Default()
	engine := &stubEngine{result: &transcript.Transcript{Segments: []transcript.Segment{
		{Start: 0, End: 2, Text: "one"},
		{Start: 2, End: 4, Text: "two"},
	}}}
	tr := transcribe.NewTranscriber(&cfg, nil, engines(engine))

	job := audioJob(t)
	if err := tr.Execute(context.Background(), job, stage.NopReporter); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if job.TranscriptJSON == "" {
		t.Fatal("transcript not persisted on job")
	}
	if job.Duration != 4 {
		t.Fatalf("duration not backfilled: %v", job.Duration)
	}
	for _, name := range []string{"transcript.json", "transcript.srt"} {
		if _, err := os.Stat(filepath.Join(job.OutputDir, name)); err != nil {
			t.Fatalf("artifact %s missing: %v", name, err)
		}
	}
}

func TestExecuteSkipsWhenTranscriptPresent(t *testing.T) {
	cfg := config.Default()
	engine := &stubEngine{}
	tr := transcribe.NewTranscriber(&cfg, nil, engines(engine))

	existing := &transcript.Transcript{Segments: []transcript.Segment{{Start: 0, End: 1, Text: "kept"}}}
	encoded, err := existing.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	job := audioJob(t)
	job.TranscriptJSON = encoded

	if err := tr.Execute(context.Background(), job, stage.NopReporter); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if engine.calls != 0 {
		t.Fatalf("engine ran despite existing transcript")
	}
}

func TestExecuteClassifiesRateLimit(t *testing.T) {
	cfg := config.Default()
	engine := &stubEngine{err: errors.New("googleapi: Error 429: RESOURCE_EXHAUSTED")}
	tr := transcribe.NewTranscriber(&cfg, nil, engines(engine))

	err := tr.Execute(context.Background(), audioJob(t), stage.NopReporter)
	if err == nil {
		t.Fatal("expected failure")
	}
	details := services.Details(err)
	if details.Kind != services.KindTranscriptionFailed {
		t.Fatalf("kind = %s", details.Kind)
	}
	if !strings.Contains(details.Message, "rate limit") {
		t.Fatalf("message not normalized: %q", details.Message)
	}
}

func TestExecuteRejectsEmptyResult(t *testing.T) {
	cfg := config.Default()
	engine := &stubEngine{result: &transcript.Transcript{}}
	tr := transcribe.NewTranscriber(&cfg, nil, engines(engine))

	err := tr.Execute(context.Background(), audioJob(t), stage.NopReporter)
	if err == nil {
		t.Fatal("expected failure for empty transcript")
	}
	if services.KindOf(err) != services.KindTranscriptionFailed {
		t.Fatalf("kind = %s", services.KindOf(err))
	}
}

func TestPrepareRequiresAudio(t *testing.T) {
	cfg := config.Default()
	tr := transcribe.NewTranscriber(&cfg, nil, engines(&stubEngine{}))

	err := tr.Prepare(context.Background(), &jobs.Job{ID: 2, AudioPath: "/nonexistent/audio.wav"})
	if err == nil {
		t.Fatal("expected error for missing audio")
	}
}

func TestCloudErrorPredicates(t *testing.T) {
	if !transcribe.IsRateLimited(errors.New("quota exceeded")) {
		t.Fatal("quota error not detected")
	}
	if transcribe.IsRateLimited(errors.New("connection refused")) {
		t.Fatal("false positive rate limit")
	}
	if !transcribe.IsAuthFailure(errors.New("API key not valid")) {
		t.Fatal("auth error not detected")
	}
}

func TestCloudEngineParsesFencedSegments(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.CloudModel = "test-model"
	engine := transcribe.NewCloudEngine(&cfg, nil).WithCaller(
		func(context.Context, string, []byte, string) (string, error) {
			return "```json\n[{\"start\":0,\"end\":1.5,\"text\":\"hi\"}]\n```", nil
		})

	dir := t.TempDir()
	audio := filepath.Join(dir, "audio.wav")
	if err := os.WriteFile(audio, []byte("pcm"), 0o644); err != nil {
		t.Fatal(err)
	}

	tr, err := engine.Transcribe(context.Background(), audio, "en", nil)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(tr.Segments) != 1 || tr.Segments[0].Text != "hi" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
}

func TestEnsureModelAppendsFilenameToDirectoryURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/resolve/main/ggml-base.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ggml-bytes"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Transcription.ModelDir = t.TempDir()
	cfg.Transcription.WhisperModel = "base"
	// Directory-shaped value, the same form Default() ships.
	cfg.Transcription.ModelDownloadURL = srv.URL + "/resolve/main/"

	engine := transcribe.NewLocalEngine(&cfg, nil)
	var last float64
	if err := engine.EnsureModel(context.Background(), func(pct float64, _ string) { last = pct }); err != nil {
		t.Fatalf("ensure model: %v", err)
	}
	if last != 100 {
		t.Fatalf("final progress = %v, want 100", last)
	}
	data, err := os.ReadFile(engine.ModelPath())
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(data) != "ggml-bytes" {
		t.Fatalf("unexpected model content %q", data)
	}
}

func TestEnsureModelAcceptsFullFileURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/mirror/custom.bin" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("mirror-bytes"))
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Transcription.ModelDir = t.TempDir()
	cfg.Transcription.ModelDownloadURL = srv.URL + "/mirror/custom.bin"

	engine := transcribe.NewLocalEngine(&cfg, nil)
	if err := engine.EnsureModel(context.Background(), nil); err != nil {
		t.Fatalf("ensure model: %v", err)
	}
	data, err := os.ReadFile(engine.ModelPath())
	if err != nil {
		t.Fatalf("read model: %v", err)
	}
	if string(data) != "mirror-bytes" {
		t.Fatalf("unexpected model content %q", data)
	}
}
