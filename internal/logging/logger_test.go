package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"clipnote/internal/logging"
	"clipnote/internal/services"
)

func TestNewRejectsUnknownFormat(t *testing.T) {
	_, err := logging.New(logging.Options{Format: "yaml"})
	if err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestConsoleOutputContainsAttrs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{path}})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	logger.Info("stage started", logging.String("stage", "transcribing"), logging.Int64("job_id", 7))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log output: %v", err)
	}
	line := string(data)
	for _, want := range []string{"INFO", "stage started", "stage=transcribing", "job_id=7"} {
		if !strings.Contains(line, want) {
			t.Fatalf("log line %q missing %q", line, want)
		}
	}
}

func TestWithContextAddsJobFields(t *testing.T) {
	ctx := services.WithJobID(context.Background(), 42)
	ctx = services.WithStage(ctx, "transcribing")

	fields := logging.ContextFields(ctx)
	keys := make(map[string]bool, len(fields))
	for _, f := range fields {
		keys[f.Key] = true
	}
	if !keys[logging.FieldJobID] || !keys[logging.FieldStage] {
		t.Fatalf("expected job_id and stage fields, got %v", keys)
	}
}

func TestWithContextNilLoggerIsSafe(t *testing.T) {
	logger := logging.WithContext(context.Background(), nil)
	logger.Info("no panic expected")
}
