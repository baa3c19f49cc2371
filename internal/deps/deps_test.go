package deps

import (
	"os"
	"path/filepath"
	"testing"

	"clipnote/internal/config"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Unconfigured", Command: "  "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	if !results[0].Available {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[0].Detail != "" {
		t.Fatalf("unexpected detail for available dependency: %s", results[0].Detail)
	}

	if results[1].Available {
		t.Fatalf("expected missing binary to be unavailable")
	}
	if results[1].Detail == "" {
		t.Fatalf("expected detail message for missing binary")
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}

	if results[2].Available {
		t.Fatalf("expected unconfigured requirement to be unavailable")
	}
	if results[2].Detail != "command not configured" {
		t.Fatalf("unexpected detail for unconfigured requirement: %s", results[2].Detail)
	}
}

func TestRequirementsMarkWhisperOptionalForCloudEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Transcription.Engine = config.EngineCloud

	var whisper *Requirement
	reqs := Requirements(&cfg)
	for i := range reqs {
		if reqs[i].Command == cfg.Transcription.WhisperBinary {
			whisper = &reqs[i]
		}
	}
	if whisper == nil {
		t.Fatal("expected a requirement for the whisper binary")
	}
	if !whisper.Optional {
		t.Fatal("expected whisper requirement to be optional with the cloud engine")
	}

	cfg.Transcription.Engine = config.EngineLocal
	for _, req := range Requirements(&cfg) {
		if req.Command == cfg.Transcription.WhisperBinary && req.Optional {
			t.Fatal("expected whisper requirement to be mandatory with the local engine")
		}
	}
}
