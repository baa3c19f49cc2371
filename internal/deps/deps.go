package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"clipnote/internal/config"
)

// Requirement defines an external binary the pipeline relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements lists the external binaries the configured pipeline needs.
// The local transcriber is optional when the cloud engine is selected.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Media downloader",
			Command:     cfg.Media.YtdlpBinary,
			Description: "Fetches source media and metadata",
		},
		{
			Name:        "Frame extractor",
			Command:     cfg.Media.FFmpegBinary,
			Description: "Extracts audio and keyframe images",
		},
		{
			Name:        "Media inspector",
			Command:     cfg.Media.FFprobeBinary,
			Description: "Reads container metadata for duration probing",
			Optional:    true,
		},
		{
			Name:        "Local transcriber",
			Command:     cfg.Transcription.WhisperBinary,
			Description: "Runs whisper.cpp transcription on device",
			Optional:    cfg.Transcription.Engine == config.EngineCloud,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		resolved, err := exec.LookPath(cmd)
		if err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Command = resolved
		status.Available = true
		results = append(results, status)
	}
	return results
}
