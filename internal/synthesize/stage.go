package synthesize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/keyframes"
	"clipnote/internal/logging"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/transcript"
)

// Synthesizer owns the generating stage: it renders the style prompt from
// transcript and keyframes, calls the model collaborator, and persists the
// resulting document.
type Synthesizer struct {
	cfg       *config.Config
	logger    *slog.Logger
	generator TextGenerator
}

// NewSynthesizer constructs the generating stage handler.
func NewSynthesizer(cfg *config.Config, logger *slog.Logger, generator TextGenerator) *Synthesizer {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "synthesizer"))
	}
	return &Synthesizer{cfg: cfg, logger: logger, generator: generator}
}

// Prepare verifies the style and the stage inputs.
func (s *Synthesizer) Prepare(ctx context.Context, job *jobs.Job) error {
	if !ValidStyle(job.Style) {
		return services.Wrap(services.ErrGenerationFailed, "generating", "validate style",
			fmt.Sprintf("Unknown document style %q", job.Style), nil)
	}
	if job.TranscriptJSON == "" {
		return services.Wrap(services.ErrGenerationFailed, "generating", "check transcript",
			"No transcript is present; the transcribing stage did not complete", nil)
	}
	return nil
}

// Execute generates the document and writes the final artifact.
func (s *Synthesizer) Execute(ctx context.Context, job *jobs.Job, report stage.Reporter) error {
	logger := logging.WithContext(ctx, s.logger)

	if strings.TrimSpace(job.Document) != "" {
		logger.Info("document already present, skipping generation")
		report.Report(100, "Document already present")
		return nil
	}

	tr, err := transcript.Unmarshal(job.TranscriptJSON)
	if err != nil {
		return services.Wrap(services.ErrGenerationFailed, "generating", "decode transcript",
			"Stored transcript is unreadable", err)
	}
	frames, err := keyframes.Unmarshal(job.KeyframesJSON)
	if err != nil {
		return services.Wrap(services.ErrGenerationFailed, "generating", "decode keyframes",
			"Stored keyframe sequence is unreadable", err)
	}

	prompt, err := BuildPrompt(job.Style, job.Title, tr, frames)
	if err != nil {
		return services.Wrap(services.ErrGenerationFailed, "generating", "build prompt", "", err)
	}

	report.Report(10, "Generating document")
	if timeout := s.cfg.LLMTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	document, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return services.Wrap(services.ErrCancelled, "generating", "model call", jobs.CancelMessage, ctx.Err())
		}
		return services.Wrap(services.ErrGenerationFailed, "generating", "model call",
			"Document generation failed", err)
	}

	document = strings.TrimSpace(document)
	if document == "" {
		return services.Wrap(services.ErrGenerationFailed, "generating", "validate output",
			"Model returned an empty document", nil)
	}
	job.Document = document

	if job.OutputDir != "" {
		path := filepath.Join(job.OutputDir, "document.md")
		if err := os.WriteFile(path, []byte(document+"\n"), 0o644); err != nil {
			logger.Warn("document artifact write failed", logging.Error(err))
			job.AddWarning(fmt.Sprintf("document artifact not written: %v", err))
		}
	}

	report.Report(100, "Document generated")
	logger.Info("generation finished",
		logging.String("style", job.Style),
		logging.Int("chars", len(document)))
	return nil
}

// HealthCheck reports whether the model collaborator is configured.
func (s *Synthesizer) HealthCheck(ctx context.Context) stage.Health {
	if s.cfg.LLM.APIKey == "" {
		return stage.Unhealthy("synthesizer", "llm.api_key is empty")
	}
	return stage.Healthy("synthesizer")
}
