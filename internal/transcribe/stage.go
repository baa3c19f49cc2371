package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"clipnote/internal/config"
	"clipnote/internal/fileutil"
	"clipnote/internal/jobs"
	"clipnote/internal/language"
	"clipnote/internal/logging"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/transcript"
)

// Transcriber owns the transcribing stage: it runs the job's engine and
// persists the transcript on the job record plus JSON/SRT artifacts.
type Transcriber struct {
	cfg     *config.Config
	logger  *slog.Logger
	engines map[string]Engine
}

// NewTranscriber constructs the transcribing stage handler. engines maps the
// engine identifier carried on each job to its implementation.
func NewTranscriber(cfg *config.Config, logger *slog.Logger, engines map[string]Engine) *Transcriber {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "transcriber"))
	}
	return &Transcriber{cfg: cfg, logger: logger, engines: engines}
}

// engineFor resolves the engine for a job, falling back to the configured
// default when the job carries none.
func (t *Transcriber) engineFor(job *jobs.Job) (Engine, error) {
	name := job.Engine
	if name == "" {
		name = t.cfg.Transcription.Engine
	}
	engine, ok := t.engines[name]
	if !ok || engine == nil {
		return nil, fmt.Errorf("no transcription engine registered for %q", name)
	}
	return engine, nil
}

// Prepare verifies the audio artifact from the downloading stage exists.
func (t *Transcriber) Prepare(ctx context.Context, job *jobs.Job) error {
	if !fileutil.NonEmptyFile(job.AudioPath) {
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "check audio",
			"Audio artifact is missing; the downloading stage did not complete", nil)
	}
	return nil
}

// Execute transcribes the audio. When a transcript from an earlier run is
// already on the job the stage is skipped, preserving committed work.
func (t *Transcriber) Execute(ctx context.Context, job *jobs.Job, report stage.Reporter) error {
	logger := logging.WithContext(ctx, t.logger)

	if job.TranscriptJSON != "" {
		if existing, err := transcript.Unmarshal(job.TranscriptJSON); err == nil && !existing.Empty() {
			logger.Info("transcript already present, skipping engine run")
			report.Report(100, "Transcript already present")
			return nil
		}
	}

	engine, err := t.engineFor(job)
	if err != nil {
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "select engine", "", err)
	}

	// Engines expect ISO 639-1; the config value may be a word or 3-letter code.
	hint := language.ToISO2(t.cfg.Transcription.Language)

	report.Report(0, "Transcribing audio")
	tr, err := engine.Transcribe(ctx, job.AudioPath, hint, func(pct float64, msg string) {
		report.Report(pct, msg)
	})
	if err != nil {
		return t.classify(ctx, err)
	}

	tr.Normalize()
	if tr.Empty() {
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "validate transcript",
			"Transcription produced no speech segments", nil)
	}
	if job.Duration <= 0 {
		job.Duration = tr.Duration()
	}

	encoded, err := tr.Marshal()
	if err != nil {
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "encode transcript",
			"Failed to encode transcript", err)
	}
	job.TranscriptJSON = encoded

	if err := t.writeArtifacts(job, tr, encoded); err != nil {
		logger.Warn("transcript artifact write failed", logging.Error(err))
		job.AddWarning(fmt.Sprintf("transcript artifacts not written: %v", err))
	}

	report.Report(100, "Transcription complete")
	logger.Info("transcription finished",
		logging.String("engine", engine.Name()),
		logging.String("language", language.DisplayName(tr.Language)),
		logging.Int("segments", len(tr.Segments)))
	return nil
}

func (t *Transcriber) writeArtifacts(job *jobs.Job, tr *transcript.Transcript, encoded string) error {
	if job.OutputDir == "" {
		return nil
	}
	jsonPath := filepath.Join(job.OutputDir, "transcript.json")
	if err := os.WriteFile(jsonPath, []byte(encoded), 0o644); err != nil {
		return err
	}
	srtPath := filepath.Join(job.OutputDir, "transcript.srt")
	return os.WriteFile(srtPath, []byte(tr.RenderSRT()), 0o644)
}

func (t *Transcriber) classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "transcribing", "engine run", jobs.CancelMessage, ctx.Err())
	}
	switch {
	case IsRateLimited(err):
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "engine run",
			"Transcription provider rate limit reached; try again later", err)
	case IsAuthFailure(err):
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "engine run",
			"Transcription provider rejected the API key; check transcription.cloud_api_key", err)
	default:
		return services.Wrap(services.ErrTranscriptionFailed, "transcribing", "engine run",
			"Transcription failed", err)
	}
}

// HealthCheck reports readiness of the configured engine.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	switch t.cfg.Transcription.Engine {
	case config.EngineLocal:
		if _, err := exec.LookPath(t.cfg.Transcription.WhisperBinary); err != nil {
			return stage.Unhealthy("transcriber", fmt.Sprintf("whisper binary not found: %v", err))
		}
	case config.EngineCloud:
		if t.cfg.Transcription.CloudAPIKey == "" {
			return stage.Unhealthy("transcriber", "cloud engine selected but cloud_api_key is empty")
		}
	}
	return stage.Healthy("transcriber")
}
