package keyframes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"clipnote/internal/config"
	"clipnote/internal/fileutil"
	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/transcript"
)

// Extractor owns the keyframe stage: it generates scored candidates with the
// job's strategy, enforces the shared selection invariants, captures the
// frames, and persists the sequence on the job record.
type Extractor struct {
	cfg     *config.Config
	logger  *slog.Logger
	file    Capturer
	surface Capturer
}

// NewExtractor constructs the stage handler. file captures straight from the
// downloaded video; surface captures through the browser connector.
func NewExtractor(cfg *config.Config, logger *slog.Logger, file, surface Capturer) *Extractor {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "keyframes"))
	}
	return &Extractor{cfg: cfg, logger: logger, file: file, surface: surface}
}

// strategyFor resolves the effective strategy for a job.
func (e *Extractor) strategyFor(job *jobs.Job) string {
	if job.Strategy != "" {
		return job.Strategy
	}
	return e.cfg.Keyframes.Strategy
}

// needsTranscript reports whether the strategy reads transcript text.
func needsTranscript(strategy string) bool {
	switch strategy {
	case config.StrategyKeyword, config.StrategySemantic, config.StrategyHybrid:
		return true
	}
	return false
}

// usesSurface reports whether the strategy captures through the automation
// surface rather than the video file.
func usesSurface(strategy string) bool {
	switch strategy {
	case config.StrategySemantic, config.StrategyVisual, config.StrategyHybrid:
		return true
	}
	return false
}

// Prepare verifies the stage inputs exist for the job's strategy.
func (e *Extractor) Prepare(ctx context.Context, job *jobs.Job) error {
	strategy := e.strategyFor(job)
	if !config.ValidStrategy(strategy) {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "resolve strategy",
			fmt.Sprintf("Unknown keyframe strategy %q", strategy), nil)
	}
	if !usesSurface(strategy) && !fileutil.NonEmptyFile(job.VideoPath) {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "check video",
			"Video artifact is missing; the downloading stage did not complete", nil)
	}
	if needsTranscript(strategy) && job.TranscriptJSON == "" {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "check transcript",
			fmt.Sprintf("Strategy %q needs a transcript but none is present", strategy), nil)
	}
	return nil
}

// Execute produces the keyframe sequence for the job.
func (e *Extractor) Execute(ctx context.Context, job *jobs.Job, report stage.Reporter) error {
	logger := logging.WithContext(ctx, e.logger)
	strategy := e.strategyFor(job)

	if existing, err := Unmarshal(job.KeyframesJSON); err == nil && len(existing) > 0 && framesOnDisk(existing) {
		logger.Info("keyframes already present, skipping extraction",
			logging.Int("frames", len(existing)))
		report.Report(100, "Keyframes already present")
		return nil
	}

	tr := &transcript.Transcript{}
	if job.TranscriptJSON != "" {
		parsed, err := transcript.Unmarshal(job.TranscriptJSON)
		if err != nil {
			return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "decode transcript",
				"Stored transcript is unreadable", err)
		}
		tr = parsed
	}

	duration := job.Duration
	if duration <= 0 {
		duration = tr.Duration()
	}
	if duration <= 0 {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "resolve duration",
			"Media duration is unknown; cannot place frames", nil)
	}

	report.Report(0, "Scoring candidate frames")
	candidates, err := e.buildCandidates(ctx, job, tr, strategy, duration, report)
	if err != nil {
		return err
	}

	kf := e.cfg.Keyframes
	maxFrames := kf.MaxFrames
	if strategy == config.StrategyUniform && kf.TargetFrames < maxFrames {
		maxFrames = kf.TargetFrames
	}
	selected := selectCandidates(candidates, kf.MinIntervalSeconds, maxFrames)
	if len(selected) == 0 {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "select candidates",
			"No candidate frames survived selection", nil)
	}

	frames, err := e.captureAll(ctx, job, tr, strategy, selected, report)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "capture frames",
			"Every frame capture failed; no keyframes produced", nil)
	}

	encoded, err := Marshal(frames)
	if err != nil {
		return services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "encode keyframes",
			"Failed to encode keyframe sequence", err)
	}
	job.KeyframesJSON = encoded

	report.Report(100, "Keyframes extracted")
	logger.Info("keyframe extraction finished",
		logging.String("strategy", strategy),
		logging.Int("frames", len(frames)))
	return nil
}

func (e *Extractor) buildCandidates(ctx context.Context, job *jobs.Job, tr *transcript.Transcript, strategy string, duration float64, report stage.Reporter) ([]candidate, error) {
	kf := e.cfg.Keyframes
	switch strategy {
	case config.StrategyUniform:
		return uniformCandidates(duration, kf.TargetFrames), nil
	case config.StrategyKeyword:
		candidates := keywordCandidates(tr, kf.Keywords)
		if len(candidates) == 0 {
			return nil, services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "scan keywords",
				"No transcript segment matched the configured keywords", nil)
		}
		return candidates, nil
	case config.StrategySemantic:
		return semanticCandidates(tr, kf.SampleIntervalSecs), nil
	case config.StrategyVisual:
		return e.visualCandidates(ctx, job, duration, report)
	case config.StrategyHybrid:
		visual, err := e.visualCandidates(ctx, job, duration, report)
		if err != nil {
			return nil, err
		}
		semantic := semanticCandidates(tr, kf.SampleIntervalSecs)
		return mergeHybrid(semantic, visual, kf.SampleIntervalSecs, kf), nil
	default:
		return nil, services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "resolve strategy",
			fmt.Sprintf("Unknown keyframe strategy %q", strategy), nil)
	}
}

// visualCandidates captures the sampling grid through the surface and scores
// each position by luma difference from its predecessor. Individual capture
// failures skip the sample; connector loss fails the stage.
func (e *Extractor) visualCandidates(ctx context.Context, job *jobs.Job, duration float64, report stage.Reporter) ([]candidate, error) {
	logger := logging.WithContext(ctx, e.logger)
	samples := sampleTimestamps(duration, e.cfg.Keyframes.SampleIntervalSecs)
	if len(samples) == 0 {
		return nil, nil
	}

	var candidates []candidate
	var previous *signature
	for i, ts := range samples {
		data, err := e.surface.Capture(ctx, job, ts)
		if err != nil {
			if fatal := fatalCaptureErr(ctx, err); fatal != nil {
				return nil, fatal
			}
			job.AddWarning(fmt.Sprintf("sample capture at %.1fs skipped: %v", ts, err))
			logger.Warn("sample capture failed", logging.Float64("timestamp", ts), logging.Error(err))
			continue
		}
		sig, err := frameSignature(data)
		if err != nil {
			job.AddWarning(fmt.Sprintf("sample at %.1fs unreadable: %v", ts, err))
			continue
		}
		if previous != nil {
			candidates = append(candidates, candidate{Timestamp: ts, Score: sig.diff(*previous)})
		}
		prev := sig
		previous = &prev
		report.Report(float64(i+1)/float64(len(samples))*40, "Scoring candidate frames")
	}
	return localMaxima(candidates), nil
}

func (e *Extractor) captureAll(ctx context.Context, job *jobs.Job, tr *transcript.Transcript, strategy string, selected []candidate, report stage.Reporter) ([]Keyframe, error) {
	logger := logging.WithContext(ctx, e.logger)

	capturer := e.file
	if usesSurface(strategy) {
		capturer = e.surface
	}

	captionRadius := e.cfg.Keyframes.MinIntervalSeconds
	var frames []Keyframe
	for i, cand := range selected {
		data, err := capturer.Capture(ctx, job, cand.Timestamp)
		if err != nil {
			if fatal := fatalCaptureErr(ctx, err); fatal != nil {
				return nil, fatal
			}
			job.AddWarning(fmt.Sprintf("frame capture at %.1fs skipped: %v", cand.Timestamp, err))
			logger.Warn("frame capture failed",
				logging.Float64("timestamp", cand.Timestamp),
				logging.Error(err))
			continue
		}

		path := filepath.Join(job.OutputDir, fmt.Sprintf("frame-%03d.png", len(frames)+1))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return nil, services.Wrap(services.ErrCaptureFailed, "extracting_keyframes", "write frame",
				"Failed to write keyframe image; check output directory permissions", err)
		}

		frames = append(frames, Keyframe{
			Timestamp: cand.Timestamp,
			Path:      path,
			Caption:   tr.Window(cand.Timestamp, captionRadius),
			Score:     cand.Score,
			Strategy:  strategy,
		})
		report.Report(40+float64(i+1)/float64(len(selected))*60, "Capturing keyframes")
	}
	return frames, nil
}

// fatalCaptureErr distinguishes stage-fatal failures (cancellation, surface
// unreachable) from per-frame failures that downgrade to warnings.
func fatalCaptureErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "extracting_keyframes", "capture", jobs.CancelMessage, ctx.Err())
	}
	if errors.Is(err, services.ErrConnectorUnavailable) || errors.Is(err, services.ErrCancelled) {
		return err
	}
	return nil
}

func framesOnDisk(frames []Keyframe) bool {
	for _, frame := range frames {
		if !fileutil.NonEmptyFile(frame.Path) {
			return false
		}
	}
	return true
}

// HealthCheck reports readiness for the configured default strategy.
func (e *Extractor) HealthCheck(ctx context.Context) stage.Health {
	if usesSurface(e.cfg.Keyframes.Strategy) && e.surface == nil {
		return stage.Unhealthy("keyframes", "surface capturer not configured")
	}
	return stage.Healthy("keyframes")
}
