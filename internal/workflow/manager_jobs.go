package workflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/progress"
	"clipnote/internal/services"
	"clipnote/internal/subtitles"
	"clipnote/internal/synthesize"
)

// SubmitRequest describes one conversion request.
type SubmitRequest struct {
	Source   string
	Style    string
	Engine   string
	Strategy string
	Tracks   []subtitles.Track
}

// Submit validates the request, persists a new job in the downloading stage,
// and schedules it. It returns as soon as the job is queued.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (*jobs.Job, error) {
	if !m.Running() {
		return nil, errors.New("workflow not running")
	}
	source := strings.TrimSpace(req.Source)
	if err := validateSource(source); err != nil {
		return nil, err
	}
	style := strings.TrimSpace(req.Style)
	if style == "" {
		style = synthesize.StyleNote
	}
	if !synthesize.ValidStyle(style) {
		return nil, fmt.Errorf("unknown style %q", req.Style)
	}
	engine := strings.TrimSpace(req.Engine)
	if engine != "" && !config.ValidEngine(engine) {
		return nil, fmt.Errorf("unknown transcription engine %q", req.Engine)
	}
	strategy := strings.TrimSpace(req.Strategy)
	if strategy != "" && !config.ValidStrategy(strategy) {
		return nil, fmt.Errorf("unknown keyframe strategy %q", req.Strategy)
	}

	job, err := m.store.NewJob(ctx, source, style, engine, strategy)
	if err != nil {
		return nil, err
	}
	if len(req.Tracks) > 0 {
		encoded, err := subtitles.EncodeTracks(req.Tracks)
		if err != nil {
			return nil, err
		}
		job.SubtitleTracksJSON = encoded
		if err := m.store.Update(ctx, job); err != nil {
			return nil, err
		}
	}
	m.logger.Info("job accepted",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String("source", source),
		logging.String("style", style),
		logging.String(logging.FieldEventType, "job_accepted"),
	)
	m.bus.Publish(progress.Event{
		JobID:   job.ID,
		Stage:   job.Stage,
		Percent: 0,
		Message: "Job accepted",
	})
	m.schedule(job.ID)
	return job, nil
}

// GetStatus returns the persisted snapshot for a job.
func (m *Manager) GetStatus(ctx context.Context, id int64) (*jobs.Job, error) {
	return m.store.GetByID(ctx, id)
}

// Cancel requests cooperative cancellation. The job keeps running until its
// current stage reaches a boundary; terminal jobs cannot be cancelled.
func (m *Manager) Cancel(ctx context.Context, id int64) error {
	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job.Stage.IsTerminal() {
		return fmt.Errorf("job %d already finished", id)
	}
	m.mu.Lock()
	m.cancelled[id] = true
	m.mu.Unlock()
	m.logger.Info("cancel requested",
		logging.Int64(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "cancel_requested"),
	)
	return nil
}

// Retry moves failed jobs back to the front of the pipeline and schedules
// them. With no ids it retries every failed job. Artifacts already on disk
// make the rerun stages skip their completed work.
func (m *Manager) Retry(ctx context.Context, ids ...int64) (int64, error) {
	if !m.Running() {
		return 0, errors.New("workflow not running")
	}
	count, err := m.store.RetryFailed(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	pending, err := m.store.List(ctx, jobs.StageDownloading)
	if err != nil {
		return count, err
	}
	for _, job := range pending {
		if job.ProgressMessage == "Retry requested" {
			m.schedule(job.ID)
		}
	}
	return count, nil
}

// schedule hands the job to a worker goroutine gated by the concurrency
// semaphore.
func (m *Manager) schedule(id int64) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ctx := m.runCtx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		select {
		case m.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-m.sem }()
		m.runJob(ctx, id)
	}()
}

func (m *Manager) cancelRequested(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled[id]
}

func (m *Manager) clearCancel(id int64) {
	m.mu.Lock()
	delete(m.cancelled, id)
	m.mu.Unlock()
}

func validateSource(source string) error {
	if source == "" {
		return services.Wrap(services.ErrSourceInvalid, "submit", "validate source", "Source reference must not be empty", nil)
	}
	if strings.Contains(source, "://") {
		parsed, err := url.Parse(source)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
			return services.Wrap(services.ErrSourceInvalid, "submit", "validate source", fmt.Sprintf("Unsupported source URL %q", source), err)
		}
		return nil
	}
	if _, err := os.Stat(source); err != nil {
		return services.Wrap(services.ErrSourceInvalid, "submit", "validate source", fmt.Sprintf("Source file %q is not readable", source), err)
	}
	return nil
}
