package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/progress"
	"clipnote/internal/services"
	"clipnote/internal/stage"
)

// runJob advances a job stage by stage until it reaches a terminal stage,
// the run context ends, or a cancel request is honored at a boundary.
func (m *Manager) runJob(ctx context.Context, id int64) {
	m.mu.Lock()
	if m.active[id] {
		m.mu.Unlock()
		return
	}
	m.active[id] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.active, id)
		m.mu.Unlock()
	}()

	job, err := m.store.GetByID(ctx, id)
	if err != nil {
		m.logger.Error("failed to load scheduled job",
			logging.Int64(logging.FieldJobID, id),
			logging.Error(err),
		)
		return
	}
	for job.IsProcessing() {
		if ctx.Err() != nil {
			return
		}
		if m.cancelRequested(job.ID) {
			m.finishCancelled(ctx, job)
			return
		}
		if err := m.runStage(ctx, job); err != nil {
			return
		}
	}
}

func (m *Manager) runStage(ctx context.Context, job *jobs.Job) error {
	current := job.Stage
	sp := m.spans[current]

	handler, ok := m.handlers[current]
	if !ok {
		err := fmt.Errorf("no handler registered for stage %s", current)
		m.failJob(ctx, m.logger, job, err)
		return err
	}

	requestID := uuid.NewString()
	stageCtx := services.WithRequestID(services.WithStage(services.WithJobID(ctx, job.ID), string(current)), requestID)
	stageLogger := logging.WithContext(stageCtx, m.logger)

	stageStart := time.Now()
	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source", job.Source),
		logging.String("title", job.Title),
	)

	if err := handler.Prepare(stageCtx, job); err != nil {
		m.failJob(ctx, stageLogger, job, err)
		return err
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		m.failJob(ctx, stageLogger, job, wrapped)
		return wrapped
	}

	job.SetProgress(sp.lo, fmt.Sprintf("%s started", current.Label()))
	m.publish(job)

	execErr := handler.Execute(stageCtx, job, m.stageReporter(stageCtx, job))
	if execErr != nil {
		if ctx.Err() != nil {
			stageLogger.Debug("stage interrupted by shutdown")
			return execErr
		}
		m.failJob(ctx, stageLogger, job, execErr)
		return execErr
	}

	next, ok := jobs.NextStage(current)
	if !ok {
		next = jobs.StageCompleted
	}
	job.SetProgress(sp.hi, fmt.Sprintf("%s completed", current.Label()))
	job.Stage = next
	if next == jobs.StageCompleted {
		job.SetProgress(100, jobs.StageCompleted.Label())
		if _, err := m.store.SaveHistory(ctx, job); err != nil {
			stageLogger.Warn("failed to save history record", logging.Error(err))
		}
		m.clearCancel(job.ID)
	}
	if err := m.store.Update(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage result: %w", err)
		m.failJob(ctx, stageLogger, job, wrapped)
		return wrapped
	}
	m.publish(job)
	if job.Stage == jobs.StageCompleted {
		if err := m.notifier.NotifyJobCompleted(ctx, jobTitle(job), documentPath(job)); err != nil {
			stageLogger.Warn("failed to send completion notification", logging.Error(err))
		}
	}
	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(job.Stage)),
		logging.Float64("progress_percent", job.ProgressPercent),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// stageReporter remaps stage-local progress into the overall percentage. The
// overall value never decreases; moderate advances are persisted best-effort
// so status queries stay close to the live value.
func (m *Manager) stageReporter(ctx context.Context, job *jobs.Job) stage.Reporter {
	sp := m.spans[job.Stage]
	current := job.Stage
	lastPersisted := job.ProgressPercent
	return stage.ReporterFunc(func(percent float64, message string) {
		overall := sp.at(percent)
		if overall < job.ProgressPercent {
			overall = job.ProgressPercent
		}
		job.SetProgress(overall, message)
		m.bus.Publish(progress.Event{
			JobID:   job.ID,
			Stage:   current,
			Percent: overall,
			Message: job.ProgressMessage,
		})
		if overall-lastPersisted >= 1 {
			if err := m.store.Update(ctx, job); err == nil {
				lastPersisted = overall
			}
		}
	})
}

func (m *Manager) failJob(ctx context.Context, logger *slog.Logger, job *jobs.Job, cause error) {
	details := services.Details(cause)
	job.SetFailed(string(details.Kind), details.Message)
	if err := m.store.Update(ctx, job); err != nil {
		logger.Error("failed to persist job failure", logging.Error(err))
	}
	m.publish(job)
	m.clearCancel(job.ID)
	if err := m.notifier.NotifyJobFailed(ctx, jobTitle(job), details.Message); err != nil {
		logger.Warn("failed to send failure notification", logging.Error(err))
	}
	logger.Error("stage failed",
		logging.Error(cause),
		logging.String(logging.FieldErrorKind, string(details.Kind)),
		logging.String(logging.FieldEventType, "stage_failed"),
	)
}

func jobTitle(job *jobs.Job) string {
	if job.Title != "" {
		return job.Title
	}
	return job.Source
}

func documentPath(job *jobs.Job) string {
	if job.OutputDir == "" {
		return ""
	}
	return filepath.Join(job.OutputDir, "document.md")
}

func (m *Manager) finishCancelled(ctx context.Context, job *jobs.Job) {
	job.SetFailed(string(services.KindCancelled), jobs.CancelMessage)
	if err := m.store.Update(ctx, job); err != nil {
		m.logger.Error("failed to persist cancellation",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err),
		)
	}
	m.publish(job)
	m.clearCancel(job.ID)
	m.logger.Info("job cancelled",
		logging.Int64(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "job_cancelled"),
	)
}

func (m *Manager) publish(job *jobs.Job) {
	evt := progress.Event{
		JobID:   job.ID,
		Stage:   job.Stage,
		Percent: job.ProgressPercent,
		Message: job.ProgressMessage,
	}
	if job.Stage == jobs.StageError {
		evt.ErrorKind = job.ErrorKind
		evt.Error = job.ErrorMessage
	}
	m.bus.Publish(evt)
}
