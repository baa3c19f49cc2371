package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"

	"clipnote/internal/api"
	"clipnote/internal/config"
	"clipnote/internal/deps"
	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/workflow"
)

// Daemon coordinates background processing and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *jobs.Store
	workflow *workflow.Manager

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *jobs.Store, logger *slog.Logger, wf *workflow.Manager) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	lockPath := filepath.Join(cfg.Paths.DataDir, "clipnoted.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, fails over interrupted jobs, and launches
// the workflow manager and the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another clipnote daemon instance is already running")
	}

	if count, err := d.store.MarkInterrupted(ctx); err != nil {
		d.logger.Warn("failed to mark interrupted jobs", logging.Error(err))
	} else if count > 0 {
		d.logger.Info("marked interrupted jobs from previous run", logging.Int64("count", count))
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		cancel()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("clipnote daemon started",
		logging.String("lock", d.lockPath),
		logging.String("api", d.api.Addr()),
	)
	return nil
}

// Stop ends background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("clipnote daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Addr returns the bound API address once Start has succeeded.
func (d *Daemon) Addr() string {
	return d.api.Addr()
}

// Status returns the current daemon status payload.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	stats := map[string]int{}
	if summary, err := d.store.Stats(ctx); err == nil {
		for st, count := range summary.ByStage {
			stats[string(st)] = count
		}
	}
	return api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DBPath:       d.store.Path(),
		LockFilePath: d.lockPath,
		JobStats:     stats,
		StageHealth:  api.FromHealth(d.workflow.Health(ctx)),
		Dependencies: d.dependencies(),
	}
}

func (d *Daemon) dependencies() []api.DependencyStatus {
	statuses := deps.CheckBinaries(deps.Requirements(d.cfg))
	out := make([]api.DependencyStatus, 0, len(statuses))
	for _, status := range statuses {
		dep := api.DependencyStatus{
			Name:      status.Name,
			Command:   status.Command,
			Available: status.Available,
			Detail:    status.Detail,
		}
		if status.Available {
			dep.Detail = status.Command
		}
		out = append(out, dep)
	}
	return out
}
