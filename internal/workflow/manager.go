package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"clipnote/internal/browser"
	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/keyframes"
	"clipnote/internal/logging"
	"clipnote/internal/media"
	"clipnote/internal/notifications"
	"clipnote/internal/progress"
	"clipnote/internal/stage"
	"clipnote/internal/synthesize"
	"clipnote/internal/transcribe"
)

// Manager sequences jobs through the pipeline stages.
type Manager struct {
	cfg    *config.Config
	store  *jobs.Store
	logger *slog.Logger
	bus    *progress.Bus

	handlers  map[jobs.Stage]stage.Handler
	spans     map[jobs.Stage]span
	connector *browser.Connector
	notifier  notifications.Service

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	sem       chan struct{}
	cancelled map[int64]bool
	active    map[int64]bool
}

// NewManager constructs a manager with the production stage handlers.
func NewManager(cfg *config.Config, store *jobs.Store, logger *slog.Logger, bus *progress.Bus) *Manager {
	local := transcribe.NewLocalEngine(cfg, logger)
	engines := map[string]transcribe.Engine{
		config.EngineLocal: local,
		config.EngineCloud: transcribe.NewCloudEngine(cfg, logger),
	}
	connector := browser.NewConnector(cfg, logger)
	handlers := map[jobs.Stage]stage.Handler{
		jobs.StageDownloading:  media.NewDownloader(cfg, logger, local),
		jobs.StageTranscribing: transcribe.NewTranscriber(cfg, logger, engines),
		jobs.StageExtractingKeyframe: keyframes.NewExtractor(
			cfg,
			logger,
			keyframes.NewFFmpegCapturer(cfg),
			keyframes.NewBrowserCapturer(cfg, connector),
		),
		jobs.StageGenerating: synthesize.NewSynthesizer(cfg, logger, synthesize.NewGenerator(cfg)),
	}
	m := NewManagerWithHandlers(cfg, store, logger, bus, handlers)
	m.connector = connector
	return m
}

// NewManagerWithHandlers constructs a manager with injected stage handlers
// (used in tests).
func NewManagerWithHandlers(cfg *config.Config, store *jobs.Store, logger *slog.Logger, bus *progress.Bus, handlers map[jobs.Stage]stage.Handler) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	if bus == nil {
		bus = progress.NewBus(0)
	}
	concurrency := cfg.Workflow.MaxConcurrentJobs
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Manager{
		cfg:       cfg,
		store:     store,
		logger:    logging.NewComponentLogger(logger, "workflow"),
		bus:       bus,
		handlers:  handlers,
		spans:     stageSpans(cfg),
		notifier:  notifications.NewService(cfg),
		sem:       make(chan struct{}, concurrency),
		cancelled: make(map[int64]bool),
		active:    make(map[int64]bool),
	}
}

// Bus exposes the progress bus the manager publishes to.
func (m *Manager) Bus() *progress.Bus {
	return m.bus
}

// Start begins accepting scheduled work. The provided context bounds all job
// processing; Stop or context cancellation ends it.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.runCtx = runCtx
	m.cancel = cancel
	m.running = true
	return nil
}

// Stop ends processing and waits for in-flight jobs to reach a stage
// boundary or yield to context cancellation.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	if m.connector != nil {
		m.connector.Close()
	}
}

// Running reports whether the manager accepts work.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// span is one stage's share of the overall progress percentage.
type span struct {
	lo float64
	hi float64
}

func (s span) at(stagePercent float64) float64 {
	if stagePercent < 0 {
		stagePercent = 0
	}
	if stagePercent > 100 {
		stagePercent = 100
	}
	return s.lo + stagePercent/100*(s.hi-s.lo)
}

func stageSpans(cfg *config.Config) map[jobs.Stage]span {
	weights := []struct {
		stage  jobs.Stage
		weight int
	}{
		{jobs.StageDownloading, cfg.Workflow.DownloadWeight},
		{jobs.StageTranscribing, cfg.Workflow.TranscribeWeight},
		{jobs.StageExtractingKeyframe, cfg.Workflow.KeyframeWeight},
		{jobs.StageGenerating, cfg.Workflow.GenerateWeight},
	}
	total := 0
	for _, w := range weights {
		if w.weight > 0 {
			total += w.weight
		}
	}
	spans := make(map[jobs.Stage]span, len(weights))
	lo := 0.0
	for _, w := range weights {
		var share float64
		if total > 0 && w.weight > 0 {
			share = 100 * float64(w.weight) / float64(total)
		} else if total == 0 {
			share = 100 / float64(len(weights))
		}
		spans[w.stage] = span{lo: lo, hi: lo + share}
		lo += share
	}
	// Rounding drift must not keep a finished job below 100.
	last := spans[jobs.StageGenerating]
	last.hi = 100
	spans[jobs.StageGenerating] = last
	return spans
}
