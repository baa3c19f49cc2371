package transcribe

import (
	"context"
	"fmt"
	"log/slog"

	"clipnote/internal/config"
	"clipnote/internal/transcript"
)

// Engine converts an audio asset into a timestamped transcript.
type Engine interface {
	Name() string
	Transcribe(ctx context.Context, audioPath, language string, onProgress func(percent float64, message string)) (*transcript.Transcript, error)
}

// NewEngine constructs the engine selected by configuration.
func NewEngine(cfg *config.Config, logger *slog.Logger) (Engine, error) {
	switch cfg.Transcription.Engine {
	case config.EngineLocal:
		return NewLocalEngine(cfg, logger), nil
	case config.EngineCloud:
		return NewCloudEngine(cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown transcription engine %q", cfg.Transcription.Engine)
	}
}
