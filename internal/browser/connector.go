package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clipnote/internal/config"
	"clipnote/internal/logging"
	"clipnote/internal/services"
)

// dialFunc establishes one session attempt. Overridden in tests.
type dialFunc func(ctx context.Context, url string) (*Session, error)

// Connector caches at most one live browser session shared across all
// keyframe-extraction jobs. Acquire is single-flight: concurrent callers
// serialize on the connector mutex, so a reconnect happens once, never as a
// storm of parallel dials.
type Connector struct {
	cfg    *config.Config
	logger *slog.Logger
	dial   dialFunc

	mu      sync.Mutex
	session *Session
}

// NewConnector constructs the connector from configuration.
func NewConnector(cfg *config.Config, logger *slog.Logger) *Connector {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "browser"))
	}
	return &Connector{cfg: cfg, logger: logger, dial: dialSession}
}

// WithDialer overrides the dial function (used in tests).
func (c *Connector) WithDialer(dial func(ctx context.Context, url string) (*Session, error)) *Connector {
	c.dial = dial
	return c
}

// Acquire returns the cached session when it is still alive, otherwise
// reconnects with the configured bounded retry budget. After exhausting the
// budget it fails with a connector-unavailable error.
func (c *Connector) Acquire(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && c.session.Alive() {
		return c.session, nil
	}
	if c.session != nil {
		c.session = nil
	}

	attempts := c.cfg.Browser.ConnectAttempts
	if attempts <= 0 {
		attempts = 1
	}
	delay := c.cfg.ConnectDelay()

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, services.Wrap(services.ErrCancelled, "browser", "acquire session", "", err)
		}

		session, err := c.dial(ctx, c.cfg.Browser.WebsocketURL)
		if err == nil {
			c.session = session
			c.watch(session)
			if c.logger != nil {
				c.logger.Info("browser session established",
					logging.Int("attempt", attempt))
			}
			return session, nil
		}
		lastErr = err
		if c.logger != nil {
			c.logger.Debug("browser connect attempt failed",
				logging.Int("attempt", attempt),
				logging.Error(err))
		}
		if attempt < attempts && delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, services.Wrap(services.ErrCancelled, "browser", "acquire session", "", ctx.Err())
			}
		}
	}

	return nil, services.Wrap(services.ErrConnectorUnavailable, "browser", "acquire session",
		"Browser automation surface unreachable; check browser.websocket_url and that the browser is running",
		lastErr)
}

// watch invalidates the cached handle when the session drops out-of-band, so
// the next Acquire reconnects instead of handing out a dead session.
func (c *Connector) watch(session *Session) {
	go func() {
		<-session.Closed()
		c.mu.Lock()
		if c.session == session {
			c.session = nil
		}
		c.mu.Unlock()
		if c.logger != nil {
			c.logger.Warn("browser session disconnected")
		}
	}()
}

// Invalidate drops the cached session explicitly.
func (c *Connector) Invalidate() {
	c.mu.Lock()
	session := c.session
	c.session = nil
	c.mu.Unlock()
	if session != nil {
		_ = session.Close()
	}
}

// Connected reports whether a live session is currently cached.
func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil && c.session.Alive()
}

// Close shuts the connector down.
func (c *Connector) Close() {
	c.Invalidate()
}
