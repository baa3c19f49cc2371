package keyframes

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"clipnote/internal/browser"
	"clipnote/internal/config"
	"clipnote/internal/jobs"
	"clipnote/internal/media"
)

// Capturer produces the image bytes for one timestamp of a job's video.
type Capturer interface {
	Capture(ctx context.Context, job *jobs.Job, atSeconds float64) ([]byte, error)
}

// ffmpegCapturer extracts frames directly from the downloaded video file.
// Used by the strategies that need no rendered player output.
type ffmpegCapturer struct {
	binary string
}

// NewFFmpegCapturer constructs the file-based capturer.
func NewFFmpegCapturer(cfg *config.Config) Capturer {
	return &ffmpegCapturer{binary: cfg.Media.FFmpegBinary}
}

func (c *ffmpegCapturer) Capture(ctx context.Context, job *jobs.Job, atSeconds float64) ([]byte, error) {
	tmp, err := os.CreateTemp("", "clipnote-frame-*.png")
	if err != nil {
		return nil, fmt.Errorf("create temp frame: %w", err)
	}
	path := tmp.Name()
	tmp.Close()
	defer os.Remove(path)

	if err := media.ExtractFrame(ctx, c.binary, job.VideoPath, atSeconds, path); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// browserCapturer renders frames through the automation surface: it seeks
// the player to the timestamp and screenshots the page. The session is
// acquired per capture so a reconnected surface is picked up transparently.
type browserCapturer struct {
	cfg       *config.Config
	connector *browser.Connector
}

// NewBrowserCapturer constructs the player-based capturer.
func NewBrowserCapturer(cfg *config.Config, connector *browser.Connector) Capturer {
	return &browserCapturer{cfg: cfg, connector: connector}
}

func (c *browserCapturer) Capture(ctx context.Context, job *jobs.Job, atSeconds float64) ([]byte, error) {
	if timeout := c.cfg.CaptureTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	session, err := c.connector.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	if err := c.ensurePlayer(ctx, session, job); err != nil {
		return nil, err
	}
	if err := c.seek(ctx, session, atSeconds); err != nil {
		return nil, err
	}
	return session.CaptureScreenshot(ctx)
}

// ensurePlayer navigates the surface to the job's player page once; repeat
// captures for the same source skip the reload.
func (c *browserCapturer) ensurePlayer(ctx context.Context, session *browser.Session, job *jobs.Job) error {
	template := strings.TrimSpace(c.cfg.Browser.PlayerURLTemplate)
	if template == "" {
		return nil
	}
	url := strings.ReplaceAll(template, "{source}", job.Source)

	current, err := session.Evaluate(ctx, "window.location.href")
	if err == nil {
		var href string
		if json.Unmarshal(current, &href) == nil && href == url {
			return nil
		}
	}
	if err := session.Navigate(ctx, url); err != nil {
		return fmt.Errorf("open player: %w", err)
	}
	return c.waitForPlayer(ctx, session)
}

func (c *browserCapturer) waitForPlayer(ctx context.Context, session *browser.Session) error {
	for {
		ready, err := session.Evaluate(ctx,
			`(() => { const v = document.querySelector("video"); return !!v && v.readyState >= 2; })()`)
		if err == nil {
			var ok bool
			if json.Unmarshal(ready, &ok) == nil && ok {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("player not ready: %w", ctx.Err())
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func (c *browserCapturer) seek(ctx context.Context, session *browser.Session, atSeconds float64) error {
	expr := fmt.Sprintf(`(() => {
		const v = document.querySelector("video");
		if (!v) { return Promise.reject("no video element"); }
		return new Promise((resolve) => {
			v.pause();
			v.onseeked = () => resolve(v.currentTime);
			v.currentTime = %.3f;
		});
	})()`, atSeconds)
	if _, err := session.Evaluate(ctx, expr); err != nil {
		return fmt.Errorf("seek to %.2fs: %w", atSeconds, err)
	}
	return nil
}
