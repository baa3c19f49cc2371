package media

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"clipnote/internal/config"
)

// Metadata describes a remote source before download.
type Metadata struct {
	Title    string
	Duration float64
}

// Fetcher resolves source metadata and downloads media streams. The concrete
// implementation shells out to yt-dlp; tests substitute a stub.
type Fetcher interface {
	Probe(ctx context.Context, source string) (Metadata, error)
	DownloadAudio(ctx context.Context, source, dest string, onProgress func(float64)) error
	DownloadVideo(ctx context.Context, source, dest string, onProgress func(float64)) error
}

type ytdlpFetcher struct {
	binary  string
	timeout time.Duration
	runner  Runner
}

// NewFetcher constructs a yt-dlp backed Fetcher from configuration.
func NewFetcher(cfg *config.Config, runner Runner) Fetcher {
	if runner == nil {
		runner = NewRunner()
	}
	return &ytdlpFetcher{
		binary:  cfg.Media.YtdlpBinary,
		timeout: cfg.DownloadTimeout(),
		runner:  runner,
	}
}

func (f *ytdlpFetcher) Probe(ctx context.Context, source string) (Metadata, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	out, err := f.runner.Output(ctx, f.binary, []string{
		"--no-playlist",
		"--print", "%(title)s\n%(duration)s",
		"--skip-download",
		source,
	})
	if err != nil {
		return Metadata{}, fmt.Errorf("probe source: %w", err)
	}

	meta := Metadata{}
	lines := strings.Split(out, "\n")
	if len(lines) > 0 {
		meta.Title = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		if d, err := strconv.ParseFloat(strings.TrimSpace(lines[1]), 64); err == nil {
			meta.Duration = d
		}
	}
	if meta.Title == "" {
		return Metadata{}, fmt.Errorf("probe source: empty title for %s", source)
	}
	return meta, nil
}

func (f *ytdlpFetcher) DownloadAudio(ctx context.Context, source, dest string, onProgress func(float64)) error {
	args := []string{
		"--no-playlist",
		"--newline",
		"-x", "--audio-format", "wav",
		"--postprocessor-args", "ffmpeg:-ar 16000 -ac 1",
		"-o", stripExt(dest) + ".%(ext)s",
		source,
	}
	return f.download(ctx, args, onProgress)
}

func (f *ytdlpFetcher) DownloadVideo(ctx context.Context, source, dest string, onProgress func(float64)) error {
	args := []string{
		"--no-playlist",
		"--newline",
		"-f", "bv*[height<=1080]+ba/b[height<=1080]/b",
		"--merge-output-format", "mp4",
		"-o", dest,
		source,
	}
	return f.download(ctx, args, onProgress)
}

func (f *ytdlpFetcher) download(ctx context.Context, args []string, onProgress func(float64)) error {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	return f.runner.Run(ctx, f.binary, args, func(line string) {
		if onProgress == nil {
			return
		}
		if pct, ok := ParseDownloadProgress(line); ok {
			onProgress(pct)
		}
	})
}

func (f *ytdlpFetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.timeout)
}

var downloadProgressRe = regexp.MustCompile(`\[download\]\s+([0-9.]+)%`)

// ParseDownloadProgress extracts the percentage from a yt-dlp --newline
// progress line such as "[download]  42.3% of 10.00MiB at 1.00MiB/s".
func ParseDownloadProgress(line string) (float64, bool) {
	m := downloadProgressRe.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil || pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}

func stripExt(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path))
}
