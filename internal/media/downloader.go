package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"clipnote/internal/config"
	"clipnote/internal/fileutil"
	"clipnote/internal/jobs"
	"clipnote/internal/logging"
	"clipnote/internal/media/ffprobe"
	"clipnote/internal/services"
	"clipnote/internal/stage"
	"clipnote/internal/subtitles"
	"clipnote/internal/textutil"
)

// TrackFetcher fetches provider subtitle tracks best-effort. Satisfied by
// subtitles.Fetcher.
type TrackFetcher interface {
	FetchAll(ctx context.Context, tracks []subtitles.Track, outDir string) ([]subtitles.Result, []string)
}

// ModelProvisioner downloads the local speech model when it is missing. The
// workflow wires the local transcription engine here so model fetch time is
// reported inside the downloading stage rather than stalling transcription.
type ModelProvisioner interface {
	EnsureModel(ctx context.Context, onProgress func(percent float64, message string)) error
}

// Downloader resolves the source, downloads audio and video artifacts, and
// prepares the per-job output directory.
type Downloader struct {
	cfg     *config.Config
	logger  *slog.Logger
	fetcher Fetcher
	models  ModelProvisioner
	tracks  TrackFetcher
}

// NewDownloader constructs the downloading stage handler.
func NewDownloader(cfg *config.Config, logger *slog.Logger, models ModelProvisioner) *Downloader {
	d := NewDownloaderWithFetcher(cfg, logger, NewFetcher(cfg, nil), models)
	if cfg.Subtitles.Enabled {
		d.tracks = subtitles.NewFetcher(cfg, logger)
	}
	return d
}

// NewDownloaderWithFetcher allows injecting the fetcher (used in tests).
func NewDownloaderWithFetcher(cfg *config.Config, logger *slog.Logger, fetcher Fetcher, models ModelProvisioner) *Downloader {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "downloader"))
	}
	return &Downloader{cfg: cfg, logger: logger, fetcher: fetcher, models: models}
}

// WithTrackFetcher overrides the subtitle track fetcher (used in tests).
func (d *Downloader) WithTrackFetcher(tracks TrackFetcher) *Downloader {
	d.tracks = tracks
	return d
}

// Prepare validates the source and resolves title metadata before download.
func (d *Downloader) Prepare(ctx context.Context, job *jobs.Job) error {
	logger := logging.WithContext(ctx, d.logger)

	source := strings.TrimSpace(job.Source)
	if source == "" {
		return services.Wrap(services.ErrSourceInvalid, "downloading", "validate source",
			"Source is empty", nil)
	}
	job.Source = source

	if job.Title == "" {
		meta, err := d.fetcher.Probe(ctx, source)
		if err != nil {
			return services.Wrap(services.ErrSourceInvalid, "downloading", "probe source",
				"Source could not be resolved; check the URL and network access", err)
		}
		job.Title = meta.Title
		job.Duration = meta.Duration
		logger.Info("resolved source metadata",
			logging.String("title", meta.Title),
			logging.Float64("duration", meta.Duration))
	}

	if job.OutputDir == "" {
		dirName := fmt.Sprintf("%s-%d", textutil.SanitizeToken(job.Title), job.ID)
		job.OutputDir = filepath.Join(d.cfg.Paths.OutputDir, dirName)
	}
	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return services.Wrap(services.ErrDownloadFailed, "downloading", "create output dir",
			"Failed to create job output directory; check output_dir permissions", err)
	}
	return nil
}

// Execute downloads the audio and video streams and, for the local engine,
// ensures the speech model is on disk.
func (d *Downloader) Execute(ctx context.Context, job *jobs.Job, report stage.Reporter) error {
	logger := logging.WithContext(ctx, d.logger)

	audioPath := filepath.Join(job.OutputDir, "audio.wav")
	videoPath := filepath.Join(job.OutputDir, "video.mp4")

	needModel := d.models != nil && job.Engine == config.EngineLocal
	audioSpan := span{0, 40}
	videoSpan := span{40, 100}
	var modelSpan span
	if needModel {
		videoSpan = span{40, 85}
		modelSpan = span{85, 100}
	}

	if fileutil.NonEmptyFile(audioPath) {
		logger.Info("audio already downloaded", logging.String("path", audioPath))
		report.Report(audioSpan.hi, "Audio already present")
	} else {
		report.Report(audioSpan.lo, "Downloading audio")
		err := d.fetcher.DownloadAudio(ctx, job.Source, audioPath, func(pct float64) {
			report.Report(audioSpan.at(pct), "Downloading audio")
		})
		if err != nil {
			return classifyDownload(ctx, "download audio", err)
		}
		if !fileutil.NonEmptyFile(audioPath) {
			return services.Wrap(services.ErrDownloadFailed, "downloading", "download audio",
				"Audio download produced no file", nil)
		}
	}
	job.AudioPath = audioPath

	if fileutil.NonEmptyFile(videoPath) {
		logger.Info("video already downloaded", logging.String("path", videoPath))
		report.Report(videoSpan.hi, "Video already present")
	} else {
		report.Report(videoSpan.lo, "Downloading video")
		err := d.fetcher.DownloadVideo(ctx, job.Source, videoPath, func(pct float64) {
			report.Report(videoSpan.at(pct), "Downloading video")
		})
		if err != nil {
			return classifyDownload(ctx, "download video", err)
		}
		if !fileutil.NonEmptyFile(videoPath) {
			return services.Wrap(services.ErrDownloadFailed, "downloading", "download video",
				"Video download produced no file", nil)
		}
	}
	job.VideoPath = videoPath

	if job.Duration <= 0 {
		if dur, err := d.probeDuration(ctx, videoPath); err == nil {
			job.Duration = dur
		} else {
			logger.Warn("duration probe failed", logging.Error(err))
		}
	}

	d.fetchSubtitles(ctx, job)

	if needModel {
		report.Report(modelSpan.lo, "Preparing speech model")
		err := d.models.EnsureModel(ctx, func(pct float64, msg string) {
			report.Report(modelSpan.at(pct), msg)
		})
		if err != nil {
			return services.Wrap(services.ErrDownloadFailed, "downloading", "ensure speech model",
				"Speech model download failed; check model_download_url and network access", err)
		}
	}

	report.Report(100, "Download complete")
	logger.Info("download finished",
		logging.String("audio", job.AudioPath),
		logging.String("video", job.VideoPath))
	return nil
}

// probeDuration reads the container duration, preferring ffprobe's JSON
// output and falling back to the ffmpeg banner parse when ffprobe is absent.
func (d *Downloader) probeDuration(ctx context.Context, path string) (float64, error) {
	if result, err := ffprobe.Inspect(ctx, d.cfg.Media.FFprobeBinary, path); err == nil {
		if dur := result.DurationSeconds(); dur > 0 {
			return dur, nil
		}
	}
	return ProbeDuration(ctx, d.cfg.Media.FFmpegBinary, path)
}

// fetchSubtitles runs the best-effort track fan-out. Track failures become
// job warnings only.
func (d *Downloader) fetchSubtitles(ctx context.Context, job *jobs.Job) {
	if d.tracks == nil || job.SubtitleTracksJSON == "" {
		return
	}
	logger := logging.WithContext(ctx, d.logger)

	tracks, err := subtitles.DecodeTracks(job.SubtitleTracksJSON)
	if err != nil {
		job.AddWarning(fmt.Sprintf("subtitle track list unreadable: %v", err))
		return
	}
	results, warnings := d.tracks.FetchAll(ctx, tracks, job.OutputDir)
	for _, warning := range warnings {
		job.AddWarning(warning)
	}
	if len(results) > 0 {
		logger.Info("subtitle tracks fetched",
			logging.Int("requested", len(tracks)),
			logging.Int("fetched", len(results)))
	}
}

// HealthCheck verifies the yt-dlp binary is resolvable.
func (d *Downloader) HealthCheck(ctx context.Context) stage.Health {
	if _, err := exec.LookPath(d.cfg.Media.YtdlpBinary); err != nil {
		return stage.Unhealthy("downloader", fmt.Sprintf("yt-dlp not found: %v", err))
	}
	return stage.Healthy("downloader")
}

type span struct {
	lo, hi float64
}

func (s span) at(pct float64) float64 {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return s.lo + (s.hi-s.lo)*pct/100
}

func classifyDownload(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return services.Wrap(services.ErrCancelled, "downloading", op, jobs.CancelMessage, ctx.Err())
	}
	return services.Wrap(services.ErrDownloadFailed, "downloading", op,
		"Media download failed; the source may be unavailable", err)
}
