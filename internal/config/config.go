package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Workflow contains orchestration timing and progress weighting.
type Workflow struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`

	// Per-stage shares of the overall progress percentage. They should sum
	// to 100; Validate normalizes small drift.
	DownloadWeight   int `toml:"download_weight"`
	TranscribeWeight int `toml:"transcribe_weight"`
	KeyframeWeight   int `toml:"keyframe_weight"`
	GenerateWeight   int `toml:"generate_weight"`
}

// Media contains configuration for source resolution and download.
type Media struct {
	YtdlpBinary     string `toml:"ytdlp_binary"`
	FFmpegBinary    string `toml:"ffmpeg_binary"`
	FFprobeBinary   string `toml:"ffprobe_binary"`
	DownloadTimeout int    `toml:"download_timeout"`
}

// Subtitles contains configuration for provider subtitle track fetching.
type Subtitles struct {
	Enabled        bool `toml:"enabled"`
	RequestTimeout int  `toml:"request_timeout"`
}

// Transcription contains ASR engine settings for both variants.
type Transcription struct {
	Engine           string `toml:"engine"`
	Language         string `toml:"language"`
	WhisperBinary    string `toml:"whisper_binary"`
	WhisperModel     string `toml:"whisper_model"`
	ModelDir         string `toml:"model_dir"`
	ModelDownloadURL string `toml:"model_download_url"`
	CloudAPIKey      string `toml:"cloud_api_key"`
	CloudModel       string `toml:"cloud_model"`
	TimeoutSeconds   int    `toml:"timeout_seconds"`
}

// Keyframes contains strategy selection and scoring thresholds.
type Keyframes struct {
	Strategy            string   `toml:"strategy"`
	TargetFrames        int      `toml:"target_frames"`
	MaxFrames           int      `toml:"max_frames"`
	MinIntervalSeconds  float64  `toml:"min_interval_seconds"`
	SampleIntervalSecs  float64  `toml:"sample_interval_seconds"`
	Keywords            []string `toml:"keywords"`
	SemanticScoreWeight float64  `toml:"semantic_score_weight"`
	VisualScoreWeight   float64  `toml:"visual_score_weight"`
}

// Browser contains the automation surface connection settings.
type Browser struct {
	WebsocketURL          string `toml:"websocket_url"`
	PlayerURLTemplate     string `toml:"player_url_template"`
	ConnectAttempts       int    `toml:"connect_attempts"`
	ConnectDelayMillis    int    `toml:"connect_delay_ms"`
	CaptureTimeoutSeconds int    `toml:"capture_timeout_seconds"`
}

// LLM contains the text-generation collaborator settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains push notification settings. A populated ntfy topic
// URL enables delivery; an empty one disables it.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config is the root configuration document.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workflow      Workflow      `toml:"workflow"`
	Media         Media         `toml:"media"`
	Subtitles     Subtitles     `toml:"subtitles"`
	Transcription Transcription `toml:"transcription"`
	Keyframes     Keyframes     `toml:"keyframes"`
	Browser       Browser       `toml:"browser"`
	LLM           LLM           `toml:"llm"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the preferred config file location.
func DefaultConfigPath() string {
	return "~/.config/clipnote/config.toml"
}

// Load reads configuration from the provided path (or the default location
// when empty), applying defaults for missing values. It returns the resolved
// config, the path that was used, and whether a sample file was written.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	explicit := resolved != ""
	if !explicit {
		resolved = DefaultConfigPath()
	}
	expanded, err := ExpandPath(resolved)
	if err != nil {
		return nil, "", false, fmt.Errorf("expand config path: %w", err)
	}

	cfg := Default()
	created := false
	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, expanded, false, fmt.Errorf("parse config %s: %w", expanded, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		if explicit {
			return nil, expanded, false, fmt.Errorf("config file not found: %s", expanded)
		}
		if writeErr := writeSample(expanded); writeErr == nil {
			created = true
		}
	default:
		return nil, expanded, false, fmt.Errorf("read config %s: %w", expanded, err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, expanded, created, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, expanded, created, err
	}
	return &cfg, expanded, created, nil
}

// EnsureDirectories creates the directories the pipeline writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.Paths.OutputDir, c.Paths.LogDir, c.Transcription.ModelDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// ExpandPath resolves a leading ~ against the current user's home directory.
func ExpandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return filepath.Clean(path), nil
}

func (c *Config) expandPaths() error {
	fields := []*string{
		&c.Paths.DataDir,
		&c.Paths.OutputDir,
		&c.Paths.LogDir,
		&c.Transcription.ModelDir,
	}
	for _, field := range fields {
		expanded, err := ExpandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	return nil
}

func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(sampleConfig), 0o644)
}
