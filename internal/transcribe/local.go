package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"clipnote/internal/config"
	"clipnote/internal/fileutil"
	"clipnote/internal/logging"
	"clipnote/internal/media"
	"clipnote/internal/transcript"
)

// LocalEngine runs whisper.cpp's whisper-cli against the downloaded audio.
// The ggml model is fetched once into the configured model directory.
type LocalEngine struct {
	cfg    *config.Config
	logger *slog.Logger
	runner media.Runner
	client *http.Client
}

// NewLocalEngine constructs the whisper.cpp engine.
func NewLocalEngine(cfg *config.Config, logger *slog.Logger) *LocalEngine {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "whisper"))
	}
	return &LocalEngine{
		cfg:    cfg,
		logger: logger,
		runner: media.NewRunner(),
		client: &http.Client{Timeout: 30 * time.Minute},
	}
}

// WithRunner overrides the command runner (used in tests).
func (e *LocalEngine) WithRunner(runner media.Runner) *LocalEngine {
	e.runner = runner
	return e
}

// Name implements Engine.
func (e *LocalEngine) Name() string { return config.EngineLocal }

// ModelPath returns the on-disk location of the configured ggml model.
func (e *LocalEngine) ModelPath() string {
	name := fmt.Sprintf("ggml-%s.bin", e.cfg.Transcription.WhisperModel)
	return filepath.Join(e.cfg.Transcription.ModelDir, name)
}

// modelURL resolves the download location for the configured model. The
// configured value may be a base directory or a full .bin file URL; the
// default points at the huggingface whisper.cpp tree.
func (e *LocalEngine) modelURL() string {
	base := strings.TrimRight(strings.TrimSpace(e.cfg.Transcription.ModelDownloadURL), "/")
	if base == "" {
		base = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	}
	if strings.HasSuffix(base, ".bin") {
		return base
	}
	return fmt.Sprintf("%s/ggml-%s.bin", base, e.cfg.Transcription.WhisperModel)
}

// EnsureModel downloads the ggml model when it is missing, reporting download
// progress. It satisfies media.ModelProvisioner so the fetch is surfaced
// during the downloading stage.
func (e *LocalEngine) EnsureModel(ctx context.Context, onProgress func(percent float64, message string)) error {
	target := e.ModelPath()
	if fileutil.NonEmptyFile(target) {
		if onProgress != nil {
			onProgress(100, "Speech model ready")
		}
		return nil
	}

	url := e.modelURL()
	if e.logger != nil {
		e.logger.Info("downloading speech model",
			logging.String("model", e.cfg.Transcription.WhisperModel),
			logging.String("url", url))
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("download model: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download model: unexpected status %s", resp.Status)
	}

	// Download into a temp file so a partial fetch never passes the
	// NonEmptyFile check on the next run.
	tmp, err := os.CreateTemp(filepath.Dir(target), ".model-*")
	if err != nil {
		return fmt.Errorf("create temp model file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := copyWithProgress(tmp, resp.Body, resp.ContentLength, onProgress)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	if written == 0 {
		return fmt.Errorf("write model: empty download")
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("install model: %w", err)
	}
	if onProgress != nil {
		onProgress(100, "Speech model ready")
	}
	return nil
}

func copyWithProgress(dst io.Writer, src io.Reader, total int64, onProgress func(float64, string)) (int64, error) {
	var written int64
	buf := make([]byte, 256*1024)
	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, writeErr := dst.Write(buf[:n]); writeErr != nil {
				return written, writeErr
			}
			written += int64(n)
			if onProgress != nil && total > 0 {
				onProgress(float64(written)/float64(total)*100, "Downloading speech model")
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// Transcribe runs whisper-cli with JSON output and parses the result.
func (e *LocalEngine) Transcribe(ctx context.Context, audioPath, language string, onProgress func(percent float64, message string)) (*transcript.Transcript, error) {
	if timeout := e.cfg.TranscriptionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	outputPrefix := strings.TrimSuffix(audioPath, filepath.Ext(audioPath))
	args := []string{
		"-m", e.ModelPath(),
		"-f", audioPath,
		"-oj",
		"-of", outputPrefix,
		"-ml", "0",
		"-pp",
	}
	if language != "" && language != "auto" {
		args = append(args, "-l", language)
	}

	if onProgress != nil {
		onProgress(0, "Transcribing audio")
	}
	err := e.runner.Run(ctx, e.cfg.Transcription.WhisperBinary, args, func(line string) {
		if onProgress == nil {
			return
		}
		if pct, ok := parseWhisperProgress(line); ok {
			onProgress(pct, "Transcribing audio")
		}
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcribe: %w", err)
	}

	jsonPath := outputPrefix + ".json"
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("read whisper output: %w", err)
	}
	tr, err := ParseWhisperJSON(data)
	if err != nil {
		return nil, err
	}
	tr.Engine = config.EngineLocal
	if tr.Language == "" {
		tr.Language = language
	}
	return tr, nil
}

// whisperDocument matches whisper.cpp's -oj output.
type whisperDocument struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

// ParseWhisperJSON converts whisper.cpp JSON output (millisecond offsets)
// into a transcript.
func ParseWhisperJSON(data []byte) (*transcript.Transcript, error) {
	var doc whisperDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}

	tr := &transcript.Transcript{Language: doc.Result.Language}
	for _, entry := range doc.Transcription {
		tr.Segments = append(tr.Segments, transcript.Segment{
			Start: float64(entry.Offsets.From) / 1000,
			End:   float64(entry.Offsets.To) / 1000,
			Text:  strings.TrimSpace(entry.Text),
		})
	}
	tr.Normalize()
	if tr.Empty() {
		return nil, fmt.Errorf("whisper output contains no speech segments")
	}
	return tr, nil
}

// parseWhisperProgress extracts the percentage from whisper-cli's
// "whisper_print_progress_callback: progress =  45%" lines.
func parseWhisperProgress(line string) (float64, bool) {
	idx := strings.Index(line, "progress =")
	if idx < 0 {
		return 0, false
	}
	rest := strings.TrimSpace(line[idx+len("progress ="):])
	rest = strings.TrimSuffix(rest, "%")
	var pct float64
	if _, err := fmt.Sscanf(rest, "%f", &pct); err != nil {
		return 0, false
	}
	if pct < 0 || pct > 100 {
		return 0, false
	}
	return pct, true
}
