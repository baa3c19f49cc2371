package transcribe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"google.golang.org/genai"

	"clipnote/internal/config"
	"clipnote/internal/logging"
	"clipnote/internal/transcript"
)

const cloudPrompt = `Transcribe the attached audio. Return ONLY a JSON array of
segments, no prose and no markdown fences. Each segment is an object with
"start" and "end" in seconds (numbers) and "text" (string). Keep segments
short, at most one sentence each, in the original spoken language.%s`

// cloudCaller abstracts the provider call so tests can stub it.
type cloudCaller func(ctx context.Context, model string, audio []byte, prompt string) (string, error)

// CloudEngine transcribes through the Gemini API, normalizing provider
// timing output into the common segment shape.
type CloudEngine struct {
	cfg    *config.Config
	logger *slog.Logger
	call   cloudCaller
}

// NewCloudEngine constructs the cloud engine.
func NewCloudEngine(cfg *config.Config, logger *slog.Logger) *CloudEngine {
	if logger != nil {
		logger = logger.With(logging.String(logging.FieldComponent, "cloud-asr"))
	}
	e := &CloudEngine{cfg: cfg, logger: logger}
	e.call = e.callProvider
	return e
}

// WithCaller overrides the provider call (used in tests).
func (e *CloudEngine) WithCaller(call func(ctx context.Context, model string, audio []byte, prompt string) (string, error)) *CloudEngine {
	e.call = call
	return e
}

// Name implements Engine.
func (e *CloudEngine) Name() string { return config.EngineCloud }

// Transcribe implements Engine.
func (e *CloudEngine) Transcribe(ctx context.Context, audioPath, language string, onProgress func(percent float64, message string)) (*transcript.Transcript, error) {
	if timeout := e.cfg.TranscriptionTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	langHint := ""
	if language != "" && language != "auto" {
		langHint = fmt.Sprintf("\nThe spoken language is %q.", language)
	}
	prompt := fmt.Sprintf(cloudPrompt, langHint)

	model := e.cfg.Transcription.CloudModel
	if onProgress != nil {
		onProgress(10, "Uploading audio to provider")
	}
	raw, err := e.call(ctx, model, audio, prompt)
	if err != nil {
		return nil, err
	}
	if onProgress != nil {
		onProgress(90, "Parsing provider response")
	}

	tr, err := parseCloudSegments(raw)
	if err != nil {
		return nil, err
	}
	tr.Engine = config.EngineCloud
	tr.Language = language
	return tr, nil
}

func (e *CloudEngine) callProvider(ctx context.Context, model string, audio []byte, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  e.cfg.Transcription.CloudAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create provider client: %w", err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(audio, "audio/wav"),
			genai.NewPartFromText(prompt),
		}, genai.RoleUser),
	}

	result, err := client.Models.GenerateContent(ctx, model, contents, nil)
	if err != nil {
		return "", err
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from provider")
	}
	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}

// IsRateLimited reports whether the provider error indicates quota or
// rate-limit exhaustion.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "quota") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED")
}

// IsAuthFailure reports whether the provider error indicates a bad or
// missing API key.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "401") ||
		strings.Contains(msg, "403") ||
		strings.Contains(msg, "API key") ||
		strings.Contains(msg, "PERMISSION_DENIED") ||
		strings.Contains(msg, "UNAUTHENTICATED")
}

func parseCloudSegments(raw string) (*transcript.Transcript, error) {
	cleaned := stripCodeFences(raw)

	var segments []transcript.Segment
	if err := json.Unmarshal([]byte(cleaned), &segments); err != nil {
		return nil, fmt.Errorf("parse provider segments: %w", err)
	}

	tr := &transcript.Transcript{Segments: segments}
	tr.Normalize()
	if tr.Empty() {
		return nil, fmt.Errorf("provider returned no speech segments")
	}
	return tr, nil
}

// stripCodeFences removes a surrounding markdown fence the model sometimes
// adds despite instructions.
func stripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
