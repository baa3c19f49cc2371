package synthesize

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"clipnote/internal/config"
)

// TextGenerator is the narrow capability the synthesizer needs from the
// language-model collaborator: prompt in, text out.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// geminiGenerator calls the Gemini API.
type geminiGenerator struct {
	apiKey string
	model  string
}

// NewGenerator constructs the configured language-model collaborator.
func NewGenerator(cfg *config.Config) TextGenerator {
	return &geminiGenerator{apiKey: cfg.LLM.APIKey, model: cfg.LLM.Model}
}

func (g *geminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create model client: %w", err)
	}

	result, err := client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	if result == nil || len(result.Candidates) == 0 || result.Candidates[0].Content == nil {
		return "", fmt.Errorf("empty response from model")
	}

	var text strings.Builder
	for _, part := range result.Candidates[0].Content.Parts {
		if part.Text != "" {
			text.WriteString(part.Text)
		}
	}
	return text.String(), nil
}
