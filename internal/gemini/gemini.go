// Package gemini provides a Google Gemini text provider as an alternative
// to Anthropic for manifest generation.
package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/monlivreunique/bookforge/internal/providers"
	"google.golang.org/api/option"
)

// Gemini is a provider for Google Gemini.
type Gemini struct{}

// New returns a new Gemini provider.
func New() *Gemini {
	return &Gemini{}
}

// GenerateText generates text from the given prompt using Gemini.
func (g *Gemini) GenerateText(ctx context.Context, req providers.TextRequest) (string, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return "", fmt.Errorf("failed to create new gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(req.Model)
	if req.Temperature > 0 {
		model.SetTemperature(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		if isOverloadedError(err) {
			return "", fmt.Errorf("%w: %v", providers.ErrOverloaded, err)
		}
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates returned from Gemini")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("empty content returned from Gemini")
	}

	if txt, ok := candidate.Content.Parts[0].(genai.Text); ok {
		return string(txt), nil
	}

	return "", fmt.Errorf("unexpected response format from Gemini")
}

func isOverloadedError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "resource exhausted") ||
		strings.Contains(msg, "429")
}
