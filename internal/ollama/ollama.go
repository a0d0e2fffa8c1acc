// Package ollama provides a local Ollama text provider, useful for
// drafting manifests without burning API credits.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/monlivreunique/bookforge/internal/providers"
)

// Ollama is a provider for a local Ollama server.
type Ollama struct{}

// New returns a new Ollama provider.
func New() *Ollama {
	return &Ollama{}
}

// GenerateText generates text from the given prompt using Ollama.
func (o *Ollama) GenerateText(ctx context.Context, req providers.TextRequest) (string, error) {
	ollamaURL := os.Getenv("OLLAMA_URL")
	if ollamaURL == "" {
		ollamaURL = "http://localhost:11434"
	}
	url := ollamaURL + "/api/generate"

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":  req.Model,
		"prompt": req.Prompt,
		"system": req.System,
		"stream": false,
		"options": map[string]interface{}{
			"temperature": req.Temperature,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, string(body))
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	return response.Response, nil
}
