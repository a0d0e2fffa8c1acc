// Package anthropic is a minimal client for the Anthropic Messages API,
// used as the default story text provider.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/monlivreunique/bookforge/internal/providers"
)

const (
	defaultBaseURL = "https://api.anthropic.com"
	apiVersion     = "2023-06-01"
)

// Anthropic is a TextProvider backed by the Messages API.
type Anthropic struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new Anthropic provider.
func New() *Anthropic {
	return &Anthropic{
		BaseURL: defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

// GenerateText sends a single-turn message and returns the first text
// block of the response. HTTP 529 and "overloaded" error bodies are
// classified as providers.ErrOverloaded so callers can retry only that
// class.
func (a *Anthropic) GenerateText(ctx context.Context, req providers.TextRequest) (string, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	body := map[string]interface{}{
		"model":      req.Model,
		"max_tokens": req.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": req.Prompt},
		},
	}
	if req.System != "" {
		body["system"] = req.System
	}

	requestBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.BaseURL+"/v1/messages", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := a.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		if isOverloadedResponse(resp.StatusCode, payload) {
			return "", fmt.Errorf("%w: status %d: %s", providers.ErrOverloaded, resp.StatusCode, payload)
		}
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, payload)
	}

	var response struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}

	for _, block := range response.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content returned from Anthropic")
}

// isOverloadedResponse matches the 529 status Anthropic uses for capacity
// errors, plus "overloaded_error" bodies delivered under other statuses.
func isOverloadedResponse(status int, body []byte) bool {
	if status == 529 {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "overloaded")
}
