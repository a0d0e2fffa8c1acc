// Package openai wraps the OpenAI chat completions and images endpoints.
// It serves as both the vision provider (photo analysis) and the image
// provider (illustration generation and reference-anchored edits).
package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"time"

	"github.com/monlivreunique/bookforge/internal/providers"
)

const defaultBaseURL = "https://api.openai.com/v1"

// OpenAI is a provider for the OpenAI API.
type OpenAI struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a new OpenAI provider.
func New() *OpenAI {
	return &OpenAI{
		BaseURL: defaultBaseURL,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func apiKey() (string, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return "", fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	return key, nil
}

// DescribeImage sends the image to a vision-capable chat model together
// with the instruction prompt and returns the model's text answer.
func (o *OpenAI) DescribeImage(ctx context.Context, req providers.VisionRequest) (string, error) {
	key, err := apiKey()
	if err != nil {
		return "", err
	}

	mime := req.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(req.Image)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 200
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model": req.Model,
		"messages": []map[string]interface{}{
			{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": req.Prompt},
					{
						"type": "image_url",
						"image_url": map[string]string{
							"url":    dataURL,
							"detail": "high",
						},
					},
				},
			},
		},
		"max_tokens": maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/chat/completions", bytes.NewBuffer(requestBody))
	if err != nil {
		return "", fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, body)
	}

	var response struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI")
	}
	return response.Choices[0].Message.Content, nil
}

// GenerateImage performs a plain text-to-image call and returns the raw
// image bytes.
func (o *OpenAI) GenerateImage(ctx context.Context, req providers.ImageRequest) ([]byte, error) {
	key, err := apiKey()
	if err != nil {
		return nil, err
	}

	requestBody, err := json.Marshal(map[string]interface{}{
		"model":   req.Model,
		"prompt":  req.Prompt,
		"n":       1,
		"size":    req.Size,
		"quality": "high",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/images/generations", bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return decodeImageResponse(resp)
}

// EditImage sends the reference image plus the prompt to the image edits
// endpoint. The result keeps the reference character's identity while
// rendering an entirely new scene.
func (o *OpenAI) EditImage(ctx context.Context, req providers.ImageRequest) ([]byte, error) {
	key, err := apiKey()
	if err != nil {
		return nil, err
	}
	if len(req.Reference) == 0 {
		return nil, fmt.Errorf("edit call requires a reference image")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("image", "reference.png")
	if err != nil {
		return nil, fmt.Errorf("failed to create multipart image field: %w", err)
	}
	if _, err := part.Write(req.Reference); err != nil {
		return nil, fmt.Errorf("failed to write reference image: %w", err)
	}
	for field, value := range map[string]string{
		"model":  req.Model,
		"prompt": req.Prompt,
		"n":      "1",
		"size":   req.Size,
	} {
		if err := writer.WriteField(field, value); err != nil {
			return nil, fmt.Errorf("failed to write multipart field %s: %w", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.BaseURL+"/images/edits", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create new request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+key)

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return decodeImageResponse(resp)
}

func decodeImageResponse(resp *http.Response) ([]byte, error) {
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("received non-200 status code: %d - %s", resp.StatusCode, body)
	}

	var response struct {
		Data []struct {
			B64JSON string `json:"b64_json"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response body: %w", err)
	}
	if len(response.Data) == 0 {
		return nil, fmt.Errorf("no image data returned from OpenAI")
	}

	image, err := base64.StdEncoding.DecodeString(response.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}
	return image, nil
}
