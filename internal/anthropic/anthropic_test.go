package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/monlivreunique/bookforge/internal/providers"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Anthropic {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	a := New()
	a.BaseURL = server.URL
	return a
}

func TestGenerateText(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Error("Missing API key header")
		}
		var body struct {
			Model  string `json:"model"`
			System string `json:"system"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("Failed to decode request: %v", err)
		}
		if body.System != "be brief" {
			t.Errorf("System = %q", body.System)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{{"type": "text", "text": "{\"title\":\"ok\"}"}},
		})
	})

	got, err := a.GenerateText(context.Background(), providers.TextRequest{
		Model:     "claude-sonnet-4-20250514",
		System:    "be brief",
		Prompt:    "hello",
		MaxTokens: 16000,
	})
	if err != nil {
		t.Fatalf("GenerateText failed: %v", err)
	}
	if got != `{"title":"ok"}` {
		t.Errorf("GenerateText = %q", got)
	}
}

func TestGenerateTextOverloadedStatus(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error"}}`))
	})

	_, err := a.GenerateText(context.Background(), providers.TextRequest{Model: "m", Prompt: "p", MaxTokens: 100})
	if !providers.IsOverloaded(err) {
		t.Errorf("Expected overloaded classification, got %v", err)
	}
}

func TestGenerateTextOverloadedBody(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Overloaded, try again later"}`))
	})

	_, err := a.GenerateText(context.Background(), providers.TextRequest{Model: "m", Prompt: "p", MaxTokens: 100})
	if !providers.IsOverloaded(err) {
		t.Errorf("Expected overloaded classification, got %v", err)
	}
}

func TestGenerateTextOtherErrorIsNotOverloaded(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")

	a := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid model"}`))
	})

	_, err := a.GenerateText(context.Background(), providers.TextRequest{Model: "m", Prompt: "p", MaxTokens: 100})
	if err == nil {
		t.Fatal("Expected error")
	}
	if providers.IsOverloaded(err) {
		t.Error("400 should not be classified as overloaded")
	}
}

func TestGenerateTextMissingKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	a := New()
	if _, err := a.GenerateText(context.Background(), providers.TextRequest{Model: "m", Prompt: "p"}); err == nil {
		t.Error("Expected error when API key is missing")
	}
}
