package openai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/monlivreunique/bookforge/internal/providers"
)

func TestDescribeImage(t *testing.T) {
	var captured map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": "curly brown hair, green t-shirt"}},
			},
		})
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	o := New()
	o.BaseURL = server.URL

	got, err := o.DescribeImage(context.Background(), providers.VisionRequest{
		Model:  "gpt-4o",
		Prompt: "Describe the child",
		Image:  []byte("fake-png-bytes"),
	})
	if err != nil {
		t.Fatalf("DescribeImage failed: %v", err)
	}
	if got != "curly brown hair, green t-shirt" {
		t.Errorf("unexpected description %q", got)
	}

	if captured["model"] != "gpt-4o" {
		t.Errorf("unexpected model %v", captured["model"])
	}
	raw, _ := json.Marshal(captured)
	wantURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("fake-png-bytes"))
	if !strings.Contains(string(raw), wantURL) {
		t.Error("request body missing base64 data URL for the image")
	}
}

func TestDescribeImageMissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	o := New()
	if _, err := o.DescribeImage(context.Background(), providers.VisionRequest{Model: "gpt-4o"}); err == nil {
		t.Fatal("expected error when OPENAI_API_KEY is unset")
	}
}

func TestGenerateImage(t *testing.T) {
	imageBytes := []byte("generated-image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/generations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		if body["size"] != "1024x1024" {
			t.Errorf("unexpected size %v", body["size"])
		}
		if body["quality"] != "high" {
			t.Errorf("unexpected quality %v", body["quality"])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(imageBytes)},
			},
		})
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	o := New()
	o.BaseURL = server.URL

	got, err := o.GenerateImage(context.Background(), providers.ImageRequest{
		Model:  "gpt-image-1",
		Prompt: "a watercolor fox",
		Size:   "1024x1024",
	})
	if err != nil {
		t.Fatalf("GenerateImage failed: %v", err)
	}
	if string(got) != string(imageBytes) {
		t.Errorf("unexpected image bytes %q", got)
	}
}

func TestEditImage(t *testing.T) {
	imageBytes := []byte("edited-image")
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/edits" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Fatalf("failed to parse multipart form: %v", err)
		}
		if got := r.FormValue("prompt"); got != "place the child on a beach" {
			t.Errorf("unexpected prompt %q", got)
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			t.Fatalf("missing image field: %v", err)
		}
		defer file.Close()
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]string{
				{"b64_json": base64.StdEncoding.EncodeToString(imageBytes)},
			},
		})
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	o := New()
	o.BaseURL = server.URL

	got, err := o.EditImage(context.Background(), providers.ImageRequest{
		Model:     "gpt-image-1",
		Prompt:    "place the child on a beach",
		Size:      "1024x1024",
		Reference: []byte("reference-avatar"),
	})
	if err != nil {
		t.Fatalf("EditImage failed: %v", err)
	}
	if string(got) != string(imageBytes) {
		t.Errorf("unexpected image bytes %q", got)
	}
}

func TestEditImageRequiresReference(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "test-key")
	o := New()
	if _, err := o.EditImage(context.Background(), providers.ImageRequest{Model: "gpt-image-1"}); err == nil {
		t.Fatal("expected error when no reference image given")
	}
}

func TestGenerateImageErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "billing hard limit reached"}}`, http.StatusBadRequest)
	}))
	defer server.Close()

	t.Setenv("OPENAI_API_KEY", "test-key")
	o := New()
	o.BaseURL = server.URL

	_, err := o.GenerateImage(context.Background(), providers.ImageRequest{Model: "gpt-image-1", Prompt: "x"})
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
	if !strings.Contains(err.Error(), "billing hard limit") {
		t.Errorf("error should carry the response body, got %v", err)
	}
}
