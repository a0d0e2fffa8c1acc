package story

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/providers"
	"github.com/monlivreunique/bookforge/internal/retry"
)

const sampleManifest = `{
  "title": "Mina et le jardin secret",
  "character_sheets": {"hero": "Mina, 4 years old, curly brown hair..."},
  "color_palette": {
    "dominant": "#7FB069 - soft leaf green",
    "text_page_background": "#FFF8F0 - warm cream"
  },
  "pages": [
    {"page": "cover_front", "type": "image", "image_prompt": "Mina smiling among sunflowers"},
    {"page": "cover_back", "type": "image_and_text", "image_prompt": "plain green wash", "back_cover_text": "Come along with Mina..."},
    {"page": 2, "type": "dedication"},
    {"page": 3, "type": "image", "image_prompt": "Mina waves hello"},
    {"page": 4, "type": "text", "text": "Mina loves her garden."}
  ]
}`

type fakeText struct {
	responses []response
	calls     int
	lastReq   providers.TextRequest
}

type response struct {
	text string
	err  error
}

func (f *fakeText) GenerateText(ctx context.Context, req providers.TextRequest) (string, error) {
	f.lastReq = req
	idx := f.calls
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	f.calls++
	return f.responses[idx].text, f.responses[idx].err
}

func newTestGenerator(t *testing.T, text providers.TextProvider) *Generator {
	t.Helper()
	g := NewGenerator(text, config.Settings{OutputDir: t.TempDir()}, nil)
	// Keep the overload schedule but drop the waits so tests run fast.
	g.Retry.Backoff = retry.None()
	g.Retry.OnRetry = nil
	return g
}

func TestGenerateWritesManifest(t *testing.T) {
	text := &fakeText{responses: []response{{text: sampleManifest}}}
	g := newTestGenerator(t, text)

	cfg := &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4, Gender: "girl", Appearance: "curly brown hair"},
		Book:  config.Book{Theme: "the secret garden", EducationalValue: "patience"},
	}

	m, err := g.Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if m.Title != "Mina et le jardin secret" {
		t.Errorf("unexpected title %q", m.Title)
	}

	loaded, err := manifest.Load(g.Settings.ManifestPath())
	if err != nil {
		t.Fatalf("manifest not saved: %v", err)
	}
	if len(loaded.Pages) != 5 {
		t.Errorf("expected 5 pages, got %d", len(loaded.Pages))
	}

	if !strings.Contains(text.lastReq.Prompt, "First name: Mina") {
		t.Error("user prompt missing child name")
	}
	if !strings.Contains(text.lastReq.Prompt, "Theme: the secret garden") {
		t.Error("user prompt missing theme")
	}
	if text.lastReq.System == "" {
		t.Error("system prompt not sent")
	}
}

func TestGenerateRetriesOverload(t *testing.T) {
	overload := fmt.Errorf("call failed: %w", providers.ErrOverloaded)
	text := &fakeText{responses: []response{
		{err: overload},
		{err: overload},
		{text: sampleManifest},
	}}
	g := newTestGenerator(t, text)

	cfg := &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4},
		Book:  config.Book{Theme: "garden", EducationalValue: "patience"},
	}
	if _, err := g.Generate(context.Background(), cfg); err != nil {
		t.Fatalf("Generate should recover from overload: %v", err)
	}
	if text.calls != 3 {
		t.Errorf("expected 3 calls, got %d", text.calls)
	}
}

func TestGenerateDoesNotRetryOtherErrors(t *testing.T) {
	text := &fakeText{responses: []response{
		{err: errors.New("invalid api key")},
		{text: sampleManifest},
	}}
	g := newTestGenerator(t, text)

	cfg := &config.BookConfig{Child: config.Child{FirstName: "Mina", Age: 4}}
	if _, err := g.Generate(context.Background(), cfg); err == nil {
		t.Fatal("non-overload errors must be fatal")
	}
	if text.calls != 1 {
		t.Errorf("expected a single call, got %d", text.calls)
	}
}

func TestGenerateRepairsTruncatedResponse(t *testing.T) {
	// Response cut mid-page, as happens when max_tokens is hit.
	truncated := strings.TrimSuffix(sampleManifest, "\n  ]\n}")
	truncated = truncated[:strings.LastIndex(truncated, "},")+1]

	text := &fakeText{responses: []response{{text: "Here is the book:\n" + truncated}}}
	g := newTestGenerator(t, text)

	cfg := &config.BookConfig{Child: config.Child{FirstName: "Mina", Age: 4}}
	m, err := g.Generate(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Generate should repair a truncated response: %v", err)
	}
	if m.Title != "Mina et le jardin secret" {
		t.Errorf("unexpected title %q", m.Title)
	}
}

func TestGeneratePreservesRawOnParseFailure(t *testing.T) {
	text := &fakeText{responses: []response{{text: "I'd be happy to write a book, but first tell me more!"}}}
	g := newTestGenerator(t, text)

	cfg := &config.BookConfig{Child: config.Child{FirstName: "Mina", Age: 4}}
	if _, err := g.Generate(context.Background(), cfg); err == nil {
		t.Fatal("unparseable response must be fatal")
	}

	raw, err := os.ReadFile(g.Settings.RawResponsePath())
	if err != nil {
		t.Fatalf("raw response not preserved: %v", err)
	}
	if !strings.Contains(string(raw), "happy to write a book") {
		t.Errorf("raw file has wrong content: %q", raw)
	}
}

func TestBuildUserPromptDefaults(t *testing.T) {
	cfg := &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4, Gender: "girl", Appearance: "curly hair"},
		Book:  config.Book{Theme: "garden", EducationalValue: "patience"},
		Options: config.Options{
			IncludeQuestionsPage: true,
		},
	}
	prompt := buildUserPrompt(cfg)

	for _, want := range []string{
		"No secondary characters.",
		"Default outfit: your choice",
		"Dedication: none",
		"yes, generate 5 questions",
		"Language: fr",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildUserPromptSecondaryCharacters(t *testing.T) {
	cfg := &config.BookConfig{
		Child: config.Child{FirstName: "Mina", Age: 4},
		SecondaryCharacters: []config.SecondaryCharacter{
			{Relation: "grandmother", DisplayName: "Mamie Rose", Appearance: "gray bun, round glasses"},
		},
	}
	prompt := buildUserPrompt(cfg)
	if !strings.Contains(prompt, "- grandmother (Mamie Rose): gray bun, round glasses") {
		t.Errorf("secondary character not rendered:\n%s", prompt)
	}
}
