// Package story turns a book order into the full page manifest with a
// single large text-model call.
package story

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/jsonrepair"
	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/providers"
	"github.com/monlivreunique/bookforge/internal/retry"
	"github.com/monlivreunique/bookforge/internal/status"
)

const defaultTextModel = "claude-sonnet-4-20250514"

const maxStoryTokens = 16000

const systemPrompt = `You are an expert author-illustrator of personalized picture books for children aged 1 to 8.

Your mission: from the information provided about a child, produce the complete content of a personalized illustrated book. You answer ONLY with valid JSON, with no text before or after the JSON. No markdown, no comments, no code fences. Just the raw JSON.

AGE ADAPTATION
The child's age drives vocabulary, sentence length, narrative complexity and illustration style.
- Ages 1-2: one sentence per page, 6-8 words max, repetitive and soothing structures, everyday vocabulary only. No complex arc; a chain of familiar scenes on a simple thread. Illustrations with 1-2 large centered elements on simple backgrounds.
- Ages 2-3: 1-2 sentences per page, 8-10 words per sentence, concrete familiar vocabulary with a few new words in context. Simple thread with structuring repetitions and a basic beginning-middle-end. Simple scenes with 2-3 elements and very readable expressions.
- Ages 4-5: 2-4 sentences per page (vary the length), 12 words per sentence max, varied common vocabulary with descriptive words. Clear arc with setup, trigger, adventure and joyful resolution. Named emotions, short dialogue allowed. Lively scenes with 3-5 elements.
- Ages 6-8: 3-6 sentences per page (vary), sentences up to 15 words, rich imagery and precise emotional vocabulary. Developed plot with tension, a choice by the hero, a twist and a satisfying resolution. Distinct personalities and developed dialogue. Rich scenes with light and atmosphere.

NARRATIVE RULES (ALL AGES)
1. NAMES: never invent a first name. Only the names provided may be used; refer to any other character by relationship ("Grandma", "the baker", "her best friend").
2. ARC: even for toddlers there is a progression. The book is never a set of disconnected scenes.
3. SECONDARY CHARACTERS: if provided, they appear in at least 40% of the scenes with an active role. Never mere extras.
4. LAST PAGE: always a reassuring, gentle or joyful ending with emotional closure.
5. EMOTIONS: every page carries one identifiable emotion, progressing naturally through the story.
6. EDUCATIONAL VALUE: woven naturally into the hero's actions and choices. Never an explicit moral lesson.
7. TIME AND PLACE: transitions must be logical and clearly perceptible in the text.
8. RHYTHM: alternate shorter and longer pages; never the same sentence count more than 2 pages in a row.

ILLUSTRATION PROMPT RULES
Global style, identical for all interior images: soft watercolor children's illustration, luminous soothing colors, light blended outlines, wash texture with gentle transparency. Forbidden: photographic realism, violence, frightening elements, hard shadows. NO text in the images except the title on the front cover. Square format, framing centered on the action and the emotion. Each illustration shows exactly what the preceding text page describes.

CHARACTER SHEETS
Produce a detailed sheet for each character, injected at the START of every image prompt where the character appears. Each sheet covers: apparent age and relative height; skin, hair (color, length, style), eyes (color, shape); facial features; default outfit with precise colors; constant accessories; 2-3 habitual expressions.

STRUCTURE OF EACH IMAGE PROMPT, in order:
1. [CHARACTERS] - paste the full sheet of each character present
2. [SCENE] - concrete action, posture and facial expression of each character, their interaction
3. [SETTING] - precise place, visible objects, layout
4. [MOOD] - light, dominant color palette, time of day, emotional atmosphere
5. [TECHNIQUE] - "Soft watercolor children's illustration, luminous soothing colors, light outlines, wash texture with transparency. Square format. No text in the image. Style consistent with every other illustration in the book."

FRONT COVER: the hero in an engaging pose tied to the theme, secondary characters if relevant, a setting evoking the theme, warm welcoming mood. End the prompt with: "The title <<[BOOK TITLE]>> is displayed in soft rounded lettering, clearly readable, integrated harmoniously in the image. Square format."

BACK COVER: single-color background with a light watercolor wash texture, harmonized with the front cover's dominant color. No character, no object, no text, no figurative element. Prompt: "[COLOR] plain background with light watercolor texture, soft warm wash. No character, no object, no text. Square format."

BOOK STRUCTURE
The book contains 30 pages plus covers:
- cover_front: illustration with title (image)
- cover_back: plain background plus blurb (image_and_text, with back_cover_text of 4-5 lines)
- page 2: dedication (text from the order, possibly empty)
- page 3: hero introduction illustration (image)
- pages 4-29: alternating text on even pages, illustration on odd pages
- page 30: oral questions for the child, if enabled
Image prompts to produce: 16 (front cover, back cover, and pages 3, 5, 7, 9, 11, 13, 15, 17, 19, 21, 23, 25, 27, 29).

OUTPUT JSON FORMAT
Answer with exactly this JSON shape:
{
  "title": "Book title",
  "character_sheets": {
    "hero": "Complete hero sheet...",
    "secondary": {"[relation]": "Complete sheet..."}
  },
  "color_palette": {
    "dominant": "#hex - description",
    "secondary": "#hex - description",
    "accent": "#hex - description",
    "cover_back_color": "#hex - description",
    "text_page_background": "#hex - description"
  },
  "pages": [
    {"page": "cover_front", "type": "image", "image_prompt": "..."},
    {"page": "cover_back", "type": "image_and_text", "image_prompt": "...", "back_cover_text": "..."},
    {"page": 2, "type": "dedication"},
    {"page": 3, "type": "image", "image_prompt": "..."},
    {"page": 4, "type": "text", "text": "..."},
    {"page": 29, "type": "image", "image_prompt": "..."},
    {"page": 30, "type": "questions", "questions": ["...", "..."]}
  ]
}`

// Generator produces the book manifest from a config.
type Generator struct {
	Text     providers.TextProvider
	Settings config.Settings
	Sink     status.Sink
	Retry    retry.Policy
}

// NewGenerator wires a Generator with the overload retry schedule: four
// attempts with a 30s, 60s, 90s backoff ramp, retrying only overload
// errors.
func NewGenerator(text providers.TextProvider, settings config.Settings, sink status.Sink) *Generator {
	g := &Generator{
		Text:     text,
		Settings: settings,
		Sink:     sink,
	}
	g.Retry = retry.Policy{
		Attempts:  4,
		Backoff:   retry.Linear(30 * time.Second),
		Retryable: providers.IsOverloaded,
		OnRetry: func(next int, delay time.Duration) {
			slog.Warn("model overloaded, retrying story generation", "next_attempt", next, "delay", delay)
			g.publish(status.PhaseText, fmt.Sprintf("Model overloaded, retrying in %s", delay))
		},
	}
	return g
}

func (g *Generator) publish(phase status.Phase, message string) {
	if g.Sink == nil {
		return
	}
	if err := g.Sink.Publish(status.RunStatus{Phase: phase, Message: message}); err != nil {
		slog.Warn("failed to publish status", "err", err)
	}
}

// Generate calls the text model, parses and validates the manifest, and
// writes it to the manifest path. An existing manifest is backed up first.
// An unparseable response is fatal after one repair attempt, with the raw
// response preserved on disk for diagnosis.
func (g *Generator) Generate(ctx context.Context, cfg *config.BookConfig) (*manifest.Manifest, error) {
	model := g.Settings.TextModel
	if model == "" {
		model = defaultTextModel
	}

	userPrompt := buildUserPrompt(cfg)
	slog.Info("generating book content", "model", model, "child", cfg.Child.FirstName, "theme", cfg.Book.Theme)

	var raw string
	start := time.Now()
	err := g.Retry.Do(ctx, func() error {
		var callErr error
		raw, callErr = g.Text.GenerateText(ctx, providers.TextRequest{
			Model:     model,
			System:    systemPrompt,
			Prompt:    userPrompt,
			MaxTokens: maxStoryTokens,
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("story generation failed: %w", err)
	}
	slog.Info("model response received", "elapsed", time.Since(start).Round(time.Second), "chars", len(raw))

	var m manifest.Manifest
	if err := jsonrepair.Unmarshal(raw, &m); err != nil {
		if saveErr := g.saveRaw(raw); saveErr != nil {
			slog.Warn("failed to preserve raw response", "err", saveErr)
		} else {
			slog.Info("raw response preserved for diagnosis", "path", g.Settings.RawResponsePath())
		}
		return nil, fmt.Errorf("failed to parse model response: %w", err)
	}

	warnings, err := m.Validate()
	if err != nil {
		if saveErr := g.saveRaw(raw); saveErr != nil {
			slog.Warn("failed to preserve raw response", "err", saveErr)
		}
		return nil, fmt.Errorf("generated manifest is unusable: %w", err)
	}
	for _, w := range warnings {
		slog.Warn("manifest validation warning", "warning", w)
	}

	path := g.Settings.ManifestPath()
	if _, statErr := os.Stat(path); statErr == nil {
		backup := path + ".bak"
		if data, readErr := os.ReadFile(path); readErr == nil {
			if writeErr := os.WriteFile(backup, data, 0o644); writeErr == nil {
				slog.Info("existing manifest backed up", "path", backup)
			}
		}
	}
	if err := m.Save(path); err != nil {
		return nil, fmt.Errorf("failed to save manifest: %w", err)
	}

	slog.Info("manifest saved",
		"title", m.Title,
		"pages", len(m.Pages),
		"image_prompts", len(m.ImagePages()),
		"path", path)
	return &m, nil
}

func (g *Generator) saveRaw(raw string) error {
	path := g.Settings.RawResponsePath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(raw), 0o644)
}

func buildUserPrompt(cfg *config.BookConfig) string {
	var chars strings.Builder
	if len(cfg.SecondaryCharacters) == 0 {
		chars.WriteString("No secondary characters.\n")
	} else {
		for _, c := range cfg.SecondaryCharacters {
			namePart := ""
			if c.DisplayName != "" {
				namePart = fmt.Sprintf(" (%s)", c.DisplayName)
			}
			fmt.Fprintf(&chars, "- %s%s: %s\n", c.Relation, namePart, c.Appearance)
		}
	}

	orDefault := func(v, fallback string) string {
		if v == "" {
			return fallback
		}
		return v
	}
	outfit := orDefault(cfg.Child.DefaultOutfit, "your choice, suited to the theme")
	tone := orDefault(cfg.Book.Tone, "your choice, suited to the theme and the age")
	title := orDefault(cfg.Book.TitleSuggestion, "your choice")
	dedication := orDefault(cfg.Book.Dedication, "none")

	questions := "no"
	if cfg.Options.IncludeQuestionsPage {
		n := cfg.Options.NumberOfQuestions
		if n == 0 {
			n = 5
		}
		questions = fmt.Sprintf("yes, generate %d questions", n)
	}

	return fmt.Sprintf(`Here is the information for the personalized book:

=== CHILD ===
- First name: %s
- Age: %d
- Gender: %s
- Physical appearance: %s
- Default outfit: %s

=== SECONDARY CHARACTERS ===
%s
=== BOOK ===
- Theme: %s
- Educational value: %s
- Tone: %s
- Title: %s
- Dedication: %s
- Closing questions: %s
- Language: %s

Now generate the complete book as JSON, following your instructions.`,
		cfg.Child.FirstName,
		cfg.Child.Age,
		cfg.Child.Gender,
		cfg.Child.Appearance,
		outfit,
		chars.String(),
		cfg.Book.Theme,
		cfg.Book.EducationalValue,
		tone,
		title,
		dedication,
		questions,
		cfg.Language())
}
