// Package manifest models the ordered deck of page specifications that
// defines the finished book, as produced by the story generator.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Reserved page identifiers for the covers.
const (
	CoverFront = "cover_front"
	CoverBack  = "cover_back"
)

// Interior pages run from FirstInteriorPage to LastInteriorPage inclusive:
// page 2 is the dedication, odd pages 3-29 carry illustrations, even pages
// 4-28 carry the narrative, page 30 the optional questions.
const (
	FirstInteriorPage = 2
	LastInteriorPage  = 29
	QuestionsPage     = 30
)

// Kind classifies a page.
type Kind string

const (
	KindImage        Kind = "image"
	KindImageAndText Kind = "image_and_text"
	KindText         Kind = "text"
	KindDedication   Kind = "dedication"
	KindQuestions    Kind = "questions"
)

// PageID identifies a page: either one of the two cover sentinels or a
// small positive integer. The model emits covers as JSON strings and
// interior pages as JSON numbers, so the type unmarshals both.
type PageID struct {
	cover  string
	number int
}

func NumberedPage(n int) PageID   { return PageID{number: n} }
func CoverFrontPage() PageID      { return PageID{cover: CoverFront} }
func CoverBackPage() PageID       { return PageID{cover: CoverBack} }
func (id PageID) IsCover() bool   { return id.cover != "" }
func (id PageID) Number() int     { return id.number }
func (id PageID) IsZero() bool    { return id.cover == "" && id.number == 0 }

func (id PageID) String() string {
	if id.cover != "" {
		return id.cover
	}
	return strconv.Itoa(id.number)
}

// ParsePageID accepts "cover_front", "cover_back" or a positive integer.
func ParsePageID(s string) (PageID, error) {
	switch s {
	case CoverFront, CoverBack:
		return PageID{cover: s}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return PageID{}, fmt.Errorf("invalid page identifier %q", s)
	}
	return PageID{number: n}, nil
}

func (id PageID) MarshalJSON() ([]byte, error) {
	if id.cover != "" {
		return json.Marshal(id.cover)
	}
	return json.Marshal(id.number)
}

func (id *PageID) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		if n <= 0 {
			return fmt.Errorf("invalid page number %d", n)
		}
		*id = PageID{number: n}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("page identifier must be a string or number: %s", data)
	}
	parsed, err := ParsePageID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Filename returns the deterministic asset name for this page:
// cover_front.png, cover_back.png, page_03.png, ...
func (id PageID) Filename() string {
	if id.cover != "" {
		return id.cover + ".png"
	}
	return fmt.Sprintf("page_%02d.png", id.number)
}

// sortKey orders pages: front cover, back cover, then ascending numbers.
// The asset loop depends on this ordering for deterministic progress.
func (id PageID) sortKey() (int, int) {
	switch id.cover {
	case CoverFront:
		return 0, 0
	case CoverBack:
		return 1, 0
	}
	return 2, id.number
}

// PageSpec is one entry of the manifest.
type PageSpec struct {
	Page          PageID   `json:"page"`
	Type          Kind     `json:"type"`
	ImagePrompt   string   `json:"image_prompt,omitempty"`
	Text          string   `json:"text,omitempty"`
	BackCoverText string   `json:"back_cover_text,omitempty"`
	Questions     []string `json:"questions,omitempty"`
}

// HasImage reports whether this page carries an illustration.
func (p PageSpec) HasImage() bool {
	return p.Type == KindImage || p.Type == KindImageAndText
}

// CharacterSheets are the per-character appearance briefs the story model
// produced for its own prompt assembly.
type CharacterSheets struct {
	Hero      string            `json:"hero,omitempty"`
	Secondary map[string]string `json:"secondary,omitempty"`
}

// Palette is the book's color scheme. Values arrive as "#hex — description"
// strings.
type Palette struct {
	Dominant           string `json:"dominant,omitempty"`
	Secondary          string `json:"secondary,omitempty"`
	Accent             string `json:"accent,omitempty"`
	CoverBackColor     string `json:"cover_back_color,omitempty"`
	TextPageBackground string `json:"text_page_background,omitempty"`
}

// BackgroundHex extracts the hex code for text page backgrounds, falling
// back to a warm off-white when the palette is absent or malformed.
func (p Palette) BackgroundHex() string {
	return hexOr(p.TextPageBackground, "#FFF8F0")
}

func hexOr(value, fallback string) string {
	v := strings.TrimSpace(value)
	if i := strings.IndexAny(v, " —"); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSpace(v)
	if len(v) != 7 || !strings.HasPrefix(v, "#") {
		return fallback
	}
	return v
}

// Manifest is the single source of truth for what the finished book
// contains.
type Manifest struct {
	Title           string          `json:"title"`
	CharacterSheets CharacterSheets `json:"character_sheets,omitempty"`
	Palette         Palette         `json:"color_palette,omitempty"`
	Pages           []PageSpec      `json:"pages"`
}

// Page returns the spec with the given identifier.
func (m *Manifest) Page(id PageID) (*PageSpec, bool) {
	for i := range m.Pages {
		if m.Pages[i].Page == id {
			return &m.Pages[i], true
		}
	}
	return nil, false
}

// ImagePages returns the image-bearing subset in generation order: front
// cover, back cover, then ascending page numbers.
func (m *Manifest) ImagePages() []PageSpec {
	var pages []PageSpec
	for _, p := range m.Pages {
		if p.HasImage() {
			pages = append(pages, p)
		}
	}
	sort.SliceStable(pages, func(i, j int) bool {
		gi, ni := pages[i].Page.sortKey()
		gj, nj := pages[j].Page.sortKey()
		if gi != gj {
			return gi < gj
		}
		return ni < nj
	})
	return pages
}

// Validate checks structural completeness. Missing pages are warnings, not
// errors: the pipeline proceeds with what was produced and a missing image
// prompt surfaces later as a generation gap. A manifest with no title, no
// pages or a missing cover sentinel is unusable and reported as an error.
func (m *Manifest) Validate() (warnings []string, err error) {
	if strings.TrimSpace(m.Title) == "" {
		return nil, fmt.Errorf("manifest has no title")
	}
	if len(m.Pages) == 0 {
		return nil, fmt.Errorf("manifest has no pages")
	}

	seen := make(map[string]bool, len(m.Pages))
	for _, p := range m.Pages {
		key := p.Page.String()
		if seen[key] {
			return nil, fmt.Errorf("duplicate page identifier %s", key)
		}
		seen[key] = true
		if p.HasImage() && strings.TrimSpace(p.ImagePrompt) == "" {
			warnings = append(warnings, fmt.Sprintf("page %s has no image prompt", key))
		}
	}

	if !seen[CoverFront] {
		return nil, fmt.Errorf("manifest is missing the %s sentinel", CoverFront)
	}
	if !seen[CoverBack] {
		return nil, fmt.Errorf("manifest is missing the %s sentinel", CoverBack)
	}

	for n := FirstInteriorPage; n <= LastInteriorPage; n++ {
		if !seen[strconv.Itoa(n)] {
			warnings = append(warnings, fmt.Sprintf("page %d missing", n))
		}
	}
	return warnings, nil
}

// Load reads a manifest file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to finalize manifest: %w", err)
	}
	return nil
}
