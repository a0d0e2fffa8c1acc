// Package config holds the book order model and the runtime settings passed
// to every pipeline component.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Child describes the hero of the book.
type Child struct {
	FirstName     string `json:"first_name" yaml:"first_name"`
	Age           int    `json:"age" yaml:"age"`
	Gender        string `json:"gender" yaml:"gender"`
	Appearance    string `json:"appearance" yaml:"appearance"`
	Photo         string `json:"photo,omitempty" yaml:"photo,omitempty"`
	DefaultOutfit string `json:"default_outfit,omitempty" yaml:"default_outfit,omitempty"`
}

// SecondaryCharacter is a supporting character, identified by relation
// ("Grandma", "best friend") rather than an invented first name.
type SecondaryCharacter struct {
	Relation    string `json:"relation" yaml:"relation"`
	DisplayName string `json:"display_name,omitempty" yaml:"display_name,omitempty"`
	Appearance  string `json:"appearance" yaml:"appearance"`
	Photo       string `json:"photo,omitempty" yaml:"photo,omitempty"`
}

// Key returns the identifier under which this character's derived
// description is cached.
func (c SecondaryCharacter) Key() string {
	if c.DisplayName != "" {
		return c.DisplayName
	}
	return "secondary"
}

// Book holds the story parameters.
type Book struct {
	Theme            string `json:"theme" yaml:"theme"`
	EducationalValue string `json:"educational_value" yaml:"educational_value"`
	Tone             string `json:"tone,omitempty" yaml:"tone,omitempty"`
	Language         string `json:"language,omitempty" yaml:"language,omitempty"`
	Dedication       string `json:"dedication,omitempty" yaml:"dedication,omitempty"`
	TitleSuggestion  string `json:"title_suggestion,omitempty" yaml:"title_suggestion,omitempty"`
}

// Options toggles optional book features.
type Options struct {
	IncludeQuestionsPage bool `json:"include_questions_page" yaml:"include_questions_page"`
	NumberOfQuestions    int  `json:"number_of_questions,omitempty" yaml:"number_of_questions,omitempty"`
}

// BookConfig is the complete specification of one book order. It is
// immutable once generation starts.
type BookConfig struct {
	Child               Child                `json:"child" yaml:"child"`
	SecondaryCharacters []SecondaryCharacter `json:"secondary_characters,omitempty" yaml:"secondary_characters,omitempty"`
	Book                Book                 `json:"book" yaml:"book"`
	Options             Options              `json:"options" yaml:"options"`
	NotificationEmail   string               `json:"notification_email,omitempty" yaml:"notification_email,omitempty"`
}

// Load reads a book config from a JSON or YAML file, detected by extension.
func Load(path string) (*BookConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &BookConfig{}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (supported: .json, .yaml)", ext)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields generation cannot proceed without.
func (c *BookConfig) Validate() error {
	if strings.TrimSpace(c.Child.FirstName) == "" {
		return fmt.Errorf("child.first_name is required")
	}
	if c.Child.Age < 1 || c.Child.Age > 8 {
		return fmt.Errorf("child.age must be between 1 and 8, got %d", c.Child.Age)
	}
	if strings.TrimSpace(c.Book.Theme) == "" {
		return fmt.Errorf("book.theme is required")
	}
	if strings.TrimSpace(c.Book.EducationalValue) == "" {
		return fmt.Errorf("book.educational_value is required")
	}
	for i, sc := range c.SecondaryCharacters {
		if strings.TrimSpace(sc.Relation) == "" {
			return fmt.Errorf("secondary_characters[%d].relation is required", i)
		}
	}
	if c.Options.IncludeQuestionsPage && c.Options.NumberOfQuestions <= 0 {
		c.Options.NumberOfQuestions = 5
	}
	return nil
}

// Language returns the book language, defaulting to French like the
// original product.
func (c *BookConfig) Language() string {
	if c.Book.Language == "" {
		return "fr"
	}
	return c.Book.Language
}
