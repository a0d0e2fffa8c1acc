package config

import (
	"os"
	"path/filepath"
)

// Settings gathers the runtime knobs previously scattered as package
// constants: output layout, provider selection, and model names. Components
// receive it at construction; nothing reads it ambiently.
type Settings struct {
	// OutputDir is the root for every file the pipeline produces.
	OutputDir string
	// PhotosDir holds the source reference photos.
	PhotosDir string

	// TextProvider selects the story backend: "anthropic", "gemini" or
	// "ollama".
	TextProvider string
	TextModel    string
	VisionModel  string
	ImageModel   string
	ImageSize    string
}

// DefaultSettings builds Settings from the environment, falling back to the
// standard layout.
func DefaultSettings() Settings {
	return Settings{
		OutputDir:    envOr("BOOKFORGE_OUTPUT_DIR", "output"),
		PhotosDir:    envOr("BOOKFORGE_PHOTOS_DIR", "photos"),
		TextProvider: envOr("BOOKFORGE_TEXT_PROVIDER", "anthropic"),
		TextModel:    os.Getenv("BOOKFORGE_TEXT_MODEL"),
		VisionModel:  envOr("BOOKFORGE_VISION_MODEL", "gpt-4o"),
		ImageModel:   envOr("BOOKFORGE_IMAGE_MODEL", "gpt-image-1"),
		ImageSize:    envOr("BOOKFORGE_IMAGE_SIZE", "1024x1024"),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s Settings) ImagesDir() string  { return filepath.Join(s.OutputDir, "images") }
func (s Settings) BackupDir() string  { return filepath.Join(s.OutputDir, "images_backup") }
func (s Settings) AvatarsDir() string { return filepath.Join(s.OutputDir, "avatars") }
func (s Settings) TextDir() string    { return filepath.Join(s.OutputDir, "text") }
func (s Settings) FinalDir() string   { return filepath.Join(s.OutputDir, "final") }

func (s Settings) StatusPath() string   { return filepath.Join(s.OutputDir, "status.json") }
func (s Settings) ManifestPath() string { return filepath.Join(s.TextDir(), "book_content.json") }
func (s Settings) RawResponsePath() string {
	return filepath.Join(s.TextDir(), "raw_response.txt")
}
func (s Settings) PromptLogPath() string { return filepath.Join(s.OutputDir, "prompts_log.json") }
func (s Settings) DescriptionsPath() string {
	return filepath.Join(s.TextDir(), "character_descriptions.json")
}
