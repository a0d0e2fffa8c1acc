// Package characters derives visual references for the people in the book:
// a cached textual description per character, a tagged appearance brief
// prepended to illustration prompts, and an optional stylized avatar that
// anchors every later image call.
package characters

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/providers"
	"github.com/monlivreunique/bookforge/internal/retry"
)

// DescriptionsVersion stamps the description cache. Bumping it invalidates
// every cached description the next time the cache is loaded.
const DescriptionsVersion = "2"

const (
	briefHeader = "[CHARACTER APPEARANCE - reproduce exactly in the illustration]"
	briefFooter = "[END REFERENCE]"
)

// minDescriptionLength is the shortest vision answer still considered a
// real description rather than a refusal.
const minDescriptionLength = 25

var refusalPhrases = []string{
	"i'm sorry",
	"i am sorry",
	"i cannot",
	"i can't",
	"unable to help",
	"can't help",
	"not able to",
	"i apologize",
	"sorry, but",
}

// ReferenceSet is everything the illustration loop needs to keep the
// characters consistent across pages.
type ReferenceSet struct {
	// Descriptions maps character key to its textual appearance.
	Descriptions map[string]string
	// Brief is the tagged block prepended to every illustration prompt.
	// Empty when no character could be described.
	Brief string
	// PhotoPaths are the reference images sent to the image model, primary
	// character first. An avatar path replaces the raw photo when one has
	// been generated.
	PhotoPaths []string
	// Names are the display names appearing in the brief, used to decide
	// whether a scene includes the character.
	Names []string
}

// Builder produces ReferenceSets. Vision analyzes photos, Images renders
// avatars.
type Builder struct {
	Vision   providers.VisionProvider
	Images   providers.ImageProvider
	Settings config.Settings
	Retry    retry.Policy
}

// NewBuilder returns a Builder with the standard per-call retry schedule.
func NewBuilder(vision providers.VisionProvider, images providers.ImageProvider, settings config.Settings) *Builder {
	return &Builder{
		Vision:   vision,
		Images:   images,
		Settings: settings,
		Retry: retry.Policy{
			Attempts: 3,
			Backoff:  retry.FixedSteps(2*time.Second, 4*time.Second, 8*time.Second),
		},
	}
}

// Prepare loads or creates the character descriptions, builds the brief,
// and collects the reference image paths. Missing photos are not an error;
// they simply disable reference-anchored generation.
func (b *Builder) Prepare(ctx context.Context, cfg *config.BookConfig) (*ReferenceSet, error) {
	descriptions, err := b.loadOrCreateDescriptions(ctx, cfg)
	if err != nil {
		return nil, err
	}

	set := &ReferenceSet{
		Descriptions: descriptions,
		Brief:        BuildBrief(descriptions, cfg),
		PhotoPaths:   b.referencePaths(cfg),
	}
	set.Names = BriefNames(set.Brief)
	return set, nil
}

// referencePaths returns the reference image for each character that has
// one. A generated avatar supersedes the raw photo.
func (b *Builder) referencePaths(cfg *config.BookConfig) []string {
	var paths []string
	appendRef := func(key, photo string) {
		avatar := b.AvatarPath(key)
		if _, err := os.Stat(avatar); err == nil {
			paths = append(paths, avatar)
			return
		}
		if photo == "" {
			return
		}
		if _, err := os.Stat(photo); err == nil {
			paths = append(paths, photo)
		}
	}
	appendRef("child", cfg.Child.Photo)
	for _, char := range cfg.SecondaryCharacters {
		appendRef(char.Key(), char.Photo)
	}
	return paths
}

// AvatarPath returns where the stylized avatar for a character key lives.
func (b *Builder) AvatarPath(key string) string {
	return filepath.Join(b.Settings.AvatarsDir(), key+".png")
}

func (b *Builder) loadOrCreateDescriptions(ctx context.Context, cfg *config.BookConfig) (map[string]string, error) {
	cached := b.loadCache()

	type candidate struct {
		key, name, role, photo string
	}
	var candidates []candidate
	if cfg.Child.Photo != "" {
		candidates = append(candidates, candidate{
			key:   "child",
			name:  cfg.Child.FirstName,
			role:  fmt.Sprintf("child aged %d, %s", cfg.Child.Age, cfg.Child.Gender),
			photo: cfg.Child.Photo,
		})
	}
	for _, char := range cfg.SecondaryCharacters {
		if char.Photo != "" {
			candidates = append(candidates, candidate{
				key:   char.Key(),
				name:  char.Key(),
				role:  char.Relation,
				photo: char.Photo,
			})
		}
	}
	if len(candidates) == 0 {
		return map[string]string{}, nil
	}

	descriptions := make(map[string]string, len(candidates))
	for k, v := range cached {
		descriptions[k] = v
	}

	updated := false
	var transient []string
	for _, c := range candidates {
		if _, ok := descriptions[c.key]; ok {
			slog.Info("character description loaded from cache", "character", c.name)
			continue
		}
		if _, err := os.Stat(c.photo); err != nil {
			slog.Warn("reference photo not found, skipping analysis", "character", c.name, "photo", c.photo)
			continue
		}
		desc, err := b.Analyze(ctx, c.photo, c.name, c.role, cfg.Child.Age)
		if err != nil {
			// Degrade to the generic description for this run. It is not
			// cached, so the next run retries the photo.
			slog.Warn("photo analysis failed, continuing with a generic description", "character", c.name, "err", err)
			descriptions[c.key] = FallbackDescription(c.name, cfg.Child.Age)
			transient = append(transient, c.key)
			continue
		}
		descriptions[c.key] = desc
		updated = true
	}

	if updated {
		persisted := make(map[string]string, len(descriptions))
		for k, v := range descriptions {
			persisted[k] = v
		}
		for _, k := range transient {
			delete(persisted, k)
		}
		if err := b.saveCache(persisted); err != nil {
			return nil, err
		}
	}
	return descriptions, nil
}

// Analyze extracts a physical description from a photo. A refusal or an
// implausibly short answer is replaced by a generic description so refusal
// text never reaches an illustration prompt.
func (b *Builder) Analyze(ctx context.Context, photoPath, name, role string, age int) (string, error) {
	image, err := os.ReadFile(photoPath)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	prompt := fmt.Sprintf(
		"This image will be used as a visual reference for drawing a fictional character "+
			"named %s in a children's book illustration. "+
			"Describe only the visible physical traits useful for an illustrator: "+
			"hair color, hair texture and length, hairstyle, skin tone, approximate age, "+
			"eye color if visible, and any clothing or outfit with specific colors. "+
			"The character's role: %s. "+
			"Write a concise description under 100 words starting with '%s has...'. "+
			"Do not identify or name any real person.",
		name, role, name)

	var desc string
	err = b.Retry.Do(ctx, func() error {
		var callErr error
		desc, callErr = b.Vision.DescribeImage(ctx, providers.VisionRequest{
			Model:     b.Settings.VisionModel,
			Prompt:    prompt,
			Image:     image,
			MIMEType:  mimeFromPath(photoPath),
			MaxTokens: 200,
		})
		return callErr
	})
	if err != nil {
		return "", err
	}

	desc = strings.TrimSpace(desc)
	if IsRefusal(desc) {
		slog.Warn("vision model refused photo analysis, using generic description", "character", name)
		return FallbackDescription(name, age), nil
	}
	return desc, nil
}

// IsRefusal reports whether a vision answer is a content-policy refusal
// rather than a usable description.
func IsRefusal(desc string) bool {
	if len(desc) < minDescriptionLength {
		return true
	}
	lower := strings.ToLower(desc)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// FallbackDescription is the generic description used when photo analysis
// was refused or impossible.
func FallbackDescription(name string, age int) string {
	return fmt.Sprintf(
		"%s has a friendly, expressive face with soft rounded features, "+
			"bright curious eyes and a warm smile, typical of a %d-year-old child",
		name, age)
}

// GenerateAvatar turns a reference photo into the stylized watercolor
// portrait used as the canonical reference for every later illustration.
// The avatar is written under the avatars directory keyed by character.
func (b *Builder) GenerateAvatar(ctx context.Context, photoPath, key, name, physicalDesc string) (string, error) {
	photo, err := os.ReadFile(photoPath)
	if err != nil {
		return "", fmt.Errorf("failed to read photo: %w", err)
	}

	traits := "hair color and style, skin tone,"
	if physicalDesc != "" {
		traits = physicalDesc + ","
	}
	prompt := fmt.Sprintf(
		"Transform this reference photo into a soft watercolor children's book character portrait. "+
			"CRITICAL: faithfully reproduce the exact facial features, %s "+
			"and physical appearance from the reference photo. "+
			"Full body illustration of %s on a simple plain white background. "+
			"Natural friendly pose, character clearly visible from head to toe. "+
			"Soft watercolor style, round and gentle art, warm expression. "+
			"No text or letters anywhere in the image.",
		traits, name)

	var avatar []byte
	err = b.Retry.Do(ctx, func() error {
		var genErr error
		avatar, genErr = b.Images.EditImage(ctx, providers.ImageRequest{
			Model:     b.Settings.ImageModel,
			Prompt:    prompt,
			Size:      "1024x1024",
			Reference: photo,
		})
		return genErr
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate avatar for %s: %w", name, err)
	}

	path := b.AvatarPath(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create avatars directory: %w", err)
	}
	if err := os.WriteFile(path, avatar, 0o644); err != nil {
		return "", fmt.Errorf("failed to write avatar: %w", err)
	}
	slog.Info("avatar generated", "character", name, "path", path)
	return path, nil
}

// BuildBrief assembles the tagged appearance block prepended to every
// illustration prompt. Empty when there is nothing to describe.
func BuildBrief(descriptions map[string]string, cfg *config.BookConfig) string {
	if len(descriptions) == 0 {
		return ""
	}

	lines := []string{briefHeader}
	if desc, ok := descriptions["child"]; ok && cfg.Child.FirstName != "" {
		lines = append(lines, cfg.Child.FirstName+": "+desc)
	}
	for _, char := range cfg.SecondaryCharacters {
		if desc, ok := descriptions[char.Key()]; ok && char.DisplayName != "" {
			lines = append(lines, char.DisplayName+": "+desc)
		}
	}
	if len(lines) == 1 {
		return ""
	}
	lines = append(lines, briefFooter, "")
	return strings.Join(lines, "\n")
}

// SplitBrief separates an enriched prompt into its appearance brief and the
// scene prompt that follows. Prompts without a brief come back unchanged as
// the scene.
func SplitBrief(prompt string) (brief, scene string) {
	start := strings.Index(prompt, "[CHARACTER APPEARANCE")
	end := strings.Index(prompt, briefFooter)
	if start < 0 || end < 0 || end < start {
		return "", prompt
	}
	end += len(briefFooter)
	return prompt[start:end], strings.TrimSpace(prompt[end:])
}

// BriefNames extracts the character names listed in a brief.
func BriefNames(brief string) []string {
	var names []string
	for _, line := range strings.Split(brief, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		if name, _, ok := strings.Cut(line, ":"); ok {
			names = append(names, strings.TrimSpace(name))
		}
	}
	return names
}

// BriefText flattens a brief into the plain description sentence injected
// into image-edit instructions.
func BriefText(brief string) string {
	var parts []string
	for _, line := range strings.Split(brief, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") {
			continue
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}

func (b *Builder) loadCache() map[string]string {
	data, err := os.ReadFile(b.Settings.DescriptionsPath())
	if err != nil {
		return nil
	}
	raw := map[string]string{}
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("failed to parse description cache, ignoring it", "err", err)
		return nil
	}
	if raw["_version"] != DescriptionsVersion {
		slog.Info("stale description cache, regenerating descriptions")
		return nil
	}
	delete(raw, "_version")
	return raw
}

func (b *Builder) saveCache(descriptions map[string]string) error {
	out := map[string]string{"_version": DescriptionsVersion}
	for k, v := range descriptions {
		out[k] = v
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal descriptions: %w", err)
	}
	path := b.Settings.DescriptionsPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create text directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write description cache: %w", err)
	}
	return nil
}

func mimeFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}
