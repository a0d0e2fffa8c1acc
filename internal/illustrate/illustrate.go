// Package illustrate drives the per-page image generation loop: resume
// from whatever is already on disk, anchor every call to the character
// references, retry transient failures, and keep the prompt log and the
// status tracker up to date.
package illustrate

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/monlivreunique/bookforge/internal/assets"
	"github.com/monlivreunique/bookforge/internal/characters"
	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/promptlog"
	"github.com/monlivreunique/bookforge/internal/providers"
	"github.com/monlivreunique/bookforge/internal/retry"
	"github.com/monlivreunique/bookforge/internal/status"
)

// StyleHeader is prepended to every plain generation prompt so all pages
// share one visual style.
const StyleHeader = "Soft watercolor children's book illustration, round and gentle art style, " +
	"warm and magical atmosphere, square 1:1 format, no text, no letters anywhere in the image. "

// CharacterInScene decides whether any of the named characters appears in
// a scene prompt. The illustration loop uses it to choose between a
// reference-anchored edit call and a plain generation.
type CharacterInScene func(names []string, scene string) bool

// DefaultCharacterInScene matches a character when their name occurs
// anywhere in the scene, case-insensitively.
func DefaultCharacterInScene(names []string, scene string) bool {
	lower := strings.ToLower(scene)
	for _, name := range names {
		if name != "" && strings.Contains(lower, strings.ToLower(name)) {
			return true
		}
	}
	return false
}

// Loop generates the book's illustrations.
type Loop struct {
	Images  providers.ImageProvider
	Store   assets.Store
	Backups assets.Store
	Log     *promptlog.Log
	Sink    status.Sink
	Retry   retry.Policy
	// Pace is the delay between consecutive successful calls.
	Pace    time.Duration
	InScene CharacterInScene
	Model   string
	Size    string
}

// NewLoop wires a Loop with the standard schedule: three attempts per
// image backed off 2s, 4s, 8s, and a 2s pause between calls.
func NewLoop(images providers.ImageProvider, store, backups assets.Store, log *promptlog.Log, sink status.Sink, model, size string) *Loop {
	return &Loop{
		Images:  images,
		Store:   store,
		Backups: backups,
		Log:     log,
		Sink:    sink,
		Retry: retry.Policy{
			Attempts: 3,
			Backoff:  retry.FixedSteps(2*time.Second, 4*time.Second, 8*time.Second),
		},
		Pace:    2 * time.Second,
		InScene: DefaultCharacterInScene,
		Model:   model,
		Size:    size,
	}
}

// Missing returns the image pages whose file is not yet in the store, in
// generation order.
func (l *Loop) Missing(m *manifest.Manifest) []manifest.PageSpec {
	var missing []manifest.PageSpec
	for _, p := range m.ImagePages() {
		if !l.Store.Exists(p.Page.Filename()) {
			missing = append(missing, p)
		}
	}
	return missing
}

// Run generates every missing illustration. A page that still fails after
// all retries is skipped, recorded, and returned; it never aborts the run.
func (l *Loop) Run(ctx context.Context, m *manifest.Manifest, refs *characters.ReferenceSet) ([]manifest.PageID, error) {
	pages := l.Missing(m)
	total := len(m.ImagePages())
	done := total - len(pages)

	if len(pages) == 0 {
		slog.Info("all illustrations already generated", "total", total)
		return nil, nil
	}
	slog.Info("generating illustrations", "missing", len(pages), "total", total)

	var failed []manifest.PageID
	for i, p := range pages {
		l.report(fmt.Sprintf("Generating image %s", p.Page), done, total)

		err := l.generateOne(ctx, p, refs, entryFlags{})
		if err != nil {
			if ctx.Err() != nil {
				return failed, ctx.Err()
			}
			slog.Error("illustration failed", "page", p.Page.String(), "err", err)
			failed = append(failed, p.Page)
			continue
		}
		done++
		l.report(fmt.Sprintf("Image %s done", p.Page), done, total)

		if l.Pace > 0 && i < len(pages)-1 {
			select {
			case <-time.After(l.Pace):
			case <-ctx.Done():
				return failed, ctx.Err()
			}
		}
	}

	if len(failed) > 0 {
		slog.Warn("some illustrations failed", "failed", len(failed))
	}
	return failed, nil
}

// RetryFailed is Run restricted to what is still missing. Kept as its own
// name so callers read naturally.
func (l *Loop) RetryFailed(ctx context.Context, m *manifest.Manifest, refs *characters.ReferenceSet) ([]manifest.PageID, error) {
	return l.Run(ctx, m, refs)
}

// Regenerate redoes one existing illustration. The current image is backed
// up first and restored if every attempt fails. customPrompt, when not
// empty, replaces the manifest prompt. With cascade and the front cover,
// every other illustration is regenerated afterwards so the whole book
// picks up the new cover style.
func (l *Loop) Regenerate(ctx context.Context, m *manifest.Manifest, id manifest.PageID, refs *characters.ReferenceSet, customPrompt string, cascade bool) error {
	page, ok := m.Page(id)
	if !ok {
		return fmt.Errorf("page %s not found in manifest", id)
	}
	if !page.HasImage() {
		return fmt.Errorf("page %s is not an illustration page", id)
	}

	spec := *page
	if customPrompt != "" {
		spec.ImagePrompt = customPrompt
	}

	if err := l.regenerateOne(ctx, spec, refs); err != nil {
		return err
	}

	if cascade && id.IsCover() && id.String() == manifest.CoverFront {
		slog.Info("cover changed, regenerating remaining illustrations")
		for _, p := range m.ImagePages() {
			if p.Page == id {
				continue
			}
			if err := l.regenerateOne(ctx, p, refs); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				slog.Error("cascade regeneration failed", "page", p.Page.String(), "err", err)
			}
			if l.Pace > 0 {
				select {
				case <-time.After(l.Pace):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
	return nil
}

func (l *Loop) regenerateOne(ctx context.Context, p manifest.PageSpec, refs *characters.ReferenceSet) error {
	backupKey, err := l.backup(p.Page)
	if err != nil {
		return err
	}
	if backupKey != "" {
		slog.Info("previous image backed up", "page", p.Page.String(), "backup", backupKey)
	}

	genErr := l.generateOne(ctx, p, refs, entryFlags{regeneration: true})
	if genErr != nil && backupKey != "" {
		if data, readErr := l.Backups.Read(backupKey); readErr == nil {
			if restoreErr := l.Store.Write(p.Page.Filename(), data); restoreErr == nil {
				slog.Info("previous image restored", "page", p.Page.String())
			}
		}
	}
	return genErr
}

// backup copies the current image into the backup store under the next
// free version suffix. Nothing to back up is not an error.
func (l *Loop) backup(id manifest.PageID) (string, error) {
	filename := id.Filename()
	if !l.Store.Exists(filename) {
		return "", nil
	}
	data, err := l.Store.Read(filename)
	if err != nil {
		return "", fmt.Errorf("failed to read image for backup: %w", err)
	}

	base := strings.TrimSuffix(filename, ".png")
	version := 1
	for l.Backups.Exists(fmt.Sprintf("%s_v%d.png", base, version)) {
		version++
	}
	key := fmt.Sprintf("%s_v%d.png", base, version)
	if err := l.Backups.Write(key, data); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return key, nil
}

type entryFlags struct {
	regeneration bool
}

// generateOne produces one illustration, logging every attempt. The image
// is written to the store only on success.
func (l *Loop) generateOne(ctx context.Context, p manifest.PageSpec, refs *characters.ReferenceSet, flags entryFlags) error {
	original := p.ImagePrompt
	enriched := original
	if refs != nil && refs.Brief != "" {
		enriched = refs.Brief + original
	}

	attempt := 0
	err := l.Retry.Do(ctx, func() error {
		attempt++
		start := time.Now()
		image, callErr := l.render(ctx, p, enriched, refs)

		l.logAttempt(promptlog.Entry{
			Page:            p.Page.String(),
			Prompt:          enriched,
			OriginalPrompt:  original,
			Success:         callErr == nil,
			Timestamp:       time.Now().Format("2006-01-02 15:04:05"),
			DurationSeconds: time.Since(start).Seconds(),
			UsedReferences:  referenceCount(refs),
			Retry:           attempt > 1,
			Regeneration:    flags.regeneration,
		})
		if callErr != nil {
			return callErr
		}
		return l.Store.Write(p.Page.Filename(), image)
	})
	if err != nil {
		return fmt.Errorf("page %s: %w", p.Page.String(), err)
	}
	return nil
}

// render picks the generation mode. Without a usable reference image the
// whole enriched prompt goes to plain generation. With one, the brief is
// split off and the scene is rendered as an edit of the reference, unless
// none of the characters appears in the scene at all.
func (l *Loop) render(ctx context.Context, p manifest.PageSpec, enriched string, refs *characters.ReferenceSet) ([]byte, error) {
	reference := primaryReference(refs)
	if reference == nil {
		return l.Images.GenerateImage(ctx, providers.ImageRequest{
			Model:  l.Model,
			Prompt: StyleHeader + enriched,
			Size:   l.Size,
		})
	}

	brief, scene := characters.SplitBrief(enriched)
	names := characters.BriefNames(brief)

	if len(names) > 0 && scene != "" && !l.inScene(names, scene) {
		return l.Images.GenerateImage(ctx, providers.ImageRequest{
			Model:  l.Model,
			Prompt: StyleHeader + scene,
			Size:   l.Size,
		})
	}

	// The reference image IS the visual character sheet. Drop the textual
	// one from the scene so the two cannot contradict each other and make
	// the character drift across pages.
	clean := stripCharacterSection(scene)

	traits := "hair color and style, skin tone,"
	if desc := characters.BriefText(brief); desc != "" {
		traits = desc + ","
	}
	layer1 := "Use this reference illustration of the character as the visual base. " +
		"CRITICAL: keep exactly the same character - same face, " + traits + " " +
		"same physical appearance as shown in the reference. " +
		"Generate a completely new illustrated scene with this exact same character. " +
		"No text or letters anywhere in the image."

	return l.Images.EditImage(ctx, providers.ImageRequest{
		Model:     l.Model,
		Prompt:    layer1 + "\n\nScene: " + StyleHeader + clean,
		Size:      l.Size,
		Reference: reference,
	})
}

func (l *Loop) inScene(names []string, scene string) bool {
	if l.InScene != nil {
		return l.InScene(names, scene)
	}
	return DefaultCharacterInScene(names, scene)
}

func (l *Loop) logAttempt(e promptlog.Entry) {
	if l.Log == nil {
		return
	}
	if err := l.Log.Append(e); err != nil {
		slog.Warn("failed to append prompt log", "err", err)
	}
}

func (l *Loop) report(message string, done, total int) {
	if l.Sink == nil {
		return
	}
	err := l.Sink.Publish(status.RunStatus{
		Phase:       status.PhaseImages,
		Message:     message,
		ImagesDone:  done,
		ImagesTotal: total,
	})
	if err != nil {
		slog.Warn("failed to publish status", "err", err)
	}
}

func referenceCount(refs *characters.ReferenceSet) int {
	if refs == nil {
		return 0
	}
	return len(refs.PhotoPaths)
}

// primaryReference loads the first reference image that exists on disk.
func primaryReference(refs *characters.ReferenceSet) []byte {
	if refs == nil {
		return nil
	}
	for _, path := range refs.PhotoPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data
		}
	}
	return nil
}

// stripCharacterSection removes the leading character-sheet section from a
// scene prompt, keeping everything from the first scene section onwards.
func stripCharacterSection(scene string) string {
	if !strings.Contains(scene, "[CHARACTERS]") && !strings.Contains(scene, "[PERSONNAGES]") {
		return scene
	}
	for _, section := range []string{"[SCENE]", "[SCÈNE]", "[SETTING]", "[DECOR]", "[DÉCOR]", "[MOOD]", "[AMBIANCE]", "[TECHNIQUE]"} {
		if idx := strings.Index(scene, section); idx >= 0 {
			return scene[idx:]
		}
	}
	return scene
}
