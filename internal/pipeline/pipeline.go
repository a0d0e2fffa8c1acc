// Package pipeline chains the book stages end to end: character
// references, story manifest, illustrations, PDF assembly, and the
// optional notification email. Every stage re-derives what is missing
// from disk, so an interrupted run resumes where it stopped.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/monlivreunique/bookforge/internal/anthropic"
	"github.com/monlivreunique/bookforge/internal/assets"
	"github.com/monlivreunique/bookforge/internal/characters"
	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/gemini"
	"github.com/monlivreunique/bookforge/internal/illustrate"
	"github.com/monlivreunique/bookforge/internal/mailer"
	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/ollama"
	"github.com/monlivreunique/bookforge/internal/openai"
	"github.com/monlivreunique/bookforge/internal/pdf"
	"github.com/monlivreunique/bookforge/internal/promptlog"
	"github.com/monlivreunique/bookforge/internal/providers"
	"github.com/monlivreunique/bookforge/internal/status"
	"github.com/monlivreunique/bookforge/internal/story"
)

// BookSender delivers the finished book. Satisfied by mailer.Notifier.
type BookSender interface {
	SendBook(ctx context.Context, pdfPath, bookTitle, childName, recipient string) (bool, string)
}

// Result is what a full run produced.
type Result struct {
	PDFPath     string
	FailedPages []manifest.PageID
	EmailSent   bool
	EmailDetail string
}

// Pipeline runs a book order through every stage.
type Pipeline struct {
	Config   *config.BookConfig
	Settings config.Settings
	Sink     status.Sink

	Characters *characters.Builder
	Story      *story.Generator
	Loop       *illustrate.Loop
	PDF        *pdf.Builder
	Mailer     BookSender
}

// TextProviderFor maps a provider name to its client.
func TextProviderFor(name string) (providers.TextProvider, error) {
	switch name {
	case "anthropic", "":
		return anthropic.New(), nil
	case "gemini":
		return gemini.New(), nil
	case "ollama":
		return ollama.New(), nil
	default:
		return nil, fmt.Errorf("unknown text provider: %s", name)
	}
}

// New wires a Pipeline with the real provider clients selected by the
// settings.
func New(cfg *config.BookConfig, settings config.Settings) (*Pipeline, error) {
	text, err := TextProviderFor(settings.TextProvider)
	if err != nil {
		return nil, err
	}

	oa := openai.New()
	sink := status.NewTracker(settings.StatusPath())
	store := assets.NewDir(settings.ImagesDir())
	backups := assets.NewDir(settings.BackupDir())
	log := promptlog.Open(settings.PromptLogPath())

	return &Pipeline{
		Config:     cfg,
		Settings:   settings,
		Sink:       sink,
		Characters: characters.NewBuilder(oa, oa, settings),
		Story:      story.NewGenerator(text, settings, sink),
		Loop:       illustrate.NewLoop(oa, store, backups, log, sink, settings.ImageModel, settings.ImageSize),
		PDF:        pdf.NewBuilder(store),
		Mailer:     mailer.New(),
	}, nil
}

// Run executes every stage. A failure in a required stage is published to
// the status sink and returned; illustration failures and delivery
// failures are carried in the Result instead.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	refs, err := p.PrepareCharacters(ctx)
	if err != nil {
		return nil, p.fail("character analysis failed", err)
	}

	m, err := p.EnsureManifest(ctx)
	if err != nil {
		return nil, p.fail("text generation failed", err)
	}

	result := &Result{}

	p.publish(status.RunStatus{Phase: status.PhaseImages, Message: "Generating illustrations", ImagesTotal: len(m.ImagePages())})
	failed, err := p.Loop.Run(ctx, m, refs)
	if err != nil {
		return nil, p.fail("illustration loop aborted", err)
	}
	result.FailedPages = failed
	p.publish(status.RunStatus{
		Phase:       status.PhaseImagesDone,
		Message:     "Illustrations generated",
		ImagesDone:  len(m.ImagePages()) - len(failed),
		ImagesTotal: len(m.ImagePages()),
	})

	p.publish(status.RunStatus{Phase: status.PhasePDF, Message: "Assembling PDF"})
	pdfPath, err := p.PDF.Build(m, p.Config, p.Settings.FinalDir())
	if err != nil {
		return nil, p.fail("pdf assembly failed", err)
	}
	result.PDFPath = pdfPath

	if p.Config.NotificationEmail != "" {
		p.publish(status.RunStatus{Phase: status.PhaseEmail, Message: "Sending notification email"})
		result.EmailSent, result.EmailDetail = p.Mailer.SendBook(ctx, pdfPath, m.Title, p.Config.Child.FirstName, p.Config.NotificationEmail)
		if !result.EmailSent {
			slog.Warn("notification not delivered", "detail", result.EmailDetail)
		}
	}

	p.publish(status.RunStatus{Phase: status.PhaseDone, Message: "Book complete", Done: true,
		ImagesDone: len(m.ImagePages()) - len(failed), ImagesTotal: len(m.ImagePages())})
	return result, nil
}

// PrepareCharacters analyzes the reference photos, generates any missing
// avatars, and returns the reference set with avatars superseding photos.
func (p *Pipeline) PrepareCharacters(ctx context.Context) (*characters.ReferenceSet, error) {
	p.publish(status.RunStatus{Phase: status.PhaseVision, Message: "Analyzing character photos"})

	refs, err := p.Characters.Prepare(ctx, p.Config)
	if err != nil {
		return nil, err
	}

	type avatarJob struct {
		key, name, photo string
	}
	var jobs []avatarJob
	if p.Config.Child.Photo != "" {
		jobs = append(jobs, avatarJob{"child", p.Config.Child.FirstName, p.Config.Child.Photo})
	}
	for _, c := range p.Config.SecondaryCharacters {
		if c.Photo != "" {
			jobs = append(jobs, avatarJob{c.Key(), c.Key(), c.Photo})
		}
	}

	generated := false
	for _, job := range jobs {
		if _, err := os.Stat(p.Characters.AvatarPath(job.key)); err == nil {
			continue
		}
		if _, err := os.Stat(job.photo); err != nil {
			continue
		}
		p.publish(status.RunStatus{Phase: status.PhaseVision, Message: fmt.Sprintf("Creating watercolor avatar for %s", job.name)})
		if _, err := p.Characters.GenerateAvatar(ctx, job.photo, job.key, job.name, refs.Descriptions[job.key]); err != nil {
			// The raw photo stays the reference for this character.
			slog.Warn("avatar generation failed, keeping raw photo as reference", "character", job.name, "err", err)
			continue
		}
		generated = true
	}

	if generated {
		refs, err = p.Characters.Prepare(ctx, p.Config)
		if err != nil {
			return nil, err
		}
	}
	return refs, nil
}

// EnsureManifest loads the existing manifest or generates a new one.
func (p *Pipeline) EnsureManifest(ctx context.Context) (*manifest.Manifest, error) {
	if m, err := manifest.Load(p.Settings.ManifestPath()); err == nil {
		slog.Info("manifest already present, reusing it", "title", m.Title, "path", p.Settings.ManifestPath())
		p.publish(status.RunStatus{Phase: status.PhaseTextDone, Message: "Story content reused"})
		return m, nil
	}

	p.publish(status.RunStatus{Phase: status.PhaseText, Message: "Writing the story"})
	m, err := p.Story.Generate(ctx, p.Config)
	if err != nil {
		return nil, err
	}
	p.publish(status.RunStatus{Phase: status.PhaseTextDone, Message: "Story content generated"})
	return m, nil
}

func (p *Pipeline) publish(s status.RunStatus) {
	if p.Sink == nil {
		return
	}
	if err := p.Sink.Publish(s); err != nil {
		slog.Warn("failed to publish status", "err", err)
	}
}

func (p *Pipeline) fail(message string, err error) error {
	p.publish(status.RunStatus{
		Phase:   status.PhaseError,
		Message: message,
		Error:   err.Error(),
		Done:    true,
	})
	return fmt.Errorf("%s: %w", message, err)
}
