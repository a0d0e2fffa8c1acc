package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/pipeline"
)

func newRegenerateCmd() *cobra.Command {
	var (
		cascade bool
		prompt  string
	)

	cmd := &cobra.Command{
		Use:   "regenerate <config> <page>",
		Short: "Regenerate one illustration, backing up the current one",
		Long: `Regenerate redoes a single illustration. The existing image is kept as
a versioned backup and restored if every attempt fails.

<page> is a page number (3, 5, ...) or "cover_front" / "cover_back".
With --cascade on the front cover, every other illustration is redone
afterwards so the book picks up the new cover style.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadOrder(args[0])
			if err != nil {
				return err
			}

			id, err := manifest.ParsePageID(args[1])
			if err != nil {
				return fmt.Errorf("invalid page %q: %w", args[1], err)
			}

			m, err := manifest.Load(settings.ManifestPath())
			if err != nil {
				return fmt.Errorf("no manifest found: %w", err)
			}

			p, err := pipeline.New(cfg, settings)
			if err != nil {
				return err
			}

			refs, err := p.PrepareCharacters(cmd.Context())
			if err != nil {
				return err
			}

			if err := p.Loop.Regenerate(cmd.Context(), m, id, refs, prompt, cascade); err != nil {
				return err
			}

			fmt.Printf("Page %s regenerated. Run 'bookforge pdf' to reassemble the book.\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&cascade, "cascade", false, "after the front cover, regenerate every other illustration too")
	cmd.Flags().StringVar(&prompt, "prompt", "", "replace the manifest prompt for this page")
	return cmd
}
