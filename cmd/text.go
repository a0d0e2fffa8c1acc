package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/pipeline"
)

func newTextCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "text <config>",
		Short: "Generate the story manifest only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadOrder(args[0])
			if err != nil {
				return err
			}

			p, err := pipeline.New(cfg, settings)
			if err != nil {
				return err
			}

			if force {
				// EnsureManifest reuses an existing manifest; drop it first.
				if err := os.Remove(settings.ManifestPath()); err != nil && !os.IsNotExist(err) {
					return err
				}
			}

			if _, err := p.PrepareCharacters(cmd.Context()); err != nil {
				return err
			}
			m, err := p.EnsureManifest(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Title: %s\n", m.Title)
			fmt.Printf("Pages: %d (%d image prompts)\n", len(m.Pages), len(m.ImagePages()))
			fmt.Printf("Manifest: %s\n", settings.ManifestPath())
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "regenerate even if a manifest exists")
	return cmd
}
