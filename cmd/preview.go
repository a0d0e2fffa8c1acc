package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/preview"
)

func newPreviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview <config>",
		Short: "Render an HTML proof of the book before PDF assembly",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadOrder(args[0])
			if err != nil {
				return err
			}

			m, err := manifest.Load(settings.ManifestPath())
			if err != nil {
				return fmt.Errorf("no manifest yet, run 'bookforge text' first: %w", err)
			}

			path, err := preview.Write(m, cfg, settings.OutputDir)
			if err != nil {
				return err
			}

			fmt.Printf("Preview written: %s (open it in a browser)\n", path)
			return nil
		},
	}
	return cmd
}
