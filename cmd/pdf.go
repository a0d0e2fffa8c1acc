package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/assets"
	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/pdf"
)

func newPdfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pdf <config>",
		Short: "Assemble the final PDF from the generated pages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, settings, err := loadOrder(args[0])
			if err != nil {
				return err
			}

			m, err := manifest.Load(settings.ManifestPath())
			if err != nil {
				return fmt.Errorf("no manifest found: %w", err)
			}

			builder := pdf.NewBuilder(assets.NewDir(settings.ImagesDir()))
			path, err := builder.Build(m, cfg, settings.FinalDir())
			if err != nil {
				return err
			}

			fmt.Printf("PDF assembled: %s\n", path)
			return nil
		},
	}
	return cmd
}
