package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/manifest"
	"github.com/monlivreunique/bookforge/internal/pipeline"
)

func newImagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "images <config>",
		Short: "Generate the missing illustrations",
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

			p, err := pipeline.New(cfg, settings)
			if err != nil {
				return err
			}

			refs, err := p.PrepareCharacters(cmd.Context())
			if err != nil {
				return err
			}

			failed, err := p.Loop.Run(cmd.Context(), m, refs)
			if err != nil {
				return err
			}

			total := len(m.ImagePages())
			fmt.Printf("Illustrations: %d/%d generated\n", total-len(failed), total)
			if len(failed) > 0 {
				fmt.Printf("Failed pages (use 'bookforge retry'): %v\n", failed)
			}
			return nil
		},
	}
	return cmd
}

func newRetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retry <config>",
		Short: "Retry illustrations that failed in a previous run",
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

			p, err := pipeline.New(cfg, settings)
			if err != nil {
				return err
			}

			missing := p.Loop.Missing(m)
			if len(missing) == 0 {
				fmt.Println("Nothing to retry, all illustrations exist.")
				return nil
			}
			fmt.Printf("Retrying %d illustrations...\n", len(missing))

			refs, err := p.PrepareCharacters(cmd.Context())
			if err != nil {
				return err
			}

			failed, err := p.Loop.RetryFailed(cmd.Context(), m, refs)
			if err != nil {
				return err
			}
			fmt.Printf("Recovered %d/%d\n", len(missing)-len(failed), len(missing))
			return nil
		},
	}
	return cmd
}
