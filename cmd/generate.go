package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/pipeline"
)

// loadOrder reads the book order (Load validates it) and derives the
// runtime settings from the environment.
func loadOrder(path string) (*config.BookConfig, config.Settings, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, config.Settings{}, err
	}
	return cfg, config.DefaultSettings(), nil
}

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate <config>",
		Short: "Run the full pipeline: story, illustrations, PDF, notification",
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

			res, err := p.Run(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Book complete: %s\n", res.PDFPath)
			if len(res.FailedPages) > 0 {
				fmt.Printf("Failed pages (use 'bookforge retry'): %v\n", res.FailedPages)
			}
			if cfg.NotificationEmail != "" {
				fmt.Printf("Notification: %s\n", res.EmailDetail)
			}
			return nil
		},
	}
	return cmd
}
