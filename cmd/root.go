package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "bookforge",
		Short: "Personalized illustrated children's book generator",
		Long: `Bookforge turns a short description of a child into a complete
illustrated picture book: an LLM writes the story and the illustration
prompts, an image model paints every page anchored to the child's photo,
and the result is assembled into a print-ready square PDF.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
			slog.SetDefault(logger)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	cmd.AddCommand(newGenerateCmd())
	cmd.AddCommand(newTextCmd())
	cmd.AddCommand(newImagesCmd())
	cmd.AddCommand(newPdfCmd())
	cmd.AddCommand(newPreviewCmd())
	cmd.AddCommand(newRegenerateCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newAuditCmd())

	return cmd
}
