package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/promptlog"
)

func newAuditCmd() *cobra.Command {
	var (
		parquetPath string
		yamlPath    string
	)

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize the illustration prompt log, optionally exporting it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.DefaultSettings()
			log := promptlog.Open(settings.PromptLogPath())

			entries, err := log.Entries()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("Prompt log is empty.")
				return nil
			}

			s := promptlog.Summarize(entries)
			fmt.Printf("Calls:     %d\n", s.Calls)
			fmt.Printf("Succeeded: %d\n", s.Succeeded)
			fmt.Printf("Failed:    %d\n", s.Failed)
			fmt.Printf("Retries:   %d\n", s.Retries)
			fmt.Printf("Time:      %.1fs\n", s.TotalSeconds)

			if parquetPath != "" {
				if err := promptlog.ExportParquet(entries, parquetPath); err != nil {
					return err
				}
				fmt.Printf("Parquet export: %s\n", parquetPath)
			}
			if yamlPath != "" {
				if err := promptlog.ExportYAML(entries, yamlPath); err != nil {
					return err
				}
				fmt.Printf("YAML report: %s\n", yamlPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&parquetPath, "parquet", "", "export the log as a parquet file")
	cmd.Flags().StringVar(&yamlPath, "yaml", "", "export the log and summary as a YAML report")
	return cmd
}
