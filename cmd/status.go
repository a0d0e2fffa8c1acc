package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/monlivreunique/bookforge/internal/config"
	"github.com/monlivreunique/bookforge/internal/status"
)

func newStatusCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current run status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings := config.DefaultSettings()
			tracker := status.NewTracker(settings.StatusPath())

			if clear {
				if err := tracker.Clear(); err != nil {
					return err
				}
				fmt.Println("Status cleared.")
				return nil
			}

			st, err := tracker.Read()
			if err != nil {
				return err
			}

			fmt.Printf("Phase:   %s\n", st.Phase)
			if st.Message != "" {
				fmt.Printf("Message: %s\n", st.Message)
			}
			if st.ImagesTotal > 0 {
				fmt.Printf("Images:  %d/%d\n", st.ImagesDone, st.ImagesTotal)
			}
			if st.Error != "" {
				fmt.Printf("Error:   %s\n", st.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "reset the status file")
	return cmd
}
