package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// newProgressCmd creates the 'progress' subcommand, which prints the shared
// crawl state of the configured domain.
func newProgressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "progress",
		Short: "Prints the active category, cursor, misses and frontier size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			progress, err := appInstance.Runner().Progress(cmd.Context(), appInstance.Domain())
			if err != nil {
				return fmt.Errorf("read progress: %w", err)
			}
			return writeJSON(cmd, progress)
		},
	}
}
