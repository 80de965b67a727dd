package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// newRunCmd creates the 'run' subcommand: one unit of work, as a scheduler
// would invoke a single agent.
func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run <listing-url|" + crawler.DiscoverItem + ">",
		Short: "Performs one discovery or extraction step",
		Long: `Runs a single unit of work. Passing "explore" fetches the next listing
page of the active category and enqueues the listing URLs found there; passing a
listing URL extracts that listing into the sink.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			outcome, err := appInstance.Runner().Run(cmd.Context(), appInstance.Domain(), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			appInstance.Logger().Info("unit finished", zap.String("item", args[0]), zap.String("outcome", string(outcome)))
			return writeJSON(cmd, map[string]string{
				"domain":  appInstance.Domain(),
				"item":    args[0],
				"outcome": string(outcome),
			})
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
