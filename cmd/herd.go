package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newHerdCmd creates the 'herd' subcommand, which runs the configured number
// of agents until the site is exhausted.
func newHerdCmd() *cobra.Command {
	var seeds []string
	cmd := &cobra.Command{
		Use:   "herd",
		Short: "Runs all agents until every category is exhausted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return runHerd(cmd.Context(), appInstance, seeds)
		},
	}
	cmd.Flags().StringSliceVar(&seeds, "seed", nil, "listing URLs to add to the frontier before starting")
	return cmd
}

func runHerd(ctx context.Context, appInstance App, seeds []string) error {
	herd := appInstance.Herd()
	if len(seeds) > 0 {
		added, err := herd.Seed(ctx, seeds...)
		if err != nil {
			return fmt.Errorf("seed frontier: %w", err)
		}
		appInstance.Logger().Info("frontier seeded", zap.Int64("added", added))
	}
	if err := herd.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			appInstance.Logger().Info("herd interrupted")
			return nil
		}
		return fmt.Errorf("run herd: %w", err)
	}
	return nil
}
