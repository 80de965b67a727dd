// Package cmd defines and implements the CLI commands for the donkey executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/app"
	"github.com/JakeFAU/donkey-crawler/internal/config"
	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/logging"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner performs and reports on units of work.
type Runner interface {
	Run(ctx context.Context, domain, item string) (crawler.Outcome, error)
	Progress(ctx context.Context, domain string) (crawler.Progress, error)
}

// Herd runs the agents of a domain until they retire.
type Herd interface {
	Run(ctx context.Context) error
	Seed(ctx context.Context, urls ...string) (int64, error)
}

// App defines the application interface that commands use. This allows a
// fake app to be injected during tests.
type App interface {
	Close()
	Domain() string
	Logger() *zap.Logger
	Runner() Runner
	Herd() Herd
	Handler() http.Handler
}

type appAdapter struct {
	*app.App
}

func (a appAdapter) Runner() Runner {
	return a.App.Machine()
}

func (a appAdapter) Herd() Herd {
	return a.App.Herd()
}

func (a appAdapter) Handler() http.Handler {
	return a.App.Server().Handler()
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appAdapter{App: a}, nil
}

type rootOptions struct {
	cfgFile string
	cfg     config.Config
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "donkey",
		Short: "A herd of cooperating crawlers for real-estate listing sites.",
		Long: `donkey walks a classifieds site category by category. Each agent
either discovers listing URLs from the next page of the active category or
extracts one listing into the configured sink, sharing progress through
redis so any number of agents can work the same site.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			opts.cfg = cfg
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if appInstance, ok := cmd.Context().Value(appKey).(App); ok && appInstance != nil {
				appInstance.Close()
				_ = logging.Sync(appInstance.Logger())
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (env DONKEY_* overrides)")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newHerdCmd())
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newProgressCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "donkey: %v\n", err)
		os.Exit(1)
	}
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}
