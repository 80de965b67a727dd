package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newServeCmd creates the 'serve' subcommand: the HTTP API, optionally with
// the herd running alongside it.
func newServeCmd(opts *rootOptions) *cobra.Command {
	var withHerd bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the HTTP API (and runs the herd unless --herd=false)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return serve(cmd.Context(), appInstance, opts.cfg.Server.Port, withHerd)
		},
	}
	cmd.Flags().BoolVar(&withHerd, "herd", true, "run the herd alongside the API")
	return cmd
}

func serve(ctx context.Context, appInstance App, port int, withHerd bool) error {
	logger := appInstance.Logger()
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           appInstance.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	herdDone := make(chan error, 1)
	if withHerd {
		go func() {
			logger.Info("herd started")
			herdDone <- runHerd(ctx, appInstance, nil)
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	herdRunning := withHerd
	select {
	case <-ctx.Done():
	case err := <-herdDone:
		herdRunning = false
		if err != nil {
			logger.Error("herd failed", zap.Error(err))
		} else {
			logger.Info("herd retired; API keeps serving progress")
		}
		<-ctx.Done()
	}
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if herdRunning {
		// Agents still hold store and sink connections that close after we return.
		if err := <-herdDone; err != nil {
			logger.Error("herd failed", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}
