// Package worker implements the herd loop of a single crawling agent.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/metrics"
)

const requeueTimeout = 5 * time.Second

// Runner performs one unit of work for a domain.
type Runner interface {
	Run(ctx context.Context, domain, item string) (crawler.Outcome, error)
}

// Frontier is the part of the progress store the herd loop drives directly.
type Frontier interface {
	Pop(ctx context.Context, domain string) (string, bool, error)
	Enqueue(ctx context.Context, domain string, urls ...string) (int64, error)
	SignalStop(ctx context.Context, domain string) error
}

// Config controls Worker behavior.
type Config struct {
	Domain string
	// IdleBackoff is the pause after a discovery step that yielded no work.
	IdleBackoff time.Duration
	// RetryBase and RetryMax bound the delay after store or sink failures.
	RetryBase time.Duration
	RetryMax  time.Duration
}

// Worker pops items from the frontier and runs them until it retires.
type Worker struct {
	id       string
	runner   Runner
	frontier Frontier
	cfg      Config
	backoff  Backoff
	logger   *zap.Logger
}

// New constructs a Worker with a fresh agent ID.
func New(runner Runner, frontier Frontier, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	return &Worker{
		id:       id,
		runner:   runner,
		frontier: frontier,
		cfg:      cfg,
		backoff:  NewBackoff(cfg.RetryBase, cfg.RetryMax),
		logger:   logger.With(zap.String("agent_id", id), zap.String("domain", cfg.Domain)),
	}
}

// ID returns the agent ID used in logs.
func (w *Worker) ID() string {
	return w.id
}

// Run blocks until the agent retires (nil) or ctx ends (ctx.Err()).
func (w *Worker) Run(ctx context.Context) error {
	metrics.IncActiveAgents()
	defer metrics.DecActiveAgents()

	w.logger.Info("agent joined herd")
	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		item, err := w.next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.logger.Warn("frontier pop failed", zap.Error(err))
			if err := w.sleep(ctx, w.retryDelay(&failures)); err != nil {
				return err
			}
			continue
		}

		if crawler.IsStopSentinel(w.cfg.Domain, item) {
			// Put the sentinel back so the rest of the herd sees it.
			if err := w.frontier.SignalStop(ctx, w.cfg.Domain); err != nil {
				w.logger.Warn("re-signal stop failed", zap.Error(err))
			}
			w.logger.Info("stop sentinel received, agent retiring")
			return nil
		}

		outcome, err := w.runner.Run(ctx, w.cfg.Domain, item)
		if err != nil {
			if ctx.Err() != nil {
				// The item already left the frontier; hand it back before exiting.
				requeueCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), requeueTimeout)
				w.requeue(requeueCtx, item)
				cancel()
				return ctx.Err()
			}
			w.logger.Error("unit of work failed", zap.String("item", item), zap.Error(err))
			w.requeue(ctx, item)
			if err := w.sleep(ctx, w.retryDelay(&failures)); err != nil {
				return err
			}
			continue
		}
		failures = 0

		switch outcome {
		case crawler.OutcomeStopped:
			w.logger.Info("domain exhausted, agent retiring")
			return nil
		case crawler.OutcomeMissed, crawler.OutcomeFetchFailed:
			if item == crawler.DiscoverItem {
				if err := w.sleep(ctx, w.cfg.IdleBackoff); err != nil {
					return err
				}
			}
		}
	}
}

func (w *Worker) next(ctx context.Context) (string, error) {
	item, ok, err := w.frontier.Pop(ctx, w.cfg.Domain)
	if err != nil {
		return "", fmt.Errorf("pop frontier: %w", err)
	}
	if !ok {
		return crawler.DiscoverItem, nil
	}
	return item, nil
}

// requeue returns a popped listing URL to the frontier after a failed run.
func (w *Worker) requeue(ctx context.Context, item string) {
	if item == crawler.DiscoverItem {
		return
	}
	if _, err := w.frontier.Enqueue(ctx, w.cfg.Domain, item); err != nil {
		w.logger.Warn("requeue failed, url dropped", zap.String("item", item), zap.Error(err))
	}
}

func (w *Worker) retryDelay(failures *int) time.Duration {
	d := w.backoff.Delay(*failures)
	*failures++
	metrics.ObserveBackoff(d)
	return d
}

func (w *Worker) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
