// Package dispatcher runs a herd of crawling agents against one domain.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/worker"
)

// ErrNoAgents is returned when a herd is started without agents.
var ErrNoAgents = errors.New("herd needs at least one agent")

// Dispatcher fans a domain's frontier out to a pool of workers.
type Dispatcher struct {
	frontier worker.Frontier
	domain   string
	workers  []*worker.Worker
	logger   *zap.Logger
}

// New creates a Dispatcher over workers that share frontier.
func New(frontier worker.Frontier, domain string, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		frontier: frontier,
		domain:   domain,
		workers:  workers,
		logger:   logger,
	}
}

// Run starts all workers and blocks until every one has retired or the
// context finishes. It returns nil when the herd retired on its own.
func (d *Dispatcher) Run(ctx context.Context) error {
	if len(d.workers) == 0 {
		return ErrNoAgents
	}
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			if err := wk.Run(ctx); err != nil && ctx.Err() == nil {
				d.logger.Error("agent stopped unexpectedly", zap.String("agent_id", wk.ID()), zap.Error(err))
			}
		}(w)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("herd interrupted: %w", err)
	}
	d.logger.Info("herd retired", zap.String("domain", d.domain), zap.Int("agents", len(d.workers)))
	return nil
}

// Seed adds listing URLs to the domain's frontier.
func (d *Dispatcher) Seed(ctx context.Context, urls ...string) (int64, error) {
	added, err := d.frontier.Enqueue(ctx, d.domain, urls...)
	if err != nil {
		return 0, fmt.Errorf("frontier enqueue: %w", err)
	}
	return added, nil
}
