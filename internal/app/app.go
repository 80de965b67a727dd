// Package app initializes and holds long-lived application services, acting
// as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/api"
	"github.com/JakeFAU/donkey-crawler/internal/category"
	"github.com/JakeFAU/donkey-crawler/internal/clock/system"
	"github.com/JakeFAU/donkey-crawler/internal/config"
	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/dispatcher"
	"github.com/JakeFAU/donkey-crawler/internal/donkey"
	"github.com/JakeFAU/donkey-crawler/internal/extractor/imobiliare"
	collyfetcher "github.com/JakeFAU/donkey-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/donkey-crawler/internal/metrics"
	esSink "github.com/JakeFAU/donkey-crawler/internal/sink/elasticsearch"
	memorySink "github.com/JakeFAU/donkey-crawler/internal/sink/memory"
	pgSink "github.com/JakeFAU/donkey-crawler/internal/sink/postgres"
	memoryStore "github.com/JakeFAU/donkey-crawler/internal/storage/memory"
	redisStore "github.com/JakeFAU/donkey-crawler/internal/storage/redis"
	"github.com/JakeFAU/donkey-crawler/internal/worker"
)

// ErrUnknownSite is returned when no extractor exists for the configured domain.
var ErrUnknownSite = errors.New("no extractor for site")

type site struct {
	extractor  crawler.Extractor
	categories []crawler.Category
}

var sites = map[string]func() site{
	imobiliare.Domain: func() site {
		return site{extractor: imobiliare.New(), categories: imobiliare.Categories()}
	},
}

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	store   crawler.ProgressStore
	sink    crawler.Sink
	machine *donkey.Machine
	closers []func() error
}

// NewApp builds every service from cfg. It fails fast when a backing service
// cannot be reached.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	a := &App{cfg: cfg, logger: logger}

	def, ok := sites[cfg.Site.Domain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSite, cfg.Site.Domain)
	}
	s := def()
	categories := cfg.Site.Categories
	if len(categories) == 0 {
		categories = s.categories
	}
	table, err := category.New(categories)
	if err != nil {
		return nil, fmt.Errorf("category table: %w", err)
	}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initSink(ctx); err != nil {
		a.Close()
		return nil, err
	}

	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.FetchTimeout(),
		Headers:   http.Header{"Accept-Language": {"ro-RO,ro;q=0.9,en;q=0.8"}},
	})
	a.machine = donkey.New(
		table,
		a.store,
		fetcher,
		s.extractor,
		a.sink,
		donkey.Config{MissThreshold: cfg.Site.MissThreshold},
		logger.Named("donkey"),
	)

	logger.Info("application services initialized",
		zap.String("domain", cfg.Site.Domain),
		zap.Int("categories", table.Len()),
		zap.String("store", cfg.Store.Provider),
		zap.String("sink", cfg.Sink.Provider),
	)
	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case config.ProviderRedis:
		client, err := redisStore.NewClient(ctx, redisStore.Config{
			Address:  a.cfg.Store.Redis.Address,
			Password: a.cfg.Store.Redis.Password,
			DB:       a.cfg.Store.Redis.DB,
		})
		if err != nil {
			return fmt.Errorf("init redis store: %w", err)
		}
		a.closers = append(a.closers, closeRedis(client))
		a.store = redisStore.NewProgressStore(client)
		a.logger.Info("using redis progress store", zap.String("address", a.cfg.Store.Redis.Address))
	case config.ProviderMemory:
		a.store = memoryStore.NewProgressStore()
		a.logger.Info("using in-memory progress store; progress is lost on exit")
	default:
		return fmt.Errorf("unknown store provider: %s", a.cfg.Store.Provider)
	}
	return nil
}

func (a *App) initSink(ctx context.Context) error {
	clock := system.New()
	switch a.cfg.Sink.Provider {
	case config.ProviderElasticsearch:
		esCfg := a.cfg.Sink.Elasticsearch
		client, err := esSink.NewClient(esSink.Config{
			URL:      esCfg.URL,
			Username: esCfg.Username,
			Password: esCfg.Password,
			APIKey:   esCfg.APIKey,
		})
		if err != nil {
			return fmt.Errorf("init elasticsearch sink: %w", err)
		}
		sink, err := esSink.New(client, esCfg.Index, clock, a.logger.Named("sink"))
		if err != nil {
			return fmt.Errorf("init elasticsearch sink: %w", err)
		}
		if err := sink.EnsureIndex(ctx); err != nil {
			return fmt.Errorf("init elasticsearch sink: %w", err)
		}
		a.sink = sink
		a.logger.Info("using elasticsearch sink", zap.String("index", esCfg.Index))
	case config.ProviderPostgres:
		pgCfg := a.cfg.Sink.Postgres
		sink, err := pgSink.NewSink(ctx, pgSink.Config{
			DSN:      pgCfg.DSN,
			Table:    pgCfg.Table,
			MaxConns: pgCfg.MaxConns,
		}, clock)
		if err != nil {
			return fmt.Errorf("init postgres sink: %w", err)
		}
		a.closers = append(a.closers, func() error { sink.Close(); return nil })
		if err := sink.EnsureTable(ctx); err != nil {
			return fmt.Errorf("init postgres sink: %w", err)
		}
		a.sink = sink
		a.logger.Info("using postgres sink", zap.String("table", pgCfg.Table))
	case config.ProviderMemory:
		a.sink = memorySink.New(clock)
		a.logger.Info("using in-memory sink; records are discarded on exit")
	default:
		return fmt.Errorf("unknown sink provider: %s", a.cfg.Sink.Provider)
	}
	return nil
}

// Domain returns the configured site domain.
func (a *App) Domain() string {
	return a.cfg.Site.Domain
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Store exposes the progress store.
func (a *App) Store() crawler.ProgressStore {
	return a.store
}

// Sink exposes the configured record sink.
func (a *App) Sink() crawler.Sink {
	return a.sink
}

// Machine returns the crawl state machine.
func (a *App) Machine() *donkey.Machine {
	return a.machine
}

// Herd builds a dispatcher with the configured number of agents.
func (a *App) Herd() *dispatcher.Dispatcher {
	workers := make([]*worker.Worker, 0, a.cfg.Crawler.Agents)
	for i := 0; i < a.cfg.Crawler.Agents; i++ {
		workers = append(workers, worker.New(a.machine, a.store, worker.Config{
			Domain:      a.cfg.Site.Domain,
			IdleBackoff: a.cfg.IdleBackoff(),
			RetryMax:    a.cfg.MaxBackoff(),
		}, a.logger.Named("worker")))
	}
	return dispatcher.New(a.store, a.cfg.Site.Domain, workers, a.logger.Named("herd"))
}

// Server builds the HTTP API.
func (a *App) Server() *api.Server {
	return api.NewServer(a.machine, a.store, a.cfg, a.logger.Named("api"))
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing service", zap.Error(err))
		}
	}
	a.closers = nil
}

func closeRedis(client *goredis.Client) func() error {
	return func() error {
		if err := client.Close(); err != nil {
			return fmt.Errorf("close redis: %w", err)
		}
		return nil
	}
}
