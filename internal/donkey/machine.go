// Package donkey implements the crawl state machine run by each crawling agent.
//
// A Machine is stateless between calls. Every Run rehydrates the domain's
// progress from the shared store, performs exactly one unit of work (a
// discovery step or an extraction step) and writes any state change back
// through the store's atomic primitives.
package donkey

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/category"
	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/metrics"
)

// DefaultMissThreshold is the number of misses a category tolerates before
// the next miss advances to the following category.
const DefaultMissThreshold = 3

// Config controls Machine behavior.
type Config struct {
	MissThreshold int64
}

// Machine decides between discovery and extraction for one domain at a time.
type Machine struct {
	table     *category.Table
	store     crawler.ProgressStore
	fetcher   crawler.Fetcher
	extractor crawler.Extractor
	sink      crawler.Sink
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Machine.
func New(
	table *category.Table,
	store crawler.ProgressStore,
	fetcher crawler.Fetcher,
	extractor crawler.Extractor,
	sink crawler.Sink,
	cfg Config,
	logger *zap.Logger,
) *Machine {
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = DefaultMissThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Machine{
		table:     table,
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		sink:      sink,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run performs one unit of work. item is either crawler.DiscoverItem or a
// concrete listing URL. Only store, sink and context failures are returned;
// fetch and parse problems are logged and reported through the Outcome.
func (m *Machine) Run(ctx context.Context, domain, item string) (crawler.Outcome, error) {
	if item == crawler.DiscoverItem {
		return m.discover(ctx, domain)
	}
	return m.extract(ctx, domain, item)
}

// Progress rehydrates the current crawl state of domain for reporting.
func (m *Machine) Progress(ctx context.Context, domain string) (crawler.Progress, error) {
	idx, err := m.store.CategoryIndex(ctx, domain)
	if err != nil {
		return crawler.Progress{}, fmt.Errorf("read category index: %w", err)
	}
	size, err := m.store.FrontierSize(ctx, domain)
	if err != nil {
		return crawler.Progress{}, fmt.Errorf("read frontier size: %w", err)
	}
	p := crawler.Progress{Domain: domain, CategoryIndex: idx, FrontierSize: size}

	cat, ok := m.table.At(idx)
	if !ok {
		p.Exhausted = true
		return p, nil
	}
	p.Category = cat.Name
	if p.Cursor, err = m.store.Cursor(ctx, domain, cat); err != nil {
		return crawler.Progress{}, fmt.Errorf("read cursor: %w", err)
	}
	if p.Misses, err = m.store.Misses(ctx, domain, cat.Name); err != nil {
		return crawler.Progress{}, fmt.Errorf("read misses: %w", err)
	}
	return p, nil
}

func (m *Machine) discover(ctx context.Context, domain string) (crawler.Outcome, error) {
	idx, err := m.store.CategoryIndex(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("resolve category: %w", err)
	}
	cat, ok := m.table.At(idx)
	if !ok {
		m.logger.Info("categories exhausted, signaling stop", zap.String("domain", domain))
		if err := m.store.SignalStop(ctx, domain); err != nil {
			return "", fmt.Errorf("signal stop: %w", err)
		}
		metrics.ObserveStop(domain)
		return crawler.OutcomeStopped, nil
	}

	page, err := m.store.NextCursor(ctx, domain, cat)
	if err != nil {
		return "", fmt.Errorf("allocate cursor: %w", err)
	}
	listingURL := cat.ListingPage(page)
	log := m.logger.With(
		zap.String("domain", domain),
		zap.String("category", cat.Name),
		zap.Int64("page", page),
		zap.String("url", listingURL),
	)

	resp, err := m.fetcher.Fetch(ctx, listingURL)
	if err != nil {
		if interrupted(ctx, err) {
			return "", fmt.Errorf("fetch listing page: %w", err)
		}
		log.Warn("listing page fetch failed", zap.Error(err))
		metrics.ObserveFetchFailure(domain, "discover")
		return m.handleMiss(ctx, domain, cat, log)
	}

	links, err := m.extractor.ExtractLinks(resp)
	if err != nil {
		log.Warn("listing page could not be parsed", zap.Error(err))
		links = nil
	}
	if len(links) == 0 {
		log.Info("listing page yielded no links")
		return m.handleMiss(ctx, domain, cat, log)
	}

	added, err := m.store.Enqueue(ctx, domain, links...)
	if err != nil {
		return "", fmt.Errorf("enqueue links: %w", err)
	}
	log.Info("listing page harvested", zap.Int("links", len(links)), zap.Int64("new", added))
	metrics.ObserveDiscovery(domain, cat.Name, string(crawler.OutcomeEnqueued), len(links))
	return crawler.OutcomeEnqueued, nil
}

// handleMiss is the only path that advances categories.
func (m *Machine) handleMiss(
	ctx context.Context,
	domain string,
	cat crawler.Category,
	log *zap.Logger,
) (crawler.Outcome, error) {
	misses, err := m.store.BumpMiss(ctx, domain, cat.Name)
	if err != nil {
		return "", fmt.Errorf("bump miss: %w", err)
	}
	log = log.With(zap.Int64("misses", misses))
	if misses <= m.cfg.MissThreshold {
		log.Info("category miss recorded")
		metrics.ObserveDiscovery(domain, cat.Name, string(crawler.OutcomeMissed), 0)
		return crawler.OutcomeMissed, nil
	}

	next, err := m.store.AdvanceCategory(ctx, domain)
	if err != nil {
		return "", fmt.Errorf("advance category: %w", err)
	}
	log.Info("category exhausted, advancing", zap.Int("next_index", next))
	metrics.ObserveDiscovery(domain, cat.Name, string(crawler.OutcomeAdvanced), 0)
	return crawler.OutcomeAdvanced, nil
}

func (m *Machine) extract(ctx context.Context, domain, rawURL string) (crawler.Outcome, error) {
	log := m.logger.With(zap.String("domain", domain), zap.String("url", rawURL))

	cat, err := m.table.ForURL(rawURL)
	if err != nil {
		log.Warn("no category for url, skipping", zap.Error(err))
		metrics.ObserveRecord(domain, "", string(crawler.OutcomeSkipped))
		return crawler.OutcomeSkipped, nil
	}
	log = log.With(zap.String("category", cat.Name))

	resp, err := m.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		if interrupted(ctx, err) {
			return "", fmt.Errorf("fetch listing: %w", err)
		}
		log.Warn("listing fetch failed", zap.Error(err))
		metrics.ObserveFetchFailure(domain, "extract")
		metrics.ObserveRecord(domain, cat.Name, string(crawler.OutcomeFetchFailed))
		return crawler.OutcomeFetchFailed, nil
	}

	raw, err := m.extractor.ExtractRecord(resp, cat)
	if err != nil {
		log.Warn("listing could not be parsed", zap.Error(err))
		metrics.ObserveRecord(domain, cat.Name, string(crawler.OutcomeSkipped))
		return crawler.OutcomeSkipped, nil
	}

	record := crawler.BuildRecord(rawURL, raw, cat)
	if err := m.sink.Persist(ctx, record); err != nil {
		metrics.ObserveRecord(domain, cat.Name, "failed")
		return "", fmt.Errorf("persist record: %w", err)
	}
	log.Info("listing persisted")
	metrics.ObserveRecord(domain, cat.Name, string(crawler.OutcomePersisted))
	return crawler.OutcomePersisted, nil
}

// interrupted reports whether a fetch failed because the caller ran out of
// time rather than because the site misbehaved.
func interrupted(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// IsFatal reports whether err should stop the caller from continuing with the
// domain (store unavailable or context done) as opposed to a sink failure.
func IsFatal(err error) bool {
	return errors.Is(err, crawler.ErrStoreUnavailable) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}
