package crawler

import (
	"context"
	"time"
)

// Fetcher retrieves raw content for a URL. Transport and non-2xx failures are
// reported as *TransportError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// Extractor is the per-site parsing capability.
type Extractor interface {
	// ExtractRecord scrapes listing fields from a fetched listing page.
	ExtractRecord(page Page, category Category) (RawRecord, error)
	// ExtractLinks returns the absolute listing URLs found on a listing page.
	ExtractLinks(page Page) ([]string, error)
}

// Sink persists one normalized record.
type Sink interface {
	Persist(ctx context.Context, record Record) error
}

// ProgressStore is the shared, durable crawl state. Every method must be
// atomic per key; failures wrap ErrStoreUnavailable.
type ProgressStore interface {
	CategoryIndex(ctx context.Context, domain string) (int, error)
	AdvanceCategory(ctx context.Context, domain string) (int, error)
	BumpMiss(ctx context.Context, domain, category string) (int64, error)
	Misses(ctx context.Context, domain, category string) (int64, error)
	NextCursor(ctx context.Context, domain string, category Category) (int64, error)
	Cursor(ctx context.Context, domain string, category Category) (int64, error)
	Enqueue(ctx context.Context, domain string, urls ...string) (int64, error)
	SignalStop(ctx context.Context, domain string) error
	Pop(ctx context.Context, domain string) (string, bool, error)
	FrontierSize(ctx context.Context, domain string) (int64, error)
	Ping(ctx context.Context) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// CursorKey returns the store key holding the pagination cursor of category.
func CursorKey(domain string, category Category) string {
	if category.CursorKey != "" {
		return category.CursorKey
	}
	return "page:" + domain + ":" + category.Name
}

// StateKey returns the store key holding the active category index.
func StateKey(domain string) string {
	return "state:" + domain
}

// MissKey returns the store key holding the miss counter of a category.
func MissKey(domain, category string) string {
	return "not_found:" + domain + ":" + category
}

// FrontierKey returns the store key of the pending URL set.
func FrontierKey(domain string) string {
	return "frontier:" + domain
}
