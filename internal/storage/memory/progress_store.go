// Package memory provides an in-process progress store for local development
// and tests. It mirrors the key layout of the redis store.
package memory

import (
	"context"
	"strconv"
	"sync"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// ProgressStore implements crawler.ProgressStore with mutex-guarded maps.
type ProgressStore struct {
	mu       sync.Mutex
	counters map[string]int64
	sets     map[string]map[string]struct{}
}

// NewProgressStore constructs an empty ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		counters: make(map[string]int64),
		sets:     make(map[string]map[string]struct{}),
	}
}

// CategoryIndex returns the active category index, initializing it to 0.
func (s *ProgressStore) CategoryIndex(_ context.Context, domain string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := crawler.StateKey(domain)
	if _, ok := s.counters[key]; !ok {
		s.counters[key] = 0
	}
	return int(s.counters[key]), nil
}

// AdvanceCategory moves the domain to its next category.
func (s *ProgressStore) AdvanceCategory(_ context.Context, domain string) (int, error) {
	return int(s.incr(crawler.StateKey(domain))), nil
}

// BumpMiss increments and returns the miss counter of a category.
func (s *ProgressStore) BumpMiss(_ context.Context, domain, category string) (int64, error) {
	return s.incr(crawler.MissKey(domain, category)), nil
}

// Misses reads the miss counter of a category.
func (s *ProgressStore) Misses(_ context.Context, domain, category string) (int64, error) {
	return s.get(crawler.MissKey(domain, category)), nil
}

// NextCursor allocates the next listing page number of a category.
func (s *ProgressStore) NextCursor(_ context.Context, domain string, category crawler.Category) (int64, error) {
	return s.incr(crawler.CursorKey(domain, category)), nil
}

// Cursor reads the last allocated page number of a category.
func (s *ProgressStore) Cursor(_ context.Context, domain string, category crawler.Category) (int64, error) {
	return s.get(crawler.CursorKey(domain, category)), nil
}

// Enqueue adds urls to the frontier and returns how many were new.
func (s *ProgressStore) Enqueue(_ context.Context, domain string, urls ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := crawler.FrontierKey(domain)
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{})
		s.sets[key] = set
	}
	var added int64
	for _, u := range urls {
		if _, exists := set[u]; exists {
			continue
		}
		set[u] = struct{}{}
		added++
	}
	return added, nil
}

// SignalStop enqueues the stop sentinel.
func (s *ProgressStore) SignalStop(ctx context.Context, domain string) error {
	_, err := s.Enqueue(ctx, domain, crawler.StopSentinel(domain))
	return err
}

// Pop removes and returns an arbitrary frontier entry.
func (s *ProgressStore) Pop(_ context.Context, domain string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sets[crawler.FrontierKey(domain)]
	for u := range set {
		delete(set, u)
		return u, true, nil
	}
	return "", false, nil
}

// FrontierSize returns the number of pending URLs.
func (s *ProgressStore) FrontierSize(_ context.Context, domain string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.sets[crawler.FrontierKey(domain)])), nil
}

// Contains reports whether url is pending in the frontier.
func (s *ProgressStore) Contains(domain, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sets[crawler.FrontierKey(domain)][url]
	return ok
}

// Ping always succeeds.
func (s *ProgressStore) Ping(context.Context) error {
	return nil
}

// Snapshot returns a copy of every counter, keyed like the redis layout.
func (s *ProgressStore) Snapshot() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.counters))
	for k, v := range s.counters {
		out[k] = strconv.FormatInt(v, 10)
	}
	return out
}

func (s *ProgressStore) incr(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[key]++
	return s.counters[key]
}

func (s *ProgressStore) get(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[key]
}
