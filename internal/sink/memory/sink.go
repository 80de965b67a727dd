// Package memory contains an in-memory record sink for development and tests.
package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// Sink stores persisted records for inspection, keyed by URL.
type Sink struct {
	mu      sync.RWMutex
	clock   crawler.Clock
	order   []string
	records map[string]crawler.Record
}

// New returns a memory Sink. A nil clock leaves created_at unset.
func New(clock crawler.Clock) *Sink {
	return &Sink{clock: clock, records: make(map[string]crawler.Record)}
}

// Persist records the listing, replacing any earlier version of the same URL.
func (s *Sink) Persist(_ context.Context, record crawler.Record) error {
	if record.URL == "" {
		return errors.New("record url is required")
	}
	if s.clock != nil {
		record.CreatedAt = s.clock.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.URL]; !ok {
		s.order = append(s.order, record.URL)
	}
	s.records[record.URL] = record
	return nil
}

// Records returns the stored records in first-persisted order.
func (s *Sink) Records() []crawler.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Record, 0, len(s.order))
	for _, url := range s.order {
		out = append(out, s.records[url])
	}
	return out
}

// Get returns the record stored for url.
func (s *Sink) Get(url string) (crawler.Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	return rec, ok
}
