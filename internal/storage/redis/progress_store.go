package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// ProgressStore keeps crawl progress in Redis. Counters use INCR and the
// frontier is a SET, so concurrent agents never lose updates.
type ProgressStore struct {
	client goredis.UniversalClient
}

// NewProgressStore wraps an existing client.
func NewProgressStore(client goredis.UniversalClient) *ProgressStore {
	return &ProgressStore{client: client}
}

// CategoryIndex returns the active category index, initializing it to 0 with
// SETNX when the key is absent.
func (s *ProgressStore) CategoryIndex(ctx context.Context, domain string) (int, error) {
	key := crawler.StateKey(domain)
	if err := s.client.SetNX(ctx, key, 0, 0).Err(); err != nil {
		return 0, crawler.StoreError("setnx "+key, err)
	}
	idx, err := s.client.Get(ctx, key).Int()
	if err != nil {
		return 0, crawler.StoreError("get "+key, err)
	}
	return idx, nil
}

// AdvanceCategory increments the category index.
func (s *ProgressStore) AdvanceCategory(ctx context.Context, domain string) (int, error) {
	n, err := s.incr(ctx, crawler.StateKey(domain))
	return int(n), err
}

// BumpMiss increments the per-category miss counter.
func (s *ProgressStore) BumpMiss(ctx context.Context, domain, category string) (int64, error) {
	return s.incr(ctx, crawler.MissKey(domain, category))
}

// Misses reads the per-category miss counter.
func (s *ProgressStore) Misses(ctx context.Context, domain, category string) (int64, error) {
	return s.read(ctx, crawler.MissKey(domain, category))
}

// NextCursor allocates and returns the next page number in one INCR.
func (s *ProgressStore) NextCursor(ctx context.Context, domain string, category crawler.Category) (int64, error) {
	return s.incr(ctx, crawler.CursorKey(domain, category))
}

// Cursor reads the last allocated page number.
func (s *ProgressStore) Cursor(ctx context.Context, domain string, category crawler.Category) (int64, error) {
	return s.read(ctx, crawler.CursorKey(domain, category))
}

// Enqueue adds urls to the frontier set and returns how many were new.
func (s *ProgressStore) Enqueue(ctx context.Context, domain string, urls ...string) (int64, error) {
	if len(urls) == 0 {
		return 0, nil
	}
	key := crawler.FrontierKey(domain)
	members := make([]any, len(urls))
	for i, u := range urls {
		members[i] = u
	}
	added, err := s.client.SAdd(ctx, key, members...).Result()
	if err != nil {
		return 0, crawler.StoreError("sadd "+key, err)
	}
	return added, nil
}

// SignalStop adds the stop sentinel to the frontier.
func (s *ProgressStore) SignalStop(ctx context.Context, domain string) error {
	_, err := s.Enqueue(ctx, domain, crawler.StopSentinel(domain))
	return err
}

// Pop removes a random frontier member. ok is false when the set is empty.
func (s *ProgressStore) Pop(ctx context.Context, domain string) (string, bool, error) {
	key := crawler.FrontierKey(domain)
	item, err := s.client.SPop(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, crawler.StoreError("spop "+key, err)
	}
	return item, true, nil
}

// FrontierSize returns SCARD of the frontier.
func (s *ProgressStore) FrontierSize(ctx context.Context, domain string) (int64, error) {
	key := crawler.FrontierKey(domain)
	n, err := s.client.SCard(ctx, key).Result()
	if err != nil {
		return 0, crawler.StoreError("scard "+key, err)
	}
	return n, nil
}

// Ping checks connectivity.
func (s *ProgressStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return crawler.StoreError("ping", err)
	}
	return nil
}

func (s *ProgressStore) incr(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, crawler.StoreError("incr "+key, err)
	}
	return n, nil
}

func (s *ProgressStore) read(ctx context.Context, key string) (int64, error) {
	n, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, crawler.StoreError(fmt.Sprintf("get %s", key), err)
	}
	return n, nil
}
