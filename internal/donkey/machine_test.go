package donkey

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/category"
	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/storage/memory"
)

const domain = "example.com"

var rentApartments = crawler.Category{
	Name:         "rent-apartments",
	ListingURL:   "https://example.com/rent-apartments/cluj?page={page}",
	ContractType: "rent",
	BuildingType: "apartment",
}

var rentStudios = crawler.Category{
	Name:         "rent-studios",
	ListingURL:   "https://example.com/rent-studios/cluj?page={page}",
	ContractType: "rent",
	BuildingType: "studio",
}

func TestDiscoveryExhaustsSingleCategory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	ctx := context.Background()

	want := []crawler.Outcome{
		crawler.OutcomeMissed,
		crawler.OutcomeMissed,
		crawler.OutcomeMissed,
		crawler.OutcomeAdvanced,
		crawler.OutcomeStopped,
	}
	for i, w := range want {
		got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
		require.NoError(t, err)
		require.Equal(t, w, got, "call %d", i+1)
		if i < 3 {
			misses, _ := h.store.Misses(ctx, domain, rentApartments.Name)
			require.Equal(t, int64(i+1), misses)
		}
	}

	idx, err := h.store.CategoryIndex(ctx, domain)
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.True(t, h.store.Contains(domain, crawler.StopSentinel(domain)))
	require.Equal(t, 4, h.fetcher.count(), "the stop call must not fetch")

	// Repeating discovery after exhaustion re-emits the sentinel idempotently.
	got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeStopped, got)
	size, _ := h.store.FrontierSize(ctx, domain)
	require.Equal(t, int64(1), size)
}

func TestDiscoveryAdvancesThroughAllCategories(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments, rentStudios)
	ctx := context.Background()
	threshold := int(DefaultMissThreshold)

	for catIdx, cat := range []crawler.Category{rentApartments, rentStudios} {
		for i := 0; i <= threshold; i++ {
			got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
			require.NoError(t, err)
			if i < threshold {
				require.Equal(t, crawler.OutcomeMissed, got)
			} else {
				require.Equal(t, crawler.OutcomeAdvanced, got)
			}
		}
		idx, _ := h.store.CategoryIndex(ctx, domain)
		require.Equal(t, catIdx+1, idx, "after exhausting %s", cat.Name)

		if next, ok := h.table.At(idx); ok {
			misses, _ := h.store.Misses(ctx, domain, next.Name)
			require.Zero(t, misses, "a freshly advanced category starts at zero misses")
		}
	}

	got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeStopped, got)
}

func TestDiscoveryCursorStartsAtOne(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.links = []string{"https://example.com/rent-apartments/cluj/1"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
		require.NoError(t, err)
	}
	require.Equal(t, []string{
		"https://example.com/rent-apartments/cluj?page=1",
		"https://example.com/rent-apartments/cluj?page=2",
	}, h.fetcher.urls())
}

func TestDiscoveryEnqueuesLinksWithoutResettingMisses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	ctx := context.Background()

	// miss, miss, hit, miss: the counter is cumulative, never reset on success.
	_, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	_, err = h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)

	h.extractor.setLinks("https://example.com/rent-apartments/cluj/a", "https://example.com/rent-apartments/cluj/b")
	got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeEnqueued, got)
	require.True(t, h.store.Contains(domain, "https://example.com/rent-apartments/cluj/a"))
	misses, _ := h.store.Misses(ctx, domain, rentApartments.Name)
	require.Equal(t, int64(2), misses)

	h.extractor.setLinks()
	got, err = h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeMissed, got)
	misses, _ = h.store.Misses(ctx, domain, rentApartments.Name)
	require.Equal(t, int64(3), misses)
}

func TestDiscoveryDuplicateLinksAreAbsorbed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.setLinks("https://example.com/rent-apartments/cluj/a")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
		require.NoError(t, err)
		require.Equal(t, crawler.OutcomeEnqueued, got)
	}
	size, _ := h.store.FrontierSize(ctx, domain)
	require.Equal(t, int64(1), size)
}

func TestDiscoveryFetchFailureFailsClosed(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.fetcher.err = &crawler.TransportError{URL: "x", StatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}
	h.extractor.setLinks("https://example.com/rent-apartments/cluj/a")
	ctx := context.Background()

	got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeMissed, got)
	require.Zero(t, h.extractor.linkCalls, "no parsing after a failed fetch")
	misses, _ := h.store.Misses(ctx, domain, rentApartments.Name)
	require.Equal(t, int64(1), misses)
	size, _ := h.store.FrontierSize(ctx, domain)
	require.Zero(t, size)
}

func TestDiscoveryExtractorErrorCountsAsMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.linkErr = errors.New("malformed html")
	ctx := context.Background()

	got, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeMissed, got)
}

func TestDiscoveryCanceledContextIsNotAMiss(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	h.fetcher.err = fmt.Errorf("colly fetch canceled: %w", context.Canceled)

	_, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.ErrorIs(t, err, context.Canceled)
	misses, _ := h.store.Misses(context.Background(), domain, rentApartments.Name)
	require.Zero(t, misses)
}

func TestConcurrentDiscoveryNeverRepeatsPages(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.setLinks("https://example.com/rent-apartments/cluj/a")
	ctx := context.Background()

	const agents = 12
	var wg sync.WaitGroup
	for i := 0; i < agents; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.machine.Run(ctx, domain, crawler.DiscoverItem); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, u := range h.fetcher.urls() {
		require.False(t, seen[u], "page fetched twice: %s", u)
		seen[u] = true
	}
	require.Len(t, seen, agents)
}

func TestExtractionPersistsNormalizedRecord(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.raw = crawler.RawRecord{Title: "Two rooms", Price: "1.200"}
	sink := new(mockSink)
	h.machine.sink = sink
	ctx := context.Background()
	listing := "https://example.com/rent-apartments/cluj/two-rooms-123"

	sink.On("Persist", mock.Anything, mock.MatchedBy(func(r crawler.Record) bool {
		return r.URL == listing &&
			r.ContractType == "rent" &&
			r.BuildingType == "apartment" &&
			r.Price != nil && *r.Price == 1200
	})).Return(nil).Once()

	got, err := h.machine.Run(ctx, domain, listing)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomePersisted, got)
	sink.AssertExpectations(t)
	require.Equal(t, rentApartments, h.extractor.lastCategory)
}

func TestExtractionUnmappedCategoryIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	ctx := context.Background()

	got, err := h.machine.Run(ctx, domain, "https://example.com/sale-houses/cluj/1")
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeSkipped, got)
	require.Zero(t, h.fetcher.count())
	require.Empty(t, h.sink.all())
	require.Empty(t, h.store.Snapshot(), "no store mutation for unmapped urls")
}

func TestExtractionFetchFailureIsDropped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.fetcher.err = &crawler.TransportError{URL: "x", StatusCode: http.StatusNotFound, Err: errors.New("not found")}
	ctx := context.Background()

	got, err := h.machine.Run(ctx, domain, "https://example.com/rent-apartments/cluj/gone")
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeFetchFailed, got)
	require.Empty(t, h.sink.all())
	misses, _ := h.store.Misses(ctx, domain, rentApartments.Name)
	require.Zero(t, misses, "extraction failures do not count toward exhaustion")
}

func TestExtractionParseFailureIsSkipped(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.extractor.recordErr = errors.New("not a listing page")

	got, err := h.machine.Run(context.Background(), domain, "https://example.com/rent-apartments/cluj/odd")
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeSkipped, got)
	require.Empty(t, h.sink.all())
}

func TestExtractionSinkFailurePropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	sink := new(mockSink)
	sink.On("Persist", mock.Anything, mock.Anything).Return(errors.New("index unavailable"))
	h.machine.sink = sink

	_, err := h.machine.Run(context.Background(), domain, "https://example.com/rent-apartments/cluj/1")
	require.ErrorContains(t, err, "index unavailable")
	require.False(t, IsFatal(err))
}

func TestStoreFailurePropagates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.machine.store = failingStore{ProgressStore: h.store, err: crawler.StoreError("incr", errors.New("connection refused"))}

	_, err := h.machine.Run(context.Background(), domain, crawler.DiscoverItem)
	require.ErrorIs(t, err, crawler.ErrStoreUnavailable)
	require.True(t, IsFatal(err))
	require.Zero(t, h.fetcher.count())
}

func TestProgressReportsActiveCategory(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	ctx := context.Background()

	_, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.NoError(t, err)

	p, err := h.machine.Progress(ctx, domain)
	require.NoError(t, err)
	require.Equal(t, crawler.Progress{
		Domain:   domain,
		Category: rentApartments.Name,
		Cursor:   1,
		Misses:   1,
	}, p)

	for i := 0; i < int(DefaultMissThreshold); i++ {
		_, err := h.machine.Run(ctx, domain, crawler.DiscoverItem)
		require.NoError(t, err)
	}
	p, err = h.machine.Progress(ctx, domain)
	require.NoError(t, err)
	require.True(t, p.Exhausted)
	require.Equal(t, 1, p.CategoryIndex)
}

func TestCustomThreshold(t *testing.T) {
	t.Parallel()

	h := newHarness(t, rentApartments)
	h.machine.cfg.MissThreshold = 1
	ctx := context.Background()

	got, _ := h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.Equal(t, crawler.OutcomeMissed, got)
	got, _ = h.machine.Run(ctx, domain, crawler.DiscoverItem)
	require.Equal(t, crawler.OutcomeAdvanced, got)
}

type harness struct {
	machine   *Machine
	table     *category.Table
	store     *memory.ProgressStore
	fetcher   *fakeFetcher
	extractor *fakeExtractor
	sink      *recordingSink
}

func newHarness(t *testing.T, cats ...crawler.Category) *harness {
	t.Helper()
	table, err := category.New(cats)
	require.NoError(t, err)
	h := &harness{
		table:     table,
		store:     memory.NewProgressStore(),
		fetcher:   &fakeFetcher{},
		extractor: &fakeExtractor{},
		sink:      &recordingSink{},
	}
	h.machine = New(table, h.store, h.fetcher, h.extractor, h.sink, Config{}, zap.NewNop())
	return h
}

type fakeFetcher struct {
	mu      sync.Mutex
	err     error
	fetched []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (crawler.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if f.err != nil {
		return crawler.Page{}, f.err
	}
	return crawler.Page{URL: url, StatusCode: http.StatusOK, Body: []byte("<html></html>")}, nil
}

func (f *fakeFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetched...)
}

func (f *fakeFetcher) count() int {
	return len(f.urls())
}

type fakeExtractor struct {
	mu           sync.Mutex
	links        []string
	linkErr      error
	linkCalls    int
	raw          crawler.RawRecord
	recordErr    error
	lastCategory crawler.Category
}

func (f *fakeExtractor) setLinks(links ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = links
}

func (f *fakeExtractor) ExtractLinks(crawler.Page) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	return append([]string(nil), f.links...), f.linkErr
}

func (f *fakeExtractor) ExtractRecord(_ crawler.Page, cat crawler.Category) (crawler.RawRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCategory = cat
	return f.raw, f.recordErr
}

type recordingSink struct {
	mu      sync.Mutex
	records []crawler.Record
}

func (s *recordingSink) Persist(_ context.Context, r crawler.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r)
	return nil
}

func (s *recordingSink) all() []crawler.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawler.Record(nil), s.records...)
}

type mockSink struct {
	mock.Mock
}

func (m *mockSink) Persist(ctx context.Context, r crawler.Record) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

type failingStore struct {
	*memory.ProgressStore
	err error
}

func (f failingStore) CategoryIndex(context.Context, string) (int, error) {
	return 0, f.err
}
