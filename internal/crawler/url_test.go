package crawler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	got, err := NormalizeURL("HTTPS://Example.COM:443/a?b=2&a=1#frag")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/a?a=1&b=2", got)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	got, err := ResolveURL("https://example.com/rent/city?page=2", "/rent/city/listing-1#photos")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/rent/city/listing-1", got)

	got, err = ResolveURL("https://example.com/rent/city", "https://other.org/x")
	require.NoError(t, err)
	require.Equal(t, "https://other.org/x", got)
}

func TestCategorySegment(t *testing.T) {
	t.Parallel()

	seg, err := CategorySegment("https://example.com/rent-apartments/cluj/123")
	require.NoError(t, err)
	require.Equal(t, "rent-apartments", seg)

	seg, err = CategorySegment("https://example.com/")
	require.NoError(t, err)
	require.Empty(t, seg)

	_, err = CategorySegment("://bad")
	require.Error(t, err)
}

func TestListingPageAndKeys(t *testing.T) {
	t.Parallel()

	cat := Category{Name: "rent", ListingURL: "https://example.com/rent?page={page}"}
	require.Equal(t, "https://example.com/rent?page=7", cat.ListingPage(7))
	require.Equal(t, "page:example.com:rent", CursorKey("example.com", cat))

	cat.CursorKey = "page:example.com:shared"
	require.Equal(t, "page:example.com:shared", CursorKey("example.com", cat))
	require.Equal(t, "not_found:example.com:rent", MissKey("example.com", "rent"))
	require.Equal(t, "state:example.com", StateKey("example.com"))
	require.Equal(t, "frontier:example.com", FrontierKey("example.com"))
	require.True(t, IsStopSentinel("example.com", "https://example.com/signal-kill"))
}

func TestTransportErrorUnwraps(t *testing.T) {
	t.Parallel()

	inner := errTest("boom")
	err := &TransportError{URL: "https://example.com", StatusCode: 503, Err: inner}
	require.ErrorIs(t, err, inner)
	require.Contains(t, err.Error(), "status 503")

	storeErr := StoreError("incr state:x", inner)
	require.ErrorIs(t, storeErr, ErrStoreUnavailable)
	require.ErrorIs(t, storeErr, inner)
}

type errTest string

func (e errTest) Error() string { return string(e) }
