package crawler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DiscoverItem is the work item that asks an agent to harvest a listing page
// instead of extracting a concrete URL.
const DiscoverItem = "explore"

// PagePlaceholder is replaced with the page number in Category.ListingURL.
const PagePlaceholder = "{page}"

// StopSentinel returns the reserved frontier entry that retires agents for domain.
func StopSentinel(domain string) string {
	return fmt.Sprintf("https://%s/signal-kill", domain)
}

// IsStopSentinel reports whether item is the stop sentinel for domain.
func IsStopSentinel(domain, item string) bool {
	return item == StopSentinel(domain)
}

// Category is one discovery track: a paginated listing plus the metadata
// stamped on every record extracted under it.
type Category struct {
	Name         string `json:"name"          mapstructure:"name"`
	ListingURL   string `json:"listing_url"   mapstructure:"listing_url"`
	CursorKey    string `json:"cursor_key"    mapstructure:"cursor_key"`
	ContractType string `json:"contract_type" mapstructure:"contract_type"`
	BuildingType string `json:"building_type" mapstructure:"building_type"`
}

// ListingPage renders the listing URL for the given page number.
func (c Category) ListingPage(page int64) string {
	return strings.ReplaceAll(c.ListingURL, PagePlaceholder, strconv.FormatInt(page, 10))
}

// Progress is the rehydrated crawl state of one domain.
type Progress struct {
	Domain        string `json:"domain"`
	CategoryIndex int    `json:"category_index"`
	Category      string `json:"category,omitempty"`
	Cursor        int64  `json:"cursor"`
	Misses        int64  `json:"misses"`
	Exhausted     bool   `json:"exhausted"`
	FrontierSize  int64  `json:"frontier_size"`
}

// Page is the raw result of a successful fetch.
type Page struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Outcome summarizes what a single unit of work did.
type Outcome string

// Outcome values reported by the state machine.
const (
	OutcomeEnqueued    Outcome = "enqueued"
	OutcomeMissed      Outcome = "missed"
	OutcomeAdvanced    Outcome = "advanced"
	OutcomeStopped     Outcome = "stopped"
	OutcomePersisted   Outcome = "persisted"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeFetchFailed Outcome = "fetch_failed"
)
