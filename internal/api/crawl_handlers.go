package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
	"github.com/JakeFAU/donkey-crawler/internal/donkey"
)

const (
	progressTimeout = 3 * time.Second
	runTimeout      = 45 * time.Second
	maxSeedURLs     = 500
)

// Machine is the crawl state machine as seen by the API.
type Machine interface {
	Run(ctx context.Context, domain, item string) (crawler.Outcome, error)
	Progress(ctx context.Context, domain string) (crawler.Progress, error)
}

// Frontier is the slice of the progress store the API reads and seeds.
type Frontier interface {
	Ping(ctx context.Context) error
	FrontierSize(ctx context.Context, domain string) (int64, error)
	Enqueue(ctx context.Context, domain string, urls ...string) (int64, error)
}

// CrawlHandler exposes progress reporting and single-unit execution for the
// configured domain.
type CrawlHandler struct {
	machine  Machine
	frontier Frontier
	domain   string
	logger   *zap.Logger
}

// NewCrawlHandler wires the machine, store and logger.
func NewCrawlHandler(machine Machine, frontier Frontier, domain string, logger *zap.Logger) *CrawlHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CrawlHandler{
		machine:  machine,
		frontier: frontier,
		domain:   domain,
		logger:   logger,
	}
}

// GetProgress handles GET /v1/progress. It returns the rehydrated progress
// of the domain, or 503 when the store cannot be read.
func (h *CrawlHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	if h.machine == nil {
		writeError(w, http.StatusServiceUnavailable, "state machine unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	progress, err := h.machine.Progress(ctx, h.domain)
	if err != nil {
		h.logger.Error("read progress failed", zap.String("domain", h.domain), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "progress unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
}

// GetFrontier handles GET /v1/frontier and reports the pending URL count.
func (h *CrawlHandler) GetFrontier(w http.ResponseWriter, r *http.Request) {
	if h.frontier == nil {
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	size, err := h.frontier.FrontierSize(ctx, h.domain)
	if err != nil {
		h.logger.Error("read frontier failed", zap.String("domain", h.domain), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, frontierDTO{Domain: h.domain, Size: size})
}

// SeedFrontier handles POST /v1/frontier {"urls": [...]}. Duplicates of
// already-pending URLs are ignored; the response reports how many were new.
func (h *CrawlHandler) SeedFrontier(w http.ResponseWriter, r *http.Request) {
	if h.frontier == nil {
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	var req seedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	urls, err := normalizeSeeds(req.URLs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), progressTimeout)
	defer cancel()

	added, err := h.frontier.Enqueue(ctx, h.domain, urls...)
	if err != nil {
		h.logger.Error("seed frontier failed", zap.String("domain", h.domain), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int64{"added": added})
}

// RunUnit handles POST /v1/run {"item": "explore" | "<listing url>"} and
// performs one unit of work. Store failures map to 503, sink failures to 502.
func (h *CrawlHandler) RunUnit(w http.ResponseWriter, r *http.Request) {
	if h.machine == nil {
		writeError(w, http.StatusServiceUnavailable, "state machine unavailable")
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	item := strings.TrimSpace(req.Item)
	if item == "" {
		writeError(w, http.StatusBadRequest, "item required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	outcome, err := h.machine.Run(ctx, h.domain, item)
	if err != nil {
		h.logger.Error("run failed", zap.String("domain", h.domain), zap.String("item", item), zap.Error(err))
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			writeError(w, http.StatusGatewayTimeout, "run timed out")
		case donkey.IsFatal(err):
			writeError(w, http.StatusServiceUnavailable, "progress store unavailable")
		default:
			writeError(w, http.StatusBadGateway, "record sink unavailable")
		}
		return
	}
	writeJSON(w, http.StatusOK, runDTO{Domain: h.domain, Item: item, Outcome: string(outcome)})
}

func normalizeSeeds(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, errors.New("urls required")
	}
	if len(raw) > maxSeedURLs {
		return nil, errors.New("too many urls")
	}
	out := make([]string, 0, len(raw))
	for _, u := range raw {
		norm, err := crawler.NormalizeURL(strings.TrimSpace(u))
		if err != nil || !strings.HasPrefix(norm, "http") {
			return nil, errors.New("invalid url: " + u)
		}
		out = append(out, norm)
	}
	return out, nil
}

type seedRequest struct {
	URLs []string `json:"urls"`
}

type runRequest struct {
	Item string `json:"item"`
}

type frontierDTO struct {
	Domain string `json:"domain"`
	Size   int64  `json:"size"`
}

type runDTO struct {
	Domain  string `json:"domain"`
	Item    string `json:"item"`
	Outcome string `json:"outcome"`
}
