// Package elasticsearch persists listing records into an Elasticsearch index.
package elasticsearch

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"

	"github.com/JakeFAU/donkey-crawler/internal/crawler"
)

// DefaultIndex receives records when no index is configured.
const DefaultIndex = "listings"

const requestTimeout = 10 * time.Second

// Config describes the cluster connection.
type Config struct {
	URL      string
	Index    string
	Username string
	Password string
	APIKey   string
}

// Sink indexes records, one document per listing URL.
type Sink struct {
	client *es.Client
	index  string
	clock  crawler.Clock
	logger *zap.Logger
}

// NewClient builds an Elasticsearch client from cfg.
func NewClient(cfg Config) (*es.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("elasticsearch url is required")
	}
	client, err := es.NewClient(es.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch client: %w", err)
	}
	return client, nil
}

// New wraps an existing client.
func New(client *es.Client, index string, clock crawler.Clock, logger *zap.Logger) (*Sink, error) {
	if client == nil {
		return nil, errors.New("elasticsearch client is required")
	}
	if clock == nil {
		return nil, errors.New("clock is required")
	}
	if index == "" {
		index = DefaultIndex
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{client: client, index: index, clock: clock, logger: logger}, nil
}

// Persist stamps created_at and indexes the record under a URL-derived ID, so
// re-extracting a listing overwrites its previous document.
func (s *Sink) Persist(ctx context.Context, record crawler.Record) error {
	if record.URL == "" {
		return errors.New("record url is required")
	}
	record.CreatedAt = s.clock.Now()
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	id := DocumentID(record.URL)
	res, err := s.client.Index(
		s.index,
		bytes.NewReader(body),
		s.client.Index.WithContext(ctx),
		s.client.Index.WithDocumentID(id),
	)
	if err != nil {
		return fmt.Errorf("index record: %w", err)
	}
	defer s.closeResponse(res, "index", id)

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}
	s.logger.Debug("record indexed", zap.String("index", s.index), zap.String("url", record.URL))
	return nil
}

// EnsureIndex creates the index with the listing mapping when it is absent.
func (s *Sink) EnsureIndex(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	res, err := s.client.Indices.Exists([]string{s.index}, s.client.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("check index existence: %w", err)
	}
	s.closeResponse(res, "exists", "")
	switch res.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
	default:
		return fmt.Errorf("check index existence: unexpected status %d", res.StatusCode)
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(listingMapping()); err != nil {
		return fmt.Errorf("encode mapping: %w", err)
	}
	res, err = s.client.Indices.Create(
		s.index,
		s.client.Indices.Create.WithContext(ctx),
		s.client.Indices.Create.WithBody(&buf),
	)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer s.closeResponse(res, "create", "")
	if res.IsError() {
		return fmt.Errorf("create index: %s", res.String())
	}
	s.logger.Info("created index", zap.String("index", s.index))
	return nil
}

// DocumentID derives the document ID of a listing URL.
func DocumentID(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}

func (s *Sink) closeResponse(res *esapi.Response, operation, docID string) {
	if closeErr := res.Body.Close(); closeErr != nil {
		s.logger.Warn("close elasticsearch response",
			zap.String("operation", operation),
			zap.String("doc_id", docID),
			zap.Error(closeErr),
		)
	}
}

func listingMapping() map[string]any {
	keyword := map[string]any{"type": "keyword"}
	text := map[string]any{"type": "text"}
	integer := map[string]any{"type": "integer"}
	date := map[string]any{"type": "date"}
	return map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"url":             keyword,
				"title":           text,
				"address":         text,
				"location":        map[string]any{"type": "geo_point"},
				"category":        keyword,
				"contract_type":   keyword,
				"building_type":   keyword,
				"description":     text,
				"extra":           text,
				"price":           integer,
				"currency":        keyword,
				"broker":          keyword,
				"listed_at":       date,
				"partitioning":    keyword,
				"rooms":           integer,
				"kitchens":        integer,
				"built_area":      integer,
				"usable_area":     integer,
				"height_category": keyword,
				"built_year":      integer,
				"floor":           keyword,
				"created_at":      date,
			},
		},
	}
}
