// Package engine wraps the external search engine (Meilisearch) behind
// a small interface: ensure the index exists, upsert a batch of
// records, and run the search/facet queries the query layer needs.
// Nothing upstream of this package knows it is talking to Meilisearch
// specifically — that keeps the query-shaping and batching code
// testable without a live engine.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"github.com/logstream/gateway/internal/model"
)

// Config points the client at a running Meilisearch instance.
type Config struct {
	Host           string
	APIKey         string
	IndexName      string
	RequestTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.IndexName == "" {
		c.IndexName = "logs"
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = 5 * time.Second
	}
	return c
}

// Client is a thin, timeout-bounded wrapper around the Meilisearch SDK.
type Client struct {
	sdk        *meilisearch.Client
	indexUID   string
	reqTimeout time.Duration
}

// New constructs a Client. It does not contact the engine; call
// EnsureIndex to do that.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	sdk := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:    cfg.Host,
		APIKey:  cfg.APIKey,
		Timeout: cfg.RequestTimeout,
	})
	return &Client{sdk: sdk, indexUID: cfg.IndexName, reqTimeout: cfg.RequestTimeout}
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.reqTimeout)
}

// EnsureIndex creates the index and its attribute configuration if
// missing. It is safe to call on every boot — Meilisearch no-ops
// attribute updates that already match.
func (c *Client) EnsureIndex(ctx context.Context) error {
	cctx, cancel := c.ctx(ctx)
	defer cancel()

	_, err := c.sdk.Index(c.indexUID).FetchInfo()
	if err != nil {
		task, cerr := c.sdk.CreateIndex(&meilisearch.IndexConfig{
			Uid:        c.indexUID,
			PrimaryKey: "id",
		})
		if cerr != nil {
			return fmt.Errorf("engine: create index: %w", cerr)
		}
		if _, werr := c.sdk.WaitForTask(task.TaskUID); werr != nil {
			return fmt.Errorf("engine: wait for index creation: %w", werr)
		}
	}

	idx := c.sdk.Index(c.indexUID)

	searchable := []string{"message", "source", "meta", "project"}
	if _, err := idx.UpdateSearchableAttributes(&searchable); err != nil {
		return fmt.Errorf("engine: update searchable attributes: %w", err)
	}

	filterable := []string{"project", "level", "environment", "traceId", "requestId", "source", "timestampMs"}
	if _, err := idx.UpdateFilterableAttributes(&filterable); err != nil {
		return fmt.Errorf("engine: update filterable attributes: %w", err)
	}

	sortable := []string{"timestamp", "timestampMs"}
	if _, err := idx.UpdateSortableAttributes(&sortable); err != nil {
		return fmt.Errorf("engine: update sortable attributes: %w", err)
	}

	_ = cctx // the attribute-update calls above don't take a context in this SDK generation
	return nil
}

// Probe checks that the index exists and is reachable without creating
// or modifying anything — used at serve startup, where §4.H requires
// tolerating an absent index or unreachable engine rather than failing
// to boot.
func (c *Client) Probe(ctx context.Context) error {
	_, cancel := c.ctx(ctx)
	defer cancel()

	if _, err := c.sdk.Index(c.indexUID).FetchInfo(); err != nil {
		return classify(err)
	}
	return nil
}

// UpsertDocuments writes a batch of records to the engine. Meilisearch
// treats documents sharing a primary key as replacements, so redelivery
// of a record with the same id is a safe no-op — the property the
// writer's at-least-once retry semantics depend on.
func (c *Client) UpsertDocuments(ctx context.Context, records []*model.Record) error {
	if len(records) == 0 {
		return nil
	}
	_, cancel := c.ctx(ctx)
	defer cancel()

	task, err := c.sdk.Index(c.indexUID).AddDocuments(records, "id")
	if err != nil {
		return classify(err)
	}
	if _, err := c.sdk.WaitForTask(task.TaskUID); err != nil {
		return classify(err)
	}
	return nil
}

// SearchQuery is the engine-agnostic shape the query layer builds from
// an incoming HTTP request.
type SearchQuery struct {
	Query  string
	Filter string
	Sort   []string
	Limit  int64
	Offset int64
	Facets []string
}

// SearchResult is the engine-agnostic response shape.
type SearchResult struct {
	Hits              []map[string]interface{}
	TotalHits         int64
	FacetDistribution map[string]map[string]int64
}

// Search runs a query against the index.
func (c *Client) Search(ctx context.Context, q SearchQuery) (SearchResult, error) {
	_, cancel := c.ctx(ctx)
	defer cancel()

	req := &meilisearch.SearchRequest{
		Filter: q.Filter,
		Sort:   q.Sort,
		Limit:  q.Limit,
		Offset: q.Offset,
		Facets: q.Facets,
	}
	resp, err := c.sdk.Index(c.indexUID).Search(q.Query, req)
	if err != nil {
		return SearchResult{}, classify(err)
	}

	hits := make([]map[string]interface{}, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		if m, ok := h.(map[string]interface{}); ok {
			hits = append(hits, m)
		}
	}

	rawFacets, _ := resp.FacetDistribution.(map[string]interface{})
	facets := make(map[string]map[string]int64, len(rawFacets))
	for field, rawDist := range rawFacets {
		dist, ok := rawDist.(map[string]interface{})
		if !ok {
			continue
		}
		counts := make(map[string]int64, len(dist))
		for value, rawCount := range dist {
			if count, ok := rawCount.(float64); ok {
				counts[value] = int64(count)
			}
		}
		facets[field] = counts
	}

	return SearchResult{
		Hits:              hits,
		TotalHits:         int64(resp.EstimatedTotalHits),
		FacetDistribution: facets,
	}, nil
}

// DeleteByFilter removes every document matching filter (for example a
// `timestampMs < cutoff` expression to age out old records). Nothing in
// this repository calls it; no route exposes it.
func (c *Client) DeleteByFilter(ctx context.Context, filter string) error {
	_, cancel := c.ctx(ctx)
	defer cancel()

	task, err := c.sdk.Index(c.indexUID).DeleteDocumentsByFilter(filter)
	if err != nil {
		return classify(err)
	}
	if _, err := c.sdk.WaitForTask(task.TaskUID); err != nil {
		return classify(err)
	}
	return nil
}

// APIError carries the engine's HTTP status code, when known, so the
// writer's retry logic can distinguish a malformed batch (4xx, not
// worth retrying) from a transient outage (5xx or network error,
// worth retrying with backoff).
type APIError struct {
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("engine: %v", e.Err)
	}
	return fmt.Sprintf("engine: status %d: %v", e.StatusCode, e.Err)
}

func (e *APIError) Unwrap() error { return e.Err }

// Retryable reports whether the error is worth retrying: unknown status
// (network failure, timeout) or a 5xx. A 4xx means the batch itself is
// malformed and retrying it verbatim would just fail again.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

func classify(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *meilisearch.Error
	if errors.As(err, &apiErr) {
		return &APIError{StatusCode: apiErr.StatusCode, Err: err}
	}
	return &APIError{Err: err}
}
