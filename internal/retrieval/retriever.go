// Package retrieval joins the vector index with the product catalog to answer
// free-text product questions. A query is embedded, the nearest product
// vectors are looked up and the matching catalog rows are fetched, capped to a
// small number so tool results stay within the model's attention budget.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emporia-ai/clerk/internal/catalog"
	"github.com/emporia-ai/clerk/internal/observe"
	"github.com/emporia-ai/clerk/pkg/provider/embeddings"
)

const (
	defaultTopK       = 10
	defaultMaxResults = 3
)

// Index finds the nearest product vectors for a query embedding.
type Index interface {
	Search(ctx context.Context, vector []float32, limit int) ([]catalog.Hit, error)
}

// Fetcher loads full catalog rows for a set of product identifiers.
type Fetcher interface {
	ProductsByASIN(ctx context.Context, asins []string) (catalog.Result, error)
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithTopK sets how many neighbours are requested from the index.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

// WithMaxResults caps the number of catalog rows returned to the caller.
func WithMaxResults(n int) Option {
	return func(r *Retriever) {
		if n > 0 {
			r.maxResults = n
		}
	}
}

// WithThrottle installs a delay applied after each successful retrieval.
func WithThrottle(t Throttle) Option {
	return func(r *Retriever) {
		if t != nil {
			r.throttle = t
		}
	}
}

// WithLogger sets the logger used for retrieval diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.log = l
		}
	}
}

// WithMetrics sets the metrics instance. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Retriever) {
		if m != nil {
			r.metrics = m
		}
	}
}

// Retriever performs semantic product lookups.
type Retriever struct {
	embedder   embeddings.Provider
	index      Index
	fetcher    Fetcher
	topK       int
	maxResults int
	throttle   Throttle
	metrics    *observe.Metrics
	log        *slog.Logger
}

// New creates a Retriever over the given embedding provider, vector index and
// catalog fetcher.
func New(embedder embeddings.Provider, index Index, fetcher Fetcher, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("retrieval: embedder must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("retrieval: index must not be nil")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("retrieval: fetcher must not be nil")
	}
	r := &Retriever{
		embedder:   embedder,
		index:      index,
		fetcher:    fetcher,
		topK:       defaultTopK,
		maxResults: defaultMaxResults,
		throttle:   NoThrottle{},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.metrics == nil {
		r.metrics = observe.DefaultMetrics()
	}
	return r, nil
}

// Retrieve embeds the query, searches the vector index and returns the
// matching catalog rows. When the index has no neighbours the catalog is not
// touched and an empty result is returned.
func (r *Retriever) Retrieve(ctx context.Context, query string) (catalog.Result, error) {
	start := time.Now()
	defer func() {
		r.metrics.RetrievalDuration.Record(ctx, time.Since(start).Seconds())
	}()

	embedStart := time.Now()
	vector, err := r.embedder.Embed(ctx, query, embeddings.TaskQuery)
	r.metrics.EmbeddingDuration.Record(ctx, time.Since(embedStart).Seconds())
	if err != nil {
		return catalog.Result{}, fmt.Errorf("retrieval: embed query: %w", err)
	}

	hits, err := r.index.Search(ctx, vector, r.topK)
	if err != nil {
		return catalog.Result{}, fmt.Errorf("retrieval: search index: %w", err)
	}
	if len(hits) == 0 {
		r.log.DebugContext(ctx, "no neighbours for query", "query_len", len(query))
		return catalog.Result{}, nil
	}

	asins := dedupeASINs(hits)
	result, err := r.fetcher.ProductsByASIN(ctx, asins)
	if err != nil {
		return catalog.Result{}, fmt.Errorf("retrieval: fetch products: %w", err)
	}

	if err := r.throttle.Wait(ctx); err != nil {
		return catalog.Result{}, fmt.Errorf("retrieval: throttle: %w", err)
	}

	r.log.DebugContext(ctx, "retrieved products",
		"neighbours", len(hits),
		"rows", result.Len(),
		"returned", min(result.Len(), r.maxResults))
	return result.Truncate(r.maxResults), nil
}

// dedupeASINs keeps the first occurrence of each identifier, preserving the
// index's relevance order.
func dedupeASINs(hits []catalog.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	asins := make([]string, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.ParentASIN]; ok {
			continue
		}
		seen[h.ParentASIN] = struct{}{}
		asins = append(asins, h.ParentASIN)
	}
	return asins
}
