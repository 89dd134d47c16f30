// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider wraps a service that maps text strings to dense
// float32 vectors (e.g., OpenAI text-embedding-3 or Jina jina-embeddings-v3).
// The vectors feed the product index for semantic retrieval.
//
// The embedding space is asymmetric: queries and documents are embedded with
// distinct task modes and must not be mixed up. Callers pass the appropriate
// Task with every request.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Task selects the embedding mode for asymmetric retrieval models.
type Task string

const (
	// TaskQuery embeds short query-style text for searching the index.
	TaskQuery Task = "retrieval.query"

	// TaskPassage embeds document-style text for storage in the index.
	TaskPassage Task = "retrieval.passage"
)

// Provider is the abstraction over any text-embedding backend.
//
// All embedding vectors returned by a single Provider instance share the same
// dimensionality (returned by Dimensions). Vectors from different Provider
// instances must not be mixed in the same similarity computation unless both
// use the same model and space.
type Provider interface {
	// Embed computes the embedding vector for a single text string using the
	// given task mode. Returns a float32 slice of length Dimensions() or an
	// error if the request fails or ctx is cancelled.
	Embed(ctx context.Context, text string, task Task) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings. The
	// returned slice has the same length as texts and the i-th element
	// corresponds to texts[i]. Implementations may split the input into
	// multiple provider calls; partial results are never returned, and on
	// error the entire slice is nil.
	EmbedBatch(ctx context.Context, texts []string, task Task) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier used for
	// embeddings (e.g., "jina-embeddings-v3").
	ModelID() string
}
