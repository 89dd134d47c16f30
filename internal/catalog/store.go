// Package catalog provides the PostgreSQL-backed product catalog: a read-only
// SQL pass-through over the products table, a parameterized ASIN join used by
// semantic retrieval, and a pgvector index over product embeddings searched by
// inner-product similarity.
//
// All layers share a single [pgxpool.Pool]. The pgvector extension must be
// available in the target database; [Migrate] installs it automatically via
// CREATE EXTENSION IF NOT EXISTS.
//
// All operations are safe for concurrent use.
package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// Store owns the connection pool shared by the catalog query surface and the
// product vector index. Obtain the index via [Store.Index].
type Store struct {
	pool  *pgxpool.Pool
	index *Index
}

// NewStore establishes a connection pool to the PostgreSQL database at dsn,
// registers pgvector types on every connection, and runs [Migrate] to ensure
// all required tables and extensions exist.
//
// embeddingDimensions must match the output dimension of the embedding model
// used to index products (e.g., 1024 for jina-embeddings-v3). Changing this
// value after the first migration requires a manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse dsn: %w", err)
	}

	// Register pgvector types on every new connection so that vector columns
	// can be scanned into and inserted from pgvector.Vector values.
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("catalog: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping: %w", err)
	}

	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}

	return &Store{
		pool:  pool,
		index: &Index{pool: pool},
	}, nil
}

// Index returns the product vector index backed by this store's pool.
func (s *Store) Index() *Index { return s.index }

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}
