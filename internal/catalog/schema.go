package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlProducts creates the product catalog table. The column set mirrors the
// source dataset: ten descriptive text/numeric columns keyed by parent_asin.
const ddlProducts = `
CREATE TABLE IF NOT EXISTS products (
    parent_asin     TEXT              PRIMARY KEY,
    main_category   TEXT              NOT NULL DEFAULT '',
    title           TEXT              NOT NULL DEFAULT '',
    average_rating  DOUBLE PRECISION  NOT NULL DEFAULT 0,
    rating_number   BIGINT            NOT NULL DEFAULT 0,
    features        TEXT              NOT NULL DEFAULT '',
    description     TEXT              NOT NULL DEFAULT '',
    price           TEXT              NOT NULL DEFAULT '',
    store           TEXT              NOT NULL DEFAULT '',
    categories      TEXT              NOT NULL DEFAULT '',
    details         TEXT              NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_products_main_category
    ON products (main_category);
`

// ddlProductVectors creates the embedding index table. The vector dimension
// is fixed at migration time; %d is substituted by Migrate. The HNSW index
// uses inner-product ops to match the asymmetric retrieval model's training
// objective.
const ddlProductVectors = `
CREATE TABLE IF NOT EXISTS product_vectors (
    id           BIGINT       PRIMARY KEY,
    parent_asin  TEXT         NOT NULL,
    title        TEXT         NOT NULL DEFAULT '',
    embedding    vector(%d)   NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_product_vectors_embedding
    ON product_vectors USING hnsw (embedding vector_ip_ops);

CREATE INDEX IF NOT EXISTS idx_product_vectors_parent_asin
    ON product_vectors (parent_asin);
`

// Migrate ensures the pgvector extension and all catalog tables exist.
// It is idempotent and safe to run on every startup.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("catalog: embedding dimensions must be positive, got %d", embeddingDimensions)
	}

	steps := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		ddlProducts,
		fmt.Sprintf(ddlProductVectors, embeddingDimensions),
	}
	for _, ddl := range steps {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("catalog: migrate: %w", err)
		}
	}
	return nil
}
