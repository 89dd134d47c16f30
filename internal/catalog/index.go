package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

// Point is one pre-embedded product vector plus its payload, as written at
// ingestion time.
type Point struct {
	// ID is the stable row index assigned during ingestion.
	ID int64

	// ParentASIN is the catalog primary key this vector belongs to.
	ParentASIN string

	// Title is carried as payload so hits are identifiable without a join.
	Title string

	// Embedding is the passage-mode vector of the product description text.
	Embedding []float32
}

// Hit is a single nearest-neighbour search result.
type Hit struct {
	// ParentASIN identifies the matched product.
	ParentASIN string

	// Title is the indexed product title payload.
	Title string

	// Score is the inner-product similarity to the query vector; higher is
	// more similar.
	Score float64
}

// Index is the pgvector-backed embedding index over product descriptions.
// Obtain one via [Store.Index] rather than constructing directly.
// All methods are safe for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

// Upsert writes a batch of points into the index. Points with an existing ID
// are completely replaced.
func (ix *Index) Upsert(ctx context.Context, points []Point) error {
	const q = `
		INSERT INTO product_vectors (id, parent_asin, title, embedding)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
		    parent_asin = EXCLUDED.parent_asin,
		    title       = EXCLUDED.title,
		    embedding   = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for _, p := range points {
		batch.Queue(q, p.ID, p.ParentASIN, p.Title, pgvector.NewVector(p.Embedding))
	}

	if err := ix.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("catalog index: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search finds the limit points whose embeddings have the highest inner
// product with the supplied query embedding, most similar first. An empty
// index yields an empty, non-nil slice.
func (ix *Index) Search(ctx context.Context, embedding []float32, limit int) ([]Hit, error) {
	// pgvector's <#> operator returns the negated inner product so that
	// ascending ORDER BY ranks most-similar first; the sign is flipped back
	// for the reported score.
	const q = `
		SELECT parent_asin, title, (embedding <#> $1) * -1 AS score
		FROM   product_vectors
		ORDER  BY embedding <#> $1
		LIMIT  $2`

	rows, err := ix.pool.Query(ctx, q, pgvector.NewVector(embedding), limit)
	if err != nil {
		return nil, fmt.Errorf("catalog index: search: %w", err)
	}

	hits, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Hit, error) {
		var h Hit
		if err := row.Scan(&h.ParentASIN, &h.Title, &h.Score); err != nil {
			return Hit{}, err
		}
		return h, nil
	})
	if err != nil {
		return nil, fmt.Errorf("catalog index: scan rows: %w", err)
	}
	if hits == nil {
		hits = []Hit{}
	}
	return hits, nil
}

// Count returns the number of indexed points. The ingestion job uses it to
// skip re-embedding an already populated index.
func (ix *Index) Count(ctx context.Context) (int64, error) {
	rows, err := ix.pool.Query(ctx, `SELECT count(*) FROM product_vectors`)
	if err != nil {
		return 0, fmt.Errorf("catalog index: count: %w", err)
	}
	n, err := pgx.CollectOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("catalog index: count: %w", err)
	}
	return n, nil
}
