package catalog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Product is one row of the product information dataset, as written by the
// ingestion job. The read path never uses this struct; queries return
// column-ordered [Result] values instead.
type Product struct {
	ParentASIN    string
	MainCategory  string
	Title         string
	AverageRating float64
	RatingNumber  int64
	Features      string
	Description   string
	Price         string
	Store         string
	Categories    string
	Details       string
}

// PassageText returns the text embedded for this product: features followed
// by title, matching the indexed passage format.
func (p Product) PassageText() string {
	return p.Features + p.Title
}

// LoadProducts reads the product dataset CSV at path.
func LoadProducts(path string) ([]Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %q: %w", path, err)
	}
	defer f.Close()

	products, err := LoadProductsFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse %q: %w", path, err)
	}
	return products, nil
}

// LoadProductsFromReader parses product rows from CSV data with a header row.
// Rows without a parent_asin are skipped.
func LoadProductsFromReader(r io.Reader) ([]Product, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var products []Product
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", line, err)
		}

		p := Product{
			ParentASIN:   field(record, "parent_asin"),
			MainCategory: field(record, "main_category"),
			Title:        field(record, "title"),
			Features:     field(record, "features"),
			Description:  field(record, "description"),
			Price:        field(record, "price"),
			Store:        field(record, "store"),
			Categories:   field(record, "categories"),
			Details:      field(record, "details"),
		}
		if p.ParentASIN == "" {
			continue
		}
		if v, err := strconv.ParseFloat(field(record, "average_rating"), 64); err == nil {
			p.AverageRating = v
		}
		if v, err := strconv.ParseInt(field(record, "rating_number"), 10, 64); err == nil {
			p.RatingNumber = v
		}
		products = append(products, p)
	}

	return products, nil
}

// UpsertProducts writes product rows into the catalog table, replacing
// existing rows with the same parent_asin.
func (s *Store) UpsertProducts(ctx context.Context, products []Product) error {
	const q = `
		INSERT INTO products (
		    parent_asin, main_category, title, average_rating, rating_number,
		    features, description, price, store, categories, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (parent_asin) DO UPDATE SET
		    main_category  = EXCLUDED.main_category,
		    title          = EXCLUDED.title,
		    average_rating = EXCLUDED.average_rating,
		    rating_number  = EXCLUDED.rating_number,
		    features       = EXCLUDED.features,
		    description    = EXCLUDED.description,
		    price          = EXCLUDED.price,
		    store          = EXCLUDED.store,
		    categories     = EXCLUDED.categories,
		    details        = EXCLUDED.details`

	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(q,
			p.ParentASIN, p.MainCategory, p.Title, p.AverageRating, p.RatingNumber,
			p.Features, p.Description, p.Price, p.Store, p.Categories, p.Details,
		)
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("catalog: upsert %d products: %w", len(products), err)
	}
	return nil
}
