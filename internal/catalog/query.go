package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Result holds rows returned by a catalog query. Columns preserves the
// statement's projection order; each row maps column name to value.
type Result struct {
	Columns []string
	Rows    []map[string]any
}

// Len returns the number of rows in the result.
func (r Result) Len() int { return len(r.Rows) }

// Truncate returns a copy of r limited to the first n rows.
func (r Result) Truncate(n int) Result {
	if n < 0 || n >= len(r.Rows) {
		return r
	}
	return Result{Columns: r.Columns, Rows: r.Rows[:n]}
}

// JSON renders the result as a JSON array of objects whose keys follow the
// statement's column order. Plain map marshalling would sort keys
// alphabetically, so the encoding is assembled column by column.
func (r Result) JSON() (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('{')
		for j, col := range r.Columns {
			if j > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(col)
			if err != nil {
				return "", fmt.Errorf("catalog: encode column %q: %w", col, err)
			}
			val, err := json.Marshal(row[col])
			if err != nil {
				return "", fmt.Errorf("catalog: encode value for %q: %w", col, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
		buf.WriteByte('}')
	}
	buf.WriteByte(']')
	return buf.String(), nil
}

// Query executes one SQL statement against the catalog inside a read-only
// transaction and returns the rows as order-preserving column mappings.
//
// Read-only access is enforced by the database, not by convention: any
// attempt to mutate (INSERT, UPDATE, DROP, …) fails with a transaction-level
// permission error before touching data.
func (s *Store) Query(ctx context.Context, sqlQuery string) (Result, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return Result{}, fmt.Errorf("catalog: begin read-only tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, sqlQuery)
	if err != nil {
		return Result{}, fmt.Errorf("catalog: query: %w", err)
	}
	defer rows.Close()

	result, err := collectResult(rows)
	if err != nil {
		return Result{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Result{}, fmt.Errorf("catalog: commit read-only tx: %w", err)
	}
	return result, nil
}

// ProductsByASIN returns full product records for the given parent ASINs.
// The id list is bound as a single array parameter; identifiers never get
// interpolated into SQL text, even though they originate from the trusted
// vector index.
func (s *Store) ProductsByASIN(ctx context.Context, asins []string) (Result, error) {
	if len(asins) == 0 {
		return Result{}, nil
	}

	const q = `SELECT * FROM products WHERE parent_asin = ANY($1)`
	rows, err := s.pool.Query(ctx, q, asins)
	if err != nil {
		return Result{}, fmt.Errorf("catalog: select by asin: %w", err)
	}
	defer rows.Close()

	return collectResult(rows)
}

// collectResult drains rows into a Result, preserving column order.
func collectResult(rows pgx.Rows) (Result, error) {
	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	result := Result{Columns: cols}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Result{}, fmt.Errorf("catalog: scan row: %w", err)
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("catalog: iterate rows: %w", err)
	}
	return result, nil
}
