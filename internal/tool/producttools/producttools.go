// Package producttools registers the product-database tool surface: an
// arbitrary read-only SQL pass-through and semantic product retrieval.
//
// Failures from the database or the embedding endpoint follow the same
// local-recovery policy as every other tool: the error text is fed back into
// the transcript as the tool result so the model can rephrase or retry,
// rather than aborting the turn.
package producttools

import (
	"context"
	"fmt"

	"github.com/emporia-ai/clerk/internal/catalog"
	"github.com/emporia-ai/clerk/internal/tool"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

// Querier runs a read-only SQL statement against the product catalog.
type Querier interface {
	Query(ctx context.Context, sqlQuery string) (catalog.Result, error)
}

// ProductRetriever answers free-text product questions with catalog rows.
type ProductRetriever interface {
	Retrieve(ctx context.Context, query string) (catalog.Result, error)
}

// Register adds the product-database tools to r.
func Register(r *tool.Registry, q Querier, ret ProductRetriever) error {
	queryDef := llm.ToolDefinition{
		Name: "query_product_database",
		Description: "Run a read-only SQL query against the `products` table and return the matching rows. " +
			"The table has the columns parent_asin (TEXT, primary key), main_category (TEXT), title (TEXT), " +
			"average_rating (REAL), rating_number (INTEGER), features (TEXT), description (TEXT), price (TEXT), " +
			"store (TEXT), categories (TEXT), details (TEXT).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"sql_query": map[string]any{
					"type":        "string",
					"description": "The SQL SELECT statement to execute.",
				},
			},
			"required":             []string{"sql_query"},
			"additionalProperties": false,
		},
	}
	err := r.Register(queryDef, func(ctx context.Context, args string) (string, error) {
		var in struct {
			SQLQuery string `json:"sql_query"`
		}
		if err := tool.DecodeArgs("query_product_database", args, &in); err != nil {
			return "", err
		}
		if in.SQLQuery == "" {
			return "", &tool.ArgumentError{Tool: "query_product_database", Err: fmt.Errorf("sql_query must not be empty")}
		}
		result, err := q.Query(ctx, in.SQLQuery)
		if err != nil {
			return "", fmt.Errorf("query_product_database: %w", err)
		}
		return encode("query_product_database", result)
	})
	if err != nil {
		return err
	}

	retrieveDef := llm.ToolDefinition{
		Name: "retrieve_relevant_products",
		Description: "Find the products most relevant to a free-text question using semantic search. " +
			"Returns up to 3 full product records.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The product question to search for, e.g. 'a quiet mechanical keyboard'.",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
	return r.Register(retrieveDef, func(ctx context.Context, args string) (string, error) {
		var in struct {
			Query string `json:"query"`
		}
		if err := tool.DecodeArgs("retrieve_relevant_products", args, &in); err != nil {
			return "", err
		}
		if in.Query == "" {
			return "", &tool.ArgumentError{Tool: "retrieve_relevant_products", Err: fmt.Errorf("query must not be empty")}
		}
		result, err := ret.Retrieve(ctx, in.Query)
		if err != nil {
			return "", fmt.Errorf("retrieve_relevant_products: %w", err)
		}
		return encode("retrieve_relevant_products", result)
	})
}

func encode(name string, result catalog.Result) (string, error) {
	s, err := result.JSON()
	if err != nil {
		return "", fmt.Errorf("%s: encode result: %w", name, err)
	}
	return s, nil
}
