// Package ordertools registers the order-dataset tool surface: aggregate
// statistics, filtered order lookups, and the customer-id clarifier that
// short-circuits the chat loop when the user has not identified themselves.
package ordertools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/emporia-ai/clerk/internal/orders"
	"github.com/emporia-ai/clerk/internal/thread"
	"github.com/emporia-ai/clerk/internal/tool"
	"github.com/emporia-ai/clerk/pkg/provider/llm"
)

// defaultMinProfit filters get_high_profit_products when the model omits the
// min_profit argument.
const defaultMinProfit = 100.0

// customerIDPrompt is the fixed clarifying question raised by get_customer_id.
const customerIDPrompt = "Please provide your Customer ID"

// noArgs is the schema for tools that take no parameters.
func noArgs() map[string]any {
	return map[string]any{
		"type":                 "object",
		"properties":           map[string]any{},
		"required":             []string{},
		"additionalProperties": false,
	}
}

func asJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("ordertools: encode result: %w", err)
	}
	return string(b), nil
}

// Register adds all order-dataset tools to r, backed by svc.
func Register(r *tool.Registry, svc *orders.Service) error {
	type entry struct {
		def     llm.ToolDefinition
		handler tool.Handler
	}

	entries := []entry{
		{
			def: llm.ToolDefinition{
				Name:        "get_shipping_cost_summary",
				Description: "Retrieve the average, minimum, and maximum shipping cost.",
				Parameters:  noArgs(),
			},
			handler: func(ctx context.Context, args string) (string, error) {
				sum, err := svc.ShippingCostSummary()
				if err != nil {
					return "", err
				}
				return asJSON(sum)
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_high_profit_products",
				Description: "Retrieve products with profit greater than the specified value.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"min_profit": map[string]any{
							"type":        "number",
							"description": "The minimum profit value to filter products by",
						},
					},
					"required":             []string{},
					"additionalProperties": false,
				},
			},
			handler: func(ctx context.Context, args string) (string, error) {
				var in struct {
					MinProfit *float64 `json:"min_profit"`
				}
				if err := tool.DecodeArgs("get_high_profit_products", args, &in); err != nil {
					return "", err
				}
				minProfit := defaultMinProfit
				if in.MinProfit != nil {
					minProfit = *in.MinProfit
				}
				rows, err := svc.HighProfitProducts(minProfit)
				if err != nil {
					return "", err
				}
				return asJSON(rows)
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_profit_by_gender",
				Description: "Calculate total profit by customer gender.",
				Parameters:  noArgs(),
			},
			handler: func(ctx context.Context, args string) (string, error) {
				return asJSON(svc.ProfitByGender())
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_total_sales_by_category",
				Description: "Calculate total sales by Product Category.",
				Parameters:  noArgs(),
			},
			handler: func(ctx context.Context, args string) (string, error) {
				return asJSON(svc.TotalSalesByCategory())
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_orders_by_priority",
				Description: "Retrieve all orders with the given priority.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"priority": map[string]any{
							"type":        "string",
							"description": "The priority of the orders to retrieve. Must be one of 'Medium', 'High', 'Critical', 'Low', or '' (none).",
							"enum":        priorityEnum(),
						},
						"sort_by_date": map[string]any{
							"type":        "boolean",
							"description": "A flag to sort the data by order date. Optional",
						},
						"sort_descendingly": map[string]any{
							"type":        "boolean",
							"description": "A flag to sort the data descendingly. Requires `sort_by_date` to be true. Optional",
						},
						"limit": map[string]any{
							"type":        "integer",
							"description": "Only retrieve the first `limit` rows. Similar to the `LIMIT` clause in SQL. Optional",
						},
					},
					"required":             []string{"priority"},
					"additionalProperties": false,
				},
			},
			handler: func(ctx context.Context, args string) (string, error) {
				var in struct {
					Priority         string `json:"priority"`
					SortByDate       bool   `json:"sort_by_date"`
					SortDescendingly bool   `json:"sort_descendingly"`
					Limit            int    `json:"limit"`
				}
				if err := tool.DecodeArgs("get_orders_by_priority", args, &in); err != nil {
					return "", err
				}
				rows, err := svc.ByPriority(orders.Priority(in.Priority), in.SortByDate, in.SortDescendingly, in.Limit)
				if err != nil {
					return "", err
				}
				return asJSON(rows)
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_product_category_data",
				Description: "Retrieve all orders for a specific Product Category.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"category": map[string]any{
							"type":        "string",
							"description": "The product category for which to retrieve orders.",
							"enum":        categoryEnum(),
						},
					},
					"required":             []string{"category"},
					"additionalProperties": false,
				},
			},
			handler: func(ctx context.Context, args string) (string, error) {
				var in struct {
					Category string `json:"category"`
				}
				if err := tool.DecodeArgs("get_product_category_data", args, &in); err != nil {
					return "", err
				}
				rows, err := svc.ByCategory(orders.Category(in.Category))
				if err != nil {
					return "", err
				}
				return asJSON(rows)
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_customer_data",
				Description: "Retrieve all orders for a specific Customer ID. Requires the `customer_id` argument which must be a valid integer value.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"customer_id": map[string]any{
							"type":        "integer",
							"description": "The ID of the customer whose data needs to be retrieved. Must be an integer",
						},
					},
					"required":             []string{"customer_id"},
					"additionalProperties": false,
				},
			},
			handler: func(ctx context.Context, args string) (string, error) {
				var in struct {
					CustomerID int `json:"customer_id"`
				}
				if err := tool.DecodeArgs("get_customer_data", args, &in); err != nil {
					return "", err
				}
				rows, err := svc.ByCustomer(in.CustomerID)
				if err != nil {
					return "", err
				}
				return asJSON(rows)
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_all_data",
				Description: "Retrieve all records in the dataset.",
				Parameters:  noArgs(),
			},
			handler: func(ctx context.Context, args string) (string, error) {
				return asJSON(svc.All())
			},
		},
		{
			def: llm.ToolDefinition{
				Name:        "get_customer_id",
				Description: `Obtains the Customer ID by asking the user "Please provide your Customer ID"`,
				Parameters:  noArgs(),
			},
			handler: func(ctx context.Context, args string) (string, error) {
				return "", &tool.DirectReturn{Message: thread.Message{
					Role:    thread.RoleAssistant,
					Content: customerIDPrompt,
				}}
			},
		},
	}

	for _, e := range entries {
		if err := r.Register(e.def, e.handler); err != nil {
			return err
		}
	}
	return nil
}

func priorityEnum() []string {
	ps := orders.Priorities()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func categoryEnum() []string {
	cs := orders.Categories()
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = string(c)
	}
	return out
}
