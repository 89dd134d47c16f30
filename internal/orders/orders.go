// Package orders provides the structured order dataset service: an in-memory
// order table loaded from CSV, with the exact-match filters and aggregations
// the order assistant's tools depend on.
//
// The table is read-only after loading, so a single Service is safe for
// concurrent use by any number of chat turns.
package orders

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by filter operations that match zero rows.
var ErrNotFound = errors.New("orders: no matching rows")

// Category is the closed set of product categories in the dataset.
type Category string

const (
	CategoryHomeFurniture   Category = "Home & Furniture"
	CategoryAutoAccessories Category = "Auto & Accessories"
	CategoryFashion         Category = "Fashion"
	CategoryElectronic      Category = "Electronic"
)

// IsValid reports whether c is a recognised product category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryHomeFurniture, CategoryAutoAccessories, CategoryFashion, CategoryElectronic:
		return true
	}
	return false
}

// Categories lists all valid category values in a stable order.
func Categories() []Category {
	return []Category{
		CategoryHomeFurniture,
		CategoryAutoAccessories,
		CategoryFashion,
		CategoryElectronic,
	}
}

// Priority is the closed set of order priorities. The empty string is a
// legitimate value: rows whose priority was absent in the source data.
type Priority string

const (
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
	PriorityLow      Priority = "Low"
	PriorityNone     Priority = ""
)

// IsValid reports whether p is a recognised order priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityMedium, PriorityHigh, PriorityCritical, PriorityLow, PriorityNone:
		return true
	}
	return false
}

// Priorities lists all valid priority values in a stable order.
func Priorities() []Priority {
	return []Priority{PriorityMedium, PriorityHigh, PriorityCritical, PriorityLow, PriorityNone}
}

// Order is a single row of the order dataset.
type Order struct {
	OrderDate       string   `json:"Order_Date"`
	CustomerID      int      `json:"Customer_Id"`
	Gender          string   `json:"Gender"`
	DeviceType      string   `json:"Device_Type"`
	ProductCategory Category `json:"Product_Category"`
	Product         string   `json:"Product"`
	Sales           float64  `json:"Sales"`
	Quantity        int      `json:"Quantity"`
	Discount        float64  `json:"Discount"`
	Profit          float64  `json:"Profit"`
	ShippingCost    float64  `json:"Shipping_Cost"`
	OrderPriority   Priority `json:"Order_Priority"`
	PaymentMethod   string   `json:"Payment_method"`
}

// ShippingSummary aggregates the shipping-cost column across the whole table.
type ShippingSummary struct {
	Average float64 `json:"average_shipping_cost"`
	Min     float64 `json:"min_shipping_cost"`
	Max     float64 `json:"max_shipping_cost"`
}

// CategorySales is the summed sales for one product category.
type CategorySales struct {
	ProductCategory Category `json:"Product_Category"`
	Sales           float64  `json:"Sales"`
}

// GenderProfit is the summed profit for one customer gender.
type GenderProfit struct {
	Gender string  `json:"Gender"`
	Profit float64 `json:"Profit"`
}

// Service answers tabular queries over the in-memory order table.
type Service struct {
	rows []Order
}

// New builds a Service over the given rows. The slice is not copied; callers
// must not mutate it afterwards.
func New(rows []Order) *Service {
	return &Service{rows: rows}
}

// Len returns the number of rows in the table.
func (s *Service) Len() int { return len(s.rows) }

// All returns every row in the dataset.
func (s *Service) All() []Order {
	out := make([]Order, len(s.rows))
	copy(out, s.rows)
	return out
}

// ByCustomer returns all orders for the given customer ID, or ErrNotFound
// when the customer has none.
func (s *Service) ByCustomer(customerID int) ([]Order, error) {
	var out []Order
	for _, r := range s.rows {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: customer ID %d", ErrNotFound, customerID)
	}
	return out, nil
}

// ByCategory returns all orders in the given product category, or ErrNotFound
// when the category has none. An unrecognised category is rejected outright.
func (s *Service) ByCategory(category Category) ([]Order, error) {
	if !category.IsValid() {
		return nil, fmt.Errorf("orders: invalid product category %q", category)
	}
	var out []Order
	for _, r := range s.rows {
		if r.ProductCategory == category {
			out = append(out, r)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: product category %q", ErrNotFound, category)
	}
	return out, nil
}

// ByPriority returns all orders with the given priority, optionally sorted by
// order date and truncated to limit rows. sortDescending only takes effect
// when sortByDate is set. A limit of zero means no limit.
func (s *Service) ByPriority(priority Priority, sortByDate, sortDescending bool, limit int) ([]Order, error) {
	if !priority.IsValid() {
		return nil, fmt.Errorf("orders: invalid order priority %q", priority)
	}
	var out []Order
	for _, r := range s.rows {
		if r.OrderPriority == priority {
			out = append(out, r)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: order priority %q", ErrNotFound, priority)
	}
	if sortByDate {
		sort.SliceStable(out, func(i, j int) bool {
			if sortDescending {
				return out[i].OrderDate > out[j].OrderDate
			}
			return out[i].OrderDate < out[j].OrderDate
		})
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// HighProfitProducts returns all orders whose profit strictly exceeds
// minProfit, or ErrNotFound when none qualify.
func (s *Service) HighProfitProducts(minProfit float64) ([]Order, error) {
	var out []Order
	for _, r := range s.rows {
		if r.Profit > minProfit {
			out = append(out, r)
		}
	}
	if out == nil {
		return nil, fmt.Errorf("%w: no products with profit greater than %g", ErrNotFound, minProfit)
	}
	return out, nil
}

// TotalSalesByCategory sums the sales column grouped by product category.
// Groups appear in the dataset's canonical category order.
func (s *Service) TotalSalesByCategory() []CategorySales {
	sums := make(map[Category]float64, 4)
	for _, r := range s.rows {
		sums[r.ProductCategory] += r.Sales
	}
	var out []CategorySales
	for _, c := range Categories() {
		if total, ok := sums[c]; ok {
			out = append(out, CategorySales{ProductCategory: c, Sales: total})
		}
	}
	return out
}

// ProfitByGender sums the profit column grouped by customer gender. Groups
// appear in first-seen row order.
func (s *Service) ProfitByGender() []GenderProfit {
	sums := make(map[string]float64, 2)
	var order []string
	for _, r := range s.rows {
		if _, ok := sums[r.Gender]; !ok {
			order = append(order, r.Gender)
		}
		sums[r.Gender] += r.Profit
	}
	out := make([]GenderProfit, 0, len(order))
	for _, g := range order {
		out = append(out, GenderProfit{Gender: g, Profit: sums[g]})
	}
	return out
}

// ShippingCostSummary returns the mean, minimum, and maximum shipping cost
// across the whole table.
func (s *Service) ShippingCostSummary() (ShippingSummary, error) {
	if len(s.rows) == 0 {
		return ShippingSummary{}, errors.New("orders: dataset is empty")
	}
	sum := ShippingSummary{
		Min: s.rows[0].ShippingCost,
		Max: s.rows[0].ShippingCost,
	}
	var total float64
	for _, r := range s.rows {
		total += r.ShippingCost
		if r.ShippingCost < sum.Min {
			sum.Min = r.ShippingCost
		}
		if r.ShippingCost > sum.Max {
			sum.Max = r.ShippingCost
		}
	}
	sum.Average = total / float64(len(s.rows))
	return sum, nil
}
