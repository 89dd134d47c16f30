package orders

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Load reads the order dataset CSV at path and returns a ready Service.
func Load(path string) (*Service, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("orders: open %q: %w", path, err)
	}
	defer f.Close()

	svc, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("orders: parse %q: %w", path, err)
	}
	return svc, nil
}

// LoadFromReader parses order rows from CSV data with a header row. Unknown
// columns are ignored; missing numeric cells default to zero, mirroring the
// source dataset's null handling.
func LoadFromReader(r io.Reader) (*Service, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("orders: read header: %w", err)
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

	var rows []Order
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("orders: line %d: %w", line, err)
		}

		o := Order{
			OrderDate:       field(record, "Order_Date"),
			Gender:          field(record, "Gender"),
			DeviceType:      field(record, "Device_Type"),
			ProductCategory: Category(field(record, "Product_Category")),
			Product:         field(record, "Product"),
			OrderPriority:   Priority(field(record, "Order_Priority")),
			PaymentMethod:   field(record, "Payment_method"),
		}
		o.CustomerID = parseInt(field(record, "Customer_Id"))
		o.Quantity = parseInt(field(record, "Quantity"))
		o.Sales = parseFloat(field(record, "Sales"))
		o.Discount = parseFloat(field(record, "Discount"))
		o.Profit = parseFloat(field(record, "Profit"))
		o.ShippingCost = parseFloat(field(record, "Shipping_Cost"))

		rows = append(rows, o)
	}

	return New(rows), nil
}

func parseInt(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
