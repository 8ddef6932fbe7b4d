package service

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/sakashimaa/sales-pipeline/pkg/domain"
	tdomain "github.com/sakashimaa/sales-pipeline/services/transform/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrSchemaMismatch = errors.New("landed file schema mismatch")
	ErrBadRow         = errors.New("row cannot be cast")
)

const totalPriceColumn = "total_price"

// orderDateLayouts are tried in order. Layouts without a zone are read as UTC.
var orderDateLayouts = []string{
	domain.TimestampLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// columns maps column names to their position in a landed file.
type columns map[string]int

// newColumns requires every base column. total_price may be missing.
func newColumns(header []string) (columns, error) {
	cols := make(columns, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(strings.ToLower(name))] = i
	}

	var missing []string
	for _, name := range domain.Header {
		if name == totalPriceColumn {
			continue
		}
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing column(s) %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}

	return cols, nil
}

func (c columns) get(record []string, name string) string {
	i, ok := c[name]
	if !ok || i >= len(record) {
		return ""
	}

	return strings.TrimSpace(record[i])
}

func castRow(cols columns, record []string, processedAt time.Time) (tdomain.EnrichedSale, error) {
	orderID := cols.get(record, "order_id")
	if orderID == "" {
		return tdomain.EnrichedSale{}, fmt.Errorf("%w: empty order_id", ErrBadRow)
	}

	price, err := castPrice(cols.get(record, "price"))
	if err != nil {
		return tdomain.EnrichedSale{}, fmt.Errorf("%w: price: %w", ErrBadRow, err)
	}

	quantity, err := castQuantity(cols.get(record, "quantity"))
	if err != nil {
		return tdomain.EnrichedSale{}, fmt.Errorf("%w: quantity: %w", ErrBadRow, err)
	}

	orderDate, err := castOrderDate(cols.get(record, "order_date"))
	if err != nil {
		return tdomain.EnrichedSale{}, fmt.Errorf("%w: order_date: %w", ErrBadRow, err)
	}

	total := domain.TotalFor(decimal.NewFromFloat(price), int(quantity)).InexactFloat64()
	if raw := cols.get(record, totalPriceColumn); raw != "" {
		total, err = castPrice(raw)
		if err != nil {
			return tdomain.EnrichedSale{}, fmt.Errorf("%w: total_price: %w", ErrBadRow, err)
		}
	}

	return tdomain.EnrichedSale{
		OrderID:            orderID,
		ProductID:          cols.get(record, "product_id"),
		ProductName:        cols.get(record, "product_name"),
		Category:           cols.get(record, "category"),
		Price:              price,
		Quantity:           quantity,
		OrderDate:          orderDate,
		CustomerID:         cols.get(record, "customer_id"),
		Country:            cols.get(record, "country"),
		TotalPrice:         total,
		ProcessedTimestamp: processedAt,
	}, nil
}

func castPrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}

	return v, nil
}

// castQuantity accepts integral decimals such as "3.0".
func castQuantity(s string) (int32, error) {
	if v, err := strconv.ParseInt(s, 10, 32); err == nil {
		return int32(v), nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("not an integer: %q", s)
	}

	return int32(f), nil
}

func castOrderDate(s string) (time.Time, error) {
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}
