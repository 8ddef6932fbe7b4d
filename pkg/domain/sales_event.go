package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinQuantity = 1
	MaxQuantity = 5
)

// TimestampLayout is the text form of order_date: UTC, microseconds, and
// lexically sortable.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Header is the column order of the landed batch files. The transform job
// reads files by these exact names.
var Header = []string{
	"order_id",
	"product_id",
	"product_name",
	"category",
	"price",
	"quantity",
	"order_date",
	"customer_id",
	"country",
	"total_price",
}

var (
	ErrInvalidEvent  = errors.New("invalid sales event")
	ErrInvalidRecord = errors.New("invalid sales record")
)

type SalesEvent struct {
	OrderID     string
	ProductID   string
	ProductName string
	Category    string
	Price       decimal.Decimal
	Quantity    int
	OrderDate   time.Time
	CustomerID  string
	Country     string
	TotalPrice  decimal.Decimal
}

// TotalFor is price*quantity rounded half away from zero to cents.
func TotalFor(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity))).Round(2)
}

func (e SalesEvent) Validate() error {
	if e.OrderID == "" || e.CustomerID == "" || e.ProductID == "" {
		return fmt.Errorf("%w: missing identifier", ErrInvalidEvent)
	}
	if e.Quantity < MinQuantity || e.Quantity > MaxQuantity {
		return fmt.Errorf("%w: quantity %d out of [%d, %d]", ErrInvalidEvent, e.Quantity, MinQuantity, MaxQuantity)
	}
	if !e.Price.IsPositive() {
		return fmt.Errorf("%w: non-positive price %s", ErrInvalidEvent, e.Price)
	}
	if want := TotalFor(e.Price, e.Quantity); !e.TotalPrice.Equal(want) {
		return fmt.Errorf("%w: total_price %s, want %s", ErrInvalidEvent, e.TotalPrice, want)
	}

	return nil
}

// Record renders the event in Header order.
func (e SalesEvent) Record() []string {
	return []string{
		e.OrderID,
		e.ProductID,
		e.ProductName,
		e.Category,
		e.Price.StringFixed(2),
		strconv.Itoa(e.Quantity),
		e.OrderDate.UTC().Format(TimestampLayout),
		e.CustomerID,
		e.Country,
		e.TotalPrice.StringFixed(2),
	}
}

// ParseRecord is the inverse of Record.
func ParseRecord(record []string) (SalesEvent, error) {
	if len(record) != len(Header) {
		return SalesEvent{}, fmt.Errorf("%w: got %d columns, want %d", ErrInvalidRecord, len(record), len(Header))
	}

	price, err := decimal.NewFromString(record[4])
	if err != nil {
		return SalesEvent{}, fmt.Errorf("%w: price %q: %v", ErrInvalidRecord, record[4], err)
	}

	quantity, err := strconv.Atoi(record[5])
	if err != nil {
		return SalesEvent{}, fmt.Errorf("%w: quantity %q: %v", ErrInvalidRecord, record[5], err)
	}

	orderDate, err := time.Parse(TimestampLayout, record[6])
	if err != nil {
		return SalesEvent{}, fmt.Errorf("%w: order_date %q: %v", ErrInvalidRecord, record[6], err)
	}

	total, err := decimal.NewFromString(record[9])
	if err != nil {
		return SalesEvent{}, fmt.Errorf("%w: total_price %q: %v", ErrInvalidRecord, record[9], err)
	}

	return SalesEvent{
		OrderID:     record[0],
		ProductID:   record[1],
		ProductName: record[2],
		Category:    record[3],
		Price:       price,
		Quantity:    quantity,
		OrderDate:   orderDate,
		CustomerID:  record[7],
		Country:     record[8],
		TotalPrice:  total,
	}, nil
}

// salesEventJSON keeps prices as JSON numbers rather than decimal's quoted
// strings.
type salesEventJSON struct {
	OrderID     string      `json:"order_id"`
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Category    string      `json:"category"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	OrderDate   string      `json:"order_date"`
	CustomerID  string      `json:"customer_id"`
	Country     string      `json:"country"`
	TotalPrice  json.Number `json:"total_price"`
}

func (e SalesEvent) MarshalJSON() ([]byte, error) {
	return json.Marshal(salesEventJSON{
		OrderID:     e.OrderID,
		ProductID:   e.ProductID,
		ProductName: e.ProductName,
		Category:    e.Category,
		Price:       json.Number(e.Price.StringFixed(2)),
		Quantity:    e.Quantity,
		OrderDate:   e.OrderDate.UTC().Format(TimestampLayout),
		CustomerID:  e.CustomerID,
		Country:     e.Country,
		TotalPrice:  json.Number(e.TotalPrice.StringFixed(2)),
	})
}

func (e *SalesEvent) UnmarshalJSON(data []byte) error {
	var raw salesEventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	price, err := decimal.NewFromString(raw.Price.String())
	if err != nil {
		return fmt.Errorf("%w: price: %v", ErrInvalidRecord, err)
	}

	total, err := decimal.NewFromString(raw.TotalPrice.String())
	if err != nil {
		return fmt.Errorf("%w: total_price: %v", ErrInvalidRecord, err)
	}

	orderDate, err := time.Parse(TimestampLayout, raw.OrderDate)
	if err != nil {
		return fmt.Errorf("%w: order_date: %v", ErrInvalidRecord, err)
	}

	*e = SalesEvent{
		OrderID:     raw.OrderID,
		ProductID:   raw.ProductID,
		ProductName: raw.ProductName,
		Category:    raw.Category,
		Price:       price,
		Quantity:    raw.Quantity,
		OrderDate:   orderDate,
		CustomerID:  raw.CustomerID,
		Country:     raw.Country,
		TotalPrice:  total,
	}

	return nil
}
