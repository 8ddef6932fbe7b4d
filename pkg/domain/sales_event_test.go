package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func validEvent() SalesEvent {
	price := decimal.RequireFromString("149.99")

	return SalesEvent{
		OrderID:     "8b0e8f4e-2f53-4c2b-9d6a-0f7c1d2e3a4b",
		ProductID:   "1c9d5e3f-7a8b-4c6d-8e9f-0a1b2c3d4e5f",
		ProductName: "Headphones",
		Category:    "Electronics",
		Price:       price,
		Quantity:    3,
		OrderDate:   time.Date(2024, 3, 9, 14, 5, 7, 123456000, time.UTC),
		CustomerID:  "5e6f7a8b-9c0d-4e1f-a2b3-c4d5e6f7a8b9",
		Country:     "Japan",
		TotalPrice:  TotalFor(price, 3),
	}
}

func TestTotalFor_RoundsHalfUp(t *testing.T) {
	cases := []struct {
		price    string
		quantity int
		want     string
	}{
		{"149.99", 3, "449.97"},
		{"0.005", 1, "0.01"},
		{"0.125", 1, "0.13"},
		{"25.00", 5, "125.00"},
		{"0.333", 3, "1.00"},
	}

	for _, tc := range cases {
		got := TotalFor(decimal.RequireFromString(tc.price), tc.quantity)
		require.Equal(t, tc.want, got.StringFixed(2), "%s x %d", tc.price, tc.quantity)
	}
}

func TestSalesEvent_Validate(t *testing.T) {
	require.NoError(t, validEvent().Validate())

	broken := map[string]func(e *SalesEvent){
		"missing order id":  func(e *SalesEvent) { e.OrderID = "" },
		"quantity too low":  func(e *SalesEvent) { e.Quantity = 0 },
		"quantity too high": func(e *SalesEvent) { e.Quantity = 6 },
		"zero price":        func(e *SalesEvent) { e.Price = decimal.Zero },
		"wrong total":       func(e *SalesEvent) { e.TotalPrice = e.TotalPrice.Add(decimal.RequireFromString("0.01")) },
	}

	for name, mutate := range broken {
		t.Run(name, func(t *testing.T) {
			e := validEvent()
			mutate(&e)
			require.ErrorIs(t, e.Validate(), ErrInvalidEvent)
		})
	}
}

func TestSalesEvent_RecordRoundTrip(t *testing.T) {
	e := validEvent()

	record := e.Record()
	require.Len(t, record, len(Header))
	require.Equal(t, "149.99", record[4])
	require.Equal(t, "2024-03-09T14:05:07.123456Z", record[6])
	require.Equal(t, "449.97", record[9])

	parsed, err := ParseRecord(record)
	require.NoError(t, err)
	require.True(t, parsed.OrderDate.Equal(e.OrderDate))
	require.True(t, parsed.Price.Equal(e.Price))
	require.True(t, parsed.TotalPrice.Equal(e.TotalPrice))
	require.Equal(t, e.OrderID, parsed.OrderID)
	require.Equal(t, e.Quantity, parsed.Quantity)
	require.NoError(t, parsed.Validate())
}

func TestParseRecord_Rejects(t *testing.T) {
	_, err := ParseRecord([]string{"too", "short"})
	require.ErrorIs(t, err, ErrInvalidRecord)

	record := validEvent().Record()
	record[5] = "three"
	_, err = ParseRecord(record)
	require.ErrorIs(t, err, ErrInvalidRecord)

	record = validEvent().Record()
	record[6] = "yesterday"
	_, err = ParseRecord(record)
	require.ErrorIs(t, err, ErrInvalidRecord)
}

func TestSalesEvent_JSONUsesNumbers(t *testing.T) {
	data, err := json.Marshal(validEvent())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, 149.99, raw["price"])
	require.Equal(t, 449.97, raw["total_price"])
	require.Equal(t, float64(3), raw["quantity"])
	require.Equal(t, "2024-03-09T14:05:07.123456Z", raw["order_date"])

	var back SalesEvent
	require.NoError(t, json.Unmarshal(data, &back))
	require.NoError(t, back.Validate())
	require.True(t, back.OrderDate.Equal(validEvent().OrderDate))
}
