package domain

import "time"

// EnrichedSale is one row of the columnar output.
type EnrichedSale struct {
	OrderID            string    `parquet:"order_id"`
	ProductID          string    `parquet:"product_id"`
	ProductName        string    `parquet:"product_name"`
	Category           string    `parquet:"category"`
	Price              float64   `parquet:"price"`
	Quantity           int32     `parquet:"quantity"`
	OrderDate          time.Time `parquet:"order_date,timestamp(microsecond)"`
	CustomerID         string    `parquet:"customer_id"`
	Country            string    `parquet:"country"`
	TotalPrice         float64   `parquet:"total_price"`
	ProcessedTimestamp time.Time `parquet:"processed_timestamp,timestamp(microsecond)"`
}
