package domain

import (
	"errors"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

var ErrInvalidCatalog = errors.New("invalid catalog")

var Countries = []string{"USA", "Canada", "UK", "Germany", "France", "Australia", "Japan"}

type Product struct {
	Name  string
	Price decimal.Decimal
}

type Category struct {
	Name     string
	Products []Product
}

// Catalog is read-only once built. Accessors hand out copies.
type Catalog struct {
	categories []Category
}

func NewCatalog(categories ...Category) (Catalog, error) {
	if len(categories) == 0 {
		return Catalog{}, fmt.Errorf("%w: no categories", ErrInvalidCatalog)
	}

	seen := make(map[string]struct{}, len(categories))
	owned := make([]Category, 0, len(categories))
	for _, c := range categories {
		if c.Name == "" {
			return Catalog{}, fmt.Errorf("%w: empty category name", ErrInvalidCatalog)
		}
		if _, ok := seen[c.Name]; ok {
			return Catalog{}, fmt.Errorf("%w: duplicate category %q", ErrInvalidCatalog, c.Name)
		}
		seen[c.Name] = struct{}{}

		if len(c.Products) == 0 {
			return Catalog{}, fmt.Errorf("%w: category %q has no products", ErrInvalidCatalog, c.Name)
		}
		for _, p := range c.Products {
			if !p.Price.IsPositive() {
				return Catalog{}, fmt.Errorf("%w: %q in %q has non-positive price %s", ErrInvalidCatalog, p.Name, c.Name, p.Price)
			}
		}

		owned = append(owned, Category{Name: c.Name, Products: slices.Clone(c.Products)})
	}

	return Catalog{categories: owned}, nil
}

func MustCatalog(categories ...Category) Catalog {
	c, err := NewCatalog(categories...)
	if err != nil {
		panic(err)
	}

	return c
}

func DefaultCatalog() Catalog {
	return MustCatalog(
		Category{Name: "Electronics", Products: []Product{
			{Name: "Laptop", Price: decimal.RequireFromString("999.99")},
			{Name: "Smartphone", Price: decimal.RequireFromString("799.99")},
			{Name: "Headphones", Price: decimal.RequireFromString("149.99")},
			{Name: "Smart Watch", Price: decimal.RequireFromString("249.99")},
		}},
		Category{Name: "Books", Products: []Product{
			{Name: "The Midnight Library", Price: decimal.RequireFromString("15.99")},
			{Name: "Project Hail Mary", Price: decimal.RequireFromString("17.99")},
			{Name: "Dune", Price: decimal.RequireFromString("10.99")},
			{Name: "Klara and the Sun", Price: decimal.RequireFromString("14.99")},
		}},
		Category{Name: "Home Goods", Products: []Product{
			{Name: "Coffee Maker", Price: decimal.RequireFromString("89.99")},
			{Name: "Blender", Price: decimal.RequireFromString("49.99")},
			{Name: "Air Fryer", Price: decimal.RequireFromString("119.99")},
			{Name: "Scented Candle", Price: decimal.RequireFromString("19.99")},
		}},
		Category{Name: "Apparel", Products: []Product{
			{Name: "T-Shirt", Price: decimal.RequireFromString("25.00")},
			{Name: "Jeans", Price: decimal.RequireFromString("75.00")},
			{Name: "Sneakers", Price: decimal.RequireFromString("120.00")},
			{Name: "Jacket", Price: decimal.RequireFromString("150.00")},
		}},
	)
}

func (c Catalog) Categories() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}

	return names
}

func (c Catalog) Products(category string) []Product {
	for _, cat := range c.categories {
		if cat.Name == category {
			return slices.Clone(cat.Products)
		}
	}

	return nil
}

// Pick selects a category uniformly, then a product uniformly within it.
// intn must return a value in [0, n).
func (c Catalog) Pick(intn func(n int) int) (string, Product) {
	cat := c.categories[intn(len(c.categories))]
	return cat.Name, cat.Products[intn(len(cat.Products))]
}
