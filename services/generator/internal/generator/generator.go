package generator

import (
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/sakashimaa/sales-pipeline/pkg/domain"
)

type Mode int

const (
	// ModeBatch backdates order_date up to Lookback.
	ModeBatch Mode = iota
	// ModeStreaming stamps order_date with the call time.
	ModeStreaming
)

func (m Mode) String() string {
	switch m {
	case ModeBatch:
		return "batch"
	case ModeStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

const Lookback = 365 * 24 * time.Hour

type Generator struct {
	catalog   domain.Catalog
	countries []string
	rnd       *rand.Rand
	now       func() time.Time
}

// New builds a generator over catalog. rnd and now are owned by the
// generator and must not be shared with other goroutines.
func New(catalog domain.Catalog, rnd *rand.Rand, now func() time.Time) *Generator {
	return &Generator{
		catalog:   catalog,
		countries: domain.Countries,
		rnd:       rnd,
		now:       now,
	}
}

func NewDefault() *Generator {
	seed := uint64(time.Now().UnixNano())
	return New(domain.DefaultCatalog(), rand.New(rand.NewPCG(seed, seed>>1|1)), time.Now)
}

func (g *Generator) Generate(mode Mode) domain.SalesEvent {
	category, product := g.catalog.Pick(g.rnd.IntN)
	quantity := domain.MinQuantity + g.rnd.IntN(domain.MaxQuantity-domain.MinQuantity+1)

	return domain.SalesEvent{
		OrderID:     uuid.NewString(),
		ProductID:   uuid.NewString(),
		ProductName: product.Name,
		Category:    category,
		Price:       product.Price,
		Quantity:    quantity,
		OrderDate:   g.orderDate(mode),
		CustomerID:  uuid.NewString(),
		Country:     g.countries[g.rnd.IntN(len(g.countries))],
		TotalPrice:  domain.TotalFor(product.Price, quantity),
	}
}

// orderDate works at microsecond precision, the resolution of the file
// format, so a written event parses back to an equal timestamp.
func (g *Generator) orderDate(mode Mode) time.Time {
	now := g.now().UTC().Truncate(time.Microsecond)
	if mode == ModeStreaming {
		return now
	}

	steps := int64(Lookback / time.Microsecond)
	offset := time.Duration(g.rnd.Int64N(steps+1)) * time.Microsecond

	return now.Add(-offset)
}
