package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase. Prices are in
// whole currency units.
type Product struct {
	ID      string
	Name    string
	Price   decimal.Decimal
	Image   string
	InStock bool
}

// Repository defines the read operations the checkout flow needs from the
// product catalog. Catalog browsing and search live outside this service.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
