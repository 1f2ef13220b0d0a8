package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product is a catalog item. Stock is the number of units available for new
// orders; it is mutated only by order creation and cancellation.
type Product struct {
	ID     string
	SKU    string
	Name   string
	Price  decimal.Decimal
	Stock  int
	Active bool
}

// Repository defines read operations over the product catalog. Stock writes
// happen inside order transactions and are owned by the order store, not here.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
