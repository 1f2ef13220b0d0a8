package address

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound is returned when no address matches the id and owner.
var ErrNotFound = errors.New("address not found")

// Address is a shipping destination owned by a single user.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Phone      string
	Line1      string
	Line2      string
	District   string
	Province   string
	PostalCode string
}

// Repository defines read operations over user addresses.
type Repository interface {
	// GetForUser returns the address only when it belongs to the given user,
	// so a caller can never attach another account's address to an order.
	GetForUser(ctx context.Context, id, userID string) (*Address, error)
}
