package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pchaiwong/shophub-orders/internal/domain/address"
)

const getAddressForUserSQL = `SELECT id, user_id, recipient, phone, line1, line2,
	district, province, postal_code
	FROM addresses WHERE id = $1 AND user_id = $2`

var _ address.Repository = (*AddressRepository)(nil)

// AddressRepository implements address.Repository backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetForUser returns the address only when it belongs to the given user.
// A foreign or missing address both come back as address.ErrNotFound.
func (r *AddressRepository) GetForUser(ctx context.Context, id, userID string) (*address.Address, error) {
	rows, err := r.pool.Query(ctx, getAddressForUserSQL, id, userID)
	if err != nil {
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}

	a, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (address.Address, error) {
		var a address.Address
		err := row.Scan(&a.ID, &a.UserID, &a.Recipient, &a.Phone, &a.Line1, &a.Line2,
			&a.District, &a.Province, &a.PostalCode)
		return a, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, address.ErrNotFound
		}
		return nil, fmt.Errorf("getting address %q: %w", id, err)
	}
	return &a, nil
}
