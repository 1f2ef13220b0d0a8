package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pchaiwong/shophub-orders/internal/domain/order"
)

const orderColumns = `id, order_number, user_id, address_id, status, payment_status,
	payment_method, shipping_method, subtotal, shipping_fee, tax, discount, total,
	notes, tracking_number, shipped_at, delivered_at, created_at, updated_at`

const (
	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, address_id, status,
		payment_status, payment_method, shipping_method, subtotal, shipping_fee, tax,
		discount, total, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	insertItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, unit_price, line_total)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertLogSQL = `INSERT INTO order_status_logs (id, order_id, status, note)
		VALUES ($1, $2, $3, $4)`

	// Conditional decrement: the WHERE clause refuses to drive stock negative,
	// which closes the check-then-act race between concurrent orders without
	// relying on a particular isolation level.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`

	restoreStockSQL = `UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`

	selectStockSQL = `SELECT stock FROM products WHERE id = $1`

	selectOrderForUpdateSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`

	selectItemsSQL = `SELECT id, order_id, product_id, quantity, unit_price, line_total
		FROM order_items WHERE order_id = $1 ORDER BY id`

	cancelOrderSQL = `UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1 RETURNING updated_at`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Store = (*OrderStore)(nil)

// OrderStore implements order.Store backed by PostgreSQL. Every mutating
// method runs as one transaction; the deferred rollback is a no-op after a
// successful commit.
type OrderStore struct {
	pool *pgxpool.Pool
}

// NewOrderStore returns an OrderStore that uses the given pool.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// Create persists the order, its items, and the initial PENDING status log
// entry, decrementing product stock per item. Stock is decremented with a
// conditional update; a zero-row result means another transaction consumed
// the stock first, and the whole order rolls back.
func (s *OrderStore) Create(ctx context.Context, o *order.Order) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	err = tx.QueryRow(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, o.AddressID, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.ShippingMethod, o.Subtotal, o.ShippingFee, o.Tax,
		o.Discount, o.Total, o.Notes,
	).Scan(&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return errors.Wrapf(err, "insert order %s", o.Number)
	}

	for _, item := range o.Items {
		ct, err := tx.Exec(ctx, decrementStockSQL, item.ProductID, item.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock for product %s", item.ProductID)
		}
		if ct.RowsAffected() == 0 {
			return stockShortfall(ctx, tx, item.ProductID, item.Quantity)
		}

		_, err = tx.Exec(ctx, insertItemSQL,
			item.ID, o.ID, item.ProductID, item.Quantity, item.UnitPrice, item.LineTotal,
		)
		if err != nil {
			return errors.Wrapf(err, "insert order item for product %s", item.ProductID)
		}
	}

	_, err = tx.Exec(ctx, insertLogSQL, uuid.New().String(), o.ID, o.Status, "order created")
	if err != nil {
		return errors.Wrap(err, "insert status log")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// stockShortfall builds the error for a failed conditional decrement: either
// the product row vanished or its stock is below the requested quantity.
func stockShortfall(ctx context.Context, tx pgx.Tx, productID string, requested int) error {
	var available int
	err := tx.QueryRow(ctx, selectStockSQL, productID).Scan(&available)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &order.ProductUnavailableError{ProductID: productID}
		}
		return errors.Wrapf(err, "read stock for product %s", productID)
	}
	return &order.InsufficientStockError{
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

// Cancel locks the order row, verifies the state machine allows cancellation,
// restores the stock reserved by each item, and appends a CANCELLED log entry.
func (s *OrderStore) Cancel(ctx context.Context, id, note string) (*order.Transition, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrderRow(tx.QueryRow(ctx, selectOrderForUpdateSQL, id))
	if err != nil {
		return nil, err
	}
	from := o.Status

	if !from.Cancellable() {
		return nil, &order.IllegalTransitionError{From: from, To: order.StatusCancelled}
	}

	items, err := queryItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, err := tx.Exec(ctx, restoreStockSQL, item.ProductID, item.Quantity); err != nil {
			return nil, errors.Wrapf(err, "restore stock for product %s", item.ProductID)
		}
	}

	if err := tx.QueryRow(ctx, cancelOrderSQL, id, order.StatusCancelled).Scan(&o.UpdatedAt); err != nil {
		return nil, errors.Wrap(err, "update order status")
	}
	o.Status = order.StatusCancelled
	o.Items = items

	_, err = tx.Exec(ctx, insertLogSQL, uuid.New().String(), id, order.StatusCancelled, note)
	if err != nil {
		return nil, errors.Wrap(err, "insert status log")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return &order.Transition{Order: o, From: from}, nil
}

const applyPatchSQL = `UPDATE orders SET
		status = $2,
		payment_status = $3,
		tracking_number = $4,
		notes = $5,
		shipped_at = CASE WHEN $2 = 'SHIPPED' THEN COALESCE(shipped_at, now()) ELSE shipped_at END,
		delivered_at = CASE WHEN $2 = 'DELIVERED' THEN COALESCE(delivered_at, now()) ELSE delivered_at END,
		updated_at = now()
	WHERE id = $1
	RETURNING shipped_at, delivered_at, updated_at`

// ApplyPatch locks the order row, validates any status transition, and applies
// the explicit field list of the patch. The SHIPPED and DELIVERED stamps use
// COALESCE so a repeated update never overwrites the first-set timestamp.
func (s *OrderStore) ApplyPatch(ctx context.Context, id string, p order.Patch) (*order.Transition, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrderRow(tx.QueryRow(ctx, selectOrderForUpdateSQL, id))
	if err != nil {
		return nil, err
	}
	from := o.Status

	if p.Status != nil {
		if !order.CanTransition(from, *p.Status) {
			return nil, &order.IllegalTransitionError{From: from, To: *p.Status}
		}
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}

	err = tx.QueryRow(ctx, applyPatchSQL,
		id, o.Status, o.PaymentStatus, o.TrackingNumber, o.Notes,
	).Scan(&o.ShippedAt, &o.DeliveredAt, &o.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "update order")
	}

	if o.Status != from {
		note := fmt.Sprintf("status changed from %s to %s", from, o.Status)
		_, err = tx.Exec(ctx, insertLogSQL, uuid.New().String(), id, o.Status, note)
		if err != nil {
			return nil, errors.Wrap(err, "insert status log")
		}
	}

	o.Items, err = queryItems(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return &order.Transition{Order: o, From: from}, nil
}

// Delete removes an order after checking the protection rule. Items and logs
// go with it through ON DELETE CASCADE.
func (s *OrderStore) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := scanOrderRow(tx.QueryRow(ctx, selectOrderForUpdateSQL, id))
	if err != nil {
		return err
	}
	if o.Status == order.StatusDelivered || o.PaymentStatus == order.PaymentPaid {
		return order.ErrDeleteProtected
	}

	if _, err := tx.Exec(ctx, deleteOrderSQL, id); err != nil {
		return errors.Wrap(err, "delete order")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// GetByID returns a single order with its items.
func (s *OrderStore) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
}

// GetByNumber returns a single order by its unique display number.
func (s *OrderStore) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return s.getOne(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
}

func (s *OrderStore) getOne(ctx context.Context, sql, arg string) (*order.Order, error) {
	o, err := scanOrderRow(s.pool.QueryRow(ctx, sql, arg))
	if err != nil {
		return nil, err
	}

	o.Items, err = queryItems(ctx, s.pool, o.ID)
	if err != nil {
		return nil, err
	}
	return o, nil
}

// ListByUser returns all orders of a user with their items, newest first.
func (s *OrderStore) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for user %s", userID)
	}
	out, err := pgx.CollectRows(rows, collectOrder)
	if err != nil {
		return nil, errors.Wrap(err, "collect orders")
	}

	for i := range out {
		out[i].Items, err = queryItems(ctx, s.pool, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Logs returns the status audit trail of an order, oldest first.
func (s *OrderStore) Logs(ctx context.Context, orderID string) ([]order.StatusLog, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, status, note, created_at FROM order_status_logs
		 WHERE order_id = $1 ORDER BY created_at, id`, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list status logs for order %s", orderID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.StatusLog, error) {
		var l order.StatusLog
		err := row.Scan(&l.ID, &l.OrderID, &l.Status, &l.Note, &l.CreatedAt)
		return l, err
	})
}

// querier is the subset of pgx used by the row helpers, satisfied by both
// pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryItems(ctx context.Context, q querier, orderID string) ([]order.Item, error) {
	rows, err := q.Query(ctx, selectItemsSQL, orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "list items for order %s", orderID)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (order.Item, error) {
		var it order.Item
		err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.LineTotal)
		return it, err
	})
}

func scanOrderRow(row pgx.Row) (*order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.AddressID, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.ShippingMethod, &o.Subtotal, &o.ShippingFee, &o.Tax,
		&o.Discount, &o.Total, &o.Notes, &o.TrackingNumber, &o.ShippedAt,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}
	return &o, nil
}

func collectOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &o.AddressID, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.ShippingMethod, &o.Subtotal, &o.ShippingFee, &o.Tax,
		&o.Discount, &o.Total, &o.Notes, &o.TrackingNumber, &o.ShippedAt,
		&o.DeliveredAt, &o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}
