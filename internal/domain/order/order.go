package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Order is a customer's checkout transaction record. Monetary fields always
// satisfy Total = Subtotal + ShippingFee + Tax - Discount.
type Order struct {
	ID             string
	Number         string
	UserID         string
	AddressID      string
	Status         Status
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	ShippingMethod ShippingMethod
	Subtotal       decimal.Decimal
	ShippingFee    decimal.Decimal
	Tax            decimal.Decimal
	Discount       decimal.Decimal
	Total          decimal.Decimal
	Notes          string
	TrackingNumber string
	Items          []Item
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Item is one product line within an order. UnitPrice is a snapshot of the
// product price at order creation; it never tracks later price changes.
type Item struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// StatusLog is one row of the append-only status audit trail.
type StatusLog struct {
	ID        string
	OrderID   string
	Status    Status
	Note      string
	CreatedAt time.Time
}

// Patch lists the order fields an admin update is allowed to change. Nil
// fields are left untouched.
type Patch struct {
	Status         *Status
	PaymentStatus  *PaymentStatus
	TrackingNumber *string
	Notes          *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Status == nil && p.PaymentStatus == nil && p.TrackingNumber == nil && p.Notes == nil
}

// Transition is the result of a mutating lifecycle operation: the order as
// persisted after the operation, plus the status it held before.
type Transition struct {
	Order *Order
	From  Status
}

// Store defines the transactional persistence operations for orders. Every
// mutating method executes as a single transaction: either all of its writes
// commit, or none do.
type Store interface {
	// Create persists the order with its items and an initial PENDING status
	// log entry, decrementing product stock for every item. Returns an
	// *InsufficientStockError when any decrement would drive stock negative.
	Create(ctx context.Context, o *Order) error

	// Cancel transitions the order to CANCELLED, restores the stock reserved
	// by its items, and appends a status log entry with the given note.
	// Returns an *IllegalTransitionError when the order is not cancellable.
	Cancel(ctx context.Context, id, note string) (*Transition, error)

	// ApplyPatch applies an admin patch. A status change appends a log entry
	// recording the prior and new status; entering SHIPPED or DELIVERED stamps
	// the corresponding timestamp once and never overwrites it.
	ApplyPatch(ctx context.Context, id string, p Patch) (*Transition, error)

	// Delete removes the order with its items and logs. Returns
	// ErrDeleteProtected for delivered or paid orders.
	Delete(ctx context.Context, id string) error

	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	Logs(ctx context.Context, orderID string) ([]StatusLog, error)
}

// Notifier publishes order lifecycle events to interested collaborators.
// Implementations are best-effort: the order subsystem never fails a request
// because a notification could not be delivered.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order)
	OrderStatusChanged(ctx context.Context, o *Order, from Status, note string)
}
