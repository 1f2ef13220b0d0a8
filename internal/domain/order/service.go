package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/pchaiwong/shophub-orders/internal/domain/address"
	"github.com/pchaiwong/shophub-orders/internal/domain/product"
)

// totalTolerance is the maximum accepted drift between the submitted summary
// total and the server-side recomputation (rounding slack of one satang).
var totalTolerance = decimal.New(1, -2)

// ItemRequest is one requested product line at checkout.
type ItemRequest struct {
	ProductID string
	Quantity  int
}

// Summary carries the checkout totals as computed by the storefront. The
// service recomputes the subtotal from live product prices and rejects the
// order when the submitted total disagrees with the recomputation.
type Summary struct {
	Subtotal decimal.Decimal
	Shipping decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	UserID         string
	AddressID      string
	Items          []ItemRequest
	Summary        Summary
	PaymentMethod  PaymentMethod
	ShippingMethod ShippingMethod
	Notes          string
}

// CancelRequest holds the input for cancelling an order.
type CancelRequest struct {
	OrderID string
	Reason  string
}

// defaultCancelNote is recorded when the caller supplies no reason.
const defaultCancelNote = "cancelled by customer"

// Service orchestrates the order lifecycle: validation, transactional state
// changes against the store, and best-effort event notification.
type Service struct {
	products  product.Repository
	addresses address.Repository
	store     Store
	notifier  Notifier
}

// NewService creates an order Service with the required collaborators.
func NewService(
	products product.Repository,
	addresses address.Repository,
	store Store,
	notifier Notifier,
) *Service {
	return &Service{
		products:  products,
		addresses: addresses,
		store:     store,
		notifier:  notifier,
	}
}

// Create validates the request fail-fast and, only once every check has
// passed, persists the order in a single transaction that also decrements
// product stock and appends the initial PENDING status log entry.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	if !req.ShippingMethod.Valid() {
		return nil, &InvalidEnumError{Field: "shippingMethod", Value: string(req.ShippingMethod)}
	}
	if !req.PaymentMethod.Valid() {
		return nil, &InvalidEnumError{Field: "paymentMethod", Value: string(req.PaymentMethod)}
	}
	if req.UserID == "" {
		return nil, ErrMissingUser
	}
	if req.AddressID == "" {
		return nil, ErrMissingAddress
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.ProductID == "" {
			return nil, ErrMissingProduct
		}
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// The address must exist and belong to the ordering user.
	if _, err := s.addresses.GetForUser(ctx, req.AddressID, req.UserID); err != nil {
		if errors.Is(err, address.ErrNotFound) {
			return nil, ErrAddressNotOwned
		}
		return nil, errors.Wrap(err, "get address")
	}

	// Batch fetch all referenced products in one query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}
	byID := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		byID[p.ID] = p
	}

	// Any missing or inactive product, or any shortfall in stock, aborts the
	// whole order. The pre-check gives the caller a precise error; the store
	// re-enforces stock atomically with a conditional decrement.
	for _, item := range req.Items {
		p, ok := byID[item.ProductID]
		if !ok {
			return nil, &ProductUnavailableError{ProductID: item.ProductID}
		}
		if !p.Active {
			return nil, &ProductUnavailableError{ProductID: item.ProductID, Inactive: true}
		}
		if item.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: item.ProductID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
	}

	// Build line items with price snapshots and recompute the subtotal.
	orderID := uuid.New().String()
	items := make([]Item, len(req.Items))
	subtotal := decimal.Zero
	for i, item := range req.Items {
		price := byID[item.ProductID].Price
		lineTotal := price.Mul(decimal.NewFromInt(int64(item.Quantity)))

		items[i] = Item{
			ID:        uuid.New().String(),
			OrderID:   orderID,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: price,
			LineTotal: lineTotal,
		}
		subtotal = subtotal.Add(lineTotal)
	}

	total := subtotal.
		Add(req.Summary.Shipping).
		Add(req.Summary.Tax).
		Sub(req.Summary.Discount).
		Round(2)
	if total.Sub(req.Summary.Total).Abs().GreaterThan(totalTolerance) {
		return nil, ErrTotalMismatch
	}

	o := &Order{
		ID:             orderID,
		Number:         NewNumber(),
		UserID:         req.UserID,
		AddressID:      req.AddressID,
		Status:         StatusPending,
		PaymentStatus:  PaymentUnpaid,
		PaymentMethod:  req.PaymentMethod,
		ShippingMethod: req.ShippingMethod,
		Subtotal:       subtotal.Round(2),
		ShippingFee:    req.Summary.Shipping.Round(2),
		Tax:            req.Summary.Tax.Round(2),
		Discount:       req.Summary.Discount.Round(2),
		Total:          total,
		Notes:          req.Notes,
		Items:          items,
	}
	if err := s.store.Create(ctx, o); err != nil {
		return nil, err
	}

	s.notifier.OrderCreated(ctx, o)
	return o, nil
}

// Cancel transitions a PENDING or CONFIRMED order to CANCELLED and restores
// the stock its items had reserved. Orders in any other state are refused.
func (s *Service) Cancel(ctx context.Context, req CancelRequest) (*Order, error) {
	note := req.Reason
	if note == "" {
		note = defaultCancelNote
	}

	tr, err := s.store.Cancel(ctx, req.OrderID, note)
	if err != nil {
		return nil, err
	}

	s.notifier.OrderStatusChanged(ctx, tr.Order, tr.From, note)
	return tr.Order, nil
}

// ApplyPatch applies an admin update to an order. Setting the same status
// again is an accepted no-op; entering SHIPPED or DELIVERED stamps the
// respective timestamp exactly once.
func (s *Service) ApplyPatch(ctx context.Context, id string, p Patch) (*Order, error) {
	if p.Empty() {
		return nil, ErrEmptyPatch
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return nil, &InvalidEnumError{Field: "status", Value: string(*p.Status)}
		}
		// Cancellation restores stock and must go through Cancel.
		if *p.Status == StatusCancelled {
			return nil, ErrCancelViaPatch
		}
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return nil, &InvalidEnumError{Field: "paymentStatus", Value: string(*p.PaymentStatus)}
	}

	tr, err := s.store.ApplyPatch(ctx, id, p)
	if err != nil {
		return nil, err
	}

	if tr.From != tr.Order.Status {
		s.notifier.OrderStatusChanged(ctx, tr.Order, tr.From, "updated by admin")
	}
	return tr.Order, nil
}

// Delete removes an order and its dependent rows. Delivered or paid orders
// are financial records and refuse deletion.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// Get returns a single order with its items.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.GetByID(ctx, id)
}

// GetByNumber returns a single order by its display order number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*Order, error) {
	return s.store.GetByNumber(ctx, number)
}

// ListByUser returns all orders of a user, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.store.ListByUser(ctx, userID)
}

// Logs returns the status audit trail of an order, oldest first.
func (s *Service) Logs(ctx context.Context, orderID string) ([]StatusLog, error) {
	return s.store.Logs(ctx, orderID)
}

// NewNumber generates a display order number from the current time plus a
// random suffix. Collision-resistant for display purposes, not a sequence.
func NewNumber() string {
	return fmt.Sprintf("ORD%d%04d", time.Now().UnixMilli(), rand.IntN(10000))
}
