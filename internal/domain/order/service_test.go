package order

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pchaiwong/shophub-orders/internal/domain/address"
	"github.com/pchaiwong/shophub-orders/internal/domain/product"
)

// --- Fakes ---

// memStore is an in-memory Store sharing the product map with the product
// repository fake, so stock mutations are observable the way they would be
// through the database.
type memStore struct {
	products  map[string]*product.Product
	orders    map[string]*Order
	logs      map[string][]StatusLog
	createErr error
}

func newMemStore(products map[string]*product.Product) *memStore {
	return &memStore{
		products: products,
		orders:   make(map[string]*Order),
		logs:     make(map[string][]StatusLog),
	}
}

func (m *memStore) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	// Conditional decrement semantics: any shortfall aborts with no mutation.
	for _, it := range o.Items {
		p, ok := m.products[it.ProductID]
		if !ok {
			return &ProductUnavailableError{ProductID: it.ProductID}
		}
		if p.Stock < it.Quantity {
			return &InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity, Available: p.Stock}
		}
	}
	for _, it := range o.Items {
		m.products[it.ProductID].Stock -= it.Quantity
	}
	now := time.Now()
	o.CreatedAt, o.UpdatedAt = now, now
	cp := *o
	m.orders[o.ID] = &cp
	m.logs[o.ID] = append(m.logs[o.ID], StatusLog{OrderID: o.ID, Status: o.Status, Note: "order created", CreatedAt: now})
	return nil
}

func (m *memStore) Cancel(_ context.Context, id, note string) (*Transition, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	from := o.Status
	if !from.Cancellable() {
		return nil, &IllegalTransitionError{From: from, To: StatusCancelled}
	}
	for _, it := range o.Items {
		m.products[it.ProductID].Stock += it.Quantity
	}
	o.Status = StatusCancelled
	o.UpdatedAt = time.Now()
	m.logs[id] = append(m.logs[id], StatusLog{OrderID: id, Status: StatusCancelled, Note: note, CreatedAt: o.UpdatedAt})
	cp := *o
	return &Transition{Order: &cp, From: from}, nil
}

func (m *memStore) ApplyPatch(_ context.Context, id string, p Patch) (*Transition, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	from := o.Status
	if p.Status != nil {
		if !CanTransition(from, *p.Status) {
			return nil, &IllegalTransitionError{From: from, To: *p.Status}
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
	now := time.Now()
	if o.Status == StatusShipped && o.ShippedAt == nil {
		o.ShippedAt = &now
	}
	if o.Status == StatusDelivered && o.DeliveredAt == nil {
		o.DeliveredAt = &now
	}
	o.UpdatedAt = now
	if o.Status != from {
		m.logs[id] = append(m.logs[id], StatusLog{OrderID: id, Status: o.Status, CreatedAt: now})
	}
	cp := *o
	return &Transition{Order: &cp, From: from}, nil
}

func (m *memStore) Delete(_ context.Context, id string) error {
	o, ok := m.orders[id]
	if !ok {
		return ErrNotFound
	}
	if o.Status == StatusDelivered || o.PaymentStatus == PaymentPaid {
		return ErrDeleteProtected
	}
	delete(m.orders, id)
	delete(m.logs, id)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.orders {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) ListByUser(_ context.Context, userID string) ([]Order, error) {
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) Logs(_ context.Context, orderID string) ([]StatusLog, error) {
	return m.logs[orderID], nil
}

type fakeProductRepo struct {
	byID map[string]*product.Product
}

func (f *fakeProductRepo) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, 0, len(f.byID))
	for _, p := range f.byID {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakeProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := f.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeAddressRepo struct {
	ownerByID map[string]string
}

func (f *fakeAddressRepo) GetForUser(_ context.Context, id, userID string) (*address.Address, error) {
	if f.ownerByID[id] != userID {
		return nil, address.ErrNotFound
	}
	return &address.Address{ID: id, UserID: userID}, nil
}

type spyNotifier struct {
	created []string
	changes []string // "from->to"
}

func (s *spyNotifier) OrderCreated(_ context.Context, o *Order) {
	s.created = append(s.created, o.ID)
}

func (s *spyNotifier) OrderStatusChanged(_ context.Context, o *Order, from Status, _ string) {
	s.changes = append(s.changes, string(from)+"->"+string(o.Status))
}

// --- Helpers ---

type env struct {
	svc      *Service
	store    *memStore
	products map[string]*product.Product
	notifier *spyNotifier
}

func newEnv(products ...product.Product) *env {
	byID := make(map[string]*product.Product, len(products))
	for i := range products {
		byID[products[i].ID] = &products[i]
	}
	store := newMemStore(byID)
	notifier := &spyNotifier{}
	svc := NewService(
		&fakeProductRepo{byID: byID},
		&fakeAddressRepo{ownerByID: map[string]string{"a1": "u1", "a2": "u2"}},
		store,
		notifier,
	)
	return &env{svc: svc, store: store, products: byID, notifier: notifier}
}

func activeProduct(id string, price string, stock int) product.Product {
	return product.Product{
		ID:     id,
		SKU:    strings.ToUpper(id),
		Name:   "Product " + id,
		Price:  decimal.RequireFromString(price),
		Stock:  stock,
		Active: true,
	}
}

func validRequest(items ...ItemRequest) CreateRequest {
	return CreateRequest{
		UserID:         "u1",
		AddressID:      "a1",
		Items:          items,
		PaymentMethod:  PaymentPromptPay,
		ShippingMethod: ShippingTHPost,
	}
}

func summaryFor(subtotal, shipping string) Summary {
	sub := decimal.RequireFromString(subtotal)
	ship := decimal.RequireFromString(shipping)
	return Summary{
		Subtotal: sub,
		Shipping: ship,
		Total:    sub.Add(ship),
	}
}

// --- Create ---

func TestCreate_HappyPath(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 3})
	req.Summary = summaryFor("300.00", "40.00")

	o, err := e.svc.Create(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentUnpaid, o.PaymentStatus)
	assert.True(t, decimal.RequireFromString("340.00").Equal(o.Total), "total = %s", o.Total)
	assert.True(t, decimal.RequireFromString("300.00").Equal(o.Subtotal))
	assert.True(t, strings.HasPrefix(o.Number, "ORD"))

	// Stock reserved.
	assert.Equal(t, 7, e.products["p1"].Stock)

	// Line item is a price snapshot.
	require.Len(t, o.Items, 1)
	assert.True(t, decimal.RequireFromString("100.00").Equal(o.Items[0].UnitPrice))
	assert.True(t, decimal.RequireFromString("300.00").Equal(o.Items[0].LineTotal))

	// One PENDING log row.
	logs, err := e.svc.Logs(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, StatusPending, logs[0].Status)

	assert.Equal(t, []string{o.ID}, e.notifier.created)
}

func TestCreate_TotalInvariant(t *testing.T) {
	e := newEnv(activeProduct("p1", "99.50", 10), activeProduct("p2", "250.00", 10))

	req := validRequest(
		ItemRequest{ProductID: "p1", Quantity: 2},
		ItemRequest{ProductID: "p2", Quantity: 1},
	)
	req.Summary = Summary{
		Subtotal: decimal.RequireFromString("449.00"),
		Shipping: decimal.RequireFromString("50.00"),
		Tax:      decimal.RequireFromString("31.43"),
		Discount: decimal.RequireFromString("20.00"),
		Total:    decimal.RequireFromString("510.43"),
	}

	o, err := e.svc.Create(context.Background(), req)
	require.NoError(t, err)

	// total == subtotal + shipping + tax - discount
	sum := o.Subtotal.Add(o.ShippingFee).Add(o.Tax).Sub(o.Discount)
	assert.True(t, sum.Equal(o.Total))

	// sum(item totals) == subtotal
	items := decimal.Zero
	for _, it := range o.Items {
		items = items.Add(it.LineTotal)
	}
	assert.True(t, items.Equal(o.Subtotal))
}

func TestCreate_InvalidEnums(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 1})
	req.ShippingMethod = "SEA_FREIGHT"
	_, err := e.svc.Create(context.Background(), req)
	var enumErr *InvalidEnumError
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "shippingMethod", enumErr.Field)

	req = validRequest(ItemRequest{ProductID: "p1", Quantity: 1})
	req.PaymentMethod = "CASH"
	_, err = e.svc.Create(context.Background(), req)
	require.ErrorAs(t, err, &enumErr)
	assert.Equal(t, "paymentMethod", enumErr.Field)

	// Nothing touched storage.
	assert.Equal(t, 10, e.products["p1"].Stock)
	assert.Empty(t, e.store.orders)
}

func TestCreate_MissingFields(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 1})
	req.UserID = ""
	_, err := e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingUser)

	req = validRequest(ItemRequest{ProductID: "p1", Quantity: 1})
	req.AddressID = ""
	_, err = e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingAddress)

	req = validRequest()
	_, err = e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrEmptyItems)

	req = validRequest(ItemRequest{Quantity: 1})
	_, err = e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrMissingProduct)

	req = validRequest(ItemRequest{ProductID: "p1", Quantity: 0})
	_, err = e.svc.Create(context.Background(), req)
	var qtyErr *InvalidQuantityError
	require.ErrorAs(t, err, &qtyErr)
}

func TestCreate_ForeignAddress(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	// a2 belongs to u2, not u1.
	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 1})
	req.AddressID = "a2"
	req.Summary = summaryFor("100.00", "0")

	_, err := e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrAddressNotOwned)

	assert.Equal(t, 10, e.products["p1"].Stock)
	assert.Empty(t, e.store.orders)
}

func TestCreate_MissingAndInactiveProducts(t *testing.T) {
	inactive := activeProduct("p2", "50.00", 5)
	inactive.Active = false
	e := newEnv(activeProduct("p1", "100.00", 10), inactive)

	var prodErr *ProductUnavailableError

	req := validRequest(
		ItemRequest{ProductID: "p1", Quantity: 1},
		ItemRequest{ProductID: "ghost", Quantity: 1},
	)
	_, err := e.svc.Create(context.Background(), req)
	require.ErrorAs(t, err, &prodErr)
	assert.Equal(t, "ghost", prodErr.ProductID)

	req = validRequest(
		ItemRequest{ProductID: "p1", Quantity: 1},
		ItemRequest{ProductID: "p2", Quantity: 1},
	)
	_, err = e.svc.Create(context.Background(), req)
	require.ErrorAs(t, err, &prodErr)
	assert.Equal(t, "p2", prodErr.ProductID)
	assert.True(t, prodErr.Inactive)

	// No partial orders: whole request aborted.
	assert.Equal(t, 10, e.products["p1"].Stock)
	assert.Empty(t, e.store.orders)
}

func TestCreate_InsufficientStock(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 2))

	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 3})
	req.Summary = summaryFor("300.00", "0")

	_, err := e.svc.Create(context.Background(), req)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Requested)
	assert.Equal(t, 2, stockErr.Available)

	// Atomic failure: no order, no item, no stock mutation.
	assert.Equal(t, 2, e.products["p1"].Stock)
	assert.Empty(t, e.store.orders)
	assert.Empty(t, e.notifier.created)
}

func TestCreate_TotalMismatch(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	req := validRequest(ItemRequest{ProductID: "p1", Quantity: 3})
	req.Summary = summaryFor("300.00", "40.00")
	req.Summary.Total = decimal.RequireFromString("999.00")

	_, err := e.svc.Create(context.Background(), req)
	require.ErrorIs(t, err, ErrTotalMismatch)
	assert.Equal(t, 10, e.products["p1"].Stock)
}

// --- Cancel ---

func createTestOrder(t *testing.T, e *env, qty int) *Order {
	t.Helper()
	req := validRequest(ItemRequest{ProductID: "p1", Quantity: qty})
	price := e.products["p1"].Price.Mul(decimal.NewFromInt(int64(qty)))
	req.Summary = Summary{Subtotal: price, Shipping: decimal.RequireFromString("40.00"), Total: price.Add(decimal.RequireFromString("40.00"))}

	o, err := e.svc.Create(context.Background(), req)
	require.NoError(t, err)
	return o
}

func TestCancel_RestoresStock(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 3)
	require.Equal(t, 7, e.products["p1"].Stock)

	cancelled, err := e.svc.Cancel(context.Background(), CancelRequest{OrderID: o.ID, Reason: "changed my mind"})
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, 10, e.products["p1"].Stock)

	logs, err := e.svc.Logs(context.Background(), o.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, StatusPending, logs[0].Status)
	assert.Equal(t, StatusCancelled, logs[1].Status)
	assert.Equal(t, "changed my mind", logs[1].Note)

	assert.Equal(t, []string{"PENDING->CANCELLED"}, e.notifier.changes)
}

func TestCancel_DefaultReason(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	_, err := e.svc.Cancel(context.Background(), CancelRequest{OrderID: o.ID})
	require.NoError(t, err)

	logs, _ := e.svc.Logs(context.Background(), o.ID)
	require.Len(t, logs, 2)
	assert.Equal(t, defaultCancelNote, logs[1].Note)
}

func TestCancel_RejectedStates(t *testing.T) {
	for _, from := range []Status{StatusProcessing, StatusShipped, StatusDelivered, StatusRefunded} {
		t.Run(string(from), func(t *testing.T) {
			e := newEnv(activeProduct("p1", "100.00", 10))
			o := createTestOrder(t, e, 3)
			e.store.orders[o.ID].Status = from

			_, err := e.svc.Cancel(context.Background(), CancelRequest{OrderID: o.ID})

			var transErr *IllegalTransitionError
			require.ErrorAs(t, err, &transErr)
			assert.Equal(t, from, transErr.From)
			assert.Contains(t, transErr.Error(), "cannot be cancelled")

			// Stock and status untouched.
			assert.Equal(t, 7, e.products["p1"].Stock)
			assert.Equal(t, from, e.store.orders[o.ID].Status)
		})
	}
}

func TestCancel_AlreadyCancelled(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 3)

	_, err := e.svc.Cancel(context.Background(), CancelRequest{OrderID: o.ID})
	require.NoError(t, err)
	require.Equal(t, 10, e.products["p1"].Stock)

	// A second cancel must not restock again.
	_, err = e.svc.Cancel(context.Background(), CancelRequest{OrderID: o.ID})
	var transErr *IllegalTransitionError
	require.ErrorAs(t, err, &transErr)
	assert.Equal(t, 10, e.products["p1"].Stock)
}

func TestCancel_NotFound(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	_, err := e.svc.Cancel(context.Background(), CancelRequest{OrderID: "missing"})
	require.ErrorIs(t, err, ErrNotFound)
}

// --- ApplyPatch ---

func TestApplyPatch_EmptyAndInvalid(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	_, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{})
	require.ErrorIs(t, err, ErrEmptyPatch)

	bad := Status("LOST")
	_, err = e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &bad})
	var enumErr *InvalidEnumError
	require.ErrorAs(t, err, &enumErr)

	cancelled := StatusCancelled
	_, err = e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &cancelled})
	require.ErrorIs(t, err, ErrCancelViaPatch)
}

func TestApplyPatch_ShippedStampIdempotent(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	shipped := StatusShipped
	first, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &shipped})
	require.NoError(t, err)
	require.NotNil(t, first.ShippedAt)
	stamp := *first.ShippedAt

	time.Sleep(10 * time.Millisecond)

	second, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &shipped})
	require.NoError(t, err)
	require.NotNil(t, second.ShippedAt)
	assert.Equal(t, stamp, *second.ShippedAt, "second update must not overwrite shippedAt")

	// Only the first update was an actual change.
	logs, _ := e.svc.Logs(context.Background(), o.ID)
	assert.Len(t, logs, 2) // PENDING + SHIPPED
	assert.Equal(t, []string{"PENDING->SHIPPED"}, e.notifier.changes)
}

func TestApplyPatch_DeliveredStamp(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	shipped, delivered := StatusShipped, StatusDelivered
	_, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &shipped})
	require.NoError(t, err)

	got, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &delivered})
	require.NoError(t, err)
	assert.NotNil(t, got.DeliveredAt)
	assert.NotNil(t, got.ShippedAt)

	logs, _ := e.svc.Logs(context.Background(), o.ID)
	assert.Len(t, logs, 3)
}

func TestApplyPatch_IllegalTransition(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)
	e.store.orders[o.ID].Status = StatusRefunded

	pending := StatusPending
	_, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{Status: &pending})
	var transErr *IllegalTransitionError
	require.ErrorAs(t, err, &transErr)
}

func TestApplyPatch_NonStatusFields(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	tracking := "TH123456789"
	paid := PaymentPaid
	got, err := e.svc.ApplyPatch(context.Background(), o.ID, Patch{
		PaymentStatus:  &paid,
		TrackingNumber: &tracking,
	})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, got.PaymentStatus)
	assert.Equal(t, tracking, got.TrackingNumber)
	assert.Equal(t, StatusPending, got.Status)

	// No status change, no extra log, no event.
	logs, _ := e.svc.Logs(context.Background(), o.ID)
	assert.Len(t, logs, 1)
	assert.Empty(t, e.notifier.changes)
}

// --- Delete ---

func TestDelete_Protection(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))

	o := createTestOrder(t, e, 1)
	e.store.orders[o.ID].Status = StatusDelivered
	require.ErrorIs(t, e.svc.Delete(context.Background(), o.ID), ErrDeleteProtected)

	o2 := createTestOrder(t, e, 1)
	e.store.orders[o2.ID].PaymentStatus = PaymentPaid
	require.ErrorIs(t, e.svc.Delete(context.Background(), o2.ID), ErrDeleteProtected)

	o3 := createTestOrder(t, e, 1)
	require.NoError(t, e.svc.Delete(context.Background(), o3.ID))
	_, err := e.svc.Get(context.Background(), o3.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Lookups ---

func TestGetByNumber(t *testing.T) {
	e := newEnv(activeProduct("p1", "100.00", 10))
	o := createTestOrder(t, e, 1)

	got, err := e.svc.GetByNumber(context.Background(), o.Number)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = e.svc.GetByNumber(context.Background(), "ORD0000000000000000")
	require.ErrorIs(t, err, ErrNotFound)
}

// --- Order numbers ---

func TestNewNumber(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		n := NewNumber()
		assert.True(t, strings.HasPrefix(n, "ORD"))
		assert.GreaterOrEqual(t, len(n), 16)
		seen[n] = true
	}
	// Random suffix makes collisions within one millisecond unlikely.
	assert.Greater(t, len(seen), 90)
}
