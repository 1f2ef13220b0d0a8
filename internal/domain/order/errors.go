package order

import "fmt"

// Sentinel errors for order validation and lifecycle rules.
var (
	ErrNotFound        = fmt.Errorf("order not found")
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrMissingUser     = fmt.Errorf("userId required")
	ErrMissingAddress  = fmt.Errorf("addressId required")
	ErrMissingProduct  = fmt.Errorf("every item requires a productId")
	ErrAddressNotOwned = fmt.Errorf("address not found for user")
	ErrTotalMismatch   = fmt.Errorf("summary total does not match order items")
	ErrDeleteProtected = fmt.Errorf("order cannot be deleted: delivered or paid orders are protected")
	ErrEmptyPatch      = fmt.Errorf("no fields to update")
	ErrCancelViaPatch  = fmt.Errorf("cancellation must go through the cancel operation")
)

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductUnavailableError indicates a referenced product is missing or has
// been deactivated. Either case aborts the whole order.
type ProductUnavailableError struct {
	ProductID string
	Inactive  bool
}

func (e *ProductUnavailableError) Error() string {
	if e.Inactive {
		return fmt.Sprintf("product %s is not available", e.ProductID)
	}
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InsufficientStockError indicates the requested quantity exceeds the
// currently available stock for a product.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: requested %d, available %d",
		e.ProductID, e.Requested, e.Available)
}

// IllegalTransitionError indicates a status change the lifecycle state
// machine does not permit.
type IllegalTransitionError struct {
	From Status
	To   Status
}

func (e *IllegalTransitionError) Error() string {
	if e.To == StatusCancelled {
		return fmt.Sprintf("order cannot be cancelled in its current state (%s)", e.From)
	}
	return fmt.Sprintf("order cannot move from %s to %s", e.From, e.To)
}

// InvalidEnumError indicates an out-of-enum value in the request.
type InvalidEnumError struct {
	Field string
	Value string
}

func (e *InvalidEnumError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}
