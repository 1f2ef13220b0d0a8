package order

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusConfirmed  Status = "CONFIRMED"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusRefunded   Status = "REFUNDED"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusProcessing, StatusShipped,
		StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are accepted from s.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded
}

// Cancellable reports whether an order in state s may still be cancelled.
// Once fulfillment has started (PROCESSING and later) cancellation is refused.
func (s Status) Cancellable() bool {
	return s == StatusPending || s == StatusConfirmed
}

// CanTransition reports whether moving from one status to another is allowed.
// A same-state "transition" is accepted so that repeated admin updates stay
// idempotent; the caller decides whether it counts as a change.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return from.Cancellable()
	}
	if from == StatusDelivered {
		return to == StatusRefunded
	}
	return true
}

// PaymentStatus tracks whether an order has been paid for.
type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

// Valid reports whether p is a known payment status.
func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentUnpaid, PaymentPaid, PaymentRefunded:
		return true
	}
	return false
}

// PaymentMethod is the payment option chosen at checkout.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "CREDIT_CARD"
	PaymentPromptPay    PaymentMethod = "PROMPTPAY"
	PaymentBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentCOD          PaymentMethod = "COD"
	PaymentLinePay      PaymentMethod = "LINE_PAY"
)

// Valid reports whether m is a supported payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCreditCard, PaymentPromptPay, PaymentBankTransfer, PaymentCOD, PaymentLinePay:
		return true
	}
	return false
}

// ShippingMethod is the carrier option chosen at checkout.
type ShippingMethod string

const (
	ShippingTHPost    ShippingMethod = "TH_POST"
	ShippingTHExpress ShippingMethod = "TH_EXPRESS"
)

// Valid reports whether m is a supported shipping method.
func (m ShippingMethod) Valid() bool {
	return m == ShippingTHPost || m == ShippingTHExpress
}
