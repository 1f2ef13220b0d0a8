package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/pchaiwong/shophub-orders/internal/domain/order"
)

type createOrderRequest struct {
	UserID    string `json:"userId"`
	AddressID string `json:"addressId"`
	Items     []struct {
		ProductID string          `json:"productId"`
		Quantity  int             `json:"quantity"`
		Price     decimal.Decimal `json:"price"` // display value; server snapshots its own
	} `json:"items"`
	Summary struct {
		Subtotal decimal.Decimal `json:"subtotal"`
		Shipping decimal.Decimal `json:"shipping"`
		Tax      decimal.Decimal `json:"tax"`
		Discount decimal.Decimal `json:"discount"`
		Total    decimal.Decimal `json:"total"`
	} `json:"summary"`
	PaymentMethod  string `json:"paymentMethod"`
	ShippingMethod string `json:"shippingMethod"`
	Notes          string `json:"notes"`
}

type orderItemJSON struct {
	ID        string  `json:"id"`
	ProductID string  `json:"productId"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Total     float64 `json:"total"`
}

// orderJSON is the wire shape of an order. Monetary fields are plain numbers.
type orderJSON struct {
	ID             string          `json:"id"`
	OrderNumber    string          `json:"orderNumber"`
	UserID         string          `json:"userId"`
	AddressID      string          `json:"addressId"`
	Status         string          `json:"status"`
	PaymentStatus  string          `json:"paymentStatus"`
	PaymentMethod  string          `json:"paymentMethod"`
	ShippingMethod string          `json:"shippingMethod"`
	Subtotal       float64         `json:"subtotal"`
	Shipping       float64         `json:"shipping"`
	Tax            float64         `json:"tax"`
	Discount       float64         `json:"discount"`
	Total          float64         `json:"total"`
	Notes          string          `json:"notes,omitempty"`
	TrackingNumber string          `json:"trackingNumber,omitempty"`
	Items          []orderItemJSON `json:"items"`
	ShippedAt      *time.Time      `json:"shippedAt,omitempty"`
	DeliveredAt    *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

type statusLogJSON struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toOrderJSON(o *order.Order) orderJSON {
	items := make([]orderItemJSON, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemJSON{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.UnitPrice.InexactFloat64(),
			Total:     it.LineTotal.InexactFloat64(),
		}
	}
	return orderJSON{
		ID:             o.ID,
		OrderNumber:    o.Number,
		UserID:         o.UserID,
		AddressID:      o.AddressID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		PaymentMethod:  string(o.PaymentMethod),
		ShippingMethod: string(o.ShippingMethod),
		Subtotal:       o.Subtotal.InexactFloat64(),
		Shipping:       o.ShippingFee.InexactFloat64(),
		Tax:            o.Tax.InexactFloat64(),
		Discount:       o.Discount.InexactFloat64(),
		Total:          o.Total.InexactFloat64(),
		Notes:          o.Notes,
		TrackingNumber: o.TrackingNumber,
		Items:          items,
		ShippedAt:      o.ShippedAt,
		DeliveredAt:    o.DeliveredAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	items := make([]order.ItemRequest, len(req.Items))
	for i, it := range req.Items {
		items[i] = order.ItemRequest{ProductID: it.ProductID, Quantity: it.Quantity}
	}

	o, err := h.orders.Create(r.Context(), order.CreateRequest{
		UserID:    req.UserID,
		AddressID: req.AddressID,
		Items:     items,
		Summary: order.Summary{
			Subtotal: req.Summary.Subtotal,
			Shipping: req.Summary.Shipping,
			Tax:      req.Summary.Tax,
			Discount: req.Summary.Discount,
			Total:    req.Summary.Total,
		},
		PaymentMethod:  order.PaymentMethod(req.PaymentMethod),
		ShippingMethod: order.ShippingMethod(req.ShippingMethod),
		Notes:          req.Notes,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"order":   toOrderJSON(o),
	})
}

// queryOrders serves GET /orders?userId=|orderId=|orderNumber=. Exactly one
// of the parameters must be present.
func (h *Handler) queryOrders(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	orderID := r.URL.Query().Get("orderId")
	orderNumber := r.URL.Query().Get("orderNumber")

	switch {
	case orderID != "":
		o, err := h.orders.Get(r.Context(), orderID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderJSON(o)})

	case orderNumber != "":
		o, err := h.orders.GetByNumber(r.Context(), orderNumber)
		if err != nil {
			respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderJSON(o)})

	case userID != "":
		list, err := h.orders.ListByUser(r.Context(), userID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		out := make([]orderJSON, len(list))
		for i := range list {
			out[i] = toOrderJSON(&list[i])
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "orders": out})

	default:
		writeError(w, http.StatusBadRequest, "userId, orderId, or orderNumber query parameter required")
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderJSON(o)})
}

func (h *Handler) getOrderLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.orders.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	logs, err := h.orders.Logs(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]statusLogJSON, len(logs))
	for i, l := range logs {
		out[i] = statusLogJSON{ID: l.ID, Status: string(l.Status), Note: l.Note, CreatedAt: l.CreatedAt}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "logs": out})
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	// An empty body is fine (the reason is optional), malformed JSON is not.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	o, err := h.orders.Cancel(r.Context(), order.CancelRequest{
		OrderID: chi.URLParam(r, "id"),
		Reason:  req.Reason,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderJSON(o)})
}

type updateStatusRequest struct {
	Status         *string `json:"status"`
	PaymentStatus  *string `json:"paymentStatus"`
	TrackingNumber *string `json:"trackingNumber"`
	Notes          *string `json:"notes"`
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	var patch order.Patch
	if req.Status != nil {
		st := order.Status(*req.Status)
		patch.Status = &st
	}
	if req.PaymentStatus != nil {
		ps := order.PaymentStatus(*req.PaymentStatus)
		patch.PaymentStatus = &ps
	}
	patch.TrackingNumber = req.TrackingNumber
	patch.Notes = req.Notes

	o, err := h.orders.ApplyPatch(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "order": toOrderJSON(o)})
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
