// Package handler exposes the order subsystem over HTTP.
package handler

import (
	"github.com/go-chi/chi/v5"

	"github.com/pchaiwong/shophub-orders/internal/domain/order"
	"github.com/pchaiwong/shophub-orders/internal/domain/product"
)

// Handler routes HTTP requests to the order service and catalog repository.
type Handler struct {
	orders   *order.Service
	products product.Repository
}

// New constructs a Handler with the required domain dependencies.
func New(orders *order.Service, products product.Repository) *Handler {
	return &Handler{
		orders:   orders,
		products: products,
	}
}

// Register mounts all API routes on the router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.createOrder)
		r.Get("/", h.queryOrders)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getOrder)
			r.Get("/logs", h.getOrderLogs)
			r.Patch("/cancel", h.cancelOrder)
			r.Put("/status", h.updateOrderStatus)
			r.Delete("/", h.deleteOrder)
		})
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
	})
}
