package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pchaiwong/shophub-orders/internal/domain/product"
)

type productJSON struct {
	ID     string  `json:"id"`
	SKU    string  `json:"sku"`
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Stock  int     `json:"stock"`
	Active bool    `json:"active"`
}

func toProductJSON(p product.Product) productJSON {
	return productJSON{
		ID:     p.ID,
		SKU:    p.SKU,
		Name:   p.Name,
		Price:  p.Price.InexactFloat64(),
		Stock:  p.Stock,
		Active: p.Active,
	}
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.products.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	out := make([]productJSON, len(list))
	for i, p := range list {
		out[i] = toProductJSON(p)
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "products": out})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "product": toProductJSON(*p)})
}
