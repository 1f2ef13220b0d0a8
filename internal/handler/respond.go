package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/pchaiwong/shophub-orders/internal/domain/address"
	"github.com/pchaiwong/shophub-orders/internal/domain/order"
	"github.com/pchaiwong/shophub-orders/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorBody{Error: msg})
}

// respondError maps a domain error to the HTTP status that identifies its
// class: 400 for malformed input, 404 for missing or foreign entities, 409
// for state conflicts, 500 for everything else (with the cause logged, not
// leaked).
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		enumErr  *order.InvalidEnumError
		qtyErr   *order.InvalidQuantityError
		prodErr  *order.ProductUnavailableError
		stockErr *order.InsufficientStockError
		transErr *order.IllegalTransitionError
	)

	switch {
	case errors.As(err, &enumErr),
		errors.As(err, &qtyErr),
		errors.Is(err, order.ErrMissingUser),
		errors.Is(err, order.ErrMissingAddress),
		errors.Is(err, order.ErrMissingProduct),
		errors.Is(err, order.ErrEmptyItems),
		errors.Is(err, order.ErrTotalMismatch),
		errors.Is(err, order.ErrEmptyPatch),
		errors.Is(err, order.ErrCancelViaPatch):
		writeError(w, http.StatusBadRequest, err.Error())

	case errors.As(err, &prodErr),
		errors.Is(err, order.ErrNotFound),
		errors.Is(err, order.ErrAddressNotOwned),
		errors.Is(err, product.ErrNotFound),
		errors.Is(err, address.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())

	case errors.As(err, &stockErr),
		errors.As(err, &transErr),
		errors.Is(err, order.ErrDeleteProtected):
		writeError(w, http.StatusConflict, err.Error())

	default:
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
