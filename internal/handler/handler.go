// Package handler exposes the discount engine over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const maxRequestBody = 1 << 20

// Checker checks a discount code against a cart.
type Checker interface {
	Check(ctx context.Context, req coupon.CheckRequest) (*discount.AppliedDiscount, error)
}

// Handler serves the discount API.
type Handler struct {
	checker Checker
}

// NewHandler constructs a Handler.
func NewHandler(checker Checker) *Handler {
	return &Handler{checker: checker}
}

// Routes mounts the API under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/discounts/check", h.CheckDiscount)
		r.Post("/discounts/recalculate", h.RecalculateDiscount)
		r.Post("/cart/totals", h.CartTotals)
	})
	return r
}

// errBadRequest marks request payloads that could not be decoded.
var errBadRequest = errors.New("malformed request")

// decodeBody reads a size-limited JSON body and hands it to fn.
func decodeBody(w http.ResponseWriter, r *http.Request, fn func(d *jx.Decoder) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	if err := fn(jx.DecodeBytes(body)); err != nil {
		return errors.Wrap(errBadRequest, err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, fn func(e *jx.Encoder)) {
	var e jx.Encoder
	fn(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeInvalid writes the {valid:false, error} failure body.
func writeInvalid(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(false)
		e.FieldStart("error")
		e.Str(msg)
		e.ObjEnd()
	})
}

func logger(r *http.Request) *zap.Logger {
	return zctx.From(r.Context())
}
