package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/storefront-discounts/internal/domain/coupon"
	"github.com/xenking/storefront-discounts/internal/domain/discount"
)

const (
	msgCodeRequired    = "Discount code is required"
	msgInvalidRequest  = "Invalid request body"
	msgInvalidCode     = "Invalid discount code"
	msgFetchFailed     = "Failed to fetch discount details"
	msgNoLongerApplies = "Discount no longer applicable"
)

// CheckDiscount resolves a code against the submitted cart.
func (h *Handler) CheckDiscount(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decodeBody(w, r, req.Decode); err != nil {
		logger(r).Debug("Bad check request", zap.Error(err))
		writeInvalid(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeInvalid(w, http.StatusBadRequest, err.Error())
		return
	}

	applied, err := h.checker.Check(r.Context(), coupon.CheckRequest{
		Code:      req.Code,
		Items:     req.Items,
		CartTotal: req.total(),
	})
	if err != nil {
		status, msg := mapCheckError(err)
		if status >= http.StatusInternalServerError {
			logger(r).Error("Discount check failed", zap.String("code", req.Code), zap.Error(err))
		}
		writeInvalid(w, status, msg)
		return
	}

	rounded := *applied
	rounded.DiscountAmount = discount.RoundMoney(applied.DiscountAmount)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeCheckResponse(e, &rounded)
	})
}

// RecalculateDiscount re-applies a stored discount to a changed cart.
func (h *Handler) RecalculateDiscount(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeBody(w, r, req.Decode); err != nil {
		logger(r).Debug("Bad recalculate request", zap.Error(err))
		writeInvalid(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeInvalid(w, http.StatusBadRequest, err.Error())
		return
	}

	updated := discount.Recalculate(req.Items, req.Quantities, req.Applied, req.DeliveryFee)
	if updated != nil {
		updated.DiscountAmount = discount.RoundMoney(updated.DiscountAmount)
	}
	totals := discount.CartTotals(req.Items, req.Quantities, updated, req.DeliveryFee)

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("appliedDiscount")
		if updated != nil {
			updated.Encode(e)
		} else {
			e.Null()
		}
		e.FieldStart("valid")
		e.Bool(updated != nil)
		if req.Applied != nil && updated == nil {
			e.FieldStart("error")
			e.Str(msgNoLongerApplies)
		}
		e.FieldStart("totals")
		encodeTotals(e, totals)
		e.ObjEnd()
	})
}

// CartTotals computes the checkout breakdown.
func (h *Handler) CartTotals(w http.ResponseWriter, r *http.Request) {
	var req cartRequest
	if err := decodeBody(w, r, req.Decode); err != nil {
		logger(r).Debug("Bad totals request", zap.Error(err))
		writeInvalid(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}
	if err := req.validate(); err != nil {
		writeInvalid(w, http.StatusBadRequest, err.Error())
		return
	}

	totals := discount.CartTotals(req.Items, req.Quantities, req.Applied, req.DeliveryFee)
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeTotals(e, totals)
	})
}

// mapCheckError converts domain errors to a status and user-facing message.
func mapCheckError(err error) (int, string) {
	if errors.Is(err, coupon.ErrNotFound) {
		return http.StatusNotFound, msgInvalidCode
	}

	var ineligible *discount.IneligibleError
	if errors.As(err, &ineligible) {
		return http.StatusBadRequest, ineligible.Error()
	}

	return http.StatusInternalServerError, msgFetchFailed
}

func encodeCheckResponse(e *jx.Encoder, a *discount.AppliedDiscount) {
	e.ObjStart()
	e.FieldStart("valid")
	e.Bool(true)
	e.FieldStart("discountAmount")
	encodeMoney(e, a.DiscountAmount)
	e.FieldStart("discountType")
	e.Str(string(a.DiscountType))
	e.FieldStart("discountValue")
	e.Float64(a.DiscountValue.InexactFloat64())
	e.FieldStart("code")
	e.Str(a.Code)
	e.FieldStart("priceRuleId")
	e.Str(a.PriceRuleID)
	e.FieldStart("title")
	e.Str(a.Title)
	e.FieldStart("appliedDiscount")
	a.Encode(e)
	e.ObjEnd()
}

func encodeTotals(e *jx.Encoder, t discount.Totals) {
	e.ObjStart()
	e.FieldStart("subtotal")
	encodeMoney(e, t.Subtotal)
	e.FieldStart("discount")
	encodeMoney(e, t.Discount)
	e.FieldStart("deliveryFee")
	encodeMoney(e, t.DeliveryFee)
	e.FieldStart("total")
	encodeMoney(e, t.Total)
	e.FieldStart("savings")
	encodeMoney(e, t.Savings)
	e.ObjEnd()
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Float64(discount.RoundMoney(v).InexactFloat64())
}
