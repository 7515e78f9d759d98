package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/evermart/checkout/internal/domain/checkout"
	"github.com/evermart/checkout/internal/domain/discount"
	"github.com/evermart/checkout/internal/domain/order"
	"github.com/evermart/checkout/internal/gateway"
)

type checkoutRequest struct {
	ShippingAddress string `json:"shippingAddress"`
	CouponCode      string `json:"couponCode,omitempty"`
}

type checkoutResponse struct {
	OrderID  string  `json:"orderId"`
	IntentID string  `json:"intentId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Discount float64 `json:"discount"`
}

// placeCheckout prices the caller's cart, opens a payment intent, and creates
// a Pending order. The response carries what the client needs to complete
// payment out-of-band.
func (h *Handler) placeCheckout(w http.ResponseWriter, r *http.Request) {
	info, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Checkout(r.Context(), info.UserID, req.ShippingAddress, req.CouponCode)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrEmptyCart):
			writeError(w, http.StatusBadRequest, "cart is empty")
		case errors.Is(err, checkout.ErrMissingAddress):
			writeError(w, http.StatusBadRequest, "shipping address required")
		case errors.Is(err, gateway.ErrUnavailable):
			writeError(w, http.StatusBadGateway, "payment provider unavailable, try again")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, checkoutResponse{
		OrderID:  res.OrderID,
		IntentID: res.IntentID,
		Amount:   res.Amount.InexactFloat64(),
		Currency: res.Currency,
		Discount: res.Discount.InexactFloat64(),
	})
}

type confirmPaymentRequest struct {
	IntentID  string `json:"intentId"`
	PaymentID string `json:"paymentId"`
	Signature string `json:"signature"`
}

type confirmPaymentResponse struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// confirmPayment reconciles a claimed payment completion. The error body never
// reveals why verification failed; a detailed reason would hand an oracle to
// anyone probing the signature check.
func (h *Handler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	var req confirmPaymentRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.svc.ConfirmPayment(r.Context(), req.IntentID, req.PaymentID, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, checkout.ErrInvalidSignature):
			writeError(w, http.StatusBadRequest, "could not verify payment")
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, confirmPaymentResponse{
		OrderID: o.ID,
		Status:  string(o.Status),
	})
}

type previewDiscountRequest struct {
	CouponCode string  `json:"couponCode"`
	Amount     float64 `json:"amount"`
}

type previewDiscountResponse struct {
	CouponCode string  `json:"couponCode"`
	Discount   float64 `json:"discount"`
	Payable    float64 `json:"payable"`
}

// previewDiscount reports the discount a code would yield against a
// tax-inclusive amount. Unlike checkout, every rejection is surfaced with its
// exact kind so the UI can explain it.
func (h *Handler) previewDiscount(w http.ResponseWriter, r *http.Request) {
	var req previewDiscountRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CouponCode == "" {
		writeError(w, http.StatusBadRequest, "couponCode required")
		return
	}

	amount := decimal.NewFromFloat(req.Amount)
	disc, err := h.svc.PreviewDiscount(r.Context(), req.CouponCode, amount)
	if err != nil {
		switch {
		case errors.Is(err, discount.ErrNotFound):
			writeError(w, http.StatusUnprocessableEntity, "discount code not found")
		case errors.Is(err, discount.ErrExpired):
			writeError(w, http.StatusUnprocessableEntity, "discount code expired")
		case errors.Is(err, discount.ErrUsageLimitReached):
			writeError(w, http.StatusUnprocessableEntity, "discount code usage limit reached")
		case errors.Is(err, discount.ErrBelowMinimumOrder):
			writeError(w, http.StatusUnprocessableEntity, "order amount below discount code minimum")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, previewDiscountResponse{
		CouponCode: req.CouponCode,
		Discount:   disc.InexactFloat64(),
		Payable:    amount.Sub(disc).InexactFloat64(),
	})
}
