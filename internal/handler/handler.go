// Package handler exposes the checkout core over HTTP. Handlers translate
// between the JSON wire format and domain types; business rules live in the
// domain packages.
package handler

import (
	"net/http"

	"github.com/evermart/checkout/internal/domain/auth"
	"github.com/evermart/checkout/internal/domain/checkout"
	"github.com/evermart/checkout/internal/domain/order"
)

// Handler holds the HTTP endpoints of the service.
type Handler struct {
	svc    *checkout.Service
	orders order.Store
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(svc *checkout.Service, orders order.Store) *Handler {
	return &Handler{
		svc:    svc,
		orders: orders,
	}
}

// Routes registers all API endpoints on the given mux. Every route requires a
// valid API key; the admin transition route additionally requires the admin
// scope.
func (h *Handler) Routes(mux *http.ServeMux, sec *Security) {
	authed := sec.RequireKey
	admin := func(next http.HandlerFunc) http.Handler {
		return sec.RequireKey(sec.RequireScope(auth.ScopeAdmin, next))
	}

	mux.Handle("POST /api/checkout", authed(h.placeCheckout))
	mux.Handle("POST /api/payment/confirm", authed(h.confirmPayment))
	mux.Handle("POST /api/discount/preview", authed(h.previewDiscount))
	mux.Handle("GET /api/orders", authed(h.listOrders))
	mux.Handle("GET /api/orders/{id}", authed(h.getOrder))
	mux.Handle("POST /api/admin/orders/{id}/transition", admin(h.adminTransition))
}
