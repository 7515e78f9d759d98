package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"

	"github.com/evermart/checkout/internal/domain/order"
)

type orderItemResponse struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

type statusChangeResponse struct {
	Status string    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note,omitempty"`
	Actor  string    `json:"actor"`
}

type orderResponse struct {
	ID                string                 `json:"id"`
	Items             []orderItemResponse    `json:"items"`
	Subtotal          float64                `json:"subtotal"`
	Tax               float64                `json:"tax"`
	Discount          float64                `json:"discount"`
	Total             float64                `json:"total"`
	DiscountCode      string                 `json:"discountCode,omitempty"`
	Status            string                 `json:"status"`
	IntentID          string                 `json:"intentId"`
	ShippingAddress   string                 `json:"shippingAddress"`
	TrackingID        string                 `json:"trackingId,omitempty"`
	CourierName       string                 `json:"courierName,omitempty"`
	EstimatedDelivery *time.Time             `json:"estimatedDelivery,omitempty"`
	History           []statusChangeResponse `json:"history,omitempty"`
	CreatedAt         time.Time              `json:"createdAt"`
}

// listOrders returns a page of the caller's orders, newest first. History is
// omitted on the list path.
func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	info, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", 20)

	orders, err := h.orders.ListByOwner(r.Context(), info.UserID, page, pageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]orderResponse, len(orders))
	for i := range orders {
		out[i] = toOrderResponse(&orders[i], false)
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrder returns a single order, including its status history. Orders are
// readable only by their owner.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	info, ok := IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	o, err := h.orders.FindByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			writeError(w, http.StatusNotFound, "order not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	// Hide other users' orders behind the same 404 as missing ones.
	if o.OwnerID != info.UserID {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o, true))
}

type transitionRequest struct {
	Status            string     `json:"status"`
	Note              string     `json:"note,omitempty"`
	TrackingID        string     `json:"trackingId,omitempty"`
	CourierName       string     `json:"courierName,omitempty"`
	EstimatedDelivery *time.Time `json:"estimatedDelivery,omitempty"`
}

type transitionErrorResponse struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Allowed []string `json:"allowed"`
}

// adminTransition moves an order along the fulfillment state machine. Illegal
// edges are rejected with the currently allowed next states, never coerced.
func (h *Handler) adminTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	next, err := order.ParseStatus(req.Status)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unknown status")
		return
	}

	o, err := h.orders.Transition(r.Context(), r.PathValue("id"), next, req.Note, order.ActorAdmin,
		order.TransitionFields{
			TrackingID:        req.TrackingID,
			CourierName:       req.CourierName,
			EstimatedDelivery: req.EstimatedDelivery,
		})
	if err != nil {
		var terr *order.TransitionError
		switch {
		case errors.As(err, &terr):
			allowed := make([]string, len(terr.Allowed))
			for i, s := range terr.Allowed {
				allowed[i] = string(s)
			}
			writeJSON(w, http.StatusConflict, transitionErrorResponse{
				Code:    http.StatusConflict,
				Message: terr.Error(),
				Allowed: allowed,
			})
		case errors.Is(err, order.ErrNotFound):
			writeError(w, http.StatusNotFound, "order not found")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(o, true))
}

func toOrderResponse(o *order.Order, withHistory bool) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice.InexactFloat64(),
			Image:     item.Image,
			Quantity:  item.Quantity,
		}
	}

	resp := orderResponse{
		ID:                o.ID,
		Items:             items,
		Subtotal:          o.Subtotal.InexactFloat64(),
		Tax:               o.Tax.InexactFloat64(),
		Discount:          o.DiscountAmount.InexactFloat64(),
		Total:             o.Total.InexactFloat64(),
		DiscountCode:      o.DiscountCode,
		Status:            string(o.Status),
		IntentID:          o.GatewayOrderID,
		ShippingAddress:   o.ShippingAddress,
		TrackingID:        o.TrackingID,
		CourierName:       o.CourierName,
		EstimatedDelivery: o.EstimatedDelivery,
		CreatedAt:         o.CreatedAt,
	}
	if withHistory {
		resp.History = make([]statusChangeResponse, len(o.History))
		for i, c := range o.History {
			resp.History[i] = statusChangeResponse{
				Status: string(c.Status),
				At:     c.At,
				Note:   c.Note,
				Actor:  string(c.Actor),
			}
		}
	}
	return resp
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return fallback
	}
	return n
}
