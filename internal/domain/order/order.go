package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// Actor identifies who caused a status transition.
type Actor string

const (
	ActorSystem Actor = "system"
	ActorAdmin  Actor = "admin"
)

// LineItem is a snapshot of a product at purchase time. Orders never hold a
// live reference into the catalog: later catalog edits must not rewrite
// purchase history.
type LineItem struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

// StatusChange is one entry in an order's append-only status history. The
// history is the audit trail for disputes and is never rewritten.
type StatusChange struct {
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
	Note   string    `json:"note"`
	Actor  Actor     `json:"actor"`
}

// Order is a persisted purchase. Once created it is mutated only through the
// status state machine; terminal orders are immutable.
type Order struct {
	ID                string
	OwnerID           string
	Items             []LineItem
	Subtotal          decimal.Decimal
	Tax               decimal.Decimal
	DiscountAmount    decimal.Decimal
	Total             decimal.Decimal
	DiscountCode      string
	Status            Status
	GatewayOrderID    string
	GatewayPaymentID  string
	ShippingAddress   string
	TrackingID        string
	CourierName       string
	EstimatedDelivery *time.Time
	History           []StatusChange
	CreatedAt         time.Time
}

// TransitionError reports an illegal state-machine edge, carrying the allowed
// next states for diagnostics.
type TransitionError struct {
	OrderID   string
	From      Status
	Requested Status
	Allowed   []Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot transition from %s to %s (allowed: %v)",
		e.OrderID, e.From, e.Requested, e.Allowed)
}

// TransitionFields are optional fields persisted alongside a status change.
// Empty values leave the stored field untouched.
type TransitionFields struct {
	PaymentID         string
	TrackingID        string
	CourierName       string
	EstimatedDelivery *time.Time
}

// Store defines persistence for orders.
type Store interface {
	// Create persists a new Pending order with its snapshot items and initial
	// history entry in a single atomic write.
	Create(ctx context.Context, o *Order) error

	// Transition moves an order to the requested status if the state machine
	// allows it, appending exactly one history entry. The update is
	// conditional on the expected current status, so a concurrent transition
	// loses with a *TransitionError instead of overwriting.
	Transition(ctx context.Context, id string, next Status, note string, actor Actor, fields TransitionFields) (*Order, error)

	// FindByID returns an order including its status history.
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindByGatewayOrderID resolves an order from its payment intent id.
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*Order, error)

	// ListByOwner returns a page of the user's orders, newest first, with
	// status history omitted.
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]Order, error)
}
