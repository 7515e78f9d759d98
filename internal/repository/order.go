package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evermart/checkout/internal/domain/order"
)

const (
	createOrderSQL = `INSERT INTO orders (id, owner_id, items, subtotal, tax,
		discount_amount, total, discount_code, status, gateway_order_id,
		shipping_address, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	orderColumns = `id, owner_id, items, subtotal, tax, discount_amount, total,
		discount_code, status, gateway_order_id, gateway_payment_id,
		shipping_address, tracking_id, courier_name, estimated_delivery,
		history, created_at`

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByGatewaySQL = `SELECT ` + orderColumns + ` FROM orders WHERE gateway_order_id = $1`

	// List views skip the history column: histories grow without bound and the
	// list path must not pay for them.
	listOrdersByOwnerSQL = `SELECT id, owner_id, items, subtotal, tax,
		discount_amount, total, discount_code, status, gateway_order_id,
		gateway_payment_id, shipping_address, tracking_id, courier_name,
		estimated_delivery, '[]'::jsonb, created_at
		FROM orders WHERE owner_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`

	// Conditional on the expected current status: of two racing transitions,
	// exactly one matches the WHERE clause and the loser affects zero rows.
	transitionOrderSQL = `UPDATE orders SET
		status = $3,
		history = history || $4::jsonb,
		gateway_payment_id = CASE WHEN $5 <> '' THEN $5 ELSE gateway_payment_id END,
		tracking_id = CASE WHEN $6 <> '' THEN $6 ELSE tracking_id END,
		courier_name = CASE WHEN $7 <> '' THEN $7 ELSE courier_name END,
		estimated_delivery = COALESCE($8, estimated_delivery)
		WHERE id = $1 AND status = $2`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL. Snapshot line
// items and the status history are stored as JSONB alongside the order row, so
// creation and every transition are single-row atomic writes.
type OrderRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool, now: time.Now}
}

// Create persists a new order with its initial history entry in one INSERT.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}

	initial := []order.StatusChange{{
		Status: o.Status,
		At:     r.now().UTC(),
		Note:   "order created",
		Actor:  order.ActorSystem,
	}}
	historyJSON, err := json.Marshal(initial)
	if err != nil {
		return fmt.Errorf("marshaling order history: %w", err)
	}

	_, err = r.pool.Exec(ctx, createOrderSQL,
		o.ID, o.OwnerID, itemsJSON, o.Subtotal, o.Tax,
		o.DiscountAmount, o.Total, o.DiscountCode, string(o.Status),
		o.GatewayOrderID, o.ShippingAddress, historyJSON,
	)
	if err != nil {
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	return nil
}

// Transition applies a status change with a conditional single-row update
// keyed on the expected current status. When the condition does not hold the
// order is re-read and a *order.TransitionError is returned carrying the
// actual current state and its allowed next states.
func (r *OrderRepository) Transition(ctx context.Context, id string, next order.Status, note string, actor order.Actor, fields order.TransitionFields) (*order.Order, error) {
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if !current.Status.CanTransitionTo(next) {
		return nil, &order.TransitionError{
			OrderID:   id,
			From:      current.Status,
			Requested: next,
			Allowed:   current.Status.AllowedNext(),
		}
	}

	entry, err := json.Marshal([]order.StatusChange{{
		Status: next,
		At:     r.now().UTC(),
		Note:   note,
		Actor:  actor,
	}})
	if err != nil {
		return nil, fmt.Errorf("marshaling history entry: %w", err)
	}

	tag, err := r.pool.Exec(ctx, transitionOrderSQL,
		id, string(current.Status), string(next), entry,
		fields.PaymentID, fields.TrackingID, fields.CourierName, fields.EstimatedDelivery,
	)
	if err != nil {
		return nil, fmt.Errorf("transitioning order %q to %s: %w", id, next, err)
	}

	if tag.RowsAffected() == 0 {
		// Lost a race: someone moved the order off the status we read.
		fresh, err := r.FindByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &order.TransitionError{
			OrderID:   id,
			From:      fresh.Status,
			Requested: next,
			Allowed:   fresh.Status.AllowedNext(),
		}
	}

	return r.FindByID(ctx, id)
}

// FindByID returns an order including its status history.
func (r *OrderRepository) FindByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}
	return &o, nil
}

// FindByGatewayOrderID resolves an order from its payment intent id.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByGatewaySQL, gatewayOrderID)
	if err != nil {
		return nil, fmt.Errorf("getting order by intent %q: %w", gatewayOrderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order by intent %q: %w", gatewayOrderID, err)
	}
	return &o, nil
}

// ListByOwner returns a page of the user's orders, newest first, history omitted.
func (r *OrderRepository) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]order.Order, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	rows, err := r.pool.Query(ctx, listOrdersByOwnerSQL, ownerID, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("listing orders for %q: %w", ownerID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o           order.Order
		status      string
		itemsJSON   []byte
		historyJSON []byte
	)
	err := row.Scan(
		&o.ID, &o.OwnerID, &itemsJSON, &o.Subtotal, &o.Tax,
		&o.DiscountAmount, &o.Total, &o.DiscountCode, &status,
		&o.GatewayOrderID, &o.GatewayPaymentID, &o.ShippingAddress,
		&o.TrackingID, &o.CourierName, &o.EstimatedDelivery,
		&historyJSON, &o.CreatedAt,
	)
	if err != nil {
		return o, err
	}
	o.Status = order.Status(status)

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &o.History); err != nil {
		return o, fmt.Errorf("unmarshaling order history: %w", err)
	}
	return o, nil
}
