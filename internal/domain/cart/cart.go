package cart

import "context"

// Line is a single cart entry. Carts are ephemeral client state; they become
// a business record only when checkout snapshots them into an order.
type Line struct {
	ProductID string
	Quantity  int
}

// Repository defines the cart operations the checkout flow consumes.
type Repository interface {
	ListByUser(ctx context.Context, userID string) ([]Line, error)
	// Clear removes every line for the user. Called after a verified payment.
	Clear(ctx context.Context, userID string) error
}
