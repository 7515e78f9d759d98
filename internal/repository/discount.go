package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/evermart/checkout/internal/domain/discount"
)

const (
	getDiscountByCodeSQL = `SELECT id, code, kind, value, min_order_amount,
		expires_at, active, usage_limit, used_count
		FROM discount_codes WHERE UPPER(code) = UPPER($1) AND active = TRUE`

	// Conditional increment: the limit check and the increment are one
	// statement, so two concurrent checkouts cannot both take the last slot.
	reserveDiscountSQL = `UPDATE discount_codes
		SET used_count = used_count + 1
		WHERE id = $1 AND (usage_limit = 0 OR used_count < usage_limit)`
)

var _ discount.Repository = (*DiscountRepository)(nil)

// DiscountRepository implements discount.Repository backed by PostgreSQL.
type DiscountRepository struct {
	pool *pgxpool.Pool
}

// NewDiscountRepository returns a DiscountRepository that uses the given pool.
func NewDiscountRepository(pool *pgxpool.Pool) *DiscountRepository {
	return &DiscountRepository{pool: pool}
}

// FindByCode looks up an active discount code case-insensitively.
// Returns discount.ErrNotFound when no matching active code exists.
func (r *DiscountRepository) FindByCode(ctx context.Context, code string) (*discount.Code, error) {
	rows, err := r.pool.Query(ctx, getDiscountByCodeSQL, code)
	if err != nil {
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanDiscountCode)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("finding discount code %q: %w", code, err)
	}
	return &c, nil
}

// Reserve consumes one use of the code with a single conditional update.
// It returns false when the usage limit is already exhausted.
func (r *DiscountRepository) Reserve(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, reserveDiscountSQL, id)
	if err != nil {
		return false, fmt.Errorf("reserving discount code %q: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanDiscountCode(row pgx.CollectableRow) (discount.Code, error) {
	var (
		c         discount.Code
		kind      string
		expiresAt *time.Time
		limit     int32
		used      int32
	)
	err := row.Scan(
		&c.ID, &c.Code, &kind, &c.Value, &c.MinOrderAmount,
		&expiresAt, &c.Active, &limit, &used,
	)
	c.Kind = discount.Kind(kind)
	c.ExpiresAt = expiresAt
	c.UsageLimit = int(limit)
	c.UsedCount = int(used)
	return c, err
}
