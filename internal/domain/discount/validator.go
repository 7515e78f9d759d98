package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Validator checks a discount code against its redemption rules for a given
// order amount. It is used twice per purchase: once at preview, where failures
// are reported to the client verbatim, and once inside checkout, where the
// caller degrades to full price instead of aborting. Both call sites share
// this single implementation; only the failure policy differs.
type Validator struct {
	repo Repository
	now  func() time.Time
}

// NewValidator creates a Validator backed by the given Repository.
func NewValidator(repo Repository) *Validator {
	return &Validator{repo: repo, now: time.Now}
}

// Validate looks up the code and checks expiry, usage limit, and minimum order
// amount against the tax-inclusive base. It does not reserve a use; commit-time
// reservation is a separate, atomic step.
func (v *Validator) Validate(ctx context.Context, code string, base decimal.Decimal) (*Code, error) {
	c, err := v.repo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup discount code")
	}

	if c.ExpiresAt != nil && v.now().After(*c.ExpiresAt) {
		return nil, ErrExpired
	}

	if c.UsageLimit > 0 && c.UsedCount >= c.UsageLimit {
		return nil, ErrUsageLimitReached
	}

	if c.MinOrderAmount.IsPositive() && base.LessThan(c.MinOrderAmount) {
		return nil, ErrBelowMinimumOrder
	}

	return c, nil
}
