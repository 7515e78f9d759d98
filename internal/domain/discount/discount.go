package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Kind enumerates the supported discount strategies.
type Kind string

const (
	// KindPercentage takes a percentage off the tax-inclusive order amount.
	KindPercentage Kind = "percentage"
	// KindFixed takes a fixed amount off, capped at the order amount.
	KindFixed Kind = "fixed"
)

var (
	// ErrNotFound is returned when a code does not exist or is inactive.
	ErrNotFound = errors.New("discount code not found")
	// ErrExpired is returned when a code is past its expiry date.
	ErrExpired = errors.New("discount code expired")
	// ErrUsageLimitReached is returned when a code has exhausted its allowed uses.
	ErrUsageLimitReached = errors.New("discount code usage limit reached")
	// ErrBelowMinimumOrder is returned when the order amount does not meet the
	// code's minimum.
	ErrBelowMinimumOrder = errors.New("order amount below discount code minimum")
)

// Code is a discount code and its redemption rules. Code values are stored in
// canonical upper-case; lookups are case-insensitive.
type Code struct {
	ID             string
	Code           string
	Kind           Kind
	Value          decimal.Decimal
	MinOrderAmount decimal.Decimal
	ExpiresAt      *time.Time
	Active         bool
	// UsageLimit caps total redemptions. Zero means unlimited.
	UsageLimit int
	UsedCount  int
}

// Repository provides lookup and atomic reservation of discount codes.
type Repository interface {
	// FindByCode looks up an active code case-insensitively.
	// Returns ErrNotFound when no active code matches.
	FindByCode(ctx context.Context, code string) (*Code, error)

	// Reserve consumes one use of the code. The increment and the limit check
	// must happen in a single conditional update so two concurrent checkouts
	// cannot both take the last slot. Returns false when the limit is already
	// exhausted.
	Reserve(ctx context.Context, id string) (bool, error)
}
