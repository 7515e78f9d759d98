// Package gateway adapts the external payment provider. It owns the two
// settlement primitives: opening a payment intent for an exact amount, and
// verifying that a claimed payment completion is authentic.
package gateway

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnavailable is returned when the provider cannot be reached or rejects
// the request at the transport level. It is retryable: the caller must not
// have created any durable state before surfacing it.
var ErrUnavailable = errors.New("payment gateway unavailable")

// Intent is a provider-side record representing an authorized-but-not-yet
// confirmed payment amount.
type Intent struct {
	ID       string
	Amount   int64
	Currency string
}

// Client is the boundary to the payment provider.
type Client interface {
	// CreateIntent opens a payable intent for the exact amount in minor units
	// (paise). The receipt id ties the intent back to our checkout attempt.
	CreateIntent(ctx context.Context, amountMinorUnits int64, currency, receiptID string) (*Intent, error)

	// VerifySignature reports whether the claimed signature is the provider's
	// authentic HMAC over this intent and payment id pair. This is the sole
	// authority for marking an order paid; client-reported success is never
	// trusted without it.
	VerifySignature(intentID, paymentID, signature string) bool
}
