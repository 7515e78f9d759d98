// Package checkout orchestrates the purchase flow: cart resolution, pricing,
// discount reservation, payment intent creation, order persistence, and the
// later reconciliation of gateway confirmation into a status transition.
package checkout

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/evermart/checkout/internal/domain/cart"
	"github.com/evermart/checkout/internal/domain/catalog"
	"github.com/evermart/checkout/internal/domain/discount"
	"github.com/evermart/checkout/internal/domain/order"
	"github.com/evermart/checkout/internal/domain/pricing"
	"github.com/evermart/checkout/internal/gateway"
)

var (
	// ErrEmptyCart is returned when no cart line survives catalog resolution.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrMissingAddress is returned when checkout lacks a shipping address.
	ErrMissingAddress = errors.New("shipping address required")
	// ErrInvalidSignature is returned when a claimed payment completion fails
	// cryptographic verification.
	ErrInvalidSignature = errors.New("could not verify payment")
)

// Result is what the client needs to complete payment out-of-band.
type Result struct {
	OrderID     string
	IntentID    string
	Amount      decimal.Decimal
	AmountMinor int64
	Currency    string
	Discount    decimal.Decimal
}

// Service ties the pricing engine, discount ledger, order store, and payment
// gateway together. It holds no mutable state; every method is safe for
// concurrent use.
type Service struct {
	catalog  catalog.Repository
	carts    cart.Repository
	pricer   *pricing.Engine
	codes    *discount.Validator
	ledger   discount.Repository
	orders   order.Store
	gateway  gateway.Client
	currency string
	lg       *zap.Logger
}

// NewService creates a checkout Service with the required dependencies.
func NewService(
	catalogRepo catalog.Repository,
	carts cart.Repository,
	pricer *pricing.Engine,
	codes *discount.Validator,
	ledger discount.Repository,
	orders order.Store,
	gw gateway.Client,
	currency string,
	lg *zap.Logger,
) *Service {
	return &Service{
		catalog:  catalogRepo,
		carts:    carts,
		pricer:   pricer,
		codes:    codes,
		ledger:   ledger,
		orders:   orders,
		gateway:  gw,
		currency: currency,
		lg:       lg,
	}
}

// Checkout prices the user's cart, opens a payment intent for the exact total,
// and persists a Pending order snapshotting the purchased products.
//
// A discount code that fails validation at this point degrades to full price
// rather than blocking the purchase; the preview endpoint is where failures
// are reported. Discount reservation happens after the order is durable and is
// best-effort: a failed reservation does not roll the order back.
func (s *Service) Checkout(ctx context.Context, userID, shippingAddress, discountCode string) (*Result, error) {
	if strings.TrimSpace(shippingAddress) == "" {
		return nil, ErrMissingAddress
	}

	items, products, err := s.resolveCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	quote := s.pricer.Quote(items, nil)

	// Authoritative re-validation: preview results are never trusted here,
	// since expiry or usage may have changed in between.
	var applied *discount.Code
	if discountCode != "" {
		code, err := s.codes.Validate(ctx, discountCode, quote.Total)
		switch {
		case err == nil:
			applied = code
			quote = s.pricer.Quote(items, code)
		case isDiscountRejection(err):
			s.lg.Info("discount code rejected at commit, proceeding without it",
				zap.String("code", discountCode), zap.Error(err))
		default:
			return nil, errors.Wrap(err, "validate discount code")
		}
	}

	receipt := uuid.New().String()
	intent, err := s.gateway.CreateIntent(ctx, quote.TotalMinorUnits(), s.currency, receipt)
	if err != nil {
		// No durable order exists yet; the failure is retryable.
		return nil, errors.Wrap(err, "create payment intent")
	}

	o := &order.Order{
		ID:              uuid.New().String(),
		OwnerID:         userID,
		Items:           snapshotItems(items, products),
		Subtotal:        quote.Subtotal,
		Tax:             quote.Tax,
		DiscountAmount:  quote.Discount,
		Total:           quote.Total,
		DiscountCode:    quote.DiscountCode,
		Status:          order.StatusPending,
		GatewayOrderID:  intent.ID,
		ShippingAddress: shippingAddress,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	if applied != nil {
		ok, err := s.ledger.Reserve(ctx, applied.ID)
		if err != nil {
			s.lg.Error("discount reservation failed after order creation",
				zap.String("order_id", o.ID), zap.String("code", applied.Code), zap.Error(err))
		} else if !ok {
			s.lg.Warn("discount usage limit hit after validation, order keeps the discount",
				zap.String("order_id", o.ID), zap.String("code", applied.Code))
		}
	}

	return &Result{
		OrderID:     o.ID,
		IntentID:    intent.ID,
		Amount:      quote.Total,
		AmountMinor: quote.TotalMinorUnits(),
		Currency:    s.currency,
		Discount:    quote.Discount,
	}, nil
}

// PreviewDiscount validates a code against a tax-inclusive amount and returns
// the discount it would yield. Unlike Checkout, every rejection is surfaced to
// the caller so the client can explain it.
func (s *Service) PreviewDiscount(ctx context.Context, code string, amount decimal.Decimal) (decimal.Decimal, error) {
	c, err := s.codes.Validate(ctx, code, amount)
	if err != nil {
		return decimal.Zero, err
	}
	return pricing.Amount(c, amount), nil
}

// ConfirmPayment reconciles a claimed payment completion into the order state
// machine. It is idempotent: gateway webhooks can redeliver, so a repeat
// verified call on an order that already settled (paid, or any later
// fulfillment status) is a no-op success with no extra history entry.
//
// On signature mismatch the order stays Pending for manual reconciliation; a
// mismatch can be a forgery attempt or a legitimate provider retry with a
// different nonce, and auto-failing would destroy recoverable orders.
func (s *Service) ConfirmPayment(ctx context.Context, intentID, paymentID, signature string) (*order.Order, error) {
	if !s.gateway.VerifySignature(intentID, paymentID, signature) {
		s.lg.Warn("payment signature verification failed",
			zap.String("intent_id", intentID), zap.String("payment_id", paymentID))
		return nil, ErrInvalidSignature
	}

	o, err := s.orders.FindByGatewayOrderID(ctx, intentID)
	if err != nil {
		return nil, err
	}

	// Webhooks redeliver, sometimes long after the order has moved on through
	// fulfillment. Any settled status means this payment was already applied.
	if o.Status.Settled() {
		return o, nil
	}

	updated, err := s.orders.Transition(ctx, o.ID, order.StatusPaid, "payment verified", order.ActorSystem,
		order.TransitionFields{PaymentID: paymentID})
	if err != nil {
		// A concurrent confirmation may have won the conditional update, or an
		// admin advanced the order between the read above and the update.
		var terr *order.TransitionError
		if errors.As(err, &terr) && terr.From.Settled() {
			return s.orders.FindByID(ctx, o.ID)
		}
		return nil, errors.Wrap(err, "mark order paid")
	}

	if err := s.carts.Clear(ctx, o.OwnerID); err != nil {
		s.lg.Error("clearing cart after payment failed",
			zap.String("order_id", o.ID), zap.Error(err))
	}

	return updated, nil
}

// resolveCart loads the user's cart and resolves it against the live catalog.
// Lines referencing missing or out-of-stock products are silently dropped.
func (s *Service) resolveCart(ctx context.Context, userID string) ([]pricing.LineItem, map[string]catalog.Product, error) {
	lines, err := s.carts.ListByUser(ctx, userID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "load cart")
	}
	if len(lines) == 0 {
		return nil, nil, ErrEmptyCart
	}

	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	fetched, err := s.catalog.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, errors.Wrap(err, "resolve products")
	}

	products := make(map[string]catalog.Product, len(fetched))
	for _, p := range fetched {
		products[p.ID] = p
	}

	items := make([]pricing.LineItem, 0, len(lines))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok || !p.InStock || l.Quantity <= 0 {
			continue
		}
		items = append(items, pricing.LineItem{
			ProductID: p.ID,
			UnitPrice: p.Price,
			Quantity:  l.Quantity,
		})
	}
	if len(items) == 0 {
		return nil, nil, ErrEmptyCart
	}
	return items, products, nil
}

func snapshotItems(items []pricing.LineItem, products map[string]catalog.Product) []order.LineItem {
	out := make([]order.LineItem, len(items))
	for i, item := range items {
		p := products[item.ProductID]
		out[i] = order.LineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Image:     p.Image,
			Quantity:  item.Quantity,
		}
	}
	return out
}

func isDiscountRejection(err error) bool {
	return errors.Is(err, discount.ErrNotFound) ||
		errors.Is(err, discount.ErrExpired) ||
		errors.Is(err, discount.ErrUsageLimitReached) ||
		errors.Is(err, discount.ErrBelowMinimumOrder)
}
