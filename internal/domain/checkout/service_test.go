package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evermart/checkout/internal/domain/cart"
	"github.com/evermart/checkout/internal/domain/catalog"
	"github.com/evermart/checkout/internal/domain/discount"
	"github.com/evermart/checkout/internal/domain/order"
	"github.com/evermart/checkout/internal/domain/pricing"
	"github.com/evermart/checkout/internal/gateway"
)

// --- Mock implementations ---

type mockCatalog struct {
	byID map[string]catalog.Product
	err  error
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &p, nil
}

func (m *mockCatalog) GetByIDs(_ context.Context, ids []string) ([]catalog.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []catalog.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type mockCarts struct {
	lines    []cart.Line
	err      error
	clearErr error
	cleared  string
}

func (m *mockCarts) ListByUser(_ context.Context, _ string) ([]cart.Line, error) {
	return m.lines, m.err
}

func (m *mockCarts) Clear(_ context.Context, userID string) error {
	m.cleared = userID
	return m.clearErr
}

type mockLedger struct {
	code *discount.Code
	err  error

	reserveOK  bool
	reserveErr error
	reservedID string
}

func (m *mockLedger) FindByCode(_ context.Context, _ string) (*discount.Code, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.code, nil
}

func (m *mockLedger) Reserve(_ context.Context, id string) (bool, error) {
	m.reservedID = id
	return m.reserveOK, m.reserveErr
}

type mockOrders struct {
	created   *order.Order
	createErr error

	byID      map[string]*order.Order
	byGateway map[string]*order.Order

	transitioned  []order.Status
	transitionErr error
}

func (m *mockOrders) Create(_ context.Context, o *order.Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = o
	return nil
}

func (m *mockOrders) Transition(_ context.Context, id string, next order.Status, note string, actor order.Actor, fields order.TransitionFields) (*order.Order, error) {
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	m.transitioned = append(m.transitioned, next)
	o.Status = next
	o.GatewayPaymentID = fields.PaymentID
	o.History = append(o.History, order.StatusChange{
		Status: next, At: time.Now(), Note: note, Actor: actor,
	})
	return o, nil
}

func (m *mockOrders) FindByID(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) FindByGatewayOrderID(_ context.Context, gatewayOrderID string) (*order.Order, error) {
	o, ok := m.byGateway[gatewayOrderID]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

func (m *mockOrders) ListByOwner(_ context.Context, _ string, _, _ int) ([]order.Order, error) {
	return nil, nil
}

type mockGateway struct {
	intent      *gateway.Intent
	intentErr   error
	lastAmount  int64
	lastReceipt string
	verifyOK    bool
}

func (m *mockGateway) CreateIntent(_ context.Context, amount int64, currency, receiptID string) (*gateway.Intent, error) {
	if m.intentErr != nil {
		return nil, m.intentErr
	}
	m.lastAmount = amount
	m.lastReceipt = receiptID
	if m.intent != nil {
		return m.intent, nil
	}
	return &gateway.Intent{ID: "intent_1", Amount: amount, Currency: currency}, nil
}

func (m *mockGateway) VerifySignature(_, _, _ string) bool {
	return m.verifyOK
}

// --- Helpers ---

type deps struct {
	catalog *mockCatalog
	carts   *mockCarts
	ledger  *mockLedger
	orders  *mockOrders
	gateway *mockGateway
}

func newTestService(d deps) *Service {
	if d.catalog == nil {
		d.catalog = &mockCatalog{}
	}
	if d.carts == nil {
		d.carts = &mockCarts{}
	}
	if d.ledger == nil {
		d.ledger = &mockLedger{}
	}
	if d.orders == nil {
		d.orders = &mockOrders{}
	}
	if d.gateway == nil {
		d.gateway = &mockGateway{}
	}
	return NewService(
		d.catalog, d.carts,
		pricing.NewEngine(decimal.NewFromInt(18)),
		discount.NewValidator(d.ledger), d.ledger,
		d.orders, d.gateway, "INR", zap.NewNop(),
	)
}

func testProduct(id string, price string) catalog.Product {
	return catalog.Product{
		ID:      id,
		Name:    "Product " + id,
		Price:   decimal.RequireFromString(price),
		Image:   id + ".png",
		InStock: true,
	}
}

// --- Checkout ---

func TestCheckout_MissingAddress(t *testing.T) {
	svc := newTestService(deps{})

	_, err := svc.Checkout(context.Background(), "user-1", "  ", "")
	require.ErrorIs(t, err, ErrMissingAddress)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc := newTestService(deps{})

	_, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_AllLinesUnresolvable(t *testing.T) {
	oos := testProduct("p2", "100")
	oos.InStock = false

	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p2": oos}},
		carts: &mockCarts{lines: []cart.Line{
			{ProductID: "gone", Quantity: 1},
			{ProductID: "p2", Quantity: 1},
		}},
	})

	_, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_NoDiscount(t *testing.T) {
	orders := &mockOrders{}
	gw := &mockGateway{}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{
			"p1": testProduct("p1", "500"),
			"p2": testProduct("p2", "1000"),
		}},
		carts: &mockCarts{lines: []cart.Line{
			{ProductID: "p1", Quantity: 2},
			{ProductID: "p2", Quantity: 1},
		}},
		orders:  orders,
		gateway: gw,
	})

	res, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "")
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(2360).Equal(res.Amount), "amount: got %s", res.Amount)
	assert.Equal(t, int64(236000), res.AmountMinor)
	assert.Equal(t, "INR", res.Currency)
	assert.Equal(t, "intent_1", res.IntentID)
	assert.Equal(t, int64(236000), gw.lastAmount, "gateway gets the exact quoted total")

	require.NotNil(t, orders.created)
	o := orders.created
	assert.Equal(t, order.StatusPending, o.Status)
	assert.Equal(t, "intent_1", o.GatewayOrderID)
	assert.True(t, decimal.NewFromInt(2000).Equal(o.Subtotal))
	assert.True(t, decimal.NewFromInt(360).Equal(o.Tax))
	assert.Len(t, o.Items, 2)
	assert.Equal(t, "Product p1", o.Items[0].Name, "items snapshot catalog data")
}

func TestCheckout_WithDiscount(t *testing.T) {
	ledger := &mockLedger{
		code: &discount.Code{
			ID: "dc1", Code: "SAVE10", Kind: discount.KindPercentage,
			Value: decimal.NewFromInt(10),
		},
		reserveOK: true,
	}
	orders := &mockOrders{}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p1": testProduct("p1", "2000")}},
		carts:   &mockCarts{lines: []cart.Line{{ProductID: "p1", Quantity: 1}}},
		ledger:  ledger,
		orders:  orders,
	})

	res, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "SAVE10")
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(236).Equal(res.Discount), "discount: got %s", res.Discount)
	assert.True(t, decimal.NewFromInt(2124).Equal(res.Amount), "amount: got %s", res.Amount)
	assert.Equal(t, "dc1", ledger.reservedID, "a use is reserved after the order is durable")
	assert.Equal(t, "SAVE10", orders.created.DiscountCode)
}

func TestCheckout_RejectedDiscountDegradesToFullPrice(t *testing.T) {
	ledger := &mockLedger{
		code: &discount.Code{
			ID: "dc1", Code: "MIN5000", Kind: discount.KindFixed,
			Value: decimal.NewFromInt(500), MinOrderAmount: decimal.NewFromInt(5000),
		},
	}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p1": testProduct("p1", "2000")}},
		carts:   &mockCarts{lines: []cart.Line{{ProductID: "p1", Quantity: 1}}},
		ledger:  ledger,
	})

	res, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "MIN5000")
	require.NoError(t, err, "rejected code must not block the purchase")

	assert.True(t, decimal.Zero.Equal(res.Discount))
	assert.True(t, decimal.NewFromInt(2360).Equal(res.Amount), "full price: got %s", res.Amount)
	assert.Empty(t, ledger.reservedID, "no use consumed for a rejected code")
}

func TestCheckout_DiscountInfraErrorAborts(t *testing.T) {
	ledger := &mockLedger{err: errors.New("connection reset")}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p1": testProduct("p1", "2000")}},
		carts:   &mockCarts{lines: []cart.Line{{ProductID: "p1", Quantity: 1}}},
		ledger:  ledger,
	})

	_, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "SAVE10")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate discount code")
}

func TestCheckout_GatewayFailureCreatesNoOrder(t *testing.T) {
	orders := &mockOrders{}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p1": testProduct("p1", "2000")}},
		carts:   &mockCarts{lines: []cart.Line{{ProductID: "p1", Quantity: 1}}},
		orders:  orders,
		gateway: &mockGateway{intentErr: gateway.ErrUnavailable},
	})

	_, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Nil(t, orders.created, "no durable order without a payment intent")
}

func TestCheckout_ReserveFailureKeepsOrder(t *testing.T) {
	ledger := &mockLedger{
		code: &discount.Code{
			ID: "dc1", Code: "SAVE10", Kind: discount.KindPercentage,
			Value: decimal.NewFromInt(10),
		},
		reserveErr: errors.New("connection reset"),
	}
	orders := &mockOrders{}
	svc := newTestService(deps{
		catalog: &mockCatalog{byID: map[string]catalog.Product{"p1": testProduct("p1", "2000")}},
		carts:   &mockCarts{lines: []cart.Line{{ProductID: "p1", Quantity: 1}}},
		ledger:  ledger,
		orders:  orders,
	})

	res, err := svc.Checkout(context.Background(), "user-1", "12 Main St", "SAVE10")
	require.NoError(t, err, "reservation is best-effort once the order exists")
	assert.True(t, decimal.NewFromInt(2124).Equal(res.Amount))
	assert.NotNil(t, orders.created)
}

// --- PreviewDiscount ---

func TestPreviewDiscount(t *testing.T) {
	ledger := &mockLedger{
		code: &discount.Code{
			ID: "dc1", Code: "SAVE10", Kind: discount.KindPercentage,
			Value: decimal.NewFromInt(10),
		},
	}
	svc := newTestService(deps{ledger: ledger})

	amount, err := svc.PreviewDiscount(context.Background(), "SAVE10", decimal.NewFromInt(2360))
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(236).Equal(amount), "got %s", amount)
	assert.Empty(t, ledger.reservedID, "preview never consumes a use")
}

func TestPreviewDiscount_SurfacesRejections(t *testing.T) {
	tests := []struct {
		name    string
		ledger  *mockLedger
		wantErr error
	}{
		{
			name:    "unknown code",
			ledger:  &mockLedger{err: discount.ErrNotFound},
			wantErr: discount.ErrNotFound,
		},
		{
			name: "below minimum",
			ledger: &mockLedger{code: &discount.Code{
				ID: "dc1", Code: "MIN5000", Kind: discount.KindFixed,
				Value: decimal.NewFromInt(500), MinOrderAmount: decimal.NewFromInt(5000),
			}},
			wantErr: discount.ErrBelowMinimumOrder,
		},
		{
			name: "usage exhausted",
			ledger: &mockLedger{code: &discount.Code{
				ID: "dc1", Code: "DONE", Kind: discount.KindFixed,
				Value: decimal.NewFromInt(500), UsageLimit: 1, UsedCount: 1,
			}},
			wantErr: discount.ErrUsageLimitReached,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(deps{ledger: tt.ledger})
			_, err := svc.PreviewDiscount(context.Background(), "ANY", decimal.NewFromInt(1000))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// --- ConfirmPayment ---

func pendingOrder(id, owner, intentID string) *order.Order {
	return &order.Order{
		ID:             id,
		OwnerID:        owner,
		Status:         order.StatusPending,
		GatewayOrderID: intentID,
		History: []order.StatusChange{
			{Status: order.StatusPending, Actor: order.ActorSystem},
		},
	}
}

func TestConfirmPayment(t *testing.T) {
	o := pendingOrder("o1", "user-1", "intent_1")
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": o},
		byGateway: map[string]*order.Order{"intent_1": o},
	}
	carts := &mockCarts{}
	svc := newTestService(deps{
		orders:  orders,
		carts:   carts,
		gateway: &mockGateway{verifyOK: true},
	})

	got, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)

	assert.Equal(t, order.StatusPaid, got.Status)
	assert.Equal(t, "pay_1", got.GatewayPaymentID)
	assert.Equal(t, "user-1", carts.cleared, "cart is cleared after payment")
	assert.Len(t, got.History, 2)
}

func TestConfirmPayment_InvalidSignature(t *testing.T) {
	o := pendingOrder("o1", "user-1", "intent_1")
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": o},
		byGateway: map[string]*order.Order{"intent_1": o},
	}
	svc := newTestService(deps{
		orders:  orders,
		gateway: &mockGateway{verifyOK: false},
	})

	_, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "forged")
	require.ErrorIs(t, err, ErrInvalidSignature)

	assert.Equal(t, order.StatusPending, o.Status, "order stays pending for reconciliation")
	assert.Empty(t, orders.transitioned)
}

func TestConfirmPayment_Idempotent(t *testing.T) {
	o := pendingOrder("o1", "user-1", "intent_1")
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": o},
		byGateway: map[string]*order.Order{"intent_1": o},
	}
	svc := newTestService(deps{
		orders:  orders,
		gateway: &mockGateway{verifyOK: true},
	})

	first, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)

	second, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)

	assert.Equal(t, order.StatusPaid, second.Status)
	assert.Len(t, orders.transitioned, 1, "redelivery must not transition twice")
	assert.Len(t, second.History, len(first.History), "no extra history entry on redelivery")
}

func TestConfirmPayment_ConcurrentWinnerTreatedAsSuccess(t *testing.T) {
	// The order reads as Pending but another confirmation wins the conditional
	// update in between. The loser re-reads and returns the paid order.
	paid := pendingOrder("o1", "user-1", "intent_1")
	paid.Status = order.StatusPaid
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": paid},
		byGateway: map[string]*order.Order{"intent_1": pendingOrder("o1", "user-1", "intent_1")},
		transitionErr: &order.TransitionError{
			OrderID: "o1", From: order.StatusPaid, Requested: order.StatusPaid,
		},
	}
	svc := newTestService(deps{
		orders:  orders,
		gateway: &mockGateway{verifyOK: true},
	})

	got, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
}

func TestConfirmPayment_RedeliveryAfterFulfillmentIsNoop(t *testing.T) {
	// A verified redelivery can arrive long after an admin moved the order
	// through fulfillment. The payment was already applied; succeed quietly.
	o := pendingOrder("o1", "user-1", "intent_1")
	o.Status = order.StatusShipped
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": o},
		byGateway: map[string]*order.Order{"intent_1": o},
	}
	svc := newTestService(deps{
		orders:  orders,
		gateway: &mockGateway{verifyOK: true},
	})

	got, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)
	assert.Equal(t, order.StatusShipped, got.Status)
	assert.Empty(t, orders.transitioned, "no transition attempted for a settled order")
}

func TestConfirmPayment_AdminAdvanceRaceTreatedAsSuccess(t *testing.T) {
	// The order reads as Pending, then an admin confirms it before the
	// conditional update lands. The order settled, so the confirm succeeds.
	confirmed := pendingOrder("o1", "user-1", "intent_1")
	confirmed.Status = order.StatusConfirmed
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": confirmed},
		byGateway: map[string]*order.Order{"intent_1": pendingOrder("o1", "user-1", "intent_1")},
		transitionErr: &order.TransitionError{
			OrderID: "o1", From: order.StatusConfirmed, Requested: order.StatusPaid,
		},
	}
	svc := newTestService(deps{
		orders:  orders,
		gateway: &mockGateway{verifyOK: true},
	})

	got, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)
	assert.Equal(t, order.StatusConfirmed, got.Status)
}

func TestConfirmPayment_UnknownIntent(t *testing.T) {
	svc := newTestService(deps{
		orders:  &mockOrders{},
		gateway: &mockGateway{verifyOK: true},
	})

	_, err := svc.ConfirmPayment(context.Background(), "intent_missing", "pay_1", "sig")
	require.ErrorIs(t, err, order.ErrNotFound)
}

func TestConfirmPayment_CartClearFailureIsNotFatal(t *testing.T) {
	o := pendingOrder("o1", "user-1", "intent_1")
	orders := &mockOrders{
		byID:      map[string]*order.Order{"o1": o},
		byGateway: map[string]*order.Order{"intent_1": o},
	}
	svc := newTestService(deps{
		orders:  orders,
		carts:   &mockCarts{clearErr: errors.New("connection reset")},
		gateway: &mockGateway{verifyOK: true},
	})

	got, err := svc.ConfirmPayment(context.Background(), "intent_1", "pay_1", "sig")
	require.NoError(t, err)
	assert.Equal(t, order.StatusPaid, got.Status)
}
