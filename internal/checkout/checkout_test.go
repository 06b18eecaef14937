package checkout

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocloud.dev/blob/memblob"

	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/clientcache"
	"github.com/mmeshcher/storefront/internal/model"
)

type stubCreator struct {
	mu     sync.Mutex
	err    error
	orders []model.Order
}

func (s *stubCreator) CreateOrder(_ context.Context, order *model.Order) (*model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.orders = append(s.orders, *order)
	created := *order
	return &created, nil
}

func (s *stubCreator) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.orders)
}

var address = model.ShippingAddress{
	Name:    "Asha",
	Email:   "asha@example.com",
	Phone:   "9999999999",
	Address: "12 MG Road",
	City:    "Pune",
}

var merchant = Merchant{VPA: "shop@upi", Name: "ALA Beauty"}

type env struct {
	cart     *cart.Cart
	cache    clientcache.Cache
	remote   *stubCreator
	queue    *FallbackQueue
	checkout *Orchestrator
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()

	cache := clientcache.NewBlobCache(memblob.OpenBucket(nil))
	c, err := cart.Load(ctx, cache)
	require.NoError(t, err)

	remote := &stubCreator{}
	queue := NewFallbackQueue(cache)
	writer := &TieredWriter{Primary: NewRemoteWriter(remote), Fallback: queue, Logger: zap.NewNop()}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := New(c, writer, merchant, zap.NewNop(), WithClock(func() time.Time { return now }))

	return &env{cart: c, cache: cache, remote: remote, queue: queue, checkout: o}
}

func (e *env) fillCart(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, e.cart.Add(ctx, cart.Product{ID: "p1", Name: "Kajal", Price: decimal.NewFromInt(100)}, nil))
	require.NoError(t, e.cart.Add(ctx, cart.Product{ID: "p1", Name: "Kajal", Price: decimal.NewFromInt(100)}, nil))
	require.NoError(t, e.cart.Add(ctx, cart.Product{ID: "p2", Name: "Tint", Price: decimal.NewFromInt(50)}, nil))
}

func (e *env) toPayment(t *testing.T, userID string) {
	t.Helper()
	e.fillCart(t)
	require.NoError(t, e.checkout.Begin(userID))
	require.NoError(t, e.checkout.SubmitShipping(address))
	require.Equal(t, StagePayment, e.checkout.Stage())
}

func TestBeginRequiresItems(t *testing.T) {
	e := newEnv(t)
	err := e.checkout.Begin("u1")
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, StageCart, e.checkout.Stage())
}

func TestSubmitShippingValidates(t *testing.T) {
	e := newEnv(t)
	e.fillCart(t)
	require.NoError(t, e.checkout.Begin("u1"))

	addr := address
	addr.City = "  "
	err := e.checkout.SubmitShipping(addr)
	assert.ErrorIs(t, err, model.ErrValidation)
	assert.Equal(t, StageShipping, e.checkout.Stage())
}

func TestPlaceOrderCOD(t *testing.T) {
	e := newEnv(t)
	e.toPayment(t, "u1")

	res, err := e.checkout.PlaceOrder(context.Background(), model.PaymentCOD, "")
	require.NoError(t, err)

	assert.Equal(t, TierPrimary, res.Tier)
	assert.True(t, res.Order.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Len(t, res.Order.Items, 2)
	assert.Nil(t, res.Order.UTRReference)
	assert.Equal(t, model.OrderStatusPending, res.Order.Status)
	assert.Equal(t, "u1", res.Order.UserID)
	assert.NotEqual(t, uuid.Nil, res.Order.ID)

	assert.Equal(t, StageCompleted, e.checkout.Stage())
	assert.True(t, e.cart.IsEmpty())
	assert.Equal(t, 1, e.remote.count())
}

func TestPlaceOrderUPIReference(t *testing.T) {
	e := newEnv(t)
	e.toPayment(t, "")

	_, err := e.checkout.PlaceOrder(context.Background(), model.PaymentUPI, "1234567")
	assert.ErrorIs(t, err, model.ErrInvalidReference)
	assert.Equal(t, 0, e.remote.count())
	assert.Equal(t, StagePayment, e.checkout.Stage())
	assert.False(t, e.cart.IsEmpty())

	res, err := e.checkout.PlaceOrder(context.Background(), model.PaymentUPI, "12345678")
	require.NoError(t, err)
	require.NotNil(t, res.Order.UTRReference)
	assert.Equal(t, "12345678", *res.Order.UTRReference)
	assert.Equal(t, model.GuestUserID, res.Order.UserID)
	assert.Equal(t, StageCompleted, e.checkout.Stage())
	assert.True(t, e.cart.IsEmpty())
}

func TestPrimaryOutageFallsBack(t *testing.T) {
	e := newEnv(t)
	e.remote.err = model.ErrStorage
	e.toPayment(t, "u1")

	res, err := e.checkout.PlaceOrder(context.Background(), model.PaymentCOD, "")
	require.NoError(t, err)

	assert.Equal(t, TierFallback, res.Tier)
	assert.ErrorIs(t, res.PrimaryErr, model.ErrStorage)
	assert.Equal(t, StageCompleted, e.checkout.Stage())
	assert.True(t, e.cart.IsEmpty())

	pending, err := e.queue.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, res.Order.ID, pending[0].ID)
}

func TestCanceledContextDoesNotFallBack(t *testing.T) {
	e := newEnv(t)
	e.remote.err = context.Canceled
	e.toPayment(t, "u1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.checkout.PlaceOrder(ctx, model.PaymentCOD, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StagePayment, e.checkout.Stage())
	assert.False(t, e.cart.IsEmpty())
}

func TestCancelKeepsCart(t *testing.T) {
	e := newEnv(t)
	e.toPayment(t, "u1")

	e.checkout.Cancel()

	assert.Equal(t, StageCart, e.checkout.Stage())
	assert.Equal(t, 3, e.cart.Count())
	_, err := e.checkout.PlaceOrder(context.Background(), model.PaymentCOD, "")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPaymentIntent(t *testing.T) {
	e := newEnv(t)
	e.toPayment(t, "u1")

	intent, err := e.checkout.PaymentIntent()
	require.NoError(t, err)

	assert.Equal(t, "upi://pay?pa=shop@upi&pn=ALA%20Beauty&am=250.00&cu=INR&tn=ALA%20Order", intent.URI)
	assert.True(t, intent.Amount.Equal(decimal.NewFromInt(250)))
	require.NotEmpty(t, intent.QRCodePNG)
	assert.True(t, strings.HasPrefix(string(intent.QRCodePNG), "\x89PNG"))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	e.remote.err = errors.New("connection refused")
	e.toPayment(t, "u1")

	_, err := e.checkout.PlaceOrder(ctx, model.PaymentCOD, "")
	require.NoError(t, err)

	n, err := e.queue.Reconcile(ctx, e.remote)
	assert.Error(t, err)
	assert.Equal(t, 0, n)

	e.remote.err = nil
	n, err = e.queue.Reconcile(ctx, e.remote)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := e.queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, e.remote.count())
}

func TestFallbackQueueReplacesSameID(t *testing.T) {
	ctx := context.Background()
	q := NewFallbackQueue(clientcache.NewBlobCache(memblob.OpenBucket(nil)))
	order := &model.Order{ID: uuid.New(), Status: model.OrderStatusPending}

	_, err := q.Write(ctx, order)
	require.NoError(t, err)
	_, err = q.Write(ctx, order)
	require.NoError(t, err)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
