package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/session"
)

type stubIdentities struct {
	mu      sync.Mutex
	byEmail map[string]*model.Identity
}

func (s *stubIdentities) CreateIdentity(_ context.Context, identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[identity.Email]; ok {
		return model.ErrDuplicateEmail
	}
	s.byEmail[identity.Email] = identity
	return nil
}

func (s *stubIdentities) GetIdentityByEmail(_ context.Context, email string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if identity, ok := s.byEmail[email]; ok {
		return identity, nil
	}
	return nil, model.ErrNotFound
}

func (s *stubIdentities) GetIdentityByID(_ context.Context, id uuid.UUID) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.byEmail {
		if identity.ID == id {
			return identity, nil
		}
	}
	return nil, model.ErrNotFound
}

func (s *stubIdentities) LinkExternalID(_ context.Context, id uuid.UUID, externalID string) (*model.Identity, error) {
	return nil, model.ErrIdentityConflict
}

type stubOrders struct {
	orders    map[uuid.UUID]model.Order
	createErr error
}

func newStubOrders() *stubOrders {
	return &stubOrders{orders: make(map[uuid.UUID]model.Order)}
}

func (s *stubOrders) CreateOrder(_ context.Context, order *model.Order) (bool, error) {
	if s.createErr != nil {
		return false, s.createErr
	}
	if existing, ok := s.orders[order.ID]; ok {
		if existing.UserID != order.UserID {
			return false, repository.ErrOrderIDTaken
		}
		return true, nil
	}
	s.orders[order.ID] = *order
	return false, nil
}

func (s *stubOrders) GetOrder(_ context.Context, id uuid.UUID) (*model.Order, error) {
	o, ok := s.orders[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return &o, nil
}

func (s *stubOrders) ListOrdersByUser(_ context.Context, userID string) ([]model.Order, error) {
	var res []model.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			res = append(res, o)
		}
	}
	return res, nil
}

func (s *stubOrders) ListAllOrders(context.Context) ([]model.Order, error) {
	res := make([]model.Order, 0, len(s.orders))
	for _, o := range s.orders {
		res = append(res, o)
	}
	return res, nil
}

type stubCodes struct {
	issued []string
	err    error
}

func (s *stubCodes) Issue(_ context.Context, email string) (*model.OneTimeCode, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.issued = append(s.issued, email)
	return &model.OneTimeCode{Email: email, Code: "123456"}, nil
}

type fixture struct {
	svc    *Service
	tokens *session.Issuer
	orders *stubOrders
	codes  *stubCodes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := auth.NewCredentialStore(&stubIdentities{byEmail: map[string]*model.Identity{}}, auth.NewBcryptHasher(bcrypt.MinCost))
	login := auth.NewDispatcher(map[auth.Method]auth.Authenticator{
		auth.MethodPassword: auth.NewPasswordAuthenticator(store),
	})
	tokens, err := session.NewIssuer("test-secret")
	require.NoError(t, err)

	f := &fixture{tokens: tokens, orders: newStubOrders(), codes: &stubCodes{}}
	f.svc = NewService(store, login, f.codes, tokens, f.orders)
	return f
}

func codOrder() *model.Order {
	return &model.Order{
		Items: []model.OrderItem{
			{ProductID: "p1", Name: "Highlight", UnitPrice: decimal.NewFromInt(100), Quantity: 2},
			{ProductID: "p2", Name: "Lipstick", UnitPrice: decimal.NewFromInt(50), Quantity: 1},
		},
		TotalAmount: decimal.NewFromInt(250),
		ShippingAddress: model.ShippingAddress{
			Name: "Asha", Email: "asha@example.com", Phone: "9876543210", Address: "12 MG Road", City: "Hyderabad",
		},
		PaymentMethod: model.PaymentCOD,
	}
}

func TestRegisterLoginValidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	reg, err := f.svc.Register(ctx, "A", "a@x.io", "secret1")
	require.NoError(t, err)

	sess, err := f.svc.Login(ctx, auth.PasswordCredentials{Email: "a@x.io", Password: "secret1"})
	require.NoError(t, err)

	p, err := f.tokens.Validate(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.Identity.ID, p.IdentityID)

	profile, err := f.svc.Profile(ctx, p.IdentityID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", profile.Email)
}

func TestRegisterDuplicateCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.Register(ctx, "A", "a@x.io", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "B", "A@X.IO", "secret2")
	assert.ErrorIs(t, err, model.ErrDuplicateEmail)
}

func TestSendCode(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.svc.SendCode(context.Background(), "a@x.io"))
	assert.Equal(t, []string{"a@x.io"}, f.codes.issued)

	assert.ErrorIs(t, f.svc.SendCode(context.Background(), ""), model.ErrValidation)

	f.codes.err = model.ErrRateLimited
	assert.ErrorIs(t, f.svc.SendCode(context.Background(), "a@x.io"), model.ErrRateLimited)
}

func TestPlaceOrderCOD(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New().String()
	f.svc.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	order, err := f.svc.PlaceOrder(context.Background(), userID, codOrder())
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, order.ID)
	assert.Equal(t, userID, order.UserID)
	assert.Equal(t, model.OrderStatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(250)))
	assert.Nil(t, order.UTRReference)
	assert.Len(t, f.orders.orders, 1)
}

func TestPlaceOrderGuestAndResubmit(t *testing.T) {
	f := newFixture(t)

	first, err := f.svc.PlaceOrder(context.Background(), "", codOrder())
	require.NoError(t, err)
	assert.Equal(t, model.GuestUserID, first.UserID)

	again := codOrder()
	again.ID = first.ID
	second, err := f.svc.PlaceOrder(context.Background(), "", again)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.orders.orders, 1)

	stolen := codOrder()
	stolen.ID = first.ID
	_, err = f.svc.PlaceOrder(context.Background(), uuid.New().String(), stolen)
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestPlaceOrderRejectsShortUTR(t *testing.T) {
	f := newFixture(t)
	o := codOrder()
	o.PaymentMethod = model.PaymentUPI
	utr := "1234567"
	o.UTRReference = &utr

	_, err := f.svc.PlaceOrder(context.Background(), "", o)
	assert.ErrorIs(t, err, model.ErrInvalidReference)
	assert.Empty(t, f.orders.orders)
}

func TestGetOrderOwnership(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	owner := session.Principal{IdentityID: uuid.New(), Role: model.RoleUser}
	other := session.Principal{IdentityID: uuid.New(), Role: model.RoleUser}
	admin := session.Principal{IdentityID: uuid.New(), Role: model.RoleAdmin}

	order, err := f.svc.PlaceOrder(ctx, owner.IdentityID.String(), codOrder())
	require.NoError(t, err)

	got, err := f.svc.GetOrder(ctx, order.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, order.ID, other)
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.svc.GetOrder(ctx, order.ID, admin)
	assert.NoError(t, err)

	_, err = f.svc.GetOrder(ctx, uuid.New(), owner)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestListAllOrdersRequiresAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.ListAllOrders(ctx, session.Principal{IdentityID: uuid.New(), Role: model.RoleUser})
	assert.ErrorIs(t, err, model.ErrForbidden)

	_, err = f.svc.PlaceOrder(ctx, "", codOrder())
	require.NoError(t, err)

	all, err := f.svc.ListAllOrders(ctx, session.Principal{IdentityID: uuid.New(), Role: model.RoleAdmin})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
