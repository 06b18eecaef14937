// Package service реализует бизнес-логику витрины: вход пользователей и оформление заказов.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/repository"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/validation"
)

// OrderStore описывает контракт хранилища заказов, используемый сервисом.
type OrderStore interface {
	CreateOrder(ctx context.Context, order *model.Order) (bool, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error)
	ListAllOrders(ctx context.Context) ([]model.Order, error)
}

// CodeIssuer выдаёт одноразовые коды.
type CodeIssuer interface {
	Issue(ctx context.Context, email string) (*model.OneTimeCode, error)
}

// TokenIssuer выпускает токены сессии.
type TokenIssuer interface {
	Issue(identity *model.Identity) (string, error)
}

// Session содержит токен и учётную запись, для которой он выпущен.
type Session struct {
	Token    string          `json:"token"`
	Identity *model.Identity `json:"user"`
}

// Service содержит бизнес-логику витрины.
type Service struct {
	credentials *auth.CredentialStore
	login       auth.Authenticator
	codes       CodeIssuer
	tokens      TokenIssuer
	orders      OrderStore
	now         func() time.Time
}

// NewService создаёт сервис.
func NewService(
	credentials *auth.CredentialStore,
	login auth.Authenticator,
	codes CodeIssuer,
	tokens TokenIssuer,
	orders OrderStore,
) *Service {
	return &Service{
		credentials: credentials,
		login:       login,
		codes:       codes,
		tokens:      tokens,
		orders:      orders,
		now:         time.Now,
	}
}

// Register регистрирует пользователя с паролем и открывает сессию.
func (s *Service) Register(ctx context.Context, name, email, password string) (*Session, error) {
	identity, err := s.credentials.Register(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	return s.open(identity)
}

// Login выполняет вход любым поддерживаемым способом и открывает сессию.
func (s *Service) Login(ctx context.Context, creds auth.Credentials) (*Session, error) {
	identity, err := s.login.Authenticate(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s.open(identity)
}

func (s *Service) open(identity *model.Identity) (*Session, error) {
	token, err := s.tokens.Issue(identity)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, Identity: identity}, nil
}

// SendCode выдаёт одноразовый код на адрес.
func (s *Service) SendCode(ctx context.Context, email string) error {
	if !validation.IsValidEmail(model.NormalizeEmail(email)) {
		return fmt.Errorf("%w: email is required", model.ErrValidation)
	}
	_, err := s.codes.Issue(ctx, email)
	return err
}

// Profile возвращает учётную запись владельца сессии.
func (s *Service) Profile(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	return s.credentials.Identity(ctx, id)
}

// PlaceOrder проверяет и сохраняет заказ. Пустой userID означает гостевой заказ.
func (s *Service) PlaceOrder(ctx context.Context, userID string, order *model.Order) (*model.Order, error) {
	if userID == "" {
		userID = model.GuestUserID
	}

	if err := validation.Order(order); err != nil {
		return nil, err
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	order.UserID = userID
	order.Status = model.OrderStatusPending
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.now().UTC()
	}

	existed, err := s.orders.CreateOrder(ctx, order)
	if err != nil {
		if errors.Is(err, repository.ErrOrderIDTaken) {
			return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
		}
		return nil, err
	}
	if existed {
		return s.orders.GetOrder(ctx, order.ID)
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя, начиная с самых новых.
func (s *Service) ListOrders(ctx context.Context, userID string) ([]model.Order, error) {
	return s.orders.ListOrdersByUser(ctx, userID)
}

// GetOrder возвращает заказ, если запрашивающий является его владельцем или администратором.
func (s *Service) GetOrder(ctx context.Context, id uuid.UUID, requester session.Principal) (*model.Order, error) {
	order, err := s.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != requester.IdentityID.String() && !requester.IsAdmin() {
		return nil, model.ErrUnauthorized
	}
	return order, nil
}

// ListAllOrders возвращает все заказы. Доступно только администраторам.
func (s *Service) ListAllOrders(ctx context.Context, requester session.Principal) ([]model.Order, error) {
	if !requester.IsAdmin() {
		return nil, model.ErrForbidden
	}
	return s.orders.ListAllOrders(ctx)
}
