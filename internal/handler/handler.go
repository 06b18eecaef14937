// Package handler содержит HTTP-обработчики API витрины.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/auth"
	"github.com/mmeshcher/storefront/internal/middleware"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/service"
	"github.com/mmeshcher/storefront/internal/session"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Register(ctx context.Context, name, email, password string) (*service.Session, error)
	Login(ctx context.Context, creds auth.Credentials) (*service.Session, error)
	SendCode(ctx context.Context, email string) error
	Profile(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	PlaceOrder(ctx context.Context, userID string, order *model.Order) (*model.Order, error)
	ListOrders(ctx context.Context, userID string) ([]model.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID, requester session.Principal) (*model.Order, error)
	ListAllOrders(ctx context.Context, requester session.Principal) ([]model.Order, error)
}

// Handler реализует HTTP-обработчики API витрины.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
	healthCheck    func(ctx context.Context) error
}

// Option настраивает Handler.
type Option func(*Handler)

// WithHealthCheck задаёт проверку готовности, вызываемую из /api/health.
func WithHealthCheck(check func(ctx context.Context) error) Option {
	return func(h *Handler) { h.healthCheck = check }
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware, opts ...Option) *Handler {
	h := &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type federatedLoginRequest struct {
	ExternalToken string `json:"externalToken"`
	Token         string `json:"token"`
}

type sendCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,len=6,numeric"`
	Name  string `json:"name"`
}

type orderRequest struct {
	ID              *uuid.UUID            `json:"id,omitempty"`
	Items           []model.OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal       `json:"totalAmount"`
	ShippingAddress model.ShippingAddress `json:"shippingAddress"`
	PaymentMethod   model.PaymentMethod   `json:"paymentMethod"`
	UTRReference    *string               `json:"utrReference,omitempty"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type messageResponse struct {
	Msg string `json:"msg"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeError(w, r, "register user error", err)
		return
	}

	render.JSON(w, r, tokenResponse{Token: sess.Token})
}

// Login выполняет вход по адресу и паролю.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.service.Login(r.Context(), auth.PasswordCredentials{Email: req.Email, Password: req.Password})
	if err != nil {
		h.writeError(w, r, "login user error", err)
		return
	}

	render.JSON(w, r, tokenResponse{Token: sess.Token})
}

// FederatedLogin выполняет вход по токену внешнего поставщика.
func (h *Handler) FederatedLogin(w http.ResponseWriter, r *http.Request) {
	var req federatedLoginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token := req.ExternalToken
	if token == "" {
		token = req.Token
	}

	sess, err := h.service.Login(r.Context(), auth.FederatedCredentials{Token: token})
	if err != nil {
		h.writeError(w, r, "federated login error", err)
		return
	}

	render.JSON(w, r, tokenResponse{Token: sess.Token})
}

// SendCode выдаёт одноразовый код входа.
func (h *Handler) SendCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.service.SendCode(r.Context(), req.Email); err != nil {
		h.writeError(w, r, "send otp error", err)
		return
	}

	render.JSON(w, r, messageResponse{Msg: "OTP sent successfully"})
}

// VerifyCode выполняет вход по одноразовому коду.
func (h *Handler) VerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	sess, err := h.service.Login(r.Context(), auth.OneTimeCodeCredentials{
		Email: req.Email,
		Code:  req.OTP,
		Name:  req.Name,
	})
	if err != nil {
		h.writeError(w, r, "verify otp error", err)
		return
	}

	render.JSON(w, r, sess)
}

// Profile возвращает учётную запись владельца сессии.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "profile error", model.ErrUnauthorized)
		return
	}

	identity, err := h.service.Profile(r.Context(), p.IdentityID)
	if err != nil {
		h.writeError(w, r, "profile error", err)
		return
	}

	render.JSON(w, r, identity)
}

// CreateOrder оформляет заказ. Без сессии заказ оформляется как гостевой.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	userID := model.GuestUserID
	if p, ok := middleware.GetPrincipalFromContext(r.Context()); ok {
		userID = p.IdentityID.String()
	}

	order := &model.Order{
		Items:           req.Items,
		TotalAmount:     req.TotalAmount,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		UTRReference:    req.UTRReference,
	}
	if req.ID != nil {
		order.ID = *req.ID
	}

	created, err := h.service.PlaceOrder(r.Context(), userID, order)
	if err != nil {
		h.writeError(w, r, "create order error", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, created)
}

// GetOrders возвращает заказы владельца сессии, начиная с самых новых.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "get orders error", model.ErrUnauthorized)
		return
	}

	orders, err := h.service.ListOrders(r.Context(), p.IdentityID.String())
	if err != nil {
		h.writeError(w, r, "get orders error", err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	render.JSON(w, r, orders)
}

// GetOrder возвращает заказ по идентификатору, если он принадлежит владельцу сессии.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.GetPrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, r, "get order error", model.ErrUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.writeMessage(w, r, http.StatusNotFound, "order not found")
		return
	}

	order, err := h.service.GetOrder(r.Context(), id, p)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			h.writeMessage(w, r, http.StatusNotFound, "order not found")
			return
		}
		h.writeError(w, r, "get order error", err)
		return
	}

	render.JSON(w, r, order)
}

// GetAllOrders возвращает все заказы. Доступно только администраторам.
func (h *Handler) GetAllOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := middleware.GetPrincipalFromContext(r.Context())

	orders, err := h.service.ListAllOrders(r.Context(), p)
	if err != nil {
		h.writeError(w, r, "get all orders error", err)
		return
	}
	if orders == nil {
		orders = []model.Order{}
	}

	render.JSON(w, r, orders)
}

// Health сообщает, что сервис запущен и хранилище доступно.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.healthCheck != nil {
		if err := h.healthCheck(r.Context()); err != nil {
			h.logger.Warn("health check failed", zap.Error(err))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, map[string]string{"status": "unavailable"})
			return
		}
	}
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		h.writeMessage(w, r, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validation.Struct(dst); err != nil {
		h.writeMessage(w, r, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

var statusTable = []struct {
	err    error
	status int
}{
	{model.ErrValidation, http.StatusBadRequest},
	{model.ErrDuplicateEmail, http.StatusBadRequest},
	{model.ErrInvalidCredentials, http.StatusBadRequest},
	{model.ErrInvalidReference, http.StatusBadRequest},
	{model.ErrExpired, http.StatusBadRequest},
	{model.ErrMismatch, http.StatusBadRequest},
	{model.ErrNameRequired, http.StatusBadRequest},
	{model.ErrRateLimited, http.StatusTooManyRequests},
	{model.ErrInvalidToken, http.StatusUnauthorized},
	{model.ErrUnauthorized, http.StatusUnauthorized},
	{model.ErrForbidden, http.StatusForbidden},
	{model.ErrNotFound, http.StatusNotFound},
	{model.ErrIdentityConflict, http.StatusConflict},
}

// statusFor возвращает HTTP-статус для доменной ошибки. Неизвестные ошибки считаются внутренними.
func statusFor(err error) int {
	for _, e := range statusTable {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(op, zap.Error(err))
		h.writeMessage(w, r, status, "server error, please try again")
		return
	}
	h.writeMessage(w, r, status, err.Error())
}

func (h *Handler) writeMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, messageResponse{Msg: msg})
}
