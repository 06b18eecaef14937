// Package apiclient предоставляет клиент REST API витрины.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/mmeshcher/storefront/internal/model"
)

const authHeader = "x-auth-token"

// APIError описывает ответ API с кодом ошибки.
type APIError struct {
	StatusCode int
	Msg        string
}

func (e *APIError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Msg)
}

// Unwrap сопоставляет код ответа доменной ошибке.
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return model.ErrUnauthorized
	case e.StatusCode == http.StatusForbidden:
		return model.ErrForbidden
	case e.StatusCode == http.StatusNotFound:
		return model.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return model.ErrRateLimited
	case e.StatusCode == http.StatusConflict:
		return model.ErrIdentityConflict
	case e.StatusCode >= 500:
		return model.ErrStorage
	default:
		return model.ErrValidation
	}
}

// Client инкапсулирует HTTP-взаимодействие с API витрины.
type Client struct {
	baseURL    string
	httpClient *retryablehttp.Client

	mu    sync.RWMutex
	token string
}

// Option настраивает Client.
type Option func(*Client)

// WithRetryMax задаёт число повторных попыток при сетевых ошибках и ответах 5xx.
func WithRetryMax(n int) Option {
	return func(c *Client) { c.httpClient.RetryMax = n }
}

// WithToken задаёт токен сессии.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient создаёт клиент API по указанному адресу.
func NewClient(baseURL string, opts ...Option) *Client {
	base := strings.TrimRight(baseURL, "/")
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 2
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 2 * time.Second
	rc.HTTPClient.Timeout = 10 * time.Second
	rc.Logger = nil
	// Ответ с ошибкой возвращается вызывающему как есть, чтобы прочитать сообщение API.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{baseURL: base, httpClient: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken задаёт токен сессии для последующих запросов.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Token возвращает текущий токен сессии.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type tokenResponse struct {
	Token string `json:"token"`
}

// SessionResponse содержит токен и учётную запись.
type SessionResponse struct {
	Token string         `json:"token"`
	User  model.Identity `json:"user"`
}

// Register регистрирует пользователя и сохраняет токен.
func (c *Client) Register(ctx context.Context, name, email, password string) (string, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/users/register", map[string]string{
		"name": name, "email": email, "password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

// Login выполняет вход по паролю и сохраняет токен.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/users/login", map[string]string{
		"email": email, "password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

// FederatedLogin выполняет вход по токену внешнего поставщика и сохраняет токен.
func (c *Client) FederatedLogin(ctx context.Context, externalToken string) (string, error) {
	var resp tokenResponse
	err := c.do(ctx, http.MethodPost, "/api/users/federated-login", map[string]string{
		"externalToken": externalToken,
	}, &resp)
	if err != nil {
		return "", err
	}
	c.SetToken(resp.Token)
	return resp.Token, nil
}

// SendOTP запрашивает одноразовый код.
func (c *Client) SendOTP(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/users/send-otp", map[string]string{"email": email}, nil)
}

// VerifyOTP выполняет вход по одноразовому коду и сохраняет токен.
func (c *Client) VerifyOTP(ctx context.Context, email, code, name string) (*SessionResponse, error) {
	var resp SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/users/verify-otp", map[string]string{
		"email": email, "otp": code, "name": name,
	}, &resp)
	if err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

// Profile возвращает учётную запись владельца токена.
func (c *Client) Profile(ctx context.Context) (*model.Identity, error) {
	var identity model.Identity
	if err := c.do(ctx, http.MethodGet, "/api/users/profile", nil, &identity); err != nil {
		return nil, err
	}
	return &identity, nil
}

// CreateOrder отправляет заказ. Идентификатор заказа передаётся серверу, поэтому повторная отправка безопасна.
func (c *Client) CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error) {
	var created model.Order
	if err := c.do(ctx, http.MethodPost, "/api/orders", order, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// ListOrders возвращает заказы владельца токена.
func (c *Client) ListOrders(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// GetOrder возвращает заказ по идентификатору.
func (c *Client) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	var order model.Order
	if err := c.do(ctx, http.MethodGet, "/api/orders/"+id.String(), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if c == nil || c.baseURL == "" {
		return fmt.Errorf("%w: api client not configured", model.ErrStorage)
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.Token(); token != "" {
		req.Header.Set(authHeader, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: do request: %v", model.ErrStorage, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var msg struct {
			Msg string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&msg)
		return &APIError{StatusCode: resp.StatusCode, Msg: msg.Msg}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
