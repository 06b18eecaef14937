package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/storefront/internal/model"
)

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/users/login":
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case "/api/users/profile":
			assert.Equal(t, "tok-1", r.Header.Get(authHeader))
			_ = json.NewEncoder(w).Encode(model.Identity{Email: "a@x.io"})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetryMax(0))
	token, err := c.Login(context.Background(), "a@x.io", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	identity, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a@x.io", identity.Email)
}

func TestAPIErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusBadRequest, model.ErrValidation},
		{http.StatusUnauthorized, model.ErrUnauthorized},
		{http.StatusNotFound, model.ErrNotFound},
		{http.StatusTooManyRequests, model.ErrRateLimited},
		{http.StatusInternalServerError, model.ErrStorage},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_ = json.NewEncoder(w).Encode(map[string]string{"msg": "nope"})
			}))
			defer srv.Close()

			c := NewClient(srv.URL, WithRetryMax(0))
			err := c.SendOTP(context.Background(), "a@x.io")

			assert.ErrorIs(t, err, tt.want)
			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "nope", apiErr.Msg)
		})
	}
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		var o model.Order
		require.NoError(t, json.NewDecoder(r.Body).Decode(&o))
		o.Status = model.OrderStatusPending
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(o)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithRetryMax(1))
	order := &model.Order{ID: uuid.New(), TotalAmount: decimal.NewFromInt(250), PaymentMethod: model.PaymentCOD}

	created, err := c.CreateOrder(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, order.ID, created.ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestUnreachableServerIsStorageError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, WithRetryMax(0))
	_, err := c.ListOrders(context.Background())
	assert.ErrorIs(t, err, model.ErrStorage)
}

func TestNotConfigured(t *testing.T) {
	c := NewClient("")
	_, err := c.ListOrders(context.Background())
	assert.ErrorIs(t, err, model.ErrStorage)
}
