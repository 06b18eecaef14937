package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSendCode(t *testing.T) {
	var got EmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(EmailResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", 0, zap.NewNop())
	require.NoError(t, c.SendCode(context.Background(), "a@x.io", "123456"))

	assert.Equal(t, "a@x.io", got.To)
	assert.Equal(t, otpTemplate, got.Template)
	assert.Equal(t, "123456", got.Variables["otp"])
}

func TestSendCodeRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(EmailResponse{Success: true})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 2, zap.NewNop())
	require.NoError(t, c.SendCode(context.Background(), "a@x.io", "123456"))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendCodeServiceRejects(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(EmailResponse{Success: false, Message: "mailbox full"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 0, zap.NewNop())
	err := c.SendCode(context.Background(), "a@x.io", "123456")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mailbox full")
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender(zap.NewNop()).SendCode(context.Background(), "a@x.io", "123456"))
}
