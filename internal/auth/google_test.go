package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/idtoken"
)

func TestGoogleVerifier(t *testing.T) {
	tests := []struct {
		name    string
		payload *idtoken.Payload
		err     error
		wantErr bool
	}{
		{
			name: "valid token",
			payload: &idtoken.Payload{
				Issuer:  "https://accounts.google.com",
				Subject: "sub-1",
				Claims: map[string]interface{}{
					"email":          "a@x.io",
					"email_verified": true,
					"name":           "Asha",
				},
			},
		},
		{
			name: "foreign issuer",
			payload: &idtoken.Payload{
				Issuer:  "https://evil.example.com",
				Subject: "sub-1",
				Claims:  map[string]interface{}{"email": "a@x.io"},
			},
			wantErr: true,
		},
		{
			name: "unverified email",
			payload: &idtoken.Payload{
				Issuer:  "accounts.google.com",
				Subject: "sub-1",
				Claims:  map[string]interface{}{"email": "a@x.io", "email_verified": false},
			},
			wantErr: true,
		},
		{
			name:    "validation error",
			err:     errors.New("token expired"),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewGoogleVerifier("client-id")
			v.validate = func(_ context.Context, _, audience string) (*idtoken.Payload, error) {
				assert.Equal(t, "client-id", audience)
				return tt.payload, tt.err
			}

			profile, err := v.Verify(context.Background(), "token")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "sub-1", profile.Subject)
			assert.Equal(t, "a@x.io", profile.Email)
			assert.Equal(t, "Asha", profile.Name)
		})
	}
}

func TestGoogleVerifierRequiresClientID(t *testing.T) {
	_, err := NewGoogleVerifier("").Verify(context.Background(), "token")
	assert.Error(t, err)
}
