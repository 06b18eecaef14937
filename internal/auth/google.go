package auth

import (
	"context"

	"github.com/pkg/errors"
	"google.golang.org/api/idtoken"
)

// ExternalProfile описывает пользователя, подтверждённого внешним поставщиком.
type ExternalProfile struct {
	Subject string
	Email   string
	Name    string
}

// ExternalVerifier проверяет токен внешнего поставщика.
type ExternalVerifier interface {
	Verify(ctx context.Context, token string) (*ExternalProfile, error)
}

type validateFunc func(ctx context.Context, token, audience string) (*idtoken.Payload, error)

// GoogleVerifier проверяет Google ID token.
type GoogleVerifier struct {
	clientID string
	validate validateFunc
}

// NewGoogleVerifier создаёт проверку токенов для указанного OAuth client id.
func NewGoogleVerifier(clientID string) *GoogleVerifier {
	return &GoogleVerifier{
		clientID: clientID,
		validate: idtoken.Validate,
	}
}

// Verify проверяет подпись, аудиторию и издателя токена и возвращает профиль пользователя.
func (g *GoogleVerifier) Verify(ctx context.Context, token string) (*ExternalProfile, error) {
	if g.clientID == "" {
		return nil, errors.New("google client id is not configured")
	}

	payload, err := g.validate(ctx, token, g.clientID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate token")
	}

	if payload.Issuer != "accounts.google.com" && payload.Issuer != "https://accounts.google.com" {
		return nil, errors.Errorf("invalid issuer: %s", payload.Issuer)
	}

	if verified, ok := payload.Claims["email_verified"].(bool); ok && !verified {
		return nil, errors.New("email not verified")
	}

	email, _ := payload.Claims["email"].(string)
	if email == "" {
		return nil, errors.New("token has no email claim")
	}
	name, _ := payload.Claims["name"].(string)

	return &ExternalProfile{
		Subject: payload.Subject,
		Email:   email,
		Name:    name,
	}, nil
}
