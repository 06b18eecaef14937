// Package session выдаёт и проверяет подписанные токены сессии.
package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mmeshcher/storefront/internal/model"
)

// TokenTTL задаёт срок действия токена сессии.
const TokenTTL = 5 * 24 * time.Hour

const issuerName = "storefront"

// Claims описывает содержимое токена сессии.
type Claims struct {
	Role model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Principal описывает владельца проверенного токена.
type Principal struct {
	IdentityID uuid.UUID
	Role       model.Role
	IssuedAt   time.Time
	ExpiresAt  time.Time
}

// IsAdmin сообщает, обладает ли владелец токена правами администратора.
func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// Issuer подписывает токены секретом сервера.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer создаёт Issuer с указанным секретом.
func NewIssuer(secret string) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("session secret must be provided")
	}
	return &Issuer{
		secret: []byte(secret),
		ttl:    TokenTTL,
		now:    time.Now,
	}, nil
}

// Issue выпускает токен для учётной записи.
func (i *Issuer) Issue(identity *model.Identity) (string, error) {
	now := i.now()
	claims := Claims{
		Role: identity.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   identity.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate проверяет подпись и срок действия токена.
func (i *Issuer) Validate(tokenString string) (*Principal, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return i.secret, nil
	},
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, model.ErrExpired
		}
		return nil, model.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, model.ErrInvalidToken
	}

	p := &Principal{
		IdentityID: id,
		Role:       claims.Role,
		ExpiresAt:  claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		p.IssuedAt = claims.IssuedAt.Time
	}
	return p, nil
}
