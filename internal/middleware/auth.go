// Package middleware содержит HTTP middleware для сервиса витрины.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/session"
)

type contextKey string

const principalKey contextKey = "principal"

// AuthHeader содержит токен сессии.
const AuthHeader = "x-auth-token"

// TokenValidator проверяет токен сессии.
type TokenValidator interface {
	Validate(token string) (*session.Principal, error)
}

// AuthMiddleware выполняет проверку аутентификации пользователя по токену в заголовке запроса.
type AuthMiddleware struct {
	tokens TokenValidator
}

// NewAuthMiddleware создаёт новый экземпляр AuthMiddleware.
func NewAuthMiddleware(tokens TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Middleware требует действительный токен и добавляет владельца сессии в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := tokenFromRequest(r)
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "no token, authorization denied")
			return
		}

		p, err := a.tokens.Validate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, tokenErrorMessage(err))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), *p)))
	})
}

// Optional пропускает запросы без токена как гостевые. Недействительный токен отклоняется.
func (a *AuthMiddleware) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if tokenFromRequest(r) == "" {
			next.ServeHTTP(w, r)
			return
		}
		a.Middleware(next).ServeHTTP(w, r)
	})
}

// RequireAdmin пропускает только администраторов. Используется после Middleware.
func (a *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := GetPrincipalFromContext(r.Context())
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "no token, authorization denied")
			return
		}
		if !p.IsAdmin() {
			writeError(w, r, http.StatusForbidden, model.ErrForbidden.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tokenFromRequest(r *http.Request) string {
	if token := strings.TrimSpace(r.Header.Get(AuthHeader)); token != "" {
		return token
	}
	if v := r.Header.Get("Authorization"); strings.HasPrefix(v, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(v, "Bearer "))
	}
	return ""
}

func tokenErrorMessage(err error) string {
	if errors.Is(err, model.ErrExpired) {
		return "token has expired"
	}
	return "token is not valid"
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"msg": msg})
}

// WithPrincipal добавляет владельца сессии в контекст.
func WithPrincipal(ctx context.Context, p session.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// GetPrincipalFromContext извлекает владельца сессии из контекста запроса.
func GetPrincipalFromContext(ctx context.Context) (session.Principal, bool) {
	p, ok := ctx.Value(principalKey).(session.Principal)
	return p, ok
}
