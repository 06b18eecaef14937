package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmeshcher/storefront/internal/model"
)

// Method обозначает способ входа.
type Method string

const (
	MethodPassword    Method = "password"
	MethodFederated   Method = "federated"
	MethodOneTimeCode Method = "otp"
)

// Credentials описывает данные для входа одним из поддерживаемых способов.
type Credentials interface {
	Method() Method
}

// PasswordCredentials содержат адрес и пароль.
type PasswordCredentials struct {
	Email    string
	Password string
}

// Method реализует Credentials.
func (PasswordCredentials) Method() Method { return MethodPassword }

// FederatedCredentials содержат токен внешнего поставщика.
type FederatedCredentials struct {
	Token string
}

// Method реализует Credentials.
func (FederatedCredentials) Method() Method { return MethodFederated }

// OneTimeCodeCredentials содержат адрес, код и имя для новой учётной записи.
type OneTimeCodeCredentials struct {
	Email string
	Code  string
	Name  string
}

// Method реализует Credentials.
func (OneTimeCodeCredentials) Method() Method { return MethodOneTimeCode }

// Authenticator проверяет учётные данные и возвращает учётную запись.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (*model.Identity, error)
}

// CodeVerifier погашает одноразовый код.
type CodeVerifier interface {
	Verify(ctx context.Context, email, code string) error
}

// PasswordAuthenticator выполняет вход по паролю.
type PasswordAuthenticator struct {
	store *CredentialStore
}

// NewPasswordAuthenticator создаёт PasswordAuthenticator.
func NewPasswordAuthenticator(store *CredentialStore) *PasswordAuthenticator {
	return &PasswordAuthenticator{store: store}
}

// Authenticate реализует Authenticator.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*model.Identity, error) {
	c, ok := creds.(PasswordCredentials)
	if !ok {
		return nil, unsupported(creds)
	}
	if strings.TrimSpace(c.Email) == "" || c.Password == "" {
		return nil, fmt.Errorf("%w: email and password are required", model.ErrValidation)
	}
	return a.store.VerifyPassword(ctx, c.Email, c.Password)
}

// FederatedAuthenticator выполняет вход через внешнего поставщика.
type FederatedAuthenticator struct {
	store    *CredentialStore
	verifier ExternalVerifier
}

// NewFederatedAuthenticator создаёт FederatedAuthenticator.
func NewFederatedAuthenticator(store *CredentialStore, verifier ExternalVerifier) *FederatedAuthenticator {
	return &FederatedAuthenticator{store: store, verifier: verifier}
}

// Authenticate реализует Authenticator.
func (a *FederatedAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*model.Identity, error) {
	c, ok := creds.(FederatedCredentials)
	if !ok {
		return nil, unsupported(creds)
	}
	if c.Token == "" {
		return nil, fmt.Errorf("%w: token is required", model.ErrValidation)
	}

	profile, err := a.verifier.Verify(ctx, c.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidCredentials, err)
	}

	return a.store.UpsertExternalIdentity(ctx, profile.Name, profile.Email, profile.Subject)
}

// OneTimeCodeAuthenticator выполняет вход по одноразовому коду.
type OneTimeCodeAuthenticator struct {
	store *CredentialStore
	codes CodeVerifier
}

// NewOneTimeCodeAuthenticator создаёт OneTimeCodeAuthenticator.
func NewOneTimeCodeAuthenticator(store *CredentialStore, codes CodeVerifier) *OneTimeCodeAuthenticator {
	return &OneTimeCodeAuthenticator{store: store, codes: codes}
}

// Authenticate реализует Authenticator. Код погашается до разрешения учётной записи.
func (a *OneTimeCodeAuthenticator) Authenticate(ctx context.Context, creds Credentials) (*model.Identity, error) {
	c, ok := creds.(OneTimeCodeCredentials)
	if !ok {
		return nil, unsupported(creds)
	}
	if strings.TrimSpace(c.Email) == "" || c.Code == "" {
		return nil, fmt.Errorf("%w: email and code are required", model.ErrValidation)
	}

	if err := a.codes.Verify(ctx, c.Email, c.Code); err != nil {
		return nil, err
	}

	return a.store.ResolveByEmail(ctx, c.Email, c.Name)
}

// Dispatcher выбирает Authenticator по способу входа.
type Dispatcher struct {
	methods map[Method]Authenticator
}

// NewDispatcher создаёт Dispatcher для переданных способов входа.
func NewDispatcher(methods map[Method]Authenticator) *Dispatcher {
	return &Dispatcher{methods: methods}
}

// Authenticate реализует Authenticator.
func (d *Dispatcher) Authenticate(ctx context.Context, creds Credentials) (*model.Identity, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: credentials are required", model.ErrValidation)
	}
	a, ok := d.methods[creds.Method()]
	if !ok {
		return nil, unsupported(creds)
	}
	return a.Authenticate(ctx, creds)
}

func unsupported(creds Credentials) error {
	if creds == nil {
		return fmt.Errorf("%w: credentials are required", model.ErrValidation)
	}
	return fmt.Errorf("%w: unsupported sign-in method %q", model.ErrValidation, creds.Method())
}
