// Package auth реализует способы входа пользователя и хранилище учётных данных.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/validation"
)

const (
	// MinPasswordLength задаёт минимальную длину пароля при регистрации.
	MinPasswordLength = 6
	// MaxPasswordLength задаёт предел bcrypt для длины пароля в байтах.
	MaxPasswordLength = 72
)

// IdentityRepository описывает хранилище учётных записей.
type IdentityRepository interface {
	CreateIdentity(ctx context.Context, identity *model.Identity) error
	GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error)
	LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) (*model.Identity, error)
}

// Hasher вычисляет и проверяет хэши паролей.
type Hasher interface {
	Hash(password string) ([]byte, error)
	Check(password string, hash []byte) bool
}

// CredentialStore управляет учётными записями и проверкой паролей.
type CredentialStore struct {
	repo   IdentityRepository
	hasher Hasher
	now    func() time.Time
}

// NewCredentialStore создаёт хранилище учётных данных.
func NewCredentialStore(repo IdentityRepository, hasher Hasher) *CredentialStore {
	return &CredentialStore{
		repo:   repo,
		hasher: hasher,
		now:    time.Now,
	}
}

// Register создаёт учётную запись с паролем.
func (c *CredentialStore) Register(ctx context.Context, name, email, password string) (*model.Identity, error) {
	name = strings.TrimSpace(name)
	email = model.NormalizeEmail(email)

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	case !validation.IsValidEmail(email):
		return nil, fmt.Errorf("%w: email must be a valid email address", model.ErrValidation)
	case len(password) < MinPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", model.ErrValidation, MinPasswordLength)
	case len(password) > MaxPasswordLength:
		return nil, fmt.Errorf("%w: password must be at most %d bytes", model.ErrValidation, MaxPasswordLength)
	}

	hash, err := c.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	identity := &model.Identity{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    c.now(),
	}
	if err := c.repo.CreateIdentity(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// VerifyPassword проверяет пару адрес/пароль.
func (c *CredentialStore) VerifyPassword(ctx context.Context, email, password string) (*model.Identity, error) {
	identity, err := c.repo.GetIdentityByEmail(ctx, model.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil, model.ErrInvalidCredentials
		}
		return nil, err
	}

	if !identity.HasPassword() {
		return nil, fmt.Errorf("%w: account uses another sign-in method", model.ErrInvalidCredentials)
	}

	if !c.hasher.Check(password, identity.PasswordHash) {
		return nil, model.ErrInvalidCredentials
	}
	return identity, nil
}

// UpsertExternalIdentity находит учётную запись по адресу и привязывает внешний идентификатор
// либо создаёт новую запись без пароля.
func (c *CredentialStore) UpsertExternalIdentity(ctx context.Context, name, email, externalID string) (*model.Identity, error) {
	email = model.NormalizeEmail(email)
	if email == "" || externalID == "" {
		return nil, fmt.Errorf("%w: email and external id are required", model.ErrValidation)
	}

	identity, err := c.repo.GetIdentityByEmail(ctx, email)
	switch {
	case err == nil:
		return c.link(ctx, identity, externalID)
	case !errors.Is(err, model.ErrNotFound):
		return nil, err
	}

	ext := externalID
	identity = &model.Identity{
		ID:         uuid.New(),
		Name:       displayName(name, email),
		Email:      email,
		ExternalID: &ext,
		Role:       model.RoleUser,
		CreatedAt:  c.now(),
	}

	err = c.repo.CreateIdentity(ctx, identity)
	if errors.Is(err, model.ErrDuplicateEmail) {
		// Параллельный вход создал запись раньше нас.
		existing, getErr := c.repo.GetIdentityByEmail(ctx, email)
		if getErr != nil {
			return nil, getErr
		}
		return c.link(ctx, existing, externalID)
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

func (c *CredentialStore) link(ctx context.Context, identity *model.Identity, externalID string) (*model.Identity, error) {
	if identity.ExternalID != nil {
		if *identity.ExternalID != externalID {
			return nil, model.ErrIdentityConflict
		}
		return identity, nil
	}
	return c.repo.LinkExternalID(ctx, identity.ID, externalID)
}

// ResolveByEmail возвращает учётную запись по подтверждённому адресу или создаёт её, если указано имя.
func (c *CredentialStore) ResolveByEmail(ctx context.Context, email, name string) (*model.Identity, error) {
	email = model.NormalizeEmail(email)

	identity, err := c.repo.GetIdentityByEmail(ctx, email)
	if err == nil {
		return identity, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, model.ErrNameRequired
	}

	identity = &model.Identity{
		ID:        uuid.New(),
		Name:      name,
		Email:     email,
		Role:      model.RoleUser,
		CreatedAt: c.now(),
	}

	err = c.repo.CreateIdentity(ctx, identity)
	if errors.Is(err, model.ErrDuplicateEmail) {
		return c.repo.GetIdentityByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return identity, nil
}

// Identity возвращает учётную запись по идентификатору.
func (c *CredentialStore) Identity(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	return c.repo.GetIdentityByID(ctx, id)
}

func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
