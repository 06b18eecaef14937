package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mmeshcher/storefront/internal/model"
)

const identityColumns = `id, name, email, password_hash, external_id, role, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*model.Identity, error) {
	var (
		u    model.Identity
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.ExternalID, &role, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	return &u, nil
}

// CreateIdentity сохраняет новую учётную запись. Уникальность адреса проверяется без учёта регистра.
func (r *PostgresRepository) CreateIdentity(ctx context.Context, identity *model.Identity) error {
	var hash []byte
	if identity.HasPassword() {
		hash = identity.PasswordHash
	}

	err := r.withRetry(ctx, func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO users (id, name, email, password_hash, external_id, role, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			identity.ID, identity.Name, identity.Email, hash, identity.ExternalID, string(identity.Role), identity.CreatedAt,
		)
		return err
	})
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok {
			if constraint == usersExternalIDKey {
				return model.ErrIdentityConflict
			}
			return fmt.Errorf("%w: %s", model.ErrDuplicateEmail, identity.Email)
		}
		return fmt.Errorf("%w: create user: %v", model.ErrStorage, err)
	}
	return nil
}

// GetIdentityByEmail возвращает учётную запись по адресу без учёта регистра.
func (r *PostgresRepository) GetIdentityByEmail(ctx context.Context, email string) (*model.Identity, error) {
	var u *model.Identity
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanIdentity(r.pool.QueryRow(ctx,
			`SELECT `+identityColumns+` FROM users WHERE lower(email) = lower($1)`,
			email,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get user: %v", model.ErrStorage, err)
	}
	return u, nil
}

// GetIdentityByID возвращает учётную запись по идентификатору.
func (r *PostgresRepository) GetIdentityByID(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	var u *model.Identity
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanIdentity(r.pool.QueryRow(ctx,
			`SELECT `+identityColumns+` FROM users WHERE id = $1`,
			id,
		))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: get user: %v", model.ErrStorage, err)
	}
	return u, nil
}

// LinkExternalID привязывает внешний идентификатор к учётной записи, у которой его ещё нет.
func (r *PostgresRepository) LinkExternalID(ctx context.Context, id uuid.UUID, externalID string) (*model.Identity, error) {
	var u *model.Identity
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		u, err = scanIdentity(r.pool.QueryRow(ctx,
			`UPDATE users SET external_id = $2
			 WHERE id = $1 AND external_id IS NULL
			 RETURNING `+identityColumns,
			id, externalID,
		))
		return err
	})
	if err == nil {
		return u, nil
	}
	if _, ok := uniqueViolation(err); ok {
		return nil, model.ErrIdentityConflict
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: link external id: %v", model.ErrStorage, err)
	}

	// Запись не обновлена: либо её нет, либо идентификатор уже привязан.
	current, err := r.GetIdentityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.ExternalID == nil || *current.ExternalID != externalID {
		return nil, model.ErrIdentityConflict
	}
	return current, nil
}

// SetRoleByEmail назначает роль учётной записи. Отсутствующие адреса пропускаются.
func (r *PostgresRepository) SetRoleByEmail(ctx context.Context, email string, role model.Role) (bool, error) {
	var affected int64
	err := r.withRetry(ctx, func(ctx context.Context) error {
		tag, err := r.pool.Exec(ctx,
			`UPDATE users SET role = $2 WHERE lower(email) = lower($1)`,
			email, string(role),
		)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("%w: set role: %v", model.ErrStorage, err)
	}
	return affected > 0, nil
}
