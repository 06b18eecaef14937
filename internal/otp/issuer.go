// Package otp реализует выдачу и проверку одноразовых кодов подтверждения адреса.
package otp

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

const (
	// CodeTTL задаёт время жизни кода.
	CodeTTL = 5 * time.Minute
	// ResendInterval задаёт минимальный интервал между выдачами кода на один адрес.
	ResendInterval = 60 * time.Second

	codeDigits = 6
	keyPrefix  = "otp:"
)

// CodeSender доставляет код пользователю.
type CodeSender interface {
	SendCode(ctx context.Context, email, code string) error
}

// Issuer выдаёт и проверяет одноразовые коды.
type Issuer struct {
	store    Store
	sender   CodeSender
	logger   *zap.Logger
	locks    *keyedMutex
	now      func() time.Time
	generate func() (string, error)
}

// Option настраивает Issuer.
type Option func(*Issuer)

// WithClock подменяет источник текущего времени.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// WithGenerator подменяет генератор кодов.
func WithGenerator(gen func() (string, error)) Option {
	return func(i *Issuer) { i.generate = gen }
}

// NewIssuer создаёт Issuer. Если sender равен nil, коды только записываются в журнал.
func NewIssuer(store Store, sender CodeSender, logger *zap.Logger, opts ...Option) *Issuer {
	if logger == nil {
		logger = zap.NewNop()
	}

	i := &Issuer{
		store:    store,
		sender:   sender,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      time.Now,
		generate: randomCode,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue выдаёт новый код для адреса, заменяя предыдущий.
func (i *Issuer) Issue(ctx context.Context, email string) (*model.OneTimeCode, error) {
	email = model.NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", model.ErrValidation)
	}

	otc, err := i.save(ctx, email)
	if err != nil {
		return nil, err
	}

	i.deliver(ctx, otc)

	return otc, nil
}

// save выдаёт код и сохраняет его под блокировкой адреса. Доставка выполняется после снятия блокировки.
func (i *Issuer) save(ctx context.Context, email string) (*model.OneTimeCode, error) {
	unlock := i.locks.lock(email)
	defer unlock()

	now := i.now()

	prev, err := i.load(ctx, email)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, err
	}
	if prev != nil && now.Sub(prev.IssuedAt) < ResendInterval {
		return nil, model.ErrRateLimited
	}

	code, err := i.generate()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	otc := &model.OneTimeCode{
		Email:     email,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(CodeTTL),
	}

	data, err := json.Marshal(otc)
	if err != nil {
		return nil, fmt.Errorf("marshal code: %w", err)
	}

	// Запись хранится без срока жизни: просрочку определяет Verify, он же удаляет запись.
	if err := i.store.Put(ctx, keyPrefix+email, data, 0); err != nil {
		return nil, fmt.Errorf("%w: store code: %v", model.ErrStorage, err)
	}

	return otc, nil
}

func (i *Issuer) deliver(ctx context.Context, otc *model.OneTimeCode) {
	if i.sender == nil {
		i.logger.Warn("otp sender not configured",
			zap.String("email", otc.Email),
			zap.String("code", otc.Code),
		)
		return
	}

	if err := i.sender.SendCode(ctx, otc.Email, otc.Code); err != nil {
		i.logger.Warn("otp delivery failed",
			zap.String("email", otc.Email),
			zap.String("code", otc.Code),
			zap.Error(err),
		)
	}
}

// Verify проверяет код и при совпадении погашает его.
func (i *Issuer) Verify(ctx context.Context, email, code string) error {
	email = model.NormalizeEmail(email)

	unlock := i.locks.lock(email)
	defer unlock()

	otc, err := i.load(ctx, email)
	if err != nil {
		return err
	}

	if i.now().After(otc.ExpiresAt) {
		if err := i.store.Delete(ctx, keyPrefix+email); err != nil {
			i.logger.Error("delete expired code error", zap.String("email", email), zap.Error(err))
		}
		return model.ErrExpired
	}

	if otc.Code != code {
		return model.ErrMismatch
	}

	if err := i.store.Delete(ctx, keyPrefix+email); err != nil {
		return fmt.Errorf("%w: delete code: %v", model.ErrStorage, err)
	}

	return nil
}

func (i *Issuer) load(ctx context.Context, email string) (*model.OneTimeCode, error) {
	data, err := i.store.Get(ctx, keyPrefix+email)
	if err != nil {
		if errors.Is(err, ErrNoEntry) {
			return nil, model.ErrNotFound
		}
		return nil, fmt.Errorf("%w: load code: %v", model.ErrStorage, err)
	}

	var otc model.OneTimeCode
	if err := json.Unmarshal(data, &otc); err != nil {
		return nil, fmt.Errorf("%w: decode code: %v", model.ErrStorage, err)
	}
	return &otc, nil
}

func randomCode() (string, error) {
	limit := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
