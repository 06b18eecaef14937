package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mmeshcher/storefront/internal/model"
)

// BcryptHasher хэширует пароли алгоритмом bcrypt с солью.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher создаёт BcryptHasher. Нулевая стоимость заменяется стоимостью по умолчанию.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash возвращает хэш пароля. Слишком длинный пароль считается ошибкой ввода.
func (h *BcryptHasher) Hash(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	return hash, err
}

// Check сравнивает пароль с хэшем.
func (h *BcryptHasher) Check(password string, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
