// Package validation содержит функции валидации входных данных.
package validation

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

const (
	// MinUTRLength задаёт минимальную длину номера транзакции UPI в символах.
	MinUTRLength = 8
	// MoneyPlaces задаёт число знаков после запятой в денежных суммах.
	MoneyPlaces = 2
	// MaxQuantity ограничивает количество единиц в позиции.
	MaxQuantity = math.MaxInt32
)

// MaxAmount ограничивает денежные суммы сверху (не включительно), как столбцы NUMERIC(12, 2).
var MaxAmount = decimal.New(1, 10)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Struct проверяет структуру по тегам `validate` и возвращает ошибку, обёрнутую в model.ErrValidation.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, describe(fe))
	}

	return fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters long", field, fe.Param())
	case "numeric":
		return field + " must contain only digits"
	default:
		return field + " is invalid"
	}
}

// IsValidEmail проверяет формат адреса электронной почты.
func IsValidEmail(email string) bool {
	return validate.Var(email, "required,email") == nil
}

// IsValidUTR проверяет, что номер транзакции UPI достаточной длины.
func IsValidUTR(ref string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(ref)) >= MinUTRLength
}

// ShippingAddress проверяет, что все поля адреса доставки заполнены.
func ShippingAddress(addr model.ShippingAddress) error {
	addr.Name = strings.TrimSpace(addr.Name)
	addr.Email = strings.TrimSpace(addr.Email)
	addr.Phone = strings.TrimSpace(addr.Phone)
	addr.Address = strings.TrimSpace(addr.Address)
	addr.City = strings.TrimSpace(addr.City)
	return Struct(addr)
}

// Order проверяет состав заказа, адрес доставки, способ оплаты и итоговую сумму.
func Order(o *model.Order) error {
	if len(o.Items) == 0 {
		return fmt.Errorf("%w: cart is empty", model.ErrValidation)
	}

	for _, it := range o.Items {
		if err := Struct(it); err != nil {
			return err
		}
		if it.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: unitprice must not be negative", model.ErrValidation)
		}
		if err := Amount("unitprice", it.UnitPrice); err != nil {
			return err
		}
		if it.Quantity > MaxQuantity {
			return fmt.Errorf("%w: quantity must be at most %d", model.ErrValidation, MaxQuantity)
		}
	}

	if err := ShippingAddress(o.ShippingAddress); err != nil {
		return err
	}

	switch o.PaymentMethod {
	case model.PaymentUPI:
		if o.UTRReference == nil || !IsValidUTR(*o.UTRReference) {
			return model.ErrInvalidReference
		}
	case model.PaymentCOD:
		if o.UTRReference != nil {
			return fmt.Errorf("%w: utr reference is only accepted for UPI payments", model.ErrValidation)
		}
	default:
		return fmt.Errorf("%w: payment method must be UPI or COD", model.ErrValidation)
	}

	if err := Amount("totalamount", o.TotalAmount); err != nil {
		return err
	}
	if !o.TotalAmount.Equal(model.TotalOf(o.Items)) {
		return fmt.Errorf("%w: total amount does not match items", model.ErrValidation)
	}

	return nil
}

// Amount проверяет, что сумма укладывается в MaxAmount и имеет не более MoneyPlaces знаков после запятой.
func Amount(field string, v decimal.Decimal) error {
	if !v.Equal(v.Round(MoneyPlaces)) {
		return fmt.Errorf("%w: %s must have at most %d decimal places", model.ErrValidation, field, MoneyPlaces)
	}
	if v.Abs().GreaterThanOrEqual(MaxAmount) {
		return fmt.Errorf("%w: %s is too large", model.ErrValidation, field)
	}
	return nil
}
