// Package model содержит доменные сущности витрины: пользователей, заказы и позиции заказа.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GuestUserID записывается в заказ, оформленный без аутентификации.
const GuestUserID = "guest"

// Role описывает уровень доступа пользователя.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity представляет учётную запись покупателя.
type Identity struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	ExternalID   *string   `json:"externalId,omitempty"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasPassword сообщает, может ли пользователь входить по паролю.
func (i *Identity) HasPassword() bool {
	return len(i.PasswordHash) > 0
}

// IsAdmin сообщает, обладает ли пользователь повышенными правами.
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// NormalizeEmail приводит адрес к каноническому виду для сравнения без учёта регистра.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// OneTimeCode описывает выданный одноразовый код подтверждения адреса.
type OneTimeCode struct {
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PaymentMethod описывает способ оплаты заказа.
type PaymentMethod string

const (
	PaymentUPI PaymentMethod = "UPI"
	PaymentCOD PaymentMethod = "COD"
)

// Valid сообщает, поддерживается ли способ оплаты.
func (p PaymentMethod) Valid() bool {
	return p == PaymentUPI || p == PaymentCOD
}

// OrderStatus описывает стадию выполнения заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusConfirmed OrderStatus = "Confirmed"
	OrderStatusShipped   OrderStatus = "Shipped"
)

// ShippingAddress содержит контактные данные и адрес доставки.
type ShippingAddress struct {
	Name    string `json:"name" validate:"required"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"required"`
	Address string `json:"address" validate:"required"`
	City    string `json:"city" validate:"required"`
}

// OrderItem описывает позицию заказа с зафиксированной на момент оформления ценой.
type OrderItem struct {
	ProductID        string            `json:"productId" validate:"required"`
	Name             string            `json:"name" validate:"required"`
	UnitPrice        decimal.Decimal   `json:"unitPrice"`
	Quantity         int               `json:"quantity" validate:"min=1"`
	SelectedVariants map[string]string `json:"selectedVariants,omitempty"`
}

// Subtotal возвращает стоимость позиции.
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order описывает оформленный заказ.
type Order struct {
	ID              uuid.UUID       `json:"id"`
	UserID          string          `json:"userId"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	PaymentMethod   PaymentMethod   `json:"paymentMethod"`
	UTRReference    *string         `json:"utrReference,omitempty"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// IsGuest сообщает, оформлен ли заказ без аутентификации.
func (o *Order) IsGuest() bool {
	return o.UserID == GuestUserID
}

// TotalOf суммирует стоимость позиций.
func TotalOf(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}
