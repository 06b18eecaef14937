// Package checkout реализует оформление заказа: адрес доставки, оплату и запись заказа.
package checkout

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/cart"
	"github.com/mmeshcher/storefront/internal/model"
	"github.com/mmeshcher/storefront/internal/validation"
)

// Stage описывает шаг оформления заказа.
type Stage int

const (
	StageCart Stage = iota
	StageShipping
	StagePayment
	StageCompleted
)

func (s Stage) String() string {
	switch s {
	case StageCart:
		return "cart"
	case StageShipping:
		return "shipping"
	case StagePayment:
		return "payment"
	case StageCompleted:
		return "completed"
	default:
		return fmt.Sprintf("stage(%d)", int(s))
	}
}

// Orchestrator ведёт покупателя от корзины до оформленного заказа.
type Orchestrator struct {
	cart     *cart.Cart
	writer   OrderWriter
	merchant Merchant
	logger   *zap.Logger
	now      func() time.Time
	newID    func() uuid.UUID

	mu       sync.Mutex
	stage    Stage
	userID   string
	shipping model.ShippingAddress
	placed   *WriteResult
}

// Option настраивает Orchestrator.
type Option func(*Orchestrator)

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithIDGenerator подменяет генератор идентификаторов заказа.
func WithIDGenerator(fn func() uuid.UUID) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

// New создаёт Orchestrator.
func New(c *cart.Cart, writer OrderWriter, merchant Merchant, logger *zap.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cart:     c,
		writer:   writer,
		merchant: merchant,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.New,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Stage возвращает текущий шаг.
func (o *Orchestrator) Stage() Stage {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stage
}

// Placed возвращает результат записи оформленного заказа.
func (o *Orchestrator) Placed() (*WriteResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.placed, o.placed != nil
}

// Begin начинает оформление. Пустой userID означает гостя.
func (o *Orchestrator) Begin(userID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.cart.IsEmpty() {
		return fmt.Errorf("%w: cart is empty", model.ErrValidation)
	}
	if userID == "" {
		userID = model.GuestUserID
	}

	o.userID = userID
	o.shipping = model.ShippingAddress{}
	o.placed = nil
	o.stage = StageShipping
	return nil
}

// SubmitShipping принимает адрес доставки и переводит оформление к оплате.
func (o *Orchestrator) SubmitShipping(addr model.ShippingAddress) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage != StageShipping && o.stage != StagePayment {
		return fmt.Errorf("%w: checkout is at %s stage", model.ErrValidation, o.stage)
	}
	if err := validation.ShippingAddress(addr); err != nil {
		return err
	}

	o.shipping = model.ShippingAddress{
		Name:    strings.TrimSpace(addr.Name),
		Email:   strings.TrimSpace(addr.Email),
		Phone:   strings.TrimSpace(addr.Phone),
		Address: strings.TrimSpace(addr.Address),
		City:    strings.TrimSpace(addr.City),
	}
	o.stage = StagePayment
	return nil
}

// PaymentIntent возвращает данные для оплаты через UPI на сумму корзины.
func (o *Orchestrator) PaymentIntent() (*PaymentIntent, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage != StagePayment {
		return nil, fmt.Errorf("%w: checkout is at %s stage", model.ErrValidation, o.stage)
	}
	return NewPaymentIntent(o.merchant, o.cart.Total())
}

// PlaceOrder оформляет заказ выбранным способом оплаты.
// Для UPI номер транзакции проверяется до обращения к хранилищу.
func (o *Orchestrator) PlaceOrder(ctx context.Context, method model.PaymentMethod, utr string) (*WriteResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage != StagePayment {
		return nil, fmt.Errorf("%w: checkout is at %s stage", model.ErrValidation, o.stage)
	}

	items := o.cart.Items()
	order := &model.Order{
		ID:              o.newID(),
		UserID:          o.userID,
		Items:           items,
		TotalAmount:     model.TotalOf(items),
		ShippingAddress: o.shipping,
		PaymentMethod:   method,
		Status:          model.OrderStatusPending,
		CreatedAt:       o.now().UTC(),
	}
	if method == model.PaymentUPI {
		ref := strings.TrimSpace(utr)
		order.UTRReference = &ref
	}

	if err := validation.Order(order); err != nil {
		return nil, err
	}

	res, err := o.writer.Write(ctx, order)
	if err != nil {
		o.logger.Error("failed to place order", zap.String("order_id", order.ID.String()), zap.Error(err))
		return nil, err
	}
	if res.Order == nil {
		res.Order = order
	}

	if err := o.cart.Clear(ctx); err != nil {
		o.logger.Warn("failed to clear cart after order", zap.String("order_id", order.ID.String()), zap.Error(err))
	}

	o.logger.Info("order placed",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_method", string(method)),
		zap.String("tier", string(res.Tier)),
	)

	o.placed = &res
	o.stage = StageCompleted
	return &res, nil
}

// Cancel прерывает оформление. Корзина сохраняется.
func (o *Orchestrator) Cancel() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.stage == StageCompleted {
		return
	}
	o.stage = StageCart
	o.shipping = model.ShippingAddress{}
	o.userID = ""
}
