package checkout

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mmeshcher/storefront/internal/model"
)

// Tier указывает хранилище, принявшее заказ.
type Tier string

const (
	TierPrimary  Tier = "primary"
	TierFallback Tier = "fallback"
)

// WriteResult описывает результат записи заказа.
type WriteResult struct {
	Order *model.Order
	Tier  Tier
	// PrimaryErr заполняется, если заказ принят резервным хранилищем.
	PrimaryErr error
}

// OrderWriter сохраняет оформленный заказ.
type OrderWriter interface {
	Write(ctx context.Context, order *model.Order) (WriteResult, error)
}

// OrderCreator создаёт заказ в удалённом хранилище.
type OrderCreator interface {
	CreateOrder(ctx context.Context, order *model.Order) (*model.Order, error)
}

// RemoteWriter записывает заказы через API витрины.
type RemoteWriter struct {
	creator OrderCreator
}

// NewRemoteWriter создаёт RemoteWriter.
func NewRemoteWriter(creator OrderCreator) *RemoteWriter {
	return &RemoteWriter{creator: creator}
}

func (w *RemoteWriter) Write(ctx context.Context, order *model.Order) (WriteResult, error) {
	created, err := w.creator.CreateOrder(ctx, order)
	if err != nil {
		return WriteResult{}, err
	}
	return WriteResult{Order: created, Tier: TierPrimary}, nil
}

// TieredWriter пишет заказ в основное хранилище, а при его отказе в резервное.
type TieredWriter struct {
	Primary  OrderWriter
	Fallback OrderWriter
	Logger   *zap.Logger
}

func (w *TieredWriter) Write(ctx context.Context, order *model.Order) (WriteResult, error) {
	res, err := w.Primary.Write(ctx, order)
	if err == nil {
		res.Tier = TierPrimary
		return res, nil
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) || w.Fallback == nil {
		return WriteResult{}, err
	}

	logger := w.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	res, fbErr := w.Fallback.Write(ctx, order)
	if fbErr != nil {
		logger.Error("failed to save order", zap.String("order_id", order.ID.String()),
			zap.NamedError("primary", err), zap.NamedError("fallback", fbErr))
		return WriteResult{}, fmt.Errorf("save order: %w", errors.Join(err, fbErr))
	}

	logger.Warn("primary order store unavailable, order saved locally",
		zap.String("order_id", order.ID.String()), zap.Error(err))
	res.Tier = TierFallback
	res.PrimaryErr = err
	return res, nil
}
