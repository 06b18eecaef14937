package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mmeshcher/storefront/internal/clientcache"
	"github.com/mmeshcher/storefront/internal/model"
)

// FallbackQueue хранит заказы, не принятые основным хранилищем, в кэше клиента.
type FallbackQueue struct {
	mu    sync.Mutex
	cache clientcache.Cache
}

// NewFallbackQueue создаёт очередь поверх кэша клиента.
func NewFallbackQueue(cache clientcache.Cache) *FallbackQueue {
	return &FallbackQueue{cache: cache}
}

// Write добавляет заказ в очередь. Заказ с уже известным идентификатором заменяется.
func (q *FallbackQueue) Write(ctx context.Context, order *model.Order) (WriteResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders, _, err := clientcache.Load(ctx, q.cache, clientcache.OrdersKey)
	if err != nil {
		return WriteResult{}, fmt.Errorf("load queued orders: %w", err)
	}

	replaced := false
	for i := range orders {
		if orders[i].ID == order.ID {
			orders[i] = *order
			replaced = true
		}
	}
	if !replaced {
		orders = append(orders, *order)
	}

	if err := clientcache.Save(ctx, q.cache, clientcache.OrdersKey, orders); err != nil {
		return WriteResult{}, fmt.Errorf("save queued orders: %w", err)
	}

	stored := *order
	return WriteResult{Order: &stored, Tier: TierFallback}, nil
}

// Pending возвращает заказы, ожидающие отправки.
func (q *FallbackQueue) Pending(ctx context.Context) ([]model.Order, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders, _, err := clientcache.Load(ctx, q.cache, clientcache.OrdersKey)
	if err != nil {
		return nil, fmt.Errorf("load queued orders: %w", err)
	}
	return orders, nil
}

// Reconcile повторно отправляет заказы из очереди и удаляет принятые.
// Возвращает число принятых заказов; отклонённые остаются в очереди.
func (q *FallbackQueue) Reconcile(ctx context.Context, creator OrderCreator) (int, error) {
	pending, err := q.Pending(ctx)
	if err != nil {
		return 0, err
	}

	accepted := make(map[uuid.UUID]struct{}, len(pending))
	var errs []error
	for i := range pending {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		if _, err := creator.CreateOrder(ctx, &pending[i]); err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", pending[i].ID, err))
			continue
		}
		accepted[pending[i].ID] = struct{}{}
	}

	if len(accepted) > 0 {
		if err := q.drop(ctx, accepted); err != nil {
			errs = append(errs, err)
		}
	}

	return len(accepted), errors.Join(errs...)
}

func (q *FallbackQueue) drop(ctx context.Context, ids map[uuid.UUID]struct{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	orders, _, err := clientcache.Load(ctx, q.cache, clientcache.OrdersKey)
	if err != nil {
		return fmt.Errorf("load queued orders: %w", err)
	}

	rest := orders[:0]
	for _, o := range orders {
		if _, ok := ids[o.ID]; !ok {
			rest = append(rest, o)
		}
	}

	if len(rest) == 0 {
		err = clientcache.Clear(ctx, q.cache, clientcache.OrdersKey)
	} else {
		err = clientcache.Save(ctx, q.cache, clientcache.OrdersKey, rest)
	}
	if err != nil {
		return fmt.Errorf("save queued orders: %w", err)
	}
	return nil
}
