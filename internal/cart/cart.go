// Package cart реализует корзину покупателя.
//
// Позиции корзины объединяются по товару и набору выбранных вариантов. Корзина хранится только на клиенте.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/clientcache"
	"github.com/mmeshcher/storefront/internal/model"
)

// Product описывает товар каталога, добавляемый в корзину.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// LineKey возвращает ключ позиции: идентификатор товара и канонический JSON выбранных вариантов.
func LineKey(productID string, variants map[string]string) string {
	if variants == nil {
		variants = map[string]string{}
	}
	// encoding/json сортирует ключи map, поэтому представление не зависит от порядка вставки.
	data, _ := json.Marshal(variants)
	return productID + "-" + string(data)
}

// KeyOf возвращает ключ позиции корзины.
func KeyOf(item model.OrderItem) string {
	return LineKey(item.ProductID, item.SelectedVariants)
}

// Add добавляет товар: увеличивает количество существующей позиции или создаёт новую.
func Add(items []model.OrderItem, p Product, variants map[string]string) []model.OrderItem {
	key := LineKey(p.ID, variants)
	res := clone(items)
	for i := range res {
		if KeyOf(res[i]) == key {
			res[i].Quantity++
			return res
		}
	}

	return append(res, model.OrderItem{
		ProductID:        p.ID,
		Name:             p.Name,
		UnitPrice:        p.Price,
		Quantity:         1,
		SelectedVariants: copyVariants(variants),
	})
}

// Remove удаляет позицию по ключу.
func Remove(items []model.OrderItem, key string) []model.OrderItem {
	res := make([]model.OrderItem, 0, len(items))
	for _, it := range items {
		if KeyOf(it) != key {
			res = append(res, it)
		}
	}
	return res
}

// Adjust изменяет количество позиции на delta. Количество не опускается ниже единицы.
func Adjust(items []model.OrderItem, key string, delta int) []model.OrderItem {
	res := clone(items)
	for i := range res {
		if KeyOf(res[i]) == key {
			res[i].Quantity = max(1, res[i].Quantity+delta)
		}
	}
	return res
}

func clone(items []model.OrderItem) []model.OrderItem {
	res := make([]model.OrderItem, len(items))
	copy(res, items)
	return res
}

func copyVariants(v map[string]string) map[string]string {
	if len(v) == 0 {
		return nil
	}
	res := make(map[string]string, len(v))
	for k, val := range v {
		res[k] = val
	}
	return res
}

// Cart хранит корзину и сохраняет её в кэше клиента после каждого изменения.
type Cart struct {
	mu    sync.Mutex
	items []model.OrderItem
	cache clientcache.Cache
}

// Load восстанавливает корзину из кэша.
func Load(ctx context.Context, cache clientcache.Cache) (*Cart, error) {
	items, _, err := clientcache.Load(ctx, cache, clientcache.CartKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	return &Cart{items: items, cache: cache}, nil
}

// Items возвращает копию позиций корзины.
func (c *Cart) Items() []model.OrderItem {
	c.mu.Lock()
	defer c.mu.Unlock()
	return clone(c.items)
}

// IsEmpty сообщает, пуста ли корзина.
func (c *Cart) IsEmpty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items) == 0
}

// Total возвращает стоимость корзины.
func (c *Cart) Total() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.TotalOf(c.items)
}

// Count возвращает общее количество единиц товара.
func (c *Cart) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, it := range c.items {
		n += it.Quantity
	}
	return n
}

// Add добавляет товар в корзину.
func (c *Cart) Add(ctx context.Context, p Product, variants map[string]string) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: product id is required", model.ErrValidation)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: price must not be negative", model.ErrValidation)
	}
	return c.apply(ctx, func(items []model.OrderItem) []model.OrderItem {
		return Add(items, p, variants)
	})
}

// Remove удаляет позицию из корзины.
func (c *Cart) Remove(ctx context.Context, key string) error {
	return c.apply(ctx, func(items []model.OrderItem) []model.OrderItem {
		return Remove(items, key)
	})
}

// SetQuantity изменяет количество позиции на delta.
func (c *Cart) SetQuantity(ctx context.Context, key string, delta int) error {
	return c.apply(ctx, func(items []model.OrderItem) []model.OrderItem {
		return Adjust(items, key, delta)
	})
}

// Clear очищает корзину и удаляет её из кэша.
func (c *Cart) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = nil
	if err := clientcache.Clear(ctx, c.cache, clientcache.CartKey); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (c *Cart) apply(ctx context.Context, fn func([]model.OrderItem) []model.OrderItem) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := fn(c.items)
	if err := clientcache.Save(ctx, c.cache, clientcache.CartKey, next); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	c.items = next
	return nil
}
