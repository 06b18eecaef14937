// Package clientcache хранит состояние клиента между запусками: корзину, сессию, тему и отложенные заказы.
package clientcache

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/gcerrors"

	"github.com/mmeshcher/storefront/internal/model"
)

// Prefix добавляется ко всем ключам кэша.
const Prefix = "ala_"

// Cache описывает хранилище клиента с явными операциями чтения, записи и удаления.
type Cache interface {
	Load(ctx context.Context, name string, dst any) (bool, error)
	Save(ctx context.Context, name string, v any) error
	Clear(ctx context.Context, name string) error
}

// Key описывает типизированный ключ кэша.
type Key[T any] struct {
	name string
}

// Name возвращает имя ключа без префикса.
func (k Key[T]) Name() string { return k.name }

// CurrentUser хранит снимок сессии текущего пользователя.
type CurrentUser struct {
	Token    string         `json:"token"`
	Identity model.Identity `json:"user"`
}

// Ключи кэша клиента.
var (
	ThemeKey       = Key[string]{name: "theme"}
	CartKey        = Key[[]model.OrderItem]{name: "cart"}
	CurrentUserKey = Key[CurrentUser]{name: "current_user"}
	OrdersKey      = Key[[]model.Order]{name: "orders"}
)

// Load читает значение по ключу. Второй результат равен false, если значения нет.
func Load[T any](ctx context.Context, c Cache, k Key[T]) (T, bool, error) {
	var v T
	ok, err := c.Load(ctx, k.name, &v)
	return v, ok, err
}

// Save записывает значение по ключу.
func Save[T any](ctx context.Context, c Cache, k Key[T], v T) error {
	return c.Save(ctx, k.name, v)
}

// Clear удаляет значение по ключу.
func Clear[T any](ctx context.Context, c Cache, k Key[T]) error {
	return c.Clear(ctx, k.name)
}

// BlobCache хранит значения в виде JSON-объектов в blob-хранилище.
type BlobCache struct {
	bucket *blob.Bucket
}

// NewBlobCache создаёт кэш поверх открытого bucket.
func NewBlobCache(bucket *blob.Bucket) *BlobCache {
	return &BlobCache{bucket: bucket}
}

// OpenDir открывает кэш в локальном каталоге, создавая его при необходимости.
func OpenDir(dir string) (*BlobCache, error) {
	bucket, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
	if err != nil {
		return nil, fmt.Errorf("open cache dir: %w", err)
	}
	return NewBlobCache(bucket), nil
}

// Load реализует Cache.
func (c *BlobCache) Load(ctx context.Context, name string, dst any) (bool, error) {
	data, err := c.bucket.ReadAll(ctx, Prefix+name)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", name, err)
	}
	return true, nil
}

// Save реализует Cache.
func (c *BlobCache) Save(ctx context.Context, name string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}

	if err := c.bucket.WriteAll(ctx, Prefix+name, data, &blob.WriterOptions{ContentType: "application/json"}); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Clear реализует Cache.
func (c *BlobCache) Clear(ctx context.Context, name string) error {
	err := c.bucket.Delete(ctx, Prefix+name)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return fmt.Errorf("delete %s: %w", name, err)
	}
	return nil
}

// Close закрывает bucket.
func (c *BlobCache) Close() error {
	return c.bucket.Close()
}
