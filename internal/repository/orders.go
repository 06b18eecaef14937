package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/mmeshcher/storefront/internal/model"
)

// ErrOrderIDTaken возвращается, если идентификатор заказа уже занят заказом другого пользователя.
var ErrOrderIDTaken = errors.New("order id already used by another user")

const orderColumns = `id, user_id, total_amount::text, ship_name, ship_email, ship_phone, ship_address, ship_city,
	payment_method, utr_reference, status, created_at`

// CreateOrder сохраняет заказ вместе с позициями в одной транзакции.
// Повторная запись заказа того же пользователя с тем же идентификатором не меняет данные и возвращает existed = true.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *model.Order) (bool, error) {
	var existed bool
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		existed, err = r.createOrderTx(ctx, order)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrOrderIDTaken) {
			return false, err
		}
		return false, fmt.Errorf("%w: create order: %v", model.ErrStorage, err)
	}
	return existed, nil
}

func (r *PostgresRepository) createOrderTx(ctx context.Context, order *model.Order) (bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	addr := order.ShippingAddress
	cmdTag, err := tx.Exec(ctx,
		`INSERT INTO orders (id, user_id, total_amount, ship_name, ship_email, ship_phone, ship_address, ship_city,
		                     payment_method, utr_reference, status, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (id) DO NOTHING`,
		order.ID, order.UserID, order.TotalAmount.String(),
		addr.Name, addr.Email, addr.Phone, addr.Address, addr.City,
		string(order.PaymentMethod), order.UTRReference, string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert order: %w", err)
	}

	if cmdTag.RowsAffected() == 0 {
		var owner string
		if err := tx.QueryRow(ctx, `SELECT user_id FROM orders WHERE id = $1`, order.ID).Scan(&owner); err != nil {
			return false, fmt.Errorf("select existing order: %w", err)
		}
		if owner != order.UserID {
			return false, ErrOrderIDTaken
		}
		return true, nil
	}

	batch := &pgx.Batch{}
	for i, it := range order.Items {
		variants, err := json.Marshal(variantsOrEmpty(it.SelectedVariants))
		if err != nil {
			return false, fmt.Errorf("marshal variants: %w", err)
		}
		batch.Queue(
			`INSERT INTO order_items (order_id, position, product_id, name, unit_price, quantity, selected_variants)
			 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7::jsonb)`,
			order.ID, i, it.ProductID, it.Name, it.UnitPrice.String(), it.Quantity, string(variants),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return false, fmt.Errorf("insert order items: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}

	return false, nil
}

func variantsOrEmpty(v map[string]string) map[string]string {
	if v == nil {
		return map[string]string{}
	}
	return v
}

// GetOrder возвращает заказ по идентификатору.
func (r *PostgresRepository) GetOrder(ctx context.Context, id uuid.UUID) (*model.Order, error) {
	orders, err := r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, model.ErrNotFound
	}
	return &orders[0], nil
}

// ListOrdersByUser возвращает заказы пользователя, начиная с самых новых.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID string) ([]model.Order, error) {
	return r.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`,
		userID,
	)
}

// ListAllOrders возвращает все заказы, начиная с самых новых.
func (r *PostgresRepository) ListAllOrders(ctx context.Context) ([]model.Order, error) {
	return r.queryOrders(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (r *PostgresRepository) queryOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	var orders []model.Order
	err := r.withRetry(ctx, func(ctx context.Context) error {
		var err error
		orders, err = r.loadOrders(ctx, sql, args...)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: select orders: %v", model.ErrStorage, err)
	}
	return orders, nil
}

func (r *PostgresRepository) loadOrders(ctx context.Context, sql string, args ...any) ([]model.Order, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	orders := make([]model.Order, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]string, 0)

	for rows.Next() {
		var (
			o             model.Order
			total         string
			paymentMethod string
			status        string
			createdAt     time.Time
		)
		if err := rows.Scan(&o.ID, &o.UserID, &total,
			&o.ShippingAddress.Name, &o.ShippingAddress.Email, &o.ShippingAddress.Phone,
			&o.ShippingAddress.Address, &o.ShippingAddress.City,
			&paymentMethod, &o.UTRReference, &status, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total: %w", err)
		}
		o.PaymentMethod = model.PaymentMethod(paymentMethod)
		o.Status = model.OrderStatus(status)
		o.CreatedAt = createdAt
		o.Items = []model.OrderItem{}

		index[o.ID] = len(orders)
		ids = append(ids, o.ID.String())
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(ids) == 0 {
		return orders, nil
	}

	itemRows, err := r.pool.Query(ctx,
		`SELECT order_id, product_id, name, unit_price::text, quantity, selected_variants
		 FROM order_items
		 WHERE order_id = ANY($1::uuid[])
		 ORDER BY order_id, position`,
		ids,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer itemRows.Close()

	for itemRows.Next() {
		var (
			orderID  uuid.UUID
			it       model.OrderItem
			price    string
			variants []byte
		)
		if err := itemRows.Scan(&orderID, &it.ProductID, &it.Name, &price, &it.Quantity, &variants); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if it.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		if len(variants) > 0 {
			if err := json.Unmarshal(variants, &it.SelectedVariants); err != nil {
				return nil, fmt.Errorf("decode variants: %w", err)
			}
			if len(it.SelectedVariants) == 0 {
				it.SelectedVariants = nil
			}
		}

		i, ok := index[orderID]
		if !ok {
			continue
		}
		orders[i].Items = append(orders[i].Items, it)
	}
	if err := itemRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}
