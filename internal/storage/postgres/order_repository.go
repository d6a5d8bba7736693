package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	insertOrderSQL = `
		INSERT INTO orders (id, customer_id, created_at, updated_at)
		VALUES ($1, $2, $3, $3)`

	insertOrderItemSQL = `
		INSERT INTO order_items (id, order_id, position, product_id, qty, price_minor, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	orderColumns = `id, customer_id, created_at, updated_at`

	selectOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	selectCustomerOrdersSQL = `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE customer_id = $1
		ORDER BY created_at DESC, id DESC`

	// Позиции нескольких заказов читаются одним запросом.
	selectOrderItemsSQL = `
		SELECT id, order_id, product_id, qty, price_minor, created_at
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position`
)

type orderRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewOrderRepository создаёт PostgreSQL-реализацию OrderRepository.
func NewOrderRepository(store *Store) domain.OrderRepository {
	return &orderRepository{
		db:  store.DB(),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Create сохраняет заказ и его позиции в одной транзакции.
// Позиции хранят номер в заказе, чтобы чтение возвращало исходный порядок.
func (r *orderRepository) Create(ctx context.Context, order domain.NewOrder) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := r.now()
	created := domain.Order{
		ID:         uuid.NewString(),
		CustomerID: order.CustomerID,
		Items:      make([]domain.OrderItem, len(order.Items)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, item := range order.Items {
		created.Items[i] = domain.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    created.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now,
		}
	}

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertOrderSQL, created.ID, created.CustomerID, now); err != nil {
			return fmt.Errorf("insert order %s: %w", created.ID, err)
		}
		for position, item := range created.Items {
			_, err := tx.ExecContext(ctx, insertOrderItemSQL,
				item.ID, item.OrderID, position, item.ProductID, item.Qty, item.PriceMinor, item.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert item %d of order %s: %w", position, created.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return created, nil
}

func (r *orderRepository) Get(ctx context.Context, id string) (domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrderSQL, id))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.Order{}, domain.ErrOrderNotFound
	case err != nil:
		return domain.Order{}, fmt.Errorf("select order %s: %w", id, err)
	}

	orders := []domain.Order{order}
	if err := r.attachItems(ctx, orders); err != nil {
		return domain.Order{}, err
	}
	return orders[0], nil
}

// ListByCustomer возвращает заказы клиента от новых к старым; limit <= 0 снимает ограничение.
func (r *orderRepository) ListByCustomer(ctx context.Context, customerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	query, args := selectCustomerOrdersSQL, []any{customerID}
	if limit > 0 {
		query, args = query+" LIMIT $2", append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders of customer %s: %w", customerID, err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list orders of customer %s: %w", customerID, err)
	}
	rows.Close()

	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems заполняет Items у каждого заказа из orders.
func (r *orderRepository) attachItems(ctx context.Context, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Items = make([]domain.OrderItem, 0)
	}

	rows, err := r.db.QueryContext(ctx, selectOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Qty, &item.PriceMinor, &item.CreatedAt); err != nil {
			return fmt.Errorf("scan order item: %w", err)
		}
		if i, ok := index[item.OrderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	return nil
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var order domain.Order
	err := row.Scan(&order.ID, &order.CustomerID, &order.CreatedAt, &order.UpdatedAt)
	return order, err
}

var _ domain.OrderRepository = (*orderRepository)(nil)
