package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// orderRepository хранит заказы в памяти с индексом по клиенту.
type orderRepository struct {
	mu         sync.RWMutex
	orders     map[string]domain.Order
	byCustomer map[string][]string
	now        func() time.Time
}

// NewOrderRepository возвращает in-memory репозиторий для локальной разработки и тестов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepository{
		orders:     make(map[string]domain.Order),
		byCustomer: make(map[string][]string),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create назначает заказу и позициям идентификаторы и сохраняет их.
func (r *orderRepository) Create(_ context.Context, order domain.NewOrder) (domain.Order, error) {
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

	r.mu.Lock()
	r.orders[created.ID] = cloneOrder(created)
	r.byCustomer[created.CustomerID] = append(r.byCustomer[created.CustomerID], created.ID)
	r.mu.Unlock()

	return created, nil
}

func (r *orderRepository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if order, ok := r.orders[id]; ok {
		return cloneOrder(order), nil
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListByCustomer возвращает заказы клиента от новых к старым; limit <= 0 снимает ограничение.
func (r *orderRepository) ListByCustomer(_ context.Context, customerID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	ids := r.byCustomer[customerID]
	result := make([]domain.Order, len(ids))
	for i, id := range ids {
		result[i] = cloneOrder(r.orders[id])
	}
	r.mu.RUnlock()

	slices.SortFunc(result, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// cloneOrder копирует позиции, чтобы вызывающий код не мутировал хранилище.
func cloneOrder(order domain.Order) domain.Order {
	order.Items = slices.Clone(order.Items)
	return order
}

var _ domain.OrderRepository = (*orderRepository)(nil)
