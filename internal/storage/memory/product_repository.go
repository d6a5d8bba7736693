package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

type productRepositoryInMemory struct {
	mu     sync.RWMutex
	items  map[string]domain.Product
	byName map[string]string
}

// NewProductRepository возвращает in-memory репозиторий товаров.
func NewProductRepository() domain.ProductRepository {
	return &productRepositoryInMemory{
		items:  make(map[string]domain.Product),
		byName: make(map[string]string),
	}
}

// FindAllByID возвращает найденные товары в порядке первого упоминания, без повторов.
func (r *productRepositoryInMemory) FindAllByID(_ context.Context, products []domain.ProductQuantity) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.Product, 0, len(products))
	seen := make(map[string]struct{}, len(products))
	for _, requested := range products {
		if _, dup := seen[requested.ID]; dup {
			continue
		}
		seen[requested.ID] = struct{}{}
		if product, ok := r.items[requested.ID]; ok {
			result = append(result, product)
		}
	}
	return result, nil
}

// UpdateQuantity применяет пакет целиком или не применяет ничего.
func (r *productRepositoryInMemory) UpdateQuantity(_ context.Context, updates []domain.ProductQuantity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, update := range updates {
		if _, ok := r.items[update.ID]; !ok {
			return domain.NewProductNotFoundError(update.ID)
		}
		if update.Quantity < 0 {
			return fmt.Errorf("product %s: %w", update.ID, domain.ErrStockNegative)
		}
	}

	now := time.Now().UTC()
	for _, update := range updates {
		product := r.items[update.ID]
		product.Quantity = update.Quantity
		product.UpdatedAt = now
		r.items[update.ID] = product
	}
	return nil
}

// FindByID возвращает товар или ErrProductNotFound.
func (r *productRepositoryInMemory) FindByID(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	product, ok := r.items[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

// Create сохраняет товар, если название ещё не занято.
func (r *productRepositoryInMemory) Create(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(strings.TrimSpace(product.Name))
	if _, taken := r.byName[name]; taken {
		return domain.ErrProductNameTaken
	}

	now := time.Now().UTC()
	if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now

	r.items[product.ID] = product
	r.byName[name] = product.ID
	return nil
}

var _ domain.ProductRepository = (*productRepositoryInMemory)(nil)
