package memory

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Seed заполняет репозитории фиксированными клиентами и товарами.
func Seed(ctx context.Context, customers domain.CustomerRepository, products domain.ProductRepository, data SeedData) error {
	for _, customer := range data.Customers {
		if err := customers.Create(ctx, customer); err != nil {
			return fmt.Errorf("seed customer %s: %w", customer.ID, err)
		}
	}
	for _, product := range data.Products {
		if err := products.Create(ctx, product); err != nil {
			return fmt.Errorf("seed product %s: %w", product.ID, err)
		}
	}
	return nil
}

// SeedData набор записей для Seed
type SeedData struct {
	Customers []domain.Customer
	Products  []domain.Product
}

// DemoData возвращает демонстрационный каталог для локального запуска.
func DemoData() SeedData {
	return SeedData{
		Customers: []domain.Customer{
			{ID: "11111111-1111-4111-8111-111111111111", Name: "Demo Customer", Email: "demo@storefront.local"},
		},
		Products: []domain.Product{
			{ID: "22222222-2222-4222-8222-222222222221", Name: "Ceramic Mug", PriceMinor: 1500, Quantity: 25},
			{ID: "22222222-2222-4222-8222-222222222222", Name: "Green Tea 100g", PriceMinor: 450, Quantity: 100},
			{ID: "22222222-2222-4222-8222-222222222223", Name: "Teapot", PriceMinor: 3900, Quantity: 3},
		},
	}
}
