// Package catalog управляет клиентами и товарами, с которыми работает сценарий заказа.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Service регистрирует клиентов и товары.
type Service struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	logger    *log.Entry
}

// NewService конструирует сервис каталога.
func NewService(customers domain.CustomerRepository, products domain.ProductRepository, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "catalog")
	}
	return &Service{customers: customers, products: products, logger: logger}
}

// RegisterCustomer создаёт клиента с новым идентификатором.
func (s *Service) RegisterCustomer(ctx context.Context, name, email string) (domain.Customer, error) {
	customer := domain.Customer{
		ID:    uuid.NewString(),
		Name:  strings.TrimSpace(name),
		Email: strings.TrimSpace(email),
	}
	if errs := customer.Validate(); len(errs) > 0 {
		return domain.Customer{}, errors.Join(errs...)
	}

	if err := s.customers.Create(ctx, customer); err != nil {
		if errors.Is(err, domain.ErrCustomerEmailTaken) {
			return domain.Customer{}, err
		}
		s.logger.WithError(err).Error("failed to register customer")
		return domain.Customer{}, fmt.Errorf("create customer: %w", err)
	}

	s.logger.WithField("customer_id", customer.ID).Info("customer registered")
	return s.customers.FindByID(ctx, customer.ID)
}

// AddProduct заводит товар с ценой и начальным остатком.
func (s *Service) AddProduct(ctx context.Context, name string, priceMinor int64, quantity int32) (domain.Product, error) {
	product := domain.Product{
		ID:         uuid.NewString(),
		Name:       strings.TrimSpace(name),
		PriceMinor: priceMinor,
		Quantity:   quantity,
	}
	if errs := product.Validate(); len(errs) > 0 {
		return domain.Product{}, errors.Join(errs...)
	}

	if err := s.products.Create(ctx, product); err != nil {
		if errors.Is(err, domain.ErrProductNameTaken) {
			return domain.Product{}, err
		}
		s.logger.WithError(err).Error("failed to add product")
		return domain.Product{}, fmt.Errorf("create product: %w", err)
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"quantity":   product.Quantity,
	}).Info("product added")
	return s.products.FindByID(ctx, product.ID)
}

// GetProduct возвращает товар или ErrProductNotFound.
func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return domain.Product{}, domain.ErrProductIDRequired
	}
	return s.products.FindByID(ctx, id)
}

// IsValidationError сообщает, что ошибка вызвана некорректными полями сущности.
func IsValidationError(err error) bool {
	return errors.Is(err, domain.ErrNameRequired) ||
		errors.Is(err, domain.ErrEmailInvalid) ||
		errors.Is(err, domain.ErrItemPriceInvalid) ||
		errors.Is(err, domain.ErrStockNegative) ||
		errors.Is(err, domain.ErrProductIDRequired)
}

// IsConflict сообщает о нарушении уникальности.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrCustomerEmailTaken) || errors.Is(err, domain.ErrProductNameTaken)
}
