package domain

import (
	"strings"
	"time"
)

// Customer клиент магазина. Сценарий заказа проверяет только факт его существования.
type Customer struct {
	ID        string
	Name      string
	Email     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет обязательные поля клиента.
func (c *Customer) Validate() []error {
	var errs []error

	if strings.TrimSpace(c.Name) == "" {
		errs = append(errs, ErrNameRequired)
	}
	if !strings.Contains(c.Email, "@") {
		errs = append(errs, ErrEmailInvalid)
	}

	return errs
}

// Product — товар каталога с ценой и текущим остатком.
type Product struct {
	ID         string
	Name       string
	PriceMinor int64
	// Quantity количество единиц, доступных к продаже
	Quantity  int32
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate проверяет поля товара.
func (p *Product) Validate() []error {
	var errs []error

	if strings.TrimSpace(p.Name) == "" {
		errs = append(errs, ErrNameRequired)
	}
	if p.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}
	if p.Quantity < 0 {
		errs = append(errs, ErrStockNegative)
	}

	return errs
}
