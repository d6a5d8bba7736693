package domain

import "time"

// ProductQuantity — пара «товар — количество».
// Используется и как строка запроса на заказ, и как обновление остатка на складе.
type ProductQuantity struct {
	ID       string
	Quantity int32
}

// CreateOrderRequest — входные данные сценария создания заказа.
type CreateOrderRequest struct {
	CustomerID string
	Products   []ProductQuantity
}

// Validate проверяет структуру запроса до обращения к хранилищам.
// Пустой список товаров допустим: он отклоняется позже, после проверки клиента.
func (r CreateOrderRequest) Validate() error {
	if r.CustomerID == "" {
		return ErrCustomerRequired
	}
	for _, p := range r.Products {
		if p.ID == "" {
			return ErrProductIDRequired
		}
		if p.Quantity <= 0 {
			return ErrItemQtyInvalid
		}
	}
	return nil
}

// OrderItem представляет одну позицию заказа.
type OrderItem struct {
	// ID позиции назначается хранилищем при создании заказа.
	ID      string
	OrderID string
	// ProductID — идентификатор товара из каталога.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу на момент оформления (снимок цены), в минимальных единицах.
	PriceMinor int64
	CreatedAt  time.Time
}

// Order агрегирует заказ клиента и его позиции.
type Order struct {
	ID         string
	CustomerID string
	Items      []OrderItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TotalMinor возвращает сумму заказа: qty * price по всем позициям.
func (o Order) TotalMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	return total
}

// NewOrderItem — позиция, которую нужно сохранить.
type NewOrderItem struct {
	ProductID  string
	Qty        int32
	PriceMinor int64
}

// NewOrder — данные для создания заказа; идентификаторы и время назначает хранилище.
type NewOrder struct {
	CustomerID string
	Items      []NewOrderItem
}

// ValidateInvariants проверяет базовые инварианты нового заказа и возвращает список замечаний.
func (o NewOrder) ValidateInvariants() []error {
	var errs []error

	if o.CustomerID == "" {
		errs = append(errs, ErrCustomerRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	return errs
}
