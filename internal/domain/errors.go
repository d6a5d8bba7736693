package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора клиента.
	ErrCustomerRequired = errors.New("customer_id is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one product")
	// Ошибка пустого идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("product id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Ошибка отсутствующего имени клиента или товара.
	ErrNameRequired = errors.New("name is required")
	// Ошибка отсутствующего или некорректного email клиента.
	ErrEmailInvalid = errors.New("email is invalid")
	// Ошибка отрицательного остатка на складе.
	ErrStockNegative = errors.New("product quantity must be non-negative")

	// ErrCustomerNotFound возвращается, если клиента с заданным идентификатором нет.
	ErrCustomerNotFound = errors.New("could not find any customer with the given id")
	// ErrNoProductsFound возвращается, если ни один из запрошенных товаров не найден.
	ErrNoProductsFound = errors.New("could not find any product with the given id")
	// ErrProductNotFound — конкретный товар из запроса отсутствует в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrInsufficientStock — на складе меньше единиц товара, чем запрошено.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")

	// ErrCustomerEmailTaken email уже используется другим клиентом
	ErrCustomerEmailTaken = errors.New("email already in use")
	// ErrProductNameTaken товар с таким названием уже существует
	ErrProductNameTaken = errors.New("product with this name already exists")

	// ErrOutboxPublish ошибка при публикации сообщения из outbox
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// ProductError описывает отказ по конкретной позиции заказа.
type ProductError struct {
	// Err — ErrProductNotFound или ErrInsufficientStock.
	Err       error
	ProductID string
	// Requested — количество, запрошенное в позиции.
	Requested int32
	// Available — остаток на момент проверки (только для ErrInsufficientStock).
	Available int32
}

func (e *ProductError) Error() string {
	if errors.Is(e.Err, ErrInsufficientStock) {
		return fmt.Sprintf("the quantity %d is not available for %s", e.Requested, e.ProductID)
	}
	return fmt.Sprintf("could not find product %s", e.ProductID)
}

func (e *ProductError) Unwrap() error {
	return e.Err
}

// NewProductNotFoundError формирует ошибку отсутствующего товара.
func NewProductNotFoundError(productID string) error {
	return &ProductError{Err: ErrProductNotFound, ProductID: productID}
}

// NewInsufficientStockError формирует ошибку нехватки остатка.
func NewInsufficientStockError(productID string, requested, available int32) error {
	return &ProductError{
		Err:       ErrInsufficientStock,
		ProductID: productID,
		Requested: requested,
		Available: available,
	}
}

// StockUpdateError описывает сбой списания остатков после сохранения заказа.
// Заказ уже записан, поэтому ошибка не считается отказом даже при доменной причине.
type StockUpdateError struct {
	OrderID string
	Err     error
}

func (e *StockUpdateError) Error() string {
	return fmt.Sprintf("update product quantity for order %s: %v", e.OrderID, e.Err)
}

func (e *StockUpdateError) Unwrap() error {
	return e.Err
}

// IsStockUpdateFailure сообщает, что err возник после сохранения заказа.
func IsStockUpdateFailure(err error) bool {
	var target *StockUpdateError
	return errors.As(err, &target)
}

// IsInvalidRequest проверяет, относится ли ошибка к структурной валидации запроса.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrCustomerRequired) ||
		errors.Is(err, ErrItemsRequired) ||
		errors.Is(err, ErrProductIDRequired) ||
		errors.Is(err, ErrItemQtyInvalid)
}

// IsOrderRejected сообщает, что заказ отклонён по бизнес-причине (а не из-за сбоя инфраструктуры).
func IsOrderRejected(err error) bool {
	if IsStockUpdateFailure(err) {
		return false
	}
	return IsInvalidRequest(err) ||
		errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrNoProductsFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInsufficientStock)
}

// RejectionReason возвращает короткий код причины отказа для метрик и API.
func RejectionReason(err error) string {
	switch {
	case err == nil:
		return ""
	case IsStockUpdateFailure(err):
		return "internal"
	case IsInvalidRequest(err):
		return "invalid_request"
	case errors.Is(err, ErrCustomerNotFound):
		return "customer_not_found"
	case errors.Is(err, ErrNoProductsFound):
		return "no_products_found"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	default:
		return "internal"
	}
}
