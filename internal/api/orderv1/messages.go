package orderv1

import "time"

// ProductQuantity — позиция запроса: товар и количество.
type ProductQuantity struct {
	ProductID string `json:"product_id"`
	Quantity  int32  `json:"quantity"`
}

type CreateOrderRequest struct {
	CustomerID string            `json:"customer_id"`
	Products   []ProductQuantity `json:"products"`
}

// OrderItem — позиция заказа с зафиксированной ценой.
type OrderItem struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type Order struct {
	ID         string      `json:"id"`
	CustomerID string      `json:"customer_id"`
	Items      []OrderItem `json:"items"`
	TotalMinor int64       `json:"total_minor"`
	CreatedAt  time.Time   `json:"created_at"`
}

type CreateOrderResponse struct {
	Order *Order `json:"order"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type GetOrderResponse struct {
	Order *Order `json:"order"`
}

// ListCustomerOrdersRequest — Limit<=0 означает лимит по умолчанию на стороне сервера.
type ListCustomerOrdersRequest struct {
	CustomerID string `json:"customer_id"`
	Limit      int32  `json:"limit"`
}

type ListCustomerOrdersResponse struct {
	Orders []*Order `json:"orders"`
}
