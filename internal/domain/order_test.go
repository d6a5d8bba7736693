package domain_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// helper для создания базового заказа с одной позицией.
func makeNewOrder() domain.NewOrder {
	return domain.NewOrder{
		CustomerID: "customer-1",
		Items: []domain.NewOrderItem{
			{ProductID: "product-1", Qty: 5, PriceMinor: 100},
		},
	}
}

func TestNewOrderValidateInvariants_Ok(t *testing.T) {
	order := makeNewOrder()
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("expected no validation errors, got %v", errs)
	}
}

func TestNewOrderValidateInvariants_Errors(t *testing.T) {
	cases := []struct {
		name string
		mut  func(o *domain.NewOrder)
	}{
		{
			name: "no customer",
			mut: func(o *domain.NewOrder) {
				o.CustomerID = ""
			},
		},
		{
			name: "no items",
			mut: func(o *domain.NewOrder) {
				o.Items = nil
			},
		},
		{
			name: "qty invalid",
			mut: func(o *domain.NewOrder) {
				o.Items[0].Qty = 0
			},
		},
		{
			name: "price invalid",
			mut: func(o *domain.NewOrder) {
				o.Items[0].PriceMinor = -5
			},
		},
		{
			name: "product missing",
			mut: func(o *domain.NewOrder) {
				o.Items[0].ProductID = ""
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			order := makeNewOrder()
			tc.mut(&order)

			if len(order.ValidateInvariants()) == 0 {
				t.Fatalf("expected validation errors for case %s", tc.name)
			}
		})
	}
}

func TestCreateOrderRequestValidate(t *testing.T) {
	cases := []struct {
		name string
		req  domain.CreateOrderRequest
		want error
	}{
		{
			name: "valid",
			req: domain.CreateOrderRequest{
				CustomerID: "c-1",
				Products:   []domain.ProductQuantity{{ID: "p-1", Quantity: 1}},
			},
		},
		{
			name: "missing customer",
			req: domain.CreateOrderRequest{
				Products: []domain.ProductQuantity{{ID: "p-1", Quantity: 1}},
			},
			want: domain.ErrCustomerRequired,
		},
		{
			name: "no products is left to the workflow",
			req:  domain.CreateOrderRequest{CustomerID: "c-1"},
		},
		{
			name: "empty product id",
			req: domain.CreateOrderRequest{
				CustomerID: "c-1",
				Products:   []domain.ProductQuantity{{Quantity: 1}},
			},
			want: domain.ErrProductIDRequired,
		},
		{
			name: "zero quantity",
			req: domain.CreateOrderRequest{
				CustomerID: "c-1",
				Products:   []domain.ProductQuantity{{ID: "p-1", Quantity: 0}},
			},
			want: domain.ErrItemQtyInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.req.Validate()
			if !errors.Is(err, tc.want) {
				t.Fatalf("Validate() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestOrderTotalMinor(t *testing.T) {
	order := domain.Order{
		ID:         "order-1",
		CustomerID: "customer-1",
		Items: []domain.OrderItem{
			{ID: "i-1", ProductID: "p-1", Qty: 2, PriceMinor: 150, CreatedAt: time.Now()},
			{ID: "i-2", ProductID: "p-2", Qty: 1, PriceMinor: 99, CreatedAt: time.Now()},
		},
	}

	if got := order.TotalMinor(); got != 399 {
		t.Fatalf("expected total 399, got %d", got)
	}
}

func TestCatalogValidate(t *testing.T) {
	customer := domain.Customer{Name: "Ann", Email: "ann@example.com"}
	if errs := customer.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected customer errors: %v", errs)
	}
	bad := domain.Customer{Name: " ", Email: "nope"}
	if errs := bad.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 customer errors, got %v", errs)
	}

	product := domain.Product{Name: "Mug", PriceMinor: 1000, Quantity: 0}
	if errs := product.Validate(); len(errs) != 0 {
		t.Fatalf("unexpected product errors: %v", errs)
	}
	badProduct := domain.Product{Name: "Mug", PriceMinor: -1, Quantity: -1}
	if errs := badProduct.Validate(); len(errs) != 2 {
		t.Fatalf("expected 2 product errors, got %v", errs)
	}
}
