package grpcsvc

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	orderv1 "github.com/vladislavdragonenkov/storefront/internal/api/orderv1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 500
)

// OrderCreator реализуется *ordering.Service.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
}

// OrderService реализует gRPC API поверх сценария создания заказа и репозитория заказов.
type OrderService struct {
	orderv1.UnimplementedOrderServiceServer

	creator OrderCreator
	orders  domain.OrderRepository
	logger  *log.Entry
}

// NewOrderService конструирует сервис с зависимостями.
func NewOrderService(creator OrderCreator, orders domain.OrderRepository, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "order-grpc")
	}
	return &OrderService{
		creator: creator,
		orders:  orders,
		logger:  logger,
	}
}

// CreateOrder создаёт заказ.
func (s *OrderService) CreateOrder(ctx context.Context, req *orderv1.CreateOrderRequest) (*orderv1.CreateOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}

	products := make([]domain.ProductQuantity, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, domain.ProductQuantity{ID: p.ProductID, Quantity: p.Quantity})
	}

	order, err := s.creator.CreateOrder(ctx, domain.CreateOrderRequest{
		CustomerID: req.CustomerID,
		Products:   products,
	})
	if err != nil {
		return nil, s.toStatus(err, "CreateOrder")
	}

	return &orderv1.CreateOrderResponse{Order: toAPIOrder(order)}, nil
}

// GetOrder возвращает заказ по идентификатору.
func (s *OrderService) GetOrder(ctx context.Context, req *orderv1.GetOrderRequest) (*orderv1.GetOrderResponse, error) {
	if req == nil || req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "order_id is required")
	}

	order, err := s.orders.Get(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus(err, "GetOrder")
	}

	return &orderv1.GetOrderResponse{Order: toAPIOrder(order)}, nil
}

// ListCustomerOrders возвращает заказы клиента, новые первыми.
func (s *OrderService) ListCustomerOrders(ctx context.Context, req *orderv1.ListCustomerOrdersRequest) (*orderv1.ListCustomerOrdersResponse, error) {
	if req == nil || req.CustomerID == "" {
		return nil, status.Error(codes.InvalidArgument, "customer_id is required")
	}

	limit := int(req.Limit)
	if limit <= 0 {
		limit = defaultListOrdersLimit
	}
	if limit > maxListOrdersLimit {
		limit = maxListOrdersLimit
	}

	orders, err := s.orders.ListByCustomer(ctx, req.CustomerID, limit)
	if err != nil {
		return nil, s.toStatus(err, "ListCustomerOrders")
	}

	result := make([]*orderv1.Order, 0, len(orders))
	for _, order := range orders {
		result = append(result, toAPIOrder(order))
	}

	return &orderv1.ListCustomerOrdersResponse{Orders: result}, nil
}

// toStatus переводит доменные ошибки в gRPC-коды. Текст внутренних ошибок наружу не отдаётся.
func (s *OrderService) toStatus(err error, operation string) error {
	switch {
	case domain.IsStockUpdateFailure(err):
	case domain.IsInvalidRequest(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrCustomerNotFound),
		errors.Is(err, domain.ErrNoProductsFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrInsufficientStock):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	}

	s.logger.WithError(err).WithField("operation", operation).Error("order request failed")
	return status.Error(codes.Internal, "internal error")
}

func toAPIOrder(order domain.Order) *orderv1.Order {
	items := make([]orderv1.OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderv1.OrderItem{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return &orderv1.Order{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Items:      items,
		TotalMinor: order.TotalMinor(),
		CreatedAt:  order.CreatedAt,
	}
}

var _ orderv1.OrderServiceServer = (*OrderService)(nil)
