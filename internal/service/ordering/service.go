// Package ordering реализует сценарий создания заказа: проверка клиента,
// наличия и остатков товаров, сохранение заказа со снимком цен и списание остатков.
package ordering

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

// Metrics — метрики, которые пишет сервис. Реализуется *metrics.OrderMetrics.
type Metrics interface {
	RecordOrderCreated(lineItems int)
	RecordOrderRejected(reason string)
	RecordOrderFailed()
	RecordCreateDuration(duration time.Duration)
	RecordOutboxEnqueued()
}

// Options задаёт необязательные зависимости сервиса.
type Options struct {
	Logger  *log.Entry
	Outbox  domain.OutboxRepository
	Metrics Metrics
	Now     func() time.Time
}

// Option настраивает Service.
type Option func(*Options)

// WithLogger задаёт logger сервиса.
func WithLogger(logger *log.Entry) Option {
	return func(opts *Options) {
		opts.Logger = logger
	}
}

// WithOutbox включает постановку события order.created в outbox после успешного создания.
func WithOutbox(repo domain.OutboxRepository) Option {
	return func(opts *Options) {
		opts.Outbox = repo
	}
}

// WithMetrics задаёт сборщик метрик.
func WithMetrics(m Metrics) Option {
	return func(opts *Options) {
		opts.Metrics = m
	}
}

// WithClock подменяет источник времени (для тестов).
func WithClock(now func() time.Time) Option {
	return func(opts *Options) {
		opts.Now = now
	}
}

// Service создаёт заказы поверх трёх репозиториев.
type Service struct {
	customers domain.CustomerRepository
	products  domain.ProductRepository
	orders    domain.OrderRepository

	outbox  domain.OutboxRepository
	metrics Metrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService конструирует сервис с зависимостями.
func NewService(
	customers domain.CustomerRepository,
	products domain.ProductRepository,
	orders domain.OrderRepository,
	options ...Option,
) *Service {
	opts := Options{}
	for _, option := range options {
		option(&opts)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.WithField("component", "ordering")
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		customers: customers,
		products:  products,
		orders:    orders,
		outbox:    opts.Outbox,
		metrics:   opts.Metrics,
		logger:    logger,
		now:       now,
	}
}

// CreateOrder проверяет запрос и создаёт заказ.
//
// Проверки выполняются по порядку: структура запроса, существование клиента,
// непустой результат поиска товаров, наличие каждого товара, достаточность остатка.
// При любой ошибке проверки запись не выполняется. Вызов не идемпотентен:
// повторный запрос создаёт новый заказ и ещё раз списывает остаток.
func (s *Service) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	started := s.now()

	order, err := s.createOrder(ctx, req)

	if s.metrics != nil {
		s.metrics.RecordCreateDuration(s.now().Sub(started))
	}
	if err != nil {
		s.observeFailure(req, err)
		return domain.Order{}, err
	}

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(len(order.Items))
	}
	s.logger.WithFields(log.Fields{
		"order_id":    order.ID,
		"customer_id": order.CustomerID,
		"items":       len(order.Items),
		"total_minor": order.TotalMinor(),
	}).Info("order created")

	s.enqueueOrderCreated(ctx, order)

	return order, nil
}

func (s *Service) createOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	if err := req.Validate(); err != nil {
		return domain.Order{}, err
	}

	if _, err := s.customers.FindByID(ctx, req.CustomerID); err != nil {
		if errors.Is(err, domain.ErrCustomerNotFound) {
			return domain.Order{}, domain.ErrCustomerNotFound
		}
		return domain.Order{}, fmt.Errorf("find customer: %w", err)
	}

	existing, err := s.products.FindAllByID(ctx, req.Products)
	if err != nil {
		return domain.Order{}, fmt.Errorf("find products: %w", err)
	}
	if len(existing) == 0 {
		return domain.Order{}, domain.ErrNoProductsFound
	}

	catalog := make(map[string]domain.Product, len(existing))
	for _, product := range existing {
		catalog[product.ID] = product
	}

	for _, line := range req.Products {
		if _, ok := catalog[line.ID]; !ok {
			return domain.Order{}, domain.NewProductNotFoundError(line.ID)
		}
	}

	// Один товар может встречаться в нескольких строках: остаток сверяем с накопленной суммой.
	requested := make(map[string]int64, len(catalog))
	for _, line := range req.Products {
		requested[line.ID] += int64(line.Quantity)
		if stock := catalog[line.ID].Quantity; int64(stock) < requested[line.ID] {
			return domain.Order{}, domain.NewInsufficientStockError(line.ID, line.Quantity, stock)
		}
	}

	items := make([]domain.NewOrderItem, 0, len(req.Products))
	for _, line := range req.Products {
		items = append(items, domain.NewOrderItem{
			ProductID:  line.ID,
			Qty:        line.Quantity,
			PriceMinor: catalog[line.ID].PriceMinor,
		})
	}

	order, err := s.orders.Create(ctx, domain.NewOrder{
		CustomerID: req.CustomerID,
		Items:      items,
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("create order: %w", err)
	}

	if err := s.products.UpdateQuantity(ctx, stockUpdates(order.Items, catalog)); err != nil {
		return domain.Order{}, &domain.StockUpdateError{OrderID: order.ID, Err: err}
	}

	return order, nil
}

// stockUpdates считает новый остаток по сохранённым позициям: остаток на момент проверки
// минус заказанное количество. Одна запись на товар в порядке первого появления.
func stockUpdates(items []domain.OrderItem, catalog map[string]domain.Product) []domain.ProductQuantity {
	ordered := make(map[string]int32, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		if _, seen := ordered[item.ProductID]; !seen {
			order = append(order, item.ProductID)
		}
		ordered[item.ProductID] += item.Qty
	}

	updates := make([]domain.ProductQuantity, 0, len(order))
	for _, id := range order {
		updates = append(updates, domain.ProductQuantity{
			ID:       id,
			Quantity: catalog[id].Quantity - ordered[id],
		})
	}
	return updates
}

func (s *Service) observeFailure(req domain.CreateOrderRequest, err error) {
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"customer_id": req.CustomerID,
		"lines":       len(req.Products),
	})

	if domain.IsOrderRejected(err) {
		reason := domain.RejectionReason(err)
		if s.metrics != nil {
			s.metrics.RecordOrderRejected(reason)
		}
		entry.WithField("reason", reason).Info("order rejected")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordOrderFailed()
	}
	entry.Error("failed to create order")
}

type orderCreatedItem struct {
	ProductID  string `json:"product_id"`
	Quantity   int32  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type orderCreatedPayload struct {
	OrderID    string             `json:"order_id"`
	CustomerID string             `json:"customer_id"`
	TotalMinor int64              `json:"total_minor"`
	Items      []orderCreatedItem `json:"items"`
	CreatedAt  time.Time          `json:"created_at"`
}

// enqueueOrderCreated ставит событие в outbox. Ошибка не отменяет уже созданный заказ.
func (s *Service) enqueueOrderCreated(ctx context.Context, order domain.Order) {
	if s.outbox == nil {
		return
	}

	items := make([]orderCreatedItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderCreatedItem{
			ProductID:  item.ProductID,
			Quantity:   item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	payload, err := json.Marshal(orderCreatedPayload{
		OrderID:    order.ID,
		CustomerID: order.CustomerID,
		TotalMinor: order.TotalMinor(),
		Items:      items,
		CreatedAt:  order.CreatedAt,
	})
	if err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to encode order.created payload")
		return
	}

	if _, err := s.outbox.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   order.ID,
		EventType:     domain.EventTypeOrderCreated,
		Payload:       payload,
	}); err != nil {
		s.logger.WithError(err).WithField("order_id", order.ID).Warn("failed to enqueue order.created event")
		return
	}

	if s.metrics != nil {
		s.metrics.RecordOutboxEnqueued()
	}
}
