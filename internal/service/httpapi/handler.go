package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
)

const (
	defaultListOrdersLimit = 100
	maxListOrdersLimit     = 500
	maxBodyBytes           = 1 << 20
)

// OrderCreator — сценарий создания заказа.
type OrderCreator interface {
	CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error)
}

// CatalogService описывает операции каталога, доступные через REST.
type CatalogService interface {
	RegisterCustomer(ctx context.Context, name, email string) (domain.Customer, error)
	AddProduct(ctx context.Context, name string, priceMinor int64, quantity int32) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// Handler обслуживает HTTP-запросы к заказам и каталогу.
type Handler struct {
	orders  OrderCreator
	reader  domain.OrderRepository
	catalog CatalogService
	logger  *log.Entry
}

// NewHandler конструирует обработчик.
func NewHandler(orders OrderCreator, reader domain.OrderRepository, catalog CatalogService, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	return &Handler{
		orders:  orders,
		reader:  reader,
		catalog: catalog,
		logger:  logger,
	}
}

// CreateOrder обрабатывает POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}

	products := make([]domain.ProductQuantity, 0, len(req.Products))
	for _, p := range req.Products {
		products = append(products, domain.ProductQuantity{ID: p.ProductID, Quantity: p.Quantity})
	}

	order, err := h.orders.CreateOrder(r.Context(), domain.CreateOrderRequest{
		CustomerID: req.CustomerID,
		Products:   products,
	})
	if err != nil {
		if domain.IsOrderRejected(err) {
			writeError(w, http.StatusBadRequest, domain.RejectionReason(err), err.Error())
			return
		}
		h.internalError(w, r, err, "create order")
		return
	}

	writeJSON(w, http.StatusCreated, toOrderResponse(order))
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.reader.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, "order_not_found", err.Error())
			return
		}
		h.internalError(w, r, err, "get order")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// ListCustomerOrders — GET /customers/{id}/orders?limit=N.
func (h *Handler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	limit := defaultListOrdersLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxListOrdersLimit)
	}

	orders, err := h.reader.ListByCustomer(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.internalError(w, r, err, "list customer orders")
		return
	}

	resp := listOrdersResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) RegisterCustomer(w http.ResponseWriter, r *http.Request) {
	var req registerCustomerRequest
	if !h.decode(w, r, &req) {
		return
	}

	customer, err := h.catalog.RegisterCustomer(r.Context(), req.Name, req.Email)
	if err != nil {
		h.catalogError(w, r, err, "register customer")
		return
	}

	writeJSON(w, http.StatusCreated, customerResponse{
		ID:        customer.ID,
		Name:      customer.Name,
		Email:     customer.Email,
		CreatedAt: customer.CreatedAt,
	})
}

func (h *Handler) AddProduct(w http.ResponseWriter, r *http.Request) {
	var req addProductRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.AddProduct(r.Context(), req.Name, req.PriceMinor, req.Quantity)
	if err != nil {
		h.catalogError(w, r, err, "add product")
		return
	}

	writeJSON(w, http.StatusCreated, toProductResponse(product))
}

func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			writeError(w, http.StatusNotFound, "product_not_found", err.Error())
			return
		}
		h.catalogError(w, r, err, "get product")
		return
	}

	writeJSON(w, http.StatusOK, toProductResponse(product))
}

func (h *Handler) catalogError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	switch {
	case catalog.IsValidationError(err):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case catalog.IsConflict(err):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.internalError(w, r, err, operation)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, operation string) {
	h.logger.WithError(err).WithFields(log.Fields{
		"operation":  operation,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error("http request failed")
	writeError(w, http.StatusInternalServerError, "internal", "internal error")
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: code, Message: message})
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Quantity:   item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Items:      items,
		TotalMinor: order.TotalMinor(),
		CreatedAt:  order.CreatedAt,
	}
}

func toProductResponse(product domain.Product) productResponse {
	return productResponse{
		ID:         product.ID,
		Name:       product.Name,
		PriceMinor: product.PriceMinor,
		Quantity:   product.Quantity,
		UpdatedAt:  product.UpdatedAt,
	}
}
