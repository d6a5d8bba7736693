package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/catalog"
	"github.com/vladislavdragonenkov/storefront/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

type observation struct {
	route  string
	method string
	code   int
}

type recordingObserver struct {
	mu       sync.Mutex
	observed []observation
}

func (o *recordingObserver) ObserveRequest(route, method string, code int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observed = append(o.observed, observation{route: route, method: method, code: code})
}

func (o *recordingObserver) snapshot() []observation {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]observation(nil), o.observed...)
}

type testEnv struct {
	server   *httptest.Server
	products domain.ProductRepository
	observer *recordingObserver
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func newTestEnv(t *testing.T, creator httpapi.OrderCreator) testEnv {
	t.Helper()

	ctx := context.Background()
	logger := loggerForTests()
	customers := memory.NewCustomerRepository()
	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()

	require.NoError(t, customers.Create(ctx, domain.Customer{ID: "c-1", Name: "Ann", Email: "ann@example.com"}))
	require.NoError(t, products.Create(ctx, domain.Product{ID: "p-1", Name: "Mug", PriceMinor: 1500, Quantity: 3}))

	if creator == nil {
		creator = ordering.NewService(customers, products, orders, ordering.WithLogger(logger))
	}
	handler := httpapi.NewHandler(creator, orders, catalog.NewService(customers, products, logger), logger)
	observer := &recordingObserver{}

	server := httptest.NewServer(httpapi.NewRouter(handler, observer))
	t.Cleanup(server.Close)

	return testEnv{server: server, products: products, observer: observer}
}

func (e testEnv) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}

func orderBody(customerID string, lines ...any) map[string]any {
	products := make([]map[string]any, 0, len(lines)/2)
	for i := 0; i+1 < len(lines); i += 2 {
		products = append(products, map[string]any{"product_id": lines[i], "quantity": lines[i+1]})
	}
	return map[string]any{"customer_id": customerID, "products": products}
}

func TestCreateAndGetOrder(t *testing.T) {
	env := newTestEnv(t, nil)

	code, created := env.do(t, http.MethodPost, "/orders", orderBody("c-1", "p-1", 2))
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, float64(3000), created["total_minor"])

	id, ok := created["id"].(string)
	require.True(t, ok)

	code, fetched := env.do(t, http.MethodGet, "/orders/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, fetched["id"])

	code, listed := env.do(t, http.MethodGet, "/customers/c-1/orders?limit=10", nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, listed["orders"], 1)

	product, err := env.products.FindByID(context.Background(), "p-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), product.Quantity)
}

func TestCreateOrder_Rejections(t *testing.T) {
	env := newTestEnv(t, nil)

	cases := []struct {
		name    string
		body    map[string]any
		reason  string
		message string
	}{
		{name: "invalid request", body: orderBody("", "p-1", 1), reason: "invalid_request"},
		{name: "unknown customer", body: orderBody("ghost", "p-1", 1), reason: "customer_not_found", message: "could not find any customer with the given id"},
		{name: "no products", body: orderBody("c-1", "x", 1), reason: "no_products_found", message: "could not find any product with the given id"},
		{name: "empty list for unknown customer", body: orderBody("ghost"), reason: "customer_not_found"},
		{name: "empty list", body: orderBody("c-1"), reason: "no_products_found"},
		{name: "one missing", body: orderBody("c-1", "p-1", 1, "p-9", 1), reason: "product_not_found", message: "could not find product p-9"},
		{name: "insufficient stock", body: orderBody("c-1", "p-1", 7), reason: "insufficient_stock", message: "the quantity 7 is not available for p-1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/orders", tc.body)
			require.Equal(t, http.StatusBadRequest, code)
			require.Equal(t, tc.reason, body["error"])
			if tc.message != "" {
				require.Equal(t, tc.message, body["message"])
			}
		})
	}
}

func TestCreateOrder_InvalidJSON(t *testing.T) {
	env := newTestEnv(t, nil)

	resp, err := env.server.Client().Post(env.server.URL+"/orders", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

type brokenCreator struct{}

func (brokenCreator) CreateOrder(context.Context, domain.CreateOrderRequest) (domain.Order, error) {
	return domain.Order{}, errors.New("database is on fire")
}

func TestCreateOrder_InternalError(t *testing.T) {
	env := newTestEnv(t, brokenCreator{})

	code, body := env.do(t, http.MethodPost, "/orders", orderBody("c-1", "p-1", 1))
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "internal", body["error"])
	require.NotContains(t, body["message"], "fire")
}

type stockFailingCreator struct{}

func (stockFailingCreator) CreateOrder(context.Context, domain.CreateOrderRequest) (domain.Order, error) {
	return domain.Order{}, &domain.StockUpdateError{OrderID: "o-1", Err: domain.NewProductNotFoundError("p-1")}
}

func TestCreateOrder_StockUpdateFailureIsInternal(t *testing.T) {
	env := newTestEnv(t, stockFailingCreator{})

	code, body := env.do(t, http.MethodPost, "/orders", orderBody("c-1", "p-1", 1))
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "internal", body["error"])
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)

	code, body := env.do(t, http.MethodGet, "/orders/missing", nil)
	require.Equal(t, http.StatusNotFound, code)
	require.Equal(t, "order_not_found", body["error"])
}

func TestListCustomerOrders_InvalidLimit(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.do(t, http.MethodGet, "/customers/c-1/orders?limit=abc", nil)
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodGet, "/customers/c-1/orders?limit=0", nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCatalogEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)

	code, customer := env.do(t, http.MethodPost, "/customers", map[string]any{"name": "Bob", "email": "bob@example.com"})
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, customer["id"])

	code, body := env.do(t, http.MethodPost, "/customers", map[string]any{"name": "Bobby", "email": "BOB@example.com"})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, "conflict", body["error"])

	code, _ = env.do(t, http.MethodPost, "/customers", map[string]any{"name": "", "email": "nope"})
	require.Equal(t, http.StatusBadRequest, code)

	code, product := env.do(t, http.MethodPost, "/products", map[string]any{"name": "Kettle", "price_minor": 5200, "quantity": 4})
	require.Equal(t, http.StatusCreated, code)
	productID, ok := product["id"].(string)
	require.True(t, ok)

	code, fetched := env.do(t, http.MethodGet, "/products/"+productID, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "Kettle", fetched["name"])
	require.Equal(t, float64(4), fetched["quantity"])

	code, _ = env.do(t, http.MethodGet, "/products/unknown", nil)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/products", map[string]any{"name": "Broken", "price_minor": -1, "quantity": 1})
	require.Equal(t, http.StatusBadRequest, code)
}

func TestRouter_ObservesRoutePattern(t *testing.T) {
	env := newTestEnv(t, nil)

	code, _ := env.do(t, http.MethodGet, "/orders/abc", nil)
	require.Equal(t, http.StatusNotFound, code)

	observed := env.observer.snapshot()
	require.Len(t, observed, 1)
	require.Equal(t, observation{route: "/orders/{id}", method: http.MethodGet, code: http.StatusNotFound}, observed[0])
}
