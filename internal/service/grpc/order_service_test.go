package grpcsvc_test

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	orderv1 "github.com/vladislavdragonenkov/storefront/internal/api/orderv1"
	"github.com/vladislavdragonenkov/storefront/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	client   orderv1.OrderServiceClient
	products domain.ProductRepository
}

func newTestServer(t *testing.T, creator grpcsvc.OrderCreator) testEnv {
	t.Helper()

	ctx := context.Background()
	logger := loggerForTests()
	customers := memory.NewCustomerRepository()
	products := memory.NewProductRepository()
	orders := memory.NewOrderRepository()

	require.NoError(t, customers.Create(ctx, domain.Customer{ID: "c-1", Name: "Ann", Email: "ann@example.com"}))
	require.NoError(t, products.Create(ctx, domain.Product{ID: "p-1", Name: "Mug", PriceMinor: 1500, Quantity: 3}))
	require.NoError(t, products.Create(ctx, domain.Product{ID: "p-2", Name: "Tea", PriceMinor: 450, Quantity: 10}))

	if creator == nil {
		creator = ordering.NewService(customers, products, orders, ordering.WithLogger(logger))
	}
	service := grpcsvc.NewOrderService(creator, orders, logger)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	orderv1.RegisterOrderServiceServer(server, service)

	go func() {
		if err := server.Serve(listener); err != nil {
			logger.WithError(err).Error("grpc serve failed")
		}
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}

	//nolint:staticcheck // grpc.Dial is required for bufconn testing
	conn, err := grpc.Dial("bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return testEnv{client: orderv1.NewOrderServiceClient(conn), products: products}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: false, DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func TestOrderService_CreateAndGet(t *testing.T) {
	env := newTestServer(t, nil)
	ctx := context.Background()

	created, err := env.client.CreateOrder(ctx, &orderv1.CreateOrderRequest{
		CustomerID: "c-1",
		Products: []orderv1.ProductQuantity{
			{ProductID: "p-1", Quantity: 2},
			{ProductID: "p-2", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, created.Order)
	require.Len(t, created.Order.Items, 2)
	require.Equal(t, int64(3450), created.Order.TotalMinor)

	fetched, err := env.client.GetOrder(ctx, &orderv1.GetOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	require.Equal(t, created.Order.ID, fetched.Order.ID)
	require.Equal(t, "p-1", fetched.Order.Items[0].ProductID)
	require.Equal(t, int64(1500), fetched.Order.Items[0].PriceMinor)

	product, err := env.products.FindByID(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, int32(1), product.Quantity)

	listed, err := env.client.ListCustomerOrders(ctx, &orderv1.ListCustomerOrdersRequest{CustomerID: "c-1"})
	require.NoError(t, err)
	require.Len(t, listed.Orders, 1)
}

func TestOrderService_CreateOrder_ErrorCodes(t *testing.T) {
	env := newTestServer(t, nil)
	ctx := context.Background()

	cases := []struct {
		name    string
		req     *orderv1.CreateOrderRequest
		code    codes.Code
		message string
	}{
		{
			name: "missing customer id",
			req:  &orderv1.CreateOrderRequest{Products: []orderv1.ProductQuantity{{ProductID: "p-1", Quantity: 1}}},
			code: codes.InvalidArgument,
		},
		{
			name:    "unknown customer",
			req:     &orderv1.CreateOrderRequest{CustomerID: "nobody", Products: []orderv1.ProductQuantity{{ProductID: "p-1", Quantity: 1}}},
			code:    codes.NotFound,
			message: "could not find any customer with the given id",
		},
		{
			name:    "no products found",
			req:     &orderv1.CreateOrderRequest{CustomerID: "c-1", Products: []orderv1.ProductQuantity{{ProductID: "x", Quantity: 1}}},
			code:    codes.NotFound,
			message: "could not find any product with the given id",
		},
		{
			name: "one product missing",
			req: &orderv1.CreateOrderRequest{CustomerID: "c-1", Products: []orderv1.ProductQuantity{
				{ProductID: "p-1", Quantity: 1},
				{ProductID: "p-9", Quantity: 1},
			}},
			code:    codes.NotFound,
			message: "could not find product p-9",
		},
		{
			name:    "insufficient stock",
			req:     &orderv1.CreateOrderRequest{CustomerID: "c-1", Products: []orderv1.ProductQuantity{{ProductID: "p-1", Quantity: 5}}},
			code:    codes.FailedPrecondition,
			message: "the quantity 5 is not available for p-1",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.client.CreateOrder(ctx, tc.req)
			require.Error(t, err)
			st, ok := status.FromError(err)
			require.True(t, ok)
			require.Equal(t, tc.code, st.Code())
			if tc.message != "" {
				require.Equal(t, tc.message, st.Message())
			}
		})
	}

	product, err := env.products.FindByID(ctx, "p-1")
	require.NoError(t, err)
	require.Equal(t, int32(3), product.Quantity, "rejected orders must not touch stock")
}

type failingCreator struct{}

func (failingCreator) CreateOrder(context.Context, domain.CreateOrderRequest) (domain.Order, error) {
	return domain.Order{}, errors.New("pq: connection refused to 10.0.0.5")
}

func TestOrderService_CreateOrder_InternalErrorIsOpaque(t *testing.T) {
	env := newTestServer(t, failingCreator{})

	_, err := env.client.CreateOrder(context.Background(), &orderv1.CreateOrderRequest{
		CustomerID: "c-1",
		Products:   []orderv1.ProductQuantity{{ProductID: "p-1", Quantity: 1}},
	})
	st, ok := status.FromError(err)
	require.True(t, ok)
	require.Equal(t, codes.Internal, st.Code())
	require.NotContains(t, st.Message(), "10.0.0.5")
}

type stockFailingCreator struct{}

func (stockFailingCreator) CreateOrder(context.Context, domain.CreateOrderRequest) (domain.Order, error) {
	return domain.Order{}, &domain.StockUpdateError{OrderID: "o-1", Err: domain.NewProductNotFoundError("p-1")}
}

func TestOrderService_CreateOrder_StockUpdateFailureIsInternal(t *testing.T) {
	env := newTestServer(t, stockFailingCreator{})

	_, err := env.client.CreateOrder(context.Background(), &orderv1.CreateOrderRequest{
		CustomerID: "c-1",
		Products:   []orderv1.ProductQuantity{{ProductID: "p-1", Quantity: 1}},
	})
	require.Equal(t, codes.Internal, status.Code(err))
}

func TestOrderService_GetOrder_Errors(t *testing.T) {
	env := newTestServer(t, nil)
	ctx := context.Background()

	_, err := env.client.GetOrder(ctx, &orderv1.GetOrderRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = env.client.GetOrder(ctx, &orderv1.GetOrderRequest{OrderID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))

	_, err = env.client.ListCustomerOrders(ctx, &orderv1.ListCustomerOrdersRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestOrderService_ListCustomerOrders_Limit(t *testing.T) {
	env := newTestServer(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.client.CreateOrder(ctx, &orderv1.CreateOrderRequest{
			CustomerID: "c-1",
			Products:   []orderv1.ProductQuantity{{ProductID: "p-2", Quantity: 1}},
		})
		require.NoError(t, err)
	}

	listed, err := env.client.ListCustomerOrders(ctx, &orderv1.ListCustomerOrdersRequest{CustomerID: "c-1", Limit: 2})
	require.NoError(t, err)
	require.Len(t, listed.Orders, 2)

	empty, err := env.client.ListCustomerOrders(ctx, &orderv1.ListCustomerOrdersRequest{CustomerID: "c-2"})
	require.NoError(t, err)
	require.Empty(t, empty.Orders)
}
