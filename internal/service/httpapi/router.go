// Package httpapi отдаёт REST API сервиса заказов поверх chi.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// RequestObserver принимает сведения об обработанном запросе. Реализуется *metrics.HTTPMetrics.
type RequestObserver interface {
	ObserveRequest(route, method string, code int, duration time.Duration)
}

// NewRouter регистрирует маршруты REST API.
func NewRouter(handler *Handler, observer RequestObserver) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(handler.logger))
	r.Use(middleware.Recoverer)
	if observer != nil {
		r.Use(observeRequests(observer))
	}

	r.Post("/orders", handler.CreateOrder)
	r.Get("/orders/{id}", handler.GetOrder)
	r.Get("/customers/{id}/orders", handler.ListCustomerOrders)
	r.Post("/customers", handler.RegisterCustomer)
	r.Post("/products", handler.AddProduct)
	r.Get("/products/{id}", handler.GetProduct)
	return r
}

// observeRequests пишет метрики по шаблону маршрута, а не по фактическому пути.
func observeRequests(observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			code := ww.Status()
			if code == 0 {
				code = http.StatusOK
			}
			observer.ObserveRequest(route, r.Method, code, time.Since(started))
		})
	}
}

func requestLogger(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.WithFields(log.Fields{
				"request_id":  middleware.GetReqID(r.Context()),
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(started).Milliseconds(),
			}).Debug("http request")
		})
	}
}
