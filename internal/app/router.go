// Package app wires configuration, adapters and services into runnable
// processes.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/orderflow/internal/adapter/httpserver"
	"github.com/fairyhunter13/orderflow/internal/adapter/observability"
	"github.com/fairyhunter13/orderflow/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming
// spaces. An empty input means all origins.
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// ReadyCheck is one named readiness probe.
type ReadyCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
func BuildRouter(cfg config.Config, srv *httpserver.Server, checks []ReadyCheck) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPRequestTimeout))
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Order intake and retrieval require an authenticated caller; intake is
	// additionally rate limited per IP.
	r.Group(func(ar chi.Router) {
		ar.Use(httpserver.RequireAuth(cfg.JWTSecret))
		ar.Group(func(wr chi.Router) {
			wr.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
			wr.Post("/v1/orders", srv.CreateOrder)
		})
		ar.Get("/v1/orders", srv.ListOrders)
		ar.Get("/v1/orders/{id}", srv.GetOrder)
	})

	// Catalog admin surface, outside the order hot path.
	r.Post("/v1/products", srv.CreateProduct)
	r.Get("/v1/products", srv.ListProducts)
	r.Get("/v1/products/{id}", srv.GetProduct)
	r.Post("/v1/stocks", srv.CreateStock)
	r.Put("/v1/stocks/{id}", srv.UpdateStock)
	r.Get("/v1/stocks", srv.ListStocks)
	r.Get("/v1/stocks/{id}", srv.GetStock)
	r.Get("/v1/products-with-stock", srv.ListProductsWithStock)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) { promhttp.Handler().ServeHTTP(w, req) })
	r.Get("/readyz", ReadyzHandler(checks))

	return httpserver.SecurityHeaders(r)
}
