package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"pharmapos-backend/internal/config"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/handler"
)

// Handlers groups everything the router mounts.
type Handlers struct {
	Health    handler.HealthHandler
	Auth      handler.AuthHandler
	Sales     handler.SaleHandler
	Credit    handler.CreditHandler
	Stock     handler.StockHandler
	Medicines handler.MedicineHandler
}

// NewRouter wires HTTP routes and middleware.
func NewRouter(cfg config.Config, logger *slog.Logger, h Handlers) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Timeout(requestTimeout(cfg)))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httprate.LimitByIP(200, 1*time.Minute))

	h.Health.RegisterRoutes(r)
	h.Auth.RegisterRoutes(r)
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(AuthMiddleware(cfg.JWTSecret))
		// counter-level (cashier/manager/admin)
		pr.Group(func(cr chi.Router) {
			cr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager, domain.RoleCashier))
			h.Sales.RegisterRoutes(cr)
			h.Credit.RegisterRoutes(cr)
			h.Stock.RegisterRoutes(cr)
		})
		// manager-level (manager/admin)
		pr.Group(func(mr chi.Router) {
			mr.Use(RequireRole(domain.RoleAdmin, domain.RoleManager))
			h.Sales.RegisterManagerRoutes(mr)
			h.Stock.RegisterManagerRoutes(mr)
			h.Medicines.RegisterRoutes(mr)
		})
	})

	return r
}

func requestTimeout(cfg config.Config) time.Duration {
	if cfg.RequestTimeout > 0 {
		return cfg.RequestTimeout
	}
	return 60 * time.Second
}
