package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kislikjeka/pocketledger/internal/transport/httpapi/handler"
	"github.com/kislikjeka/pocketledger/internal/transport/httpapi/middleware"
	"github.com/kislikjeka/pocketledger/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	AllowLocalhost     bool
	RateLimitRPS       int
	RateLimitBurst     int
	AccountHandler     *handler.AccountHandler
	TransactionHandler *handler.TransactionHandler
	StatsHandler       *handler.StatsHandler
	BackupHandler      *handler.BackupHandler
	ProfileHandler     *handler.ProfileHandler
	HealthHandler      *handler.HealthHandler
}

// NewRouter creates a new HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.CORS(cfg.AllowedOrigins, cfg.AllowLocalhost))
	r.Use(chimiddleware.Compress(5))
	if cfg.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	r.NotFound(handler.RouteNotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	// Health check endpoints
	r.Get("/health", handler.GetHealth)
	r.Get("/health/live", handler.GetLiveness)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
		r.Get("/health/detailed", cfg.HealthHandler.GetHealthDetailed)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.AccountHandler != nil {
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", cfg.AccountHandler.GetAccounts)
				r.Post("/", cfg.AccountHandler.CreateAccount)
				r.Get("/{id}", cfg.AccountHandler.GetAccount)
				r.Put("/{id}", cfg.AccountHandler.UpdateAccount)
				r.Delete("/{id}", cfg.AccountHandler.DeleteAccount)
				r.Put("/{id}/opening-balance", cfg.AccountHandler.SetOpeningBalance)
				r.Get("/{id}/funds", cfg.AccountHandler.CheckFunds)
			})
		}

		if cfg.TransactionHandler != nil {
			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", cfg.TransactionHandler.GetTransactions)
				r.Post("/", cfg.TransactionHandler.CreateTransaction)
				r.Get("/{id}", cfg.TransactionHandler.GetTransaction)
				r.Put("/{id}", cfg.TransactionHandler.UpdateTransaction)
				r.Delete("/{id}", cfg.TransactionHandler.DeleteTransaction)
			})
		}

		if cfg.StatsHandler != nil {
			r.Get("/stats", cfg.StatsHandler.GetStats)
			r.Get("/stats/monthly", cfg.StatsHandler.GetMonthlyStats)
			r.Get("/stats/categories", cfg.StatsHandler.GetCategoryStats)
			r.Get("/reconcile", cfg.StatsHandler.Reconcile)
		}

		if cfg.BackupHandler != nil {
			r.Get("/backup", cfg.BackupHandler.Export)
			r.Post("/backup/restore", cfg.BackupHandler.Restore)
			r.Post("/backup/restore-last", cfg.BackupHandler.RestoreLast)
			r.Delete("/data", cfg.BackupHandler.ClearData)
		}

		if cfg.ProfileHandler != nil {
			r.Get("/profile", cfg.ProfileHandler.GetProfile)
			r.Put("/profile", cfg.ProfileHandler.UpdateProfile)
		}
	})

	return r
}
