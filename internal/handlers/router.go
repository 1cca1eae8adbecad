package handlers

import (
	"net/http"

	"github.com/a2sh3r/fundsledger/internal/metrics"
	"github.com/a2sh3r/fundsledger/internal/middleware"
	"github.com/a2sh3r/fundsledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

type Handler struct {
	ledgerService     service.LedgerService
	withdrawalService service.WithdrawalService
	validate          *validator.Validate
}

func NewHandler(ledgerService service.LedgerService, withdrawalService service.WithdrawalService) *Handler {
	return &Handler{
		ledgerService:     ledgerService,
		withdrawalService: withdrawalService,
		validate:          validator.New(),
	}
}

type RouterConfig struct {
	SecretKey      string
	RateLimitRPS   float64
	RateLimitBurst int
	Metrics        *metrics.Metrics
	Registry       *prometheus.Registry
}

func NewRouter(handler *Handler, cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.NewLoggingMiddleware(cfg.Metrics))
	r.Use(middleware.NewGzipMiddleware())

	var limiter *middleware.ClientLimiter
	if cfg.RateLimitRPS > 0 {
		limiter = middleware.NewClientRateLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid URL format", http.StatusNotFound)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Registry != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Registry))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimitMiddleware(limiter))

		r.Route("/balances/{userID}", func(r chi.Router) {
			r.Get("/", handler.GetBalances)
			r.Get("/transactions", handler.GetTransactions)
			r.Post("/credit", handler.Credit)
			r.Post("/hold", handler.Hold)
			r.Post("/release", handler.Release)
			r.Post("/settle", handler.Settle)
			r.Post("/debit", handler.Debit)
		})

		r.Get("/users/{userID}/withdrawals", handler.ListUserWithdrawals)

		r.Route("/withdrawals", func(r chi.Router) {
			r.Post("/", handler.InitiateWithdrawal)
			r.Get("/{id}", handler.GetWithdrawal)
			r.Post("/{id}/process", handler.ProcessWithdrawal)
			r.Post("/{id}/reject", handler.RejectWithdrawal)
			r.Post("/{id}/cancel", handler.CancelWithdrawal)
			r.Post("/{id}/complete", handler.CompleteWithdrawal)
			r.Post("/{id}/fail", handler.FailWithdrawal)
			r.Post("/{id}/refund", handler.RefundWithdrawal)
		})

		r.With(middleware.NewSignatureMiddleware(cfg.SecretKey)).Post("/webhooks/payout", handler.PayoutWebhook)
	})

	return r
}
