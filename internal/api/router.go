/**
 * @description
 * This file sets up the HTTP router for the ledger service. It defines the API
 * endpoints, associates them with their handlers, and applies middleware for
 * CORS, authentication and rate limiting of money-moving routes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS preflight handling.
 */

package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	Auth               AuthConfig
	AllowedOrigins     []string
	RateLimiter        RateLimiter
	MoneyRatePerMinute int
}

// Routes creates and returns the router for the ledger service.
func Routes(h *Handler, opts RouterOptions, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(opts.Auth, logger))

		r.Get("/balance", h.GetBalance)
		r.Get("/accounts/lookup", h.LookupAccount)
		r.Get("/commission/quote", h.QuoteCommission)

		r.Get("/transactions", h.ListTransactions)
		r.Get("/transactions/stats", h.TransactionStats)
		r.Get("/transactions/{reference}", h.GetTransaction)

		r.Get("/withdrawal-requests/pending", h.ListPendingWithdrawalRequests)
		r.Get("/withdrawal-requests/{id}", h.GetWithdrawalRequest)

		r.Get("/notifications", h.ListNotifications)
		r.Post("/notifications/read-all", h.MarkAllNotificationsRead)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)

		r.Route("/admin/commission-schedules/{purpose}", func(r chi.Router) {
			r.Get("/", h.GetCommissionSchedule)
			r.Put("/", h.ReplaceCommissionSchedule)
			r.Delete("/", h.ResetCommissionSchedule)
		})
		r.Post("/admin/notifications/broadcast", h.BroadcastNotification)
		r.Get("/admin/me/summary", h.AdminSummary)
		r.Post("/admin/accounts/{id}/suspend", h.SuspendAccount)
		r.Post("/admin/accounts/{id}/unsuspend", h.UnsuspendAccount)

		// Money-moving routes share one per-account rate limit.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(opts.RateLimiter, "money_movement", opts.MoneyRatePerMinute, logger))

			r.Post("/transactions/send", h.SendMoney)
			r.Post("/withdrawals", h.Withdraw)
			r.Post("/withdrawal-requests", h.RequestWithdrawal)
			r.Post("/withdrawal-requests/{id}/approve", h.ApproveWithdrawalRequest)
			r.Post("/withdrawal-requests/{id}/reject", h.RejectWithdrawalRequest)

			r.Post("/admin/cashout", h.AdminCashout)
			r.Post("/admin/push", h.AdminPush)
			r.Post("/admin/accounts/{id}/topup", h.TopupAccount)
			r.Post("/admin/accounts/{id}/withdraw", h.WithdrawFromAccount)

			r.Post("/state-pushes", h.CreateStatePush)
			r.Post("/state-pushes/{reference}/receive", h.ReceiveStatePush)
			r.Post("/state-pushes/{reference}/cancel", h.CancelStatePush)
			r.Patch("/state-pushes/{reference}", h.EditStatePush)
		})
	})

	return r
}
