package server

import (
	"net/http"

	"subscription-tracker/internal/database"
	"subscription-tracker/internal/handlers"
	"subscription-tracker/internal/workers"

	"github.com/go-chi/chi/v5"
)

// Handlers bundles the HTTP handlers wired into the router.
type Handlers struct {
	Health        *handlers.HealthHandler
	Accounts      *handlers.AccountHandler
	Subscriptions *handlers.SubscriptionHandler
}

// NewHandlers creates the handler set over shared infrastructure.
func NewHandlers(db *database.DB, supervisor *workers.Supervisor) *Handlers {
	return &Handlers{
		Health:        handlers.NewHealthHandler(db),
		Accounts:      handlers.NewAccountHandler(db, supervisor),
		Subscriptions: handlers.NewSubscriptionHandler(db),
	}
}

// NewRouter builds the chi router with the standard middleware chain.
func NewRouter(h *Handlers) http.Handler {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health.HealthCheck)

		r.Get("/accounts", h.Accounts.GetAccounts)
		r.Get("/accounts/{id}", h.Accounts.GetAccountByID)
		r.Post("/accounts/{id}/sync", h.Accounts.StartSync)
		r.Post("/accounts/{id}/process", h.Accounts.StartProcessing)

		r.Get("/users/{id}/subscriptions", h.Subscriptions.GetUserSubscriptions)
	})

	return Chain(r,
		RecoveryMiddleware,
		LoggingMiddleware,
		SecurityMiddleware,
		CORSMiddleware,
		ContentTypeMiddleware,
	)
}
