// Package router assembles the HTTP surface of the bot.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mohomer/layla-concierge/internal/http/handlers"
	httpmiddleware "github.com/mohomer/layla-concierge/internal/http/middleware"
	"github.com/mohomer/layla-concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger         *logging.Logger
	Webhook        *handlers.WebhookHandler
	Sync           *handlers.SyncHandler
	MetricsHandler http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/", handlers.Health)
	if cfg.Webhook != nil {
		r.Post("/webhook", cfg.Webhook.Handle)
	}
	if cfg.Sync != nil {
		r.Post("/webhook-google-sync", cfg.Sync.Handle)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
