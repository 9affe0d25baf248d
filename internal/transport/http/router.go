package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-notify-nosql/internal/config"
	"github.com/go-notify-nosql/internal/transport/http/handler"
	appmiddleware "github.com/go-notify-nosql/internal/transport/http/middleware"
	"golang.org/x/time/rate"
)

// NewRouter builds and returns the application router. ctx bounds the
// lifetime of background helpers such as the rate limiter sweep.
func NewRouter(ctx context.Context, cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	var authMw func(http.Handler) http.Handler
	if deps.JWTProvider != nil {
		authMw = appmiddleware.Auth(deps.JWTProvider)
	} else {
		authMw = func(next http.Handler) http.Handler { return next }
	}

	// Ingestion and socket upgrades: 20 requests/second per IP, burst of 40.
	ingestRL := appmiddleware.NewRateLimiter(ctx, rate.Limit(20), 40)

	healthH := handler.NewHealthHandler()
	notifH := handler.NewNotificationHandler(deps.Notifications)
	deviceH := handler.NewDeviceHandler(deps.Tokens)
	realtimeH := handler.NewRealtimeHandler(deps.Hub, deps.Sessions)

	r.Route("/v1", func(r chi.Router) {
		// Public
		r.Get("/health-check/{action}", healthH.Ping)
		r.Post("/health-check/{action}", healthH.Ping)
		// The join frame names the recipient; the socket carries no JWT.
		r.With(ingestRL.Limit).Handle("/ws", deps.Hub)

		// Authenticated
		r.Group(func(r chi.Router) {
			r.Use(authMw)

			r.Get("/notifications", notifH.List)
			r.Put("/notifications/{id}/read", notifH.MarkRead)
			r.Get("/notifications/{id}/bundle", notifH.BundleDetails)
			r.Post("/devices/tokens", deviceH.RegisterToken)
			r.Delete("/devices/tokens", deviceH.UnregisterToken)

			// Admin and service callers
			r.Group(func(r chi.Router) {
				r.Use(appmiddleware.RequireRole(appmiddleware.RoleAdmin, appmiddleware.RoleService))
				r.Use(ingestRL.Limit)

				r.Post("/notifications", notifH.Create)
				r.Post("/notifications/batch", notifH.CreateBatch)
				r.Post("/notifications/bulk", notifH.CreateBulk)
				r.Post("/notifications/cleanup/{recipientID}", notifH.Cleanup)
				r.Post("/broadcast", realtimeH.Broadcast)
				r.Get("/sessions/stats", realtimeH.Stats)
			})
		})
	})

	return r
}
