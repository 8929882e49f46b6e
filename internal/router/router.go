package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/alekpr/dksh-e-market-api/internal/config"
	"github.com/alekpr/dksh-e-market-api/internal/enum"
	"github.com/alekpr/dksh-e-market-api/internal/handler"
	mw "github.com/alekpr/dksh-e-market-api/internal/middleware"
	"github.com/alekpr/dksh-e-market-api/internal/orderview"
	"github.com/alekpr/dksh-e-market-api/internal/ws"
)

// New creates a Chi router with all order view routes wired up.
func New(cfg *config.Config, mgr *orderview.Manager, hub *ws.Hub, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	// Standard middleware
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	// CORS configuration
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{
			"http://localhost:5173", // dashboard dev server
			"https://cms.dksh-emarket.com",
			"https://stg-cms.dksh-emarket.com",
		},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // 5 minutes
	}))

	// Public routes
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","version":"1.0.0"}`))
	})

	// WebSocket route (handles auth internally via query param)
	r.Get("/ws/stores/{sid}/orders", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWS(hub, cfg.JWTSecret, w, r)
	})

	// Protected routes (require authentication)
	r.Group(func(r chi.Router) {
		r.Use(mw.Authenticate(cfg.JWTSecret))

		orderViewHandler := handler.NewOrderViewHandler(mgr, hub, logger)
		r.Route("/orders", func(r chi.Router) {
			orderViewHandler.RegisterRoutes(r)

			// Assignment is an admin-only action
			r.Group(func(r chi.Router) {
				r.Use(mw.RequireRole(enum.RoleAdmin))
				r.Post("/{id}/assign", orderViewHandler.Assign)
			})
		})
	})

	logger.Info("router initialized")
	return r
}
