package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/chaosroom/internal/api/handler"
	"github.com/mcoot/chaosroom/internal/api/middleware"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/services/auth"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/services/leaderboard"
	"github.com/mcoot/chaosroom/internal/services/session"
	"github.com/mcoot/chaosroom/internal/storage"
	"github.com/mcoot/chaosroom/internal/web/sse"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger             *slog.Logger
	Storage            storage.Store
	Clock              clock.Clock
	Catalog            *catalog.Catalog
	Chaos              *chaos.Driver
	AuthService        *auth.Service
	SessionService     *session.Service
	LeaderboardService *leaderboard.Service
	Broadcaster        *sse.Broadcaster
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	authHandler := handler.NewAuthHandler(cfg.AuthService)
	playerHandler := handler.NewPlayerHandler(cfg.SessionService, cfg.Logger)
	publicHandler := handler.NewPublicHandler(cfg.Storage, cfg.Catalog, cfg.Chaos, cfg.Clock, cfg.LeaderboardService, cfg.Broadcaster, cfg.Logger)
	staffHandler := handler.NewStaffHandler(cfg.SessionService)
	adminHandler := handler.NewAdminHandler(cfg.SessionService)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService, cfg.SessionService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	// API subrouter with common middleware
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(recoveryMiddleware)
	api.Use(loggingMiddleware)

	// Player routes (no auth required for registering/logging in)
	api.HandleFunc("/players/register", authHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/players/login", authHandler.Login).Methods(http.MethodPost)

	// Protected player routes
	players := api.PathPrefix("/players").Subrouter()
	players.Use(authMiddleware)
	players.HandleFunc("/logout", authHandler.Logout).Methods(http.MethodPost)
	players.HandleFunc("/me", playerHandler.GetMe).Methods(http.MethodGet)
	players.HandleFunc("/me/events", playerHandler.Events).Methods(http.MethodGet)
	players.HandleFunc("/me/ws", playerHandler.Socket).Methods(http.MethodGet)
	players.HandleFunc("/me/missions", playerHandler.StartMission).Methods(http.MethodPost)
	players.HandleFunc("/me/missions/active", playerHandler.Forfeit).Methods(http.MethodDelete)
	players.HandleFunc("/me/missions/active/expire", playerHandler.Expire).Methods(http.MethodPost)
	players.HandleFunc("/me/unlock", playerHandler.Unlock).Methods(http.MethodPost)
	players.HandleFunc("/me/skip-rule", playerHandler.SkipRule).Methods(http.MethodPost)

	// Public read-only routes
	api.HandleFunc("/chaos", publicHandler.Chaos).Methods(http.MethodGet)
	api.HandleFunc("/missions", publicHandler.Missions).Methods(http.MethodGet)
	api.HandleFunc("/missions/{id}", publicHandler.Mission).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard", publicHandler.Leaderboard).Methods(http.MethodGet)
	api.HandleFunc("/leaderboard/events", publicHandler.LeaderboardEvents).Methods(http.MethodGet)

	// Staff routes (capabilities are checked per action)
	staff := api.PathPrefix("/staff").Subrouter()
	staff.Use(authMiddleware)
	staff.HandleFunc("/players", staffHandler.Players).Methods(http.MethodGet)
	staff.HandleFunc("/players/{id}/complete", staffHandler.Complete).Methods(http.MethodPost)
	staff.HandleFunc("/players/{id}/cancel", staffHandler.Cancel).Methods(http.MethodPost)
	staff.HandleFunc("/players/{id}/adjust", staffHandler.Adjust).Methods(http.MethodPost)
	staff.HandleFunc("/players/{id}/reset", staffHandler.Reset).Methods(http.MethodPost)
	staff.HandleFunc("/players/{id}/audit", staffHandler.Audit).Methods(http.MethodGet)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware)
	admin.HandleFunc("/players/{id}/role", adminHandler.SetRole).Methods(http.MethodPut)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", publicHandler.Health).Methods(http.MethodGet)

	return r
}
