package handler

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/chaosroom/internal/api/middleware"
	"github.com/mcoot/chaosroom/internal/api/response"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/services/leaderboard"
	"github.com/mcoot/chaosroom/internal/storage"
	"github.com/mcoot/chaosroom/internal/web/sse"
)

// PublicHandler serves read-only endpoints that need no session
type PublicHandler struct {
	store       storage.Store
	catalog     *catalog.Catalog
	chaos       *chaos.Driver
	clock       clock.Clock
	leaderboard *leaderboard.Service
	broadcaster *sse.Broadcaster
	logger      *slog.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(
	store storage.Store,
	cat *catalog.Catalog,
	driver *chaos.Driver,
	clk clock.Clock,
	lb *leaderboard.Service,
	broadcaster *sse.Broadcaster,
	logger *slog.Logger,
) *PublicHandler {
	return &PublicHandler{
		store:       store,
		catalog:     cat,
		chaos:       driver,
		clock:       clk,
		leaderboard: lb,
		broadcaster: broadcaster,
		logger:      logger.With(slog.String("component", "public_handler")),
	}
}

// Chaos handles GET /api/v1/chaos
func (h *PublicHandler) Chaos(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.ChaosFromCycle(h.chaos.At(h.clock.Now())))
}

// Missions handles GET /api/v1/missions, optionally filtered by ?category=
func (h *PublicHandler) Missions(w http.ResponseWriter, r *http.Request) {
	missions := h.catalog.All()

	if raw := r.URL.Query().Get("category"); raw != "" {
		category, err := model.ParseCategory(raw)
		if err != nil {
			WriteError(w, err)
			return
		}
		filtered := missions[:0]
		for _, m := range missions {
			if m.Category == category {
				filtered = append(filtered, m)
			}
		}
		missions = filtered
	}

	response.JSON(w, http.StatusOK, missions)
}

// Mission handles GET /api/v1/missions/{id}
func (h *PublicHandler) Mission(w http.ResponseWriter, r *http.Request) {
	id := model.MissionID(mux.Vars(r)["id"])

	m, ok := h.catalog.Lookup(id)
	if !ok {
		WriteError(w, model.ErrUnknownMission)
		return
	}

	response.JSON(w, http.StatusOK, m)
}

// leaderboardOptions reads ?by=, ?participants= and ?limit=. Staff are
// left out and the top ten shown unless the query says otherwise; limit=0
// returns every ranked player.
func leaderboardOptions(r *http.Request) (leaderboard.Options, error) {
	by, err := leaderboard.ParseSortBy(r.URL.Query().Get("by"))
	if err != nil {
		return leaderboard.Options{}, err
	}
	participants, err := queryBool(r, "participants", true)
	if err != nil {
		return leaderboard.Options{}, err
	}
	limit, err := queryInt(r, "limit", leaderboard.DefaultLimit)
	if err != nil {
		return leaderboard.Options{}, err
	}
	return leaderboard.Options{By: by, ParticipantsOnly: participants, Limit: limit}, nil
}

// Leaderboard handles GET /api/v1/leaderboard
func (h *PublicHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	opts, err := leaderboardOptions(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	entries, err := h.leaderboard.Top(r.Context(), opts)
	if err != nil {
		WriteError(w, model.PersistError(err))
		return
	}

	response.JSON(w, http.StatusOK, entries)
}

// LeaderboardEvents handles GET /api/v1/leaderboard/events
func (h *PublicHandler) LeaderboardEvents(w http.ResponseWriter, r *http.Request) {
	opts, err := leaderboardOptions(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	h.broadcaster.ServeLeaderboard(w, r, opts, middleware.RequestID(r.Context()))
}

// Health handles GET /api/v1/health
func (h *PublicHandler) Health(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Now(r.Context()); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		response.JSON(w, http.StatusServiceUnavailable, response.Health{Status: "degraded", Store: "unavailable"})
		return
	}
	response.JSON(w, http.StatusOK, response.Health{Status: "ok", Store: "ok"})
}
