package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/mcoot/chaosroom/internal/api/middleware"
	"github.com/mcoot/chaosroom/internal/api/request"
	"github.com/mcoot/chaosroom/internal/api/response"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/session"
	"github.com/mcoot/chaosroom/internal/web/sse"
	"github.com/mcoot/chaosroom/internal/web/ws"
)

// Websocket command types
const (
	CommandStart   = "start"
	CommandRoll    = "roll"
	CommandForfeit = "forfeit"
	CommandExpire  = "expire"
	CommandUnlock  = "unlock"
	CommandSkip    = "skip"
)

// EventView names the SSE event carrying a session view
const EventView = "view"

// PlayerHandler handles a signed-in player's own session
type PlayerHandler struct {
	sessions *session.Service
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

// NewPlayerHandler creates a new player handler
func NewPlayerHandler(sessions *session.Service, logger *slog.Logger) *PlayerHandler {
	return &PlayerHandler{
		sessions: sessions,
		upgrader: ws.NewUpgrader(),
		logger:   logger.With(slog.String("component", "player_handler")),
	}
}

// GetMe handles GET /api/v1/players/me
func (h *PlayerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	view, err := h.sessions.Snapshot(r.Context(), actor, actor.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ViewFromSession(view))
}

// StartMission handles POST /api/v1/players/me/missions. A missing level
// rolls one at random.
func (h *PlayerHandler) StartMission(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.StartMissionRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.start(r.Context(), actor, req)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.PlayerFromModel(rec))
}

func (h *PlayerHandler) start(ctx context.Context, actor model.Actor, req request.StartMissionRequest) (*model.PlayerRecord, error) {
	category, err := model.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	if req.Level == nil {
		return h.sessions.RollMission(ctx, actor, actor.ID, category)
	}
	return h.sessions.StartMission(ctx, actor, actor.ID, category, *req.Level)
}

// Forfeit handles DELETE /api/v1/players/me/missions/active
func (h *PlayerHandler) Forfeit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.AssignmentRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.sessions.CancelMission(r.Context(), actor, actor.ID, model.AssignmentID(req.AssignmentID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Expire handles POST /api/v1/players/me/missions/active/expire
func (h *PlayerHandler) Expire(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.AssignmentRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.sessions.ExpireMission(r.Context(), actor, actor.ID, model.AssignmentID(req.AssignmentID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ResolutionFromModel(res))
}

// Unlock handles POST /api/v1/players/me/unlock
func (h *PlayerHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	rec, err := h.sessions.UnlockCategory(r.Context(), actor, actor.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// SkipRule handles POST /api/v1/players/me/skip-rule
func (h *PlayerHandler) SkipRule(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	rec, err := h.sessions.SkipRule(r.Context(), actor, actor.ID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// watch opens a session for the caller. passive=true observes without
// driving expiry or survival credit.
func (h *PlayerHandler) watch(r *http.Request, actor model.Actor) (*session.Watcher, error) {
	passive, err := queryBool(r, "passive", false)
	if err != nil {
		return nil, err
	}
	return h.sessions.Watch(r.Context(), actor.ID, session.WatchOptions{Passive: passive})
}

// Events handles GET /api/v1/players/me/events
func (h *PlayerHandler) Events(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	watcher, err := h.watch(r, actor)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer watcher.Close()

	views := make(chan response.View)
	go func() {
		defer close(views)
		for v := range watcher.Views() {
			select {
			case views <- response.ViewFromSession(v):
			case <-r.Context().Done():
				return
			}
		}
	}()

	sse.Stream(w, r, EventView, views)
}

// Socket handles GET /api/v1/players/me/ws
func (h *PlayerHandler) Socket(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	watcher, err := h.watch(r, actor)
	if err != nil {
		WriteError(w, err)
		return
	}
	defer watcher.Close()

	ws.Serve(w, r, h.upgrader, watcher, h.dispatcher(actor), h.logger)
}

// dispatcher maps websocket frames onto session commands for the actor
func (h *PlayerHandler) dispatcher(actor model.Actor) ws.Dispatcher {
	return func(msg ws.Inbound) (string, ws.Command, error) {
		switch msg.Type {
		case CommandStart, CommandRoll:
			var req request.StartMissionRequest
			if err := payload(msg, &req); err != nil {
				return "", nil, err
			}
			if msg.Type == CommandRoll {
				req.Level = nil
			}
			return msg.Type, func(ctx context.Context) error {
				_, err := h.start(ctx, actor, req)
				return err
			}, nil

		case CommandForfeit:
			var req request.AssignmentRequest
			if err := payload(msg, &req); err != nil {
				return "", nil, err
			}
			return msg.Type, func(ctx context.Context) error {
				_, err := h.sessions.CancelMission(ctx, actor, actor.ID, model.AssignmentID(req.AssignmentID))
				return err
			}, nil

		case CommandExpire:
			var req request.AssignmentRequest
			if err := payload(msg, &req); err != nil {
				return "", nil, err
			}
			return msg.Type, func(ctx context.Context) error {
				_, err := h.sessions.ExpireMission(ctx, actor, actor.ID, model.AssignmentID(req.AssignmentID))
				return err
			}, nil

		case CommandUnlock:
			return msg.Type, func(ctx context.Context) error {
				_, err := h.sessions.UnlockCategory(ctx, actor, actor.ID)
				return err
			}, nil

		case CommandSkip:
			return msg.Type, func(ctx context.Context) error {
				_, err := h.sessions.SkipRule(ctx, actor, actor.ID)
				return err
			}, nil

		default:
			return "", nil, NewInvalidRequestError("unknown command type: " + msg.Type)
		}
	}
}

// payload decodes an optional frame payload
func payload(msg ws.Inbound, dst any) error {
	if len(msg.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(msg.Payload, dst); err != nil {
		return NewInvalidRequestError("invalid payload for " + msg.Type)
	}
	return nil
}
