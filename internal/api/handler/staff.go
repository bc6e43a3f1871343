package handler

import (
	"net/http"
	"strings"

	"github.com/mcoot/chaosroom/internal/api/middleware"
	"github.com/mcoot/chaosroom/internal/api/request"
	"github.com/mcoot/chaosroom/internal/api/response"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/session"
	"github.com/mcoot/chaosroom/internal/storage"
)

// defaultAuditLimit bounds audit pages when no limit is given
const defaultAuditLimit = 50

// StaffHandler handles staff actions on other players' records.
// Capabilities are checked by the session service.
type StaffHandler struct {
	sessions *session.Service
}

// NewStaffHandler creates a new staff handler
func NewStaffHandler(sessions *session.Service) *StaffHandler {
	return &StaffHandler{
		sessions: sessions,
	}
}

// Players handles GET /api/v1/staff/players, optionally filtered by ?role=a,b
func (h *StaffHandler) Players(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var filter storage.Filter
	if raw := r.URL.Query().Get("role"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			role, err := model.ParseRole(strings.TrimSpace(name))
			if err != nil {
				WriteError(w, err)
				return
			}
			filter.Roles = append(filter.Roles, role)
		}
	}

	records, err := h.sessions.Roster(r.Context(), actor, filter)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayersFromModel(records))
}

// Complete handles POST /api/v1/staff/players/{id}/complete
func (h *StaffHandler) Complete(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.CompleteRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.sessions.CompleteMission(r.Context(), actor, targetID(r), model.AssignmentID(req.AssignmentID), session.OutcomeInput{
		Label: req.Outcome,
		Wager: req.Wager,
	})
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.ResolutionFromModel(res))
}

// Cancel handles POST /api/v1/staff/players/{id}/cancel
func (h *StaffHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.AssignmentRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.sessions.CancelMission(r.Context(), actor, targetID(r), model.AssignmentID(req.AssignmentID))
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Adjust handles POST /api/v1/staff/players/{id}/adjust
func (h *StaffHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.AdjustRequest
	if !decode(w, r, &req) {
		return
	}

	field, err := model.ParseBalanceField(req.Field)
	if err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.sessions.AdjustBalance(r.Context(), actor, targetID(r), field, req.Delta, req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Reset handles POST /api/v1/staff/players/{id}/reset
func (h *StaffHandler) Reset(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.ResetRequest
	if !decode(w, r, &req) {
		return
	}

	rec, err := h.sessions.ResetPlayer(r.Context(), actor, targetID(r), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}

// Audit handles GET /api/v1/staff/players/{id}/audit
func (h *StaffHandler) Audit(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	limit, err := queryInt(r, "limit", defaultAuditLimit)
	if err != nil {
		WriteError(w, err)
		return
	}

	id := targetID(r)
	entries, err := h.sessions.AuditLog(r.Context(), actor, id, limit)
	if err != nil {
		WriteError(w, model.PersistError(err))
		return
	}
	if entries == nil {
		entries = []model.AuditEntry{}
	}

	response.JSON(w, http.StatusOK, response.Audit{PlayerID: string(id), Entries: entries})
}

// AdminHandler handles superadmin staff management
type AdminHandler struct {
	sessions *session.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(sessions *session.Service) *AdminHandler {
	return &AdminHandler{
		sessions: sessions,
	}
}

// SetRole handles PUT /api/v1/admin/players/{id}/role
func (h *AdminHandler) SetRole(w http.ResponseWriter, r *http.Request) {
	actor := middleware.MustGetActor(r.Context())

	var req request.SetRoleRequest
	if !decode(w, r, &req) {
		return
	}

	role, err := model.ParseRole(req.Role)
	if err != nil {
		WriteError(w, err)
		return
	}

	rec, err := h.sessions.SetRole(r.Context(), actor, targetID(r), role)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.PlayerFromModel(rec))
}
