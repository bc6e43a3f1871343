package apierr

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/auth"
)

// APIError represents an API error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps an APIError
type ErrorResponse struct {
	Error APIError `json:"error"`
}

// Common error codes
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodePlayerNotFound       = "PLAYER_NOT_FOUND"
	CodeMissionNotFound      = "MISSION_NOT_FOUND"
	CodeCategoryLocked       = "CATEGORY_LOCKED"
	CodeMissionActive        = "MISSION_ACTIVE"
	CodeNoActiveMission      = "NO_ACTIVE_MISSION"
	CodeMissionNotExpired    = "MISSION_NOT_EXPIRED"
	CodeAlreadyResolved      = "MISSION_ALREADY_RESOLVED"
	CodeInsufficientBalance  = "INSUFFICIENT_BALANCE"
	CodeAlreadyImmune        = "ALREADY_IMMUNE"
	CodeAlreadyUnlocked      = "ALREADY_UNLOCKED"
	CodeInvalidRoleChange    = "INVALID_ROLE_TRANSITION"
	CodeInvalidCategory      = "INVALID_CATEGORY"
	CodeInvalidLevel         = "INVALID_LEVEL"
	CodeUnknownOutcome       = "UNKNOWN_OUTCOME"
	CodeInvalidWager         = "INVALID_WAGER"
	CodeInvalidField         = "INVALID_FIELD"
	CodeInvalidRole          = "INVALID_ROLE"
	CodeEmailExists          = "EMAIL_EXISTS"
	CodeInvalidCredentials   = "INVALID_CREDENTIALS"
	CodeInvalidEmail         = "INVALID_EMAIL"
	CodePasswordTooShort     = "PASSWORD_TOO_SHORT"
	CodeStoreUnavailable     = "STORE_UNAVAILABLE"
	CodeInternalError        = "INTERNAL_ERROR"
)

// httpError combines an HTTP status code with an APIError
type httpError struct {
	status   int
	apiError APIError
}

// Error implements error interface
func (e *httpError) Error() string {
	return e.apiError.Message
}

// WriteError writes an error response to the response writer
func WriteError(w http.ResponseWriter, err error) {
	status, apiError := Describe(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: apiError})
}

// Describe returns the HTTP status and API error for err. Streaming
// transports use it to report failures in their own framing.
func Describe(err error) (int, APIError) {
	he := toHTTPError(err)
	return he.status, he.apiError
}

type mapping struct {
	target error
	status int
	code   string
}

// Rejections carry the sentinel's own message so clients can show it
var mappings = []mapping{
	{model.ErrPlayerNotFound, http.StatusNotFound, CodePlayerNotFound},
	{model.ErrUnknownMission, http.StatusNotFound, CodeMissionNotFound},
	{model.ErrForbidden, http.StatusForbidden, CodeForbidden},
	{model.ErrCategoryLocked, http.StatusConflict, CodeCategoryLocked},
	{model.ErrMissionActive, http.StatusConflict, CodeMissionActive},
	{model.ErrNoActiveMission, http.StatusConflict, CodeNoActiveMission},
	{model.ErrMissionNotExpired, http.StatusConflict, CodeMissionNotExpired},
	{model.ErrMissionAlreadyResolved, http.StatusConflict, CodeAlreadyResolved},
	{model.ErrInsufficientBalance, http.StatusConflict, CodeInsufficientBalance},
	{model.ErrAlreadyImmune, http.StatusConflict, CodeAlreadyImmune},
	{model.ErrAlreadyUnlocked, http.StatusConflict, CodeAlreadyUnlocked},
	{model.ErrInvalidRoleTransition, http.StatusConflict, CodeInvalidRoleChange},
	{model.ErrInvalidCategory, http.StatusBadRequest, CodeInvalidCategory},
	{model.ErrInvalidLevel, http.StatusBadRequest, CodeInvalidLevel},
	{model.ErrUnknownOutcome, http.StatusBadRequest, CodeUnknownOutcome},
	{model.ErrInvalidWager, http.StatusBadRequest, CodeInvalidWager},
	{model.ErrInvalidField, http.StatusBadRequest, CodeInvalidField},
	{model.ErrInvalidRole, http.StatusBadRequest, CodeInvalidRole},
	{model.ErrEmailExists, http.StatusConflict, CodeEmailExists},
	{auth.ErrInvalidEmail, http.StatusBadRequest, CodeInvalidEmail},
	{auth.ErrPasswordTooShort, http.StatusBadRequest, CodePasswordTooShort},
}

// toHTTPError converts an error to an httpError
func toHTTPError(err error) *httpError {
	var he *httpError
	if errors.As(err, &he) {
		return he
	}

	for _, m := range mappings {
		if errors.Is(err, m.target) {
			return &httpError{m.status, APIError{m.code, m.target.Error()}}
		}
	}

	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return &httpError{http.StatusUnauthorized, APIError{CodeInvalidCredentials, "Invalid email or password"}}
	case errors.Is(err, auth.ErrInvalidSession):
		return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Invalid or expired session"}}
	case errors.Is(err, model.ErrPersistFailed):
		return &httpError{http.StatusServiceUnavailable, APIError{CodeStoreUnavailable, "The change could not be saved, please retry"}}
	default:
		return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
	}
}

// NewInvalidRequestError creates an invalid request error
func NewInvalidRequestError(message string) error {
	return &httpError{http.StatusBadRequest, APIError{CodeInvalidRequest, message}}
}

// NewUnauthorizedError creates an unauthorized error
func NewUnauthorizedError() error {
	return &httpError{http.StatusUnauthorized, APIError{CodeUnauthorized, "Authentication required"}}
}

// NewInternalError creates an internal server error
func NewInternalError() error {
	return &httpError{http.StatusInternalServerError, APIError{CodeInternalError, "Internal server error"}}
}
