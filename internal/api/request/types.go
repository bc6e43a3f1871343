package request

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxBodyBytes bounds request bodies
const maxBodyBytes = 1 << 20

// Decode reads a JSON body into dst. An empty body leaves dst untouched.
func Decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// RegisterRequest is the request body for registering a player
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	// Manager files a staff request that a superadmin must approve
	Manager bool `json:"manager"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// StartMissionRequest starts a mission; a missing level rolls one
type StartMissionRequest struct {
	Category string `json:"category"`
	Level    *int   `json:"level,omitempty"`
}

// AssignmentRequest targets a specific mission instance. An empty
// assignment id targets whatever mission is active.
type AssignmentRequest struct {
	AssignmentID string `json:"assignment_id,omitempty"`
}

// CompleteRequest is staff verification of a mission
type CompleteRequest struct {
	AssignmentID string `json:"assignment_id,omitempty"`
	Outcome      string `json:"outcome,omitempty"`
	Wager        int64  `json:"wager,omitempty"`
}

// AdjustRequest is an administrative balance change
type AdjustRequest struct {
	Field  string `json:"field"`
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

// ResetRequest clears a player's mission and alternation lock
type ResetRequest struct {
	Reason string `json:"reason"`
}

// SetRoleRequest is the request body for approving or revoking staff
type SetRoleRequest struct {
	Role string `json:"role"`
}
