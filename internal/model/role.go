package model

import "fmt"

// Role determines which mutations an actor may request
type Role string

const (
	RoleParticipant    Role = "participant"
	RolePendingManager Role = "pending_manager"
	RoleManager        Role = "manager"
	RoleSuperAdmin     Role = "superadmin"
)

// legacyAdminRole is how older records spell superadmin
const legacyAdminRole = "admin"

// ParseRole converts a stored or requested role name into a Role
func ParseRole(s string) (Role, error) {
	switch s {
	case string(RoleParticipant):
		return RoleParticipant, nil
	case string(RolePendingManager):
		return RolePendingManager, nil
	case string(RoleManager):
		return RoleManager, nil
	case string(RoleSuperAdmin), legacyAdminRole:
		return RoleSuperAdmin, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

// Capability is a permission checked before a mutation is applied
type Capability int

const (
	CapPlay          Capability = iota // Start, forfeit, unlock and skip on own record
	CapVerify                          // Complete or cancel another player's mission
	CapAdjustBalance                   // Administrative score/token deltas
	CapResetPlayer                     // Clear mission and alternation lock
	CapViewRoster                      // List every player record
	CapManageStaff                     // Approve and revoke managers
)

var capabilities = map[Role]map[Capability]bool{
	RoleParticipant:    {CapPlay: true},
	RolePendingManager: {CapPlay: true},
	RoleManager: {
		CapPlay:          true,
		CapVerify:        true,
		CapAdjustBalance: true,
		CapResetPlayer:   true,
		CapViewRoster:    true,
	},
	RoleSuperAdmin: {
		CapPlay:          true,
		CapVerify:        true,
		CapAdjustBalance: true,
		CapResetPlayer:   true,
		CapViewRoster:    true,
		CapManageStaff:   true,
	},
}

// Can reports whether the role grants the capability
func (r Role) Can(c Capability) bool {
	return capabilities[r][c]
}

// IsStaff reports whether the role belongs to event staff
func (r Role) IsStaff() bool {
	return r != RoleParticipant
}

// Actor is whoever requests a mutation
type Actor struct {
	ID     PlayerID
	Role   Role
	System bool // Scheduler jobs and other server-internal callers
}

// SystemActor returns the actor used by server-side jobs
func SystemActor() Actor {
	return Actor{ID: "system", System: true}
}

// Can reports whether the actor holds the capability
func (a Actor) Can(c Capability) bool {
	return a.System || a.Role.Can(c)
}

// MayActOn reports whether the actor may touch the target's record: players act
// on their own record with CapPlay, acting on anyone else needs the staff capability
func (a Actor) MayActOn(target PlayerID, staff Capability) bool {
	if a.ID == target && a.Can(CapPlay) {
		return true
	}
	return a.Can(staff)
}
