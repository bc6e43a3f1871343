package model

import (
	"errors"
	"fmt"
)

// Common errors used across the application
var (
	// Player errors
	ErrPlayerNotFound = errors.New("player not found")
	ErrEmailExists    = errors.New("email already registered")

	// Session state machine rejections
	ErrCategoryLocked         = errors.New("category locked: alternate categories or unlock")
	ErrMissionActive          = errors.New("a mission is already active")
	ErrNoActiveMission        = errors.New("no active mission")
	ErrMissionNotExpired      = errors.New("mission timer has not elapsed")
	ErrMissionAlreadyResolved = errors.New("mission was already resolved")
	ErrInsufficientBalance    = errors.New("insufficient balance")
	ErrAlreadyImmune          = errors.New("rule already skipped this cycle")
	ErrAlreadyUnlocked        = errors.New("category already unlocked")

	// Authorization
	ErrForbidden             = errors.New("actor is not allowed to perform this action")
	ErrInvalidRoleTransition = errors.New("invalid role transition")

	// Validation
	ErrInvalidRole     = errors.New("invalid role")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidLevel    = errors.New("invalid mission level")
	ErrUnknownMission  = errors.New("unknown mission")
	ErrUnknownOutcome  = errors.New("unknown outcome")
	ErrInvalidWager    = errors.New("wager must be positive")
	ErrInvalidField    = errors.New("invalid balance field")

	// Store failures
	ErrPersistFailed = errors.New("failed to persist change")
)

var rejections = []error{
	ErrCategoryLocked,
	ErrMissionActive,
	ErrNoActiveMission,
	ErrMissionNotExpired,
	ErrMissionAlreadyResolved,
	ErrInsufficientBalance,
	ErrAlreadyImmune,
	ErrAlreadyUnlocked,
	ErrForbidden,
	ErrInvalidRoleTransition,
	ErrInvalidRole,
	ErrInvalidCategory,
	ErrInvalidLevel,
	ErrUnknownMission,
	ErrUnknownOutcome,
	ErrInvalidWager,
	ErrInvalidField,
}

// IsRejection reports whether err is a precondition rejection, meaning no
// store write was attempted and state is unchanged
func IsRejection(err error) bool {
	for _, r := range rejections {
		if errors.Is(err, r) {
			return true
		}
	}
	return false
}

// PersistError marks a store failure so callers can tell it apart from a rejection
func PersistError(err error) error {
	if err == nil || errors.Is(err, ErrPersistFailed) || IsRejection(err) || errors.Is(err, ErrPlayerNotFound) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistFailed, err)
}
