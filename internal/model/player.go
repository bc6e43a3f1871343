package model

import (
	"strings"
	"time"
)

// PlayerID uniquely identifies a player across the system
type PlayerID string

// AssignmentID identifies one started mission instance
type AssignmentID string

// SessionState is the derived state of a player's mission session
type SessionState string

const (
	StateIdle                 SessionState = "idle"
	StateInMission            SessionState = "in_mission"
	StateAwaitingVerification SessionState = "awaiting_verification" // Timer elapsed, record not yet cleared
)

// ActiveGame is the mission a player currently holds
type ActiveGame struct {
	AssignmentID AssignmentID `json:"assignment_id"`
	Category     Category     `json:"category"`
	Level        int          `json:"level"`
	GameID       MissionID    `json:"game_id"`
	StartedAt    time.Time    `json:"started_at"` // Assigned by the store clock
}

// PlayerRecord is the per-identity document shared by every client of a player
type PlayerRecord struct {
	ID          PlayerID `json:"id"`
	Email       string   `json:"email"`
	DisplayName string   `json:"display_name"`
	Role        Role     `json:"role"`

	Tokens int64 `json:"tokens"`
	Score  int64 `json:"score"`

	// History log of resolved missions; duplicates are expected
	CompletedGames []MissionID `json:"completed_games"`

	ActiveGame           *ActiveGame `json:"active_game"`
	LastPlayedCategory   Category    `json:"last_played_category"`
	UnlockedSameCategory bool        `json:"unlocked_same_category"`

	// Chaos cycle index the player bought rule immunity for
	ImmuneCycle *int64 `json:"immune_cycle,omitempty"`
	// Last chaos cycle credited when survival credit dedupe is enabled
	LastCreditedCycle *int64 `json:"last_credited_cycle,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the record
func (p *PlayerRecord) Clone() *PlayerRecord {
	if p == nil {
		return nil
	}
	c := *p
	c.CompletedGames = append([]MissionID(nil), p.CompletedGames...)
	if p.ActiveGame != nil {
		ag := *p.ActiveGame
		c.ActiveGame = &ag
	}
	if p.ImmuneCycle != nil {
		v := *p.ImmuneCycle
		c.ImmuneCycle = &v
	}
	if p.LastCreditedCycle != nil {
		v := *p.LastCreditedCycle
		c.LastCreditedCycle = &v
	}
	return &c
}

// Name returns the display name, falling back to the email local part
func (p *PlayerRecord) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	if p.Email != "" {
		local, _, _ := strings.Cut(p.Email, "@")
		return local
	}
	return "Unknown"
}

// IsImmune reports whether the player holds rule immunity for the given cycle
func (p *PlayerRecord) IsImmune(cycle int64) bool {
	return p.ImmuneCycle != nil && *p.ImmuneCycle == cycle
}

// CategoryLocked reports whether starting a mission in the category is blocked
// by the alternation lock
func (p *PlayerRecord) CategoryLocked(c Category) bool {
	return p.LastPlayedCategory == c && !p.UnlockedSameCategory
}

// Remaining returns how long the active mission has left at now.
// The result is zero or negative once the mission has expired.
func (p *PlayerRecord) Remaining(now time.Time, duration time.Duration) time.Duration {
	if p.ActiveGame == nil {
		return 0
	}
	return duration - now.Sub(p.ActiveGame.StartedAt)
}

// State derives the session state at now
func (p *PlayerRecord) State(now time.Time, duration time.Duration) SessionState {
	if p.ActiveGame == nil {
		return StateIdle
	}
	if p.Remaining(now, duration) > 0 {
		return StateInMission
	}
	return StateAwaitingVerification
}

// Credential holds login data for a player
// Stored separately from the player record so it never travels with snapshots
type Credential struct {
	PlayerID     PlayerID  `json:"player_id"`
	Email        string    `json:"email"` // normalised to lower case
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}
