package response

import (
	"time"

	"github.com/mcoot/chaosroom/internal/api/apierr"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/auth"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/services/session"
)

// ActiveMission describes the mission a player holds
type ActiveMission struct {
	AssignmentID string    `json:"assignment_id"`
	MissionID    string    `json:"mission_id"`
	Category     string    `json:"category"`
	Level        int       `json:"level"`
	StartedAt    time.Time `json:"started_at"`
}

// Player represents a player record in API responses
type Player struct {
	ID                   string         `json:"id"`
	Email                string         `json:"email"`
	DisplayName          string         `json:"display_name"`
	Role                 string         `json:"role"`
	Tokens               int64          `json:"tokens"`
	Score                int64          `json:"score"`
	CompletedGames       []string       `json:"completed_games"`
	ActiveMission        *ActiveMission `json:"active_mission"`
	LastPlayedCategory   string         `json:"last_played_category,omitempty"`
	UnlockedSameCategory bool           `json:"unlocked_same_category"`
	ImmuneCycle          *int64         `json:"immune_cycle,omitempty"`
}

// PlayerFromModel converts a record to a response Player
func PlayerFromModel(p *model.PlayerRecord) Player {
	completed := make([]string, len(p.CompletedGames))
	for i, id := range p.CompletedGames {
		completed[i] = string(id)
	}

	var active *ActiveMission
	if ag := p.ActiveGame; ag != nil {
		active = &ActiveMission{
			AssignmentID: string(ag.AssignmentID),
			MissionID:    string(ag.GameID),
			Category:     string(ag.Category),
			Level:        ag.Level,
			StartedAt:    ag.StartedAt,
		}
	}

	return Player{
		ID:                   string(p.ID),
		Email:                p.Email,
		DisplayName:          p.Name(),
		Role:                 string(p.Role),
		Tokens:               p.Tokens,
		Score:                p.Score,
		CompletedGames:       completed,
		ActiveMission:        active,
		LastPlayedCategory:   string(p.LastPlayedCategory),
		UnlockedSameCategory: p.UnlockedSameCategory,
		ImmuneCycle:          p.ImmuneCycle,
	}
}

// PlayersFromModel converts a roster
func PlayersFromModel(records []*model.PlayerRecord) []Player {
	out := make([]Player, len(records))
	for i, r := range records {
		out[i] = PlayerFromModel(r)
	}
	return out
}

// View is a player's session as a client displays it
type View struct {
	Player           *Player          `json:"player"`
	State            string           `json:"state"`
	RemainingSeconds int64            `json:"remaining_seconds"`
	Mission          *catalog.Mission `json:"mission,omitempty"`
	Chaos            Chaos            `json:"chaos"`
	Immune           bool             `json:"immune"`
	Pending          string           `json:"pending,omitempty"`
	Error            *apierr.APIError `json:"error,omitempty"`
	At               time.Time        `json:"at"`
}

// ViewFromSession converts a session view
func ViewFromSession(v session.View) View {
	out := View{
		State:            string(v.State),
		RemainingSeconds: seconds(v.Remaining),
		Mission:          v.Mission,
		Chaos:            ChaosFromCycle(v.Chaos),
		Immune:           v.Immune,
		Pending:          v.Pending,
		At:               v.At,
	}
	if v.Player != nil {
		p := PlayerFromModel(v.Player)
		out.Player = &p
	}
	if v.Err != nil {
		_, apiErr := apierr.Describe(v.Err)
		out.Error = &apiErr
	}
	return out
}

// seconds rounds a countdown to whole seconds, never negative
func seconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64(d.Round(time.Second) / time.Second)
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	PlayerID     string    `json:"player_id"`
	Email        string    `json:"email"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		PlayerID:     string(s.PlayerID),
		Email:        s.Email,
		SessionToken: s.Token,
		ExpiresAt:    s.ExpiresAt,
	}
}

// Resolution is the result of a completion or expiry
type Resolution struct {
	Player       Player `json:"player"`
	AssignmentID string `json:"assignment_id"`
	MissionID    string `json:"mission_id"`
	Outcome      string `json:"outcome"`
	ScoreDelta   int64  `json:"score_delta"`
	TokensDelta  int64  `json:"tokens_delta"`
}

// ResolutionFromModel converts a session resolution
func ResolutionFromModel(r *session.Resolution) Resolution {
	return Resolution{
		Player:       PlayerFromModel(r.Player),
		AssignmentID: string(r.AssignmentID),
		MissionID:    string(r.Mission),
		Outcome:      r.Outcome,
		ScoreDelta:   r.ScoreDelta,
		TokensDelta:  r.TokensDelta,
	}
}

// Chaos is the rule in force right now
type Chaos struct {
	Index            int64     `json:"index"`
	Rule             string    `json:"rule"`
	RemainingSeconds int64     `json:"remaining_seconds"`
	StartedAt        time.Time `json:"started_at"`
	EndsAt           time.Time `json:"ends_at"`
}

// ChaosFromCycle converts a chaos cycle
func ChaosFromCycle(c chaos.Cycle) Chaos {
	return Chaos{
		Index:            c.Index,
		Rule:             c.Rule,
		RemainingSeconds: seconds(c.Remaining),
		StartedAt:        c.StartedAt,
		EndsAt:           c.EndsAt,
	}
}

// Health reports server liveness
type Health struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// Audit is a page of audit entries for one player
type Audit struct {
	PlayerID string             `json:"player_id"`
	Entries  []model.AuditEntry `json:"entries"`
}
