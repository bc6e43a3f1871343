package storage

import (
	"time"

	"github.com/mcoot/chaosroom/internal/model"
)

// Patch is a partial update to a player record. Pointer fields overwrite,
// deltas increment and AppendCompleted appends, so concurrent patches that
// only touch deltas and history commute.
type Patch struct {
	DisplayName *string
	Role        *model.Role

	TokensDelta int64
	ScoreDelta  int64

	AppendCompleted []model.MissionID

	// SetActiveGame stores a new active mission; the store stamps StartedAt
	SetActiveGame   *model.ActiveGame
	ClearActiveGame bool

	LastPlayedCategory   *model.Category
	UnlockedSameCategory *bool
	ImmuneCycle          *int64
	LastCreditedCycle    *int64
}

// IsEmpty reports whether the patch would change nothing
func (p *Patch) IsEmpty() bool {
	return p.DisplayName == nil &&
		p.Role == nil &&
		p.TokensDelta == 0 &&
		p.ScoreDelta == 0 &&
		len(p.AppendCompleted) == 0 &&
		p.SetActiveGame == nil &&
		!p.ClearActiveGame &&
		p.LastPlayedCategory == nil &&
		p.UnlockedSameCategory == nil &&
		p.ImmuneCycle == nil &&
		p.LastCreditedCycle == nil
}

// Stamped returns the active game the store will write, with StartedAt set to now
func (p *Patch) Stamped(now time.Time) *model.ActiveGame {
	if p.SetActiveGame == nil {
		return nil
	}
	ag := *p.SetActiveGame
	ag.StartedAt = now
	return &ag
}

// Apply mutates rec in place and returns it
func (p *Patch) Apply(rec *model.PlayerRecord, now time.Time) *model.PlayerRecord {
	if p.DisplayName != nil {
		rec.DisplayName = *p.DisplayName
	}
	if p.Role != nil {
		rec.Role = *p.Role
	}
	rec.Tokens += p.TokensDelta
	rec.Score += p.ScoreDelta
	if len(p.AppendCompleted) > 0 {
		rec.CompletedGames = append(rec.CompletedGames, p.AppendCompleted...)
	}
	if p.ClearActiveGame {
		rec.ActiveGame = nil
	}
	if p.SetActiveGame != nil {
		rec.ActiveGame = p.Stamped(now)
	}
	if p.LastPlayedCategory != nil {
		rec.LastPlayedCategory = *p.LastPlayedCategory
	}
	if p.UnlockedSameCategory != nil {
		rec.UnlockedSameCategory = *p.UnlockedSameCategory
	}
	if p.ImmuneCycle != nil {
		v := *p.ImmuneCycle
		rec.ImmuneCycle = &v
	}
	if p.LastCreditedCycle != nil {
		v := *p.LastCreditedCycle
		rec.LastCreditedCycle = &v
	}
	rec.UpdatedAt = now
	return rec
}

// Ptr returns a pointer to v, for building patches
func Ptr[T any](v T) *T {
	return &v
}
