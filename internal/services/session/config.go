package session

import (
	"time"

	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/model"
)

// SkipRuleCost is what skipping the active chaos rule costs
type SkipRuleCost struct {
	Resource model.BalanceField
	Amount   int64
}

// Config holds session state machine settings
type Config struct {
	MissionDuration  time.Duration
	OnboardingTokens int64
	UnlockCost       int64
	SkipRule         SkipRuleCost

	MinLevel int
	MaxLevel int

	// ExpiryOutcome is the catalog outcome applied when a timer runs out
	ExpiryOutcome string

	// StaleGrace is how long after expiry an uncleared mission still blocks a new start
	StaleGrace time.Duration

	// SurvivalCredit awards +1 score when a connected client sees a chaos cycle end
	SurvivalCredit bool
	// DedupeSurvivalCredit credits each cycle once per player instead of once per client
	DedupeSurvivalCredit bool

	// TickInterval is the watcher countdown refresh period
	TickInterval time.Duration
}

// DefaultConfig returns the standard event rules
func DefaultConfig() Config {
	return Config{
		MissionDuration:  10 * time.Minute,
		OnboardingTokens: 100,
		UnlockCost:       2,
		SkipRule:         SkipRuleCost{Resource: model.FieldTokens, Amount: 2},
		MinLevel:         1,
		MaxLevel:         6,
		ExpiryOutcome:    catalog.OutcomeTimeout,
		SurvivalCredit:   true,
		TickInterval:     time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MissionDuration <= 0 {
		c.MissionDuration = def.MissionDuration
	}
	if c.UnlockCost <= 0 {
		c.UnlockCost = def.UnlockCost
	}
	if c.SkipRule.Resource == "" {
		c.SkipRule.Resource = def.SkipRule.Resource
	}
	if c.SkipRule.Amount <= 0 {
		c.SkipRule.Amount = def.SkipRule.Amount
	}
	if c.MinLevel <= 0 {
		c.MinLevel = def.MinLevel
	}
	if c.MaxLevel < c.MinLevel {
		c.MaxLevel = def.MaxLevel
	}
	if c.ExpiryOutcome == "" {
		c.ExpiryOutcome = def.ExpiryOutcome
	}
	if c.TickInterval <= 0 {
		c.TickInterval = def.TickInterval
	}
	return c
}
