package chaos

import (
	"time"
)

// Cycle describes the chaos rule in force at a moment
type Cycle struct {
	Index     int64         `json:"index"`
	Rule      string        `json:"rule"`
	Remaining time.Duration `json:"remaining"`
	StartedAt time.Time     `json:"started_at"`
	EndsAt    time.Time     `json:"ends_at"`
}

// Config holds the cycle length and rule rotation
type Config struct {
	Cycle time.Duration
	Rules []string
}

// DefaultConfig returns the standard ten-minute rotation
func DefaultConfig() Config {
	return Config{
		Cycle: 10 * time.Minute,
		Rules: []string{
			"FLOOR IS LAVA",
			"SIT-STAND",
			"COMPLETE SILENCE",
			"SLOW MOTION",
			"ONE HAND ONLY",
		},
	}
}

// Driver derives the current chaos cycle purely from wall-clock time, so
// every client computes the same rule without coordination
type Driver struct {
	cycle time.Duration
	rules []string
}

// New creates a Driver; zero fields and cycles shorter than a millisecond
// fall back to defaults
func New(cfg Config) *Driver {
	def := DefaultConfig()
	if cfg.Cycle < time.Millisecond {
		cfg.Cycle = def.Cycle
	}
	if len(cfg.Rules) == 0 {
		cfg.Rules = def.Rules
	}
	return &Driver{
		cycle: cfg.Cycle,
		rules: append([]string(nil), cfg.Rules...),
	}
}

// At returns the cycle containing t
func (d *Driver) At(t time.Time) Cycle {
	ms := t.UnixMilli()
	period := d.cycle.Milliseconds()

	index := floorDiv(ms, period)
	offset := ms - index*period
	start := time.UnixMilli(index * period).UTC()

	return Cycle{
		Index:     index,
		Rule:      d.rules[index%int64(len(d.rules))],
		Remaining: time.Duration(period-offset) * time.Millisecond,
		StartedAt: start,
		EndsAt:    start.Add(d.cycle),
	}
}

// Duration returns the cycle length
func (d *Driver) Duration() time.Duration {
	return d.cycle
}

// Rules returns the rule rotation in order
func (d *Driver) Rules() []string {
	return append([]string(nil), d.rules...)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
