package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/mcoot/chaosroom/internal/model"
)

// Standard outcome labels shared by every mission
const (
	OutcomeWin       = "WIN"
	OutcomeLose      = "LOSE"
	OutcomeViolation = "VIOLATION"
	OutcomeTimeout   = "TIMEOUT"
)

// Outcome is one row of a mission's result table
type Outcome struct {
	Label   string `json:"label"`
	Tokens  int64  `json:"tokens,omitempty"`
	Score   int64  `json:"score"`
	IsWager bool   `json:"is_wager,omitempty"` // Token delta is entered at verification time
	Win     bool   `json:"win,omitempty"`      // Sign of the wager
}

// Mission is a static catalog entry
type Mission struct {
	ID          model.MissionID `json:"id"`
	Category    model.Category  `json:"category"`
	Level       int             `json:"level"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Location    string          `json:"location"`
	Difficulty  string          `json:"difficulty,omitempty"`
	Outcomes    []Outcome       `json:"outcomes"`
}

// Delta is the score and token change produced by an outcome
type Delta struct {
	Label  string
	Score  int64
	Tokens int64
}

// Catalog is an immutable mission lookup table
type Catalog struct {
	missions map[model.MissionID]Mission
}

// New builds a catalog from entries, validating ids against category and level
func New(missions []Mission) (*Catalog, error) {
	c := &Catalog{missions: make(map[model.MissionID]Mission, len(missions))}
	for _, m := range missions {
		cat, level, err := m.ID.Split()
		if err != nil {
			return nil, err
		}
		if m.Category == "" {
			m.Category = cat
		}
		if m.Level == 0 {
			m.Level = level
		}
		if m.Category != cat || m.Level != level {
			return nil, fmt.Errorf("catalog entry %s: category/level mismatch", m.ID)
		}
		if _, dup := c.missions[m.ID]; dup {
			return nil, fmt.Errorf("catalog entry %s: duplicate id", m.ID)
		}
		outcomes, err := normalizeOutcomes(m.Outcomes)
		if err != nil {
			return nil, fmt.Errorf("catalog entry %s: %w", m.ID, err)
		}
		m.Outcomes = outcomes
		c.missions[m.ID] = m
	}
	return c, nil
}

// normalizeOutcomes upper-cases labels and adds any standard outcome the entry
// leaves out, so every mission can be won, lost, penalised or timed out
func normalizeOutcomes(in []Outcome) ([]Outcome, error) {
	out := make([]Outcome, 0, len(in)+4)
	seen := make(map[string]bool, len(in))
	for _, o := range in {
		o.Label = strings.ToUpper(strings.TrimSpace(o.Label))
		if o.Label == "" {
			return nil, errors.New("outcome without a label")
		}
		if seen[o.Label] {
			return nil, fmt.Errorf("duplicate outcome %s", o.Label)
		}
		seen[o.Label] = true
		out = append(out, o)
	}
	for _, o := range standardOutcomes() {
		if !seen[o.Label] {
			out = append(out, o)
		}
	}
	return out, nil
}

// Default returns the built-in event catalog
func Default() *Catalog {
	c, err := New(defaultMissions())
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a JSON array of missions
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var missions []Mission
	if err := json.Unmarshal(data, &missions); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(missions)
}

// Lookup returns the mission for id
func (c *Catalog) Lookup(id model.MissionID) (Mission, bool) {
	m, ok := c.missions[id]
	return m, ok
}

// All returns every mission ordered by id
func (c *Catalog) All() []Mission {
	out := make([]Mission, 0, len(c.missions))
	for _, m := range c.missions {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// Levels returns the levels available in a category, ascending
func (c *Catalog) Levels(cat model.Category) []int {
	var levels []int
	for _, m := range c.missions {
		if m.Category == cat {
			levels = append(levels, m.Level)
		}
	}
	sort.Ints(levels)
	return levels
}

// Resolve turns an outcome label (and wager, for wager outcomes) into a delta.
// An empty label resolves to WIN.
func (c *Catalog) Resolve(id model.MissionID, label string, wager int64) (Delta, error) {
	m, ok := c.missions[id]
	if !ok {
		return Delta{}, fmt.Errorf("%w: %s", model.ErrUnknownMission, id)
	}
	if label == "" {
		label = OutcomeWin
	}
	label = strings.ToUpper(label)

	for _, o := range m.Outcomes {
		if o.Label != label {
			continue
		}
		d := Delta{Label: o.Label, Score: o.Score, Tokens: o.Tokens}
		if o.IsWager {
			if wager <= 0 {
				return Delta{}, model.ErrInvalidWager
			}
			if o.Win {
				d.Tokens += wager
			} else {
				d.Tokens -= wager
			}
		}
		return d, nil
	}
	return Delta{}, fmt.Errorf("%w: %s for %s", model.ErrUnknownOutcome, label, id)
}
