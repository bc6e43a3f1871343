package leaderboard

import (
	"fmt"
	"sort"

	"github.com/mcoot/chaosroom/internal/model"
)

// SortBy selects the ranking key
type SortBy string

const (
	ByScore  SortBy = "score"
	ByTokens SortBy = "tokens"
)

// ParseSortBy validates a ranking key, defaulting to score
func ParseSortBy(s string) (SortBy, error) {
	switch SortBy(s) {
	case "", ByScore:
		return ByScore, nil
	case ByTokens:
		return ByTokens, nil
	default:
		return "", fmt.Errorf("%w: %q", model.ErrInvalidField, s)
	}
}

// DefaultLimit is how many rows the public ranking shows
const DefaultLimit = 10

// Options controls a projection
type Options struct {
	By               SortBy
	ParticipantsOnly bool
	Limit            int // <= 0 keeps every entry
}

// Entry is one ranked row
type Entry struct {
	Rank     int            `json:"rank"`
	PlayerID model.PlayerID `json:"player_id"`
	Name     string         `json:"name"`
	Role     model.Role     `json:"role"`
	Score    int64          `json:"score"`
	Tokens   int64          `json:"tokens"`
}

// Project ranks a snapshot of records. Ties keep their snapshot order.
func Project(records []*model.PlayerRecord, opts Options) []Entry {
	entries := make([]Entry, 0, len(records))
	for _, r := range records {
		if opts.ParticipantsOnly && r.Role != model.RoleParticipant {
			continue
		}
		entries = append(entries, Entry{
			PlayerID: r.ID,
			Name:     r.Name(),
			Role:     r.Role,
			Score:    r.Score,
			Tokens:   r.Tokens,
		})
	}

	key := func(e Entry) int64 { return e.Score }
	if opts.By == ByTokens {
		key = func(e Entry) int64 { return e.Tokens }
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return key(entries[i]) > key(entries[j])
	})

	if opts.Limit > 0 && len(entries) > opts.Limit {
		entries = entries[:opts.Limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}
