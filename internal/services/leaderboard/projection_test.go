package leaderboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/chaosroom/internal/model"
)

func records() []*model.PlayerRecord {
	return []*model.PlayerRecord{
		{ID: "a", DisplayName: "Ana", Role: model.RoleParticipant, Score: 3, Tokens: 90},
		{ID: "b", Email: "bo@example.com", Role: model.RoleParticipant, Score: 5, Tokens: 100},
		{ID: "c", DisplayName: "Cy", Role: model.RoleManager, Score: 9, Tokens: 100},
		{ID: "d", Role: model.RoleParticipant, Score: 3, Tokens: 120},
	}
}

func TestProjectSortsByScoreDescending(t *testing.T) {
	entries := Project(records(), Options{By: ByScore})

	require.Len(t, entries, 4)
	assert.Equal(t, model.PlayerID("c"), entries[0].PlayerID)
	assert.Equal(t, model.PlayerID("b"), entries[1].PlayerID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, 4, entries[3].Rank)
}

func TestProjectTiesKeepSnapshotOrder(t *testing.T) {
	entries := Project(records(), Options{By: ByScore})

	assert.Equal(t, model.PlayerID("a"), entries[2].PlayerID)
	assert.Equal(t, model.PlayerID("d"), entries[3].PlayerID)
}

func TestProjectByTokens(t *testing.T) {
	entries := Project(records(), Options{By: ByTokens})

	assert.Equal(t, model.PlayerID("d"), entries[0].PlayerID)
	// b and c tie on 100 tokens
	assert.Equal(t, model.PlayerID("b"), entries[1].PlayerID)
	assert.Equal(t, model.PlayerID("c"), entries[2].PlayerID)
}

func TestProjectParticipantsOnlyAndLimit(t *testing.T) {
	entries := Project(records(), Options{ParticipantsOnly: true, Limit: 2})

	require.Len(t, entries, 2)
	assert.Equal(t, model.PlayerID("b"), entries[0].PlayerID)
	assert.Equal(t, model.PlayerID("a"), entries[1].PlayerID)
}

func TestProjectDisplayNameFallback(t *testing.T) {
	entries := Project(records(), Options{})
	names := map[model.PlayerID]string{}
	for _, e := range entries {
		names[e.PlayerID] = e.Name
	}

	assert.Equal(t, "Ana", names["a"])
	assert.Equal(t, "bo", names["b"])
	assert.Equal(t, "Unknown", names["d"])
}

func TestProjectDoesNotReorderInput(t *testing.T) {
	in := records()
	_ = Project(in, Options{})
	assert.Equal(t, model.PlayerID("a"), in[0].ID)
}

func TestParseSortBy(t *testing.T) {
	by, err := ParseSortBy("")
	require.NoError(t, err)
	assert.Equal(t, ByScore, by)

	by, err = ParseSortBy("tokens")
	require.NoError(t, err)
	assert.Equal(t, ByTokens, by)

	_, err = ParseSortBy("height")
	assert.ErrorIs(t, err, model.ErrInvalidField)
}
