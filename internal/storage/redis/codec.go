package redis

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

// Player hash fields
const (
	fieldEmail                = "email"
	fieldDisplayName          = "display_name"
	fieldRole                 = "role"
	fieldTokens               = "tokens"
	fieldScore                = "score"
	fieldActiveGame           = "active_game"
	fieldLastPlayedCategory   = "last_played_category"
	fieldUnlockedSameCategory = "unlocked_same_category"
	fieldImmuneCycle          = "immune_cycle"
	fieldLastCreditedCycle    = "last_credited_cycle"
	fieldCreatedAt            = "created_at"
	fieldUpdatedAt            = "updated_at"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// encodeRecord flattens a record into hash fields; history lives in its own list
func encodeRecord(rec *model.PlayerRecord) (map[string]any, error) {
	fields := map[string]any{
		fieldEmail:                rec.Email,
		fieldDisplayName:          rec.DisplayName,
		fieldRole:                 string(rec.Role),
		fieldTokens:               rec.Tokens,
		fieldScore:                rec.Score,
		fieldLastPlayedCategory:   string(rec.LastPlayedCategory),
		fieldUnlockedSameCategory: formatBool(rec.UnlockedSameCategory),
		fieldCreatedAt:            formatTime(rec.CreatedAt),
		fieldUpdatedAt:            formatTime(rec.UpdatedAt),
	}
	if rec.ActiveGame != nil {
		data, err := json.Marshal(rec.ActiveGame)
		if err != nil {
			return nil, err
		}
		fields[fieldActiveGame] = string(data)
	}
	if rec.ImmuneCycle != nil {
		fields[fieldImmuneCycle] = *rec.ImmuneCycle
	}
	if rec.LastCreditedCycle != nil {
		fields[fieldLastCreditedCycle] = *rec.LastCreditedCycle
	}
	return fields, nil
}

// decodeRecord rebuilds a record from its hash fields and history list
func decodeRecord(id model.PlayerID, fields map[string]string, completed []string) (*model.PlayerRecord, error) {
	rec := &model.PlayerRecord{
		ID:                 id,
		Email:              fields[fieldEmail],
		DisplayName:        fields[fieldDisplayName],
		LastPlayedCategory: model.Category(fields[fieldLastPlayedCategory]),
		CompletedGames:     make([]model.MissionID, 0, len(completed)),
	}

	role, err := model.ParseRole(fields[fieldRole])
	if err != nil {
		role = model.RoleParticipant
	}
	rec.Role = role

	if rec.Tokens, err = parseInt(fields[fieldTokens]); err != nil {
		return nil, err
	}
	if rec.Score, err = parseInt(fields[fieldScore]); err != nil {
		return nil, err
	}
	rec.UnlockedSameCategory = fields[fieldUnlockedSameCategory] == "1"

	if raw := fields[fieldActiveGame]; raw != "" {
		var ag model.ActiveGame
		if err := json.Unmarshal([]byte(raw), &ag); err != nil {
			return nil, err
		}
		rec.ActiveGame = &ag
	}
	if raw, ok := fields[fieldImmuneCycle]; ok {
		v, err := parseInt(raw)
		if err != nil {
			return nil, err
		}
		rec.ImmuneCycle = &v
	}
	if raw, ok := fields[fieldLastCreditedCycle]; ok {
		v, err := parseInt(raw)
		if err != nil {
			return nil, err
		}
		rec.LastCreditedCycle = &v
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldCreatedAt])
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, fields[fieldUpdatedAt])

	for _, g := range completed {
		rec.CompletedGames = append(rec.CompletedGames, model.MissionID(g))
	}
	return rec, nil
}

func parseInt(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// patchFields returns the hash fields a patch overwrites
func patchFields(p *storage.Patch, now time.Time) (set map[string]any, del []string, err error) {
	set = map[string]any{fieldUpdatedAt: formatTime(now)}
	if p.DisplayName != nil {
		set[fieldDisplayName] = *p.DisplayName
	}
	if p.Role != nil {
		set[fieldRole] = string(*p.Role)
	}
	if p.ClearActiveGame && p.SetActiveGame == nil {
		del = append(del, fieldActiveGame)
	}
	if ag := p.Stamped(now); ag != nil {
		data, err := json.Marshal(ag)
		if err != nil {
			return nil, nil, err
		}
		set[fieldActiveGame] = string(data)
	}
	if p.LastPlayedCategory != nil {
		set[fieldLastPlayedCategory] = string(*p.LastPlayedCategory)
	}
	if p.UnlockedSameCategory != nil {
		set[fieldUnlockedSameCategory] = formatBool(*p.UnlockedSameCategory)
	}
	if p.ImmuneCycle != nil {
		set[fieldImmuneCycle] = *p.ImmuneCycle
	}
	if p.LastCreditedCycle != nil {
		set[fieldLastCreditedCycle] = *p.LastCreditedCycle
	}
	return set, del, nil
}
