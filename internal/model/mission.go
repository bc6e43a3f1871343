package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is one of the two mission classes
type Category string

const (
	CategoryHeart Category = "HEART" // Social / emotional
	CategorySpade Category = "SPADE" // Logic / physical
)

// ParseCategory validates a category name (case-insensitive)
func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToUpper(strings.TrimSpace(s))) {
	case CategoryHeart:
		return CategoryHeart, nil
	case CategorySpade:
		return CategorySpade, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
}

// Categories returns all mission categories
func Categories() []Category {
	return []Category{CategoryHeart, CategorySpade}
}

// MissionID identifies a catalog entry, formatted <CATEGORY>_<level>
type MissionID string

// NewMissionID builds the catalog identifier for a category and level
func NewMissionID(c Category, level int) MissionID {
	return MissionID(string(c) + "_" + strconv.Itoa(level))
}

// Split returns the category and level encoded in the identifier
func (id MissionID) Split() (Category, int, error) {
	cat, lvl, ok := strings.Cut(string(id), "_")
	if !ok {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownMission, id)
	}
	c, err := ParseCategory(cat)
	if err != nil {
		return "", 0, err
	}
	level, err := strconv.Atoi(lvl)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrUnknownMission, id)
	}
	return c, level, nil
}

// BalanceField names a numeric field that staff can adjust
type BalanceField string

const (
	FieldTokens BalanceField = "tokens"
	FieldScore  BalanceField = "score"
)

// ParseBalanceField validates a balance field name
func ParseBalanceField(s string) (BalanceField, error) {
	switch BalanceField(strings.ToLower(s)) {
	case FieldTokens:
		return FieldTokens, nil
	case FieldScore:
		return FieldScore, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidField, s)
	}
}

// Balance returns the current value of the field on the record
func (p *PlayerRecord) Balance(f BalanceField) int64 {
	if f == FieldScore {
		return p.Score
	}
	return p.Tokens
}
