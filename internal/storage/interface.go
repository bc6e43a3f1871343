package storage

import (
	"context"
	"time"

	"github.com/mcoot/chaosroom/internal/model"
)

// MutateFunc inspects the current record and returns the patch to apply.
// It runs inside the store's atomic read-check-write, so returning an error
// aborts without writing. A nil patch leaves the record unchanged. now is the
// store clock.
type MutateFunc func(current *model.PlayerRecord, now time.Time) (*Patch, error)

// Filter narrows list queries
type Filter struct {
	// Roles limits results to records holding one of the roles; empty matches all
	Roles []model.Role
}

// Match reports whether the record passes the filter
func (f Filter) Match(p *model.PlayerRecord) bool {
	if len(f.Roles) == 0 {
		return true
	}
	for _, r := range f.Roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Store defines the interface for player record persistence
type Store interface {
	// Now returns the store clock, the only source of mission start times
	Now(ctx context.Context) (time.Time, error)

	// Player record operations
	GetPlayer(ctx context.Context, id model.PlayerID) (*model.PlayerRecord, error)
	// CreatePlayer inserts the record unless one already exists for its ID
	CreatePlayer(ctx context.Context, rec *model.PlayerRecord) (created bool, err error)
	UpdatePlayer(ctx context.Context, id model.PlayerID, patch Patch) (*model.PlayerRecord, error)
	UpdatePlayerFunc(ctx context.Context, id model.PlayerID, fn MutateFunc) (*model.PlayerRecord, error)
	// ListPlayers returns up to limit records in arrival order; limit <= 0 means no bound
	ListPlayers(ctx context.Context, filter Filter, limit int) ([]*model.PlayerRecord, error)

	// Change feeds
	SubscribePlayer(ctx context.Context, id model.PlayerID) (*Subscription[*model.PlayerRecord], error)
	SubscribePlayers(ctx context.Context, filter Filter, limit int) (*Subscription[[]*model.PlayerRecord], error)

	// Credential operations
	SaveCredential(ctx context.Context, cred *model.Credential) error
	GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error)

	Close() error
}
