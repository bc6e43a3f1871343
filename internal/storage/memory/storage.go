package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

// Storage is an in-memory implementation of the store interface
type Storage struct {
	mu    sync.Mutex
	clock clock.Clock

	players     map[model.PlayerID]*model.PlayerRecord
	order       []model.PlayerID
	credentials map[string]*model.Credential

	playerSubs map[model.PlayerID]map[*storage.Subscription[*model.PlayerRecord]]struct{}
	listSubs   map[*storage.Subscription[[]*model.PlayerRecord]]listQuery
}

type listQuery struct {
	filter storage.Filter
	limit  int
}

// New creates a new in-memory storage instance stamping times from clk
func New(clk clock.Clock) *Storage {
	return &Storage{
		clock:       clk,
		players:     make(map[model.PlayerID]*model.PlayerRecord),
		credentials: make(map[string]*model.Credential),
		playerSubs:  make(map[model.PlayerID]map[*storage.Subscription[*model.PlayerRecord]]struct{}),
		listSubs:    make(map[*storage.Subscription[[]*model.PlayerRecord]]listQuery),
	}
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	return s.clock.Now(), nil
}

func (s *Storage) Close() error {
	s.mu.Lock()
	var players []*storage.Subscription[*model.PlayerRecord]
	for _, subs := range s.playerSubs {
		for sub := range subs {
			players = append(players, sub)
		}
	}
	var lists []*storage.Subscription[[]*model.PlayerRecord]
	for sub := range s.listSubs {
		lists = append(lists, sub)
	}
	s.mu.Unlock()

	for _, sub := range players {
		sub.Close()
	}
	for _, sub := range lists {
		sub.Close()
	}
	return nil
}

// Player record operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	return rec.Clone(), nil
}

func (s *Storage) CreatePlayer(ctx context.Context, rec *model.PlayerRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.players[rec.ID]; exists {
		return false, nil
	}

	now := s.clock.Now()
	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.CompletedGames == nil {
		stored.CompletedGames = []model.MissionID{}
	}
	s.players[rec.ID] = stored
	s.order = append(s.order, rec.ID)
	s.notifyLocked(stored)
	return true, nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, id model.PlayerID, patch storage.Patch) (*model.PlayerRecord, error) {
	return s.UpdatePlayerFunc(ctx, id, func(*model.PlayerRecord, time.Time) (*storage.Patch, error) {
		return &patch, nil
	})
}

func (s *Storage) UpdatePlayerFunc(ctx context.Context, id model.PlayerID, fn storage.MutateFunc) (*model.PlayerRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}

	now := s.clock.Now()
	patch, err := fn(rec.Clone(), now)
	if err != nil {
		return nil, err
	}
	if patch == nil || patch.IsEmpty() {
		return rec.Clone(), nil
	}

	patch.Apply(rec, now)
	s.notifyLocked(rec)
	return rec.Clone(), nil
}

func (s *Storage) ListPlayers(ctx context.Context, filter storage.Filter, limit int) ([]*model.PlayerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked(filter, limit), nil
}

func (s *Storage) listLocked(filter storage.Filter, limit int) []*model.PlayerRecord {
	out := make([]*model.PlayerRecord, 0)
	for _, id := range s.order {
		rec := s.players[id]
		if !filter.Match(rec) {
			continue
		}
		out = append(out, rec.Clone())
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// Change feeds

func (s *Storage) SubscribePlayer(ctx context.Context, id model.PlayerID) (*storage.Subscription[*model.PlayerRecord], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.players[id]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}

	var sub *storage.Subscription[*model.PlayerRecord]
	sub = storage.NewSubscription[*model.PlayerRecord](func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.playerSubs[id], sub)
		if len(s.playerSubs[id]) == 0 {
			delete(s.playerSubs, id)
		}
	})
	if s.playerSubs[id] == nil {
		s.playerSubs[id] = make(map[*storage.Subscription[*model.PlayerRecord]]struct{})
	}
	s.playerSubs[id][sub] = struct{}{}
	sub.Publish(rec.Clone())

	go closeOnDone(ctx, sub.Done(), sub.Close)
	return sub, nil
}

func (s *Storage) SubscribePlayers(ctx context.Context, filter storage.Filter, limit int) (*storage.Subscription[[]*model.PlayerRecord], error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var sub *storage.Subscription[[]*model.PlayerRecord]
	sub = storage.NewSubscription[[]*model.PlayerRecord](func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listSubs, sub)
	})
	s.listSubs[sub] = listQuery{filter: filter, limit: limit}
	sub.Publish(s.listLocked(filter, limit))

	go closeOnDone(ctx, sub.Done(), sub.Close)
	return sub, nil
}

func closeOnDone(ctx context.Context, done <-chan struct{}, closeFn func()) {
	select {
	case <-ctx.Done():
		closeFn()
	case <-done:
	}
}

// notifyLocked fans the new record out to every subscriber; caller holds mu
func (s *Storage) notifyLocked(rec *model.PlayerRecord) {
	for sub := range s.playerSubs[rec.ID] {
		sub.Publish(rec.Clone())
	}
	for sub, q := range s.listSubs {
		sub.Publish(s.listLocked(q.filter, q.limit))
	}
}

// Credential operations

func (s *Storage) SaveCredential(ctx context.Context, cred *model.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(cred.Email)
	if _, exists := s.credentials[email]; exists {
		return model.ErrEmailExists
	}
	c := *cred
	c.Email = email
	s.credentials[email] = &c
	return nil
}

func (s *Storage) GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.credentials[strings.ToLower(email)]
	if !ok {
		return nil, model.ErrPlayerNotFound
	}
	c := *cred
	return &c, nil
}
