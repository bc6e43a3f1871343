package leaderboard

import (
	"context"

	"github.com/mcoot/chaosroom/internal/storage"
)

// Config holds leaderboard settings
type Config struct {
	// FetchCap bounds how many records a snapshot reads, in arrival order
	FetchCap int
}

// DefaultConfig returns default leaderboard configuration
func DefaultConfig() Config {
	return Config{FetchCap: 100}
}

// Service serves ranked views over the player store
type Service struct {
	store storage.Store
	cfg   Config
}

// New creates a new leaderboard Service
func New(store storage.Store, cfg Config) *Service {
	if cfg.FetchCap <= 0 {
		cfg.FetchCap = DefaultConfig().FetchCap
	}
	return &Service{store: store, cfg: cfg}
}

// Top returns the current ranking
func (s *Service) Top(ctx context.Context, opts Options) ([]Entry, error) {
	records, err := s.store.ListPlayers(ctx, storage.Filter{}, s.cfg.FetchCap)
	if err != nil {
		return nil, err
	}
	return Project(records, opts), nil
}

// Watch streams a fresh ranking every time any record changes.
// The subscription ends when ctx is cancelled or Close is called.
func (s *Service) Watch(ctx context.Context, opts Options) (*storage.Subscription[[]Entry], error) {
	ctx, cancel := context.WithCancel(ctx)
	src, err := s.store.SubscribePlayers(ctx, storage.Filter{}, s.cfg.FetchCap)
	if err != nil {
		cancel()
		return nil, err
	}

	out := storage.NewSubscription[[]Entry](func() {
		cancel()
		src.Close()
	})
	go func() {
		defer out.Close()
		for records := range src.C {
			out.Publish(Project(records, opts))
		}
	}()
	return out, nil
}
