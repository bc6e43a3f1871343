package sse

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mcoot/chaosroom/internal/services/leaderboard"
)

// EventLeaderboard is the SSE event name carrying ranked entries
const EventLeaderboard = "leaderboard"

// Broadcaster shares one leaderboard subscription per ranking between all
// connected clients
type Broadcaster struct {
	hubManager  *HubManager
	leaderboard *leaderboard.Service
	logger      *slog.Logger
}

// NewBroadcaster creates a new Broadcaster
func NewBroadcaster(hubManager *HubManager, lb *leaderboard.Service, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		hubManager:  hubManager,
		leaderboard: lb,
		logger:      logger.With(slog.String("component", "sse-broadcaster")),
	}
}

// LeaderboardTopic names the hub for a ranking
func LeaderboardTopic(opts leaderboard.Options) Topic {
	return Topic(fmt.Sprintf("leaderboard:%s:%t:%d", opts.By, opts.ParticipantsOnly, opts.Limit))
}

// ServeLeaderboard streams rankings to one client
func (b *Broadcaster) ServeLeaderboard(w http.ResponseWriter, r *http.Request, opts leaderboard.Options, clientID string) {
	ServeSSE(w, r, b.hubManager, LeaderboardTopic(opts), b.leaderboardFeed(opts), clientID)
}

// leaderboardFeed subscribes to the ranking once and broadcasts every
// projection until the hub closes
func (b *Broadcaster) leaderboardFeed(opts leaderboard.Options) Feed {
	return func(ctx context.Context, hub *Hub) error {
		sub, err := b.leaderboard.Watch(ctx, opts)
		if err != nil {
			return err
		}
		defer sub.Close()

		for {
			select {
			case entries, ok := <-sub.C:
				if !ok {
					return nil
				}
				if err := hub.BroadcastJSON(EventLeaderboard, entries); err != nil {
					b.logger.Error("sse failed to encode leaderboard", slog.Any("error", err))
				}
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Cleanup removes hubs nobody listens to, which also releases their
// leaderboard subscriptions
func (b *Broadcaster) Cleanup(ctx context.Context) error {
	b.hubManager.CleanupEmptyHubs()
	return nil
}
