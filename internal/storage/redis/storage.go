package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

// Storage is a Redis-backed implementation of the store interface.
// Each player is a hash plus a history list; writes are published on a
// per-player channel and announced on a global channel.
type Storage struct {
	client *redis.Client
	cfg    Config
}

// New creates a new Redis storage instance
func New(cfg Config) (*Storage, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(opts)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &Storage{
		client: client,
		cfg:    cfg,
	}, nil
}

// NewWithClient creates a Redis storage with an existing client (for testing)
func NewWithClient(client *redis.Client, cfg Config) *Storage {
	return &Storage{
		client: client,
		cfg:    cfg,
	}
}

// Close closes the Redis connection
func (s *Storage) Close() error {
	return s.client.Close()
}

// Ping checks connectivity, used by the health endpoint
func (s *Storage) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Ensure Storage implements the interface
var _ storage.Store = (*Storage)(nil)

// Now returns the Redis server clock
func (s *Storage) Now(ctx context.Context) (time.Time, error) {
	t, err := s.client.Time(ctx).Result()
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Player record operations

func (s *Storage) GetPlayer(ctx context.Context, id model.PlayerID) (*model.PlayerRecord, error) {
	return s.load(ctx, s.client, id)
}

func (s *Storage) load(ctx context.Context, c redis.Cmdable, id model.PlayerID) (*model.PlayerRecord, error) {
	fields, err := c.HGetAll(ctx, playerKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, model.ErrPlayerNotFound
	}
	completed, err := c.LRange(ctx, completedKey(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	return decodeRecord(id, fields, completed)
}

func (s *Storage) CreatePlayer(ctx context.Context, rec *model.PlayerRecord) (bool, error) {
	now, err := s.Now(ctx)
	if err != nil {
		return false, err
	}

	stored := rec.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.CompletedGames == nil {
		stored.CompletedGames = []model.MissionID{}
	}
	fields, err := encodeRecord(stored)
	if err != nil {
		return false, err
	}

	created := false
	txf := func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, playerKey(rec.ID)).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, playerKey(rec.ID), fields)
			if len(stored.CompletedGames) > 0 {
				pipe.RPush(ctx, completedKey(rec.ID), missionArgs(stored.CompletedGames)...)
			}
			pipe.RPush(ctx, playerIndexKey(), string(rec.ID))
			return nil
		})
		if err == nil {
			created = true
		}
		return err
	}

	if err := s.withRetry(ctx, txf, playerKey(rec.ID)); err != nil {
		return false, err
	}
	if created {
		s.publish(ctx, stored)
	}
	return created, nil
}

func (s *Storage) UpdatePlayer(ctx context.Context, id model.PlayerID, patch storage.Patch) (*model.PlayerRecord, error) {
	return s.UpdatePlayerFunc(ctx, id, func(*model.PlayerRecord, time.Time) (*storage.Patch, error) {
		return &patch, nil
	})
}

// UpdatePlayerFunc runs fn under WATCH on the player's keys and commits its
// patch in MULTI/EXEC, retrying when another writer got there first
func (s *Storage) UpdatePlayerFunc(ctx context.Context, id model.PlayerID, fn storage.MutateFunc) (*model.PlayerRecord, error) {
	var (
		result  *model.PlayerRecord
		changed bool
	)

	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		now, err := s.Now(ctx)
		if err != nil {
			return err
		}

		patch, err := fn(current.Clone(), now)
		if err != nil {
			return err
		}
		if patch == nil || patch.IsEmpty() {
			result, changed = current, false
			return nil
		}

		set, del, err := patchFields(patch, now)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			key := playerKey(id)
			if patch.TokensDelta != 0 {
				pipe.HIncrBy(ctx, key, fieldTokens, patch.TokensDelta)
			}
			if patch.ScoreDelta != 0 {
				pipe.HIncrBy(ctx, key, fieldScore, patch.ScoreDelta)
			}
			if len(patch.AppendCompleted) > 0 {
				pipe.RPush(ctx, completedKey(id), missionArgs(patch.AppendCompleted)...)
			}
			if len(del) > 0 {
				pipe.HDel(ctx, key, del...)
			}
			pipe.HSet(ctx, key, set)
			return nil
		})
		if err != nil {
			return err
		}
		result, changed = patch.Apply(current, now), true
		return nil
	}

	if err := s.withRetry(ctx, txf, playerKey(id), completedKey(id)); err != nil {
		return nil, err
	}
	if changed {
		s.publish(ctx, result)
	}
	return result.Clone(), nil
}

func (s *Storage) withRetry(ctx context.Context, txf func(*redis.Tx) error, keys ...string) error {
	retries := s.cfg.MaxTxRetries
	if retries <= 0 {
		retries = 1
	}
	for i := 0; i < retries; i++ {
		err := s.client.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("transaction on %v: %w", keys, redis.TxFailedErr)
}

func (s *Storage) ListPlayers(ctx context.Context, filter storage.Filter, limit int) ([]*model.PlayerRecord, error) {
	ids, err := s.client.LRange(ctx, playerIndexKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]*model.PlayerRecord, 0)
	if len(ids) == 0 {
		return out, nil
	}

	pipe := s.client.Pipeline()
	hashes := make([]*redis.MapStringStringCmd, len(ids))
	lists := make([]*redis.StringSliceCmd, len(ids))
	for i, id := range ids {
		hashes[i] = pipe.HGetAll(ctx, playerKey(model.PlayerID(id)))
		lists[i] = pipe.LRange(ctx, completedKey(model.PlayerID(id)), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	for i, id := range ids {
		fields := hashes[i].Val()
		if len(fields) == 0 {
			continue
		}
		rec, err := decodeRecord(model.PlayerID(id), fields, lists[i].Val())
		if err != nil {
			return nil, err
		}
		if !filter.Match(rec) {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// publish announces a committed record. Best effort: the write has already succeeded.
// publish announces a committed change. Subscribers re-read the record, since
// notifications from concurrent writers can arrive out of commit order.
func (s *Storage) publish(ctx context.Context, rec *model.PlayerRecord) {
	pipe := s.client.Pipeline()
	pipe.Publish(ctx, playerChannel(rec.ID), string(rec.ID))
	pipe.Publish(ctx, playersChannel(), string(rec.ID))
	_, _ = pipe.Exec(ctx)
}

// Change feeds

func (s *Storage) SubscribePlayer(ctx context.Context, id model.PlayerID) (*storage.Subscription[*model.PlayerRecord], error) {
	pubsub := s.client.Subscribe(ctx, playerChannel(id))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	// Snapshot after the subscription is live so no change falls in between
	rec, err := s.GetPlayer(ctx, id)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := storage.NewSubscription[*model.PlayerRecord](func() { _ = pubsub.Close() })
	sub.Publish(rec)

	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-sub.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					sub.Close()
					return
				}
				next, err := s.GetPlayer(ctx, id)
				if err != nil {
					continue
				}
				sub.Publish(next)
			}
		}
	}()
	return sub, nil
}

func (s *Storage) SubscribePlayers(ctx context.Context, filter storage.Filter, limit int) (*storage.Subscription[[]*model.PlayerRecord], error) {
	pubsub := s.client.Subscribe(ctx, playersChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	list, err := s.ListPlayers(ctx, filter, limit)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	sub := storage.NewSubscription[[]*model.PlayerRecord](func() { _ = pubsub.Close() })
	sub.Publish(list)

	go func() {
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				sub.Close()
				return
			case <-sub.Done():
				return
			case _, ok := <-msgs:
				if !ok {
					sub.Close()
					return
				}
				list, err := s.ListPlayers(ctx, filter, limit)
				if err != nil {
					continue
				}
				sub.Publish(list)
			}
		}
	}()
	return sub, nil
}

// Credential operations

func (s *Storage) SaveCredential(ctx context.Context, cred *model.Credential) error {
	data, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, credentialKey(cred.Email), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrEmailExists
	}
	return nil
}

func (s *Storage) GetCredentialByEmail(ctx context.Context, email string) (*model.Credential, error) {
	data, err := s.client.Get(ctx, credentialKey(email)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, model.ErrPlayerNotFound
		}
		return nil, err
	}

	var cred model.Credential
	if err := json.Unmarshal(data, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func missionArgs(ids []model.MissionID) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	return args
}
