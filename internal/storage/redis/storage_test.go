package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

type StorageSuite struct {
	suite.Suite
	mini    *miniredis.Miniredis
	storage *Storage
	ctx     context.Context
	now     time.Time
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.mini = miniredis.RunT(s.T())
	s.now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.mini.SetTime(s.now)

	client := redis.NewClient(&redis.Options{
		Addr: s.mini.Addr(),
	})

	s.storage = NewWithClient(client, DefaultConfig())
	s.ctx = context.Background()
}

func (s *StorageSuite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
	if s.mini != nil {
		s.mini.Close()
	}
}

func (s *StorageSuite) createPlayer(id model.PlayerID) {
	created, err := s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID:          id,
		Email:       string(id) + "@example.com",
		DisplayName: "Player " + string(id),
		Role:        model.RoleParticipant,
		Tokens:      100,
	})
	s.Require().NoError(err)
	s.Require().True(created)
}

// Player record tests

func (s *StorageSuite) TestCreateAndGetPlayer() {
	s.createPlayer("p1")

	rec, err := s.storage.GetPlayer(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), rec.ID)
	s.Equal("p1@example.com", rec.Email)
	s.Equal(model.RoleParticipant, rec.Role)
	s.Equal(int64(100), rec.Tokens)
	s.Nil(rec.ActiveGame)
	s.Empty(rec.CompletedGames)
	s.Equal(s.now, rec.CreatedAt)
}

func (s *StorageSuite) TestCreatePlayerIfAbsent() {
	s.createPlayer("p1")

	created, err := s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{ID: "p1", Tokens: 1})
	s.Require().NoError(err)
	s.False(created)

	ids, _ := s.mini.List(playerIndexKey())
	s.Equal([]string{"p1"}, ids)
}

func (s *StorageSuite) TestGetPlayerNotFound() {
	_, err := s.storage.GetPlayer(s.ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestLegacyAdminRoleDecodesAsSuperAdmin() {
	s.createPlayer("p1")
	s.mini.HSet(playerKey("p1"), fieldRole, "admin")

	rec, err := s.storage.GetPlayer(s.ctx, "p1")
	s.Require().NoError(err)
	s.Equal(model.RoleSuperAdmin, rec.Role)
}

func (s *StorageSuite) TestActiveGameUsesServerTime() {
	s.createPlayer("p1")
	later := s.now.Add(90 * time.Second)
	s.mini.SetTime(later)

	rec, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		SetActiveGame: &model.ActiveGame{
			AssignmentID: "a1",
			Category:     model.CategorySpade,
			Level:        2,
			GameID:       "SPADE_2",
			StartedAt:    time.Unix(1, 0),
		},
		LastPlayedCategory:   storage.Ptr(model.CategorySpade),
		UnlockedSameCategory: storage.Ptr(false),
	})
	s.Require().NoError(err)
	s.Equal(later, rec.ActiveGame.StartedAt)

	stored, err := s.storage.GetPlayer(s.ctx, "p1")
	s.Require().NoError(err)
	s.Require().NotNil(stored.ActiveGame)
	s.True(later.Equal(stored.ActiveGame.StartedAt))
	s.Equal(model.AssignmentID("a1"), stored.ActiveGame.AssignmentID)
	s.Equal(model.CategorySpade, stored.LastPlayedCategory)
}

func (s *StorageSuite) TestClearActiveGameAndAppendHistory() {
	s.createPlayer("p1")
	_, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		SetActiveGame: &model.ActiveGame{AssignmentID: "a1", GameID: "HEART_1", Category: model.CategoryHeart, Level: 1},
	})
	s.Require().NoError(err)

	rec, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		ClearActiveGame: true,
		AppendCompleted: []model.MissionID{"HEART_1"},
		ScoreDelta:      1,
	})
	s.Require().NoError(err)
	s.Nil(rec.ActiveGame)

	stored, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Nil(stored.ActiveGame)
	s.Equal([]model.MissionID{"HEART_1"}, stored.CompletedGames)
	s.Equal(int64(1), stored.Score)
	s.Equal("", s.mini.HGet(playerKey("p1"), fieldActiveGame))
}

func (s *StorageSuite) TestIncrementsAreDeltas() {
	s.createPlayer("p1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{ScoreDelta: 1, TokensDelta: -1})
			s.NoError(err)
		}()
	}
	wg.Wait()

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(20), rec.Score)
	s.Equal(int64(80), rec.Tokens)
}

func (s *StorageSuite) TestUpdatePlayerFuncConcurrentChecksNeverOverdraw() {
	s.createPlayer("p1")
	_, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{TokensDelta: -96})
	s.Require().NoError(err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.storage.UpdatePlayerFunc(s.ctx, "p1", func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
				if cur.Tokens < 2 {
					return nil, model.ErrInsufficientBalance
				}
				return &storage.Patch{TokensDelta: -2}, nil
			})
		}()
	}
	wg.Wait()

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(0), rec.Tokens)
}

func (s *StorageSuite) TestUpdatePlayerFuncRejectionWritesNothing() {
	s.createPlayer("p1")

	_, err := s.storage.UpdatePlayerFunc(s.ctx, "p1", func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		return nil, model.ErrCategoryLocked
	})
	s.ErrorIs(err, model.ErrCategoryLocked)

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(100), rec.Tokens)
}

func (s *StorageSuite) TestUpdatePlayerNotFound() {
	_, err := s.storage.UpdatePlayer(s.ctx, "ghost", storage.Patch{ScoreDelta: 1})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestListPlayers() {
	s.createPlayer("p1")
	s.createPlayer("p2")
	s.createPlayer("p3")
	_, err := s.storage.UpdatePlayer(s.ctx, "p3", storage.Patch{Role: storage.Ptr(model.RoleManager)})
	s.Require().NoError(err)

	all, err := s.storage.ListPlayers(s.ctx, storage.Filter{}, 0)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(model.PlayerID("p1"), all[0].ID)
	s.Equal(model.PlayerID("p2"), all[1].ID)

	top, _ := s.storage.ListPlayers(s.ctx, storage.Filter{}, 1)
	s.Len(top, 1)

	staff, _ := s.storage.ListPlayers(s.ctx, storage.Filter{Roles: []model.Role{model.RoleManager}}, 0)
	s.Require().Len(staff, 1)
	s.Equal(model.PlayerID("p3"), staff[0].ID)
}

// Subscription tests

func (s *StorageSuite) TestSubscribePlayer() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayer(s.ctx, "p1")
	s.Require().NoError(err)
	defer sub.Close()

	first := <-sub.C
	s.Equal(int64(100), first.Tokens)

	_, err = s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{TokensDelta: -2})
	s.Require().NoError(err)

	select {
	case rec := <-sub.C:
		s.Equal(int64(98), rec.Tokens)
	case <-time.After(2 * time.Second):
		s.Fail("no update delivered")
	}
}

func (s *StorageSuite) TestSubscribePlayerRereadsOnNotify() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayer(s.ctx, "p1")
	s.Require().NoError(err)
	defer sub.Close()
	<-sub.C

	_, err = s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{TokensDelta: -2})
	s.Require().NoError(err)
	s.Equal(int64(98), s.nextTokens(sub))

	// A late notification carrying an older record
	stale := `{"id":"p1","tokens":100}`
	s.Require().NoError(s.storage.client.Publish(s.ctx, playerChannel("p1"), stale).Err())
	s.Equal(int64(98), s.nextTokens(sub))
}

func (s *StorageSuite) nextTokens(sub *storage.Subscription[*model.PlayerRecord]) int64 {
	select {
	case rec := <-sub.C:
		return rec.Tokens
	case <-time.After(2 * time.Second):
		s.FailNow("no update delivered")
		return 0
	}
}

func (s *StorageSuite) TestSubscribePlayerNotFound() {
	_, err := s.storage.SubscribePlayer(s.ctx, "ghost")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestSubscribePlayers() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayers(s.ctx, storage.Filter{}, 10)
	s.Require().NoError(err)
	defer sub.Close()

	s.Len(<-sub.C, 1)
	s.createPlayer("p2")

	select {
	case list := <-sub.C:
		s.Len(list, 2)
	case <-time.After(2 * time.Second):
		s.Fail("no list delivered")
	}
}

// Credential tests

func (s *StorageSuite) TestCredentials() {
	cred := &model.Credential{PlayerID: "p1", Email: "alice@example.com", PasswordHash: "hash", CreatedAt: s.now}
	s.Require().NoError(s.storage.SaveCredential(s.ctx, cred))

	got, err := s.storage.GetCredentialByEmail(s.ctx, "Alice@Example.com")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.PlayerID)
	s.Equal("hash", got.PasswordHash)

	err = s.storage.SaveCredential(s.ctx, &model.Credential{PlayerID: "p2", Email: "alice@example.com"})
	s.ErrorIs(err, model.ErrEmailExists)

	_, err = s.storage.GetCredentialByEmail(s.ctx, "nobody@example.com")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}
