package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chaosroom/internal/dependencies/mocks"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/storage"
)

type StorageSuite struct {
	suite.Suite
	clock   *mocks.MockClock
	storage *Storage
	ctx     context.Context
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, new(StorageSuite))
}

func (s *StorageSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s.storage = New(s.clock)
	s.ctx = context.Background()
}

func (s *StorageSuite) createPlayer(id model.PlayerID) {
	created, err := s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{
		ID:     id,
		Email:  string(id) + "@example.com",
		Role:   model.RoleParticipant,
		Tokens: 100,
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
	s.Equal(int64(100), rec.Tokens)
	s.Empty(rec.CompletedGames)
	s.Equal(s.clock.Now(), rec.CreatedAt)
}

func (s *StorageSuite) TestCreatePlayerIfAbsent() {
	s.createPlayer("p1")

	created, err := s.storage.CreatePlayer(s.ctx, &model.PlayerRecord{ID: "p1", Tokens: 5})
	s.Require().NoError(err)
	s.False(created)

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(100), rec.Tokens)
}

func (s *StorageSuite) TestGetPlayerNotFound() {
	_, err := s.storage.GetPlayer(s.ctx, "nonexistent")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestGetPlayerReturnsCopy() {
	s.createPlayer("p1")

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	rec.Tokens = 0

	again, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(100), again.Tokens)
}

func (s *StorageSuite) TestUpdatePlayerStampsStartedAt() {
	s.createPlayer("p1")
	s.clock.Advance(time.Minute)

	rec, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		SetActiveGame: &model.ActiveGame{
			AssignmentID: "a1",
			Category:     model.CategoryHeart,
			Level:        3,
			GameID:       "HEART_3",
			StartedAt:    time.Unix(0, 0),
		},
	})
	s.Require().NoError(err)
	s.Require().NotNil(rec.ActiveGame)
	s.Equal(s.clock.Now(), rec.ActiveGame.StartedAt)
}

func (s *StorageSuite) TestUpdatePlayerAppliesDeltas() {
	s.createPlayer("p1")

	_, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		TokensDelta:     -2,
		ScoreDelta:      3,
		AppendCompleted: []model.MissionID{"SPADE_1"},
	})
	s.Require().NoError(err)
	rec, err := s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{
		ScoreDelta:      -1,
		AppendCompleted: []model.MissionID{"SPADE_1"},
	})
	s.Require().NoError(err)

	s.Equal(int64(98), rec.Tokens)
	s.Equal(int64(2), rec.Score)
	s.Equal([]model.MissionID{"SPADE_1", "SPADE_1"}, rec.CompletedGames)
}

func (s *StorageSuite) TestUpdatePlayerNotFound() {
	_, err := s.storage.UpdatePlayer(s.ctx, "ghost", storage.Patch{ScoreDelta: 1})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *StorageSuite) TestUpdatePlayerFuncAbortsOnError() {
	s.createPlayer("p1")
	abort := errors.New("abort")

	_, err := s.storage.UpdatePlayerFunc(s.ctx, "p1", func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		return nil, abort
	})
	s.ErrorIs(err, abort)

	rec, _ := s.storage.GetPlayer(s.ctx, "p1")
	s.Equal(int64(100), rec.Tokens)
}

func (s *StorageSuite) TestUpdatePlayerFuncConcurrentChecksNeverOverdraw() {
	s.createPlayer("p1")

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
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

func (s *StorageSuite) TestListPlayersArrivalOrderAndFilter() {
	s.createPlayer("p1")
	s.createPlayer("p2")
	s.createPlayer("p3")
	_, err := s.storage.UpdatePlayer(s.ctx, "p2", storage.Patch{Role: storage.Ptr(model.RoleManager)})
	s.Require().NoError(err)

	all, err := s.storage.ListPlayers(s.ctx, storage.Filter{}, 0)
	s.Require().NoError(err)
	s.Len(all, 3)
	s.Equal(model.PlayerID("p1"), all[0].ID)
	s.Equal(model.PlayerID("p3"), all[2].ID)

	limited, _ := s.storage.ListPlayers(s.ctx, storage.Filter{}, 2)
	s.Len(limited, 2)

	participants, _ := s.storage.ListPlayers(s.ctx, storage.Filter{Roles: []model.Role{model.RoleParticipant}}, 0)
	s.Len(participants, 2)
}

// Subscription tests

func (s *StorageSuite) TestSubscribePlayerDeliversSnapshotThenChanges() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayer(s.ctx, "p1")
	s.Require().NoError(err)
	defer sub.Close()

	first := <-sub.C
	s.Equal(int64(100), first.Tokens)

	_, err = s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{TokensDelta: 5})
	s.Require().NoError(err)

	select {
	case rec := <-sub.C:
		s.Equal(int64(105), rec.Tokens)
	case <-time.After(time.Second):
		s.Fail("no update delivered")
	}
}

func (s *StorageSuite) TestSubscribePlayerLatestWins() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayer(s.ctx, "p1")
	s.Require().NoError(err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		_, _ = s.storage.UpdatePlayer(s.ctx, "p1", storage.Patch{ScoreDelta: 1})
	}

	rec := <-sub.C
	s.Equal(int64(5), rec.Score)
}

func (s *StorageSuite) TestSubscriptionClosedByContext() {
	s.createPlayer("p1")
	ctx, cancel := context.WithCancel(s.ctx)

	sub, err := s.storage.SubscribePlayer(ctx, "p1")
	s.Require().NoError(err)
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		s.Fail("subscription not closed")
	}

	s.storage.mu.Lock()
	s.Empty(s.storage.playerSubs)
	s.storage.mu.Unlock()
}

func (s *StorageSuite) TestSubscribePlayersStreamsList() {
	s.createPlayer("p1")

	sub, err := s.storage.SubscribePlayers(s.ctx, storage.Filter{}, 10)
	s.Require().NoError(err)
	defer sub.Close()

	s.Len(<-sub.C, 1)
	s.createPlayer("p2")
	s.Len(<-sub.C, 2)
}

// Credential tests

func (s *StorageSuite) TestCredentials() {
	cred := &model.Credential{PlayerID: "p1", Email: "Alice@Example.com", PasswordHash: "hash"}
	s.Require().NoError(s.storage.SaveCredential(s.ctx, cred))

	got, err := s.storage.GetCredentialByEmail(s.ctx, "alice@example.com")
	s.Require().NoError(err)
	s.Equal(model.PlayerID("p1"), got.PlayerID)

	err = s.storage.SaveCredential(s.ctx, &model.Credential{PlayerID: "p2", Email: "alice@example.com"})
	s.ErrorIs(err, model.ErrEmailExists)

	_, err = s.storage.GetCredentialByEmail(s.ctx, "bob@example.com")
	s.ErrorIs(err, model.ErrPlayerNotFound)
}
