package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/chaosroom/internal/audit"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/mocks"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/storage"
	"github.com/mcoot/chaosroom/internal/storage/memory"
	"github.com/mcoot/chaosroom/internal/testutil"
)

type ServiceSuite struct {
	suite.Suite
	store   *memory.Storage
	clock   *mocks.MockClock
	random  *mocks.MockRandom
	audit   *audit.MemoryRecorder
	driver  *chaos.Driver
	service *Service
	ctx     context.Context

	player  model.Actor
	manager model.Actor
	admin   model.Actor
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.clock = mocks.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	s.random = mocks.NewMockRandom()
	s.store = memory.New(s.clock)
	s.audit = audit.NewMemoryRecorder()
	s.driver = chaos.New(chaos.DefaultConfig())
	s.ctx = context.Background()
	s.service = s.newService(DefaultConfig())

	s.player = s.ensure("player-1", model.RoleParticipant)
	s.manager = s.ensure("manager-1", model.RoleManager)
	s.admin = s.ensure("admin-1", model.RoleSuperAdmin)
}

func (s *ServiceSuite) newService(cfg Config) *Service {
	return New(s.store, catalog.Default(), s.driver, s.audit, s.clock, s.random, testutil.NopLogger(), cfg)
}

func (s *ServiceSuite) ensure(id model.PlayerID, role model.Role) model.Actor {
	_, created, err := s.service.EnsurePlayer(s.ctx, id, string(id)+"@example.com", "", role)
	s.Require().NoError(err)
	s.Require().True(created)
	return model.Actor{ID: id, Role: role}
}

func (s *ServiceSuite) get(id model.PlayerID) *model.PlayerRecord {
	rec, err := s.store.GetPlayer(s.ctx, id)
	s.Require().NoError(err)
	return rec
}

func (s *ServiceSuite) setTokens(id model.PlayerID, tokens int64) {
	rec := s.get(id)
	_, err := s.store.UpdatePlayer(s.ctx, id, storage.Patch{TokensDelta: tokens - rec.Tokens})
	s.Require().NoError(err)
}

// EnsurePlayer tests

func (s *ServiceSuite) TestEnsurePlayerAppliesDefaultsOnce() {
	rec := s.get(s.player.ID)
	s.Equal(int64(100), rec.Tokens)
	s.Equal(int64(0), rec.Score)
	s.Nil(rec.ActiveGame)
	s.Empty(rec.LastPlayedCategory)

	_, err := s.store.UpdatePlayer(s.ctx, s.player.ID, storage.Patch{TokensDelta: -40})
	s.Require().NoError(err)

	again, created, err := s.service.EnsurePlayer(s.ctx, s.player.ID, "other@example.com", "Other", model.RoleManager)
	s.Require().NoError(err)
	s.False(created)
	s.Equal(int64(60), again.Tokens)
	s.Equal(model.RoleParticipant, again.Role)
}

// StartMission tests

// Scenario A
func (s *ServiceSuite) TestStartMissionSetsActiveGameWithStoreTime() {
	rec, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 3)
	s.Require().NoError(err)

	s.Require().NotNil(rec.ActiveGame)
	s.Equal(model.CategoryHeart, rec.ActiveGame.Category)
	s.Equal(3, rec.ActiveGame.Level)
	s.Equal(model.MissionID("HEART_3"), rec.ActiveGame.GameID)
	s.Equal(s.clock.Now(), rec.ActiveGame.StartedAt)
	s.NotEmpty(rec.ActiveGame.AssignmentID)
	s.Equal(model.CategoryHeart, rec.LastPlayedCategory)
	s.False(rec.UnlockedSameCategory)
}

// Scenario B
func (s *ServiceSuite) TestStartMissionWhileActiveRejected() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 3)
	s.Require().NoError(err)
	before := s.get(s.player.ID)

	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.ErrorIs(err, model.ErrMissionActive)
	s.True(model.IsRejection(err))
	s.Equal(before, s.get(s.player.ID))
}

func (s *ServiceSuite) TestStartMissionSameCategoryLocked() {
	s.startAndCancel(model.CategorySpade, 2)
	before := s.get(s.player.ID)

	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 4)
	s.ErrorIs(err, model.ErrCategoryLocked)
	s.Equal(before, s.get(s.player.ID))
}

func (s *ServiceSuite) TestStartMissionOtherCategoryAllowed() {
	s.startAndCancel(model.CategorySpade, 2)

	rec, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 4)
	s.Require().NoError(err)
	s.Equal(model.CategoryHeart, rec.LastPlayedCategory)
}

// Scenario C
func (s *ServiceSuite) TestUnlockCategoryInsufficientTokens() {
	s.setTokens(s.player.ID, 1)

	_, err := s.service.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrInsufficientBalance)

	rec := s.get(s.player.ID)
	s.Equal(int64(1), rec.Tokens)
	s.False(rec.UnlockedSameCategory)
}

// Scenario D
func (s *ServiceSuite) TestUnlockCategoryAllowsOneSameCategoryStart() {
	s.startAndCancel(model.CategoryHeart, 1)
	s.setTokens(s.player.ID, 5)

	rec, err := s.service.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)
	s.Equal(int64(3), rec.Tokens)
	s.True(rec.UnlockedSameCategory)

	rec, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)
	s.False(rec.UnlockedSameCategory)
	s.Equal(model.CategoryHeart, rec.LastPlayedCategory)

	_, err = s.service.CancelMission(s.ctx, s.player, s.player.ID, "")
	s.Require().NoError(err)
	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 3)
	s.ErrorIs(err, model.ErrCategoryLocked)
}

func (s *ServiceSuite) TestUnlockCategoryTwiceRejected() {
	_, err := s.service.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)

	_, err = s.service.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrAlreadyUnlocked)
	s.Equal(int64(98), s.get(s.player.ID).Tokens)
}

func (s *ServiceSuite) TestStartMissionValidation() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, "CLUB", 1)
	s.ErrorIs(err, model.ErrInvalidCategory)

	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 7)
	s.ErrorIs(err, model.ErrInvalidLevel)

	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 0)
	s.ErrorIs(err, model.ErrInvalidLevel)
}

func (s *ServiceSuite) TestStartMissionUnknownPlayer() {
	ghost := model.Actor{ID: "ghost", Role: model.RoleParticipant}
	_, err := s.service.StartMission(s.ctx, ghost, "ghost", model.CategoryHeart, 1)
	s.ErrorIs(err, model.ErrPlayerNotFound)
}

func (s *ServiceSuite) TestStartMissionForOtherPlayerNeedsStaff() {
	other := s.ensure("player-2", model.RoleParticipant)

	_, err := s.service.StartMission(s.ctx, other, s.player.ID, model.CategoryHeart, 1)
	s.ErrorIs(err, model.ErrForbidden)

	_, err = s.service.StartMission(s.ctx, s.manager, s.player.ID, model.CategoryHeart, 1)
	s.NoError(err)
}

func (s *ServiceSuite) TestStartMissionReplacesExpiredMission() {
	first, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.Require().NoError(err)
	s.clock.Advance(10*time.Minute + time.Second)

	rec, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.Require().NoError(err)
	s.NotEqual(first.ActiveGame.AssignmentID, rec.ActiveGame.AssignmentID)
	s.Empty(rec.CompletedGames)

	// The replaced assignment can no longer be credited
	_, err = s.service.CompleteMission(s.ctx, s.manager, s.player.ID, first.ActiveGame.AssignmentID, OutcomeInput{})
	s.ErrorIs(err, model.ErrMissionAlreadyResolved)
}

func (s *ServiceSuite) TestStaleGraceKeepsExpiredMissionBlocking() {
	s.service = s.newService(Config{StaleGrace: 5 * time.Minute})
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.Require().NoError(err)

	s.clock.Advance(11 * time.Minute)
	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.ErrorIs(err, model.ErrMissionActive)

	s.clock.Advance(5 * time.Minute)
	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.NoError(err)
}

func (s *ServiceSuite) TestRollMissionPicksLevelInRange() {
	s.random.QueueIntn(4)

	rec, err := s.service.RollMission(s.ctx, s.player, s.player.ID, model.CategorySpade)
	s.Require().NoError(err)
	s.Equal(5, rec.ActiveGame.Level)
	s.Equal(model.MissionID("SPADE_5"), rec.ActiveGame.GameID)
}

// Tick tests

// Scenario E
func (s *ServiceSuite) TestTickReportsExpiryAfterDuration() {
	rec, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 3)
	s.Require().NoError(err)

	t := s.service.Tick(s.clock.Now().Add(599*time.Second), rec)
	s.Equal(model.StateInMission, t.State)
	s.Equal(time.Second, t.Remaining)
	s.False(t.Expired)

	t = s.service.Tick(s.clock.Now().Add(601*time.Second), rec)
	s.Equal(model.StateAwaitingVerification, t.State)
	s.LessOrEqual(t.Remaining, time.Duration(0))
	s.True(t.Expired)
}

func (s *ServiceSuite) TestTickIdle() {
	t := s.service.Tick(s.clock.Now(), s.get(s.player.ID))
	s.Equal(model.StateIdle, t.State)
	s.False(t.Expired)
}

// CompleteMission tests

func (s *ServiceSuite) TestCompleteMissionDefaultWin() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.Require().NoError(err)

	res, err := s.service.CompleteMission(s.ctx, s.manager, s.player.ID, started.ActiveGame.AssignmentID, OutcomeInput{})
	s.Require().NoError(err)
	s.Equal(catalog.OutcomeWin, res.Outcome)
	s.Equal(int64(1), res.ScoreDelta)

	rec := s.get(s.player.ID)
	s.Nil(rec.ActiveGame)
	s.Equal(int64(1), rec.Score)
	s.Equal([]model.MissionID{"SPADE_1"}, rec.CompletedGames)
}

func (s *ServiceSuite) TestCompleteMissionTokenOutcome() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 4)
	s.Require().NoError(err)

	res, err := s.service.CompleteMission(s.ctx, s.manager, s.player.ID, "", OutcomeInput{Label: "BOTH_BETRAY"})
	s.Require().NoError(err)
	s.Equal(int64(-3), res.TokensDelta)
	s.Equal(int64(97), s.get(s.player.ID).Tokens)
}

func (s *ServiceSuite) TestCompleteMissionWager() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 5)
	s.Require().NoError(err)

	_, err = s.service.CompleteMission(s.ctx, s.manager, s.player.ID, "", OutcomeInput{Label: "SOLO_LOSE"})
	s.ErrorIs(err, model.ErrInvalidWager)
	s.NotNil(s.get(s.player.ID).ActiveGame)

	res, err := s.service.CompleteMission(s.ctx, s.manager, s.player.ID, "", OutcomeInput{Label: "SOLO_LOSE", Wager: 7})
	s.Require().NoError(err)
	s.Equal(int64(-7), res.TokensDelta)
	s.Equal(int64(-1), res.ScoreDelta)

	rec := s.get(s.player.ID)
	s.Equal(int64(93), rec.Tokens)
	s.Equal(int64(-1), rec.Score)
}

func (s *ServiceSuite) TestCompleteMissionUnknownOutcome() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 2)
	s.Require().NoError(err)

	_, err = s.service.CompleteMission(s.ctx, s.manager, s.player.ID, "", OutcomeInput{Label: "JACKPOT"})
	s.ErrorIs(err, model.ErrUnknownOutcome)
	s.NotNil(s.get(s.player.ID).ActiveGame)
}

func (s *ServiceSuite) TestCompleteMissionRequiresStaff() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 2)
	s.Require().NoError(err)

	_, err = s.service.CompleteMission(s.ctx, s.player, s.player.ID, "", OutcomeInput{})
	s.ErrorIs(err, model.ErrForbidden)

	pending := s.ensure("pending-1", model.RolePendingManager)
	_, err = s.service.CompleteMission(s.ctx, pending, s.player.ID, "", OutcomeInput{})
	s.ErrorIs(err, model.ErrForbidden)
}

func (s *ServiceSuite) TestCompleteMissionNoActive() {
	_, err := s.service.CompleteMission(s.ctx, s.manager, s.player.ID, "", OutcomeInput{})
	s.ErrorIs(err, model.ErrNoActiveMission)
}

func (s *ServiceSuite) TestCompleteMissionTwiceCreditsOnce() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.Require().NoError(err)
	assignment := started.ActiveGame.AssignmentID

	_, err = s.service.CompleteMission(s.ctx, s.manager, s.player.ID, assignment, OutcomeInput{})
	s.Require().NoError(err)
	_, err = s.service.CompleteMission(s.ctx, s.admin, s.player.ID, assignment, OutcomeInput{})
	s.ErrorIs(err, model.ErrMissionAlreadyResolved)

	rec := s.get(s.player.ID)
	s.Equal(int64(1), rec.Score)
	s.Len(rec.CompletedGames, 1)
}

func (s *ServiceSuite) TestExpiryAndVerificationRaceCreditsOnce() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategorySpade, 1)
	s.Require().NoError(err)
	assignment := started.ActiveGame.AssignmentID
	s.clock.Advance(601 * time.Second)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if _, err := s.service.ExpireMission(s.ctx, s.player, s.player.ID, assignment); err == nil {
				wins.Add(1)
			}
		}()
		go func() {
			defer wg.Done()
			if _, err := s.service.CompleteMission(s.ctx, s.manager, s.player.ID, assignment, OutcomeInput{}); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	rec := s.get(s.player.ID)
	s.Len(rec.CompletedGames, 1)
	s.LessOrEqual(rec.Score, int64(1))
}

// ExpireMission tests

func (s *ServiceSuite) TestExpireMissionBeforeTimerRejected() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)
	s.clock.Advance(5 * time.Minute)

	_, err = s.service.ExpireMission(s.ctx, s.player, s.player.ID, started.ActiveGame.AssignmentID)
	s.ErrorIs(err, model.ErrMissionNotExpired)
	s.NotNil(s.get(s.player.ID).ActiveGame)
}

func (s *ServiceSuite) TestExpireMissionAppliesTimeoutOutcome() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)
	s.clock.Advance(10 * time.Minute)

	res, err := s.service.ExpireMission(s.ctx, s.player, s.player.ID, started.ActiveGame.AssignmentID)
	s.Require().NoError(err)
	s.Equal(catalog.OutcomeTimeout, res.Outcome)

	rec := s.get(s.player.ID)
	s.Nil(rec.ActiveGame)
	s.Equal(int64(0), rec.Score)
	s.Equal(int64(100), rec.Tokens)
	s.Equal([]model.MissionID{"HEART_2"}, rec.CompletedGames)
}

func (s *ServiceSuite) TestExpireStaleSweepsUnobservedMissions() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)
	other := s.ensure("player-2", model.RoleParticipant)
	s.clock.Advance(5 * time.Minute)
	_, err = s.service.StartMission(s.ctx, other, other.ID, model.CategorySpade, 2)
	s.Require().NoError(err)
	s.clock.Advance(6 * time.Minute)

	n, err := s.service.ExpireStale(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, n)
	s.Nil(s.get(s.player.ID).ActiveGame)
	s.NotNil(s.get(other.ID).ActiveGame)
}

// CancelMission tests

func (s *ServiceSuite) TestCancelMissionNoCreditNoHistory() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)

	rec, err := s.service.CancelMission(s.ctx, s.player, s.player.ID, "")
	s.Require().NoError(err)
	s.Nil(rec.ActiveGame)
	s.Empty(rec.CompletedGames)
	s.Equal(int64(0), rec.Score)
	s.Equal(int64(100), rec.Tokens)
	s.Equal(model.CategoryHeart, rec.LastPlayedCategory)
}

func (s *ServiceSuite) TestStaffCancelIsAudited() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)

	_, err = s.service.CancelMission(s.ctx, s.manager, s.player.ID, "")
	s.Require().NoError(err)

	entries, _ := s.audit.ListForTarget(s.ctx, s.player.ID, 0)
	s.Require().Len(entries, 1)
	s.Equal(model.AuditCancelMission, entries[0].Action)
	s.Equal("HEART_2", entries[0].Detail)
}

func (s *ServiceSuite) TestCancelMissionWithoutActive() {
	_, err := s.service.CancelMission(s.ctx, s.player, s.player.ID, "")
	s.ErrorIs(err, model.ErrNoActiveMission)
}

// SkipRule tests

func (s *ServiceSuite) TestSkipRuleDeductsAndGrantsImmunity() {
	rec, err := s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)

	cycle := s.driver.At(s.clock.Now()).Index
	s.Equal(int64(98), rec.Tokens)
	s.True(rec.IsImmune(cycle))

	_, err = s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrAlreadyImmune)
	s.Equal(int64(98), s.get(s.player.ID).Tokens)

	// Immunity lasts for the current cycle only
	s.clock.Advance(s.driver.Duration())
	rec, err = s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)
	s.Equal(int64(96), rec.Tokens)
	s.True(rec.IsImmune(cycle + 1))
}

func (s *ServiceSuite) TestSkipRuleInsufficientBalance() {
	s.setTokens(s.player.ID, 1)

	_, err := s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrInsufficientBalance)

	rec := s.get(s.player.ID)
	s.Equal(int64(1), rec.Tokens)
	s.Nil(rec.ImmuneCycle)
}

func (s *ServiceSuite) TestSkipRuleScoreVariant() {
	s.service = s.newService(Config{SkipRule: SkipRuleCost{Resource: model.FieldScore, Amount: 1}})

	_, err := s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrInsufficientBalance)

	_, err = s.store.UpdatePlayer(s.ctx, s.player.ID, storage.Patch{ScoreDelta: 1})
	s.Require().NoError(err)
	rec, err := s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)
	s.Equal(int64(0), rec.Score)
	s.Equal(int64(100), rec.Tokens)
}

func (s *ServiceSuite) TestConcurrentDeductionsNeverGoNegative() {
	s.setTokens(s.player.ID, 3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = s.service.UnlockCategory(s.ctx, s.player, s.player.ID)
		}()
		go func() {
			defer wg.Done()
			_, _ = s.service.SkipRule(s.ctx, s.player, s.player.ID)
		}()
	}
	wg.Wait()

	s.Equal(int64(1), s.get(s.player.ID).Tokens)
}

// AdjustBalance tests

func (s *ServiceSuite) TestAdjustBalanceByStaff() {
	rec, err := s.service.AdjustBalance(s.ctx, s.manager, s.player.ID, model.FieldTokens, -150, "penalty")
	s.Require().NoError(err)
	s.Equal(int64(-50), rec.Tokens)

	rec, err = s.service.AdjustBalance(s.ctx, s.manager, s.player.ID, model.FieldScore, 4, "bonus")
	s.Require().NoError(err)
	s.Equal(int64(4), rec.Score)

	entries, _ := s.audit.ListForTarget(s.ctx, s.player.ID, 0)
	s.Require().Len(entries, 2)
	s.Equal(model.FieldScore, entries[0].Field)
	s.Equal(int64(4), entries[0].Delta)
	s.Equal("bonus", entries[0].Reason)
	s.Equal(s.manager.ID, entries[0].ActorID)
}

func (s *ServiceSuite) TestAdjustBalanceForbiddenForParticipant() {
	_, err := s.service.AdjustBalance(s.ctx, s.player, s.player.ID, model.FieldTokens, 100, "")
	s.ErrorIs(err, model.ErrForbidden)
	s.Equal(int64(100), s.get(s.player.ID).Tokens)
}

func (s *ServiceSuite) TestAdjustBalanceInvalidField() {
	_, err := s.service.AdjustBalance(s.ctx, s.manager, s.player.ID, "karma", 1, "")
	s.ErrorIs(err, model.ErrInvalidField)
}

// SetRole tests

func (s *ServiceSuite) TestSetRoleTransitions() {
	pending := s.ensure("pending-1", model.RolePendingManager)

	rec, err := s.service.SetRole(s.ctx, s.admin, pending.ID, model.RoleManager)
	s.Require().NoError(err)
	s.Equal(model.RoleManager, rec.Role)

	rec, err = s.service.SetRole(s.ctx, s.admin, pending.ID, model.RoleParticipant)
	s.Require().NoError(err)
	s.Equal(model.RoleParticipant, rec.Role)

	_, err = s.service.SetRole(s.ctx, s.admin, pending.ID, model.RoleManager)
	s.ErrorIs(err, model.ErrInvalidRoleTransition)

	entries, _ := s.audit.ListForTarget(s.ctx, pending.ID, 0)
	s.Len(entries, 2)
}

func (s *ServiceSuite) TestSetRoleRequiresSuperAdmin() {
	pending := s.ensure("pending-1", model.RolePendingManager)

	_, err := s.service.SetRole(s.ctx, s.manager, pending.ID, model.RoleManager)
	s.ErrorIs(err, model.ErrForbidden)

	_, err = s.service.SetRole(s.ctx, s.player, s.player.ID, model.RoleSuperAdmin)
	s.ErrorIs(err, model.ErrForbidden)
}

func (s *ServiceSuite) TestSetRoleCannotPromoteParticipant() {
	_, err := s.service.SetRole(s.ctx, s.admin, s.player.ID, model.RoleSuperAdmin)
	s.ErrorIs(err, model.ErrInvalidRoleTransition)
}

// ResetPlayer tests

func (s *ServiceSuite) TestResetPlayerClearsMissionAndLock() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 2)
	s.Require().NoError(err)

	rec, err := s.service.ResetPlayer(s.ctx, s.manager, s.player.ID, "stuck")
	s.Require().NoError(err)
	s.Nil(rec.ActiveGame)
	s.Empty(rec.LastPlayedCategory)
	s.False(rec.UnlockedSameCategory)

	_, err = s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.NoError(err)
}

func (s *ServiceSuite) TestResetPlayerForbiddenForParticipant() {
	_, err := s.service.ResetPlayer(s.ctx, s.player, s.player.ID, "")
	s.ErrorIs(err, model.ErrForbidden)
}

// CreditSurvival tests

func (s *ServiceSuite) TestCreditSurvivalPerObservation() {
	for i := 0; i < 2; i++ {
		_, credited, err := s.service.CreditSurvival(s.ctx, s.player.ID, 7)
		s.Require().NoError(err)
		s.True(credited)
	}
	s.Equal(int64(2), s.get(s.player.ID).Score)
}

func (s *ServiceSuite) TestCreditSurvivalDedupe() {
	s.service = s.newService(Config{DedupeSurvivalCredit: true})

	_, credited, err := s.service.CreditSurvival(s.ctx, s.player.ID, 7)
	s.Require().NoError(err)
	s.True(credited)
	_, credited, err = s.service.CreditSurvival(s.ctx, s.player.ID, 7)
	s.Require().NoError(err)
	s.False(credited)
	_, credited, err = s.service.CreditSurvival(s.ctx, s.player.ID, 8)
	s.Require().NoError(err)
	s.True(credited)

	s.Equal(int64(2), s.get(s.player.ID).Score)
}

// Roster and access tests

func (s *ServiceSuite) TestRosterRequiresStaff() {
	_, err := s.service.Roster(s.ctx, s.player, storage.Filter{})
	s.ErrorIs(err, model.ErrForbidden)

	list, err := s.service.Roster(s.ctx, s.manager, storage.Filter{})
	s.Require().NoError(err)
	s.Len(list, 3)
}

func (s *ServiceSuite) TestGetPlayerAccess() {
	other := s.ensure("player-2", model.RoleParticipant)

	_, err := s.service.GetPlayer(s.ctx, other, s.player.ID)
	s.ErrorIs(err, model.ErrForbidden)

	rec, err := s.service.GetPlayer(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)
	s.Equal(s.player.ID, rec.ID)

	_, err = s.service.GetPlayer(s.ctx, s.manager, s.player.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestActorResolvesStoredRole() {
	actor, err := s.service.Actor(s.ctx, s.manager.ID)
	s.Require().NoError(err)
	s.Equal(model.RoleManager, actor.Role)
}

// Failure classification

type failingStore struct {
	storage.Store
	err error
}

func (f *failingStore) UpdatePlayer(ctx context.Context, id model.PlayerID, patch storage.Patch) (*model.PlayerRecord, error) {
	return nil, f.err
}

func (f *failingStore) UpdatePlayerFunc(ctx context.Context, id model.PlayerID, fn storage.MutateFunc) (*model.PlayerRecord, error) {
	rec, err := f.Store.GetPlayer(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := fn(rec, time.Now()); err != nil {
		return nil, err
	}
	return nil, f.err
}

func (s *ServiceSuite) TestStoreFailureIsDistinguishableFromRejection() {
	unavailable := errors.New("connection refused")
	svc := New(&failingStore{Store: s.store, err: unavailable}, catalog.Default(), s.driver, s.audit, s.clock, s.random, testutil.NopLogger(), DefaultConfig())

	_, err := svc.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrPersistFailed)
	s.ErrorIs(err, unavailable)
	s.False(model.IsRejection(err))

	s.setTokens(s.player.ID, 0)
	_, err = svc.UnlockCategory(s.ctx, s.player, s.player.ID)
	s.ErrorIs(err, model.ErrInsufficientBalance)
	s.NotErrorIs(err, model.ErrPersistFailed)

	_, err = svc.AdjustBalance(s.ctx, s.manager, s.player.ID, model.FieldScore, 1, "")
	s.ErrorIs(err, model.ErrPersistFailed)
}

// helpers

func (s *ServiceSuite) startAndCancel(c model.Category, level int) {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, c, level)
	s.Require().NoError(err)
	_, err = s.service.CancelMission(s.ctx, s.player, s.player.ID, "")
	s.Require().NoError(err)
}
