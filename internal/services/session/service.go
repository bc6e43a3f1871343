package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mcoot/chaosroom/internal/audit"
	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/dependencies/clock"
	"github.com/mcoot/chaosroom/internal/dependencies/random"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/storage"
)

// Service owns every transition of a player's session record. All
// read-check-write transitions run inside the store's atomic update, so
// concurrent clients and staff cannot interleave a check with its write.
type Service struct {
	store   storage.Store
	catalog *catalog.Catalog
	chaos   *chaos.Driver
	audit   audit.Recorder
	clock   clock.Clock
	random  random.Random
	logger  *slog.Logger
	cfg     Config
}

// New creates a new session Service
func New(
	store storage.Store,
	cat *catalog.Catalog,
	driver *chaos.Driver,
	recorder audit.Recorder,
	clock clock.Clock,
	random random.Random,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		store:   store,
		catalog: cat,
		chaos:   driver,
		audit:   recorder,
		clock:   clock,
		random:  random,
		logger:  logger.With(slog.String("component", "session")),
		cfg:     cfg.withDefaults(),
	}
}

// Config returns the effective configuration
func (s *Service) Config() Config {
	return s.cfg
}

// Timer is the derived countdown for a record at a moment
type Timer struct {
	State     model.SessionState
	Remaining time.Duration
	Expired   bool
}

// Tick derives the session state from the record's store-assigned start time.
// It is pure: every client computes the same answer from its own clock.
func (s *Service) Tick(now time.Time, rec *model.PlayerRecord) Timer {
	if rec == nil || rec.ActiveGame == nil {
		return Timer{State: model.StateIdle}
	}
	remaining := rec.Remaining(now, s.cfg.MissionDuration)
	return Timer{
		State:     rec.State(now, s.cfg.MissionDuration),
		Remaining: remaining,
		Expired:   remaining <= 0,
	}
}

// stale reports whether the active mission expired long enough ago to be replaced
func (s *Service) stale(rec *model.PlayerRecord, now time.Time) bool {
	return rec.ActiveGame != nil && rec.Remaining(now, s.cfg.MissionDuration) <= -s.cfg.StaleGrace
}

// Actor resolves the caller's role from their stored record
func (s *Service) Actor(ctx context.Context, id model.PlayerID) (model.Actor, error) {
	rec, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return model.Actor{}, err
	}
	return model.Actor{ID: rec.ID, Role: rec.Role}, nil
}

// EnsurePlayer creates the record with onboarding defaults if it does not exist
func (s *Service) EnsurePlayer(ctx context.Context, id model.PlayerID, email, displayName string, role model.Role) (*model.PlayerRecord, bool, error) {
	if role == "" {
		role = model.RoleParticipant
	}
	created, err := s.store.CreatePlayer(ctx, &model.PlayerRecord{
		ID:             id,
		Email:          email,
		DisplayName:    displayName,
		Role:           role,
		Tokens:         s.cfg.OnboardingTokens,
		CompletedGames: []model.MissionID{},
	})
	if err != nil {
		return nil, false, s.fail("ensure player", id, err)
	}
	if created {
		s.logger.Info("player created",
			slog.String("player_id", string(id)),
			slog.String("role", string(role)),
		)
	}

	rec, err := s.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, false, s.fail("ensure player", id, err)
	}
	return rec, created, nil
}

// GetPlayer returns a record the actor may see
func (s *Service) GetPlayer(ctx context.Context, actor model.Actor, id model.PlayerID) (*model.PlayerRecord, error) {
	if !actor.MayActOn(id, model.CapViewRoster) {
		return nil, model.ErrForbidden
	}
	return s.store.GetPlayer(ctx, id)
}

// StartMission assigns a specific mission
func (s *Service) StartMission(ctx context.Context, actor model.Actor, id model.PlayerID, category model.Category, level int) (*model.PlayerRecord, error) {
	if !actor.MayActOn(id, model.CapVerify) {
		return nil, model.ErrForbidden
	}
	category, err := model.ParseCategory(string(category))
	if err != nil {
		return nil, err
	}
	if level < s.cfg.MinLevel || level > s.cfg.MaxLevel {
		return nil, fmt.Errorf("%w: %d", model.ErrInvalidLevel, level)
	}
	gameID := model.NewMissionID(category, level)
	if _, ok := s.catalog.Lookup(gameID); !ok {
		return nil, fmt.Errorf("%w: %s", model.ErrUnknownMission, gameID)
	}

	assignment := model.AssignmentID(uuid.NewString())
	var replaced *model.ActiveGame

	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		replaced = nil
		if cur.ActiveGame != nil {
			if !s.stale(cur, now) {
				return nil, model.ErrMissionActive
			}
			replaced = cur.ActiveGame
		}
		if cur.CategoryLocked(category) {
			return nil, model.ErrCategoryLocked
		}
		return &storage.Patch{
			SetActiveGame: &model.ActiveGame{
				AssignmentID: assignment,
				Category:     category,
				Level:        level,
				GameID:       gameID,
			},
			LastPlayedCategory:   storage.Ptr(category),
			UnlockedSameCategory: storage.Ptr(false),
		}, nil
	})
	if err != nil {
		return nil, s.fail("start mission", id, err)
	}

	if replaced != nil {
		s.logger.Warn("stale mission replaced",
			slog.String("player_id", string(id)),
			slog.String("assignment_id", string(replaced.AssignmentID)),
			slog.String("game_id", string(replaced.GameID)),
		)
	}
	s.logger.Info("mission started",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("assignment_id", string(assignment)),
		slog.String("game_id", string(gameID)),
	)
	return rec, nil
}

// RollMission assigns a random level in the category
func (s *Service) RollMission(ctx context.Context, actor model.Actor, id model.PlayerID, category model.Category) (*model.PlayerRecord, error) {
	level := random.Between(s.random, s.cfg.MinLevel, s.cfg.MaxLevel)
	return s.StartMission(ctx, actor, id, category, level)
}

// OutcomeInput selects the catalog outcome for a completion
type OutcomeInput struct {
	Label string
	Wager int64
}

// Resolution describes an applied completion
type Resolution struct {
	Player       *model.PlayerRecord
	AssignmentID model.AssignmentID
	Mission      model.MissionID
	Outcome      string
	ScoreDelta   int64
	TokensDelta  int64
}

// CompleteMission is staff verification of the active mission. It applies
// only while the given assignment is still active, so a mission is credited at
// most once no matter how many actors race to resolve it. An empty
// assignment resolves whatever mission is active.
func (s *Service) CompleteMission(ctx context.Context, actor model.Actor, id model.PlayerID, assignment model.AssignmentID, in OutcomeInput) (*Resolution, error) {
	if !actor.Can(model.CapVerify) {
		return nil, model.ErrForbidden
	}
	res, err := s.resolve(ctx, id, assignment, false, in)
	if err != nil {
		return nil, s.fail("complete mission", id, err)
	}

	s.logger.Info("mission completed",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("assignment_id", string(res.AssignmentID)),
		slog.String("game_id", string(res.Mission)),
		slog.String("outcome", res.Outcome),
		slog.Int64("score_delta", res.ScoreDelta),
		slog.Int64("tokens_delta", res.TokensDelta),
	)
	s.record(ctx, actor, id, model.AuditCompleteMission, "", res.ScoreDelta,
		fmt.Sprintf("%s %s score%+d tokens%+d", res.Mission, res.Outcome, res.ScoreDelta, res.TokensDelta), "")
	return res, nil
}

// ExpireMission resolves a mission whose timer has run out with the expiry
// outcome. It shares the completion guard, so expiry and staff verification
// may race and exactly one of them wins.
func (s *Service) ExpireMission(ctx context.Context, actor model.Actor, id model.PlayerID, assignment model.AssignmentID) (*Resolution, error) {
	if !actor.MayActOn(id, model.CapVerify) {
		return nil, model.ErrForbidden
	}
	res, err := s.resolve(ctx, id, assignment, true, OutcomeInput{Label: s.cfg.ExpiryOutcome})
	if err != nil {
		return nil, s.fail("expire mission", id, err)
	}

	s.logger.Info("mission expired",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("assignment_id", string(res.AssignmentID)),
		slog.String("game_id", string(res.Mission)),
	)
	return res, nil
}

func (s *Service) resolve(ctx context.Context, id model.PlayerID, assignment model.AssignmentID, requireExpired bool, in OutcomeInput) (*Resolution, error) {
	var res Resolution
	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		ag, err := guard(cur, assignment)
		if err != nil {
			return nil, err
		}
		if requireExpired && !s.Tick(now, cur).Expired {
			return nil, model.ErrMissionNotExpired
		}

		delta, err := s.catalog.Resolve(ag.GameID, in.Label, in.Wager)
		if err != nil {
			return nil, err
		}
		res = Resolution{
			AssignmentID: ag.AssignmentID,
			Mission:      ag.GameID,
			Outcome:      delta.Label,
			ScoreDelta:   delta.Score,
			TokensDelta:  delta.Tokens,
		}
		return &storage.Patch{
			ClearActiveGame: true,
			AppendCompleted: []model.MissionID{ag.GameID},
			ScoreDelta:      delta.Score,
			TokensDelta:     delta.Tokens,
		}, nil
	})
	if err != nil {
		return nil, err
	}
	res.Player = rec
	return &res, nil
}

// guard returns the active game if it matches the expected assignment
func guard(cur *model.PlayerRecord, assignment model.AssignmentID) (*model.ActiveGame, error) {
	if cur.ActiveGame == nil {
		if assignment != "" {
			return nil, model.ErrMissionAlreadyResolved
		}
		return nil, model.ErrNoActiveMission
	}
	if assignment != "" && cur.ActiveGame.AssignmentID != assignment {
		return nil, model.ErrMissionAlreadyResolved
	}
	return cur.ActiveGame, nil
}

// CancelMission clears the active mission without credit or history.
// Players forfeit their own mission; staff revoke anyone's.
func (s *Service) CancelMission(ctx context.Context, actor model.Actor, id model.PlayerID, assignment model.AssignmentID) (*model.PlayerRecord, error) {
	if !actor.MayActOn(id, model.CapVerify) {
		return nil, model.ErrForbidden
	}

	var cancelled *model.ActiveGame
	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		ag, err := guard(cur, assignment)
		if err != nil {
			return nil, err
		}
		cancelled = ag
		return &storage.Patch{ClearActiveGame: true}, nil
	})
	if err != nil {
		return nil, s.fail("cancel mission", id, err)
	}

	s.logger.Info("mission cancelled",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("game_id", string(cancelled.GameID)),
	)
	if actor.ID != id {
		s.record(ctx, actor, id, model.AuditCancelMission, "", 0, string(cancelled.GameID), "")
	}
	return rec, nil
}

// SkipRule buys immunity from the current chaos rule
func (s *Service) SkipRule(ctx context.Context, actor model.Actor, id model.PlayerID) (*model.PlayerRecord, error) {
	if !actor.MayActOn(id, model.CapVerify) {
		return nil, model.ErrForbidden
	}
	cost := s.cfg.SkipRule

	var cycle chaos.Cycle
	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		cycle = s.chaos.At(now)
		if cur.IsImmune(cycle.Index) {
			return nil, model.ErrAlreadyImmune
		}
		if cur.Balance(cost.Resource) < cost.Amount {
			return nil, model.ErrInsufficientBalance
		}
		patch := &storage.Patch{ImmuneCycle: storage.Ptr(cycle.Index)}
		if cost.Resource == model.FieldScore {
			patch.ScoreDelta = -cost.Amount
		} else {
			patch.TokensDelta = -cost.Amount
		}
		return patch, nil
	})
	if err != nil {
		return nil, s.fail("skip rule", id, err)
	}

	s.logger.Info("chaos rule skipped",
		slog.String("player_id", string(id)),
		slog.Int64("cycle", cycle.Index),
		slog.String("rule", cycle.Rule),
		slog.String("resource", string(cost.Resource)),
		slog.Int64("cost", cost.Amount),
	)
	return rec, nil
}

// UnlockCategory pays to lift the alternation lock for the next start
func (s *Service) UnlockCategory(ctx context.Context, actor model.Actor, id model.PlayerID) (*model.PlayerRecord, error) {
	if !actor.MayActOn(id, model.CapVerify) {
		return nil, model.ErrForbidden
	}

	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		if cur.UnlockedSameCategory {
			return nil, model.ErrAlreadyUnlocked
		}
		if cur.Tokens < s.cfg.UnlockCost {
			return nil, model.ErrInsufficientBalance
		}
		return &storage.Patch{
			TokensDelta:          -s.cfg.UnlockCost,
			UnlockedSameCategory: storage.Ptr(true),
		}, nil
	})
	if err != nil {
		return nil, s.fail("unlock category", id, err)
	}

	s.logger.Info("category unlocked",
		slog.String("player_id", string(id)),
		slog.Int64("cost", s.cfg.UnlockCost),
	)
	return rec, nil
}

// AdjustBalance applies an administrative delta with no precondition
func (s *Service) AdjustBalance(ctx context.Context, actor model.Actor, id model.PlayerID, field model.BalanceField, delta int64, reason string) (*model.PlayerRecord, error) {
	if !actor.Can(model.CapAdjustBalance) {
		return nil, model.ErrForbidden
	}
	field, err := model.ParseBalanceField(string(field))
	if err != nil {
		return nil, err
	}

	patch := storage.Patch{}
	if field == model.FieldScore {
		patch.ScoreDelta = delta
	} else {
		patch.TokensDelta = delta
	}
	rec, err := s.store.UpdatePlayer(ctx, id, patch)
	if err != nil {
		return nil, s.fail("adjust balance", id, err)
	}

	s.logger.Info("balance adjusted",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("field", string(field)),
		slog.Int64("delta", delta),
		slog.String("reason", reason),
	)
	s.record(ctx, actor, id, model.AuditAdjustBalance, field, delta, "", reason)
	return rec, nil
}

var roleTransitions = map[model.Role][]model.Role{
	model.RolePendingManager: {model.RoleManager, model.RoleParticipant},
	model.RoleManager:        {model.RoleParticipant},
}

// SetRole approves, rejects or revokes staff access
func (s *Service) SetRole(ctx context.Context, actor model.Actor, id model.PlayerID, role model.Role) (*model.PlayerRecord, error) {
	if !actor.Can(model.CapManageStaff) {
		return nil, model.ErrForbidden
	}
	role, err := model.ParseRole(string(role))
	if err != nil {
		return nil, err
	}

	var from model.Role
	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		from = cur.Role
		for _, to := range roleTransitions[cur.Role] {
			if to == role {
				return &storage.Patch{Role: storage.Ptr(role)}, nil
			}
		}
		return nil, fmt.Errorf("%w: %s to %s", model.ErrInvalidRoleTransition, cur.Role, role)
	})
	if err != nil {
		return nil, s.fail("set role", id, err)
	}

	s.logger.Info("role changed",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("from", string(from)),
		slog.String("to", string(role)),
	)
	s.record(ctx, actor, id, model.AuditSetRole, "", 0, fmt.Sprintf("%s -> %s", from, role), "")
	return rec, nil
}

// ResetPlayer clears the active mission and the alternation lock
func (s *Service) ResetPlayer(ctx context.Context, actor model.Actor, id model.PlayerID, reason string) (*model.PlayerRecord, error) {
	if !actor.Can(model.CapResetPlayer) {
		return nil, model.ErrForbidden
	}

	rec, err := s.store.UpdatePlayer(ctx, id, storage.Patch{
		ClearActiveGame:      true,
		LastPlayedCategory:   storage.Ptr(model.Category("")),
		UnlockedSameCategory: storage.Ptr(false),
	})
	if err != nil {
		return nil, s.fail("reset player", id, err)
	}

	s.logger.Info("player reset",
		slog.String("player_id", string(id)),
		slog.String("actor_id", string(actor.ID)),
		slog.String("reason", reason),
	)
	s.record(ctx, actor, id, model.AuditResetPlayer, "", 0, "", reason)
	return rec, nil
}

// CreditSurvival awards +1 score for outlasting a chaos cycle. With dedupe on,
// a cycle is credited at most once per player however many clients observe it.
func (s *Service) CreditSurvival(ctx context.Context, id model.PlayerID, cycle int64) (*model.PlayerRecord, bool, error) {
	if !s.cfg.DedupeSurvivalCredit {
		rec, err := s.store.UpdatePlayer(ctx, id, storage.Patch{ScoreDelta: 1})
		if err != nil {
			return nil, false, s.fail("credit survival", id, err)
		}
		return rec, true, nil
	}

	credited := false
	rec, err := s.store.UpdatePlayerFunc(ctx, id, func(cur *model.PlayerRecord, now time.Time) (*storage.Patch, error) {
		credited = false
		if cur.LastCreditedCycle != nil && *cur.LastCreditedCycle >= cycle {
			return nil, nil
		}
		credited = true
		return &storage.Patch{ScoreDelta: 1, LastCreditedCycle: storage.Ptr(cycle)}, nil
	})
	if err != nil {
		return nil, false, s.fail("credit survival", id, err)
	}
	return rec, credited, nil
}

// Roster lists records for staff
func (s *Service) Roster(ctx context.Context, actor model.Actor, filter storage.Filter) ([]*model.PlayerRecord, error) {
	if !actor.Can(model.CapViewRoster) {
		return nil, model.ErrForbidden
	}
	return s.store.ListPlayers(ctx, filter, 0)
}

// AuditLog returns staff actions recorded against a player, newest first
func (s *Service) AuditLog(ctx context.Context, actor model.Actor, id model.PlayerID, limit int) ([]model.AuditEntry, error) {
	if !actor.Can(model.CapViewRoster) {
		return nil, model.ErrForbidden
	}
	if s.audit == nil {
		return []model.AuditEntry{}, nil
	}
	return s.audit.ListForTarget(ctx, id, limit)
}

// ExpireStale resolves every mission whose timer ran out with no client
// around to observe it. Returns how many missions were expired.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	records, err := s.store.ListPlayers(ctx, storage.Filter{}, 0)
	if err != nil {
		return 0, err
	}
	now, err := s.store.Now(ctx)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, rec := range records {
		if !s.Tick(now, rec).Expired {
			continue
		}
		_, err := s.ExpireMission(ctx, model.SystemActor(), rec.ID, rec.ActiveGame.AssignmentID)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, model.ErrMissionAlreadyResolved), errors.Is(err, model.ErrMissionNotExpired):
		default:
			return expired, err
		}
	}
	return expired, nil
}

// fail classifies an error: rejections and lookups pass through, anything
// else is a persistence failure
func (s *Service) fail(op string, id model.PlayerID, err error) error {
	if model.IsRejection(err) || errors.Is(err, model.ErrPlayerNotFound) {
		s.logger.Debug(op+" rejected",
			slog.String("player_id", string(id)),
			slog.String("error", err.Error()),
		)
		return err
	}
	s.logger.Error(op+" failed",
		slog.String("player_id", string(id)),
		slog.String("error", err.Error()),
	)
	return model.PersistError(err)
}

// record writes an audit entry. Failures are logged; the mutation already committed.
func (s *Service) record(ctx context.Context, actor model.Actor, target model.PlayerID, action model.AuditAction, field model.BalanceField, delta int64, detail, reason string) {
	if s.audit == nil {
		return
	}
	entry := model.AuditEntry{
		ID:        uuid.NewString(),
		ActorID:   actor.ID,
		TargetID:  target,
		Action:    action,
		Field:     field,
		Delta:     delta,
		Detail:    detail,
		Reason:    reason,
		CreatedAt: s.clock.Now(),
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logger.Warn("failed to record audit entry",
			slog.String("action", string(action)),
			slog.String("target_id", string(target)),
			slog.String("error", err.Error()),
		)
	}
}
