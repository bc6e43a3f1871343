package session

import (
	"context"
	"errors"
	"time"

	"github.com/mcoot/chaosroom/internal/model"
)

const watchTick = 5 * time.Millisecond

func (s *ServiceSuite) watch(opts WatchOptions) *Watcher {
	if opts.TickInterval == 0 {
		opts.TickInterval = watchTick
	}
	w, err := s.service.Watch(s.ctx, s.player.ID, opts)
	s.Require().NoError(err)
	s.T().Cleanup(w.Close)
	return w
}

func (s *ServiceSuite) waitView(w *Watcher, cond func(View) bool) View {
	deadline := time.After(2 * time.Second)
	for {
		select {
		case v, ok := <-w.Views():
			s.Require().True(ok, "watcher closed")
			if cond(v) {
				return v
			}
		case <-deadline:
			s.FailNow("condition not reached", "last view: %+v", w.Current())
		}
	}
}

func (s *ServiceSuite) TestWatcherDerivesViewFromStore() {
	w := s.watch(WatchOptions{})
	s.waitView(w, func(v View) bool { return v.Player != nil && v.State == model.StateIdle })

	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 3)
	s.Require().NoError(err)

	v := s.waitView(w, func(v View) bool { return v.State == model.StateInMission })
	s.Equal(10*time.Minute, v.Remaining)
	s.Require().NotNil(v.Mission)
	s.Equal("THE SILENT VOTE", v.Mission.Title)

	s.clock.Advance(4 * time.Minute)
	v = s.waitView(w, func(v View) bool { return v.Remaining == 6*time.Minute })
	s.Equal(model.StateInMission, v.State)
}

func (s *ServiceSuite) TestWatcherExpiresMissionOnce() {
	started, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.Require().NoError(err)

	w1 := s.watch(WatchOptions{})
	w2 := s.watch(WatchOptions{})
	s.waitView(w1, func(v View) bool { return v.State == model.StateInMission })
	s.waitView(w2, func(v View) bool { return v.State == model.StateInMission })

	s.clock.Advance(601 * time.Second)

	s.waitView(w1, func(v View) bool { return v.State == model.StateIdle && v.Player.ActiveGame == nil })
	s.waitView(w2, func(v View) bool { return v.State == model.StateIdle && v.Player.ActiveGame == nil })

	rec := s.get(s.player.ID)
	s.Equal([]model.MissionID{started.ActiveGame.GameID}, rec.CompletedGames)
}

func (s *ServiceSuite) TestPassiveWatcherDoesNotExpire() {
	_, err := s.service.StartMission(s.ctx, s.player, s.player.ID, model.CategoryHeart, 1)
	s.Require().NoError(err)

	w := s.watch(WatchOptions{Passive: true})
	s.clock.Advance(601 * time.Second)

	v := s.waitView(w, func(v View) bool { return v.State == model.StateAwaitingVerification })
	s.Equal(time.Duration(0), v.Remaining)
	time.Sleep(5 * watchTick)
	s.NotNil(s.get(s.player.ID).ActiveGame)
}

func (s *ServiceSuite) TestWatcherCreditsSurvivalOnCycleBoundary() {
	w := s.watch(WatchOptions{})
	s.waitView(w, func(v View) bool { return v.Player != nil })

	s.clock.Advance(s.driver.Duration())

	v := s.waitView(w, func(v View) bool { return v.Player != nil && v.Player.Score == 1 })
	s.Equal(s.driver.At(s.clock.Now()).Index, v.Chaos.Index)
}

func (s *ServiceSuite) TestWatcherShowsImmunity() {
	w := s.watch(WatchOptions{Passive: true})

	_, err := s.service.SkipRule(s.ctx, s.player, s.player.ID)
	s.Require().NoError(err)

	s.waitView(w, func(v View) bool { return v.Immune })
}

func (s *ServiceSuite) TestWatcherDoReconcilesPending() {
	w := s.watch(WatchOptions{Passive: true})
	s.waitView(w, func(v View) bool { return v.Player != nil })

	release := make(chan struct{})
	errc := make(chan error, 1)
	go func() {
		errc <- w.Do(s.ctx, "unlock", func(ctx context.Context) error {
			<-release
			_, err := s.service.UnlockCategory(ctx, s.player, s.player.ID)
			return err
		})
	}()

	v := s.waitView(w, func(v View) bool { return v.Pending == "unlock" })
	s.False(v.Player.UnlockedSameCategory)

	close(release)
	s.Require().NoError(<-errc)

	v = s.waitView(w, func(v View) bool { return v.Pending == "" && v.Player.UnlockedSameCategory })
	s.Equal(int64(98), v.Player.Tokens)
	s.NoError(v.Err)
}

func (s *ServiceSuite) TestWatcherDoReportsFailure() {
	w := s.watch(WatchOptions{Passive: true})
	s.waitView(w, func(v View) bool { return v.Player != nil })
	s.setTokens(s.player.ID, 0)

	err := w.Do(s.ctx, "unlock", func(ctx context.Context) error {
		_, err := s.service.UnlockCategory(ctx, s.player, s.player.ID)
		return err
	})
	s.ErrorIs(err, model.ErrInsufficientBalance)

	v := s.waitView(w, func(v View) bool { return v.Err != nil })
	s.True(errors.Is(v.Err, model.ErrInsufficientBalance))
	s.Empty(v.Pending)
	s.False(v.Player.UnlockedSameCategory)
}

func (s *ServiceSuite) TestWatcherStopsWithContext() {
	ctx, cancel := context.WithCancel(s.ctx)
	w, err := s.service.Watch(ctx, s.player.ID, WatchOptions{TickInterval: watchTick})
	s.Require().NoError(err)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		s.Fail("watcher did not stop")
	}
	w.Close()
}

func (s *ServiceSuite) TestWatchUnknownPlayer() {
	_, err := s.service.Watch(s.ctx, "ghost", WatchOptions{})
	s.ErrorIs(err, model.ErrPlayerNotFound)
}
