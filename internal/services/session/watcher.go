package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mcoot/chaosroom/internal/catalog"
	"github.com/mcoot/chaosroom/internal/model"
	"github.com/mcoot/chaosroom/internal/services/chaos"
	"github.com/mcoot/chaosroom/internal/storage"
)

// WatchOptions configures a client session
type WatchOptions struct {
	// TickInterval overrides the countdown refresh period
	TickInterval time.Duration
	// Passive watchers only observe: no automatic expiry and no survival credit
	Passive bool
}

// View is everything a client displays, derived from the latest confirmed record
type View struct {
	Player    *model.PlayerRecord `json:"player"`
	State     model.SessionState  `json:"state"`
	Remaining time.Duration       `json:"remaining"`
	Mission   *catalog.Mission    `json:"mission,omitempty"`
	Chaos     chaos.Cycle         `json:"chaos"`
	Immune    bool                `json:"immune"`
	// Pending names an action sent to the store and not yet confirmed
	Pending string `json:"pending,omitempty"`
	// Err is the failure of the last action, cleared by the next success
	Err error     `json:"-"`
	At  time.Time `json:"at"`
}

// Watcher is one client's session: it owns a record subscription and a
// countdown ticker, and runs a single loop that recomputes the view on every
// push and tick. Closing it (or cancelling its context) releases both.
type Watcher struct {
	svc      *Service
	playerID model.PlayerID
	opts     WatchOptions
	logger   *slog.Logger

	sub   *storage.Subscription[*model.PlayerRecord]
	views *storage.Subscription[View]
	kick  chan struct{}

	mu          sync.Mutex
	latest      *model.PlayerRecord
	pending     string
	pendingDone bool
	lastErr     error
	fired       map[model.AssignmentID]bool
	lastCycle   int64

	cancel context.CancelFunc
	done   chan struct{}
}

// Watch starts a client session for the player
func (s *Service) Watch(ctx context.Context, id model.PlayerID, opts WatchOptions) (*Watcher, error) {
	if opts.TickInterval <= 0 {
		opts.TickInterval = s.cfg.TickInterval
	}

	ctx, cancel := context.WithCancel(ctx)
	sub, err := s.store.SubscribePlayer(ctx, id)
	if err != nil {
		cancel()
		return nil, err
	}

	w := &Watcher{
		svc:       s,
		playerID:  id,
		opts:      opts,
		logger:    s.logger.With(slog.String("player_id", string(id))),
		sub:       sub,
		views:     storage.NewSubscription[View](nil),
		kick:      make(chan struct{}, 1),
		fired:     make(map[model.AssignmentID]bool),
		lastCycle: s.chaos.At(s.clock.Now()).Index,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Views streams the latest view; closed when the watcher stops
func (w *Watcher) Views() <-chan View {
	return w.views.C
}

// Current returns the view at this moment
func (w *Watcher) Current() View {
	return w.view(w.svc.clock.Now())
}

// Done is closed once the loop has exited
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

// Close stops the session and waits for the loop to exit
func (w *Watcher) Close() {
	w.cancel()
	<-w.done
}

// Do runs a mutation on behalf of the client. The view shows it as pending
// until the store confirms a new record, or until it fails, in which case the
// error is reported on the view and nothing else changes.
func (w *Watcher) Do(ctx context.Context, label string, fn func(ctx context.Context) error) error {
	w.mu.Lock()
	w.pending = label
	w.pendingDone = false
	w.mu.Unlock()
	w.poke()

	err := fn(ctx)

	w.mu.Lock()
	if err != nil {
		w.pending = ""
		w.lastErr = err
	} else {
		w.pendingDone = true
		w.lastErr = nil
	}
	w.mu.Unlock()
	w.poke()
	return err
}

func (w *Watcher) poke() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.opts.TickInterval)
	defer func() {
		ticker.Stop()
		w.sub.Close()
		w.views.Close()
		close(w.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-w.sub.C:
			if !ok {
				return
			}
			w.mu.Lock()
			w.latest = rec
			if w.pendingDone {
				w.pending = ""
				w.pendingDone = false
			}
			w.mu.Unlock()
			w.checkExpiry(ctx)
		case <-ticker.C:
			w.mu.Lock()
			// A successful action that changed nothing never produces a push
			if w.pendingDone {
				w.pending = ""
				w.pendingDone = false
			}
			w.mu.Unlock()
			w.checkCycle(ctx)
			w.checkExpiry(ctx)
		case <-w.kick:
		}
		w.views.Publish(w.view(w.svc.clock.Now()))
	}
}

// checkExpiry resolves the active mission once its timer elapses, once per assignment
func (w *Watcher) checkExpiry(ctx context.Context) {
	if w.opts.Passive {
		return
	}
	now := w.svc.clock.Now()

	w.mu.Lock()
	rec := w.latest
	if rec == nil || !w.svc.Tick(now, rec).Expired || w.fired[rec.ActiveGame.AssignmentID] {
		w.mu.Unlock()
		return
	}
	assignment := rec.ActiveGame.AssignmentID
	w.fired[assignment] = true
	w.mu.Unlock()

	actor := model.Actor{ID: rec.ID, Role: rec.Role}
	_, err := w.svc.ExpireMission(ctx, actor, w.playerID, assignment)
	if err == nil || errors.Is(err, model.ErrMissionAlreadyResolved) {
		return
	}
	if errors.Is(err, model.ErrMissionNotExpired) {
		// Local clock ran ahead of the store clock; try again next tick
		w.mu.Lock()
		delete(w.fired, assignment)
		w.mu.Unlock()
		return
	}
	w.logger.Warn("failed to expire mission",
		slog.String("assignment_id", string(assignment)),
		slog.String("error", err.Error()),
	)
	w.mu.Lock()
	w.lastErr = err
	delete(w.fired, assignment)
	w.mu.Unlock()
}

// checkCycle credits survival when this client sees the chaos cycle advance
func (w *Watcher) checkCycle(ctx context.Context) {
	cycle := w.svc.chaos.At(w.svc.clock.Now()).Index

	w.mu.Lock()
	advanced := cycle > w.lastCycle
	w.lastCycle = cycle
	w.mu.Unlock()

	if !advanced || w.opts.Passive || !w.svc.cfg.SurvivalCredit {
		return
	}
	if _, _, err := w.svc.CreditSurvival(ctx, w.playerID, cycle); err != nil {
		w.logger.Warn("failed to credit survival",
			slog.Int64("cycle", cycle),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Watcher) view(now time.Time) View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := w.svc.project(w.latest, now)
	v.Pending = w.pending
	v.Err = w.lastErr
	return v
}

// project derives the view of a record at now
func (s *Service) project(rec *model.PlayerRecord, now time.Time) View {
	cycle := s.chaos.At(now)
	v := View{
		State: model.StateIdle,
		Chaos: cycle,
		At:    now,
	}
	if rec == nil {
		return v
	}

	t := s.Tick(now, rec)
	v.Player = rec.Clone()
	v.State = t.State
	v.Immune = rec.IsImmune(cycle.Index)
	if t.Remaining > 0 {
		v.Remaining = t.Remaining
	}
	if ag := rec.ActiveGame; ag != nil {
		if m, ok := s.catalog.Lookup(ag.GameID); ok {
			v.Mission = &m
		}
	}
	return v
}

// Snapshot returns the view of a record the actor may see, at this moment
func (s *Service) Snapshot(ctx context.Context, actor model.Actor, id model.PlayerID) (View, error) {
	rec, err := s.GetPlayer(ctx, actor, id)
	if err != nil {
		return View{}, err
	}
	return s.project(rec, s.clock.Now()), nil
}
