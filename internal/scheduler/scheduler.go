package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Config holds background job intervals
type Config struct {
	// SweepExpiredMissions enables server-side expiry of missions no client observed
	SweepExpiredMissions bool
	SweepInterval        time.Duration

	SessionCleanupInterval time.Duration
	HubCleanupInterval     time.Duration
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() Config {
	return Config{
		SweepExpiredMissions:   false,
		SweepInterval:          30 * time.Second,
		SessionCleanupInterval: 10 * time.Minute,
		HubCleanupInterval:     time.Minute,
	}
}

// Scheduler runs periodic maintenance jobs
type Scheduler struct {
	sched  gocron.Scheduler
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped scheduler
func New(logger *slog.Logger) (*Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		sched:  sched,
		logger: logger.With(slog.String("component", "scheduler")),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Every registers fn to run at a fixed interval. A run that is still going
// when the next one is due is skipped rather than overlapped.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context) error) error {
	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()
			if err := fn(s.ctx); err != nil {
				s.logger.Error("job failed",
					slog.String("job", name),
					slog.String("error", err.Error()),
				)
				return
			}
			s.logger.Debug("job completed",
				slog.String("job", name),
				slog.Duration("duration", time.Since(start)),
			)
		}),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}
	s.logger.Info("job registered",
		slog.String("job", name),
		slog.Duration("interval", interval),
	)
	return nil
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown stops all jobs and waits for running ones to return
func (s *Scheduler) Shutdown() error {
	s.cancel()
	return s.sched.Shutdown()
}
