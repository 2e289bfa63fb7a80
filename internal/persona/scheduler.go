package persona

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

type Sweeper interface {
	RunPersonaUpdate(ctx context.Context) (SweepReport, error)
}

// Scheduler runs a sweep at start-up and then every interval. Sweeps never
// overlap: a tick or Trigger that lands during a sweep is folded into one
// follow-up run.
type Scheduler struct {
	sweeper  Sweeper
	interval time.Duration
	trigger  chan struct{}
	log      *slog.Logger
}

func NewScheduler(sweeper Sweeper, interval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if interval <= 0 {
		interval = 6 * time.Hour
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      log.With("component", "scheduler"),
	}
}

// Trigger asks for a sweep as soon as the current one (if any) finishes.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info("persona scheduler started", "interval", s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			s.log.Info("persona scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
		case <-s.trigger:
		}
		s.runOnce(ctx)
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("persona sweep panicked", "err", fmt.Sprint(r))
		}
	}()
	if _, err := s.sweeper.RunPersonaUpdate(ctx); err != nil {
		s.log.Error("persona sweep failed", "err", err)
	}
}
