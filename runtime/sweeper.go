package runtime

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/aschepis/recall/state"
)

// DefaultSweepSchedule is how often expired conversation states are removed.
const DefaultSweepSchedule = "@every 30m"

// Sweeper periodically deletes expired conversation states. Failures are
// logged and retried on the next scheduled pass; they never affect live
// message handling.
type Sweeper struct {
	states   *state.Store
	cron     *cron.Cron
	schedule string
	logger   zerolog.Logger
}

// NewSweeper creates a sweeper. schedule accepts cron expressions and
// @every shorthand; empty means DefaultSweepSchedule.
func NewSweeper(states *state.Store, schedule string, logger zerolog.Logger) *Sweeper {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{
		states:   states,
		cron:     cron.New(),
		schedule: schedule,
		logger:   logger.With().Str("component", "sweeper").Logger(),
	}
}

// Start registers the sweep job and launches the scheduler. The first sweep
// also runs immediately so a long-stopped process catches up on restart.
func (s *Sweeper) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return fmt.Errorf("register cleanup schedule %q: %w", s.schedule, err)
	}
	s.cron.Start()
	go s.sweep()
	s.logger.Info().Str("schedule", s.schedule).Msg("state TTL sweeper started")
	return nil
}

// Stop halts the scheduler, waiting for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("state TTL sweeper stopped")
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.states.CleanupExpired(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("state cleanup failed, will retry on next pass")
		return
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("expired conversation states swept")
	}
}
