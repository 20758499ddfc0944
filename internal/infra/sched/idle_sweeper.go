package sched

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// IdleEnder is the slice of the session use case the sweeper drives.
type IdleEnder interface {
	EndIdle(ctx context.Context, idle time.Duration) int
}

// IdleSweeper ends sessions nobody has touched within the idle timeout.
type IdleSweeper struct {
	cron     *cron.Cron
	schedule string
	idle     time.Duration
	target   IdleEnder
	log      *zerolog.Logger
	entryID  cron.EntryID
}

func NewIdleSweeper(schedule string, idle time.Duration, target IdleEnder, logger *zerolog.Logger) (*IdleSweeper, error) {
	if idle <= 0 {
		return nil, fmt.Errorf("idle timeout must be positive")
	}
	compLog := logger.With().Str("component", "IdleSweeper").Logger()
	s := &IdleSweeper{
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		schedule: schedule,
		idle:     idle,
		target:   target,
		log:      &compLog,
	}
	return s, nil
}

// Run schedules the sweep and blocks until ctx is cancelled.
func (s *IdleSweeper) Run(ctx context.Context) error {
	id, err := s.cron.AddFunc(s.schedule, func() { s.Sweep(ctx) })
	if err != nil {
		return fmt.Errorf("schedule idle sweep %q: %w", s.schedule, err)
	}
	s.entryID = id
	s.log.Info().Str("schedule", s.schedule).Dur("idle", s.idle).Msg("Starting idle sweeper")
	s.cron.Start()

	<-ctx.Done()
	stopped := s.cron.Stop()
	<-stopped.Done()
	s.log.Info().Msg("Stopping idle sweeper")
	return ctx.Err()
}

// Sweep runs one pass and returns how many sessions were ended.
func (s *IdleSweeper) Sweep(ctx context.Context) int {
	n := s.target.EndIdle(ctx, s.idle)
	if n > 0 {
		s.log.Info().Int("count", n).Msg("idle sessions ended")
	}
	return n
}
