package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const sweepTimeout = time.Minute

// Sweeper clears refresh tokens still held by deactivated users.
type Sweeper interface {
	ClearRefreshTokensForInactive(ctx context.Context) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	sweeper Sweeper
	spec    string
	log     zerolog.Logger
}

// NewScheduler uses six-field cron specs (seconds first).
func NewScheduler(sweeper Sweeper, spec string, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		sweeper: sweeper,
		spec:    spec,
		log:     log,
	}
}

func (s *Scheduler) Start() error {
	if s.sweeper == nil || s.spec == "" {
		return nil
	}

	if _, err := s.cron.AddFunc(s.spec, s.sweepInactiveSessions); err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("session sweep scheduled")
	return nil
}

// Stop halts scheduling and returns a context that is done once running jobs
// have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweepInactiveSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	n, err := s.sweeper.ClearRefreshTokensForInactive(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("inactive session sweep failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("users", n).Msg("revoked sessions of inactive users")
	}
}
