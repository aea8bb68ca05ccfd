package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"ScreenRadar/pkg/engine"
	"ScreenRadar/pkg/health"
)

const DefaultSchedule = "@every 5m"

// Checker runs one monitoring pass over all active watches
type Checker interface {
	CheckAll(ctx context.Context) (engine.Summary, error)
}

// Scheduler cron driven periodic re-screen
type Scheduler struct {
	cron     *cron.Cron
	checker  Checker
	health   *health.Registry
	schedule string
	timeout  time.Duration
	log      zerolog.Logger
	guard    cron.JobWrapper

	mu      sync.Mutex
	running bool
}

func NewScheduler(checker Checker, registry *health.Registry, schedule string, log zerolog.Logger) *Scheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	log = log.With().Str("component", "scheduler").Logger()
	recoverer := cron.Recover(cronLogger{log})
	return &Scheduler{
		cron:     cron.New(cron.WithChain(recoverer)),
		guard:    recoverer,
		checker:  checker,
		health:   registry,
		schedule: schedule,
		timeout:  10 * time.Minute,
		log:      log,
	}
}

// cronLogger routes cron's own messages, recovered job panics included,
// through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.checkWatchlists); err != nil {
		return fmt.Errorf("schedule watchlist check %q: %w", s.schedule, err)
	}
	if s.health != nil {
		if _, err := s.cron.AddFunc("@every 5m", s.monitorDataHealth); err != nil {
			return fmt.Errorf("schedule health check: %w", err)
		}
	}
	s.cron.Start()
	s.log.Info().Str("schedule", s.schedule).Msg("scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

// RunOnce runs one check pass immediately. A panicking pass is logged like
// a scheduled one.
func (s *Scheduler) RunOnce() {
	s.guard(cron.FuncJob(s.checkWatchlists)).Run()
}

// checkWatchlists skips a tick while the previous pass is still running.
func (s *Scheduler) checkWatchlists() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("previous watchlist check still running, tick skipped")
		return
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	sum, err := s.checker.CheckAll(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("watchlist check failed")
		return
	}
	s.log.Info().
		Int("checked", sum.Checked).
		Int("failed", sum.Failed).
		Int("alerted", sum.Alerted).
		Dur("took", time.Since(start)).
		Msg("watchlist check finished")
}

func (s *Scheduler) monitorDataHealth() {
	s.health.CheckAll(context.Background(), 10*time.Second)
}
