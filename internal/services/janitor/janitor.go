// Package janitor runs periodic storage maintenance on a cron
// schedule: clears elapsed channel pauses, prunes old delivery log
// rows and refreshes the query planner statistics.
package janitor

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"remindbot/internal/storage"
)

type Config struct {
	Schedule  string        // cron spec; empty means hourly
	KeepLogs  time.Duration // delivery log retention; 0 means 30 days
	RunOnBoot bool          // sweep once immediately on Start
}

func (c Config) withDefaults() Config {
	if c.Schedule == "" {
		c.Schedule = "@hourly"
	}
	if c.KeepLogs <= 0 {
		c.KeepLogs = 30 * 24 * time.Hour
	}
	return c
}

type Service struct {
	mu sync.Mutex

	log   zerolog.Logger
	store *storage.Store
	cfg   Config
	c     *cron.Cron
}

func New(cfg Config, store *storage.Store, log zerolog.Logger) *Service {
	return &Service{
		log:   log,
		store: store,
		cfg:   cfg.withDefaults(),
	}
}

func (s *Service) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	restart := s.c != nil && cfg.Schedule != s.cfg.Schedule
	s.cfg = cfg
	if restart {
		s.stopLocked()
		s.startLocked()
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	if err := s.startLocked(); err != nil {
		return err
	}
	if s.cfg.RunOnBoot {
		go s.sweep()
	}
	s.log.Info().Str("schedule", s.cfg.Schedule).Msg("janitor started")
	return nil
}

func (s *Service) startLocked() error {
	c := cron.New()
	if _, err := c.AddFunc(s.cfg.Schedule, s.sweep); err != nil {
		return err
	}
	c.Start()
	s.c = c
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c == nil {
		return
	}
	s.stopLocked()
	s.log.Info().Msg("janitor stopped")
}

func (s *Service) stopLocked() {
	done := s.c.Stop().Done()
	s.c = nil
	<-done
}

func (s *Service) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s.mu.Lock()
	keep := s.cfg.KeepLogs
	s.mu.Unlock()

	now := time.Now()
	unpaused, err := s.store.ClearExpiredPauses(ctx, now)
	if err != nil {
		s.log.Error().Err(err).Msg("pause sweep failed")
	}
	pruned, err := s.store.PruneDeliveryLog(ctx, now.Add(-keep))
	if err != nil {
		s.log.Error().Err(err).Msg("delivery log prune failed")
	}
	if err := s.store.Analyze(ctx); err != nil {
		s.log.Error().Err(err).Msg("analyze failed")
	}
	s.log.Debug().Int64("unpaused", unpaused).Int64("pruned", pruned).Msg("maintenance sweep done")
}
