package batch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// ParseCron parses a five-field cron expression
func ParseCron(expr string) (cron.Schedule, error) {
	return cronParser.Parse(expr)
}

// RunFunc executes one scheduled batch
type RunFunc func(ctx context.Context, cfg BatchConfig) error

// Scheduler fires configured batches when their cron schedule is due. A
// batch never runs twice concurrently.
type Scheduler struct {
	configs   map[string]BatchConfig
	schedules map[string]cron.Schedule
	lastRun   map[string]time.Time
	running   map[string]bool
	mu        sync.RWMutex
	wg        sync.WaitGroup
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduler creates a new batch scheduler. A batch's first check looks back
// to the start of the previous minute, so one whose schedule matches the
// current minute fires on the first tick.
func NewScheduler(configs []BatchConfig, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		configs:   make(map[string]BatchConfig),
		schedules: make(map[string]cron.Schedule),
		lastRun:   make(map[string]time.Time),
		running:   make(map[string]bool),
		logger:    logger.With(zap.String("component", "schedule")),
		now:       time.Now,
	}

	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		sched, err := ParseCron(cfg.Cron)
		if err != nil {
			return nil, err
		}
		s.configs[cfg.Name] = cfg
		s.schedules[cfg.Name] = sched
	}

	return s, nil
}

// NextRun returns the next scheduled run time for a batch
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sched, ok := s.schedules[name]
	if !ok {
		return time.Time{}
	}
	return sched.Next(s.now())
}

// ShouldRun returns true if a batch is due and not already running
func (s *Scheduler) ShouldRun(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dueLocked(name, s.now())
}

func (s *Scheduler) dueLocked(name string, now time.Time) bool {
	sched, ok := s.schedules[name]
	if !ok || s.running[name] {
		return false
	}

	last, ok := s.lastRun[name]
	if !ok {
		// Anchor on the previous minute so a batch due right now fires
		last = now.Truncate(time.Minute).Add(-time.Minute)
		s.lastRun[name] = last
	}
	return !sched.Next(last).After(now)
}

// MarkRunning marks a batch as currently running
func (s *Scheduler) MarkRunning(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = true
}

// MarkComplete marks a batch as complete
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[name] = false
	s.lastRun[name] = s.now()
}

// GetConfig returns the config for a batch
func (s *Scheduler) GetConfig(name string) (BatchConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[name]
	return cfg, ok
}

// ListBatches returns all batch names, sorted
func (s *Scheduler) ListBatches() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tick starts every due batch and returns the names it started
func (s *Scheduler) Tick(ctx context.Context, run RunFunc) []string {
	now := s.now()
	var started []string

	s.mu.Lock()
	for _, name := range s.sortedNamesLocked() {
		if s.dueLocked(name, now) {
			s.running[name] = true
			started = append(started, name)
		}
	}
	s.mu.Unlock()

	for _, name := range started {
		cfg, _ := s.GetConfig(name)
		s.wg.Add(1)
		go func(c BatchConfig) {
			defer s.wg.Done()
			defer s.MarkComplete(c.Name)
			s.logger.Info("batch due", zap.String("batch", c.Name))
			if err := run(ctx, c); err != nil {
				s.logger.Error("batch failed", zap.String("batch", c.Name), zap.Error(err))
			}
		}(cfg)
	}
	return started
}

func (s *Scheduler) sortedNamesLocked() []string {
	names := make([]string, 0, len(s.configs))
	for name := range s.configs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start checks for due batches every minute until ctx is done, then waits
// for running batches to finish
func (s *Scheduler) Start(ctx context.Context, run RunFunc) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	s.Tick(ctx, run)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx, run)
		}
	}
}

// Wait blocks until every started batch has finished
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
