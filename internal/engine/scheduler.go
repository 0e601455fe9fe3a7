package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gkobilansky/cashloop/internal/logger"
)

// Scheduler runs the engine cycle on a fixed interval. A tick that arrives
// while a cycle is still running is skipped.
type Scheduler struct {
	cron    *cron.Cron
	engine  *Engine
	log     *logger.Logger
	entryID cron.EntryID
	timeout time.Duration
}

func NewScheduler(e *Engine, log *logger.Logger) *Scheduler {
	log = logger.OrNop(log).With("component", "scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))
	return &Scheduler{cron: c, engine: e, log: log}
}

// Every schedules the cycle every interval. Each run is bounded by the
// interval itself.
func (s *Scheduler) Every(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}
	if s.entryID != 0 {
		s.cron.Remove(s.entryID)
	}
	s.timeout = interval
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", interval), s.run)
	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	s.entryID = id
	s.log.Info("Cycle scheduled", "interval", interval.String())
	return nil
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	s.engine.RunCycle(ctx)
}

// Next reports when the next cycle fires; zero before Start.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running cycle or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("Stopped waiting for running cycle", "error", ctx.Err())
	}
}

// cronLogger adapts the zap wrapper to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append(keysAndValues, "error", err)...)
}
