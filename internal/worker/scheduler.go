package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/freelance-escrow/internal/worker/domain"
	sharedredis "github.com/cuongbtq/freelance-escrow/shared/redis"
	"github.com/robfig/cron/v3"
)

// Sweeper runs one auto-publish pass
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// SweepLock is a held distributed lock
type SweepLock interface {
	Release(ctx context.Context) error
}

// SweepLocker hands out the cross-instance sweep lock. Acquire returns
// sharedredis.ErrLockHeld when another instance holds it.
type SweepLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (SweepLock, error)
}

// RedisSweepLocker adapts a redis Locker to SweepLocker
type RedisSweepLocker struct {
	Locker *sharedredis.Locker
}

// Acquire implements SweepLocker
func (r RedisSweepLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (SweepLock, error) {
	lock, err := r.Locker.Acquire(ctx, key, ttl)
	if err != nil {
		return nil, err
	}
	return lock, nil
}

// SchedulerConfig holds scheduler dependencies
type SchedulerConfig struct {
	Logger       *slog.Logger
	Sweeper      Sweeper
	Locker       SweepLocker
	Spec         string
	SweepTimeout time.Duration
	LockTTL      time.Duration
	RunOnStart   bool
}

// Scheduler drives the auto-publish sweep on a cron schedule. Overlapping
// ticks are skipped in-process and the Redis lock keeps other worker
// instances from sweeping the same tick.
type Scheduler struct {
	cron         *cron.Cron
	sweeper      Sweeper
	locker       SweepLocker
	logger       *slog.Logger
	spec         string
	sweepTimeout time.Duration
	lockTTL      time.Duration
	runOnStart   bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler and registers the sweep job
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	cronLogger := cronLogAdapter{logger: cfg.Logger}

	s := &Scheduler{
		cron: cron.New(
			cron.WithLogger(cronLogger),
			cron.WithChain(
				cron.Recover(cronLogger),
				cron.SkipIfStillRunning(cronLogger),
			),
		),
		sweeper:      cfg.Sweeper,
		locker:       cfg.Locker,
		logger:       cfg.Logger,
		spec:         cfg.Spec,
		sweepTimeout: cfg.SweepTimeout,
		lockTTL:      cfg.LockTTL,
		runOnStart:   cfg.RunOnStart,
	}
	s.baseCtx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc(cfg.Spec, func() { s.RunOnce(s.baseCtx) }); err != nil {
		return nil, fmt.Errorf("invalid auto-publish schedule %q: %w", cfg.Spec, err)
	}

	return s, nil
}

// Start begins firing the schedule
func (s *Scheduler) Start() {
	s.logger.Info("Starting auto-publish scheduler",
		slog.String("spec", s.spec),
		slog.Duration("sweep_timeout", s.sweepTimeout),
		slog.Bool("run_on_start", s.runOnStart),
	)

	s.cron.Start()

	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.RunOnce(s.baseCtx)
		}()
	}
}

// Stop stops scheduling and waits for a running sweep until ctx expires.
// Sweeps still running at that point are cancelled.
func (s *Scheduler) Stop(ctx context.Context) {
	s.logger.Info("Stopping auto-publish scheduler...")

	done := make(chan struct{})
	go func() {
		<-s.cron.Stop().Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Auto-publish scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("Auto-publish scheduler stop timed out, cancelling sweep")
	}
	s.cancel()
}

// RunOnce performs one locked, time-bounded sweep
func (s *Scheduler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, s.sweepTimeout)
	defer cancel()

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, domain.AutoPublishLockKey, s.lockTTL)
		switch {
		case errors.Is(err, sharedredis.ErrLockHeld):
			s.logger.Debug("Auto-publish sweep skipped, another instance holds the lock")
			return
		case err != nil:
			// the guarded update keeps a lockless sweep safe
			s.logger.Warn("Failed to acquire sweep lock, sweeping without it",
				slog.String("error", err.Error()),
			)
		default:
			defer func() {
				if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("Failed to release sweep lock",
						slog.String("error", err.Error()),
					)
				}
			}()
		}
	}

	start := time.Now()
	transitioned, err := s.sweeper.Sweep(ctx)
	if err != nil {
		// already logged by the sweeper; the next tick retries
		return
	}

	if transitioned > 0 {
		s.logger.Debug("Auto-publish tick finished",
			slog.Int("transitioned", transitioned),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// cronLogAdapter routes cron's internal logging through slog
type cronLogAdapter struct {
	logger *slog.Logger
}

func (a cronLogAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Debug("cron: "+msg, keysAndValues...)
}

func (a cronLogAdapter) Error(err error, msg string, keysAndValues ...interface{}) {
	a.logger.Error("cron: "+msg, append([]interface{}{slog.String("error", err.Error())}, keysAndValues...)...)
}
