// Package retention periodically deletes old evaluation results.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/randalmurphal/kpiflow/pkg/kpiflow/observability"
	"github.com/tevino/abool/v2"
)

// ErrSweepRunning is returned by Sweep while another sweep is in progress.
var ErrSweepRunning = errors.New("retention sweep already running")

// Pruner deletes results created before a cutoff.
// *service.Service implements it.
type Pruner interface {
	PruneResults(ctx context.Context, cutoff time.Time) (int64, error)
}

// Sweeper runs retention sweeps on a fixed interval.
type Sweeper struct {
	pruner   Pruner
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	clock    func() time.Time
	retry    RetryConfig

	running *abool.AtomicBool

	mu        sync.Mutex
	scheduler gocron.Scheduler
	ctx       context.Context
	cancel    context.CancelFunc
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger used for sweep failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithClock sets the time source used to compute cutoffs.
func WithClock(clock func() time.Time) Option {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithRetry retries failed sweeps. Default: NoRetry.
func WithRetry(cfg RetryConfig) Option {
	return func(s *Sweeper) {
		s.retry = cfg
	}
}

// New creates a Sweeper that removes results older than maxAge every
// interval. A zero maxAge disables retention.
func New(pruner Pruner, maxAge, interval time.Duration, opts ...Option) *Sweeper {
	s := &Sweeper{
		pruner:   pruner,
		maxAge:   maxAge,
		interval: interval,
		clock:    time.Now,
		retry:    NoRetry,
		running:  abool.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether the sweeper deletes anything.
func (s *Sweeper) Enabled() bool {
	return s.maxAge > 0
}

// Sweep deletes results older than maxAge once and returns how many were
// removed. Returns ErrSweepRunning if a sweep is already in progress.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}
	if !s.running.SetToIf(false, true) {
		return 0, ErrSweepRunning
	}
	defer s.running.UnSet()

	cutoff := s.clock().Add(-s.maxAge)
	n, attempts, err := withRetry(ctx, s.retry, func(ctx context.Context) (int64, error) {
		return s.pruner.PruneResults(ctx, cutoff)
	})
	if err != nil && attempts > 1 && s.logger != nil {
		s.logger.Warn("retention sweep retries exhausted", slog.Int("attempts", attempts))
	}
	return n, err
}

// Start schedules sweeps every interval, the first one immediately.
// It does nothing when retention is disabled.
func (s *Sweeper) Start() error {
	if !s.Enabled() {
		return nil
	}
	if s.interval <= 0 {
		return fmt.Errorf("retention interval must be positive, got %s", s.interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	_, err = scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(s.run),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		s.cancel()
		_ = scheduler.Shutdown()
		return fmt.Errorf("schedule retention job: %w", err)
	}
	scheduler.Start()
	s.scheduler = scheduler
	return nil
}

func (s *Sweeper) run() {
	_, err := s.Sweep(s.ctx)
	if err != nil && !errors.Is(err, ErrSweepRunning) {
		observability.LogRetentionError(s.logger, err)
	}
}

// Stop cancels any running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	s.cancel()
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	return err
}
