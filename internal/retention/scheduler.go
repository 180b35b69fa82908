// Package retention removes old webhook audit rows on a schedule.
package retention

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fyrsmithlabs/voicesop/internal/logging"
	"github.com/fyrsmithlabs/voicesop/internal/metrics"
	"go.uber.org/zap"
)

// Defaults match the audit log policy: thirty days kept, swept daily.
const (
	DefaultInterval = 24 * time.Hour
	DefaultMaxAge   = 30 * 24 * time.Hour
)

// runTimeout bounds a single sweep.
const runTimeout = 10 * time.Minute

// Deleter removes webhook logs created before cutoff.
type Deleter interface {
	DeleteWebhookLogsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Scheduler runs retention sweeps in the background.
//
// All public methods are safe for concurrent use.
type Scheduler struct {
	deleter  Deleter
	interval time.Duration
	maxAge   time.Duration
	metrics  *metrics.Metrics
	logger   *logging.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the time between sweeps. Non-positive values keep the
// default.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxAge sets how long rows are kept. Non-positive values keep the
// default.
func WithMaxAge(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithMetrics records deleted rows.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates a scheduler. It does not start until Start is called.
func NewScheduler(deleter Deleter, logger *logging.Logger, opts ...Option) (*Scheduler, error) {
	if deleter == nil {
		return nil, errors.New("deleter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	s := &Scheduler{
		deleter:  deleter,
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		logger:   logger.Named("retention"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start begins periodic sweeps. Starting a running scheduler is an error.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return errors.New("scheduler is already running")
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.wg.Add(1)

	s.logger.Info(context.Background(), "retention scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("max_age", s.maxAge))

	go s.run(s.stopCh)
	return nil
}

// Stop ends periodic sweeps and waits for an in-flight sweep to finish.
// Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info(context.Background(), "retention scheduler stopped")
	return nil
}

// Running reports whether the scheduler is started.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop <-chan struct{}) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "retention goroutine panicked, recovering",
				zap.Any("panic", r), zap.Stack("stack"))
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun()
		case <-stop:
			return
		}
	}
}

func (s *Scheduler) safeRun() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "retention sweep panicked, continuing",
				zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error(ctx, "retention sweep failed", zap.Error(err))
	}
}

// RunOnce deletes rows older than the max age and returns how many were
// removed.
func (s *Scheduler) RunOnce(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.maxAge).UTC()
	deleted, err := s.deleter.DeleteWebhookLogsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordRetention(deleted)
	s.logger.Info(ctx, "cleaned up old webhook logs",
		zap.Int64("deleted", deleted),
		zap.Time("cutoff", cutoff))
	return deleted, nil
}
