package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lendmatch/backend/internal/domain"
)

const maxBackoff = 10 * time.Minute

// Syncer is the part of CatalogSync the scheduler drives
type Syncer interface {
	Load(ctx context.Context, force bool) (SyncResult, error)
}

// Scheduler runs one network sync per fetch window. Failed attempts are
// retried inside the same window with exponential backoff.
type Scheduler struct {
	syncer   Syncer
	window   *FetchWindow
	clock    domain.Clock
	interval time.Duration
	logger   *zap.Logger

	mu          sync.Mutex
	lastWindow  time.Time
	failures    int
	nextAttempt time.Time

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a scheduler that checks the window every interval
func NewScheduler(syncer Syncer, window *FetchWindow, clock domain.Clock, interval time.Duration, logger *zap.Logger) *Scheduler {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		syncer:   syncer,
		window:   window,
		clock:    clock,
		interval: interval,
		logger:   logger,
	}
}

// Tick runs a sync if the window is open and has not been served yet.
// It reports whether a sync was attempted.
func (s *Scheduler) Tick(ctx context.Context) (bool, error) {
	now := s.clock.Now()

	s.mu.Lock()
	if !s.window.IsAllowed(now) {
		s.failures = 0
		s.nextAttempt = time.Time{}
		s.mu.Unlock()
		return false, nil
	}
	start := s.window.Start(now)
	if start.Equal(s.lastWindow) || now.Before(s.nextAttempt) {
		s.mu.Unlock()
		return false, nil
	}
	s.mu.Unlock()

	result, err := s.syncer.Load(ctx, false)
	if err == nil && result.FetchErr != nil {
		err = result.FetchErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.failures++
		delay := exponentialBackoff(s.failures)
		s.nextAttempt = now.Add(delay)
		s.logger.Warn("Scheduled sync failed",
			zap.Int("attempt", s.failures),
			zap.Duration("retry_in", delay),
			zap.Error(err))
		return true, err
	}

	s.lastWindow = start
	s.failures = 0
	s.nextAttempt = time.Time{}
	s.logger.Info("Scheduled sync complete",
		zap.Time("window", start),
		zap.Int("count", len(result.Products)))
	return true, nil
}

// Start runs the scheduler loop in the background until Stop is called or
// ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop, done := make(chan struct{}), make(chan struct{})
	s.stopCh, s.doneCh = stop, done
	s.mu.Unlock()

	hours := s.window.Hours()
	s.logger.Info("Scheduler started",
		zap.Duration("interval", s.interval),
		zap.Ints("window_hours_utc", hours[:]))

	go s.run(ctx, stop, done)
}

// Stop shuts the loop down and waits for an in-flight sync to finish
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	done := s.doneCh
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	// Check immediately on start
	_, _ = s.Tick(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped", zap.Error(ctx.Err()))
			return
		case <-stop:
			s.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			_, _ = s.Tick(ctx)
		}
	}
}

// exponentialBackoff returns 500ms, 1s, 2s, ... capped at maxBackoff
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 20 {
		return maxBackoff
	}
	d := 500 * time.Millisecond << (attempt - 1)
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}
