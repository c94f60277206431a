package releases

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/angelmondragon/voucherz-backend/pkg/enums"
	"github.com/angelmondragon/voucherz-backend/pkg/logger"
	"github.com/angelmondragon/voucherz-backend/pkg/metrics"
)

const (
	defaultInterval    = 2 * time.Second
	defaultMaxAttempts = 20
)

type compensator interface {
	Release(ctx context.Context, shortCode string) (enums.ReleaseOutcome, error)
}

type deadLetterStore interface {
	Record(ctx context.Context, shortCode string, attempts int, lastErr error) error
}

type SupervisorParams struct {
	Logger      *logger.Logger
	Compensator compensator
	DeadLetters deadLetterStore
	Metrics     *metrics.VoucherMetrics
	// Interval is the wait before every attempt.
	Interval    time.Duration
	MaxAttempts int
}

// Supervisor owns the background retries of releases that found the voucher
// lock busy. There is at most one task per short code, each bounded by
// MaxAttempts; a task that runs out is dead-lettered.
type Supervisor struct {
	logg        *logger.Logger
	compensator compensator
	deadLetters deadLetterStore
	metrics     *metrics.VoucherMetrics
	interval    time.Duration
	maxAttempts int

	root   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	tasks  map[string]context.CancelFunc
	closed bool
}

func NewSupervisor(params SupervisorParams) (*Supervisor, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Compensator == nil {
		return nil, errors.New("compensator required")
	}
	if params.DeadLetters == nil {
		return nil, errors.New("dead letter store required")
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	root, stop := context.WithCancel(context.Background())
	return &Supervisor{
		logg:        params.Logger,
		compensator: params.Compensator,
		deadLetters: params.DeadLetters,
		metrics:     params.Metrics,
		interval:    interval,
		maxAttempts: maxAttempts,
		root:        root,
		stop:        stop,
		tasks:       make(map[string]context.CancelFunc),
	}, nil
}

// Schedule starts a retry task for shortCode. It reports false when a task for
// the code is already running or the supervisor is shut down.
func (s *Supervisor) Schedule(shortCode string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || shortCode == "" {
		return false
	}
	if _, running := s.tasks[shortCode]; running {
		return false
	}
	ctx, cancel := context.WithCancel(s.root)
	s.tasks[shortCode] = cancel
	s.wg.Add(1)
	go s.run(ctx, shortCode)
	return true
}

// Cancel stops the task for shortCode, if any.
func (s *Supervisor) Cancel(shortCode string) bool {
	s.mu.Lock()
	cancel, ok := s.tasks[shortCode]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Pending lists the short codes with a running task.
func (s *Supervisor) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tasks))
	for code := range s.tasks {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Shutdown cancels every task and waits for them to exit or for ctx to end.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Supervisor) run(ctx context.Context, shortCode string) {
	defer s.wg.Done()
	defer s.forget(shortCode)

	logCtx := s.logg.WithShortCode(context.Background(), shortCode)
	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if !s.wait(ctx) {
			s.logg.Info(logCtx, "release task canceled")
			return
		}
		s.metrics.IncReleaseRetry()

		outcome, err := s.compensator.Release(ctx, shortCode)
		if err != nil {
			if ctx.Err() != nil {
				s.logg.Info(logCtx, "release task canceled")
				return
			}
			lastErr = err
			s.logg.Warn(s.logg.WithField(logCtx, "attempt", attempt), "background release attempt failed")
			continue
		}
		if outcome.Terminal() {
			s.logg.Info(s.logg.WithFields(logCtx, map[string]any{"attempt": attempt, "outcome": outcome.String()}), "background release finished")
			return
		}
	}

	if err := s.deadLetters.Record(logCtx, shortCode, s.maxAttempts, lastErr); err != nil {
		s.logg.Error(logCtx, "failed to record release dead letter", err)
	}
	s.metrics.IncDeadLetter()
	s.logg.Error(s.logg.WithField(logCtx, "attempts", s.maxAttempts), "voucher release abandoned, manual action required", lastErr)
}

func (s *Supervisor) wait(ctx context.Context) bool {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (s *Supervisor) forget(shortCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.tasks[shortCode]; ok {
		cancel()
		delete(s.tasks, shortCode)
	}
}
