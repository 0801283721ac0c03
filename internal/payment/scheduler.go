package payment

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nekagit/Server-soladiankcom-sub001/internal/domain"
)

// Resubmitter re-runs a previously failed request. Implemented by the
// Processor.
type Resubmitter interface {
	Resubmit(ctx context.Context, req domain.PaymentRequest) (domain.PaymentRecord, error)
}

// SchedulerConfig holds the backoff policy.
type SchedulerConfig struct {
	// Base is the first retry delay; each further retry doubles it.
	Base time.Duration
	// Cap bounds the delay growth.
	Cap time.Duration
	// MaxRetries caps resubmissions per request.
	MaxRetries int
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.Base <= 0 {
		c.Base = time.Second
	}
	if c.Cap <= 0 {
		c.Cap = 30 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	return c
}

// Scheduler is a bounded, single-consumer retry queue. Enqueue schedules
// exactly one resubmission per call, delayed by exponential backoff seeded by
// the request's retry count. Run drains entries strictly one at a time, so at
// most one retry is in flight globally, bounding the outbound request rate.
//
// Pending entries are persisted on every enqueue and dequeue and reloaded at
// startup, so the queue survives a process restart.
type Scheduler struct {
	cfg    SchedulerConfig
	store  domain.RetryQueueStore
	proc   Resubmitter
	logger *slog.Logger

	mu      sync.Mutex
	pending []domain.RetryEntry // sorted by Due, soonest first
	wake    chan struct{}
}

// NewScheduler creates a Scheduler. store may be nil for tests; persistence
// is then skipped.
func NewScheduler(cfg SchedulerConfig, store domain.RetryQueueStore, proc Resubmitter, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg.withDefaults(),
		store:  store,
		proc:   proc,
		logger: logger.With(slog.String("component", "retry_scheduler")),
		wake:   make(chan struct{}, 1),
	}
}

// Backoff returns the delay before the retry that follows retryCount prior
// attempts: base doubled per count, capped.
func (s *Scheduler) Backoff(retryCount int) time.Duration {
	d := s.cfg.Base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= s.cfg.Cap {
			return s.cfg.Cap
		}
	}
	if d > s.cfg.Cap {
		return s.cfg.Cap
	}
	return d
}

// Enqueue schedules one resubmission of req after its backoff delay and
// persists the entry.
func (s *Scheduler) Enqueue(ctx context.Context, req domain.PaymentRequest) error {
	entry := domain.RetryEntry{
		Request: req,
		Due:     time.Now().UTC().Add(s.Backoff(req.RetryCount)),
	}

	if s.store != nil {
		if err := s.store.Put(ctx, entry); err != nil {
			return fmt.Errorf("retry: persist entry %s: %w", req.ID, err)
		}
	}

	// At most one pending entry per request id; re-enqueueing reschedules the
	// existing entry instead of queueing a second resubmission.
	s.mu.Lock()
	replaced := false
	for i := range s.pending {
		if s.pending[i].Request.ID == req.ID {
			s.pending[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		s.pending = append(s.pending, entry)
	}
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i].Due.Before(s.pending[j].Due) })
	s.mu.Unlock()

	s.logger.Debug("retry scheduled",
		slog.String("request_id", req.ID),
		slog.Int("retry_count", req.RetryCount),
		slog.Time("due", entry.Due),
	)

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Load restores persisted entries at startup.
func (s *Scheduler) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	entries, err := s.store.List(ctx)
	if err != nil {
		return fmt.Errorf("retry: load queue: %w", err)
	}

	// Startup reconciliation may already have re-enqueued some of these ids;
	// a persisted entry for a request that is queued again is skipped.
	s.mu.Lock()
	queued := make(map[string]bool, len(s.pending))
	for _, e := range s.pending {
		queued[e.Request.ID] = true
	}
	for _, entry := range entries {
		if queued[entry.Request.ID] {
			continue
		}
		s.pending = append(s.pending, entry)
	}
	sort.Slice(s.pending, func(i, j int) bool { return s.pending[i].Due.Before(s.pending[j].Due) })
	n := len(s.pending)
	s.mu.Unlock()

	if n > 0 {
		s.logger.Info("retry queue restored", slog.Int("entries", n))
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Len returns the number of pending entries.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Snapshot copies the pending entries for the persistence boundary.
func (s *Scheduler) Snapshot() []domain.RetryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RetryEntry, len(s.pending))
	copy(out, s.pending)
	return out
}

// Run drains the queue until the context is cancelled. Strictly one retry
// executes at a time; its timer is cancelled on shutdown so no callback fires
// against torn-down state.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("retry scheduler started")
	defer s.logger.Info("retry scheduler stopped")

	for {
		s.mu.Lock()
		var next *domain.RetryEntry
		if len(s.pending) > 0 {
			next = &s.pending[0]
		}
		s.mu.Unlock()

		if next == nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.wake:
				continue
			}
		}

		delay := time.Until(next.Due)
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-s.wake:
				// Queue changed; re-evaluate the head.
				timer.Stop()
				continue
			case <-timer.C:
			}
		}

		s.drainOne(ctx)
	}
}

// drainOne pops the head entry, removes it from the persisted queue, and
// resubmits it with the retry count advanced. The processor decides whether
// the outcome re-enqueues or settles.
func (s *Scheduler) drainOne(ctx context.Context) {
	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	entry := s.pending[0]
	s.pending = s.pending[1:]
	s.mu.Unlock()

	if s.store != nil {
		if err := s.store.Delete(ctx, entry.Request.ID); err != nil {
			s.logger.Warn("retry dequeue persist failed",
				slog.String("request_id", entry.Request.ID),
				slog.String("error", err.Error()))
		}
	}

	// The scheduler is the only mutator of RetryCount.
	req := entry.Request
	req.RetryCount++

	s.logger.Info("retrying payment",
		slog.String("request_id", req.ID),
		slog.Int("attempt", req.RetryCount+1),
	)

	if _, err := s.proc.Resubmit(ctx, req); err != nil && !domain.IsRetryable(err) {
		s.logger.Warn("retry settled as failure",
			slog.String("request_id", req.ID),
			slog.String("error", err.Error()))
	}
}
