// Package confirmation runs delayed payment confirmations on a fixed pool of workers.
//
// Scheduled tasks live in memory only. Tasks still pending when Run returns are discarded;
// on restart they are re-derived from the unpaid registrations in the ledger.
package confirmation

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"meeting-registration/metrics"
	"meeting-registration/registration"
)

const (
	DefaultWorkers          = 4
	DefaultConfirmTimeout   = 5 * time.Second
	DefaultMaxAttempts      = 5
	DefaultRetryInterval    = time.Second
	DefaultMaxRetryInterval = 30 * time.Second
)

var (
	ErrStopped        = errors.New("confirmation scheduler is stopped")
	ErrAlreadyRunning = errors.New("confirmation scheduler is already running")
)

type Confirmer interface {
	Confirm(ctx context.Context, id int) error
}

var _ registration.Scheduler = (*Scheduler)(nil)

type Scheduler struct {
	confirmer      Confirmer
	workers        int
	confirmTimeout time.Duration
	maxAttempts    int
	retryInterval  time.Duration
	logger         *slog.Logger
	metrics        *metrics.Metrics

	mu      sync.Mutex
	queue   taskQueue
	byID    map[int]*task
	seq     uint64
	running bool
	stopped bool
	wake    chan struct{}
}

type Option func(*Scheduler)

func WithWorkers(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// WithConfirmTimeout bounds a single Confirm call.
func WithConfirmTimeout(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.confirmTimeout = d
		}
	}
}

// WithRetry sets how many times a failing confirmation is attempted in total and the
// first backoff between attempts. Later backoffs grow exponentially.
// Unknown registrations and panics are never retried.
func WithRetry(maxAttempts int, initial time.Duration) Option {
	return func(s *Scheduler) {
		if maxAttempts > 0 {
			s.maxAttempts = maxAttempts
		}
		if initial > 0 {
			s.retryInterval = initial
		}
	}
}

func New(confirmer Confirmer, opts ...Option) *Scheduler {
	s := &Scheduler{
		confirmer:      confirmer,
		workers:        DefaultWorkers,
		confirmTimeout: DefaultConfirmTimeout,
		maxAttempts:    DefaultMaxAttempts,
		retryInterval:  DefaultRetryInterval,
		logger:         slog.New(slog.DiscardHandler),
		byID:           map[int]*task{},
		wake:           make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schedule arranges for the registration to be confirmed once delay has elapsed.
// It never blocks. Scheduling an id that is already pending moves its due time.
// Tasks scheduled before Run starts fire once it does.
func (s *Scheduler) Schedule(id int, delay time.Duration) error {
	due := time.Now().Add(max(delay, 0))

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if t, ok := s.byID[id]; ok {
		t.due = due
		heap.Fix(&s.queue, t.index)
	} else {
		s.seq++
		t := &task{id: id, due: due, seq: s.seq}
		heap.Push(&s.queue, t)
		s.byID[id] = t
	}
	pending := len(s.queue)
	s.mu.Unlock()

	s.metrics.SetPendingConfirmations(pending)
	s.notify()
	return nil
}

// Cancel removes a pending task. It reports whether one was removed.
func (s *Scheduler) Cancel(id int) bool {
	s.mu.Lock()
	t, ok := s.byID[id]
	if ok {
		heap.Remove(&s.queue, t.index)
		delete(s.byID, id)
	}
	pending := len(s.queue)
	s.mu.Unlock()

	if ok {
		s.metrics.SetPendingConfirmations(pending)
		s.notify()
	}
	return ok
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Run dispatches due tasks to the worker pool until ctx is cancelled.
// In-flight confirmations are allowed to finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "confirmation scheduler started", slog.Int("workers", s.workers))

	ready := make(chan *task)
	var g errgroup.Group
	for range s.workers {
		g.Go(func() error {
			for t := range ready {
				s.fire(ctx, t)
			}
			return nil
		})
	}

	s.dispatch(ctx, ready)
	close(ready)
	err := g.Wait()

	s.mu.Lock()
	s.stopped = true
	discarded := len(s.queue)
	s.queue = nil
	s.byID = map[int]*task{}
	s.mu.Unlock()

	s.metrics.SetPendingConfirmations(0)
	s.logger.Info("confirmation scheduler stopped", slog.Int("discarded", discarded))

	return err
}

func (s *Scheduler) dispatch(ctx context.Context, ready chan<- *task) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		due, next, hasNext := s.takeDue(time.Now())
		if len(due) > 0 {
			s.metrics.SetPendingConfirmations(s.Pending())
		}
		for _, t := range due {
			select {
			case ready <- t:
			case <-ctx.Done():
				return
			}
		}
		if len(due) > 0 {
			continue
		}

		var timerC <-chan time.Time
		if hasNext {
			timer.Reset(time.Until(next))
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		case <-timerC:
		}
	}
}

// takeDue pops every task due at or before now and reports when the next one is due.
func (s *Scheduler) takeDue(now time.Time) ([]*task, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*task
	for len(s.queue) > 0 && !s.queue[0].due.After(now) {
		t := heap.Pop(&s.queue).(*task)
		delete(s.byID, t.id)
		due = append(due, t)
	}
	if len(s.queue) == 0 {
		return due, time.Time{}, false
	}
	return due, s.queue[0].due, true
}

func (s *Scheduler) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) fire(ctx context.Context, t *task) {
	id := t.id
	t.attempt++
	logger := s.logger.With(slog.Int("registrationId", id), slog.Int("attempt", t.attempt))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("payment confirmation panicked", slog.String("panic", fmt.Sprint(r)))
			s.metrics.IncrementConfirmationsDropped("panic")
		}
	}()

	// A confirmation that has started is finished even during shutdown.
	confirmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTimeout)
	defer cancel()

	err := s.confirmer.Confirm(confirmCtx, id)
	if err != nil {
		if registration.IsReason(err, registration.REASON_REGISTRATION_DOES_NOT_EXIST) {
			logger.Warn("dropping confirmation for unknown registration", slog.String("error", err.Error()))
			s.metrics.IncrementConfirmationsDropped("not_found")
			return
		}
		if t.attempt < s.maxAttempts {
			if delay, ok := s.retry(t); ok {
				logger.Warn("failed to confirm payment, retrying", slog.String("error", err.Error()), slog.Duration("backoff", delay))
				s.metrics.IncrementConfirmationRetries()
				return
			}
		}
		logger.Error("failed to confirm payment", slog.String("error", err.Error()))
		s.metrics.IncrementConfirmationsDropped("error")
		return
	}

	logger.Info("payment confirmed")
	s.metrics.IncrementConfirmationsApplied()
}

// retry requeues a failed task after its next backoff. It does nothing when the id was
// scheduled again in the meantime or the scheduler has stopped.
func (s *Scheduler) retry(t *task) (time.Duration, bool) {
	if t.backoff == nil {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = s.retryInterval
		b.MaxInterval = max(s.retryInterval, DefaultMaxRetryInterval)
		t.backoff = b
	}
	delay := t.backoff.NextBackOff()

	s.mu.Lock()
	if pending, ok := s.byID[t.id]; ok {
		s.mu.Unlock()
		return time.Until(pending.due), true
	}
	if s.stopped {
		s.mu.Unlock()
		return 0, false
	}
	s.seq++
	t.due = time.Now().Add(delay)
	t.seq = s.seq
	heap.Push(&s.queue, t)
	s.byID[t.id] = t
	pending := len(s.queue)
	s.mu.Unlock()

	s.metrics.SetPendingConfirmations(pending)
	s.notify()
	return delay, true
}
