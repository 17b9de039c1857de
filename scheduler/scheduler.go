// Package scheduler issues fetches under per-domain politeness limits and
// drives the retry and backoff state machine. Every submitted URL ends in
// exactly one outcome: a document, an exhausted retry budget or abandonment.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"golang.org/x/sync/errgroup"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
	"github.com/aluiziolira/go-scrape-catalog/models"
)

// Observer receives scheduler events, typically to feed metrics.
type Observer interface {
	ObserveRequest(kind models.DocumentKind)
	ObserveResponse(status int, latency time.Duration)
	ObserveError(label string)
	ObserveRetry(reason string)
	ObserveOutcome(kind OutcomeKind)
	ObserveThrottle(host string, delay time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(models.DocumentKind) {}
func (nopObserver) ObserveResponse(int, time.Duration) {}
func (nopObserver) ObserveError(string) {}
func (nopObserver) ObserveRetry(string) {}
func (nopObserver) ObserveOutcome(OutcomeKind) {}
func (nopObserver) ObserveThrottle(string, time.Duration) {}

// Stats is a snapshot of scheduler counters.
type Stats struct {
	Requests     int
	Retries      int
	Documents    int
	Exhausted    int
	Abandoned    int
	ErrorsByType map[string]int
}

type armedRetry struct {
	attempt FetchAttempt
	timer   *time.Timer
}

// Scheduler dispatches fetch attempts from priority-ordered ready queues to
// a bounded set of workers.
type Scheduler struct {
	cfg      *config.Config
	fetcher  Fetcher
	handler  Handler
	limiter  *DomainLimiter
	throttle *AutoThrottle
	backoff  *Backoff
	observer Observer

	mu       sync.Mutex
	ready    map[int]*deque.Deque[FetchAttempt]
	queued   int
	armed    map[uint64]*armedRetry
	inFlight int
	seq      uint64
	gen      uint64
	running  bool
	closed   bool
	wake     chan struct{}
	stats    Stats
}

// Option customises a Scheduler.
type Option func(*Scheduler)

// WithObserver installs an event observer.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithBackoff replaces the backoff policies.
func WithBackoff(b *Backoff) Option {
	return func(s *Scheduler) {
		if b != nil {
			s.backoff = b
		}
	}
}

// New creates a scheduler sharing state with the walker and extractor.
func New(cfg *config.Config, state *crawlstate.State, fetcher Fetcher, opts ...Option) *Scheduler {
	throttle := NewAutoThrottle(cfg)
	s := &Scheduler{
		cfg:      cfg,
		fetcher:  fetcher,
		throttle: throttle,
		limiter:  NewDomainLimiter(state, throttle, cfg),
		backoff:  NewBackoff(cfg),
		observer: nopObserver{},
		ready:    make(map[int]*deque.Deque[FetchAttempt]),
		armed:    make(map[uint64]*armedRetry),
		wake:     make(chan struct{}),
		stats:    Stats{ErrorsByType: make(map[string]int)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit queues a fresh attempt for url.
func (s *Scheduler) Submit(rawURL string, kind models.DocumentKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}
	s.seq++
	s.pushLocked(FetchAttempt{URL: rawURL, Kind: kind, seq: s.seq})
	return nil
}

func (s *Scheduler) pushLocked(a FetchAttempt) {
	q, ok := s.ready[a.Priority]
	if !ok {
		q = new(deque.Deque[FetchAttempt])
		s.ready[a.Priority] = q
	}
	q.PushBack(a)
	s.queued++
	s.notifyLocked()
}

// popLocked takes the oldest attempt of the highest non-empty priority.
func (s *Scheduler) popLocked() (FetchAttempt, bool) {
	best, found := 0, false
	for priority, q := range s.ready {
		if q.Len() == 0 {
			continue
		}
		if !found || priority > best {
			best, found = priority, true
		}
	}
	if !found {
		return FetchAttempt{}, false
	}
	s.queued--
	return s.ready[best].PopFront(), true
}

func (s *Scheduler) notifyLocked() {
	close(s.wake)
	s.wake = make(chan struct{})
}

func (s *Scheduler) idleLocked() bool {
	return s.queued == 0 && len(s.armed) == 0 && s.inFlight == 0
}

// Run dispatches attempts to cfg.Concurrency workers until nothing is queued,
// armed or in flight, or until ctx is cancelled. Attempts still pending when
// ctx is cancelled are delivered as abandoned.
func (s *Scheduler) Run(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	if s.running || s.closed {
		s.mu.Unlock()
		return errors.New("scheduler: already running")
	}
	s.running = true
	s.handler = handler
	s.mu.Unlock()

	workers := s.cfg.Concurrency
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				attempt, ok := s.next(gctx)
				if !ok {
					return nil
				}
				s.dispatch(gctx, attempt, handler)
			}
		})
	}
	err := g.Wait()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	cause := ctx.Err()
	if cause == nil {
		cause = ErrSchedulerClosed
	}
	s.abandonPending(handler, cause)
	return err
}

// next blocks until an attempt is ready. It returns false when the scheduler
// is idle or ctx is done.
func (s *Scheduler) next(ctx context.Context) (FetchAttempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return FetchAttempt{}, false
		}
		if attempt, ok := s.popLocked(); ok {
			s.inFlight++
			attempt.gen = s.gen
			return attempt, true
		}
		if s.idleLocked() {
			s.notifyLocked()
			return FetchAttempt{}, false
		}
		wake := s.wake
		s.mu.Unlock()
		select {
		case <-wake:
		case <-ctx.Done():
		}
		s.mu.Lock()
	}
}

func (s *Scheduler) dispatch(ctx context.Context, attempt FetchAttempt, handler Handler) {
	host := hostOf(attempt.URL)

	outcome, retry := s.fetchOnce(ctx, attempt, host)
	if retry != nil {
		s.mu.Lock()
		s.armLocked(*retry)
		s.inFlight--
		s.notifyLocked()
		s.mu.Unlock()
		return
	}

	s.deliver(handler, outcome)

	s.mu.Lock()
	s.inFlight--
	s.notifyLocked()
	s.mu.Unlock()
}

// fetchOnce performs one attempt. It returns either a terminal outcome or the
// retry to arm.
func (s *Scheduler) fetchOnce(ctx context.Context, attempt FetchAttempt, host string) (Outcome, *FetchAttempt) {
	if err := s.limiter.Wait(ctx, host); err != nil {
		return Outcome{Kind: OutcomeAbandoned, Attempt: attempt, Err: err}, nil
	}
	// CancelPending may have run while the attempt waited for its slot.
	s.mu.Lock()
	cancelled := s.gen != attempt.gen
	s.mu.Unlock()
	if cancelled {
		return Outcome{Kind: OutcomeAbandoned, Attempt: attempt, Err: ErrCancelled}, nil
	}

	s.observer.ObserveRequest(attempt.Kind)
	s.mu.Lock()
	s.stats.Requests++
	requests := s.stats.Requests
	s.mu.Unlock()
	if requests%50 == 0 {
		slog.Debug("scheduler request progress",
			slog.Int("requests", requests),
			slog.String("url", attempt.URL),
		)
	}

	started := time.Now()
	resp, err := s.fetcher.Fetch(ctx, attempt.URL)
	if ctx.Err() != nil {
		return Outcome{Kind: OutcomeAbandoned, Attempt: attempt, Err: ctx.Err()}, nil
	}

	status := 0
	latency := time.Since(started)
	if resp != nil {
		status = resp.Status
		if resp.Latency > 0 {
			latency = resp.Latency
		}
		s.observer.ObserveResponse(status, latency)
	}

	failed := err != nil || status < 200 || status >= 300
	delay := s.throttle.Observe(host, latency, failed)
	s.observer.ObserveThrottle(host, delay)

	if !failed {
		return Outcome{Kind: OutcomeDocument, Attempt: attempt, Status: status, Body: resp.Body}, nil
	}

	classified := ClassifyError(err, status)
	label := ErrorTypeLabel(classified)
	s.recordError(label)

	retryable := isTransient(classified) || s.cfg.IsRetryStatus(status)
	if !retryable {
		slog.Warn("fetch abandoned",
			slog.String("url", attempt.URL),
			slog.Int("status", status),
			slog.String("category", label),
		)
		return Outcome{Kind: OutcomeAbandoned, Attempt: attempt, Status: status, Err: classified}, nil
	}

	if attempt.RetryCount+1 > s.cfg.MaxRetries {
		slog.Error("retries exhausted",
			slog.String("url", attempt.URL),
			slog.Int("retries", attempt.RetryCount),
			slog.Int("status", status),
			slog.Any("error", classified),
		)
		return Outcome{Kind: OutcomeExhausted, Attempt: attempt, Status: status, Err: classified}, nil
	}

	wait := s.backoff.Next(classified, attempt.RetryCount)
	next := attempt.Retry(time.Now().Add(wait), s.cfg.RetryPriorityAdjust)
	s.observer.ObserveRetry(label)
	slog.Warn("retry scheduled",
		slog.String("url", attempt.URL),
		slog.Int("status", status),
		slog.String("category", label),
		slog.Int("retry", next.RetryCount),
		slog.Duration("backoff", wait),
	)
	return Outcome{}, &next
}

func (s *Scheduler) recordError(label string) {
	s.observer.ObserveError(label)
	s.mu.Lock()
	s.stats.ErrorsByType[label]++
	s.mu.Unlock()
}

// armLocked holds a retry until its not-before time, then queues it.
func (s *Scheduler) armLocked(attempt FetchAttempt) {
	s.stats.Retries++
	seq := attempt.seq
	wait := time.Until(attempt.NotBefore)
	if wait < 0 {
		wait = 0
	}
	entry := &armedRetry{attempt: attempt}
	s.armed[seq] = entry
	entry.timer = time.AfterFunc(wait, func() {
		s.fireRetry(seq)
	})
}

func (s *Scheduler) fireRetry(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.armed[seq]
	if !ok {
		return
	}
	delete(s.armed, seq)
	s.pushLocked(entry.attempt)
}

// CancelPending drops every queued and armed attempt and reports each as
// abandoned. In-flight fetches are not interrupted.
func (s *Scheduler) CancelPending() int {
	return s.cancel(nil, ErrCancelled)
}

func (s *Scheduler) abandonPending(handler Handler, cause error) {
	s.cancel(handler, cause)
}

func (s *Scheduler) cancel(handler Handler, cause error) int {
	s.mu.Lock()
	s.gen++
	var dropped []FetchAttempt
	for priority, q := range s.ready {
		for q.Len() > 0 {
			dropped = append(dropped, q.PopFront())
		}
		delete(s.ready, priority)
	}
	s.queued = 0
	for seq, entry := range s.armed {
		entry.timer.Stop()
		dropped = append(dropped, entry.attempt)
		delete(s.armed, seq)
	}
	if handler == nil {
		handler = s.handler
	}
	s.inFlight += len(dropped)
	s.mu.Unlock()

	for _, attempt := range dropped {
		s.deliver(handler, Outcome{Kind: OutcomeAbandoned, Attempt: attempt, Err: cause})
	}

	s.mu.Lock()
	s.inFlight -= len(dropped)
	s.notifyLocked()
	s.mu.Unlock()
	return len(dropped)
}

func (s *Scheduler) deliver(handler Handler, outcome Outcome) {
	s.mu.Lock()
	switch outcome.Kind {
	case OutcomeDocument:
		s.stats.Documents++
	case OutcomeExhausted:
		s.stats.Exhausted++
	case OutcomeAbandoned:
		s.stats.Abandoned++
	}
	s.mu.Unlock()
	s.observer.ObserveOutcome(outcome.Kind)
	if handler != nil {
		handler(outcome)
	}
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stats
	out.ErrorsByType = make(map[string]int, len(s.stats.ErrorsByType))
	for k, v := range s.stats.ErrorsByType {
		out.ErrorsByType[k] = v
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
