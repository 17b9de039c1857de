package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/crawlstate"
)

// DomainLimiter enforces per-domain politeness: a minimum spacing between
// dispatches (plus random jitter, raised to the autothrottle delay) and an
// optional token bucket. Dispatch times live in the crawl state.
type DomainLimiter struct {
	state    *crawlstate.State
	delay    time.Duration
	jitter   time.Duration
	throttle *AutoThrottle

	requests int
	window   time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter

	now    func() time.Time
	random func(time.Duration) time.Duration
}

// NewDomainLimiter builds the limiter from cfg.
func NewDomainLimiter(state *crawlstate.State, throttle *AutoThrottle, cfg *config.Config) *DomainLimiter {
	return &DomainLimiter{
		state:    state,
		delay:    cfg.MinDomainDelay,
		jitter:   cfg.DomainJitter,
		throttle: throttle,
		requests: cfg.RateLimitRequests,
		window:   cfg.RateLimitWindow,
		limiters: make(map[string]*rate.Limiter),
		now:      time.Now,
		random:   randomJitter,
	}
}

// Spacing returns the interval enforced before the next dispatch to host.
func (d *DomainLimiter) Spacing(host string) time.Duration {
	spacing := d.delay + d.random(d.jitter)
	if throttled := d.throttle.Delay(host); throttled > spacing {
		spacing = throttled
	}
	return spacing
}

// Wait blocks until a request to host may be dispatched and records the
// dispatch in the crawl state.
func (d *DomainLimiter) Wait(ctx context.Context, host string) error {
	if d == nil || host == "" {
		return nil
	}
	host = strings.ToLower(host)

	slot := d.state.ReserveFetch(host, d.now(), d.Spacing(host))
	if sleep := slot.Sub(d.now()); sleep > 0 {
		timer := time.NewTimer(sleep)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limiter := d.limiter(host); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		d.state.RecordFetch(host, d.now())
	}
	return nil
}

func (d *DomainLimiter) limiter(host string) *rate.Limiter {
	if d.requests <= 0 || d.window <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	limiter, ok := d.limiters[host]
	if ok {
		return limiter
	}
	interval := d.window / time.Duration(d.requests)
	if interval <= 0 {
		interval = time.Millisecond
	}
	limiter = rate.NewLimiter(rate.Every(interval), d.requests)
	d.limiters[host] = limiter
	return limiter
}
