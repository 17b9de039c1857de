package scheduler

import (
	"strings"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// AutoThrottle adapts a per-host delay toward latency / target concurrency:
// the new delay is the larger of that target and the mean of target and the
// current delay. It starts at the configured start delay, is capped at the
// max delay and is never lowered by an error response.
type AutoThrottle struct {
	start  time.Duration
	max    time.Duration
	target float64

	mu     sync.Mutex
	delays map[string]time.Duration
}

// NewAutoThrottle reads the throttle settings from cfg.
func NewAutoThrottle(cfg *config.Config) *AutoThrottle {
	target := cfg.ThrottleTargetConcurrency
	if target <= 0 {
		target = 1
	}
	return &AutoThrottle{
		start:  cfg.ThrottleStartDelay,
		max:    cfg.ThrottleMaxDelay,
		target: target,
		delays: make(map[string]time.Duration),
	}
}

// Delay returns the current delay for host.
func (t *AutoThrottle) Delay(host string) time.Duration {
	if t == nil {
		return 0
	}
	host = strings.ToLower(host)
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.delays[host]; ok {
		return d
	}
	return t.start
}

// Observe feeds one response latency for host and returns the new delay.
func (t *AutoThrottle) Observe(host string, latency time.Duration, failed bool) time.Duration {
	if t == nil {
		return 0
	}
	host = strings.ToLower(host)

	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.delays[host]
	if !ok {
		current = t.start
	}
	target := time.Duration(float64(latency) / t.target)
	next := max(target, (current+target)/2)
	if failed && next < current {
		next = current
	}
	if t.max > 0 && next > t.max {
		next = t.max
	}
	if next < 0 {
		next = 0
	}
	t.delays[host] = next
	return next
}
