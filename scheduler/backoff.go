package scheduler

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// BackoffPolicy computes exponential retry delays.
type BackoffPolicy struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration
}

// Backoff holds the two retry policies: rate-limited responses back off on a
// minutes scale, every other transient failure on a seconds scale.
type Backoff struct {
	RateLimited BackoffPolicy
	Transient   BackoffPolicy
	jitter      func(time.Duration) time.Duration
}

// NewBackoff reads both policies from cfg.
func NewBackoff(cfg *config.Config) *Backoff {
	return &Backoff{
		RateLimited: BackoffPolicy{Base: cfg.RateLimitBackoff, Max: cfg.RateLimitBackoffMax, Jitter: cfg.RateLimitJitter},
		Transient:   BackoffPolicy{Base: cfg.RetryBackoff, Max: cfg.RetryBackoffMax, Jitter: cfg.RetryJitter},
		jitter:      randomJitter,
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Policy selects the policy for a classified failure.
func (b *Backoff) Policy(err error) BackoffPolicy {
	var rateLimited ErrRateLimited
	if errors.As(err, &rateLimited) {
		return b.RateLimited
	}
	return b.Transient
}

// Delay returns min(base*2^retryCount, max) without jitter.
func (p BackoffPolicy) Delay(retryCount int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if retryCount < 0 {
		retryCount = 0
	}

	delay := base
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if p.Max > 0 && delay >= p.Max {
			return p.Max
		}
	}
	if p.Max > 0 && delay > p.Max {
		delay = p.Max
	}
	return delay
}

// Next returns the delay before the retry numbered retryCount, jitter included.
func (b *Backoff) Next(err error, retryCount int) time.Duration {
	policy := b.Policy(err)
	return policy.Delay(retryCount) + b.jitter(policy.Jitter)
}
