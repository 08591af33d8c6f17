package services

import (
	"math/rand"
	"sync"
	"time"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 2 * time.Second
	defaultMaxDelay   = 5 * time.Minute
)

// RetryPolicy bounds resubmission attempts and spaces them with exponential backoff.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter returns a random extra delay in [0, limit). Nil disables jitter.
	Jitter func(limit time.Duration) time.Duration
}

func (p RetryPolicy) Normalized() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = defaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

// Delay is min(MaxDelay, BaseDelay * 2^(retryCount-1)) for retryCount >= 1.
// It never drops below BaseDelay and never decreases as retryCount grows.
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	p = p.Normalized()
	delay := p.BaseDelay
	for i := 1; i < retryCount; i++ {
		if delay >= p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// NextEligibleAt adds the backoff delay and up to half of it again as jitter.
func (p RetryPolicy) NextEligibleAt(now time.Time, retryCount int) time.Time {
	delay := p.Delay(retryCount)
	if p.Jitter != nil && delay > 1 {
		if extra := p.Jitter(delay / 2); extra > 0 {
			delay += extra
		}
	}
	return now.UTC().Add(delay)
}

// RandomJitter is a goroutine-safe uniform jitter source.
func RandomJitter(seed int64) func(limit time.Duration) time.Duration {
	var mu sync.Mutex
	source := rand.New(rand.NewSource(seed))
	return func(limit time.Duration) time.Duration {
		if limit <= 0 {
			return 0
		}
		mu.Lock()
		defer mu.Unlock()
		return time.Duration(source.Int63n(int64(limit)))
	}
}
