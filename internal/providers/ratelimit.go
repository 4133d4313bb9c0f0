package providers

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is a token bucket sized in requests per second. The TTS
// and ASR workers share one limiter per provider.
type RateLimiter struct {
	mu sync.Mutex

	requestsPerSecond float64
	tokens            float64
	lastUpdate        time.Time

	totalConsumed int64
	totalWaited   time.Duration
	last429Time   time.Time
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	TokensAvailable int           `json:"tokens_available"`
	Utilization     float64       `json:"utilization"`
	TimeUntilToken  time.Duration `json:"time_until_token"`
	TotalConsumed   int64         `json:"total_consumed"`
	TotalWaited     time.Duration `json:"total_waited"`
	Last429Time     time.Time     `json:"last_429_time,omitempty"`
}

// NewRateLimiter creates a limiter allowing requestsPerSecond sustained
// throughput with a one-second burst.
func NewRateLimiter(requestsPerSecond float64) *RateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 2.0
	}
	return &RateLimiter{
		requestsPerSecond: requestsPerSecond,
		tokens:            requestsPerSecond,
		lastUpdate:        time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (r *RateLimiter) Wait(ctx context.Context) error {
	for {
		r.mu.Lock()
		r.refill()

		if r.tokens >= 1.0 {
			r.tokens--
			r.totalConsumed++
			r.mu.Unlock()
			return nil
		}

		needed := 1.0 - r.tokens
		waitTime := time.Duration(needed / r.requestsPerSecond * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			r.mu.Lock()
			r.totalWaited += waitTime
			r.mu.Unlock()
		}
	}
}

// TryConsume takes a token without blocking. Returns false when empty.
func (r *RateLimiter) TryConsume() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()
	if r.tokens >= 1.0 {
		r.tokens--
		r.totalConsumed++
		return true
	}
	return false
}

// Record429 notes a provider-side rate limit. The bucket is drained so
// subsequent calls back off.
func (r *RateLimiter) Record429(retryAfter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.last429Time = time.Now()
	if retryAfter > 0 {
		r.tokens = 0
	}
}

// Status returns current limiter state.
func (r *RateLimiter) Status() RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.refill()

	utilization := 1.0 - (r.tokens / r.requestsPerSecond)
	if utilization < 0 {
		utilization = 0
	}

	var timeUntilToken time.Duration
	if r.tokens < 1.0 {
		needed := 1.0 - r.tokens
		timeUntilToken = time.Duration(needed / r.requestsPerSecond * float64(time.Second))
	}

	return RateLimiterStatus{
		TokensAvailable: int(r.tokens),
		Utilization:     utilization,
		TimeUntilToken:  timeUntilToken,
		TotalConsumed:   r.totalConsumed,
		TotalWaited:     r.totalWaited,
		Last429Time:     r.last429Time,
	}
}

// refill adds tokens for elapsed time. Caller holds the lock.
func (r *RateLimiter) refill() {
	now := time.Now()
	elapsed := now.Sub(r.lastUpdate).Seconds()
	r.lastUpdate = now

	r.tokens += elapsed * r.requestsPerSecond
	if r.tokens > r.requestsPerSecond {
		r.tokens = r.requestsPerSecond
	}
}
