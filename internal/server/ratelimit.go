package server

import (
	"fmt"
	"sync"
	"time"
)

type RateLimitConfig struct {
	GlobalRPS      float64
	GlobalBurst    int
	MutationLimit  int
	MutationWindow time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTimeout   time.Duration
}

// rateLimiter bounds overall request throughput and, separately, the rate of
// state-changing calls per client. The mutation counter moves to Redis when
// an address is configured so all instances share one budget.
type rateLimiter struct {
	global          *tokenBucket
	mutationLimit   int
	mutationWindow  time.Duration
	mutationMu      sync.Mutex
	mutationBuckets map[string]*clientLimiter
	store           tokenStore
}

type clientLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		mutationLimit:   cfg.MutationLimit,
		mutationWindow:  cfg.MutationWindow,
		mutationBuckets: make(map[string]*clientLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.mutationWindow <= 0 {
		rl.mutationWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.mutationLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisTokenStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

func (r *rateLimiter) AllowMutation(key string) (bool, time.Duration, error) {
	if r == nil || r.mutationLimit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	if r.store != nil {
		return r.store.Allow(fmt.Sprintf("streamcast:mutation:%s", key), r.mutationLimit, r.mutationWindow)
	}
	r.mutationMu.Lock()
	limiter, exists := r.mutationBuckets[key]
	if !exists {
		rate := float64(r.mutationLimit) / r.mutationWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.mutationWindow.Seconds()
		}
		limiter = &clientLimiter{bucket: newTokenBucket(rate, r.mutationLimit)}
		r.mutationBuckets[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.mutationMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.mutationBuckets) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.mutationWindow)
	for key, limiter := range r.mutationBuckets {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.mutationBuckets, key)
		}
	}
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	now := time.Now()
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: now,
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	elapsed := now.Sub(tb.lastCheck).Seconds()
	tb.lastCheck = now
	tb.tokens += elapsed * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens -= 1
	return true
}
