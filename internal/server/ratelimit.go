package server

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type RateLimitConfig struct {
	GlobalRPS       float64
	GlobalBurst     int
	NegotiateLimit  int
	NegotiateWindow time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisTimeout    time.Duration
}

type rateLimiter struct {
	global          *tokenBucket
	negotiateLimit  int
	negotiateWindow time.Duration
	negotiateMu     sync.Mutex
	negotiateIPs    map[string]*ipLimiter
	store           counterStore
}

type ipLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

// counterStore throttles a keyed action over a fixed window. Implementations
// must be safe for concurrent use.
type counterStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Close() error
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		negotiateLimit:  cfg.NegotiateLimit,
		negotiateWindow: cfg.NegotiateWindow,
		negotiateIPs:    make(map[string]*ipLimiter),
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
	if rl.negotiateLimit <= 0 {
		rl.negotiateLimit = 0
	}
	if rl.negotiateWindow <= 0 {
		rl.negotiateWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.negotiateLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.store = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowNegotiate throttles upload and live input requests per client IP.
// With Redis configured the counters are shared across gateway replicas;
// otherwise an in-process token bucket covers the single instance.
func (r *rateLimiter) AllowNegotiate(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.negotiateLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(ctx, fmt.Sprintf("streamgate:negotiate:%s", key), r.negotiateLimit, r.negotiateWindow)
	}
	if key == "" {
		key = "unknown"
	}
	r.negotiateMu.Lock()
	limiter, exists := r.negotiateIPs[key]
	if !exists {
		rate := float64(r.negotiateLimit) / r.negotiateWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.negotiateWindow.Seconds()
		}
		limiter = &ipLimiter{bucket: newTokenBucket(rate, r.negotiateLimit)}
		r.negotiateIPs[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.cleanupLocked()
	r.negotiateMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) Close() {
	if r == nil || r.store == nil {
		return
	}
	_ = r.store.Close()
}

func (r *rateLimiter) cleanupLocked() {
	if len(r.negotiateIPs) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.negotiateWindow)
	for key, limiter := range r.negotiateIPs {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.negotiateIPs, key)
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
