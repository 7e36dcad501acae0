package server

import (
	"context"
	"testing"
	"time"
)

func TestTokenBucketExhausts(t *testing.T) {
	bucket := newTokenBucket(1, 2)
	if !bucket.Allow() || !bucket.Allow() {
		t.Fatal("expected burst capacity of two")
	}
	if bucket.Allow() {
		t.Fatal("expected bucket to be exhausted")
	}
}

func TestAllowNegotiatePerKey(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{NegotiateLimit: 1, NegotiateWindow: time.Minute})
	ctx := context.Background()

	allowed, _, err := rl.AllowNegotiate(ctx, "10.0.0.1")
	if err != nil || !allowed {
		t.Fatalf("expected first request allowed, got %v %v", allowed, err)
	}
	allowed, retryAfter, err := rl.AllowNegotiate(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if allowed {
		t.Fatal("expected second request denied")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", retryAfter)
	}

	allowed, _, err = rl.AllowNegotiate(ctx, "10.0.0.2")
	if err != nil || !allowed {
		t.Fatalf("expected other client allowed, got %v %v", allowed, err)
	}
}

func TestAllowNegotiateDisabledWithoutLimit(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{})
	for i := 0; i < 10; i++ {
		allowed, _, err := rl.AllowNegotiate(context.Background(), "10.0.0.1")
		if err != nil || !allowed {
			t.Fatalf("request %d unexpectedly throttled: %v %v", i, allowed, err)
		}
	}
}

func TestGlobalBucketThrottles(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{GlobalRPS: 1, GlobalBurst: 1})
	if !rl.AllowRequest() {
		t.Fatal("expected first request allowed")
	}
	if rl.AllowRequest() {
		t.Fatal("expected second request throttled")
	}
}

func TestCleanupDropsStaleClients(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{NegotiateLimit: 1, NegotiateWindow: time.Millisecond})
	if _, _, err := rl.AllowNegotiate(context.Background(), "10.0.0.1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rl.negotiateMu.Lock()
	rl.negotiateIPs["10.0.0.1"].lastSeen = time.Now().Add(-time.Hour)
	rl.cleanupLocked()
	_, exists := rl.negotiateIPs["10.0.0.1"]
	rl.negotiateMu.Unlock()

	if exists {
		t.Fatal("expected stale client entry to be dropped")
	}
}
