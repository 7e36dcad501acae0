package server

import (
	"context"
	"testing"
	"time"

	"streamgate/internal/testsupport/redisstub"
)

func TestRedisStoreAllow(t *testing.T) {
	srv, err := redisstub.Start(redisstub.Options{Password: "secret"})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
	})

	store := newRedisStore(srv.Addr(), "secret", time.Second)
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	allowed, retry, err := store.Allow(ctx, "negotiate:test", 2, time.Minute)
	if err != nil || !allowed || retry != 0 {
		t.Fatalf("first allow unexpected: allowed=%v retry=%v err=%v", allowed, retry, err)
	}
	allowed, _, err = store.Allow(ctx, "negotiate:test", 2, time.Minute)
	if err != nil || !allowed {
		t.Fatalf("second allow unexpected: allowed=%v err=%v", allowed, err)
	}
	allowed, retry, err = store.Allow(ctx, "negotiate:test", 2, time.Minute)
	if err != nil {
		t.Fatalf("third allow err: %v", err)
	}
	if allowed {
		t.Fatal("expected throttle on third attempt")
	}
	if retry <= 0 {
		t.Fatalf("expected positive retry, got %v", retry)
	}
}

func TestRedisStoreKeysAreIndependent(t *testing.T) {
	srv, err := redisstub.Start(redisstub.Options{})
	if err != nil {
		t.Fatalf("start redis stub: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Close()
	})

	store := newRedisStore(srv.Addr(), "", time.Second)
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if allowed, _, err := store.Allow(ctx, "negotiate:a", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("first key unexpectedly throttled: %v %v", allowed, err)
	}
	if allowed, _, err := store.Allow(ctx, "negotiate:b", 1, time.Minute); err != nil || !allowed {
		t.Fatalf("second key unexpectedly throttled: %v %v", allowed, err)
	}
}
