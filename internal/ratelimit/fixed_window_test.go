package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestLimiter(t *testing.T, mr *miniredis.Miniredis, cfg Config) *FixedWindowLimiter {
	t.Helper()
	client, err := NewClient(mr.Addr(), "")
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	limiter, err := New(client, "test:ratelimit", cfg)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	return limiter
}

func TestFixedWindowLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, Config{Name: "login", Limit: 2, Window: time.Minute})
	ctx := context.Background()
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("first request should pass")
	}
	if ok, _ := limiter.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("second request should pass")
	}
	ok, retry := limiter.Allow(ctx, "ip-1")
	if ok {
		t.Fatalf("third request should be blocked")
	}
	if retry <= 0 || retry > time.Minute {
		t.Fatalf("retry after out of range: %v", retry)
	}
	if ok, _ := limiter.Allow(ctx, "ip-2"); !ok {
		t.Fatalf("other keys have their own quota")
	}
}

func TestFixedWindowLimiterNamesAreIsolated(t *testing.T) {
	mr := miniredis.RunT(t)
	login := newTestLimiter(t, mr, Config{Name: "login", Limit: 1, Window: time.Minute})
	register := newTestLimiter(t, mr, Config{Name: "register", Limit: 1, Window: time.Minute})
	ctx := context.Background()
	if ok, _ := login.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("login should pass")
	}
	if ok, _ := register.Allow(ctx, "ip-1"); !ok {
		t.Fatalf("register quota must not share login counter")
	}
}

func TestFixedWindowLimiterRedisFailClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	limiter := newTestLimiter(t, mr, Config{Limit: 1, Window: time.Second})
	mr.Close()
	if ok, _ := limiter.Allow(context.Background(), "ip-1"); ok {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestConstructorValidation(t *testing.T) {
	if _, err := NewClient("", ""); err == nil {
		t.Fatalf("expected error for empty redis addr")
	}
	mr := miniredis.RunT(t)
	client, _ := NewClient(mr.Addr(), "")
	defer client.Close()
	if _, err := New(client, "", Config{Limit: 0, Window: time.Second}); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	if _, err := New(nil, "", Config{Limit: 1, Window: time.Second}); err == nil {
		t.Fatalf("expected error for nil client")
	}
	var nilLimiter *FixedWindowLimiter
	if ok, _ := nilLimiter.Allow(context.Background(), "k"); ok {
		t.Fatalf("nil limiter should deny")
	}
}
