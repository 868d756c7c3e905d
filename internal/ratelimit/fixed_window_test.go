package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestFixedWindowLimiterBlocksAfterLimit(t *testing.T) {
	_, client := newClient(t)
	limiter, err := NewFixedWindowLimiter(client, "test:ratelimit", 2, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	if !limiter.Allow(ctx, "ip-1") || !limiter.Allow(ctx, "ip-1") {
		t.Fatalf("first two requests should pass")
	}
	if limiter.Allow(ctx, "ip-1") {
		t.Fatalf("third request should be blocked")
	}
	if !limiter.Allow(ctx, "ip-2") {
		t.Fatalf("other keys keep their own quota")
	}
}

func TestFixedWindowLimiterFailsClosed(t *testing.T) {
	mr, client := newClient(t)
	limiter, err := NewFixedWindowLimiter(client, "", 1, time.Second)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	mr.Close()
	if limiter.Allow(context.Background(), "ip-1") {
		t.Fatalf("limiter should fail closed on redis errors")
	}
}

func TestNewFixedWindowLimiterValidates(t *testing.T) {
	if _, err := NewFixedWindowLimiter(nil, "p", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
	_, client := newClient(t)
	if _, err := NewFixedWindowLimiter(client, "p", 0, time.Second); err == nil {
		t.Fatalf("expected error for zero limit")
	}
	var nilLimiter *FixedWindowLimiter
	if nilLimiter.Allow(context.Background(), "k") {
		t.Fatalf("nil limiter must deny")
	}
}
