package ratelimit

import (
	"context"
	"testing"
	"time"
)

var (
	_ Limiter = (*FixedWindowLimiter)(nil)
	_ Limiter = (*TokenBucketLimiter)(nil)
)

func TestTokenBucketLimiterBurst(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(3, time.Minute)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if !limiter.Allow(ctx, "ip-1").Allowed {
			t.Fatalf("request %d should pass", i)
		}
	}
	d := limiter.Allow(ctx, "ip-1")
	if d.Allowed {
		t.Fatalf("fourth request should be blocked")
	}
	// 3 per minute refills one token every 20s.
	if d.RetryAfter <= 0 || d.RetryAfter > 20*time.Second {
		t.Fatalf("RetryAfter = %v", d.RetryAfter)
	}
	if !limiter.Allow(ctx, "ip-2").Allowed {
		t.Fatalf("other keys keep their own bucket")
	}
}

func TestTokenBucketLimiterRejectionDoesNotConsume(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(1, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	ctx := context.Background()
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("first request should pass")
	}
	for i := 0; i < 5; i++ {
		limiter.Allow(ctx, "ip-1")
	}
	time.Sleep(80 * time.Millisecond)
	if !limiter.Allow(ctx, "ip-1").Allowed {
		t.Fatalf("bucket should have refilled despite rejected calls")
	}
}

func TestTokenBucketLimiterCleanup(t *testing.T) {
	limiter, err := NewTokenBucketLimiter(1, time.Millisecond)
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}
	limiter.Allow(context.Background(), "ip-1")
	time.Sleep(10 * time.Millisecond)
	limiter.Cleanup()
	if n := limiter.size(); n != 0 {
		t.Fatalf("expected idle visitor to be removed, %d left", n)
	}
}

func TestTokenBucketLimiterRejectsBadConfig(t *testing.T) {
	if _, err := NewTokenBucketLimiter(0, time.Minute); err == nil {
		t.Fatalf("expected error for zero limit")
	}
}

func TestDecisionRetryAfterSeconds(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want int
	}{
		{0, 1},
		{300 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{time.Minute, 60},
	}
	for _, tc := range cases {
		if got := (Decision{RetryAfter: tc.in}).RetryAfterSeconds(); got != tc.want {
			t.Fatalf("RetryAfterSeconds(%v) = %d want %d", tc.in, got, tc.want)
		}
	}
}
