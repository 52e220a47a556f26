package middleware

import (
	"testing"
	"time"
)

func TestRateLimiterRefillsWholeIntervals(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second)
	rl.now = func() time.Time { return now }

	if !rl.allow("a") || !rl.allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.allow("a") {
		t.Fatal("third request inside the interval should be limited")
	}
	if !rl.allow("b") {
		t.Fatal("keys must not share a bucket")
	}

	now = now.Add(500 * time.Millisecond)
	if rl.allow("a") {
		t.Fatal("partial interval must not refill")
	}

	now = now.Add(600 * time.Millisecond)
	if !rl.allow("a") {
		t.Fatal("bucket should refill after a full interval")
	}
}

func TestRateLimiterCleanup(t *testing.T) {
	now := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, time.Second)
	rl.now = func() time.Time { return now }

	rl.allow("a")
	now = now.Add(10 * time.Second)
	rl.cleanup()

	if len(rl.visitors) != 0 {
		t.Errorf("visitors = %d, want 0", len(rl.visitors))
	}
}
