package server

import (
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIPRateLimiterEvictsIdleBuckets(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newIPRateLimiter(rate.Limit(1), 1)
	limiter.clock = func() time.Time { return now }
	limiter.lastSweep = now

	active := limiter.limiterFor("10.0.0.1")
	limiter.limiterFor("10.0.0.2")

	now = now.Add(5 * time.Minute)
	if limiter.limiterFor("10.0.0.1") != active {
		t.Fatalf("expected the same bucket for a returning address")
	}

	now = now.Add(6 * time.Minute)
	limiter.limiterFor("10.0.0.3")

	if len(limiter.buckets) != 2 {
		t.Fatalf("expected 2 buckets after sweep, got %d", len(limiter.buckets))
	}
	if _, ok := limiter.buckets["10.0.0.2"]; ok {
		t.Fatalf("idle bucket should have been evicted")
	}
	if limiter.buckets["10.0.0.1"].limiter != active {
		t.Fatalf("recently used bucket should survive the sweep")
	}
}

func TestIPRateLimiterKeepsExhaustedBucketWhileActive(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	limiter := newIPRateLimiter(rate.Every(time.Hour), 1)
	limiter.clock = func() time.Time { return now }
	limiter.lastSweep = now

	if !limiter.limiterFor("10.0.0.1").Allow() {
		t.Fatalf("first request should be allowed")
	}
	now = now.Add(time.Minute)
	if limiter.limiterFor("10.0.0.1").Allow() {
		t.Fatalf("second request should be limited")
	}
}
