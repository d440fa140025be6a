package server

import (
	"testing"
	"time"
)

func TestRateLimiterExhaustsBurst(t *testing.T) {
	limiter := newRateLimiter(3, time.Hour)

	for i := 0; i < 3; i++ {
		if !limiter.allow() {
			t.Fatalf("Expected event %d within burst to be allowed", i+1)
		}
	}
	if limiter.allow() {
		t.Error("Expected event beyond burst to be discarded")
	}
}

func TestRateLimiterRefills(t *testing.T) {
	limiter := newRateLimiter(1, 10*time.Millisecond)

	if !limiter.allow() {
		t.Fatal("Expected first event to be allowed")
	}
	if limiter.allow() {
		t.Error("Expected bucket to be empty")
	}

	time.Sleep(25 * time.Millisecond)
	if !limiter.allow() {
		t.Error("Expected bucket to refill over the interval")
	}
}

func TestRateLimiterSanitizesArguments(t *testing.T) {
	limiter := newRateLimiter(0, 0)

	if !limiter.allow() {
		t.Error("Expected a minimum capacity of one token")
	}
}
