package auth

import (
	"fmt"
	"testing"
	"time"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRateLimiterPerUser(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 10, 5, clock.Now)

	for i := 0; i < 5; i++ {
		if !limiter.Allow(fmt.Sprintf("10.0.0.%d", i), "admin") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("10.0.0.100", " ADMIN ") {
		t.Fatal("sixth attempt for the same user should be limited")
	}
	if !limiter.Allow("10.0.0.100", "operator") {
		t.Fatal("other users should not be limited")
	}
}

func TestRateLimiterPerIp(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 10, 5, clock.Now)

	for i := 0; i < 10; i++ {
		if !limiter.Allow("192.0.2.1", fmt.Sprintf("user-%d", i)) {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if limiter.Allow("192.0.2.1", "fresh-user") {
		t.Fatal("eleventh attempt from the same address should be limited")
	}
	if !limiter.Allow("192.0.2.2", "fresh-user") {
		t.Fatal("rejected attempt must not block another address")
	}
}

func TestRateLimiterChargesBothCounters(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 2, 5, clock.Now)

	limiter.Allow("192.0.2.1", "a")
	limiter.Allow("192.0.2.1", "b")
	// limited by address, still counted against the user
	if limiter.Allow("192.0.2.1", "c") {
		t.Fatal("expected address limit")
	}
	for i := 0; i < 4; i++ {
		limiter.Allow(fmt.Sprintf("198.51.100.%d", i), "c")
	}
	if limiter.Allow("198.51.100.200", "c") {
		t.Fatal("expected user limit after five charged attempts")
	}
}

func TestRateLimiterEmptyAddressIsUnknown(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 1, 5, clock.Now)

	if !limiter.Allow("", "a") {
		t.Fatal("first attempt should be allowed")
	}
	if limiter.Allow("  ", "b") {
		t.Fatal("blank addresses share the unknown bucket")
	}
}

func TestRateLimiterWindowExpiry(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 10, 1, clock.Now)

	if !limiter.Allow("192.0.2.1", "admin") {
		t.Fatal("first attempt should be allowed")
	}

	clock.Advance(time.Minute)
	if limiter.Allow("192.0.2.1", "admin") {
		t.Fatal("attempt exactly one window later is still inside the window")
	}

	// the rejected attempt is not recorded, so the window reopens one window after the first
	clock.Advance(time.Second)
	if !limiter.Allow("192.0.2.1", "admin") {
		t.Fatal("attempt after the window should be allowed")
	}
	if limiter.Allow("192.0.2.1", "admin") {
		t.Fatal("immediate retry should be limited again")
	}
}

func TestRateLimiterPrunesIdleKeys(t *testing.T) {
	clock := newTestClock()
	limiter := NewRateLimiter(time.Minute, 10, 5, clock.Now)

	for i := 0; i < 50; i++ {
		limiter.Allow(fmt.Sprintf("10.1.0.%d", i), fmt.Sprintf("user-%d", i))
	}
	if size := limiter.size(); size != 100 {
		t.Fatalf("expected 100 tracked keys, got %d", size)
	}

	clock.Advance(2 * time.Minute)
	limiter.Allow("10.2.0.1", "late")

	if size := limiter.size(); size != 2 {
		t.Fatalf("expected idle keys to be pruned, got %d", size)
	}
}
