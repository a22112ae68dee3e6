package gateway

import (
	"testing"
	"time"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	now := time.Now()
	l := NewRateLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	if !l.Allow("10.0.0.1") || !l.Allow("10.0.0.1") {
		t.Fatalf("expected first two requests to pass")
	}
	if l.Allow("10.0.0.1") {
		t.Fatalf("expected third request in window to be rejected")
	}

	// A different client has its own budget.
	if !l.Allow("10.0.0.2") {
		t.Fatalf("expected separate budget per client")
	}

	// The window resets after it elapses.
	now = now.Add(time.Minute)
	if !l.Allow("10.0.0.1") {
		t.Fatalf("expected fresh budget after window reset")
	}
}

func TestClientAddr(t *testing.T) {
	if got := clientAddr("192.0.2.7:4312"); got != "192.0.2.7" {
		t.Fatalf("expected host only, got %q", got)
	}
	if got := clientAddr("192.0.2.7"); got != "192.0.2.7" {
		t.Fatalf("expected passthrough without port, got %q", got)
	}
}
