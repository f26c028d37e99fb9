package ratelimit

import (
	"testing"
	"time"
)

func TestAllowsUpToLimit(t *testing.T) {
	l := NewLimiter(3)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		allowed, _ := l.Allow("1.2.3.4")
		if !allowed {
			t.Fatalf("request %d should have been allowed", i)
		}
	}
	allowed, retryAfter := l.Allow("1.2.3.4")
	if allowed {
		t.Fatal("expected 4th request to be rejected")
	}
	if retryAfter <= 0 {
		t.Fatal("expected a positive retry-after duration")
	}
}

func TestDifferentIPsHaveIndependentWindows(t *testing.T) {
	l := NewLimiter(1)
	defer l.Stop()

	if allowed, _ := l.Allow("1.1.1.1"); !allowed {
		t.Fatal("expected first IP's first request to be allowed")
	}
	if allowed, _ := l.Allow("2.2.2.2"); !allowed {
		t.Fatal("expected second IP's first request to be allowed regardless of the first IP's usage")
	}
	if allowed, _ := l.Allow("1.1.1.1"); allowed {
		t.Fatal("expected first IP's second request to be rejected")
	}
}

func TestWindowSlidesOverTime(t *testing.T) {
	l := NewLimiter(1)
	defer l.Stop()

	w := &window{lastSeen: time.Now()}
	w.requests = []time.Time{time.Now().Add(-windowSize - time.Second)}

	allowed, _ := w.allow(1)
	if !allowed {
		t.Fatal("expected an old request outside the window to no longer count against the limit")
	}
}
