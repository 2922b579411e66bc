package ratelimit

import (
	"testing"
	"time"
)

func TestCheck_AllowsExactlyMaxRequests(t *testing.T) {
	l := New()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		res := l.Check("caller:t1:/api/content", 5, time.Minute)
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 5-(i+1) {
			t.Errorf("request %d: expected remaining %d, got %d", i+1, 5-(i+1), res.Remaining)
		}
	}

	res := l.Check("caller:t1:/api/content", 5, time.Minute)
	if res.Allowed {
		t.Error("6th request in window should be rejected")
	}
	if res.Remaining != 0 {
		t.Errorf("expected remaining 0, got %d", res.Remaining)
	}
	if got := res.RetryAfter(now); got != time.Minute {
		t.Errorf("expected retry after 1m, got %v", got)
	}
}

func TestCheck_WindowResets(t *testing.T) {
	l := New()
	now := time.Now()
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		l.Check("k", 2, time.Minute)
	}

	now = now.Add(time.Minute)
	res := l.Check("k", 2, time.Minute)
	if !res.Allowed {
		t.Error("expected counter to reset after window")
	}
	if res.Remaining != 1 {
		t.Errorf("expected remaining 1 after reset, got %d", res.Remaining)
	}
	if !res.ResetAt.Equal(now.Add(time.Minute)) {
		t.Errorf("expected new window reset at %v, got %v", now.Add(time.Minute), res.ResetAt)
	}
}

func TestCheck_IndependentKeys(t *testing.T) {
	l := New()
	l.Check("a", 1, time.Minute)
	if res := l.Check("a", 1, time.Minute); res.Allowed {
		t.Error("expected second hit on key a rejected")
	}
	if res := l.Check("b", 1, time.Minute); !res.Allowed {
		t.Error("expected first hit on key b allowed")
	}
}
