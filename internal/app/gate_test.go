package app

import (
	"context"
	"testing"
	"time"
)

func TestGate(t *testing.T) {
	open, err := NewGate("")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if open.Enabled() || open.Unlock("anything") != nil {
		t.Fatal("expected an empty password to disable the gate")
	}

	gate, err := NewGate("saplings")
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	if err := gate.Unlock("saplings"); err != nil {
		t.Fatalf("expected correct password to unlock, got %v", err)
	}
	if err := gate.Unlock("wrong"); err != ErrGateLocked {
		t.Fatalf("expected ErrGateLocked, got %v", err)
	}
}

func TestRedisPaymentThrottleDisabledWithoutClient(t *testing.T) {
	throttle := NewRedisPaymentThrottle(nil, "", 10, time.Minute)
	decision, err := throttle.Allow(context.Background(), ThrottleCheckout, UserSubject("u1"))
	if err != nil || decision != (ThrottleDecision{}) || !decision.Allowed() {
		t.Fatalf("expected disabled throttle, got %+v err=%v", decision, err)
	}
	if got := throttle.key(ThrottleCheckout, UserSubject("u1")); got != "tree_adoption:payment_throttle:checkout:user:u1" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := NewRedisPaymentThrottle(nil, "trees:", 10, 0).key(ThrottlePaymentIntent, ClientSubject("1.2.3.4")); got != "trees:payment_throttle:payment_intent:ip:1.2.3.4" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestThrottleDecision(t *testing.T) {
	cases := []struct {
		name     string
		decision ThrottleDecision
		allowed  bool
		retry    int
	}{
		{"under limit", ThrottleDecision{Attempts: 3, Limit: 5, RetryAfter: 30 * time.Second}, true, 30},
		{"at limit", ThrottleDecision{Attempts: 5, Limit: 5, RetryAfter: 1500 * time.Millisecond}, true, 2},
		{"over limit", ThrottleDecision{Attempts: 6, Limit: 5, RetryAfter: 42 * time.Second}, false, 42},
		{"no limit", ThrottleDecision{Attempts: 99}, true, 1},
	}
	for _, tc := range cases {
		if got := tc.decision.Allowed(); got != tc.allowed {
			t.Errorf("%s: Allowed() = %v, want %v", tc.name, got, tc.allowed)
		}
		if got := tc.decision.RetryAfterSeconds(); got != tc.retry {
			t.Errorf("%s: RetryAfterSeconds() = %d, want %d", tc.name, got, tc.retry)
		}
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(nil, "not a schedule", discardLogger())
	if err := s.Start(); err == nil {
		t.Fatal("expected invalid cron expression to fail")
	}
	<-s.Stop().Done()
}
