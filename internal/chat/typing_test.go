package chat

import (
	"testing"
	"time"
)

func TestTypingThrottle(t *testing.T) {
	tracker := NewTypingTracker(nil, 5*time.Second, 3*time.Second)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	key := typingKey("t1", "u1")

	if !tracker.shouldWrite(key, base) {
		t.Fatal("first write must pass the throttle")
	}
	if tracker.shouldWrite(key, base.Add(time.Second)) {
		t.Error("write inside the throttle window must be suppressed")
	}
	if tracker.shouldWrite(key, base.Add(2900*time.Millisecond)) {
		t.Error("write just inside the throttle window must be suppressed")
	}
	if !tracker.shouldWrite(key, base.Add(3*time.Second)) {
		t.Error("write at the throttle boundary must pass")
	}

	// Independent keys throttle independently
	other := typingKey("t1", "u2")
	if !tracker.shouldWrite(other, base.Add(3100*time.Millisecond)) {
		t.Error("another user's first write must pass regardless of u1's window")
	}
}

func TestTypingKeyFormat(t *testing.T) {
	if got := typingKey("train-1", "user-9"); got != "typing:train-1:user-9" {
		t.Errorf("unexpected key format: %s", got)
	}
}
