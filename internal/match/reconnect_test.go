package match

import (
	"errors"
	"testing"
	"time"
)

func TestReconnectTrackerResolveBeforeExpiry(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tracker := NewReconnectTracker(
		WithReconnectWindow(15*time.Second),
		WithClock(func() time.Time { return now }),
	)
	tracker.Open("pilot-7", 1)

	index, expired, err := tracker.Resolve("pilot-7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if expired {
		t.Fatal("expected window to still be open")
	}
	if index != 1 {
		t.Fatalf("expected original index 1, got %d", index)
	}
}

func TestReconnectTrackerExpires(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tracker := NewReconnectTracker(
		WithReconnectWindow(15*time.Second),
		WithClock(func() time.Time { return now }),
	)
	tracker.Open("pilot-7", 0)

	now = now.Add(16 * time.Second)
	index, expired, err := tracker.Resolve("pilot-7")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !expired {
		t.Fatal("expected window to be expired")
	}
	if index != 0 {
		t.Fatalf("expected original index 0, got %d", index)
	}

	if _, _, err := tracker.Resolve("pilot-7"); !errors.Is(err, ErrNoReconnectWindow) {
		t.Fatalf("expected window to be cleared after expiry, got %v", err)
	}
}

func TestReconnectTrackerRemaining(t *testing.T) {
	now := time.Unix(1700000000, 0)
	tracker := NewReconnectTracker(
		WithReconnectWindow(10*time.Second),
		WithClock(func() time.Time { return now }),
	)
	tracker.Open("pilot-7", 0)

	if remaining := tracker.Remaining("pilot-7"); remaining != 10*time.Second {
		t.Fatalf("expected 10s remaining, got %v", remaining)
	}

	now = now.Add(4 * time.Second)
	if remaining := tracker.Remaining("pilot-7"); remaining != 6*time.Second {
		t.Fatalf("expected 6s remaining, got %v", remaining)
	}
}

func TestReconnectTrackerClear(t *testing.T) {
	tracker := NewReconnectTracker()
	tracker.Open("pilot-7", 1)
	tracker.Clear("pilot-7")

	if _, _, err := tracker.Resolve("pilot-7"); !errors.Is(err, ErrNoReconnectWindow) {
		t.Fatalf("expected no window after Clear, got %v", err)
	}
}

func TestReconnectTrackerResolveUnknownUsername(t *testing.T) {
	tracker := NewReconnectTracker()
	if _, _, err := tracker.Resolve("ghost"); !errors.Is(err, ErrNoReconnectWindow) {
		t.Fatalf("expected ErrNoReconnectWindow, got %v", err)
	}
}
