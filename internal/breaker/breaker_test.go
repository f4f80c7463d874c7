package breaker

import (
	"testing"
	"time"
)

func testBreaker(cfg Config, clock *time.Time) *CircuitBreaker {
	cb := New(cfg)
	cb.now = func() time.Time { return *clock }
	return cb
}

func TestBreaker_OpensAtThresholdNotBefore(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 5, SuccessThreshold: 2, Timeout: time.Minute}, &clock)

	for i := 0; i < 4; i++ {
		cb.RecordFailure("db")
		if cb.IsOpen("db") {
			t.Fatalf("circuit should stay closed after %d failures", i+1)
		}
	}

	cb.RecordFailure("db")
	if !cb.IsOpen("db") {
		t.Error("circuit should open at the fifth failure")
	}
	if cb.StateOf("db") != StateOpen {
		t.Errorf("expected OPEN, got %s", cb.StateOf("db"))
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	cb.RecordFailure("db")
	cb.RecordSuccess("db")
	cb.RecordFailure("db")
	cb.RecordFailure("db")

	if cb.IsOpen("db") {
		t.Error("success should have reset the consecutive failure count")
	}
	cb.RecordFailure("db")
	if !cb.IsOpen("db") {
		t.Error("three consecutive failures after the reset should open")
	}
}

func TestBreaker_CooldownTransitionsToHalfOpen(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	if !cb.IsOpen("db") {
		t.Fatal("circuit should be open")
	}

	// Cooldown elapses: the check itself moves the circuit to half-open
	// and lets the probe through.
	clock = clock.Add(time.Minute)
	if cb.IsOpen("db") {
		t.Error("elapsed cooldown should let the probe through")
	}
	if cb.StateOf("db") != StateHalfOpen {
		t.Errorf("expected HALF_OPEN, got %s", cb.StateOf("db"))
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	clock = clock.Add(time.Minute)
	cb.IsOpen("db") // probe admitted, now half-open

	cb.RecordFailure("db")
	if cb.StateOf("db") != StateOpen {
		t.Errorf("half-open failure should reopen, got %s", cb.StateOf("db"))
	}
	if !cb.IsOpen("db") {
		t.Error("reopened circuit should block before the new cooldown elapses")
	}
}

func TestBreaker_HalfOpenSuccessesClose(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	clock = clock.Add(time.Minute)
	cb.IsOpen("db") // half-open

	cb.RecordSuccess("db")
	if cb.StateOf("db") != StateHalfOpen {
		t.Fatalf("one success should not close yet, got %s", cb.StateOf("db"))
	}
	cb.RecordSuccess("db")
	if cb.StateOf("db") != StateClosed {
		t.Errorf("two successes should close, got %s", cb.StateOf("db"))
	}
}

func TestBreaker_ToolsAreIndependent(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	if !cb.IsOpen("db") {
		t.Fatal("db circuit should be open")
	}
	if cb.IsOpen("search") {
		t.Error("search circuit should be unaffected")
	}
}

func TestBreaker_Reset(t *testing.T) {
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cb := testBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute}, &clock)

	cb.RecordFailure("db")
	cb.Reset("db")
	if cb.IsOpen("db") {
		t.Error("reset circuit should be closed")
	}
	if cb.StateOf("db") != StateClosed {
		t.Errorf("expected CLOSED after reset, got %s", cb.StateOf("db"))
	}
}
