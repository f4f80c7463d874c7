package oversight

import (
	"testing"
	"time"
)

func TestKillSwitch_ActivateDeactivate(t *testing.T) {
	ks := NewKillSwitch()
	if ks.IsActive() {
		t.Fatal("new switch should be inactive")
	}
	if !ks.Check() {
		t.Fatal("Check should pass while inactive")
	}

	ks.Activate("ops", "runaway agent")
	if !ks.IsActive() {
		t.Error("switch should be active")
	}
	if ks.Check() {
		t.Error("Check should fail while active")
	}

	status := ks.Status()
	if status.ActivatedBy != "ops" || status.Reason != "runaway agent" {
		t.Errorf("unexpected status: %+v", status)
	}

	ks.Deactivate("ops")
	if ks.IsActive() {
		t.Error("switch should be inactive after deactivation")
	}
}

func TestKillSwitch_ActivationIsIdempotent(t *testing.T) {
	ks := NewKillSwitch()
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ks.now = func() time.Time { return clock }

	calls := 0
	ks.OnActivate(func(KillSwitchStatus) { calls++ })

	ks.Activate("ops", "first")
	clock = clock.Add(time.Minute)
	ks.Activate("someone-else", "second")

	if calls != 1 {
		t.Errorf("callback should fire once, fired %d times", calls)
	}
	status := ks.Status()
	if status.ActivatedBy != "ops" || status.Reason != "first" {
		t.Errorf("repeated activation must not overwrite metadata: %+v", status)
	}
}

func TestKillSwitch_DeactivationKeepsMetadata(t *testing.T) {
	ks := NewKillSwitch()
	ks.Activate("ops", "incident 42")
	ks.Deactivate("ops")

	status := ks.Status()
	if status.Active {
		t.Error("switch should be inactive")
	}
	if status.ActivatedBy != "ops" || status.Reason != "incident 42" {
		t.Errorf("activation metadata should survive deactivation: %+v", status)
	}
}
