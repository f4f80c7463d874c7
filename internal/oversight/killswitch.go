package oversight

import (
	"sync"
	"time"
)

// KillSwitchStatus is a point-in-time snapshot of the switch state.
type KillSwitchStatus struct {
	Active      bool
	ActivatedBy string
	Reason      string
	ActivatedAt time.Time
}

// KillSwitch is the process-wide emergency stop. Construct one and hand
// the same instance to every engine that must honor it; there is no
// hidden global. Activation is idempotent, deactivation keeps the last
// activation metadata for audit.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedBy string
	reason      string
	activatedAt time.Time
	onActivate  func(KillSwitchStatus)

	now func() time.Time
}

// NewKillSwitch creates an inactive kill switch.
func NewKillSwitch() *KillSwitch {
	return &KillSwitch{now: time.Now}
}

// OnActivate registers a callback invoked synchronously on the first
// activation (not on repeated activations while already active).
func (k *KillSwitch) OnActivate(fn func(KillSwitchStatus)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.onActivate = fn
}

// Activate trips the switch. A no-op if already active.
func (k *KillSwitch) Activate(activatedBy, reason string) {
	k.mu.Lock()
	if k.active {
		k.mu.Unlock()
		return
	}
	k.active = true
	k.activatedBy = activatedBy
	k.reason = reason
	k.activatedAt = k.now()
	cb := k.onActivate
	status := k.statusLocked()
	k.mu.Unlock()

	if cb != nil {
		cb(status)
	}
}

// Deactivate clears the switch. Activation metadata is retained so the
// audit trail can still name who last tripped it.
func (k *KillSwitch) Deactivate(deactivatedBy string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = false
	_ = deactivatedBy // recorded by the caller's auditor, not here
}

// IsActive reports whether the switch is tripped.
func (k *KillSwitch) IsActive() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.active
}

// Check reports whether governed operations may proceed.
func (k *KillSwitch) Check() bool {
	return !k.IsActive()
}

// Status returns a snapshot of the current state.
func (k *KillSwitch) Status() KillSwitchStatus {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.statusLocked()
}

func (k *KillSwitch) statusLocked() KillSwitchStatus {
	return KillSwitchStatus{
		Active:      k.active,
		ActivatedBy: k.activatedBy,
		Reason:      k.reason,
		ActivatedAt: k.activatedAt,
	}
}

// Reset returns the switch to its zero state. For tests.
func (k *KillSwitch) Reset() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.active = false
	k.activatedBy = ""
	k.reason = ""
	k.activatedAt = time.Time{}
}
