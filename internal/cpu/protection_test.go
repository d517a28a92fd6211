package cpu

import "testing"

func TestEnterLeaveProtectionRestoresFlag(t *testing.T) {
	if !InterruptsEnabled() {
		t.Fatal("precondition: interrupts should start enabled")
	}

	s := EnterProtection()
	if InterruptsEnabled() {
		t.Error("EnterProtection did not disable interrupts")
	}
	LeaveProtection(s)
	if !InterruptsEnabled() {
		t.Error("LeaveProtection did not restore the previous flag state")
	}
}

// EnterProtection is not reentrant — a single process-wide section,
// not a per-goroutine counter — so back-to-back sections (not nested
// ones) is the shape every self-locking entry point in task/ksync
// actually uses.
func TestSequentialProtectionSections(t *testing.T) {
	for i := 0; i < 3; i++ {
		s := EnterProtection()
		LeaveProtection(s)
	}
	if !InterruptsEnabled() {
		t.Error("interrupts left disabled after sequential sections")
	}
}
