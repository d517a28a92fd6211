// Package cpu models the handful of CPU primitives the scheduler and
// drivers rely on: the interrupt-enable flag and the critical-section
// primitive built from it. On real hardware this is
// read_eflags/cli/write_eflags; here a single
// process-wide mutex stands in for "no preemption, no interrupt
// handler runs" while a critical section is held, which is exactly
// the guarantee irq_enter_protection/irq_leave_protection gives the
// original kernel on a single CPU.
package cpu

import "sync"

// State is the saved interrupt-enable flag returned by
// EnterProtection and consumed by LeaveProtection, mirroring
// irq_state_t in the original source.
type State struct {
	wasEnabled bool
}

var (
	mu      sync.Mutex
	enabled = true
)

// EnterProtection disables interrupts (blocks the timer tick and any
// IRQ-signalled wakeup from running) and returns the previous flag
// state, grounded on irq_enter_protection in cpu/irq.c.
func EnterProtection() State {
	mu.Lock()
	s := State{wasEnabled: enabled}
	enabled = false
	return s
}

// LeaveProtection restores the interrupt-enable flag saved by a
// matching EnterProtection, grounded on irq_leave_protection.
func LeaveProtection(s State) {
	enabled = s.wasEnabled
	mu.Unlock()
}

// InterruptsEnabled reports the current flag state; used by tests
// asserting that a critical section released interrupts on exit.
func InterruptsEnabled() bool {
	return enabled
}
