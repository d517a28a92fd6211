// Package tss models the per-task state block the original kernel
// switches between on a context switch: the register file plus the
// ring-0 stack pointer a trap into the kernel restores. There is no
// real hardware task-switch here; task.Scheduler writes this struct
// directly (Create, Fork, Exec) to record a task's context.
package tss

// TSS is one task's saved execution context. Field names follow the
// original register set; Esp0/Ss0 are the ring-0 stack a syscall or
// fault switches to, CR3 is the task's address-space id
// (mem.AddressSpace.DirID).
type TSS struct {
	Esp0, Ss0 uint32
	CR3       uint32

	EIP, EFlags            uint32
	EAX, ECX, EDX, EBX     uint32
	ESP, EBP, ESI, EDI     uint32
	ES, CS, SS, DS, FS, GS uint32
}

// EflagsIF is the interrupt-enable bit of EFlags, set on every task so
// that a freshly dispatched task runs with interrupts simulated on.
const EflagsIF = 1 << 9

// New returns a TSS with interrupts enabled and every other field
// zeroed, the state a brand new task starts from before its entry
// point and stack are installed.
func New() *TSS {
	return &TSS{EFlags: EflagsIF}
}
