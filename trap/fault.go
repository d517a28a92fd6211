package trap

import "github.com/tinykernel-go/tinykernel/task"

// ExceptionFrame is the register snapshot an exception gate saves,
// the Go analogue of exception_frame_t: everything task.Frame carries
// plus the vector number and the CPU-pushed error code faults like
// #GP and #PF attach.
type ExceptionFrame struct {
	task.Frame
	Num       uint32
	ErrorCode uint32
}

// General-protection error-code bits (irq.c's ERR_EXT/ERR_IDT).
const (
	errExt = 1 << 0
	errIDT = 1 << 1
)

// Page-fault error-code bits (irq.c's ERR_PAGE_P/ERR_PAGE_WR/ERR_PAGE_US).
const (
	errPageP  = 1 << 0
	errPageWR = 1 << 1
	errPageUS = 1 << 2
)

func (k *Kernel) dumpCoreRegs(f *ExceptionFrame) {
	ss, esp := f.DS, f.ESP
	if f.CS&0x3 != 0 {
		ss, esp = f.SS3, f.ESP3
	}
	k.logf("IRQ: %d, error code: %d", f.Num, f.ErrorCode)
	k.logf("CS: %d DS: %d ES: %d SS: %d FS: %d GS: %d", f.CS, f.DS, f.ES, ss, f.FS, f.GS)
	k.logf("EAX: 0x%x EBX: 0x%x ECX: 0x%x EDX: 0x%x EDI: 0x%x ESI: 0x%x EBP: 0x%x ESP: 0x%x",
		f.EAX, f.EBX, f.ECX, f.EDX, f.EDI, f.ESI, f.EBP, esp)
	k.logf("EIP: 0x%x EFLAGS: 0x%x", f.EIP, f.EFlags)
}

// handleDefault is do_default_handler: log and halt. There is no real
// CPU to halt, so this reports the fault and returns true to tell the
// boot loop to stop scheduling entirely (the kernel-panic path), the
// same terminal outcome hlt()'s infinite loop produces.
func (k *Kernel) handleDefault(message string, f *ExceptionFrame) bool {
	k.logf("---------------")
	k.logf("IRQ/Exception happened: %s", message)
	k.dumpCoreRegs(f)
	return true
}

// HandleUnknown, HandleDivider, ... stand in for the exception_handler_*
// trampolines irq_init installs per vector; every one of them not
// separately named below (debug, NMI, breakpoint, overflow, bound
// range, invalid opcode, device unavailable, double fault, invalid
// TSS, segment not present, stack-segment fault, FPU error, alignment
// check, machine check, SIMD, virtualization) funnels through
// HandleDefault the way do_handler_unknown and its siblings all funnel
// through do_default_handler.
func (k *Kernel) HandleUnknown(f *ExceptionFrame) bool {
	return k.handleDefault("unknown exception", f)
}
func (k *Kernel) HandleDefault(message string, f *ExceptionFrame) bool {
	return k.handleDefault(message, f)
}

// HandleGeneralProtection implements do_handler_general_protection: a
// #GP trapped from user mode kills the offending task (sys_exit with
// the error code as its exit status); one trapped from kernel mode is
// unrecoverable and halts the kernel.
func (k *Kernel) HandleGeneralProtection(t *task.Task, f *ExceptionFrame) bool {
	k.logf("--------------------------------")
	k.logf("IRQ/Exception happened: General Protection.")
	if f.ErrorCode&errExt != 0 {
		k.logf("the exception occurred during delivery of an event external to the program.")
	} else {
		k.logf("the exception occurred during delivery of a software interrupt.")
	}
	if f.ErrorCode&errIDT != 0 {
		k.logf("the index portion of the error code refers to a gate descriptor in the IDT")
	} else {
		k.logf("the index refers to a descriptor in the GDT")
	}
	k.logf("segment index: %d", f.ErrorCode&0xFFF8)
	k.dumpCoreRegs(f)

	if f.CS&0x3 != 0 {
		k.Sched.Exit(t, int(int32(f.ErrorCode)))
		return false
	}
	return true
}

// HandlePageFault implements do_handler_page_fault: always fatal in
// this kernel, which never demand-pages or grows a stack on fault.
// faultAddr is the simulated CR2 value (the address that faulted).
func (k *Kernel) HandlePageFault(f *ExceptionFrame, faultAddr uint32) bool {
	k.logf("--------------------------------")
	k.logf("IRQ/Exception happened: Page fault.")
	if f.ErrorCode&errPageP != 0 {
		k.logf("\tpage-level protection violation: 0x%x.", faultAddr)
	} else {
		k.logf("\tpage doesn't present 0x%x", faultAddr)
	}
	if f.ErrorCode&errPageWR != 0 {
		k.logf("\tthe access causing the fault was a read.")
	} else {
		k.logf("\tthe access causing the fault was a write.")
	}
	if f.ErrorCode&errPageUS != 0 {
		k.logf("\ta user-mode access caused the fault.")
	} else {
		k.logf("\ta supervisor-mode access caused the fault.")
	}
	k.dumpCoreRegs(f)
	return true
}
