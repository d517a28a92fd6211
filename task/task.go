// Package task implements the process table and round-robin
// scheduler: a fixed-size task table, three task lists (ready,
// sleeping, and the all-tasks list used by fork/wait/exit
// bookkeeping), and the task lifecycle operations (fork, exec, wait,
// exit, yield, sleep, the timer tick).
//
// Grounded on task.c throughout; modeled as a synchronous state
// machine the way go-fuse's fuse/handle.go manages its
// portableHandleMap — every operation is a plain method call against
// shared state, not a goroutine-per-task continuation, which keeps
// the scheduler directly unit-testable. Task identity is a monotonic
// counter rather than the slot's memory address, and the process
// table and mount/file tables live on an explicit *task.Scheduler
// instead of as file-scope globals.
package task

import (
	"github.com/tinykernel-go/tinykernel/internal/mem"
	"github.com/tinykernel-go/tinykernel/internal/tss"
)

// State is one of the task lifecycle states.
type State int

const (
	Created State = iota
	Ready
	Running
	Sleeping
	Waiting
	Zombie
)

func (s State) String() string {
	switch s {
	case Created:
		return "CREATED"
	case Ready:
		return "READY"
	case Running:
		return "RUNNING"
	case Sleeping:
		return "SLEEPING"
	case Waiting:
		return "WAITING"
	case Zombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// Flags passed to Scheduler.Create, mirroring TASK_FLAGS_SYSTEM: a
// system task runs with kernel selectors and shares the kernel
// address space instead of getting a fresh one.
const (
	FlagSystem = 1 << iota
)

// OFileNR is TASK_OFILE_NR, the fixed per-task descriptor table size.
const OFileNR = 16

// TimeSliceDefault is TASK_TIME_SLICE_DEFAULT: the quantum every
// READY task is reloaded with when its slice expires.
const TimeSliceDefault = 10

// Task is one process, the Go analogue of task_t. Exactly one TSS per
// task, for exactly the task's lifetime.
type Task struct {
	id   uint64
	name string

	state      State
	sliceTicks int
	sleepTicks int
	exitStatus int

	parent   *Task
	children []*Task

	TSS  *tss.TSS
	Addr *mem.AddressSpace

	heapStart, heapEnd uint32

	ofile [OFileNR]int // vfs.Table slot index, or -1 if unused
}

// TaskName satisfies ksync.TaskHandle so the blocking primitives can
// name a blocked task without importing this package.
func (t *Task) TaskName() string { return t.name }

// ID is a monotonic identity, used in place of
// "task->pid = (uint32_t)task".
func (t *Task) ID() uint64 { return t.id }

func (t *Task) State() State { return t.state }

func (t *Task) ExitStatus() int { return t.exitStatus }

// Children returns the task's direct child list, as linked by Fork
// and reparented by Exit.
func (t *Task) Children() []*Task { return t.children }

// Fd returns the open-file slot at index fd, or -1 if unset or fd is
// out of range.
func (t *Task) Fd(fd int) int {
	if fd < 0 || fd >= OFileNR {
		return -1
	}
	return t.ofile[fd]
}

// AllocFd installs slot into the first free descriptor, returning the
// fd it was installed at or -1 if the table is full (task_alloc_fd).
func (t *Task) AllocFd(slot int) int {
	return t.allocFd(slot)
}

func (t *Task) allocFd(slot int) int {
	for i := range t.ofile {
		if t.ofile[i] == -1 {
			t.ofile[i] = slot
			return i
		}
	}
	return -1
}

// RemoveFd clears descriptor fd (task_remove_fd).
func (t *Task) RemoveFd(fd int) {
	t.removeFd(fd)
}

func (t *Task) removeFd(fd int) {
	if fd >= 0 && fd < OFileNR {
		t.ofile[fd] = -1
	}
}

// HeapEnd returns the current top of the task's heap, the break sbrk
// moves (task->heap_end).
func (t *Task) HeapEnd() uint32 { return t.heapEnd }

func newTask(id uint64, name string, addr *mem.AddressSpace) *Task {
	t := &Task{
		id:         id,
		name:       name,
		state:      Created,
		sliceTicks: TimeSliceDefault,
		sleepTicks: 0,
		exitStatus: 0,
		TSS:        tss.New(),
		Addr:       addr,
	}
	for i := range t.ofile {
		t.ofile[i] = -1
	}
	return t
}
