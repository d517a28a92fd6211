package task

import (
	"sync"

	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/internal/mem"
	"github.com/tinykernel-go/tinykernel/ksync"
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

// Scheduler owns the fixed-size task table and the ready/sleep lists,
// injected explicitly (via New) rather than held as file-scope
// globals, so a single Kernel context is wired together at boot
// instead of relying on package-level state.
//
// The ready list holds every READY *and* RUNNING task, in round-robin
// order; Dispatch always re-reads its head rather than popping, so a
// still-runnable current task that nothing preempted is simply found
// again (task_next_run/task_dispatch). Tasks leave the list only by
// blocking, sleeping, or exiting.
type Scheduler struct {
	tableMu sync.Mutex
	tasks   []*Task // TASK_NR slots; nil marks a free slot

	ready     []*Task
	sleeping  []*Task
	current   *Task
	idle      *Task
	firstTask *Task

	mem   *mem.Manager
	files *vfs.Table

	nextID uint64
}

var (
	_ ksync.Scheduler  = (*Scheduler)(nil)
	_ ksync.TaskHandle = (*Task)(nil)
)

// New creates a scheduler with room for tableSize tasks, backed by m
// for address-space allocation and files for descriptor-table
// operations during fork/exit.
func New(tableSize int, m *mem.Manager, files *vfs.Table) *Scheduler {
	return &Scheduler{
		tasks: make([]*Task, tableSize),
		mem:   m,
		files: files,
	}
}

func (s *Scheduler) allocSlot() int {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	for i, t := range s.tasks {
		if t == nil {
			return i
		}
	}
	return -1
}

func (s *Scheduler) freeSlot(t *Task) {
	s.tableMu.Lock()
	defer s.tableMu.Unlock()
	for i, cur := range s.tasks {
		if cur == t {
			s.tasks[i] = nil
			return
		}
	}
}

// Create allocates a task slot and a TSS: if flags includes
// FlagSystem the task shares the kernel address space (addr may be
// nil, e.g. for the idle task), otherwise a fresh user address space
// is created (task_init).
func (s *Scheduler) Create(name string, flags int, entry, stackTop uint32) (*Task, status.Status) {
	idx := s.allocSlot()
	if idx < 0 {
		return nil, status.ENOMEM
	}

	var addr *mem.AddressSpace
	if flags&FlagSystem == 0 {
		as, err := s.mem.CreateUVM()
		if err != nil {
			return nil, status.ENOMEM
		}
		addr = as
	}

	s.tableMu.Lock()
	s.nextID++
	id := s.nextID
	s.tableMu.Unlock()

	t := newTask(id, name, addr)
	t.TSS.EIP = entry
	t.TSS.ESP = stackTop
	if addr != nil {
		t.TSS.CR3 = addr.DirID()
	}

	s.tableMu.Lock()
	s.tasks[idx] = t
	s.tableMu.Unlock()
	return t, status.OK
}

// SetIdle designates t as the task run when nothing else is READY. It
// is never inserted into the ready list (task_start excludes it).
func (s *Scheduler) SetIdle(t *Task) {
	s.idle = t
	s.current = t
	t.state = Running
}

// Start makes t READY and appends it to the ready list (task_start).
func (s *Scheduler) Start(t *Task) {
	s.Ready(t)
}

func (s *Scheduler) removeFromReady(t *Task) {
	for i, cur := range s.ready {
		if cur == t {
			s.ready = append(s.ready[:i], s.ready[i+1:]...)
			return
		}
	}
}

// Block implements ksync.Scheduler: removes t from the ready list and
// marks it WAITING. Callers are expected to already be inside a
// cpu.EnterProtection section (task_set_block).
func (s *Scheduler) Block(h ksync.TaskHandle) {
	t := h.(*Task)
	t.state = Waiting
	s.removeFromReady(t)
}

// Ready implements ksync.Scheduler: moves t to the tail of the ready
// list and marks it READY, whether t is newly runnable or is being
// round-robined after using its slice (task_set_ready).
func (s *Scheduler) Ready(h ksync.TaskHandle) {
	t := h.(*Task)
	s.removeFromReady(t)
	t.state = Ready
	s.ready = append(s.ready, t)
}

// Dispatch implements ksync.Scheduler: switches to the task at the
// head of the ready list, or to idle when the list is empty, and does
// nothing if that task is already current (task_next_run/
// task_dispatch). There is no real register/stack switch to perform,
// so this only updates scheduler state.
func (s *Scheduler) Dispatch() {
	var next *Task
	if len(s.ready) > 0 {
		next = s.ready[0]
	} else {
		next = s.idle
	}
	if next == s.current {
		return
	}
	if s.current != nil && s.current.state == Running {
		s.current.state = Ready
	}
	next.state = Running
	s.current = next
}

// Current returns the running task.
func (s *Scheduler) Current() *Task { return s.current }

// Files returns the VFS table tasks share their descriptors through,
// the handle trap handlers need for every file-touching syscall.
func (s *Scheduler) Files() *vfs.Table { return s.files }

// Mem returns the physical/virtual memory manager, the handle sbrk
// needs to back new heap pages.
func (s *Scheduler) Mem() *mem.Manager { return s.mem }

// Yield implements sys_yield: give up the remainder of the slice
// voluntarily.
func (s *Scheduler) Yield() {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	if s.current != nil && s.current != s.idle {
		s.Ready(s.current)
	}
	s.Dispatch()
}

// Sleep implements sys_msleep: remove the current task from the ready
// list, park it on the sleep list for the given tick count, and
// dispatch another task (task_set_sleep).
func (s *Scheduler) Sleep(ticks int) {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	cur := s.current
	cur.state = Sleeping
	cur.sleepTicks = ticks
	s.removeFromReady(cur)
	s.sleeping = append(s.sleeping, cur)
	s.Dispatch()
}

// TimeTick implements task_time_tick: decrement the current task's
// slice and round-robin it on expiry, walk the sleep list waking
// anything due, then dispatch.
func (s *Scheduler) TimeTick() {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	if cur := s.current; cur != nil && cur != s.idle {
		cur.sliceTicks--
		if cur.sliceTicks <= 0 {
			cur.sliceTicks = TimeSliceDefault
			s.Ready(cur)
		}
	}

	remaining := s.sleeping[:0]
	for _, t := range s.sleeping {
		t.sleepTicks--
		if t.sleepTicks <= 0 {
			s.Ready(t)
		} else {
			remaining = append(remaining, t)
		}
	}
	s.sleeping = remaining

	s.Dispatch()
}
