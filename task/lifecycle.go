package task

import (
	"encoding/binary"
	"fmt"

	"github.com/tinykernel-go/tinykernel/elfload"
	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/internal/mem"
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

var errShortRead = fmt.Errorf("task: short read")

// TaskStackTop, TaskStackSize and TaskArgSize lay out the user stack
// Exec builds for a freshly loaded image: the stack occupies
// [TaskStackTop-TaskStackSize, TaskStackTop), and argv is marshalled
// into the top TaskArgSize bytes of that range (MEM_TASK_STACK_TOP,
// MEM_TASK_STACK_SIZE, MEM_TASK_ARG_SIZE in the original, whose
// numeric values weren't present in the filtered source — chosen here
// to give a comfortable stack and a one-page argv block).
const (
	TaskStackTop  uint32 = 0xC0000000
	TaskStackSize uint32 = 4 * mem.PageSize
	TaskArgSize   uint32 = mem.PageSize
)

// maxArgc bounds how many argv entries Exec will marshal, standing in
// for the original's implicit reliance on a NULL-terminated argv
// array built by a well-behaved caller.
const maxArgc = 32

// syscallParamCount mirrors SYSCALL_PARAM_COUNT: copy_args leaves this
// many uint32 slots below the argv block for the next syscall's
// trapped arguments, matching the original's frame->esp computation.
const syscallParamCount = 5

const maxCString = 256

func readCString(t *Task, vaddr uint32) (string, status.Status) {
	buf := make([]byte, 0, 32)
	for i := 0; i < maxCString; i++ {
		b, err := t.Addr.CopyFromUser(vaddr+uint32(i), 1)
		if err != nil {
			return "", status.EINVAL
		}
		if b[0] == 0 {
			return string(buf), status.OK
		}
		buf = append(buf, b[0])
	}
	return "", status.EINVAL
}

// readArgv walks argvPtr's NULL-terminated char** array out of t's
// (pre-exec) address space, the Go analogue of lib_syscall.c's
// string_count plus the argv walk inside copy_args.
func readArgv(t *Task, argvPtr uint32) ([]string, status.Status) {
	if argvPtr == 0 {
		return nil, status.OK
	}
	var argv []string
	for i := 0; i < maxArgc; i++ {
		raw, err := t.Addr.CopyFromUser(argvPtr+uint32(i)*4, 4)
		if err != nil {
			return nil, status.EINVAL
		}
		ptr := binary.LittleEndian.Uint32(raw)
		if ptr == 0 {
			return argv, status.OK
		}
		s, st := readCString(t, ptr)
		if !st.Ok() {
			return nil, st
		}
		argv = append(argv, s)
	}
	return argv, status.OK
}

// copyArgs marshals argv onto the new address space's stack exactly
// as copy_args does: a task_args_t header (argc, pointer to the argv
// array) at argBase, the argv pointer array immediately after it, and
// the packed NUL-terminated strings following that.
func copyArgs(addr *mem.AddressSpace, argBase uint32, argv []string) status.Status {
	argc := uint32(len(argv))
	argvArray := argBase + 8
	cursor := argvArray + 4*argc

	ptrs := make([]byte, 4*argc)
	for i, a := range argv {
		data := append([]byte(a), 0)
		if cursor+uint32(len(data)) > argBase+TaskArgSize {
			return status.ENOMEM
		}
		if err := addr.CopyToUser(cursor, data); err != nil {
			return status.ENOMEM
		}
		binary.LittleEndian.PutUint32(ptrs[i*4:], cursor)
		cursor += uint32(len(data))
	}
	if argc > 0 {
		if err := addr.CopyToUser(argvArray, ptrs); err != nil {
			return status.ENOMEM
		}
	}

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], argc)
	binary.LittleEndian.PutUint32(header[4:8], argvArray)
	if err := addr.CopyToUser(argBase, header); err != nil {
		return status.ENOMEM
	}
	return status.OK
}

func errStatus(st status.Status) error {
	return fmt.Errorf("task: %s", st)
}

// MemoryTaskBase is the lowest virtual address a PT_LOAD segment may
// target; anything below it belongs to the loader's own mappings and
// is skipped (load_elf_file's MEMORY_TASK_BASE filter).
const MemoryTaskBase = 0x08048000

// SetFirstTask designates t as the reparenting target for exited
// tasks' orphaned children (sys_exit's "reparent to first_task").
func (s *Scheduler) SetFirstTask(t *Task) { s.firstTask = t }

// Fork implements sys_fork: allocate a task slot, deep-copy the
// parent's address space, seed the child's TSS from the trapped
// frame with eax forced to 0, inherit open files, link parent/child,
// and make the child READY. A parent with no private address space
// (a FlagSystem task) yields a child with none either. The parent's
// own return value (the child's pid) is the caller's responsibility
// to place in its own frame.
func (s *Scheduler) Fork(parent *Task, frame *Frame) (uint64, status.Status) {
	idx := s.allocSlot()
	if idx < 0 {
		return 0, status.ENOMEM
	}

	var addr *mem.AddressSpace
	if parent.Addr != nil {
		as, err := parent.Addr.CopyUVM()
		if err != nil {
			return 0, status.ENOMEM
		}
		addr = as
	}

	s.tableMu.Lock()
	s.nextID++
	id := s.nextID
	s.tableMu.Unlock()

	child := newTask(id, parent.name, addr)
	frame.ApplyTo(child)
	child.heapStart, child.heapEnd = parent.heapStart, parent.heapEnd

	for i, slot := range parent.ofile {
		if slot == -1 {
			continue
		}
		if _, st := s.files.Dup(slot); st.Ok() {
			child.ofile[i] = slot
		}
	}

	child.parent = parent
	parent.children = append(parent.children, child)

	s.tableMu.Lock()
	s.tasks[idx] = child
	s.tableMu.Unlock()

	s.Ready(child)
	return id, status.OK
}

// Exit implements sys_exit: close every open descriptor, reparent
// children to the first task (waking it if it was already WAITING on
// one of them), wake the real parent if it is WAITING, and mark the
// task ZOMBIE.
func (s *Scheduler) Exit(t *Task, code int) {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	for i, slot := range t.ofile {
		if slot != -1 {
			s.files.Close(slot)
			t.ofile[i] = -1
		}
	}

	if s.firstTask != nil && s.firstTask != t {
		for _, c := range t.children {
			c.parent = s.firstTask
			s.firstTask.children = append(s.firstTask.children, c)
		}
		t.children = nil
		if s.firstTask.state == Waiting {
			s.Ready(s.firstTask)
		}
	}

	if t.parent != nil && t.parent.state == Waiting {
		s.Ready(t.parent)
	}

	t.state = Zombie
	t.exitStatus = code
	s.removeFromReady(t)
	s.Dispatch()
}

// Wait implements sys_wait. A status.OK return carries a reaped
// child's id and exit status; status.ECHILD means the caller has no
// children at all; status.EBUSY means the caller has children but
// none are ZOMBIE yet — it has been marked WAITING and dispatched
// away, and the trap loop must call Wait again once the caller is
// scheduled to run (the same "blocked, retry on resume" convention
// package ksync's Lock/Wait use).
func (s *Scheduler) Wait(caller *Task) (uint64, int, status.Status) {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	for i, c := range caller.children {
		if c.state != Zombie {
			continue
		}
		caller.children = append(caller.children[:i], caller.children[i+1:]...)
		if c.Addr != nil {
			c.Addr.Destroy()
		}
		s.freeSlot(c)
		return c.id, c.exitStatus, status.OK
	}
	if len(caller.children) == 0 {
		return 0, 0, status.ECHILD
	}

	caller.state = Waiting
	s.removeFromReady(caller)
	s.Dispatch()
	return 0, 0, status.EBUSY
}

// Sbrk implements sys_sbrk: grow t's heap by incr bytes, rounding the
// newly covered range up to whole pages and mapping them writable, and
// return the break's old value (the POSIX sbrk convention). The
// original's sys_sbrk body was not recovered from the filtered source;
// shrinking is not supported, matching the bump-allocator behavior the
// rest of task.c's heap bookkeeping (heap_start/heap_end, never freed
// individually) implies.
func (s *Scheduler) Sbrk(t *Task, incr int) (uint32, status.Status) {
	if incr < 0 {
		return 0, status.EINVAL
	}
	old := t.heapEnd
	if incr == 0 {
		return old, status.OK
	}

	newEnd := old + uint32(incr)
	mapFrom := old &^ (mem.PageSize - 1) // AllocForRange skips pages already mapped
	if err := t.Addr.AllocForRange(mapFrom, newEnd-mapFrom, mem.Present|mem.Writable|mem.User); err != nil {
		return 0, status.ENOMEM
	}
	t.heapEnd = newEnd
	return old, status.OK
}

// fdReaderAt adapts one open vfs file to io.ReaderAt by seeking
// before each read; fine for the single-threaded, one-reader-at-a-time
// use Exec makes of it.
type fdReaderAt struct {
	files *vfs.Table
	fd    int
}

func (r fdReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if _, st := r.files.Seek(r.fd, int(off), 0); !st.Ok() {
		return 0, errStatus(st)
	}
	n, st := r.files.Read(r.fd, p)
	if !st.Ok() {
		return n, errStatus(st)
	}
	if n < len(p) {
		return n, errShortRead
	}
	return n, nil
}

// Exec implements sys_execve: load path's ELF image into a fresh
// address space, allocate and populate the new user stack with a
// marshalled argv, replace t's address space and TSS, rewrite frame
// so the trap return resumes at the new entry point instead of after
// the syscall, and destroy the old address space only once the new
// one is fully installed: after, rather than before switching cr3, so
// a failed load leaves the task able to report an error instead of
// running on a half-built address space.
//
// Any return other than status.ExecSucceeded means the exec failed
// and frame is untouched; status.ExecSucceeded means frame has been
// rewritten in place and the caller must not also write a return
// value into it.
func (s *Scheduler) Exec(t *Task, frame *Frame, path string, argvPtr uint32) status.Status {
	argv, st := readArgv(t, argvPtr)
	if !st.Ok() {
		return st
	}

	fd, st := s.files.Open(path, vfs.ORDONLY)
	if !st.Ok() {
		return st
	}
	defer s.files.Close(fd)

	img, err := elfload.Load(fdReaderAt{s.files, fd}, MemoryTaskBase)
	if err != nil {
		return status.ENOEXEC
	}

	addr, merr := s.mem.CreateUVM()
	if merr != nil {
		return status.ENOMEM
	}

	for _, seg := range img.Segments {
		if err := addr.AllocForRange(seg.Vaddr, seg.MemSize, mem.Present|mem.Writable|mem.User); err != nil {
			addr.Destroy()
			return status.ENOMEM
		}
		if seg.FileSize > 0 {
			buf := make([]byte, seg.FileSize)
			if _, st := s.files.Seek(fd, int(seg.FileOffset), 0); !st.Ok() {
				addr.Destroy()
				return st
			}
			if _, st := s.files.Read(fd, buf); !st.Ok() {
				addr.Destroy()
				return st
			}
			if err := addr.CopyToUser(seg.Vaddr, buf); err != nil {
				addr.Destroy()
				return status.EINVAL
			}
		}
		t.heapStart = seg.Vaddr + seg.MemSize
		t.heapEnd = t.heapStart
	}

	if err := addr.AllocForRange(TaskStackTop-TaskStackSize, TaskStackSize, mem.Present|mem.Writable|mem.User); err != nil {
		addr.Destroy()
		return status.ENOMEM
	}
	argBase := TaskStackTop - TaskArgSize
	if st := copyArgs(addr, argBase, argv); !st.Ok() {
		addr.Destroy()
		return st
	}

	old := t.Addr
	t.Addr = addr
	t.TSS.CR3 = addr.DirID()
	t.TSS.EIP = img.Entry
	t.TSS.ESP = argBase - 4*syscallParamCount
	t.TSS.EAX, t.TSS.EBX, t.TSS.EDX = 0, 0, 0
	t.TSS.ESI, t.TSS.EDI, t.TSS.EBP = 0, 0, 0
	if old != nil {
		old.Destroy()
	}

	frame.EIP = t.TSS.EIP
	frame.ESP = t.TSS.ESP
	frame.EAX, frame.EBX, frame.EDX = 0, 0, 0
	frame.ESI, frame.EDI, frame.EBP = 0, 0, 0

	return status.ExecSucceeded
}
