// Package trap is the syscall gate: a fixed table mapping a SyscallID
// to a handler, grounded directly on do_handler_syscall's sys_table (a
// function-pointer array indexed by frame->func_id) and, for the
// table-of-handler-descriptors shape itself, on go-fuse's
// fuse/opcode.go operationHandlers table assembled in init().
package trap

import (
	"log"
	"sync"

	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/task"
)

// SyscallID is the func_id field of a trapped syscall_args_t — the
// kernel's fixed syscall set.
type SyscallID uint32

const (
	SysSleep SyscallID = iota
	SysGetPID
	SysPrintMsg
	SysFork
	SysExecve
	SysYield
	SysOpen
	SysRead
	SysWrite
	SysClose
	SysLseek
	SysIsATTY
	SysFstat
	SysSbrk
	SysDup
	SysExit
	SysWait
	SysOpenDir
	SysReadDir
	SysCloseDir
	SysIoctl
	SysUnlink

	syscallCount
)

// Kernel bundles the scheduler every handler needs to reach the
// current task, the VFS table, and the memory manager — the "inject a
// single Kernel context" shape the rest of this module follows instead
// of file-scope globals.
type Kernel struct {
	Sched *task.Scheduler
	Log   *log.Logger

	dirMu  sync.Mutex
	dirs   map[int]interface{} // handle -> vfs.Dir, opendir/readdir/closedir's cursor
	nextID int
}

type handlerFunc func(k *Kernel, t *task.Task, f *task.Frame) int32

// handler is the Go analogue of one sys_table entry, widened the way
// operationHandler widens FUSE's opcode table with a name for logging
// unknown/unimplemented calls.
type handler struct {
	Name string
	Func handlerFunc
}

var handlers []*handler

func getHandler(id SyscallID) *handler {
	if id >= syscallCount {
		return nil
	}
	return handlers[id]
}

func init() {
	handlers = make([]*handler, syscallCount)
	for i := range handlers {
		handlers[i] = &handler{Name: "UNKNOWN"}
	}

	reg := func(id SyscallID, name string, fn handlerFunc) {
		handlers[id] = &handler{Name: name, Func: fn}
	}

	reg(SysSleep, "SLEEP", sysSleep)
	reg(SysGetPID, "GETPID", sysGetPID)
	reg(SysPrintMsg, "PRINT_MSG", sysPrintMsg)
	reg(SysFork, "FORK", sysFork)
	reg(SysExecve, "EXECVE", sysExecve)
	reg(SysYield, "YIELD", sysYield)
	reg(SysOpen, "OPEN", sysOpen)
	reg(SysRead, "READ", sysRead)
	reg(SysWrite, "WRITE", sysWrite)
	reg(SysClose, "CLOSE", sysClose)
	reg(SysLseek, "LSEEK", sysLseek)
	reg(SysIsATTY, "ISATTY", sysIsATTY)
	reg(SysFstat, "FSTAT", sysFstat)
	reg(SysSbrk, "SBRK", sysSbrk)
	reg(SysDup, "DUP", sysDup)
	reg(SysExit, "EXIT", sysExit)
	reg(SysWait, "WAIT", sysWait)
	reg(SysOpenDir, "OPENDIR", sysOpenDir)
	reg(SysReadDir, "READDIR", sysReadDir)
	reg(SysCloseDir, "CLOSEDIR", sysCloseDir)
	reg(SysIoctl, "IOCTL", sysIoctl)
	reg(SysUnlink, "UNLINK", sysUnlink)
}

// Dispatch implements do_handler_syscall: look func_id up in the
// table and run its handler, writing the syscall's return value into
// f.EAX, or status.ENOSYS if func_id names nothing. A successful EXECVE is
// the one exception: sysExecve's handler has already rewritten f in
// place (new EIP/ESP, zeroed registers) for the trap return to resume
// at the exec'd image's entry point, so f.EAX must be left alone.
func (k *Kernel) Dispatch(t *task.Task, f *task.Frame) {
	h := getHandler(SyscallID(f.FuncID))
	if h == nil || h.Func == nil {
		k.logf("task: %s, unknown syscall: %d", t.TaskName(), f.FuncID)
		ret := int32(status.ENOSYS)
		f.EAX = uint32(ret)
		return
	}
	ret := h.Func(k, t, f)
	if SyscallID(f.FuncID) == SysExecve && status.Status(ret) == status.ExecSucceeded {
		return
	}
	f.EAX = uint32(ret)
}

func (k *Kernel) logf(format string, args ...interface{}) {
	if k.Log != nil {
		k.Log.Printf(format, args...)
	}
}

// storeDir and dir give opendir/readdir/closedir a small integer
// handle for a vfs.Dir cursor, standing in for the original's raw DIR*
// pointer crossing the syscall boundary.
func (k *Kernel) storeDir(d interface{}) int {
	k.dirMu.Lock()
	defer k.dirMu.Unlock()
	if k.dirs == nil {
		k.dirs = make(map[int]interface{})
	}
	k.nextID++
	id := k.nextID
	k.dirs[id] = d
	return id
}

func (k *Kernel) dir(id int) (interface{}, bool) {
	k.dirMu.Lock()
	defer k.dirMu.Unlock()
	d, ok := k.dirs[id]
	return d, ok
}

func (k *Kernel) dropDir(id int) {
	k.dirMu.Lock()
	defer k.dirMu.Unlock()
	delete(k.dirs, id)
}
