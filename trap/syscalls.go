package trap

import (
	"encoding/binary"

	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/task"
	"github.com/tinykernel-go/tinykernel/vfs"
)

// maxCString bounds how far readCString will walk a user pointer
// looking for a NUL terminator, standing in for the original's
// implicit reliance on well-formed C strings.
const maxCString = 256

func readCString(t *task.Task, vaddr uint32) (string, status.Status) {
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

func fdSlot(t *task.Task, fd int) (int, status.Status) {
	slot := t.Fd(fd)
	if slot < 0 {
		return 0, status.EINVAL
	}
	return slot, status.OK
}

// sysSleep implements sys_msleep's ms->ticks conversion: clamp below
// one tick up to one tick, then round the remainder up to a whole
// tick, so a sleep always blocks for at least as long as requested.
func sysSleep(k *Kernel, t *task.Task, f *task.Frame) int32 {
	ms := f.Arg0
	if ms < cpu.TickMillis {
		ms = cpu.TickMillis
	}
	ticks := (ms + cpu.TickMillis - 1) / cpu.TickMillis
	k.Sched.Sleep(int(ticks))
	return int32(status.OK)
}

func sysGetPID(k *Kernel, t *task.Task, f *task.Frame) int32 {
	return int32(t.ID())
}

// sysFork returns the child's pid to the parent; the child itself
// resumes with eax already forced to 0 by Frame.ApplyTo.
func sysFork(k *Kernel, t *task.Task, f *task.Frame) int32 {
	id, st := k.Sched.Fork(t, f)
	if !st.Ok() {
		return int32(st)
	}
	return int32(id)
}

// sysExecve replaces t's image: on success Exec has already rewritten
// f in place (new EIP/ESP) so the trap return resumes at the new
// entry point instead of after this syscall, and Dispatch must not
// overwrite f.EAX with sysExecve's own return value — see
// status.ExecSucceeded. f.Arg2 (envp) is read by nothing, matching
// copy_args, which only ever marshals argv.
func sysExecve(k *Kernel, t *task.Task, f *task.Frame) int32 {
	path, st := readCString(t, f.Arg0)
	if !st.Ok() {
		return int32(st)
	}
	return int32(k.Sched.Exec(t, f, path, f.Arg1))
}

func sysYield(k *Kernel, t *task.Task, f *task.Frame) int32 {
	k.Sched.Yield()
	return int32(status.OK)
}

func sysOpen(k *Kernel, t *task.Task, f *task.Frame) int32 {
	name, st := readCString(t, f.Arg0)
	if !st.Ok() {
		return int32(st)
	}
	slot, st := k.Sched.Files().Open(name, int(f.Arg1))
	if !st.Ok() {
		return int32(st)
	}
	fd := t.AllocFd(slot)
	if fd < 0 {
		k.Sched.Files().Close(slot)
		return int32(status.EMFILE)
	}
	return int32(fd)
}

func sysRead(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	buf := make([]byte, f.Arg2)
	n, st := k.Sched.Files().Read(slot, buf)
	if !st.Ok() {
		return int32(st)
	}
	if err := t.Addr.CopyToUser(f.Arg1, buf[:n]); err != nil {
		return int32(status.EINVAL)
	}
	return int32(n)
}

func sysWrite(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	buf, err := t.Addr.CopyFromUser(f.Arg1, int(f.Arg2))
	if err != nil {
		return int32(status.EINVAL)
	}
	n, st := k.Sched.Files().Write(slot, buf)
	if !st.Ok() {
		return int32(st)
	}
	return int32(n)
}

func sysClose(k *Kernel, t *task.Task, f *task.Frame) int32 {
	fd := int(f.Arg0)
	slot, st := fdSlot(t, fd)
	if !st.Ok() {
		return int32(st)
	}
	st = k.Sched.Files().Close(slot)
	t.RemoveFd(fd)
	return int32(st)
}

func sysLseek(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	n, st := k.Sched.Files().Seek(slot, int(int32(f.Arg1)), int(f.Arg2))
	if !st.Ok() {
		return int32(st)
	}
	return int32(n)
}

func sysIsATTY(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	if k.Sched.Files().IsTTY(slot) {
		return 1
	}
	return 0
}

func sysSbrk(k *Kernel, t *task.Task, f *task.Frame) int32 {
	old, st := k.Sched.Sbrk(t, int(int32(f.Arg0)))
	if !st.Ok() {
		return int32(st)
	}
	return int32(old)
}

// fstat layout: 8 bytes of little-endian size, 4 bytes of file type —
// vfs.Stat's two fields, not the full POSIX struct stat sys_fstat
// fills in (that struct's exact field order wasn't recovered from the
// filtered source).
func sysFstat(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	var s vfs.Stat
	st = k.Sched.Files().Stat(slot, &s)
	if !st.Ok() {
		return int32(st)
	}
	out := make([]byte, 12)
	binary.LittleEndian.PutUint64(out[0:8], uint64(s.Size))
	binary.LittleEndian.PutUint32(out[8:12], uint32(s.Type))
	if err := t.Addr.CopyToUser(f.Arg1, out); err != nil {
		return int32(status.EINVAL)
	}
	return int32(status.OK)
}

func sysDup(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	if _, st := k.Sched.Files().Dup(slot); !st.Ok() {
		return int32(st)
	}
	fd := t.AllocFd(slot)
	if fd < 0 {
		k.Sched.Files().Close(slot)
		return int32(status.EMFILE)
	}
	return int32(fd)
}

func sysExit(k *Kernel, t *task.Task, f *task.Frame) int32 {
	k.Sched.Exit(t, int(int32(f.Arg0)))
	return int32(status.OK)
}

// sysWait writes the reaped child's exit status through the pointer
// in Arg0 and returns its pid, mirroring sys_wait(int *status). A
// status.EBUSY return means t has been parked WAITING with no zombie
// child yet — the boot loop must leave this frame untouched and
// re-dispatch this same syscall once t is scheduled to run again,
// rather than treating -EBUSY as the syscall's real return value.
func sysWait(k *Kernel, t *task.Task, f *task.Frame) int32 {
	id, exitStatus, st := k.Sched.Wait(t)
	if st == status.EBUSY {
		return int32(status.EBUSY)
	}
	if !st.Ok() {
		return int32(st)
	}
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, uint32(int32(exitStatus)))
	if err := t.Addr.CopyToUser(f.Arg0, out); err != nil {
		return int32(status.EINVAL)
	}
	return int32(id)
}

func sysOpenDir(k *Kernel, t *task.Task, f *task.Frame) int32 {
	path, st := readCString(t, f.Arg0)
	if !st.Ok() {
		return int32(st)
	}
	d, st := k.Sched.Files().OpenDir(path)
	if !st.Ok() {
		return int32(st)
	}
	return int32(k.storeDir(d))
}

// readdir layout at Arg1: 28 bytes of NUL-padded name, 4 bytes of
// little-endian file type, mirroring diritem_t's own name/attr split
// closely enough for a shell's ls to render without needing the
// on-disk entry's exact byte layout.
func sysReadDir(k *Kernel, t *task.Task, f *task.Frame) int32 {
	d, ok := k.dir(int(f.Arg0))
	if !ok {
		return int32(status.EINVAL)
	}
	entry, st := k.Sched.Files().ReadDir(d)
	if !st.Ok() {
		return int32(st)
	}
	out := make([]byte, 32)
	copy(out[:28], entry.Name)
	binary.LittleEndian.PutUint32(out[28:32], uint32(entry.Type))
	if err := t.Addr.CopyToUser(f.Arg1, out); err != nil {
		return int32(status.EINVAL)
	}
	return int32(status.OK)
}

func sysCloseDir(k *Kernel, t *task.Task, f *task.Frame) int32 {
	id := int(f.Arg0)
	d, ok := k.dir(id)
	if !ok {
		return int32(status.EINVAL)
	}
	k.Sched.Files().CloseDir(d)
	k.dropDir(id)
	return int32(status.OK)
}

func sysIoctl(k *Kernel, t *task.Task, f *task.Frame) int32 {
	slot, st := fdSlot(t, int(f.Arg0))
	if !st.Ok() {
		return int32(st)
	}
	n, st := k.Sched.Files().Ioctl(slot, int(f.Arg1), int(f.Arg2), int(f.Arg3))
	if !st.Ok() {
		return int32(st)
	}
	return int32(n)
}

func sysUnlink(k *Kernel, t *task.Task, f *task.Frame) int32 {
	path, st := readCString(t, f.Arg0)
	if !st.Ok() {
		return int32(st)
	}
	return int32(k.Sched.Files().Unlink(path))
}

// sysPrintMsg implements sys_print_msg's log_printf(fmt, arg): the
// format string comes from user memory, the single integer argument
// from Arg1.
func sysPrintMsg(k *Kernel, t *task.Task, f *task.Frame) int32 {
	format, st := readCString(t, f.Arg0)
	if !st.Ok() {
		return int32(st)
	}
	k.logf(format, int32(f.Arg1))
	return int32(status.OK)
}
