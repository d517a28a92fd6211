package task

import (
	"encoding/binary"
	"testing"

	"github.com/tinykernel-go/tinykernel/internal/mem"
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

func TestForkInheritsRegistersAndZeroesEAX(t *testing.T) {
	s := newTestScheduler(t)
	idle, _ := s.Create("idle", FlagSystem, 0, 0)
	s.SetIdle(idle)

	parent, st := s.Create("parent", 0, 0x08048000, 0)
	if !st.Ok() {
		t.Fatalf("Create: %v", st)
	}

	frame := &Frame{EBX: 7, EIP: 0x08048100, ESP3: 0xC0000000, SS3: 0x23}
	childID, st := s.Fork(parent, frame)
	if !st.Ok() {
		t.Fatalf("Fork: %v", st)
	}

	var child *Task
	for _, c := range parent.children {
		if c.ID() == childID {
			child = c
		}
	}
	if child == nil {
		t.Fatal("Fork did not link the child under parent.children")
	}
	if child.TSS.EAX != 0 {
		t.Errorf("child.TSS.EAX = %d, want 0", child.TSS.EAX)
	}
	if child.TSS.EBX != 7 || child.TSS.EIP != 0x08048100 {
		t.Errorf("child TSS = %+v, did not inherit frame registers", child.TSS)
	}
	if child.State() != Ready {
		t.Errorf("child.State() = %v, want Ready", child.State())
	}
}

func TestExitReparentsChildrenToFirstTask(t *testing.T) {
	s := newTestScheduler(t)
	idle, _ := s.Create("idle", FlagSystem, 0, 0)
	s.SetIdle(idle)

	first, _ := s.Create("first", FlagSystem, 0, 0)
	s.SetFirstTask(first)
	s.Start(first)

	parent, _ := s.Create("parent", FlagSystem, 0, 0)
	s.Start(parent)
	s.Dispatch()

	frame := &Frame{}
	childID, st := s.Fork(parent, frame)
	if !st.Ok() {
		t.Fatalf("Fork: %v", st)
	}
	var child *Task
	for _, c := range parent.children {
		if c.ID() == childID {
			child = c
		}
	}

	s.Exit(parent, 5)

	if parent.State() != Zombie || parent.ExitStatus() != 5 {
		t.Errorf("parent state/exit = %v/%d, want Zombie/5", parent.State(), parent.ExitStatus())
	}
	if len(parent.children) != 0 {
		t.Error("Exit did not clear the exiting task's children slice")
	}
	if child.parent != first {
		t.Errorf("child.parent = %v, want first", child.parent)
	}
	found := false
	for _, c := range first.children {
		if c == child {
			found = true
		}
	}
	if !found {
		t.Error("child was not reparented into first.children")
	}
}

func TestWaitReapsZombieChild(t *testing.T) {
	s := newTestScheduler(t)
	idle, _ := s.Create("idle", FlagSystem, 0, 0)
	s.SetIdle(idle)

	parent, _ := s.Create("parent", FlagSystem, 0, 0)
	s.Start(parent)
	s.Dispatch()

	childID, st := s.Fork(parent, &Frame{})
	if !st.Ok() {
		t.Fatalf("Fork: %v", st)
	}
	var child *Task
	for _, c := range parent.children {
		if c.ID() == childID {
			child = c
		}
	}
	s.Exit(child, 3)

	id, code, st := s.Wait(parent)
	if !st.Ok() || id != childID || code != 3 {
		t.Fatalf("Wait = (%d, %d, %v), want (%d, 3, OK)", id, code, st, childID)
	}
	if len(parent.children) != 0 {
		t.Error("Wait did not remove the reaped child from parent.children")
	}
}

func TestWaitWithNoChildrenReturnsECHILD(t *testing.T) {
	s := newTestScheduler(t)
	idle, _ := s.Create("idle", FlagSystem, 0, 0)
	s.SetIdle(idle)
	parent, _ := s.Create("parent", FlagSystem, 0, 0)

	if _, _, st := s.Wait(parent); st != status.ECHILD {
		t.Errorf("Wait with no children = %v, want ECHILD", st)
	}
}

func TestWaitWithLiveChildBlocksCaller(t *testing.T) {
	s := newTestScheduler(t)
	idle, _ := s.Create("idle", FlagSystem, 0, 0)
	s.SetIdle(idle)
	parent, _ := s.Create("parent", FlagSystem, 0, 0)
	s.Start(parent)
	s.Dispatch()

	if _, st := s.Fork(parent, &Frame{}); !st.Ok() {
		t.Fatalf("Fork: %v", st)
	}

	if _, _, st := s.Wait(parent); st != status.EBUSY {
		t.Errorf("Wait with a live (non-zombie) child = %v, want EBUSY", st)
	}
	if parent.State() != Waiting {
		t.Errorf("parent.State() = %v, want Waiting", parent.State())
	}
}

func TestSbrkGrowsHeapAndReturnsOldBreak(t *testing.T) {
	s := newTestScheduler(t)
	tk, st := s.Create("u", 0, 0, 0)
	if !st.Ok() {
		t.Fatalf("Create: %v", st)
	}
	tk.heapStart, tk.heapEnd = 0x08048000, 0x08048000

	old, st := s.Sbrk(tk, 100)
	if !st.Ok() || old != 0x08048000 {
		t.Fatalf("Sbrk = (%#x, %v), want (0x08048000, OK)", old, st)
	}
	if tk.HeapEnd() != 0x08048000+100 {
		t.Errorf("HeapEnd() = %#x, want %#x", tk.HeapEnd(), 0x08048000+100)
	}
	if _, ok := tk.Addr.Translate(0x08048000); !ok {
		t.Error("Sbrk did not map the new heap page")
	}
}

func TestSbrkNegativeIncrementRejected(t *testing.T) {
	s := newTestScheduler(t)
	tk, _ := s.Create("u", 0, 0, 0)
	if _, st := s.Sbrk(tk, -1); st != status.EINVAL {
		t.Errorf("Sbrk(-1) = %v, want EINVAL", st)
	}
}

// execFile is a minimal seekable in-memory file used to back Exec's
// ELF read.
type execFile struct {
	data []byte
	pos  int
}

type execFS struct{ data []byte }

func (fs *execFS) Open(name string, file *vfs.File) status.Status {
	file.Data = &execFile{data: fs.data}
	file.Size = uint32(len(fs.data))
	return status.OK
}
func (fs *execFS) Read(file *vfs.File, buf []byte) (int, status.Status) {
	f := file.Data.(*execFile)
	n := copy(buf, f.data[f.pos:])
	f.pos += n
	return n, status.OK
}
func (fs *execFS) Write(file *vfs.File, buf []byte) (int, status.Status) {
	return 0, status.ENOSYS
}
func (fs *execFS) Close(file *vfs.File) {}
func (fs *execFS) Seek(file *vfs.File, offset int, whence int) (int, status.Status) {
	f := file.Data.(*execFile)
	f.pos = offset
	return offset, status.OK
}
func (fs *execFS) Stat(file *vfs.File, st *vfs.Stat) status.Status { return status.ENOSYS }
func (fs *execFS) OpenDir(name string) (vfs.Dir, status.Status)    { return nil, status.ENOSYS }
func (fs *execFS) ReadDir(d vfs.Dir) (vfs.DirEntry, status.Status) {
	return vfs.DirEntry{}, status.ENOSYS
}
func (fs *execFS) CloseDir(d vfs.Dir) {}
func (fs *execFS) Ioctl(file *vfs.File, cmd, a0, a1 int) (int, status.Status) {
	return 0, status.ENOSYS
}
func (fs *execFS) Unlink(path string) status.Status { return status.ENOSYS }

func buildTestELF(entry, vaddr uint32, payload []byte) []byte {
	const ehsize, phentsize = 52, 32
	phoff := uint32(ehsize)
	dataOff := ehsize + phentsize

	buf := make([]byte, dataOff+len(payload))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	binary.LittleEndian.PutUint32(buf[24:28], entry)
	binary.LittleEndian.PutUint32(buf[28:32], phoff)
	binary.LittleEndian.PutUint16(buf[42:44], phentsize)
	binary.LittleEndian.PutUint16(buf[44:46], 1)

	ph := buf[ehsize : ehsize+phentsize]
	binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
	binary.LittleEndian.PutUint32(ph[4:8], uint32(dataOff))
	binary.LittleEndian.PutUint32(ph[8:12], vaddr)
	binary.LittleEndian.PutUint32(ph[16:20], uint32(len(payload)))
	binary.LittleEndian.PutUint32(ph[20:24], uint32(len(payload))+0x1000)

	copy(buf[dataOff:], payload)
	return buf
}

func TestExecLoadsELFAndSwitchesAddressSpace(t *testing.T) {
	s := newTestScheduler(t)
	fs := &execFS{data: buildTestELF(MemoryTaskBase+0x80, MemoryTaskBase, []byte("hello-elf"))}
	mnt := s.files.Mount("/", fs, false)
	s.files.SetRoot(mnt)

	tk, st := s.Create("u", 0, 0, 0)
	if !st.Ok() {
		t.Fatalf("Create: %v", st)
	}
	oldAddr := tk.Addr

	frame := &Frame{}
	if st := s.Exec(tk, frame, "/init", 0); st != status.ExecSucceeded {
		t.Fatalf("Exec: %v, want ExecSucceeded", st)
	}
	if tk.TSS.EIP != MemoryTaskBase+0x80 {
		t.Errorf("TSS.EIP = %#x, want %#x", tk.TSS.EIP, MemoryTaskBase+0x80)
	}
	if frame.EIP != tk.TSS.EIP || frame.ESP != tk.TSS.ESP {
		t.Errorf("frame EIP/ESP = %#x/%#x, want %#x/%#x", frame.EIP, frame.ESP, tk.TSS.EIP, tk.TSS.ESP)
	}
	if tk.Addr == oldAddr {
		t.Error("Exec did not replace the task's address space")
	}

	got, err := tk.Addr.CopyFromUser(MemoryTaskBase, len("hello-elf"))
	if err != nil || string(got) != "hello-elf" {
		t.Errorf("loaded segment contents = (%q, %v), want (\"hello-elf\", nil)", got, err)
	}
}

func TestExecMarshalsArgvOntoNewStack(t *testing.T) {
	s := newTestScheduler(t)
	fs := &execFS{data: buildTestELF(MemoryTaskBase+0x80, MemoryTaskBase, []byte("x"))}
	mnt := s.files.Mount("/", fs, false)
	s.files.SetRoot(mnt)

	tk, st := s.Create("u", 0, 0, 0)
	if !st.Ok() {
		t.Fatalf("Create: %v", st)
	}

	const argvVaddr = uint32(0x08049000)
	args := []string{"/dev/tty0"}
	if err := tk.Addr.AllocForRange(argvVaddr, mem.PageSize, mem.Present|mem.Writable|mem.User); err != nil {
		t.Fatalf("AllocForRange: %v", err)
	}
	strAddr := argvVaddr + 64
	ptrBlock := make([]byte, 8) // one pointer plus the NULL terminator
	binary.LittleEndian.PutUint32(ptrBlock[0:4], strAddr)
	if err := tk.Addr.CopyToUser(argvVaddr, ptrBlock); err != nil {
		t.Fatalf("CopyToUser(argv array): %v", err)
	}
	if err := tk.Addr.CopyToUser(strAddr, append([]byte(args[0]), 0)); err != nil {
		t.Fatalf("CopyToUser(argv[0]): %v", err)
	}

	frame := &Frame{}
	if st := s.Exec(tk, frame, "/init", argvVaddr); st != status.ExecSucceeded {
		t.Fatalf("Exec: %v, want ExecSucceeded", st)
	}

	argBase := TaskStackTop - TaskArgSize
	header, err := tk.Addr.CopyFromUser(argBase, 8)
	if err != nil {
		t.Fatalf("CopyFromUser(header): %v", err)
	}
	argc := binary.LittleEndian.Uint32(header[0:4])
	argvPtr := binary.LittleEndian.Uint32(header[4:8])
	if argc != 1 {
		t.Fatalf("argc = %d, want 1", argc)
	}
	if argvPtr != argBase+8 {
		t.Errorf("argv array pointer = %#x, want %#x", argvPtr, argBase+8)
	}

	entryPtr, err := tk.Addr.CopyFromUser(argvPtr, 4)
	if err != nil {
		t.Fatalf("CopyFromUser(argv[0] pointer): %v", err)
	}
	strPtr := binary.LittleEndian.Uint32(entryPtr)
	got, err := tk.Addr.CopyFromUser(strPtr, len(args[0]))
	if err != nil || string(got) != args[0] {
		t.Errorf("argv[0] = (%q, %v), want (%q, nil)", got, err, args[0])
	}
	if frame.ESP >= argBase {
		t.Errorf("frame.ESP = %#x, want below argBase %#x", frame.ESP, argBase)
	}
}

func TestExecMissingFileFails(t *testing.T) {
	s := newTestScheduler(t)
	mnt := s.files.Mount("/", &failOpenFS{}, false)
	s.files.SetRoot(mnt)

	tk, _ := s.Create("u", 0, 0, 0)
	if st := s.Exec(tk, &Frame{}, "/missing", 0); st.Ok() {
		t.Error("Exec on a missing file succeeded")
	}
}

// failOpenFS is a FileSystem whose Open always reports ENOENT,
// exercising Exec's "file not found" path.
type failOpenFS struct{ execFS }

func (failOpenFS) Open(name string, file *vfs.File) status.Status { return status.ENOENT }
