// Package vfs implements the mount table and per-open-file dispatch: a
// small, fixed set of mounted filesystems matched by path prefix, and
// a fixed-size, refcounted open-file table shared by every task's fd
// array.
//
// Grounded on the original's fs.c (sys_open/path_begin_with/
// path_next_child/fs_protect) for the dispatch shape, and on
// go-fuse's fuse/handle.go portableHandleMap for the refcounted,
// slot-reuse open-file table.
package vfs

import (
	"strings"
	"sync"

	"github.com/tinykernel-go/tinykernel/status"
)

// FileType mirrors file_type_t.
type FileType int

const (
	FileUnknown FileType = iota
	FileTTY
	FileDir
	FileNormal
)

// Open-mode flags, matching the O_RDONLY/O_WRONLY/O_RDWR/O_CREAT/
// O_TRUNC/O_APPEND bit positions sys_open and fatfs_open inspect.
const (
	ORDONLY = 0
	OWRONLY = 1
	ORDWR   = 2
	OCREAT  = 0x200
	OTRUNC  = 0x400
	OAPPEND = 0x8
)

// Stat is the subset of POSIX struct stat sys_fstat fills in.
type Stat struct {
	Size int64
	Type FileType
}

// DirEntry is one entry returned by FileSystem.ReadDir.
type DirEntry struct {
	Name string
	Type FileType
	Size int64
}

// Dir is an open-directory cursor handed back by FileSystem.OpenDir
// and threaded through ReadDir/CloseDir, opaque to vfs itself.
type Dir interface{}

// FileSystem is the op-vector every mounted filesystem implements,
// corresponding to fs_op_t. Unlike the original, File identity is
// represented by the *File this package owns; a FileSystem only ever
// sees the fields it needs (name, mode, and its own private Data).
type FileSystem interface {
	Open(name string, file *File) status.Status
	Read(file *File, buf []byte) (int, status.Status)
	Write(file *File, buf []byte) (int, status.Status)
	Close(file *File)
	Seek(file *File, offset int, whence int) (int, status.Status)
	Stat(file *File, st *Stat) status.Status

	OpenDir(name string) (Dir, status.Status)
	ReadDir(dir Dir) (DirEntry, status.Status)
	CloseDir(dir Dir)

	Ioctl(file *File, cmd, arg0, arg1 int) (int, status.Status)
	Unlink(path string) status.Status
}

// File is one entry in the global open-file table, corresponding to
// file_t. Data is filesystem-private state (e.g. fat16's cluster/
// position bookkeeping).
type File struct {
	Name string
	Type FileType
	Size uint32
	ref  int
	Mode int
	FS   *Mount
	Data interface{}
}

// Mount is one mounted filesystem, corresponding to fs_t: a mount
// point prefix, its op vector, and (if non-nil) a mutex serializing
// every call into it the way fs_protect/fs_unprotect do.
type Mount struct {
	Point string
	FS    FileSystem
	mu    *sync.Mutex
}

// Table is the VFS root: the mount list plus the fixed-size open-file
// pool, corresponding to fs.c's mounted_list/fs_table/free_list and
// file.c's file table.
type Table struct {
	mu     sync.Mutex
	mounts []*Mount
	root   *Mount
	files  []*File
	free   []int
}

// NewTable creates an empty VFS with an open-file pool of the given
// capacity (the original uses a fixed FILE_TABLE_SIZE; the caller
// picks the size here instead).
func NewTable(fileTableSize int) *Table {
	free := make([]int, fileTableSize)
	for i := range free {
		free[i] = fileTableSize - 1 - i
	}
	return &Table{
		files: make([]*File, fileTableSize),
		free:  free,
	}
}

// Mount registers fs at point. It does not change the root fallback,
// which only SetRoot assigns — the boot sequence mounts "/home" and
// designates it root explicitly via SetRoot, mirroring fs_init's
// root_fs=mount(FS_FAT16,"/home",...).
func (t *Table) Mount(point string, fs FileSystem, guarded bool) *Mount {
	t.mu.Lock()
	defer t.mu.Unlock()

	m := &Mount{Point: point, FS: fs}
	if guarded {
		m.mu = &sync.Mutex{}
	}
	t.mounts = append(t.mounts, m)
	return m
}

// SetRoot designates m as the fallback filesystem for paths matching
// no mount point prefix (fs_init's root_fs assignment).
func (t *Table) SetRoot(m *Mount) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.root = m
}

func (m *Mount) protect() {
	if m.mu != nil {
		m.mu.Lock()
	}
}
func (m *Mount) unprotect() {
	if m.mu != nil {
		m.mu.Unlock()
	}
}

// resolve finds the mount whose point is a prefix of name, stripping
// the matched prefix from the path handed to the filesystem (fs.c's
// path_begin_with + path_next_child), falling back to root.
func (t *Table) resolve(name string) (*Mount, string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.mounts {
		if strings.HasPrefix(name, m.Point) {
			rest := strings.TrimPrefix(name, m.Point)
			if rest == "" {
				rest = "/"
			}
			return m, rest
		}
	}
	return t.root, name
}

func (t *Table) allocSlot() (int, *File, status.Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.free) == 0 {
		return -1, nil, status.EMFILE
	}
	idx := t.free[len(t.free)-1]
	t.free = t.free[:len(t.free)-1]
	f := &File{ref: 1}
	t.files[idx] = f
	return idx, f, status.OK
}

// Open resolves name against the mount table and opens it, returning
// a slot index into the table's file pool (sys_open).
func (t *Table) Open(name string, mode int) (int, status.Status) {
	idx, f, st := t.allocSlot()
	if !st.Ok() {
		return -1, st
	}

	mnt, rest := t.resolve(name)
	f.Name = rest
	f.Mode = mode
	f.FS = mnt

	mnt.protect()
	st = mnt.FS.Open(rest, f)
	mnt.unprotect()

	if !st.Ok() {
		t.releaseSlot(idx)
		return -1, st
	}
	return idx, status.OK
}

func (t *Table) releaseSlot(idx int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.files[idx] = nil
	t.free = append(t.free, idx)
}

// file returns the *File at idx, or nil if idx is out of range or
// unopened (task_file).
func (t *Table) file(idx int) *File {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx < 0 || idx >= len(t.files) {
		return nil
	}
	return t.files[idx]
}

// Dup increments the refcount on idx's file and returns the same
// *File so a second fd slot (owned by the caller, normally a task's
// fd table) can alias it (sys_dup).
func (t *Table) Dup(idx int) (*File, status.Status) {
	f := t.file(idx)
	if f == nil {
		return nil, status.EINVAL
	}
	t.mu.Lock()
	f.ref++
	t.mu.Unlock()
	return f, status.OK
}

// Read reads into buf from the file at idx (sys_read).
func (t *Table) Read(idx int, buf []byte) (int, status.Status) {
	f := t.file(idx)
	if f == nil {
		return 0, status.EINVAL
	}
	if f.Mode == OWRONLY {
		return 0, status.EINVAL
	}
	f.FS.protect()
	n, st := f.FS.FS.Read(f, buf)
	f.FS.unprotect()
	return n, st
}

// Write writes buf to the file at idx (sys_write).
func (t *Table) Write(idx int, buf []byte) (int, status.Status) {
	f := t.file(idx)
	if f == nil {
		return 0, status.EINVAL
	}
	if f.Mode == ORDONLY {
		return 0, status.EINVAL
	}
	f.FS.protect()
	n, st := f.FS.FS.Write(f, buf)
	f.FS.unprotect()
	return n, st
}

// Seek repositions the file at idx (sys_lseek).
func (t *Table) Seek(idx, offset, whence int) (int, status.Status) {
	f := t.file(idx)
	if f == nil {
		return 0, status.EINVAL
	}
	f.FS.protect()
	n, st := f.FS.FS.Seek(f, offset, whence)
	f.FS.unprotect()
	return n, st
}

// Close drops one reference to the file at idx, actually closing it
// once the refcount reaches zero (sys_close).
func (t *Table) Close(idx int) status.Status {
	f := t.file(idx)
	if f == nil {
		return status.EINVAL
	}
	t.mu.Lock()
	f.ref--
	last := f.ref == 0
	t.mu.Unlock()

	if !last {
		return status.OK
	}
	f.FS.protect()
	f.FS.FS.Close(f)
	f.FS.unprotect()
	t.releaseSlot(idx)
	return status.OK
}

// Stat fills st from the file at idx (sys_fstat).
func (t *Table) Stat(idx int, st *Stat) status.Status {
	f := t.file(idx)
	if f == nil {
		return status.EINVAL
	}
	f.FS.protect()
	s := f.FS.FS.Stat(f, st)
	f.FS.unprotect()
	return s
}

// IsTTY reports whether the file at idx is a tty device (sys_isatty).
func (t *Table) IsTTY(idx int) bool {
	f := t.file(idx)
	return f != nil && f.Type == FileTTY
}

// Ioctl forwards a device-control request to the file at idx
// (sys_ioctl).
func (t *Table) Ioctl(idx, cmd, arg0, arg1 int) (int, status.Status) {
	f := t.file(idx)
	if f == nil {
		return 0, status.EINVAL
	}
	f.FS.protect()
	n, st := f.FS.FS.Ioctl(f, cmd, arg0, arg1)
	f.FS.unprotect()
	return n, st
}

// OpenDir, ReadDir, CloseDir and Unlink always operate against root,
// matching sys_opendir/sys_readdir/sys_closedir/sys_unlink which
// never consult the mount table.
func (t *Table) OpenDir(path string) (Dir, status.Status) {
	t.root.protect()
	defer t.root.unprotect()
	return t.root.FS.OpenDir(path)
}

func (t *Table) ReadDir(d Dir) (DirEntry, status.Status) {
	t.root.protect()
	defer t.root.unprotect()
	return t.root.FS.ReadDir(d)
}

func (t *Table) CloseDir(d Dir) {
	t.root.protect()
	defer t.root.unprotect()
	t.root.FS.CloseDir(d)
}

func (t *Table) Unlink(path string) status.Status {
	t.root.protect()
	defer t.root.unprotect()
	return t.root.FS.Unlink(path)
}
