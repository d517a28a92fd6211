// Package devfs implements the device filesystem mounted at /dev: a
// small fixed registry of named devices (tty0, tty1, ..., console),
// each backed by an io.ReadWriter, with none of the disk semantics
// (no directories, no persistent size, seek fails with ENOSYS) the original
// dev/dev.c and dev/tty.c give devfs-backed files.
package devfs

import (
	"io"

	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

// Device is one registered /dev entry.
type Device struct {
	Name string
	RW   io.ReadWriter
	Type vfs.FileType
}

// FS is the devfs mount, implementing vfs.FileSystem.
type FS struct {
	devices map[string]*Device
}

// New creates an empty device filesystem; call Register for each
// device before mounting.
func New() *FS {
	return &FS{devices: make(map[string]*Device)}
}

// Register adds a device under name (without the leading "/"),
// e.g. Register("tty0", console, vfs.FileTTY).
func (fs *FS) Register(name string, rw io.ReadWriter, typ vfs.FileType) {
	fs.devices[name] = &Device{Name: name, RW: rw, Type: typ}
}

func trimSlash(name string) string {
	for len(name) > 0 && name[0] == '/' {
		name = name[1:]
	}
	return name
}

func (fs *FS) Open(name string, file *vfs.File) status.Status {
	dev, ok := fs.devices[trimSlash(name)]
	if !ok {
		return status.ENOENT
	}
	file.Type = dev.Type
	file.Data = dev
	return status.OK
}

func (fs *FS) Read(file *vfs.File, buf []byte) (int, status.Status) {
	dev := file.Data.(*Device)
	n, err := dev.RW.Read(buf)
	if err != nil && err != io.EOF {
		return n, status.EIO
	}
	return n, status.OK
}

func (fs *FS) Write(file *vfs.File, buf []byte) (int, status.Status) {
	dev := file.Data.(*Device)
	n, err := dev.RW.Write(buf)
	if err != nil {
		return n, status.EIO
	}
	return n, status.OK
}

func (fs *FS) Close(file *vfs.File) {}

func (fs *FS) Seek(file *vfs.File, offset int, whence int) (int, status.Status) {
	return 0, status.ENOSYS
}

func (fs *FS) Stat(file *vfs.File, st *vfs.Stat) status.Status {
	st.Size = 0
	st.Type = file.Type
	return status.OK
}

func (fs *FS) OpenDir(name string) (vfs.Dir, status.Status) {
	return nil, status.ENOSYS
}

func (fs *FS) ReadDir(d vfs.Dir) (vfs.DirEntry, status.Status) {
	return vfs.DirEntry{}, status.ENOSYS
}

func (fs *FS) CloseDir(d vfs.Dir) {}

func (fs *FS) Ioctl(file *vfs.File, cmd, arg0, arg1 int) (int, status.Status) {
	return 0, status.ENOSYS
}

func (fs *FS) Unlink(path string) status.Status {
	return status.ENOSYS
}
