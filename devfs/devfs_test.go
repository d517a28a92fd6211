package devfs

import (
	"bytes"
	"io"
	"testing"

	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/vfs"
)

type fakeConsole struct {
	in  *bytes.Buffer
	out *bytes.Buffer
}

func (c *fakeConsole) Read(p []byte) (int, error)  { return c.in.Read(p) }
func (c *fakeConsole) Write(p []byte) (int, error) { return c.out.Write(p) }

func TestOpenUnknownDeviceFails(t *testing.T) {
	fs := New()
	var f vfs.File
	if st := fs.Open("tty0", &f); st != status.ENOENT {
		t.Errorf("Open unregistered device = %v, want ENOENT", st)
	}
}

func TestOpenLeadingSlashIsTrimmed(t *testing.T) {
	fs := New()
	con := &fakeConsole{in: bytes.NewBufferString(""), out: &bytes.Buffer{}}
	fs.Register("tty0", con, vfs.FileTTY)

	var f vfs.File
	if st := fs.Open("/tty0", &f); !st.Ok() {
		t.Fatalf("Open(\"/tty0\") = %v, want OK", st)
	}
	if f.Type != vfs.FileTTY {
		t.Errorf("file.Type = %v, want FileTTY", f.Type)
	}
}

func TestReadWriteRoundTripsThroughDevice(t *testing.T) {
	fs := New()
	con := &fakeConsole{in: bytes.NewBufferString("input"), out: &bytes.Buffer{}}
	fs.Register("tty0", con, vfs.FileTTY)

	var f vfs.File
	if st := fs.Open("tty0", &f); !st.Ok() {
		t.Fatalf("Open: %v", st)
	}

	if _, st := fs.Write(&f, []byte("hi")); !st.Ok() {
		t.Fatalf("Write: %v", st)
	}
	if got := con.out.String(); got != "hi" {
		t.Errorf("device received %q, want \"hi\"", got)
	}

	buf := make([]byte, 5)
	n, st := fs.Read(&f, buf)
	if !st.Ok() || n != 5 || string(buf) != "input" {
		t.Fatalf("Read = (%d, %v, %q), want (5, OK, \"input\")", n, st, buf)
	}
}

func TestReadEOFIsNotAnError(t *testing.T) {
	fs := New()
	con := &fakeConsole{in: bytes.NewBufferString(""), out: &bytes.Buffer{}}
	fs.Register("tty0", con, vfs.FileTTY)

	var f vfs.File
	fs.Open("tty0", &f)

	buf := make([]byte, 4)
	n, st := fs.Read(&f, buf)
	if !st.Ok() || n != 0 {
		t.Errorf("Read at EOF = (%d, %v), want (0, OK)", n, st)
	}
	_ = io.EOF
}

func TestStatReportsZeroSize(t *testing.T) {
	fs := New()
	con := &fakeConsole{in: bytes.NewBufferString(""), out: &bytes.Buffer{}}
	fs.Register("tty0", con, vfs.FileTTY)

	var f vfs.File
	fs.Open("tty0", &f)

	var st vfs.Stat
	if s := fs.Stat(&f, &st); !s.Ok() {
		t.Fatalf("Stat: %v", s)
	}
	if st.Size != 0 || st.Type != vfs.FileTTY {
		t.Errorf("Stat = %+v, want Size=0 Type=FileTTY", st)
	}
}
