package blockdev

import (
	"bytes"
	"path/filepath"
	"testing"
)

func TestOpenCreatesZeroFilledImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	f, err := Open(path, 8, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if got := f.SectorCount(); got != 8 {
		t.Fatalf("SectorCount() = %d, want 8", got)
	}

	buf := make([]byte, SectorSize)
	if err := f.ReadSector(0, buf); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(buf, make([]byte, SectorSize)) {
		t.Error("freshly created image sector is not zero-filled")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := Open(path, 4, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	want := bytes.Repeat([]byte{0xAB}, SectorSize)
	if err := f.WriteSector(2, want); err != nil {
		t.Fatalf("WriteSector: %v", err)
	}

	got := make([]byte, SectorSize)
	if err := f.ReadSector(2, got); err != nil {
		t.Fatalf("ReadSector: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Error("read back different bytes than written")
	}
}

func TestReadOnlyRejectsWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	rw, err := Open(path, 2, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rw.Close()

	ro, err := Open(path, 0, true)
	if err != nil {
		t.Fatalf("Open read-only: %v", err)
	}
	defer ro.Close()

	if err := ro.WriteSector(0, make([]byte, SectorSize)); err == nil {
		t.Error("WriteSector on a read-only device did not fail")
	}
}

func TestWrongSizedBufferRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	f, err := Open(path, 2, false)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	if err := f.ReadSector(0, make([]byte, 10)); err == nil {
		t.Error("ReadSector accepted a short buffer")
	}
}
