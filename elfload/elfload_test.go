package elfload

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// buildELF32 assembles a minimal ELF32 header plus a program header
// table with the given segments, enough for Load to parse.
func buildELF32(entry uint32, phdrs []Segment) []byte {
	const ehsize = 52
	const phentsize = 32
	phoff := uint32(ehsize)

	buf := make([]byte, ehsize+phentsize*len(phdrs))
	buf[0], buf[1], buf[2], buf[3] = 0x7f, 'E', 'L', 'F'
	binary.LittleEndian.PutUint32(buf[24:28], entry)
	binary.LittleEndian.PutUint32(buf[28:32], phoff)
	binary.LittleEndian.PutUint16(buf[42:44], phentsize)
	binary.LittleEndian.PutUint16(buf[44:46], uint16(len(phdrs)))

	for i, seg := range phdrs {
		ph := buf[int(phoff)+i*phentsize : int(phoff)+(i+1)*phentsize]
		binary.LittleEndian.PutUint32(ph[0:4], ptLoad)
		binary.LittleEndian.PutUint32(ph[4:8], seg.FileOffset)
		binary.LittleEndian.PutUint32(ph[8:12], seg.Vaddr)
		binary.LittleEndian.PutUint32(ph[16:20], seg.FileSize)
		binary.LittleEndian.PutUint32(ph[20:24], seg.MemSize)
	}
	return buf
}

func TestLoadParsesEntryAndSegments(t *testing.T) {
	raw := buildELF32(0x08048080, []Segment{
		{Vaddr: 0x08048000, MemSize: 0x1000, FileOffset: 0, FileSize: 0x200},
		{Vaddr: 0x08049000, MemSize: 0x2000, FileOffset: 0x200, FileSize: 0x100},
	})

	img, err := Load(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != 0x08048080 {
		t.Errorf("Entry = %#x, want 0x08048080", img.Entry)
	}
	if len(img.Segments) != 2 {
		t.Fatalf("len(Segments) = %d, want 2", len(img.Segments))
	}
	if img.Segments[0].Vaddr != 0x08048000 || img.Segments[1].Vaddr != 0x08049000 {
		t.Errorf("Segments = %+v", img.Segments)
	}
}

func TestLoadSkipsSegmentsBelowMinVaddr(t *testing.T) {
	raw := buildELF32(0, []Segment{
		{Vaddr: 0x00001000, MemSize: 0x1000, FileOffset: 0, FileSize: 0x100},
		{Vaddr: 0x08048000, MemSize: 0x1000, FileOffset: 0x100, FileSize: 0x100},
	})

	img, err := Load(bytes.NewReader(raw), 0x08048000)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(img.Segments) != 1 || img.Segments[0].Vaddr != 0x08048000 {
		t.Errorf("Segments = %+v, want only the 0x08048000 segment", img.Segments)
	}
}

func TestLoadRejectsBadMagic(t *testing.T) {
	raw := make([]byte, 52)
	copy(raw, "NOTELF..............................................")
	if _, err := Load(bytes.NewReader(raw), 0); err == nil {
		t.Error("Load accepted a file with a bad ELF magic")
	}
}

func TestLoadRejectsShortFile(t *testing.T) {
	if _, err := Load(bytes.NewReader([]byte{0x7f, 'E', 'L'}), 0); err == nil {
		t.Error("Load accepted a truncated header")
	}
}
