// Package elfload parses the minimal ELF32 subset the kernel's loader
// needs: the file header, and PT_LOAD program headers at or above a
// caller-supplied minimum virtual address, mirroring the original's
// load_elf_file/load_phdr. It has no knowledge of address spaces or
// the VFS — callers read segment bytes themselves and hand them to
// mem.AddressSpace, keeping elfload free of a dependency on either.
package elfload

import (
	"encoding/binary"
	"errors"
	"io"
)

const (
	ptLoad   = 1
	identLen = 16
)

var (
	errBadMagic = errors.New("elfload: not an ELF32 file")
	errShort    = errors.New("elfload: file too short")
)

// Segment is one loadable program header, trimmed to what the loader
// needs: where it goes in memory, how big the in-memory image is, and
// where/how much of it comes from the file (the rest is BSS, left
// zero).
type Segment struct {
	Vaddr      uint32
	MemSize    uint32
	FileOffset uint32
	FileSize   uint32
}

// Image is the result of parsing an ELF32 executable: its entry
// point and every PT_LOAD segment at or above minVaddr.
type Image struct {
	Entry    uint32
	Segments []Segment
}

// Load reads the ELF32 header and program header table from r,
// keeping only PT_LOAD segments whose Vaddr is >= minVaddr — the
// original's "skip anything below MEMORY_TASK_BASE" filter, which
// drops headers describing the loader's own low-memory identity
// mappings.
func Load(r io.ReaderAt, minVaddr uint32) (*Image, error) {
	var hdr [52]byte
	if _, err := r.ReadAt(hdr[:], 0); err != nil {
		return nil, errShort
	}
	if hdr[0] != 0x7f || hdr[1] != 'E' || hdr[2] != 'L' || hdr[3] != 'F' {
		return nil, errBadMagic
	}

	entry := binary.LittleEndian.Uint32(hdr[24:28])
	phoff := binary.LittleEndian.Uint32(hdr[28:32])
	phentsize := binary.LittleEndian.Uint16(hdr[42:44])
	phnum := binary.LittleEndian.Uint16(hdr[44:46])

	img := &Image{Entry: entry}
	for i := uint16(0); i < phnum; i++ {
		var ph [32]byte
		off := int64(phoff) + int64(i)*int64(phentsize)
		if _, err := r.ReadAt(ph[:], off); err != nil {
			return nil, errShort
		}
		pType := binary.LittleEndian.Uint32(ph[0:4])
		pOffset := binary.LittleEndian.Uint32(ph[4:8])
		pVaddr := binary.LittleEndian.Uint32(ph[8:12])
		pFilesz := binary.LittleEndian.Uint32(ph[16:20])
		pMemsz := binary.LittleEndian.Uint32(ph[20:24])

		if pType != ptLoad || pVaddr < minVaddr {
			continue
		}
		img.Segments = append(img.Segments, Segment{
			Vaddr:      pVaddr,
			MemSize:    pMemsz,
			FileOffset: pOffset,
			FileSize:   pFilesz,
		})
	}
	return img, nil
}
