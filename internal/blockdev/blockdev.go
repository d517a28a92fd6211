// Package blockdev backs the simulated ATA disk (package ata) with a
// real file on the host filesystem, using raw positioned reads/writes
// instead of a buffered os.File so that fat16's one-sector scratch
// buffer is the only cache in the path; disk_read_data/disk_write_data in the
// original operate on whole 512-byte sectors at an LBA offset the
// same way.
//
// Grounded on go-fuse's use of golang.org/x/sys/unix for raw
// filesystem operations (internal/openat, internal/fallocate); this
// package is the same idea applied to a disk image file instead of a
// directory entry.
package blockdev

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// SectorSize is the fixed sector size the simulated controller speaks,
// matching the original's 16-bit-word PIO transfer count (256 words).
const SectorSize = 512

// File is a disk image opened for sector-addressed PIO.
type File struct {
	fd       int
	sectors  uint32
	readOnly bool
}

// Open opens path as a block device image. If path does not exist and
// sizeSectors is nonzero, a zero-filled image of that size is created.
func Open(path string, sizeSectors uint32, readOnly bool) (*File, error) {
	flags := unix.O_RDWR
	if readOnly {
		flags = unix.O_RDONLY
	}
	fd, err := unix.Open(path, flags, 0)
	if err == unix.ENOENT && !readOnly && sizeSectors > 0 {
		fd, err = unix.Open(path, flags|unix.O_CREAT, 0644)
		if err != nil {
			return nil, fmt.Errorf("blockdev: create %s: %w", path, err)
		}
		if err := unix.Ftruncate(fd, int64(sizeSectors)*SectorSize); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("blockdev: truncate %s: %w", path, err)
		}
		return &File{fd: fd, sectors: sizeSectors, readOnly: readOnly}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blockdev: open %s: %w", path, err)
	}
	st := unix.Stat_t{}
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("blockdev: stat %s: %w", path, err)
	}
	return &File{fd: fd, sectors: uint32(st.Size / SectorSize), readOnly: readOnly}, nil
}

// SectorCount reports the number of SectorSize-byte sectors in the
// image, the value identify_disk derives from IDENTIFY words 100-101.
func (f *File) SectorCount() uint32 { return f.sectors }

// ReadSector fills buf (which must be SectorSize bytes) from the
// sector at lba.
func (f *File) ReadSector(lba uint32, buf []byte) error {
	if len(buf) != SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", SectorSize, len(buf))
	}
	n, err := unix.Pread(f.fd, buf, int64(lba)*SectorSize)
	if err != nil {
		return fmt.Errorf("blockdev: pread lba %d: %w", lba, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short read at lba %d: %d bytes", lba, n)
	}
	return nil
}

// WriteSector writes buf (which must be SectorSize bytes) to the
// sector at lba.
func (f *File) WriteSector(lba uint32, buf []byte) error {
	if f.readOnly {
		return fmt.Errorf("blockdev: write to read-only device")
	}
	if len(buf) != SectorSize {
		return fmt.Errorf("blockdev: buffer must be %d bytes, got %d", SectorSize, len(buf))
	}
	n, err := unix.Pwrite(f.fd, buf, int64(lba)*SectorSize)
	if err != nil {
		return fmt.Errorf("blockdev: pwrite lba %d: %w", lba, err)
	}
	if n != SectorSize {
		return fmt.Errorf("blockdev: short write at lba %d: %d bytes", lba, n)
	}
	return nil
}

// Close closes the underlying file descriptor.
func (f *File) Close() error {
	return unix.Close(f.fd)
}
