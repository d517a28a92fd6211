// Package fat16 implements a FAT16 volume: DBR parsing, FAT chain
// walk/alloc/free, and an 8.3 root-directory lookup, wired into the
// VFS through fat16.FS (package vfs's FileSystem interface).
//
// Grounded entirely on fatfs.c/fatfs.h: cluster numbering starts at
// 2, directories are the single fixed-size FAT16 root directory (no
// subdirectories), names are 8.3 short names with no long-name
// support, and writes mirror every FAT copy.
package fat16

import (
	"encoding/binary"

	"github.com/tinykernel-go/tinykernel/status"
)

// SectorSize is the sector size this package assumes the underlying
// device speaks (dbr.BytsPerSec is read but not trusted to differ).
const SectorSize = 512

const (
	clusterInvalid = 0xFFF8
	clusterFree    = 0
)

// BlockDevice is the sector I/O surface fat16 needs. Defined locally
// (rather than importing package ata) to keep fat16 usable against
// any sector-addressed backing store and to avoid a fat16->ata
// dependency edge.
type BlockDevice interface {
	ReadSector(lba uint32, buf []byte) error
	WriteSector(lba uint32, buf []byte) error
}

// Volume is one mounted FAT16 filesystem, the Go analogue of fat_t.
type Volume struct {
	dev BlockDevice

	bytesPerSec     uint32
	secPerCluster   uint32
	tblStart        uint32
	tblSectors      uint32
	tblCnt          uint32
	rootEntCnt      uint32
	rootStart       uint32
	dataStart       uint32
	clusterByteSize uint32

	buf     []byte // one-sector scratch cache
	currSec int64  // sector number cached in buf, -1 if none
}

// Mount reads the boot sector from dev and derives the volume
// geometry (fatfs_mount).
func Mount(dev BlockDevice) (*Volume, status.Status) {
	dbr := make([]byte, SectorSize)
	if err := dev.ReadSector(0, dbr); err != nil {
		return nil, status.EIO
	}

	v := &Volume{
		dev:           dev,
		bytesPerSec:   uint32(binary.LittleEndian.Uint16(dbr[11:13])),
		secPerCluster: uint32(dbr[13]),
		tblStart:      uint32(binary.LittleEndian.Uint16(dbr[14:16])),
		tblCnt:        uint32(dbr[16]),
		rootEntCnt:    uint32(binary.LittleEndian.Uint16(dbr[17:19])),
		tblSectors:    uint32(binary.LittleEndian.Uint16(dbr[22:24])),
		currSec:       -1,
	}
	v.rootStart = v.tblStart + v.tblSectors*v.tblCnt
	v.dataStart = v.rootStart + v.rootEntCnt*32/SectorSize
	v.clusterByteSize = v.secPerCluster * v.bytesPerSec
	v.buf = make([]byte, SectorSize)
	return v, status.OK
}

func clusterIsValid(c uint32) bool {
	return c < clusterInvalid && c >= 2
}

// bread caches the most recently read sector into v.buf, matching
// bread_sector's single-entry cache.
func (v *Volume) bread(sector uint32) status.Status {
	if int64(sector) == v.currSec {
		return status.OK
	}
	if err := v.dev.ReadSector(sector, v.buf); err != nil {
		return status.EIO
	}
	v.currSec = int64(sector)
	return status.OK
}

func (v *Volume) bwrite(sector uint32) status.Status {
	if err := v.dev.WriteSector(sector, v.buf); err != nil {
		return status.EIO
	}
	return status.OK
}

// clusterGetNext reads curr's FAT entry (cluster_get_next).
func (v *Volume) clusterGetNext(curr uint32) uint32 {
	if !clusterIsValid(curr) {
		return clusterInvalid
	}
	offset := curr * 2
	sector := offset / v.bytesPerSec
	offInSector := offset % v.bytesPerSec
	if sector >= v.tblSectors {
		return clusterInvalid
	}
	if st := v.bread(v.tblStart + sector); !st.Ok() {
		return clusterInvalid
	}
	return uint32(binary.LittleEndian.Uint16(v.buf[offInSector : offInSector+2]))
}

// clusterSetNext writes curr's FAT entry across every FAT copy
// (cluster_set_next).
func (v *Volume) clusterSetNext(curr, next uint32) status.Status {
	if !clusterIsValid(curr) {
		return status.EINVAL
	}
	offset := curr * 2
	sector := offset / v.bytesPerSec
	offInSector := offset % v.bytesPerSec
	if sector >= v.tblSectors {
		return status.EINVAL
	}
	if st := v.bread(v.tblStart + sector); !st.Ok() {
		return st
	}
	binary.LittleEndian.PutUint16(v.buf[offInSector:offInSector+2], uint16(next))

	s := v.tblStart + sector
	for i := uint32(0); i < v.tblCnt; i++ {
		if st := v.bwrite(s); !st.Ok() {
			return status.EIO
		}
		s += v.tblSectors
	}
	return status.OK
}

// clusterFreeChain walks start's chain, marking every cluster free
// (cluster_free_chain).
func (v *Volume) clusterFreeChain(start uint32) {
	for clusterIsValid(start) {
		next := v.clusterGetNext(start)
		v.clusterSetNext(start, clusterFree)
		start = next
	}
}

// clusterAllocFree finds cnt free clusters and links them into a
// chain, rolling back on failure (cluster_alloc_free).
func (v *Volume) clusterAllocFree(cnt int) uint32 {
	total := v.tblSectors * v.bytesPerSec / 2
	pre, start := uint32(clusterInvalid), uint32(clusterInvalid)

	for curr := uint32(2); curr < total && cnt > 0; curr++ {
		if v.clusterGetNext(curr) != clusterFree {
			continue
		}
		if !clusterIsValid(start) {
			start = curr
		}
		if clusterIsValid(pre) {
			if st := v.clusterSetNext(pre, curr); !st.Ok() {
				v.clusterFreeChain(start)
				return clusterInvalid
			}
		}
		pre = curr
		cnt--
	}

	if cnt == 0 {
		if st := v.clusterSetNext(pre, clusterInvalid); st.Ok() {
			return start
		}
	}
	v.clusterFreeChain(start)
	return clusterInvalid
}

func up2(n, align uint32) uint32 {
	return (n + align - 1) / align * align
}

// readDirEntry reads the index'th root directory entry into a fresh
// 32-byte copy (read_dir_entry); the caller may mutate it freely and
// write it back with writeDirEntry.
func (v *Volume) readDirEntry(index int) ([]byte, status.Status) {
	if index < 0 || uint32(index) >= v.rootEntCnt {
		return nil, status.EINVAL
	}
	offset := uint32(index) * direntSize
	sector := v.rootStart + offset/v.bytesPerSec
	if st := v.bread(sector); !st.Ok() {
		return nil, st
	}
	off := offset % v.bytesPerSec
	d := make([]byte, direntSize)
	copy(d, v.buf[off:off+direntSize])
	return d, status.OK
}

// writeDirEntry writes d back to the index'th root directory entry
// (write_dir_entry).
func (v *Volume) writeDirEntry(index int, d []byte) status.Status {
	if index < 0 || uint32(index) >= v.rootEntCnt {
		return status.EINVAL
	}
	offset := uint32(index) * direntSize
	sector := v.rootStart + offset/v.bytesPerSec
	if st := v.bread(sector); !st.Ok() {
		return st
	}
	off := offset % v.bytesPerSec
	copy(v.buf[off:off+direntSize], d)
	return v.bwrite(sector)
}
