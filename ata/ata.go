// Package ata simulates an IDE/ATA PIO disk driver: a per-disk MBR
// partition table, a shared mutex serializing whole
// operations, and a per-sector semaphore rendezvous standing in for
// the real controller's IRQ14 completion signal.
//
// Sector transfers are done with real positioned reads/writes against
// a host-file-backed image (package internal/blockdev, built on
// golang.org/x/sys/unix) rather than 16-bit port I/O; the semaphore
// handoff around each sector is kept synchronous (notify immediately
// followed by wait) so the driver's call sequence — lock, per-sector
// wait, transfer, unlock — matches the original without introducing
// real interrupt-driven concurrency (see disk_read/disk_write in
// disk.c, and do_handler_ide_primary for the IRQ side this replaces).
package ata

import (
	"encoding/binary"
	"fmt"

	"github.com/tinykernel-go/tinykernel/internal/blockdev"
	"github.com/tinykernel-go/tinykernel/ksync"
	"github.com/tinykernel-go/tinykernel/status"
)

const (
	// PrimaryPartNR is DISK_PRIMARY_PART_NR: slot 0 is a whole-disk
	// sentinel partition, slots 1-4 come from the MBR's four primary
	// partition table entries (preserving the original's "partition 0
	// means the whole disk, never assigned a filesystem" convention).
	PrimaryPartNR = 5
	mbrPartNR     = 4
	mbrPartOffset = 446
)

// PartType mirrors partinfo_t's type enum.
type PartType byte

const (
	FSInvalid PartType = 0x00
	FSFat16_0 PartType = 0x06
	FSFat16_1 PartType = 0x0E
)

// Partition is one partition table slot.
type Partition struct {
	Name        string
	StartSector uint32
	TotalSector uint32
	Type        PartType
}

// Disk is one identified drive: its partition table plus the
// concurrency primitives every read/write serializes through.
type Disk struct {
	Name        string
	dev         *blockdev.File
	SectorCount uint32
	Partitions  [PrimaryPartNR]Partition

	mutex *ksync.Mutex
	opSem *ksync.Semaphore
}

// Identify opens dev as name (e.g. "sda", "sdb") and reads its MBR to
// populate the partition table (identify_disk + detect_part_info).
// Slot 0 is always a FSInvalid sentinel covering the whole disk;
// slots 1-4 are named name+minor ("sda1".."sda4"), the CLI-visible
// partition names.
func Identify(name string, dev *blockdev.File) (*Disk, status.Status) {
	d := &Disk{
		Name:        name,
		dev:         dev,
		SectorCount: dev.SectorCount(),
		mutex:       ksync.NewMutex(),
		opSem:       ksync.NewSemaphore(0),
	}
	d.Partitions[0] = Partition{
		Name:        name,
		StartSector: 0,
		TotalSector: d.SectorCount,
		Type:        FSInvalid,
	}

	mbr := make([]byte, blockdev.SectorSize)
	if err := dev.ReadSector(0, mbr); err != nil {
		return nil, status.EIO
	}

	for i := 0; i < mbrPartNR; i++ {
		entry := mbr[mbrPartOffset+i*16 : mbrPartOffset+i*16+16]
		sysID := PartType(entry[4])
		p := &d.Partitions[i+1]
		if sysID == FSInvalid {
			*p = Partition{}
			continue
		}
		p.Name = fmt.Sprintf("%s%d", name, i+1)
		p.Type = sysID
		p.StartSector = binary.LittleEndian.Uint32(entry[8:12])
		p.TotalSector = binary.LittleEndian.Uint32(entry[12:16])
	}
	return d, status.OK
}

// sectorRendezvous stands in for "wait for IRQ14, then check status"
// around the transfer of one sector: if requester is a live task
// context the semaphore is notified (IRQ fires) and immediately
// waited on (the task resumes), exercising the exact blocking call
// pair sys_read ultimately rides on without real concurrency.
func (d *Disk) sectorRendezvous(sched ksync.Scheduler, requester ksync.TaskHandle) {
	if requester == nil {
		return
	}
	d.opSem.Notify(sched)
	d.opSem.Wait(sched, requester)
}

// ReadSectors reads sectorCount sectors starting at addr (relative to
// the partition) into buf, which must be sectorCount*SectorSize bytes
// (disk_read).
func (d *Disk) ReadSectors(sched ksync.Scheduler, requester ksync.TaskHandle, part *Partition, addr uint32, buf []byte, sectorCount int) (int, status.Status) {
	d.mutex.Lock(sched, requester)
	defer d.mutex.Unlock(sched)

	cnt := 0
	for ; cnt < sectorCount; cnt++ {
		d.sectorRendezvous(sched, requester)
		off := cnt * blockdev.SectorSize
		if err := d.dev.ReadSector(part.StartSector+addr+uint32(cnt), buf[off:off+blockdev.SectorSize]); err != nil {
			return cnt, status.EIO
		}
	}
	return cnt, status.OK
}

// WriteSectors writes sectorCount sectors starting at addr (relative
// to the partition) from buf (disk_write).
func (d *Disk) WriteSectors(sched ksync.Scheduler, requester ksync.TaskHandle, part *Partition, addr uint32, buf []byte, sectorCount int) (int, status.Status) {
	d.mutex.Lock(sched, requester)
	defer d.mutex.Unlock(sched)

	cnt := 0
	for ; cnt < sectorCount; cnt++ {
		off := cnt * blockdev.SectorSize
		if err := d.dev.WriteSector(part.StartSector+addr+uint32(cnt), buf[off:off+blockdev.SectorSize]); err != nil {
			return cnt, status.EIO
		}
		d.sectorRendezvous(sched, requester)
	}
	return cnt, status.OK
}

// PartitionBlockDevice adapts one partition of a Disk to fat16's
// single-sector BlockDevice interface, translating partition-relative
// LBAs to disk-absolute ones.
type PartitionBlockDevice struct {
	Disk      *Disk
	Part      *Partition
	Scheduler ksync.Scheduler
	Requester ksync.TaskHandle
}

func (p *PartitionBlockDevice) ReadSector(lba uint32, buf []byte) error {
	n, st := p.Disk.ReadSectors(p.Scheduler, p.Requester, p.Part, lba, buf, 1)
	if !st.Ok() || n != 1 {
		return fmt.Errorf("ata: read sector %d: %s", lba, st)
	}
	return nil
}

func (p *PartitionBlockDevice) WriteSector(lba uint32, buf []byte) error {
	n, st := p.Disk.WriteSectors(p.Scheduler, p.Requester, p.Part, lba, buf, 1)
	if !st.Ok() || n != 1 {
		return fmt.Errorf("ata: write sector %d: %s", lba, st)
	}
	return nil
}
