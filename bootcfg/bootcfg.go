// Package bootcfg parses the command-line configuration cmd/tinykernel
// boots with: the disk image backing the ATA driver, and the
// scheduler/memory sizing the original source hard-codes as
// compile-time constants (TASK_NR, FILE_TABLE_SIZE, OS_TICK_MS).
// Grounded on go-fuse's cmd/*/main.go flag.Parse style of plain
// stdlib `flag` configuration, not a config file or environment-driven
// scheme.
package bootcfg

import (
	"flag"
	"fmt"
)

// Config is every value cmd/tinykernel needs to bring the kernel up.
type Config struct {
	DiskImage   string
	DiskSectors uint32
	ReadOnly    bool

	TaskTableSize int
	FileTableSize int
	ArenaBytes    int

	TickMillis int
	TimeSlice  int
	KernelBase uint32
	KernelSize uint32
}

// Parse builds a Config from args (normally os.Args[1:]), applying the
// same defaults the original source bakes into its headers.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tinykernel", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.DiskImage, "disk", "disk.img", "path to the disk image backing the boot disk")
	diskSectors := fs.Uint("disk-sectors", 65536, "sector count to create disk image with if it does not exist")
	fs.BoolVar(&cfg.ReadOnly, "disk-readonly", false, "open the disk image read-only")

	fs.IntVar(&cfg.TaskTableSize, "task-table-size", 64, "maximum number of tasks (TASK_NR)")
	fs.IntVar(&cfg.FileTableSize, "file-table-size", 128, "maximum number of open files (FILE_TABLE_SIZE)")
	fs.IntVar(&cfg.ArenaBytes, "arena-bytes", 64<<20, "size in bytes of the simulated physical memory arena")

	fs.IntVar(&cfg.TickMillis, "tick-millis", 10, "scheduler tick period in milliseconds (OS_TICK_MS); recorded in Config only, the ticker runs at cpu.TickMillis")
	fs.IntVar(&cfg.TimeSlice, "time-slice", 10, "ticks in a task's time slice (TASK_TIME_SLICE_DEFAULT); recorded in Config only, the scheduler uses task.TimeSliceDefault")

	kernelBase := fs.Uint("kernel-base", 0, "lowest virtual address mapped identity/shared for every task")
	kernelSize := fs.Uint("kernel-size", 16<<20, "size of the shared kernel mapping")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.DiskSectors = uint32(*diskSectors)
	cfg.KernelBase = uint32(*kernelBase)
	cfg.KernelSize = uint32(*kernelSize)

	if cfg.TaskTableSize <= 0 || cfg.FileTableSize <= 0 {
		return nil, fmt.Errorf("bootcfg: task-table-size and file-table-size must be positive")
	}
	return cfg, nil
}
