// Command tinykernel boots the simulated kernel: bring up physical
// memory and the ATA disk concurrently, mount /dev and /home, create
// the first task, and drive the scheduler off a periodic tick —
// the Go analogue of the original source's init/first_task.c +
// kernel_init boot sequence, grounded on go-fuse's cmd/*/main.go
// flag-parse-then-wire style.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sync/errgroup"

	"github.com/tinykernel-go/tinykernel/ata"
	"github.com/tinykernel-go/tinykernel/bootcfg"
	"github.com/tinykernel-go/tinykernel/devfs"
	"github.com/tinykernel-go/tinykernel/fat16"
	"github.com/tinykernel-go/tinykernel/internal/blockdev"
	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/internal/mem"
	"github.com/tinykernel-go/tinykernel/status"
	"github.com/tinykernel-go/tinykernel/task"
	"github.com/tinykernel-go/tinykernel/trap"
	"github.com/tinykernel-go/tinykernel/vfs"
)

// console is the /dev/tty0 device every task's stdio descriptor
// points at: stdin reads nothing (no real keyboard), stdout/stderr go
// to the host process's own stdout, standing in for the original's
// UART/VGA console driver.
type console struct{}

func (console) Read(p []byte) (int, error)  { return 0, nil }
func (console) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

// assertNotHostMounted refuses to boot when the disk image path is
// itself a mount point on the host (SingleEntryFilter matches on the
// mount point); a loop mount of the image at some other mount point is
// not detected. Modeled on the don't-double-attach check go-fuse
// performs on its own FUSE mount point before mounting
// (fs/mount_linux.go).
func assertNotHostMounted(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	mounts, err := mountinfo.GetMounts(mountinfo.SingleEntryFilter(abs))
	if err != nil {
		return fmt.Errorf("tinykernel: checking host mounts: %w", err)
	}
	if len(mounts) > 0 {
		return fmt.Errorf("tinykernel: %s is already mounted on the host, refusing to boot against it", abs)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatalf("tinykernel: %v", err)
	}
}

func run(args []string) error {
	cfg, err := bootcfg.Parse(args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	if err := assertNotHostMounted(cfg.DiskImage); err != nil {
		return err
	}

	logger := log.New(os.Stderr, "tinykernel: ", log.LstdFlags)

	var (
		mgr  *mem.Manager
		disk *ata.Disk
	)

	// The physical allocator and the ATA identify sequence have no
	// data dependency on each other; bring them up concurrently
	// (memory_init / disk_init in the original boot sequence run back
	// to back for the same reason — no ordering constraint, just
	// historical sequencing).
	g, _ := errgroup.WithContext(context.Background())
	g.Go(func() error {
		mgr = mem.NewManager(cfg.ArenaBytes)
		return mgr.MapKernelRange(cfg.KernelBase, cfg.KernelSize, mem.Present|mem.Writable)
	})
	g.Go(func() error {
		dev, err := blockdev.Open(cfg.DiskImage, cfg.DiskSectors, cfg.ReadOnly)
		if err != nil {
			return fmt.Errorf("opening disk image: %w", err)
		}
		d, st := ata.Identify("sda", dev)
		if !st.Ok() {
			return fmt.Errorf("identifying disk: %s", st)
		}
		disk = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	files := vfs.NewTable(cfg.FileTableSize)

	// /dev and /home mount independently of each other once the
	// allocator and disk are ready, mirroring fs_init's
	// mount(FS_DEVFS,"/dev",...) followed by
	// mount(FS_FAT16,"/home",...) — run concurrently since neither
	// depends on the other's result.
	var (
		devMount  *vfs.Mount
		homeMount *vfs.Mount
	)
	g, _ = errgroup.WithContext(context.Background())
	g.Go(func() error {
		dfs := devfs.New()
		dfs.Register("tty0", console{}, vfs.FileTTY)
		devMount = files.Mount("/dev", dfs, false)
		return nil
	})
	g.Go(func() error {
		part := &disk.Partitions[1]
		// Scheduler/Requester stay nil: the task scheduler doesn't
		// exist yet at boot time, and an uncontended Mutex.Lock never
		// touches them (see ksync.Mutex.Lock).
		bdev := &ata.PartitionBlockDevice{Disk: disk, Part: part}
		vol, st := fat16.Mount(bdev)
		if !st.Ok() {
			return fmt.Errorf("mounting /home: %s", st)
		}
		homeMount = files.Mount("/home", &fat16.FS{Vol: vol}, true)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}
	_ = devMount
	files.SetRoot(homeMount)

	sched := task.New(cfg.TaskTableSize, mgr, files)

	idle, st := sched.Create("idle", task.FlagSystem, 0, 0)
	if !st.Ok() {
		return fmt.Errorf("creating idle task: %s", st)
	}
	sched.SetIdle(idle)

	init0, st := sched.Create("init", 0, 0, 0)
	if !st.Ok() {
		return fmt.Errorf("creating init task: %s", st)
	}
	if st := sched.Exec(init0, &task.Frame{}, "/home/init", 0); st != status.ExecSucceeded {
		return fmt.Errorf("exec /home/init: %s", st)
	}
	sched.SetFirstTask(init0)
	sched.Start(init0)

	kernel := &trap.Kernel{Sched: sched, Log: logger}
	_ = kernel

	ticker := cpu.NewTicker(sched.TimeTick)
	defer ticker.Stop()

	logger.Printf("boot complete: %d-sector disk, %d tasks, tick=%dms", disk.SectorCount, cfg.TaskTableSize, cpu.TickMillis)
	select {}
}
