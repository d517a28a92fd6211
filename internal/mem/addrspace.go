package mem

const (
	pdeIndexShift = 22
	pteIndexShift = 12
	indexMask     = 0x3FF // 10 bits
	offsetMask    = 0xFFF // 12 bits
)

// PTEFlags mirrors the PTE_P/PTE_W/PTE_U bits of the original source.
type PTEFlags uint8

const (
	Present PTEFlags = 1 << iota
	Writable
	User
)

type pte struct {
	frame uint32
	flags PTEFlags
}

// pageTable is one page-table page: up to 1024 PTEs, plus the frame
// backing the table itself and whether it (and everything under it)
// is kernel-owned and therefore shared, never freed by a child
// address space.
type pageTable struct {
	frame   uint32
	entries map[uint32]*pte
	shared  bool
}

// Manager bundles the physical allocator with the kernel's shared
// page-table pages, injected explicitly instead of held as file-scope
// globals. Every AddressSpace keeps a reference to the Manager that
// created it and allocates and frees frames through it.
type Manager struct {
	Arena      *Arena
	kernelPDEs map[uint32]*pageTable
	dirFrame   map[uint32]*AddressSpace // dir id -> owning address space, for lookups
}

// NewManager creates a physical allocator of the given size and an
// empty kernel mapping set; callers populate kernel mappings with
// MapKernelRange before creating any user address space.
func NewManager(arenaSize int) *Manager {
	return &Manager{
		Arena:      NewArena(arenaSize),
		kernelPDEs: make(map[uint32]*pageTable),
		dirFrame:   make(map[uint32]*AddressSpace),
	}
}

// AddressSpace is one process's virtual address space: a page
// directory (map of PDE index -> pageTable) plus the frame backing
// the directory. Kernel PDEs are references into Manager.kernelPDEs
// and are never freed by DestroyUVM; user PDEs are private.
type AddressSpace struct {
	mgr      *Manager
	dirFrame uint32
	pdes     map[uint32]*pageTable
}

func split(vaddr uint32) (pdeIdx, pteIdx, offset uint32) {
	return (vaddr >> pdeIndexShift) & indexMask, (vaddr >> pteIndexShift) & indexMask, vaddr & offsetMask
}

// MapKernelRange installs shared kernel mappings that every future
// CreateUVM call will reference (identity map + high half). Call this
// once at boot before any task's address space is created.
func (m *Manager) MapKernelRange(vaddrStart uint32, size uint32, flags PTEFlags) error {
	for v := vaddrStart; v < vaddrStart+size; v += PageSize {
		pdeIdx, pteIdx, _ := split(v)
		pt := m.kernelPDEs[pdeIdx]
		if pt == nil {
			frameIdx, ok := m.Arena.Alloc()
			if !ok {
				return errNoMemory
			}
			pt = &pageTable{frame: frameIdx, entries: make(map[uint32]*pte), shared: true}
			m.kernelPDEs[pdeIdx] = pt
		}
		frameIdx, ok := m.Arena.Alloc()
		if !ok {
			return errNoMemory
		}
		pt.entries[pteIdx] = &pte{frame: frameIdx, flags: flags}
	}
	return nil
}

// CreateUVM allocates a fresh page directory, seeds it with the
// shared kernel PDEs, and returns the new address space, the Go
// analogue of memory_create_uvm.
func (m *Manager) CreateUVM() (*AddressSpace, error) {
	dirFrame, ok := m.Arena.Alloc()
	if !ok {
		return nil, errNoMemory
	}
	as := &AddressSpace{
		mgr:      m,
		dirFrame: dirFrame,
		pdes:     make(map[uint32]*pageTable),
	}
	for idx, pt := range m.kernelPDEs {
		as.pdes[idx] = pt // shared by reference, not copied
	}
	m.dirFrame[dirFrame] = as
	return as, nil
}

// DirID is the simulated CR3 value identifying this address space.
func (as *AddressSpace) DirID() uint32 { return as.dirFrame }

func (as *AddressSpace) userTable(pdeIdx uint32, create bool) (*pageTable, error) {
	pt, ok := as.pdes[pdeIdx]
	if ok {
		if pt.shared {
			panic("mem: attempt to write into a shared kernel page table")
		}
		return pt, nil
	}
	if !create {
		return nil, nil
	}
	frameIdx, ok := as.mgr.Arena.Alloc()
	if !ok {
		return nil, errNoMemory
	}
	pt = &pageTable{frame: frameIdx, entries: make(map[uint32]*pte)}
	as.pdes[pdeIdx] = pt
	return pt, nil
}

// AllocForRange allocates one frame per page in [vaddr, vaddr+size)
// and installs PTEs with the given flags, allocating page-table
// pages on demand, the Go analogue of memory_alloc_for_page_dir.
func (as *AddressSpace) AllocForRange(vaddr, size uint32, flags PTEFlags) error {
	start := vaddr &^ offsetMask
	end := vaddr + size
	for v := start; v < end; v += PageSize {
		pdeIdx, pteIdx, _ := split(v)
		pt, err := as.userTable(pdeIdx, true)
		if err != nil {
			return err
		}
		if _, exists := pt.entries[pteIdx]; exists {
			continue
		}
		frameIdx, ok := as.mgr.Arena.Alloc()
		if !ok {
			return errNoMemory
		}
		pt.entries[pteIdx] = &pte{frame: frameIdx, flags: flags}
	}
	return nil
}

// Translate resolves vaddr to a physical byte address (frame*PageSize
// + offset), or (0, false) if unmapped, the Go analogue of
// memory_get_paddr.
func (as *AddressSpace) Translate(vaddr uint32) (uint32, bool) {
	pdeIdx, pteIdx, offset := split(vaddr)
	pt, ok := as.pdes[pdeIdx]
	if !ok {
		return 0, false
	}
	e, ok := pt.entries[pteIdx]
	if !ok || e.flags&Present == 0 {
		return 0, false
	}
	return e.frame*PageSize + offset, true
}

// bytesAt returns the live backing slice for one page starting at
// vaddr (vaddr must be page-aligned and mapped).
func (as *AddressSpace) bytesAt(vaddr uint32) []byte {
	pdeIdx, pteIdx, _ := split(vaddr)
	pt := as.pdes[pdeIdx]
	e := pt.entries[pteIdx]
	return as.mgr.Arena.Frame(e.frame)
}

// CopyUVM deep-copies every mapped user page of as into a fresh
// address space: new frames, identical contents, identical flags —
// memory_copy_uvm's fork() snapshot.
func (as *AddressSpace) CopyUVM() (*AddressSpace, error) {
	dst, err := as.mgr.CreateUVM()
	if err != nil {
		return nil, err
	}
	for pdeIdx, pt := range as.pdes {
		if pt.shared {
			continue // kernel PDEs already referenced by CreateUVM
		}
		for pteIdx, e := range pt.entries {
			vaddr := pdeIdx<<pdeIndexShift | pteIdx<<pteIndexShift
			if err := dst.AllocForRange(vaddr, PageSize, e.flags); err != nil {
				dst.Destroy()
				return nil, err
			}
			copy(dst.bytesAt(vaddr), as.mgr.Arena.Frame(e.frame))
		}
	}
	return dst, nil
}

// Destroy frees every private user frame, every private page-table
// page, and finally the directory frame itself. Shared kernel PDEs
// are left untouched, the Go analogue of memory_destroy_uvm.
func (as *AddressSpace) Destroy() {
	for pdeIdx, pt := range as.pdes {
		if pt.shared {
			continue
		}
		for _, e := range pt.entries {
			as.mgr.Arena.Free(e.frame)
		}
		as.mgr.Arena.Free(pt.frame)
		delete(as.pdes, pdeIdx)
	}
	as.mgr.Arena.Free(as.dirFrame)
	delete(as.mgr.dirFrame, as.dirFrame)
}

// CopyToUser copies len(data) bytes from kernel memory into this
// address space's user mapping at toVaddr, translating page by page —
// memory_copy_uvm_data, used to marshal argv onto a child's stack
// during execve.
func (as *AddressSpace) CopyToUser(toVaddr uint32, data []byte) error {
	written := 0
	for written < len(data) {
		v := toVaddr + uint32(written)
		pageBase := v &^ offsetMask
		offset := v % PageSize
		if _, ok := as.Translate(pageBase); !ok {
			return errUnmapped
		}
		page := as.bytesAt(pageBase)
		n := copy(page[offset:], data[written:])
		written += n
	}
	return nil
}

// CopyFromUser is CopyToUser's mirror: it reads length bytes out of
// this address space's user mapping starting at fromVaddr, the
// operation trap handlers use to fetch a syscall's string/buffer
// arguments out of user memory.
func (as *AddressSpace) CopyFromUser(fromVaddr uint32, length int) ([]byte, error) {
	out := make([]byte, length)
	read := 0
	for read < length {
		v := fromVaddr + uint32(read)
		pageBase := v &^ offsetMask
		offset := v % PageSize
		if _, ok := as.Translate(pageBase); !ok {
			return nil, errUnmapped
		}
		page := as.bytesAt(pageBase)
		n := copy(out[read:], page[offset:])
		read += n
	}
	return out, nil
}
