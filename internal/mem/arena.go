// Package mem implements the physical allocator and a two-level
// page-table address-space simulation. There is no real MMU:
// "physical memory" is a single []byte arena sliced into page-sized
// frames, and a page directory/page table is a Go map keyed by the
// PDE/PTE index rather than a CR3-loaded hardware structure. The
// indexing math (10-bit PDE index, 10-bit PTE index, 12-bit offset)
// and the ownership/copy invariants follow the original x86 paging
// scheme.
package mem

import (
	"fmt"
	"sync"
)

// PageSize is the page/frame granularity: 4 KiB pages.
const PageSize = 4096

// Arena is the bitmap allocator over the post-kernel physical page
// pool. It owns the backing bytes for every frame any address space
// maps.
type Arena struct {
	mu     sync.Mutex
	bytes  []byte
	bitmap []uint64
	frames uint32
	free   uint32
}

// NewArena allocates a frame pool of the given size (rounded down to
// a whole number of pages).
func NewArena(size int) *Arena {
	frames := uint32(size / PageSize)
	words := (frames + 63) / 64
	return &Arena{
		bytes:  make([]byte, frames*PageSize),
		bitmap: make([]uint64, words),
		frames: frames,
		free:   frames,
	}
}

// FrameCount returns the total number of frames in the pool.
func (a *Arena) FrameCount() uint32 { return a.frames }

// FreeCount returns the number of unallocated frames.
func (a *Arena) FreeCount() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.free
}

// Alloc finds the lowest-numbered free frame, marks it used, zeroes
// it and returns its index. Returns (0, false) when the pool is
// exhausted.
func (a *Arena) Alloc() (uint32, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for w := range a.bitmap {
		if a.bitmap[w] == ^uint64(0) {
			continue
		}
		for b := 0; b < 64; b++ {
			idx := uint32(w*64 + b)
			if idx >= a.frames {
				break
			}
			if a.bitmap[w]&(1<<uint(b)) == 0 {
				a.bitmap[w] |= 1 << uint(b)
				a.free--
				clear(a.Frame(idx))
				return idx, true
			}
		}
	}
	return 0, false
}

// Free returns a frame to the pool. Freeing an already-free frame is
// a programmer error and panics, matching the original's "a frame is
// referenced by exactly one PTE" invariant.
func (a *Arena) Free(idx uint32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	w, b := idx/64, idx%64
	if a.bitmap[w]&(1<<b) == 0 {
		panic(fmt.Sprintf("mem: double free of frame %d", idx))
	}
	a.bitmap[w] &^= 1 << b
	a.free++
}

// Frame returns the PageSize-byte slice backing frame idx.
func (a *Arena) Frame(idx uint32) []byte {
	off := uint64(idx) * PageSize
	return a.bytes[off : off+PageSize]
}

func clear(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
