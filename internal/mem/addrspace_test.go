package mem

import "testing"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(64 * PageSize)
	if err := m.MapKernelRange(0, 4*PageSize, Present|Writable); err != nil {
		t.Fatalf("MapKernelRange: %v", err)
	}
	return m
}

func TestCreateUVMSharesKernelPDEs(t *testing.T) {
	m := newTestManager(t)
	as, err := m.CreateUVM()
	if err != nil {
		t.Fatalf("CreateUVM: %v", err)
	}
	if _, ok := as.Translate(0); !ok {
		t.Error("fresh address space does not see the shared kernel mapping")
	}
}

func TestAllocForRangeAndTranslate(t *testing.T) {
	m := newTestManager(t)
	as, _ := m.CreateUVM()

	const base = 0x08048000
	if err := as.AllocForRange(base, PageSize, Present|Writable|User); err != nil {
		t.Fatalf("AllocForRange: %v", err)
	}
	if _, ok := as.Translate(base); !ok {
		t.Fatal("mapped page did not translate")
	}
	if _, ok := as.Translate(base + PageSize); ok {
		t.Error("unmapped page translated successfully")
	}
}

func TestCopyToUserAndFromUser(t *testing.T) {
	m := newTestManager(t)
	as, _ := m.CreateUVM()

	const base = 0x08048000
	if err := as.AllocForRange(base, PageSize, Present|Writable|User); err != nil {
		t.Fatalf("AllocForRange: %v", err)
	}

	want := []byte("hello, kernel")
	if err := as.CopyToUser(base+8, want); err != nil {
		t.Fatalf("CopyToUser: %v", err)
	}
	got, err := as.CopyFromUser(base+8, len(want))
	if err != nil {
		t.Fatalf("CopyFromUser: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("CopyFromUser = %q, want %q", got, want)
	}
}

func TestCopyToUserUnmappedFails(t *testing.T) {
	m := newTestManager(t)
	as, _ := m.CreateUVM()
	if err := as.CopyToUser(0x08048000, []byte("x")); err == nil {
		t.Error("CopyToUser into an unmapped page did not fail")
	}
}

func TestCopyUVMIsADeepCopy(t *testing.T) {
	m := newTestManager(t)
	parent, _ := m.CreateUVM()

	const base = 0x08048000
	if err := parent.AllocForRange(base, PageSize, Present|Writable|User); err != nil {
		t.Fatalf("AllocForRange: %v", err)
	}
	if err := parent.CopyToUser(base, []byte("parent")); err != nil {
		t.Fatalf("CopyToUser: %v", err)
	}

	child, err := parent.CopyUVM()
	if err != nil {
		t.Fatalf("CopyUVM: %v", err)
	}

	if err := child.CopyToUser(base, []byte("child!")); err != nil {
		t.Fatalf("CopyToUser into child: %v", err)
	}

	got, _ := parent.CopyFromUser(base, 6)
	if string(got) != "parent" {
		t.Errorf("writing through child mutated parent: parent now reads %q", got)
	}
}

func TestDestroyFreesPrivateFrames(t *testing.T) {
	a := NewArena(64 * PageSize)
	m := &Manager{Arena: a, kernelPDEs: map[uint32]*pageTable{}, dirFrame: map[uint32]*AddressSpace{}}
	if err := m.MapKernelRange(0, PageSize, Present); err != nil {
		t.Fatalf("MapKernelRange: %v", err)
	}

	before := a.FreeCount()
	as, err := m.CreateUVM()
	if err != nil {
		t.Fatalf("CreateUVM: %v", err)
	}
	if err := as.AllocForRange(0x08048000, PageSize, Present|Writable|User); err != nil {
		t.Fatalf("AllocForRange: %v", err)
	}
	if a.FreeCount() == before {
		t.Fatal("AllocForRange did not consume any frames")
	}

	as.Destroy()
	if a.FreeCount() != before {
		t.Errorf("FreeCount after Destroy = %d, want %d (all private frames reclaimed)", a.FreeCount(), before)
	}
}
