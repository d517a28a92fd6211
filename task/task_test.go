package task

import "testing"

func TestFdAllocAndRemove(t *testing.T) {
	tk := newTask(1, "t", nil)

	fd := tk.allocFd(42)
	if fd < 0 {
		t.Fatalf("allocFd returned %d, want >= 0", fd)
	}
	if got := tk.Fd(fd); got != 42 {
		t.Errorf("Fd(%d) = %d, want 42", fd, got)
	}

	tk.removeFd(fd)
	if got := tk.Fd(fd); got != -1 {
		t.Errorf("Fd(%d) after removeFd = %d, want -1", fd, got)
	}
}

func TestFdTableExhaustion(t *testing.T) {
	tk := newTask(1, "t", nil)
	for i := 0; i < OFileNR; i++ {
		if fd := tk.allocFd(i); fd < 0 {
			t.Fatalf("allocFd(%d) failed before the table was full", i)
		}
	}
	if fd := tk.allocFd(99); fd != -1 {
		t.Errorf("allocFd on a full table = %d, want -1", fd)
	}
}

func TestFdOutOfRangeIsUnset(t *testing.T) {
	tk := newTask(1, "t", nil)
	if got := tk.Fd(-1); got != -1 {
		t.Errorf("Fd(-1) = %d, want -1", got)
	}
	if got := tk.Fd(OFileNR); got != -1 {
		t.Errorf("Fd(OFileNR) = %d, want -1", got)
	}
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Created:   "CREATED",
		Ready:     "READY",
		Running:   "RUNNING",
		Sleeping:  "SLEEPING",
		Waiting:   "WAITING",
		Zombie:    "ZOMBIE",
		State(99): "UNKNOWN",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewTaskStartsWithNoOpenDescriptors(t *testing.T) {
	tk := newTask(1, "t", nil)
	for fd := 0; fd < OFileNR; fd++ {
		if got := tk.Fd(fd); got != -1 {
			t.Errorf("fresh task Fd(%d) = %d, want -1", fd, got)
		}
	}
}
