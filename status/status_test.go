package status

import "testing"

func TestOk(t *testing.T) {
	if !OK.Ok() {
		t.Error("OK.Ok() = false, want true")
	}
	for _, s := range []Status{EINVAL, ENOENT, ENOMEM, EMFILE, ENOSPC, EIO, ENOSYS, EBUSY, ECHILD, ENOTTY, ENOEXEC} {
		if s.Ok() {
			t.Errorf("%v.Ok() = true, want false", s)
		}
	}
}

func TestStringUnknown(t *testing.T) {
	if got := Status(-999).String(); got != "unknown status" {
		t.Errorf("String() = %q, want %q", got, "unknown status")
	}
}

func TestStringNames(t *testing.T) {
	cases := map[Status]string{
		OK:      "OK",
		EINVAL:  "EINVAL",
		ENOEXEC: "ENOEXEC",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", s, got, want)
		}
	}
}
