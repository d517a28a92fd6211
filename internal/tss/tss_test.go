package tss

import "testing"

func TestNewEnablesInterruptFlag(t *testing.T) {
	tss := New()
	if tss.EFlags&EflagsIF == 0 {
		t.Error("New() TSS does not have the interrupt-enable flag set")
	}
}
