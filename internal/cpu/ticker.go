package cpu

import "time"

// TickMillis is the programmable interval timer's tick period
// (OS_TICK_MS in the original source).
const TickMillis = 10

// Ticker drives task_time_tick equivalents at a fixed period. It
// wraps time.Ticker rather than a hardware PIT channel — there is no
// periodic-interrupt library in the Go ecosystem to reach for instead;
// stdlib time.Ticker is the idiomatic way to fire a callback every N
// milliseconds in Go.
type Ticker struct {
	t    *time.Ticker
	stop chan struct{}
}

// NewTicker starts firing fn every TickMillis until Stop is called.
// fn runs on the ticker's own goroutine; callers that touch scheduler
// state from fn must take cpu.EnterProtection/LeaveProtection
// themselves, exactly as task_time_tick does around its list walks.
func NewTicker(fn func()) *Ticker {
	tk := &Ticker{
		t:    time.NewTicker(TickMillis * time.Millisecond),
		stop: make(chan struct{}),
	}
	go func() {
		for {
			select {
			case <-tk.t.C:
				fn()
			case <-tk.stop:
				return
			}
		}
	}()
	return tk
}

// Stop halts the ticker goroutine.
func (tk *Ticker) Stop() {
	tk.t.Stop()
	close(tk.stop)
}
