package ksync

import (
	"sync"

	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/status"
)

// Semaphore is a counting semaphore: Wait
// atomically decrements if positive, else blocks; Notify wakes one
// waiter if any, else increments. Used both as a rendezvous (the ATA
// IRQ completion signal, see package ata) and as a general blocking
// primitive.
type Semaphore struct {
	mu    sync.Mutex
	count int
	waitQ fifo
}

// NewSemaphore returns a semaphore initialised to count.
func NewSemaphore(count int) *Semaphore {
	return &Semaphore{count: count}
}

// Wait decrements the semaphore, blocking requester if it is
// currently zero.
func (s *Semaphore) Wait(sched Scheduler, requester TaskHandle) status.Status {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.count > 0 {
		s.count--
		return status.OK
	}
	sched.Block(requester)
	s.waitQ.push(requester)
	sched.Dispatch()
	return status.EBUSY
}

// Notify wakes the oldest waiter if any, otherwise increments the
// count.
func (s *Semaphore) Notify(sched Scheduler) {
	st := cpu.EnterProtection()
	defer cpu.LeaveProtection(st)

	s.mu.Lock()
	defer s.mu.Unlock()

	next, ok := s.waitQ.pop()
	if !ok {
		s.count++
		return
	}
	sched.Ready(next)
}

// Count returns the current count (for tests and introspection only;
// the original exposes no such accessor).
func (s *Semaphore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}
