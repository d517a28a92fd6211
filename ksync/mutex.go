package ksync

import (
	"sync"

	"github.com/tinykernel-go/tinykernel/internal/cpu"
	"github.com/tinykernel-go/tinykernel/status"
)

// Mutex is a non-recursive, owner-tracked, blocking mutex. Lock on a
// held mutex blocks the caller (removing it
// from ready and parking it on the wait list); Unlock hands ownership
// directly to the head of the wait list rather than waking it to
// re-race for the lock.
type Mutex struct {
	mu    sync.Mutex // guards the fields below against concurrent goroutines
	owner TaskHandle
	waitQ fifo
}

// NewMutex returns an unlocked mutex.
func NewMutex() *Mutex { return &Mutex{} }

// Lock acquires the mutex for requester. If the mutex is free,
// ownership transfers immediately. Otherwise requester is removed
// from the ready list, appended to the wait queue, and the scheduler
// is asked to dispatch another task; the caller should treat a
// status.EBUSY return as "blocked, will hold the mutex once Unlock
// hands it off" rather than an error.
func (m *Mutex) Lock(sched Scheduler, requester TaskHandle) status.Status {
	s := cpu.EnterProtection()
	defer cpu.LeaveProtection(s)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner == nil {
		m.owner = requester
		return status.OK
	}
	sched.Block(requester)
	m.waitQ.push(requester)
	sched.Dispatch()
	return status.EBUSY
}

// Unlock releases the mutex. If a task is waiting, it becomes the new
// owner directly and is made READY; otherwise the mutex goes idle.
// Unlock by a non-owner is a programmer error (mirrors the original's
// lack of any ownership check, but we at least report it rather than
// silently corrupting state).
func (m *Mutex) Unlock(sched Scheduler) status.Status {
	s := cpu.EnterProtection()
	defer cpu.LeaveProtection(s)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.owner == nil {
		return status.EINVAL
	}
	next, ok := m.waitQ.pop()
	if !ok {
		m.owner = nil
		return status.OK
	}
	m.owner = next
	sched.Ready(next)
	return status.OK
}

// Owner returns the current holder, or nil if the mutex is free.
func (m *Mutex) Owner() TaskHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owner
}
