// Package ksync implements two blocking primitives: a non-recursive,
// owner-tracked mutex and a counting semaphore, both integrating with
// the scheduler's ready list the way mutex_lock/sem_wait do in the
// original source (sync primitives remove the blocked task from ready
// and hand it directly to the next waiter on release, rather than
// making it race to re-acquire).
//
// Grounded on go-fuse's portableHandleMap (fuse/handle.go): a small,
// mutex-protected registration structure with FIFO hand-off semantics,
// adapted here from "handle -> object" lookup to "ownership -> waiter
// queue".
package ksync

// TaskHandle identifies a blockable execution context. *task.Task
// satisfies this interface structurally so that ksync never needs to
// import the task package.
type TaskHandle interface {
	TaskName() string
}

// Scheduler is the slice of scheduler behavior the blocking
// primitives drive directly. These are the lock-free list primitives
// (task_set_block/task_set_ready/task_dispatch in the original
// source); they run inside a critical section equivalent to
// irq_enter_protection, which each Lock/Wait/Unlock/Notify call below
// establishes for itself via internal/cpu before calling them. That
// section is not reentrant, so a Lock/Wait/Unlock/Notify made while
// it is already held blocks.
type Scheduler interface {
	Block(TaskHandle)
	Ready(TaskHandle)
	Dispatch()
}

// fifo is a small FIFO queue of waiters, used by both Mutex and
// Semaphore to give blocked callers a deterministic wake order.
type fifo struct {
	items []TaskHandle
}

func (q *fifo) push(t TaskHandle) { q.items = append(q.items, t) }

func (q *fifo) pop() (TaskHandle, bool) {
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

func (q *fifo) len() int { return len(q.items) }
