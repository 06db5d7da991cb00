package faio

import "sync/atomic"

// muWaiter is one suspended lock acquisition, a node in the Treiber stack.
type muWaiter struct {
	task *Task
	next *muWaiter
}

// Mutex is a nonrecursive coroutine-suspending lock. The single atomic
// state word encodes three cases: nil is unlocked, the internal sentinel is
// locked with no waiters, anything else is locked with a LIFO stack of
// waiters. Unlock drains the stack into a FIFO so waiters are admitted in
// enqueue order while the fast paths stay a single CAS.
//
// Unlocking an unlocked mutex is a fatal error; locking recursively
// deadlocks the task.
type Mutex struct {
	state    atomic.Pointer[muWaiter]
	sentinel muWaiter
	// fifo is the reversed drain of a taken waiter stack. Only the lock
	// holder touches it.
	fifo *muWaiter
}

// TryLock acquires the lock if it is free. Not an awaiter.
func (m *Mutex) TryLock() bool {
	return m.state.CompareAndSwap(nil, &m.sentinel)
}

// Lock acquires the lock, suspending the current task while another holds
// it. On Suspend the frame must return StepPending; the task resumes
// holding the lock.
func (m *Mutex) Lock(cx Ctx) Directive {
	for {
		st := m.state.Load()
		if st == nil {
			if m.state.CompareAndSwap(nil, &m.sentinel) {
				return Ready
			}
			continue
		}
		w := &muWaiter{task: cx.Task(), next: st}
		cx.Park()
		if m.state.CompareAndSwap(st, w) {
			return Suspend
		}
		cx.Unpark()
	}
}

// Unlock releases the lock. With waiters pending, ownership transfers
// directly to the first-enqueued waiter, which is scheduled on the current
// worker; the remainder of the drained stack is kept for later unlocks.
func (m *Mutex) Unlock(cx Ctx) {
	if m.state.Load() == nil {
		panic("faio: unlock of unlocked mutex")
	}
	if m.fifo == nil {
		if m.state.CompareAndSwap(&m.sentinel, nil) {
			return
		}
		// Take the whole LIFO stack, leaving the lock held for the
		// handed-off waiter, and reverse it into FIFO order.
		head := m.state.Swap(&m.sentinel)
		for n := head; n != nil && n != &m.sentinel; {
			next := n.next
			n.next = m.fifo
			m.fifo = n
			n = next
		}
	}
	w := m.fifo
	m.fifo = w.next
	w.next = nil
	cx.Schedule(w.task)
}
