package core

import (
	"sync"
	"sync/atomic"
)

// GlobalQueue is the shared unbounded FIFO of ready tasks. Closing is sticky
// and is how shutdown is broadcast: workers refresh their shutdown flag from
// the closed bit.
type GlobalQueue struct {
	mu     sync.Mutex
	items  []*Task
	next   int // pop position inside items
	size   atomic.Int64
	closed atomic.Bool
}

// Push appends one task. Returns false once the queue is closed.
func (g *GlobalQueue) Push(t *Task) bool {
	if g.closed.Load() {
		return false
	}
	g.mu.Lock()
	if g.closed.Load() {
		g.mu.Unlock()
		return false
	}
	g.items = append(g.items, t)
	g.size.Add(1)
	g.mu.Unlock()
	return true
}

// PushBatch appends tasks in order as one atomic batch.
func (g *GlobalQueue) PushBatch(tasks []*Task) bool {
	if len(tasks) == 0 {
		return true
	}
	if g.closed.Load() {
		return false
	}
	g.mu.Lock()
	if g.closed.Load() {
		g.mu.Unlock()
		return false
	}
	g.items = append(g.items, tasks...)
	g.size.Add(int64(len(tasks)))
	g.mu.Unlock()
	return true
}

// TryPop removes and returns the oldest task, or nil when empty. Draining
// continues after close until the queue runs dry.
func (g *GlobalQueue) TryPop() *Task {
	if g.size.Load() == 0 {
		return nil
	}
	g.mu.Lock()
	t := g.popLocked()
	g.mu.Unlock()
	return t
}

// TryPopBatch removes up to n of the oldest tasks in FIFO order.
func (g *GlobalQueue) TryPopBatch(n int) []*Task {
	if n <= 0 || g.size.Load() == 0 {
		return nil
	}
	g.mu.Lock()
	avail := len(g.items) - g.next
	if avail < n {
		n = avail
	}
	var batch []*Task
	if n > 0 {
		batch = make([]*Task, 0, n)
		for i := 0; i < n; i++ {
			batch = append(batch, g.popLocked())
		}
	}
	g.mu.Unlock()
	return batch
}

func (g *GlobalQueue) popLocked() *Task {
	if g.next >= len(g.items) {
		return nil
	}
	t := g.items[g.next]
	g.items[g.next] = nil
	g.next++
	if g.next == len(g.items) {
		g.items = g.items[:0]
		g.next = 0
	}
	g.size.Add(-1)
	return t
}

// Empty reports whether no tasks are queued.
func (g *GlobalQueue) Empty() bool { return g.size.Load() == 0 }

// Len returns the number of queued tasks.
func (g *GlobalQueue) Len() int { return int(g.size.Load()) }

// Close marks the queue closed. Pending tasks may still be drained.
func (g *GlobalQueue) Close() {
	g.mu.Lock()
	g.closed.Store(true)
	g.mu.Unlock()
}

// Closed reports whether Close has been called.
func (g *GlobalQueue) Closed() bool { return g.closed.Load() }
