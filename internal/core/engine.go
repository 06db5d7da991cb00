package core

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/superlxh02/faio/internal/uring"
	"github.com/superlxh02/faio/internal/wheel"
)

// ioDesc is the user-data record attached to one submitted operation. It
// lives on the awaiter's frame for the whole suspension; the engine refers
// to it through the inflight table keyed by a per-engine id.
type ioDesc struct {
	task  *Task
	res   int32
	timer *wheel.Node
	id    uint64
}

// Engine is the per-worker I/O side: one io_uring, one eventfd waker, one
// timing wheel. All methods except Wake are owner-thread only.
type Engine struct {
	ring  *uring.Ring
	waker *uring.Waker
	timer *wheel.Wheel

	inflight map[uint64]*ioDesc
	nextID   uint64

	cqes [LocalQueueCapacity]uring.CQE
}

func newEngine(cfg Config) (*Engine, error) {
	ring, err := uring.NewRing(cfg.NumEvents, cfg.SubmitInterval)
	if err != nil {
		return nil, err
	}
	waker, err := uring.NewWaker()
	if err != nil {
		_ = ring.Close()
		return nil, err
	}
	return &Engine{
		ring:     ring,
		waker:    waker,
		timer:    wheel.New(),
		inflight: make(map[uint64]*ioDesc),
		nextID:   1,
	}, nil
}

func (e *Engine) close() {
	_ = e.ring.Close()
	_ = e.waker.Close()
}

// Wake breaks the engine out of a kernel wait. Callable from any thread.
func (e *Engine) Wake() { e.waker.Wake() }

// prepare reserves a submission slot and registers desc in the inflight
// table. Returns ok=false when the submission ring is saturated even after
// a forced flush; the awaiter then resumes immediately with ErrSQFull.
func (e *Engine) prepare(desc *ioDesc, task *Task) (*uring.SQE, bool) {
	sqe := e.ring.GetSQE()
	if sqe == nil {
		e.ring.ResetAndSubmit()
		sqe = e.ring.GetSQE()
		if sqe == nil {
			return nil, false
		}
	}
	id := e.nextID
	e.nextID++
	*desc = ioDesc{task: task, id: id}
	e.inflight[id] = desc
	sqe.UserData = id
	return sqe, true
}

// cancelPrepared backs out a prepared submission that cannot go ahead; the
// slot is downgraded to a no-op so the ring state stays consistent.
func (e *Engine) cancelPrepared(desc *ioDesc, sqe *uring.SQE) {
	delete(e.inflight, desc.id)
	*sqe = uring.SQE{Opcode: uring.OpNop, Fd: -1}
}

// armDeadline registers an I/O timeout for desc. When the wheel fires first
// the descriptor resolves to -ETIMEDOUT and a kernel cancel is submitted.
func (e *Engine) armDeadline(desc *ioDesc, deadline time.Time) error {
	node, err := e.timer.Add(deadline, desc)
	if err != nil {
		return err
	}
	desc.timer = node
	return nil
}

// submit counts one prepared operation toward the batching interval.
func (e *Engine) submit() { e.ring.Submit() }

// drive drains up to one batch of completions and fires due timers, pushing
// every resumed task onto the local queue. Returns whether any task became
// ready.
func (e *Engine) drive(local *localQueue, global *GlobalQueue) bool {
	n := e.ring.PeekBatch(e.cqes[:])
	produced := 0
	for i := 0; i < n; i++ {
		cqe := &e.cqes[i]
		if cqe.UserData == 0 {
			// Internal op: eventfd read, wait timeout, or a cancel ack.
			continue
		}
		desc, ok := e.inflight[cqe.UserData]
		if !ok {
			// Already resolved by a timer fire; the late kernel completion
			// (original result or cancel status) is dropped here.
			continue
		}
		delete(e.inflight, cqe.UserData)
		if desc.timer != nil {
			e.timer.Remove(desc.timer)
			desc.timer = nil
		}
		desc.res = cqe.Res
		local.push(desc.task, global)
		produced++
	}
	e.ring.Consume(n)

	produced += e.timer.Poll(func(node *wheel.Node) {
		switch p := node.Payload.(type) {
		case *Task:
			local.push(p, global)
		case *ioDesc:
			if p.timer != node {
				// Stale node: the op already completed (or the descriptor
				// was reused) after Remove could not unlink this node.
				return
			}
			p.res = -int32(unix.ETIMEDOUT)
			p.timer = nil
			delete(e.inflight, p.id)
			e.ring.PrepCancel(p.id)
			local.push(p.task, global)
		}
	})

	e.waker.StartWatch(e.ring)
	e.ring.ResetAndSubmit()
	return produced > 0
}

// wait blocks in the kernel until a completion, a cross-thread wake, or the
// wheel's next deadline.
func (e *Engine) wait() {
	if ms, ok := e.timer.NextDelayMS(); ok {
		e.ring.Wait(ms, true)
	} else {
		e.ring.Wait(0, false)
	}
}
