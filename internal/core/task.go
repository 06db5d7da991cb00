// Package core implements the scheduler: tasks, per-worker queues, the
// work-stealing state machine, the io_uring engine and the runtime entry
// points. The public surface is re-exported by the root faio package.
package core

import (
	"fmt"
	"sync/atomic"
)

// Step is the outcome of one resume of a task's frame.
type Step uint8

const (
	// StepPending means the task suspended; its handle now belongs to the
	// event source it registered with.
	StepPending Step = iota
	// StepDone means the task ran to completion.
	StepDone
)

// Directive is what an awaiter reports after arming. On Suspend the frame
// must return StepPending without touching further state; on Ready the
// result is already available and the frame keeps running.
type Directive uint8

const (
	Suspend Directive = iota
	Ready
)

// Frame is the resumable body of a task: a state machine that runs until its
// next suspension point or completion. Locals that live across suspension
// belong in the closure's frame struct.
type Frame func(cx Ctx) Step

// Ctx is the execution context of one resume: the task being polled and the
// worker polling it. Awaiters and sync primitives take a Ctx; it is only
// valid for the duration of the resume that produced it.
type Ctx struct {
	w *Worker
	t *Task
}

// Task returns the task being resumed.
func (cx Ctx) Task() *Task { return cx.t }

// Schedule pushes a ready task onto the executing worker's local queue.
// Used by sync primitives to hand a woken waiter back to the scheduler.
func (cx Ctx) Schedule(t *Task) { cx.w.pushLocal(t) }

// Park marks the running task as handed off to an event source. Every
// awaiter must call it immediately before publishing the task's handle;
// after Park the handle may be resumed by another worker at any moment.
func (cx Ctx) Park() { cx.t.resuming.Store(false) }

// Unpark revokes a Park when the awaiter took its fast path after all and
// the task keeps running.
func (cx Ctx) Unpark() { cx.t.resuming.Store(true) }

// Task is one suspended computation. A task handle is referenced by at most
// one ready queue slot or one wait list at any instant; whoever holds it
// owns the right to resume it exactly once.
type Task struct {
	frame Frame
	done  bool

	resuming atomic.Bool

	// caller, if set, is resumed when this task completes; panics propagate
	// to it instead of terminating the process.
	caller *Task
	// awaited is the child that just completed, delivered to the next
	// resume. Unless inspect is set, a child panic re-panics there.
	awaited *Task
	inspect bool

	panicVal any

	tracker *tracker

	onComplete  func(arg any)
	completeArg any
}

// NewTask wraps a frame into a task handle.
func NewTask(frame Frame) *Task {
	return &Task{frame: frame}
}

// IsDone reports whether the task has reached its final step.
func (t *Task) IsDone() bool { return t.done }

// Panicked returns the panic value captured from the task's frame, or nil.
func (t *Task) Panicked() any { return t.panicVal }

// SetCompletionCallback installs a hook invoked exactly once when the task
// reaches its final step, before its caller (if any) is resumed. The hook
// must not block and must not resume the task. Installing a new callback
// replaces the previous one.
func (t *Task) SetCompletionCallback(fn func(arg any), arg any) {
	t.onComplete = fn
	t.completeArg = arg
}

// setInspect marks the task as reading its awaited child's panic value
// itself instead of having resume re-panic it. Used by block_on shims.
func (t *Task) setInspect() { t.inspect = true }

// Spawn submits child as an independent task on the executing worker's
// local queue. The current block_on tracker, if any, is propagated and the
// child is registered with it.
func (cx Ctx) Spawn(child *Task) {
	if tr := cx.t.tracker; tr != nil {
		child.tracker = tr
		tr.register()
		child.SetCompletionCallback(trackerComplete, tr)
	}
	cx.w.pushLocal(child)
}

// Await suspends the current task until child completes. The child inherits
// the tracker without registering; it is accounted through its caller. The
// frame must return StepPending immediately after a Suspend directive and
// may read the child's results on the next resume.
func (cx Ctx) Await(child *Task) Directive {
	child.tracker = cx.t.tracker
	child.caller = cx.t
	cx.Park()
	cx.w.pushLocal(child)
	return Suspend
}

// resume runs the task's frame until its next suspension point. Only the
// worker that popped the handle may call it.
func (t *Task) resume(w *Worker) {
	if t.done {
		panic("core: resume of a completed task")
	}
	if !t.resuming.CompareAndSwap(false, true) {
		panic("core: resume of a running task")
	}
	step := t.protectedPoll(Ctx{w: w, t: t})
	if step == StepDone {
		t.finalize(w)
	}
}

func (t *Task) protectedPoll(cx Ctx) (step Step) {
	defer func() {
		if r := recover(); r != nil {
			t.panicVal = r
			step = StepDone
		}
	}()
	if c := t.awaited; c != nil {
		t.awaited = nil
		if c.panicVal != nil && !t.inspect {
			panic(c.panicVal)
		}
	}
	return t.frame(cx)
}

// finalize runs the completion callback, then hands control back to the
// caller or, for a top-level task with an unhandled panic, terminates.
func (t *Task) finalize(w *Worker) {
	t.done = true
	t.resuming.Store(false)
	if cb := t.onComplete; cb != nil {
		t.onComplete = nil
		cb(t.completeArg)
	}
	if c := t.caller; c != nil {
		t.caller = nil
		c.awaited = t
		w.pushLocal(c)
		return
	}
	if t.panicVal != nil {
		// A spawned task owns its own error handling; an escaped panic is
		// fatal because the frame's invariants are unknown from here.
		panic(fmt.Sprintf("core: unhandled panic in spawned task: %v", t.panicVal))
	}
}
