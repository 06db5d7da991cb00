// Package faio is an io_uring-backed asynchronous runtime: a multi-threaded
// work-stealing scheduler driving tasks written as resumable state machines,
// with per-worker hierarchical timers and coroutine-aware synchronization
// primitives.
//
// Tasks are poll-function state machines. A frame runs until it either
// completes (StepDone) or arms an awaiter; an awaiter that reports Suspend
// has taken ownership of the task handle, and the frame must return
// StepPending immediately:
//
//	type greet struct{ pc int }
//
//	func (g *greet) poll(cx faio.Ctx) faio.Step {
//		switch g.pc {
//		case 0:
//			g.pc = 1
//			if d, _ := faio.Sleep(cx, 10*time.Millisecond); d == faio.Suspend {
//				return faio.StepPending
//			}
//			fallthrough
//		default:
//			fmt.Println("hello")
//			return faio.StepDone
//		}
//	}
//
//	rt, _ := faio.New(faio.Config{})
//	defer rt.Stop()
//	rt.BlockOn(faio.NewTask((&greet{}).poll))
package faio

import (
	"github.com/superlxh02/faio/internal/core"
)

// Re-exported scheduler surface. The types are defined in internal/core;
// these aliases are the public names.
type (
	// Task is one suspended computation.
	Task = core.Task
	// Ctx is the execution context of one resume.
	Ctx = core.Ctx
	// Step is the outcome of one resume of a task's frame.
	Step = core.Step
	// Directive is an awaiter's verdict: Suspend or Ready.
	Directive = core.Directive
	// Frame is the resumable body of a task.
	Frame = core.Frame
	// Op is an I/O awaiter bound to the submitting task's frame.
	Op = core.Op
	// Runtime owns the worker threads and the shared scheduler state.
	Runtime = core.Runtime
)

const (
	// StepPending means the frame suspended on an awaiter.
	StepPending = core.StepPending
	// StepDone means the frame ran to completion.
	StepDone = core.StepDone
	// Suspend directs the frame to return StepPending.
	Suspend = core.Suspend
	// Ready means the awaiter's result is already available.
	Ready = core.Ready
)

// NewTask wraps a frame into a task handle.
func NewTask(frame Frame) *Task { return core.NewTask(frame) }

// Errors surfaced by awaiters.
var (
	// ErrTimedOut is the result of an I/O op whose deadline fired first.
	ErrTimedOut = core.ErrTimedOut
	// ErrSQFull reports a saturated submission ring at preparation time.
	ErrSQFull = core.ErrSQFull
	// ErrDeadlineTooFar reports a timer beyond the wheel's maximum span.
	ErrDeadlineTooFar = core.ErrDeadlineTooFar
)
