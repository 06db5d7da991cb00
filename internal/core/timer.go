package core

import (
	"time"

	"github.com/superlxh02/faio/internal/wheel"
)

// ErrDeadlineTooFar is re-exported so callers need not import the wheel.
var ErrDeadlineTooFar = wheel.ErrDeadlineTooFar

// SleepUntil registers the current task on the executing worker's timing
// wheel. Ready means the deadline already passed and the frame keeps
// running; on Suspend the frame must return StepPending.
func SleepUntil(cx Ctx, deadline time.Time) (Directive, error) {
	if !deadline.After(time.Now()) {
		return Ready, nil
	}
	cx.Park()
	if _, err := cx.w.engine.timer.Add(deadline, cx.t); err != nil {
		cx.Unpark()
		return Ready, err
	}
	return Suspend, nil
}

// Sleep suspends the current task for d. Sleep(0) still suspends: the task
// is re-enqueued behind its queue neighbours, which is the fairness yield.
func Sleep(cx Ctx, d time.Duration) (Directive, error) {
	if d <= 0 {
		return Yield(cx), nil
	}
	return SleepUntil(cx, time.Now().Add(d))
}

// Yield suspends the current task and immediately re-enqueues it on the
// local queue.
func Yield(cx Ctx) Directive {
	cx.Park()
	cx.w.pushLocal(cx.t)
	return Suspend
}
