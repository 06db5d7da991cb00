package faio

import (
	"time"

	"github.com/superlxh02/faio/internal/core"
)

// Sleep suspends the current task for d. Sleep(0) still suspends: the task
// re-enters the ready queue behind its neighbours, which makes it the
// fairness yield.
func Sleep(cx Ctx, d time.Duration) (Directive, error) {
	return core.Sleep(cx, d)
}

// SleepUntil suspends the current task until deadline.
func SleepUntil(cx Ctx, deadline time.Time) (Directive, error) {
	return core.SleepUntil(cx, deadline)
}

// Yield suspends the current task and immediately re-enqueues it.
func Yield(cx Ctx) Directive {
	return core.Yield(cx)
}

// MissedTickBehavior selects how Interval catches up when ticks are missed.
type MissedTickBehavior uint8

const (
	// Burst fires all missed ticks back to back until caught up.
	Burst MissedTickBehavior = iota
	// Delay restarts the period from the current time.
	Delay
	// Skip drops missed ticks and aligns to the next natural period point.
	Skip
)

// Interval is a periodic timer. Each Tick arms a sleep until the current
// deadline and advances it by one period according to the missed-tick
// behavior.
type Interval struct {
	deadline time.Time
	period   time.Duration
	behavior MissedTickBehavior
}

// NewInterval creates a periodic timer whose first tick fires one period
// from now.
func NewInterval(period time.Duration) *Interval {
	return NewIntervalAt(time.Now(), period)
}

// NewIntervalAt creates a periodic timer whose first tick fires at
// start + period.
func NewIntervalAt(start time.Time, period time.Duration) *Interval {
	return &Interval{deadline: start.Add(period), period: period}
}

// Period returns the tick period.
func (iv *Interval) Period() time.Duration { return iv.period }

// SetMissedTickBehavior changes how missed ticks are handled.
func (iv *Interval) SetMissedTickBehavior(b MissedTickBehavior) { iv.behavior = b }

// MissedTickBehavior returns the current catch-up policy.
func (iv *Interval) MissedTickBehavior() MissedTickBehavior { return iv.behavior }

// Tick suspends until the current deadline and schedules the next one. A
// deadline already in the past resumes immediately (Ready), which is how
// Burst catches up.
func (iv *Interval) Tick(cx Ctx) (Directive, error) {
	expired := iv.deadline
	iv.deadline = iv.nextTimeout()
	return SleepUntil(cx, expired)
}

// Reset pushes the next tick one period from now.
func (iv *Interval) Reset() {
	iv.deadline = time.Now().Add(iv.period)
}

// ResetImmediately makes the next tick fire at once.
func (iv *Interval) ResetImmediately() {
	iv.deadline = time.Now()
}

// ResetAfter pushes the next tick the given duration from now.
func (iv *Interval) ResetAfter(after time.Duration) {
	iv.deadline = time.Now().Add(after)
}

// ResetAt moves the next tick to an absolute deadline.
func (iv *Interval) ResetAt(deadline time.Time) {
	iv.deadline = deadline
}

func (iv *Interval) nextTimeout() time.Time {
	now := time.Now()
	switch iv.behavior {
	case Delay:
		return now.Add(iv.period)
	case Skip:
		if !iv.deadline.Before(now) {
			return iv.deadline.Add(iv.period)
		}
		missed := now.Sub(iv.deadline)
		skip := int64(missed/iv.period) + 1
		return iv.deadline.Add(time.Duration(skip) * iv.period)
	default: // Burst
		return iv.deadline.Add(iv.period)
	}
}
