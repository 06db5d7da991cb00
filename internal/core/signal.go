package core

import "sync/atomic"

// completionSignal lets an external thread block until a worker reports
// completion. Waiters spin briefly before blocking; there is exactly one
// signaller. Writers publish with release, waiters acquire (the atomic
// store/load pair plus the channel close).
type completionSignal struct {
	status atomic.Uint32
	ch     chan struct{}
}

const signalSpins = 32

func newCompletionSignal() *completionSignal {
	return &completionSignal{ch: make(chan struct{})}
}

func (s *completionSignal) isReady() bool {
	return s.status.Load() == 1
}

// markReady wakes the waiter. Idempotent.
func (s *completionSignal) markReady() {
	if s.status.CompareAndSwap(0, 1) {
		close(s.ch)
	}
}

// wait blocks until markReady.
func (s *completionSignal) wait() {
	for i := 0; i < signalSpins; i++ {
		if s.isReady() {
			return
		}
	}
	<-s.ch
}

// tracker counts the root task plus every task transitively spawned inside
// a block_on or wait_all context. The last decrement to zero signals the
// blocked submitter.
type tracker struct {
	pending atomic.Int64
	signal  *completionSignal
}

func newTracker() *tracker {
	return &tracker{signal: newCompletionSignal()}
}

func (tr *tracker) register() {
	tr.pending.Add(1)
}

func (tr *tracker) complete() {
	if tr.pending.Add(-1) == 0 {
		tr.signal.markReady()
	}
}

func (tr *tracker) waitAllDone() {
	tr.signal.wait()
}

// trackerComplete is the completion callback installed on tracked tasks.
func trackerComplete(arg any) {
	arg.(*tracker).complete()
}
