package core

import (
	"strconv"
	"sync/atomic"

	"github.com/superlxh02/faio/internal/trace"
)

// Worker is one scheduler thread: a local ready queue, a single-slot task
// cache, and an I/O engine. The loop order is local work, steal, I/O,
// sleep; the tick counter forces periodic global-queue polls and I/O drives
// so neither starves under a long local run.
type Worker struct {
	shared *shared
	id     int
	tick   uint32
	engine *Engine
	local  localQueue

	// cache holds the most recently self-scheduled task; popping it first
	// keeps task chains on a warm cache line.
	cache *Task

	shutdown  bool
	searching atomic.Bool
}

func newWorker(s *shared, id int) (*Worker, error) {
	engine, err := newEngine(s.cfg)
	if err != nil {
		return nil, err
	}
	return &Worker{shared: s, id: id, engine: engine}, nil
}

// run is the worker main loop. It exits once the global queue is observed
// closed.
func (w *Worker) run() {
	w.shared.emit(trace.ScopeWorker, trace.KindSpanBegin, w.id, "run", "")
	for !w.shutdown {
		w.tick++
		w.periodic()
		if t := w.nextTask(); t != nil {
			w.execute(t)
			continue
		}
		if t := w.stealTask(); t != nil {
			w.execute(t)
			continue
		}
		if w.driveIO() {
			continue
		}
		w.sleep()
	}
	w.shared.emit(trace.ScopeWorker, trace.KindSpanEnd, w.id, "run", "")
}

// pushLocal schedules a task on this worker through the cache slot: the new
// task takes the slot, the evicted one goes into the queue proper and one
// worker is notified in case the chain outgrows this thread.
func (w *Worker) pushLocal(t *Task) {
	if w.cache != nil {
		old := w.cache
		w.cache = t
		w.local.push(old, &w.shared.global)
		w.shared.wakeOne()
		return
	}
	w.cache = t
}

func (w *Worker) hasTask() bool {
	return w.cache != nil || !w.local.empty()
}

func (w *Worker) popLocal() *Task {
	if t := w.cache; t != nil {
		w.cache = nil
		return t
	}
	return w.local.pop()
}

// periodic drives I/O and refreshes the shutdown flag every io_interval
// ticks.
func (w *Worker) periodic() {
	if w.tick%w.shared.cfg.IOInterval == 0 {
		w.driveIO()
		w.updateShutdown()
	}
}

func (w *Worker) updateShutdown() {
	if !w.shutdown {
		w.shutdown = w.shared.global.Closed()
	}
}

// driveIO processes completions and due timers; when that produced ready
// tasks beyond the one we will run next, one more worker is notified.
func (w *Worker) driveIO() bool {
	if !w.engine.drive(&w.local, &w.shared.global) {
		return false
	}
	if w.shouldNotify() {
		w.shared.wakeOne()
	}
	return true
}

func (w *Worker) shouldNotify() bool {
	if w.searching.Load() {
		return false
	}
	return w.local.size() > 1
}

// nextTask picks the next ready task. Every global_queue_interval ticks the
// global queue goes first; otherwise local work is preferred and, when the
// local side is dry, a batch is pulled over from the global queue.
func (w *Worker) nextTask() *Task {
	if w.tick%w.shared.cfg.GlobalQueueInterval == 0 {
		if t := w.shared.global.TryPop(); t != nil {
			return t
		}
		return w.popLocal()
	}

	if t := w.popLocal(); t != nil {
		return t
	}
	if w.shared.global.Empty() {
		return nil
	}
	n := w.local.remaining()
	if n > LocalQueueCapacity/2 {
		n = LocalQueueCapacity / 2
	}
	if n == 0 {
		return nil
	}
	batch := w.shared.global.TryPopBatch(n)
	if len(batch) == 0 {
		return nil
	}
	t := batch[len(batch)-1]
	if rest := batch[:len(batch)-1]; len(rest) > 0 {
		w.local.pushBatch(rest)
	}
	return t
}

// stealTask tries to become a searcher and rob the busiest non-searching
// worker; failing that, it falls back to the global queue.
func (w *Worker) stealTask() *Task {
	if !w.setSearching() {
		return nil
	}
	var victim *Worker
	maxSize := 0
	for _, other := range w.shared.workers {
		if other == w {
			continue
		}
		if sz := other.local.size(); sz > maxSize && !other.searching.Load() {
			maxSize = sz
			victim = other
		}
	}
	if victim != nil {
		if t := victim.local.stealInto(&w.local); t != nil {
			w.shared.emit(trace.ScopeSched, trace.KindPoint, w.id, "steal", "from worker "+strconv.Itoa(victim.id))
			return t
		}
	}
	return w.shared.global.TryPop()
}

// execute leaves the searching state and resumes the task.
func (w *Worker) execute(t *Task) {
	w.cancelSearching()
	t.resume(w)
}

func (w *Worker) setSearching() bool {
	if w.searching.Load() {
		return true
	}
	if w.shared.sm.setSearching() {
		w.searching.Store(true)
	}
	return w.searching.Load()
}

func (w *Worker) cancelSearching() {
	if !w.searching.Load() {
		return
	}
	w.searching.Store(false)
	if w.shared.sm.cancelSearching() {
		w.shared.wakeOne()
	}
}

// sleep parks the worker in the kernel wait until a completion or a
// cross-thread wake arrives. The wait is bounded by the wheel's next
// deadline so timers fire on time.
func (w *Worker) sleep() {
	w.updateShutdown()
	if !w.setSleeping() {
		return
	}
	w.shared.emit(trace.ScopeSched, trace.KindPoint, w.id, "sleep", "")
	for !w.shutdown {
		w.engine.wait()
		w.engine.drive(&w.local, &w.shared.global)
		w.updateShutdown()
		if w.cancelSleeping() {
			w.shared.emit(trace.ScopeSched, trace.KindPoint, w.id, "wake", "")
			break
		}
	}
}

// setSleeping moves this worker into the sleeper set unless it still holds
// work. A last searcher going to sleep performs the final pending-work
// check.
func (w *Worker) setSleeping() bool {
	if w.hasTask() {
		return false
	}
	last := w.shared.sm.setSleeping(w.id, w.searching.Load())
	w.searching.Store(false)
	if last {
		w.shared.wakeIfWorkPending()
	}
	return true
}

// cancelSleeping decides whether to leave the sleep loop. True when work is
// available (removing self from the sleeper set if a producer has not
// already) or when a producer woke this worker; false keeps sleeping.
func (w *Worker) cancelSleeping() bool {
	if w.hasTask() || !w.shared.global.Empty() {
		removed := w.shared.sm.cancelSleeping(w.id)
		w.searching.Store(!removed)
		return true
	}
	if w.shared.sm.contains(w.id) {
		return false
	}
	w.searching.Store(true)
	return true
}
