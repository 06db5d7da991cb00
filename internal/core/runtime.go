package core

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/superlxh02/faio/internal/trace"
)

// Runtime owns N workers and the shared scheduler state. External threads
// enter through Spawn, BlockOn and WaitAll; Stop closes the global queue
// and joins the workers.
type Runtime struct {
	shared  *shared
	workers []*Worker
	done    sync.WaitGroup
	stopped atomic.Bool
}

// NewRuntime starts the worker threads and returns once every worker is
// initialized and running.
func NewRuntime(cfg Config) (*Runtime, error) {
	cfg = cfg.withDefaults()
	s := newShared(cfg)
	rt := &Runtime{shared: s, workers: s.workers}

	for i := 0; i < cfg.NumWorkers; i++ {
		w, err := newWorker(s, i)
		if err != nil {
			for _, prev := range s.workers[:i] {
				prev.engine.close()
			}
			return nil, fmt.Errorf("worker %d: %w", i, err)
		}
		s.workers[i] = w
	}

	// Start barrier: every worker thread locks its OS thread and checks in
	// before any of them enters the loop, so the worker table is complete
	// when stealing begins.
	start := make(chan struct{})
	var inited sync.WaitGroup
	inited.Add(cfg.NumWorkers)
	rt.done.Add(cfg.NumWorkers)
	for _, w := range s.workers {
		go func(w *Worker) {
			defer rt.done.Done()
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			inited.Done()
			<-start
			w.run()
		}(w)
	}
	inited.Wait()
	close(start)

	s.emit(trace.ScopeRuntime, trace.KindPoint, -1, "start", fmt.Sprintf("%d workers", cfg.NumWorkers))
	return rt, nil
}

// Config returns the effective configuration.
func (rt *Runtime) Config() Config { return rt.shared.cfg }

// Running reports whether Stop has not been called yet.
func (rt *Runtime) Running() bool { return !rt.stopped.Load() }

// Spawn submits a fire-and-forget task from a non-worker thread. Tasks
// spawned from inside a running task go through Ctx.Spawn instead. Returns
// false once the runtime is stopped.
func (rt *Runtime) Spawn(t *Task) bool {
	return rt.shared.pushGlobal(t)
}

// shim wraps a root task submitted via BlockOn or WaitAll: it awaits the
// user task so a panic there lands in the shim instead of terminating the
// process, and carries the tracker that counts nested spawns.
type shim struct {
	user *Task
	pc   int
}

func (s *shim) poll(cx Ctx) Step {
	if s.pc == 0 {
		s.pc = 1
		cx.Await(s.user)
		return StepPending
	}
	return StepDone
}

func (rt *Runtime) newShim(user *Task, tr *tracker) *Task {
	t := NewTask((&shim{user: user}).poll)
	t.setInspect()
	t.tracker = tr
	t.SetCompletionCallback(trackerComplete, tr)
	return t
}

// BlockOn submits the task and blocks the calling thread until it and all
// tasks it transitively spawned have finished. A panic captured from the
// task is re-raised on the calling thread; results are read from the
// task's frame after return.
func (rt *Runtime) BlockOn(task *Task) {
	if rt.stopped.Load() {
		panic("core: block_on on a stopped runtime")
	}
	tr := newTracker()
	tr.register()
	rt.shared.emit(trace.ScopeRuntime, trace.KindPoint, -1, "block_on", "")
	if !rt.shared.pushGlobal(rt.newShim(task, tr)) {
		panic("core: block_on on a stopped runtime")
	}
	tr.waitAllDone()
	if pv := task.Panicked(); pv != nil {
		panic(pv)
	}
}

// WaitAll submits the tasks concurrently and blocks until every one of
// them, plus everything they spawned, has finished. The first submitted
// task found panicked is re-raised; sibling panics stay observable through
// Task.Panicked.
func (rt *Runtime) WaitAll(tasks ...*Task) {
	if len(tasks) == 0 {
		return
	}
	if rt.stopped.Load() {
		panic("core: wait_all on a stopped runtime")
	}
	tr := newTracker()
	tr.pending.Store(int64(len(tasks)))
	for _, task := range tasks {
		if !rt.shared.pushGlobal(rt.newShim(task, tr)) {
			panic("core: wait_all on a stopped runtime")
		}
	}
	tr.waitAllDone()
	for _, task := range tasks {
		if pv := task.Panicked(); pv != nil {
			panic(pv)
		}
	}
}

// Stop closes the global queue, waits for the workers to drain and exit,
// and releases the engines. Idempotent.
func (rt *Runtime) Stop() {
	if !rt.stopped.CompareAndSwap(false, true) {
		return
	}
	rt.shared.emit(trace.ScopeRuntime, trace.KindPoint, -1, "stop", "")
	rt.shared.close()
	rt.done.Wait()
	for _, w := range rt.workers {
		w.engine.close()
	}
	_ = rt.shared.tracer.Flush()
}
