package core

import (
	"time"

	"github.com/superlxh02/faio/internal/trace"
)

// shared is the state every worker can reach: the configuration, the global
// queue, the state machine, and the worker table for wakeups and stealing.
type shared struct {
	cfg    Config
	global GlobalQueue
	sm     *stateMachine
	// workers is written once during startup, before any worker runs, and
	// read-only afterwards.
	workers []*Worker
	tracer  trace.Tracer
}

func newShared(cfg Config) *shared {
	return &shared{
		cfg:     cfg,
		sm:      newStateMachine(cfg.NumWorkers),
		workers: make([]*Worker, cfg.NumWorkers),
		tracer:  cfg.Tracer,
	}
}

// close marks the global queue closed and wakes everyone so the shutdown
// flag is observed.
func (s *shared) close() {
	if !s.global.Closed() {
		s.global.Close()
		s.wakeAll()
	}
}

// wakeOne notifies one sleeping worker if the state machine says so.
func (s *shared) wakeOne() {
	if id, ok := s.sm.workerToNotify(); ok {
		s.workers[id].engine.Wake()
	}
}

// wakeAll kicks every worker's eventfd.
func (s *shared) wakeAll() {
	for _, w := range s.workers {
		w.engine.Wake()
	}
}

// wakeIfWorkPending is the last-searcher recheck: if any queue holds work,
// wake one worker so a submit racing a sleep transition is not stranded.
func (s *shared) wakeIfWorkPending() {
	if !s.global.Empty() {
		s.wakeOne()
		return
	}
	for _, w := range s.workers {
		if !w.local.empty() {
			s.wakeOne()
			return
		}
	}
}

// pushGlobal submits one task from outside any worker. wakeOne can decline
// when every worker counts as working, yet some may be committing to sleep
// right now; the wakeAll fallback kicks their eventfds and cancelSleeping
// re-checks the global queue.
func (s *shared) pushGlobal(t *Task) bool {
	if !s.global.Push(t) {
		return false
	}
	s.wakeOne()
	s.wakeAll()
	return true
}

// pushGlobalBatch submits a batch and wakes one worker.
func (s *shared) pushGlobalBatch(tasks []*Task) bool {
	if !s.global.PushBatch(tasks) {
		return false
	}
	s.wakeOne()
	return true
}

// emit records a scheduler event when the tracer cares about its scope.
func (s *shared) emit(scope trace.Scope, kind trace.Kind, worker int, name, detail string) {
	if !s.tracer.Level().ShouldEmit(scope) {
		return
	}
	s.tracer.Emit(trace.Event{
		Time:   time.Now(),
		Kind:   kind,
		Scope:  scope,
		Worker: worker,
		Name:   name,
		Detail: detail,
	})
}
