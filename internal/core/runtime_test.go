package core

import (
	"sync/atomic"
	"testing"
)

// spawnBurst fans out n no-op children.
type spawnBurst struct {
	n       int
	counter *atomic.Int64
}

func (sb *spawnBurst) poll(cx Ctx) Step {
	for i := 0; i < sb.n; i++ {
		counter := sb.counter
		cx.Spawn(NewTask(func(Ctx) Step {
			counter.Add(1)
			return StepDone
		}))
	}
	return StepDone
}

func TestShutdownLeavesQueuesEmpty(t *testing.T) {
	rt, err := NewRuntime(Config{NumWorkers: 2})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	var counter atomic.Int64
	rt.BlockOn(NewTask((&spawnBurst{n: 100, counter: &counter}).poll))
	if counter.Load() != 100 {
		t.Fatalf("counter = %d, want 100", counter.Load())
	}
	rt.Stop()

	// After close and worker exit, no task may be stranded anywhere.
	if !rt.shared.global.Empty() {
		t.Errorf("global queue holds %d tasks after shutdown", rt.shared.global.Len())
	}
	for _, w := range rt.workers {
		if w.hasTask() {
			t.Errorf("worker %d still holds tasks after shutdown", w.id)
		}
	}
}

func TestSpawnAfterStopFails(t *testing.T) {
	rt, err := NewRuntime(Config{NumWorkers: 1})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	rt.Stop()
	if rt.Spawn(NewTask(func(Ctx) Step { return StepDone })) {
		t.Fatal("Spawn after Stop should report failure")
	}
}
