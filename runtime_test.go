package faio_test

import (
	"strings"
	"sync/atomic"
	"testing"
	"time"

	faio "github.com/superlxh02/faio"
)

// newTestRuntime starts a runtime or skips when io_uring is unavailable
// (old kernels, seccomp sandboxes).
func newTestRuntime(t *testing.T, workers int) *faio.Runtime {
	t.Helper()
	rt, err := faio.New(faio.Config{NumWorkers: workers})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	t.Cleanup(rt.Stop)
	return rt
}

type setFlag struct {
	flag *atomic.Bool
}

func (s *setFlag) poll(faio.Ctx) faio.Step {
	s.flag.Store(true)
	return faio.StepDone
}

func TestBlockOnRunsTask(t *testing.T) {
	rt := newTestRuntime(t, 2)
	var flag atomic.Bool
	rt.BlockOn(faio.NewTask((&setFlag{flag: &flag}).poll))
	if !flag.Load() {
		t.Fatal("task did not run")
	}
}

// spawner fires n children that each yield once before counting themselves.
type spawner struct {
	pc      int
	n       int
	counter *atomic.Int64
}

type yieldThenCount struct {
	pc      int
	counter *atomic.Int64
}

func (y *yieldThenCount) poll(cx faio.Ctx) faio.Step {
	if y.pc == 0 {
		y.pc = 1
		faio.Yield(cx)
		return faio.StepPending
	}
	y.counter.Add(1)
	return faio.StepDone
}

func (s *spawner) poll(cx faio.Ctx) faio.Step {
	for i := 0; i < s.n; i++ {
		cx.Spawn(faio.NewTask((&yieldThenCount{counter: s.counter}).poll))
	}
	return faio.StepDone
}

func TestBlockOnWaitsForSpawned(t *testing.T) {
	rt := newTestRuntime(t, 4)
	var counter atomic.Int64
	// block_on must not return before every transitively spawned task has
	// finished, even though the root completes first.
	rt.BlockOn(faio.NewTask((&spawner{n: 200, counter: &counter}).poll))
	if got := counter.Load(); got != 200 {
		t.Fatalf("counter = %d after BlockOn, want 200", got)
	}
}

type panics struct{}

func (panics) poll(faio.Ctx) faio.Step { panic("task exploded") }

func TestBlockOnPanicPropagates(t *testing.T) {
	rt := newTestRuntime(t, 2)
	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("BlockOn should re-panic the task's panic")
		}
		if s, ok := r.(string); !ok || !strings.Contains(s, "exploded") {
			t.Fatalf("unexpected panic value: %v", r)
		}
	}()
	rt.BlockOn(faio.NewTask(panics{}.poll))
}

type writeResult struct {
	out *int
	val int
}

func (w *writeResult) poll(faio.Ctx) faio.Step {
	*w.out = w.val
	return faio.StepDone
}

func TestWaitAll(t *testing.T) {
	rt := newTestRuntime(t, 2)
	results := make([]int, 3)
	rt.WaitAll(
		faio.NewTask((&writeResult{out: &results[0], val: 10}).poll),
		faio.NewTask((&writeResult{out: &results[1], val: 20}).poll),
		faio.NewTask((&writeResult{out: &results[2], val: 30}).poll),
	)
	for i, want := range []int{10, 20, 30} {
		if results[i] != want {
			t.Fatalf("results[%d] = %d, want %d", i, results[i], want)
		}
	}
}

func TestWaitAllSiblingPanic(t *testing.T) {
	rt := newTestRuntime(t, 2)
	out := 0
	ok := faio.NewTask((&writeResult{out: &out, val: 7}).poll)
	bad := faio.NewTask(panics{}.poll)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("WaitAll should re-panic a task panic")
			}
		}()
		rt.WaitAll(ok, bad)
	}()

	// Siblings still completed; their outcomes stay observable.
	if out != 7 {
		t.Fatalf("sibling result = %d, want 7", out)
	}
	if bad.Panicked() == nil {
		t.Fatal("panicked task should retain its panic value")
	}
}

func TestSpawnExternal(t *testing.T) {
	rt := newTestRuntime(t, 2)
	var flag atomic.Bool
	done := make(chan struct{})
	task := faio.NewTask((&setFlag{flag: &flag}).poll)
	task.SetCompletionCallback(func(any) { close(done) }, nil)
	if !rt.Spawn(task) {
		t.Fatal("Spawn on a running runtime failed")
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("spawned task never completed")
	}
	if !flag.Load() {
		t.Fatal("spawned task did not run")
	}
}

func TestStopIdempotent(t *testing.T) {
	rt, err := faio.New(faio.Config{NumWorkers: 2})
	if err != nil {
		t.Skipf("io_uring unavailable: %v", err)
	}
	rt.BlockOn(faio.NewTask(func(faio.Ctx) faio.Step { return faio.StepDone }))
	rt.Stop()
	if rt.Running() {
		t.Fatal("Running should be false after Stop")
	}
	rt.Stop() // second Stop must not hang or panic
}

// stressWorker is one task of the counter stress scenario at CI scale: it
// hammers a shared counter, yields every 256 increments, then reports on a
// channel that stressMain drains.
type stressWorker struct {
	pc      int
	i       int
	incs    int
	counter *atomic.Int64
	tx      *faio.Sender[int]
	sendOp  faio.SendOp[int]
}

func (sw *stressWorker) poll(cx faio.Ctx) faio.Step {
	switch sw.pc {
	case 0:
		for sw.i < sw.incs {
			sw.counter.Add(1)
			sw.i++
			if sw.i%256 == 0 {
				if d, _ := faio.Sleep(cx, 0); d == faio.Suspend {
					return faio.StepPending
				}
			}
		}
		sw.pc = 1
		if sw.tx.Send(cx, &sw.sendOp, 1) == faio.Suspend {
			return faio.StepPending
		}
		fallthrough
	default:
		return faio.StepDone
	}
}

type stressMain struct {
	pc      int
	tasks   int
	incs    int
	recvd   int
	counter *atomic.Int64
	tx      *faio.Sender[int]
	rx      *faio.Receiver[int]
	recvOp  faio.RecvOp[int]
}

func (sm *stressMain) poll(cx faio.Ctx) faio.Step {
	switch sm.pc {
	case 0:
		for i := 0; i < sm.tasks; i++ {
			cx.Spawn(faio.NewTask((&stressWorker{
				incs:    sm.incs,
				counter: sm.counter,
				tx:      sm.tx,
			}).poll))
		}
		sm.pc = 1
		fallthrough
	default:
		for sm.recvd < sm.tasks {
			if sm.pc == 2 {
				// Resumed by a sender: recvOp already holds the value.
				sm.pc = 1
			} else if sm.rx.Recv(cx, &sm.recvOp) == faio.Suspend {
				sm.pc = 2
				return faio.StepPending
			}
			if sm.recvOp.Err() != nil {
				return faio.StepDone
			}
			sm.recvd++
		}
		return faio.StepDone
	}
}

func TestCounterStress(t *testing.T) {
	const tasks, incs = 200, 600
	rt := newTestRuntime(t, 4)
	var counter atomic.Int64
	tx, rx := faio.NewChannel[int](tasks)
	main := &stressMain{tasks: tasks, incs: incs, counter: &counter, tx: tx, rx: rx}
	rt.BlockOn(faio.NewTask(main.poll))

	if main.recvd != tasks {
		t.Fatalf("received %d reports, want %d", main.recvd, tasks)
	}
	if got := counter.Load(); got != tasks*incs {
		t.Fatalf("counter = %d, want %d", got, tasks*incs)
	}
}
