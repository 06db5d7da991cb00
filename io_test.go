package faio_test

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	faio "github.com/superlxh02/faio"
)

type nopFrame struct {
	pc  int
	op  faio.Op
	res int
	err error
}

func (n *nopFrame) poll(cx faio.Ctx) faio.Step {
	if n.pc == 0 {
		n.pc = 1
		if n.op.Nop(cx) == faio.Suspend {
			return faio.StepPending
		}
	}
	n.res, n.err = n.op.Result()
	return faio.StepDone
}

func TestOpNop(t *testing.T) {
	rt := newTestRuntime(t, 1)
	frame := &nopFrame{}
	rt.BlockOn(faio.NewTask(frame.poll))
	if frame.err != nil || frame.res != 0 {
		t.Fatalf("nop: res=%d err=%v", frame.res, frame.err)
	}
}

type readFrame struct {
	pc      int
	fd      int
	buf     []byte
	timeout time.Duration
	op      faio.Op
	res     int
	err     error
}

func (r *readFrame) poll(cx faio.Ctx) faio.Step {
	if r.pc == 0 {
		r.pc = 1
		op := &r.op
		if r.timeout > 0 {
			op = op.WithTimeout(r.timeout)
		}
		if op.Read(cx, r.fd, r.buf, ^uint64(0)) == faio.Suspend {
			return faio.StepPending
		}
	}
	r.res, r.err = r.op.Result()
	return faio.StepDone
}

func makePipe(t *testing.T) (r, w int) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestOpReadPipe(t *testing.T) {
	rt := newTestRuntime(t, 1)
	r, w := makePipe(t)

	go func() {
		time.Sleep(5 * time.Millisecond)
		unix.Write(w, []byte("ping")) //nolint:errcheck
	}()

	frame := &readFrame{fd: r, buf: make([]byte, 16)}
	rt.BlockOn(faio.NewTask(frame.poll))
	if frame.err != nil {
		t.Fatalf("read error: %v", frame.err)
	}
	if string(frame.buf[:frame.res]) != "ping" {
		t.Fatalf("read %q, want ping", frame.buf[:frame.res])
	}
}

func TestOpReadTimeout(t *testing.T) {
	rt := newTestRuntime(t, 1)
	r, _ := makePipe(t) // no writer: the read can only time out

	frame := &readFrame{fd: r, buf: make([]byte, 16), timeout: 30 * time.Millisecond}
	start := time.Now()
	rt.BlockOn(faio.NewTask(frame.poll))
	elapsed := time.Since(start)

	if !errors.Is(frame.err, faio.ErrTimedOut) {
		t.Fatalf("err = %v, want ErrTimedOut", frame.err)
	}
	if !errors.Is(frame.err, unix.ETIMEDOUT) {
		t.Fatal("timeout should also match unix.ETIMEDOUT")
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timed-out read resumed after %s", elapsed)
	}
}

type writeFrame struct {
	pc  int
	fd  int
	buf []byte
	op  faio.Op
	res int
	err error
}

func (wf *writeFrame) poll(cx faio.Ctx) faio.Step {
	if wf.pc == 0 {
		wf.pc = 1
		if wf.op.Write(cx, wf.fd, wf.buf, ^uint64(0)) == faio.Suspend {
			return faio.StepPending
		}
	}
	wf.res, wf.err = wf.op.Result()
	return faio.StepDone
}

func TestOpWritePipe(t *testing.T) {
	rt := newTestRuntime(t, 1)
	r, w := makePipe(t)

	frame := &writeFrame{fd: w, buf: []byte("pong")}
	rt.BlockOn(faio.NewTask(frame.poll))
	if frame.err != nil || frame.res != 4 {
		t.Fatalf("write: res=%d err=%v", frame.res, frame.err)
	}

	got := make([]byte, 16)
	n, err := unix.Read(r, got)
	if err != nil || string(got[:n]) != "pong" {
		t.Fatalf("pipe read back: %q err=%v", got[:n], err)
	}
}
