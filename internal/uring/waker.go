package uring

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Waker wakes a worker parked in Ring.Wait from another thread. It is an
// eventfd whose read is kept armed on the owning ring with a zero user_data;
// the read completion breaks the kernel wait and is never dispatched as a
// user event.
type Waker struct {
	fd   int
	flag uint64
}

// NewWaker creates the eventfd. The flag starts nonzero so the first
// StartWatch arms the read.
func NewWaker() (*Waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("eventfd: %w", err)
	}
	return &Waker{fd: fd, flag: 1}, nil
}

// Close releases the eventfd.
func (w *Waker) Close() error {
	if w.fd < 0 {
		return nil
	}
	err := unix.Close(w.fd)
	w.fd = -1
	return err
}

// Wake adds one to the eventfd counter. Safe to call from any thread and
// idempotent across many wakes between reads: the writes accumulate in the
// counter and the next armed read consumes them all at once.
func (w *Waker) Wake() {
	var buf [8]byte
	buf[0] = 1
	for {
		_, err := unix.Write(w.fd, buf[:])
		if err == unix.EINTR {
			continue
		}
		return
	}
}

// StartWatch re-arms the eventfd read on the ring when the previous read has
// completed. The completion carries user_data 0, so the drive loop skips it.
// Must be called from the owning worker thread.
func (w *Waker) StartWatch(r *Ring) {
	if w.flag == 0 {
		return
	}
	sqe := r.GetSQE()
	if sqe == nil {
		// Ring saturated; the next drive pass retries.
		return
	}
	w.flag = 0
	sqe.Opcode = OpRead
	sqe.Fd = int32(w.fd) //nolint:gosec // fd fits
	sqe.Addr = uint64(uintptr(unsafe.Pointer(&w.flag)))
	sqe.Len = 8
	sqe.UserData = 0
}
