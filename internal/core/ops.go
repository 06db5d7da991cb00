package core

import (
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/superlxh02/faio/internal/uring"
)

// deadlineMode selects how an Op's deadline is computed at submission.
type deadlineMode uint8

const (
	deadlineNone deadlineMode = iota
	deadlineRelative
	deadlineAbsolute
)

// Op is one I/O awaiter. It owns the user-data descriptor for the whole
// suspension, so the Op value must stay on the task's frame and must not be
// copied after submission. One Op may be reused for the next operation once
// the previous one has resumed.
//
// Usage inside a frame:
//
//	if op.Read(cx, fd, buf, 0) == core.Suspend {
//		s.pc = 2
//		return core.StepPending
//	}
//	fallthrough to the pc 2 arm, which calls op.Result().
type Op struct {
	desc ioDesc
	err  error

	mode     deadlineMode
	timeout  time.Duration
	deadline time.Time

	// kernel-facing argument storage; must outlive the suspension
	iovec []unix.Iovec
	msg   unix.Msghdr
}

// WithTimeout arms a relative deadline for the next submission. When the
// wheel fires first, the op resolves to ErrTimedOut and a kernel cancel is
// submitted.
func (o *Op) WithTimeout(d time.Duration) *Op {
	o.mode = deadlineRelative
	o.timeout = d
	return o
}

// WithDeadline arms an absolute deadline for the next submission.
func (o *Op) WithDeadline(t time.Time) *Op {
	o.mode = deadlineAbsolute
	o.deadline = t
	return o
}

// Result returns the completion outcome after the task resumed. Negative
// kernel results come back as errno values; a fired deadline is
// ErrTimedOut; a saturated submission ring is ErrSQFull.
func (o *Op) Result() (int, error) {
	if o.err != nil {
		return 0, o.err
	}
	if o.desc.res < 0 {
		return 0, resultErr(o.desc.res)
	}
	return int(o.desc.res), nil
}

// submit reserves a slot, lets prep fill it, arms the deadline if any, and
// parks the task. Ready means the op failed before submission and Result
// carries the error.
func (o *Op) submit(cx Ctx, prep func(sqe *uring.SQE)) Directive {
	o.err = nil
	e := cx.w.engine
	sqe, ok := e.prepare(&o.desc, cx.t)
	if !ok {
		o.err = ErrSQFull
		o.mode = deadlineNone
		return Ready
	}
	prep(sqe)

	switch o.mode {
	case deadlineRelative:
		o.deadline = time.Now().Add(o.timeout)
		fallthrough
	case deadlineAbsolute:
		o.mode = deadlineNone
		if err := e.armDeadline(&o.desc, o.deadline); err != nil {
			e.cancelPrepared(&o.desc, sqe)
			o.err = err
			return Ready
		}
	}

	cx.Park()
	e.submit()
	return Suspend
}

func bufAddr(buf []byte) uint64 {
	if len(buf) == 0 {
		return 0
	}
	return uint64(uintptr(unsafe.Pointer(&buf[0])))
}

// Nop submits a no-op that completes immediately in the kernel.
func (o *Op) Nop(cx Ctx) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpNop
		sqe.Fd = -1
	})
}

// Read reads into buf at offset off. Pass ^uint64(0) as off for the current
// file position.
func (o *Op) Read(cx Ctx, fd int, buf []byte, off uint64) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpRead
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = bufAddr(buf)
		sqe.Len = uint32(len(buf)) //nolint:gosec // buffer fits
		sqe.Off = off
	})
}

// Write writes buf at offset off.
func (o *Op) Write(cx Ctx, fd int, buf []byte, off uint64) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpWrite
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = bufAddr(buf)
		sqe.Len = uint32(len(buf)) //nolint:gosec // buffer fits
		sqe.Off = off
	})
}

// Readv performs a vectored read. The iovec array is copied into the Op so
// it stays valid for the suspension.
func (o *Op) Readv(cx Ctx, fd int, bufs [][]byte, off uint64) Directive {
	o.iovec = makeIovec(bufs)
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpReadv
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.iovec[0])))
		sqe.Len = uint32(len(o.iovec)) //nolint:gosec // vector fits
		sqe.Off = off
	})
}

// Writev performs a vectored write.
func (o *Op) Writev(cx Ctx, fd int, bufs [][]byte, off uint64) Directive {
	o.iovec = makeIovec(bufs)
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpWritev
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = uint64(uintptr(unsafe.Pointer(&o.iovec[0])))
		sqe.Len = uint32(len(o.iovec)) //nolint:gosec // vector fits
		sqe.Off = off
	})
}

func makeIovec(bufs [][]byte) []unix.Iovec {
	iov := make([]unix.Iovec, 0, len(bufs))
	for _, b := range bufs {
		if len(b) == 0 {
			continue
		}
		iov = append(iov, unix.Iovec{
			Base: &b[0],
			Len:  uint64(len(b)), //nolint:gosec // buffer fits
		})
	}
	return iov
}

// Recv receives from a socket.
func (o *Op) Recv(cx Ctx, fd int, buf []byte, flags uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpRecv
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = bufAddr(buf)
		sqe.Len = uint32(len(buf)) //nolint:gosec // buffer fits
		sqe.OpFlags = flags
	})
}

// Send sends on a socket.
func (o *Op) Send(cx Ctx, fd int, buf []byte, flags uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpSend
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = bufAddr(buf)
		sqe.Len = uint32(len(buf)) //nolint:gosec // buffer fits
		sqe.OpFlags = flags
	})
}

// Sendmsg sends with a full message header (scatter/gather, destination
// address, control data). msg must stay valid for the suspension.
func (o *Op) Sendmsg(cx Ctx, fd int, msg *unix.Msghdr, flags uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpSendmsg
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = uint64(uintptr(unsafe.Pointer(msg)))
		sqe.Len = 1
		sqe.OpFlags = flags
	})
}

// Recvmsg receives with a full message header.
func (o *Op) Recvmsg(cx Ctx, fd int, msg *unix.Msghdr, flags uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpRecvmsg
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = uint64(uintptr(unsafe.Pointer(msg)))
		sqe.Len = 1
		sqe.OpFlags = flags
	})
}

// Sendto sends buf to sa, composed as a single-vector sendmsg.
func (o *Op) Sendto(cx Ctx, fd int, buf []byte, flags uint32, sa *unix.RawSockaddrAny, salen uint32) Directive {
	o.iovec = makeIovec([][]byte{buf})
	o.msg = unix.Msghdr{
		Name:    (*byte)(unsafe.Pointer(sa)),
		Namelen: salen,
	}
	if len(o.iovec) > 0 {
		o.msg.Iov = &o.iovec[0]
		o.msg.Iovlen = 1
	}
	return o.Sendmsg(cx, fd, &o.msg, flags)
}

// Recvfrom receives into buf, recording the source address in sa.
func (o *Op) Recvfrom(cx Ctx, fd int, buf []byte, flags uint32, sa *unix.RawSockaddrAny) Directive {
	o.iovec = makeIovec([][]byte{buf})
	o.msg = unix.Msghdr{}
	if sa != nil {
		o.msg.Name = (*byte)(unsafe.Pointer(sa))
		o.msg.Namelen = uint32(unsafe.Sizeof(*sa))
	}
	if len(o.iovec) > 0 {
		o.msg.Iov = &o.iovec[0]
		o.msg.Iovlen = 1
	}
	return o.Recvmsg(cx, fd, &o.msg, flags)
}

// Accept accepts a connection. sa and salen receive the peer address; both
// may be nil.
func (o *Op) Accept(cx Ctx, fd int, sa *unix.RawSockaddrAny, salen *uint32, flags uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpAccept
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		if sa != nil {
			sqe.Addr = uint64(uintptr(unsafe.Pointer(sa)))
			sqe.Off = uint64(uintptr(unsafe.Pointer(salen)))
		}
		sqe.OpFlags = flags
	})
}

// Connect starts a connection to sa.
func (o *Op) Connect(cx Ctx, fd int, sa *unix.RawSockaddrAny, salen uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpConnect
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
		sqe.Addr = uint64(uintptr(unsafe.Pointer(sa)))
		sqe.Off = uint64(salen)
	})
}

// Socket creates a socket.
func (o *Op) Socket(cx Ctx, domain, typ, proto int) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpSocket
		sqe.Fd = int32(domain)  //nolint:gosec // domain fits
		sqe.Off = uint64(typ)   //nolint:gosec // type fits
		sqe.Len = uint32(proto) //nolint:gosec // proto fits
	})
}

// Close closes a file descriptor.
func (o *Op) Close(cx Ctx, fd int) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpClose
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
	})
}

// Shutdown shuts down a socket direction.
func (o *Op) Shutdown(cx Ctx, fd, how int) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpShutdown
		sqe.Fd = int32(fd)    //nolint:gosec // fd fits
		sqe.Len = uint32(how) //nolint:gosec // how fits
	})
}

// Fsync flushes a file.
func (o *Op) Fsync(cx Ctx, fd int) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpFsync
		sqe.Fd = int32(fd) //nolint:gosec // fd fits
	})
}

// OpenAt opens path relative to dirfd. path must be a NUL-terminated byte
// slice held on the frame.
func (o *Op) OpenAt(cx Ctx, dirfd int, path []byte, flags uint32, mode uint32) Directive {
	return o.submit(cx, func(sqe *uring.SQE) {
		sqe.Opcode = uring.OpOpenat
		sqe.Fd = int32(dirfd) //nolint:gosec // fd fits
		sqe.Addr = bufAddr(path)
		sqe.Len = mode
		sqe.OpFlags = flags
	})
}
