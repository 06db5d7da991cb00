// Package uring is a minimal io_uring binding covering exactly what the
// runtime needs: one submission/completion ring pair per worker thread,
// batched submits, a kernel-blocking wait with a relative timeout, and an
// eventfd waker for cross-thread wakeups.
//
// All methods except Waker.Wake must be called from the owning worker
// thread.
package uring

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Submission queue entry opcodes used by the runtime.
const (
	OpNop         = 0
	OpReadv       = 1
	OpWritev      = 2
	OpFsync       = 3
	OpSendmsg     = 9
	OpRecvmsg     = 10
	OpTimeout     = 11
	OpAccept      = 13
	OpAsyncCancel = 14
	OpConnect     = 16
	OpOpenat      = 18
	OpClose       = 19
	OpRead        = 22
	OpWrite       = 23
	OpSend        = 26
	OpRecv        = 27
	OpShutdown    = 34
	OpSocket      = 45
)

// mmap offsets from the io_uring ABI.
const (
	offSQRing = 0
	offCQRing = 0x8000000
	offSQEs   = 0x10000000
)

// io_uring_enter flags.
const enterGetEvents = 1 << 0

// sqRingOffsets mirrors struct io_sqring_offsets.
type sqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	flags       uint32
	dropped     uint32
	array       uint32
	resv1       uint32
	userAddr    uint64
}

// cqRingOffsets mirrors struct io_cqring_offsets.
type cqRingOffsets struct {
	head        uint32
	tail        uint32
	ringMask    uint32
	ringEntries uint32
	overflow    uint32
	cqes        uint32
	flags       uint32
	resv1       uint32
	userAddr    uint64
}

// params mirrors struct io_uring_params.
type params struct {
	sqEntries    uint32
	cqEntries    uint32
	flags        uint32
	sqThreadCPU  uint32
	sqThreadIdle uint32
	features     uint32
	wqFd         uint32
	resv         [3]uint32
	sqOff        sqRingOffsets
	cqOff        cqRingOffsets
}

// SQE mirrors struct io_uring_sqe (64 bytes).
type SQE struct {
	Opcode      uint8
	Flags       uint8
	Ioprio      uint16
	Fd          int32
	Off         uint64
	Addr        uint64
	Len         uint32
	OpFlags     uint32
	UserData    uint64
	BufIndex    uint16
	Personality uint16
	SpliceFdIn  int32
	addr3       uint64
	pad2        [1]uint64
}

// CQE mirrors struct io_uring_cqe.
type CQE struct {
	UserData uint64
	Res      int32
	Flags    uint32
}

// Timespec mirrors struct __kernel_timespec.
type Timespec struct {
	Sec  int64
	Nsec int64
}

// Ring wraps one io_uring instance.
type Ring struct {
	fd int

	sqMem  []byte
	cqMem  []byte
	sqeMem []byte

	sqHead    *uint32
	sqTail    *uint32
	sqMask    uint32
	sqEntries uint32
	sqArray   []uint32
	sqes      []SQE

	cqHead    *uint32
	cqTail    *uint32
	cqMask    uint32
	cqEntries uint32
	cqes      []CQE

	// local view of the submission queue, owner thread only
	sqeHead uint32
	sqeTail uint32

	submitInterval uint32
	submitTick     uint32

	waitTS Timespec
}

// NewRing sets up an io_uring with the given queue depth. submitInterval is
// the number of prepared submissions between forced flushes.
func NewRing(entries int, submitInterval uint32) (*Ring, error) {
	entriesU32, err := safeEntries(entries)
	if err != nil {
		return nil, err
	}
	var p params
	fd, _, errno := unix.Syscall(unix.SYS_IO_URING_SETUP, uintptr(entriesU32), uintptr(unsafe.Pointer(&p)), 0)
	if errno != 0 {
		return nil, fmt.Errorf("io_uring_setup: %w", errno)
	}
	r := &Ring{fd: int(fd), submitInterval: submitInterval}
	if r.submitInterval == 0 {
		r.submitInterval = 1
	}
	if err := r.mmapRings(&p); err != nil {
		_ = unix.Close(r.fd)
		return nil, err
	}
	// Identity-map the submission array once; slots are addressed by index.
	for i := uint32(0); i < r.sqEntries; i++ {
		r.sqArray[i] = i
	}
	return r, nil
}

func safeEntries(entries int) (uint32, error) {
	if entries <= 0 {
		return 0, fmt.Errorf("uring: invalid queue depth %d", entries)
	}
	if entries > 32768 {
		return 0, fmt.Errorf("uring: queue depth %d exceeds kernel limit", entries)
	}
	return uint32(entries), nil
}

func (r *Ring) mmapRings(p *params) error {
	sqSize := int(p.sqOff.array) + int(p.sqEntries)*4
	cqSize := int(p.cqOff.cqes) + int(p.cqEntries)*int(unsafe.Sizeof(CQE{}))

	sqMem, err := unix.Mmap(r.fd, offSQRing, sqSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		return fmt.Errorf("mmap sq ring: %w", err)
	}
	cqMem, err := unix.Mmap(r.fd, offCQRing, cqSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(sqMem)
		return fmt.Errorf("mmap cq ring: %w", err)
	}
	sqeSize := int(p.sqEntries) * int(unsafe.Sizeof(SQE{}))
	sqeMem, err := unix.Mmap(r.fd, offSQEs, sqeSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED|unix.MAP_POPULATE)
	if err != nil {
		_ = unix.Munmap(sqMem)
		_ = unix.Munmap(cqMem)
		return fmt.Errorf("mmap sqes: %w", err)
	}

	r.sqMem, r.cqMem, r.sqeMem = sqMem, cqMem, sqeMem
	base := unsafe.Pointer(&sqMem[0])
	r.sqHead = (*uint32)(unsafe.Add(base, p.sqOff.head))
	r.sqTail = (*uint32)(unsafe.Add(base, p.sqOff.tail))
	r.sqMask = *(*uint32)(unsafe.Add(base, p.sqOff.ringMask))
	r.sqEntries = *(*uint32)(unsafe.Add(base, p.sqOff.ringEntries))
	r.sqArray = unsafe.Slice((*uint32)(unsafe.Add(base, p.sqOff.array)), p.sqEntries)
	r.sqes = unsafe.Slice((*SQE)(unsafe.Pointer(&sqeMem[0])), p.sqEntries)

	cbase := unsafe.Pointer(&cqMem[0])
	r.cqHead = (*uint32)(unsafe.Add(cbase, p.cqOff.head))
	r.cqTail = (*uint32)(unsafe.Add(cbase, p.cqOff.tail))
	r.cqMask = *(*uint32)(unsafe.Add(cbase, p.cqOff.ringMask))
	r.cqEntries = *(*uint32)(unsafe.Add(cbase, p.cqOff.ringEntries))
	r.cqes = unsafe.Slice((*CQE)(unsafe.Add(cbase, p.cqOff.cqes)), p.cqEntries)
	return nil
}

// Close tears the ring down.
func (r *Ring) Close() error {
	if r.sqMem != nil {
		_ = unix.Munmap(r.sqMem)
		_ = unix.Munmap(r.cqMem)
		_ = unix.Munmap(r.sqeMem)
		r.sqMem, r.cqMem, r.sqeMem = nil, nil, nil
	}
	if r.fd >= 0 {
		err := unix.Close(r.fd)
		r.fd = -1
		return err
	}
	return nil
}

// GetSQE returns the next free submission slot, zeroed, or nil when the
// submission ring is full.
func (r *Ring) GetSQE() *SQE {
	head := atomic.LoadUint32(r.sqHead)
	if r.sqeTail-head >= r.sqEntries {
		return nil
	}
	sqe := &r.sqes[r.sqeTail&r.sqMask]
	r.sqeTail++
	*sqe = SQE{}
	return sqe
}

// Submit counts one prepared submission and flushes the batch every
// submitInterval calls.
func (r *Ring) Submit() {
	r.submitTick++
	if r.submitTick >= r.submitInterval {
		r.ResetAndSubmit()
	}
}

// ResetAndSubmit flushes all prepared submissions to the kernel and resets
// the batching counter.
func (r *Ring) ResetAndSubmit() {
	r.submitTick = 0
	r.flush(0, 0)
}

// flush publishes prepared sqes and enters the kernel. waitNr > 0 blocks for
// completions; flags carries io_uring_enter flags.
func (r *Ring) flush(waitNr uint32, flags uintptr) {
	toSubmit := r.sqeTail - r.sqeHead
	if toSubmit > 0 {
		atomic.StoreUint32(r.sqTail, r.sqeTail)
		r.sqeHead = r.sqeTail
	}
	if toSubmit == 0 && waitNr == 0 {
		return
	}
	for {
		_, _, errno := unix.Syscall6(unix.SYS_IO_URING_ENTER, uintptr(r.fd),
			uintptr(toSubmit), uintptr(waitNr), flags, 0, 0)
		if errno == unix.EINTR {
			toSubmit = 0
			if waitNr == 0 {
				return
			}
			continue
		}
		return
	}
}

// PeekBatch copies up to len(dst) pending completions into dst without
// consuming them and returns the count.
func (r *Ring) PeekBatch(dst []CQE) int {
	head := *r.cqHead
	tail := atomic.LoadUint32(r.cqTail)
	n := int(tail - head)
	if n <= 0 {
		return 0
	}
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = r.cqes[(head+uint32(i))&r.cqMask]
	}
	return n
}

// Consume advances the completion head past n entries.
func (r *Ring) Consume(n int) {
	if n <= 0 {
		return
	}
	atomic.StoreUint32(r.cqHead, *r.cqHead+uint32(n))
}

// Wait blocks until at least one completion is available, a relative
// timeout elapses, or a wakeup arrives. hasTimeout selects whether
// timeoutMS bounds the wait.
func (r *Ring) Wait(timeoutMS uint64, hasTimeout bool) {
	if hasTimeout {
		sqe := r.GetSQE()
		if sqe == nil {
			// Submission ring saturated; flush and retry once.
			r.ResetAndSubmit()
			sqe = r.GetSQE()
		}
		if sqe != nil {
			r.waitTS = Timespec{
				Sec:  int64(timeoutMS / 1000),     //nolint:gosec // bounded by wheel span
				Nsec: int64(timeoutMS%1000) * 1e6, //nolint:gosec // < 1e9
			}
			sqe.Opcode = OpTimeout
			sqe.Fd = -1
			sqe.Addr = uint64(uintptr(unsafe.Pointer(&r.waitTS)))
			sqe.Len = 1
			sqe.UserData = 0
		}
	}
	r.flush(1, enterGetEvents)
}

// PrepCancel prepares a cancellation for the operation identified by
// userData. Returns false when the submission ring is full.
func (r *Ring) PrepCancel(userData uint64) bool {
	sqe := r.GetSQE()
	if sqe == nil {
		return false
	}
	sqe.Opcode = OpAsyncCancel
	sqe.Fd = -1
	sqe.Addr = userData
	sqe.UserData = 0
	return true
}
