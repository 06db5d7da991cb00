package core

import (
	"errors"

	"golang.org/x/sys/unix"
)

// ErrTimedOut reports that an I/O deadline fired before the kernel
// completion. It wraps unix.ETIMEDOUT so errors.Is works against both.
var ErrTimedOut = errTimedOut{}

type errTimedOut struct{}

func (errTimedOut) Error() string        { return "io deadline exceeded" }
func (errTimedOut) Is(target error) bool { return target == unix.ETIMEDOUT }

// ErrSQFull reports that the submission ring was full at preparation time.
// The awaiter resumes immediately with this result; the caller may retry.
var ErrSQFull = errors.New("submission queue full")

// resultErr converts a completion result into an error. Negative results
// encode a negated errno.
func resultErr(res int32) error {
	if res >= 0 {
		return nil
	}
	if res == -int32(unix.ETIMEDOUT) {
		return ErrTimedOut
	}
	return unix.Errno(-res)
}
