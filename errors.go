package framesync

import (
	"github.com/cockroachdb/errors"
)

// Fatal error classes. Errors returned by this package are marked with one of
// these so callers can classify them with errors.Is regardless of wrapping.
var (
	// ErrInitialization marks a failure to create a queue, allocator,
	// command list or fence. Startup cannot continue.
	ErrInitialization = errors.New("framesync: initialization failed")

	// ErrSubmission marks a device-reported failure while closing, executing
	// or signaling. The recorded work cannot be trusted and is never resubmitted.
	ErrSubmission = errors.New("framesync: submission failed")

	// ErrDeviceLost is returned when an unbounded fence wait fails, which
	// indicates a removed or hung GPU.
	ErrDeviceLost = errors.New("framesync: GPU device lost")
)

// Recoverable conditions.
var (
	// ErrWaitTimeout is returned by bounded fence waits that expire.
	ErrWaitTimeout = errors.New("framesync: fence wait timed out")

	// ErrUnsupported is returned when a collaborator lacks an optional capability.
	ErrUnsupported = errors.New("framesync: operation not supported by device")

	// ErrClosed is returned when operating on a queue or renderer after Close.
	ErrClosed = errors.New("framesync: use after close")
)

// Logic violations. These are always wrapped as assertion failures.
var (
	// ErrNotRecording is returned when commands are recorded into, or a
	// submission is attempted with, a command buffer that is not open.
	ErrNotRecording = errors.New("framesync: command buffer is not open")

	// ErrBufferSubmitted is returned when commands are recorded into a
	// command buffer that was already closed and submitted. It also matches
	// ErrNotRecording.
	ErrBufferSubmitted = errors.New("framesync: command buffer already submitted")

	// ErrAlreadyOpen is returned when a slot's command buffer is acquired
	// again before it was submitted.
	ErrAlreadyOpen = errors.New("framesync: command buffer is already open")

	// ErrRedundantTransition is returned when a resource is transitioned to
	// the state it is already in.
	ErrRedundantTransition = errors.New("framesync: redundant resource transition")

	// ErrResourceState is returned when a command uses a resource that is
	// not in the state the command requires.
	ErrResourceState = errors.New("framesync: resource in wrong state for command")

	// ErrSlotOutOfRange is returned for a frame slot index beyond the ring.
	ErrSlotOutOfRange = errors.New("framesync: frame slot out of range")

	// ErrFrameState is returned when BeginFrame and Present are called out of order.
	ErrFrameState = errors.New("framesync: frame begun or presented out of order")
)

// logicViolation wraps a sentinel as an assertion failure with context.
func logicViolation(sentinel error, format string, args ...any) error {
	return errors.WithAssertionFailure(errors.Wrapf(sentinel, format, args...))
}

// markFatal wraps a collaborator error and marks it with the given class.
func markFatal(err, class error, format string, args ...any) error {
	return errors.Mark(errors.Wrapf(err, format, args...), class)
}

// IsLogicViolation reports whether err is a programming error: recording into
// a closed buffer, redundant transitions, out-of-order frame calls.
func IsLogicViolation(err error) bool {
	return errors.IsAssertionFailure(err)
}

// IsFatal reports whether err belongs to a class the process cannot recover
// from: initialization failure, submission failure, device loss or a logic
// violation. There is no degraded rendering path for any of these.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return errors.IsAny(err, ErrInitialization, ErrSubmission, ErrDeviceLost) ||
		IsLogicViolation(err)
}
