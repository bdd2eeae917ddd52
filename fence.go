package framesync

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
)

// Infinite is the timeout that makes WaitUntil block until the value is
// reached. It is the default for shutdown draining.
const Infinite time.Duration = -1

// timeline is the CPU-side counter a fence issues values from. Fences
// created by one SubmissionQueue share a timeline so that consecutive
// submissions on the queue receive consecutive values.
type timeline struct {
	next uint64
}

func (t *timeline) advance() uint64 {
	t.next++
	return t.next
}

// Fence is a monotonically increasing counter shared between the CPU and
// the GPU. The GPU writes values as work retires; the CPU polls or blocks.
//
// Fence is not safe for concurrent use. It is owned by exactly one
// SubmissionQueue slot or by the caller of NewFence.
type Fence struct {
	native        NativeFence
	counter       *timeline
	lastRequested uint64
	label         string

	blockingWaits uint64
	waitTime      time.Duration
}

// NewFence creates a standalone fence with its own counter starting at 0.
func NewFence(device Device, label string) (*Fence, error) {
	return newFence(device, &timeline{}, label)
}

func newFence(device Device, counter *timeline, label string) (*Fence, error) {
	native, err := device.CreateFence(counter.next)
	if err != nil {
		return nil, markFatal(err, ErrInitialization, "create fence %q", label)
	}
	f := &Fence{
		native:        native,
		counter:       counter,
		lastRequested: counter.next,
		label:         label,
	}
	setLabel(native, label)
	return f, nil
}

// Signal issues the next counter value and asks the device to write it into
// the fence once all work previously submitted to queue completes. It
// returns the issued value and does not block.
func (f *Fence) Signal(queue NativeQueue) (uint64, error) {
	value := f.counter.advance()
	if err := queue.Signal(f.native, value); err != nil {
		return 0, markFatal(err, ErrSubmission, "signal fence %q to %d", f.label, value)
	}
	f.lastRequested = value
	return value, nil
}

// WaitUntil returns immediately if the GPU already reached value. Otherwise
// it blocks up to timeout; pass Infinite to wait forever.
//
// A bounded wait that expires returns an error matching ErrWaitTimeout. An
// infinite wait that fails means the device is gone and returns an error
// matching ErrDeviceLost.
func (f *Fence) WaitUntil(value uint64, timeout time.Duration) error {
	if f.native.CompletedValue() >= value {
		return nil
	}

	start := hrtime.Now()
	reached, err := f.native.WaitValue(value, timeout)
	elapsed := hrtime.Since(start)
	f.blockingWaits++
	f.waitTime += elapsed

	switch {
	case err != nil && timeout < 0:
		Logger().Error("fence wait failed", "fence", f.label, "value", value, "err", err)
		return markFatal(err, ErrDeviceLost, "wait fence %q for %d", f.label, value)
	case err != nil:
		return errors.Wrapf(err, "wait fence %q for %d", f.label, value)
	case !reached && timeout < 0:
		return errors.Wrapf(ErrDeviceLost, "wait fence %q for %d returned unreached", f.label, value)
	case !reached:
		return errors.Wrapf(ErrWaitTimeout, "fence %q value %d after %v (completed %d)",
			f.label, value, timeout, f.native.CompletedValue())
	}

	Logger().Debug("fence wait", "fence", f.label, "value", value, "blocked", elapsed)
	return nil
}

// Completed returns the last value the GPU wrote.
func (f *Fence) Completed() uint64 { return f.native.CompletedValue() }

// LastRequested returns the last value issued by Signal.
func (f *Fence) LastRequested() uint64 { return f.lastRequested }

// IsComplete reports whether the GPU has reached value.
func (f *Fence) IsComplete(value uint64) bool { return f.native.CompletedValue() >= value }

// BlockingWaits returns how many WaitUntil calls actually suspended.
func (f *Fence) BlockingWaits() uint64 { return f.blockingWaits }

// WaitTime returns the total time spent suspended in WaitUntil.
func (f *Fence) WaitTime() time.Duration { return f.waitTime }

// SetDebugLabel names the fence in logs and, when supported, on the device.
func (f *Fence) SetDebugLabel(name string) {
	f.label = name
	setLabel(f.native, name)
}

// Release frees the native fence. The caller must have drained it first.
func (f *Fence) Release() {
	if f.native != nil {
		f.native.Release()
		f.native = nil
	}
}
