package framesync

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// RecordingState is the lifecycle state of a CommandBuffer.
type RecordingState uint8

const (
	// Closed buffers have never been opened, or their recording was dropped.
	Closed RecordingState = iota
	// Open buffers accept commands.
	Open
	// Submitted buffers were finalized and handed to the queue. They stay
	// closed until the slot is acquired again.
	Submitted
)

// String returns the state name.
func (s RecordingState) String() string {
	switch s {
	case Open:
		return "open"
	case Submitted:
		return "submitted"
	default:
		return "closed"
	}
}

// CommandBuffer is a recorded sequence of GPU commands backed by a
// resettable allocator.
//
// State machine:
//
//	Closed    -> open()  -> Open       (allocator reset; only after the slot wait)
//	Open      -> close() -> Submitted  (recording finalized, then executed)
//	Submitted -> open()  -> Open       (next frame on the same slot)
//
// A CommandBuffer belongs to one frame slot of one SubmissionQueue. It is
// never open on two slots and is not safe for concurrent use.
type CommandBuffer struct {
	allocator Allocator
	list      CommandList
	kind      QueueKind
	state     RecordingState
	label     string

	// commands counts recorded commands since the last open.
	commands int
}

func newCommandBuffer(device Device, kind QueueKind, label string) (*CommandBuffer, error) {
	allocator, err := device.CreateAllocator(kind)
	if err != nil {
		return nil, markFatal(err, ErrInitialization, "create %s allocator %q", kind, label)
	}
	list, err := device.CreateCommandList(kind, allocator)
	if err != nil {
		allocator.Release()
		return nil, markFatal(err, ErrInitialization, "create %s command list %q", kind, label)
	}
	cb := &CommandBuffer{
		allocator: allocator,
		list:      list,
		kind:      kind,
		state:     Closed,
		label:     label,
	}
	setLabel(allocator, label)
	setLabel(list, label)
	return cb, nil
}

// open resets the allocator and the list and starts recording. The owning
// queue guarantees the GPU has finished with the allocator.
func (cb *CommandBuffer) open() error {
	if cb.state == Open {
		return logicViolation(ErrAlreadyOpen, "open command buffer %q", cb.label)
	}
	if err := cb.allocator.Reset(); err != nil {
		return markFatal(err, ErrSubmission, "reset allocator %q", cb.label)
	}
	if err := cb.list.Reset(cb.allocator); err != nil {
		return markFatal(err, ErrSubmission, "reset command list %q", cb.label)
	}
	cb.state = Open
	cb.commands = 0
	return nil
}

// close finalizes the recording.
func (cb *CommandBuffer) close() error {
	if err := cb.checkRecording("close"); err != nil {
		return err
	}
	// The list is unusable after a failed Close, so the state moves regardless.
	cb.state = Submitted
	if err := cb.list.Close(); err != nil {
		return markFatal(err, ErrSubmission, "close command list %q", cb.label)
	}
	return nil
}

// checkRecording returns a logic violation naming the state when the buffer
// is not open. Every such error matches ErrNotRecording.
func (cb *CommandBuffer) checkRecording(op string) error {
	switch cb.state {
	case Open:
		return nil
	case Submitted:
		return logicViolation(errors.Mark(ErrBufferSubmitted, ErrNotRecording),
			"%s on command buffer %q", op, cb.label)
	default:
		return logicViolation(ErrNotRecording, "%s on command buffer %q", op, cb.label)
	}
}

// ResourceBarrier records explicit barriers.
func (cb *CommandBuffer) ResourceBarrier(barriers ...Barrier) error {
	if err := cb.checkRecording("resource barrier"); err != nil {
		return err
	}
	if len(barriers) == 0 {
		return nil
	}
	cb.list.ResourceBarrier(barriers...)
	cb.commands++
	return nil
}

// Transition moves res to state and records the resulting barrier. The
// resource state is left untouched if the buffer is not open.
func (cb *CommandBuffer) Transition(res *Resource, state ResourceState) error {
	if err := cb.checkRecording("transition"); err != nil {
		return err
	}
	b, err := res.TransitionTo(state)
	if err != nil {
		return err
	}
	Logger().Debug("barrier", "buffer", cb.label, "resource", res.label, "transition", b)
	cb.list.ResourceBarrier(b)
	cb.commands++
	return nil
}

// ClearRenderTarget clears target to color. target must be in
// StateRenderTarget.
func (cb *CommandBuffer) ClearRenderTarget(target *Resource, color gputypes.Color) error {
	if err := cb.checkRecording("clear render target"); err != nil {
		return err
	}
	if target.State() != StateRenderTarget {
		return logicViolation(ErrResourceState, "clear %q in state %s", target.label, target.State())
	}
	cb.list.ClearRenderTarget(target.native, color)
	cb.commands++
	return nil
}

// ClearDepth clears a depth buffer, which must be in StateDepthWrite.
func (cb *CommandBuffer) ClearDepth(target *Resource, depth float32) error {
	if err := cb.checkRecording("clear depth"); err != nil {
		return err
	}
	if target.State() != StateDepthWrite {
		return logicViolation(ErrResourceState, "clear depth %q in state %s", target.label, target.State())
	}
	cb.list.ClearDepth(target.native, depth)
	cb.commands++
	return nil
}

// CopyBuffer copies size bytes from src to dst. dst must be in
// StateCopyDest and src in StateCopySource or StateGenericRead.
func (cb *CommandBuffer) CopyBuffer(dst, src *Resource, size uint64) error {
	if err := cb.checkRecording("copy buffer"); err != nil {
		return err
	}
	if dst.State() != StateCopyDest {
		return logicViolation(ErrResourceState, "copy into %q in state %s", dst.label, dst.State())
	}
	if s := src.State(); s != StateCopySource && s != StateGenericRead {
		return logicViolation(ErrResourceState, "copy from %q in state %s", src.label, s)
	}
	cb.list.CopyBuffer(dst.native, src.native, size)
	cb.commands++
	return nil
}

// Native returns the underlying command list for application-specific
// recording such as draws. It fails when the buffer is not open.
func (cb *CommandBuffer) Native() (CommandList, error) {
	if err := cb.checkRecording("native access"); err != nil {
		return nil, err
	}
	return cb.list, nil
}

// State returns the recording state.
func (cb *CommandBuffer) State() RecordingState { return cb.state }

// Kind returns the queue kind the buffer records for.
func (cb *CommandBuffer) Kind() QueueKind { return cb.kind }

// Len returns the number of commands recorded since the buffer was opened.
func (cb *CommandBuffer) Len() int { return cb.commands }

// SetDebugLabel names the buffer. It has no behavioral effect.
func (cb *CommandBuffer) SetDebugLabel(name string) {
	cb.label = name
	setLabel(cb.list, name)
}

func (cb *CommandBuffer) release() {
	if cb.list != nil {
		cb.list.Release()
		cb.list = nil
	}
	if cb.allocator != nil {
		cb.allocator.Release()
		cb.allocator = nil
	}
}
