package framesync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// frameSlot is one element of the frame-in-flight ring.
type frameSlot struct {
	buffer       *CommandBuffer
	fence        *Fence
	lastSignaled uint64
}

// busy reports whether the GPU may still read the slot's allocator.
func (s *frameSlot) busy() bool {
	return !s.fence.IsComplete(s.lastSignaled)
}

// QueueStats summarizes a SubmissionQueue's activity.
type QueueStats struct {
	// Submissions is the number of SubmitAndSignal calls that succeeded.
	Submissions uint64

	// BlockingWaits is the number of slot waits that actually suspended.
	BlockingWaits uint64

	// WaitTime is the total time spent suspended on slot fences.
	WaitTime time.Duration
}

// String returns a human-readable summary.
func (s QueueStats) String() string {
	return fmt.Sprintf("Queue[%d submissions, %d blocking waits, %v blocked]",
		s.Submissions, s.BlockingWaits, s.WaitTime)
}

// SubmissionQueue serializes "CPU records, GPU executes, CPU is told it
// finished" for one hardware queue across a fixed ring of frame slots.
//
// Each slot owns an allocator, a command buffer and a fence. A slot's
// buffer is reopened only after the GPU reached the fence value signaled by
// the slot's previous submission, so allocator memory is never reset while
// the GPU reads it.
//
// SubmissionQueue is not safe for concurrent use; all recording and
// submission happens on one goroutine.
type SubmissionQueue struct {
	id       uuid.UUID
	kind     QueueKind
	label    string
	native   NativeQueue
	slots    []frameSlot
	counter  timeline
	slowWait time.Duration
	log      *slog.Logger

	submissions   uint64
	blockingWaits uint64
	waitTime      time.Duration
	closed        bool
}

// NewSubmissionQueue creates a queue of the given kind with one frame slot
// per frame in flight (WithFramesInFlight, default 2).
//
// Any device failure is returned as an error matching ErrInitialization;
// objects created before the failure are released.
func NewSubmissionQueue(device Device, kind QueueKind, opts ...Option) (*SubmissionQueue, error) {
	o := applyOptions(opts)
	label := o.label
	if label == "" {
		label = kind.String()
	}

	q := &SubmissionQueue{
		id:       uuid.New(),
		kind:     kind,
		label:    label,
		slowWait: o.slowWait,
	}
	q.log = Logger().With("queue", kind.String(), "id", q.id.String())

	native, err := device.CreateQueue(kind)
	if err != nil {
		return nil, markFatal(err, ErrInitialization, "create %s queue %q", kind, label)
	}
	q.native = native
	setLabel(native, label)

	q.slots = make([]frameSlot, 0, o.framesInFlight)
	for i := 0; i < o.framesInFlight; i++ {
		slotLabel := fmt.Sprintf("%s/slot%d", label, i)
		cb, err := newCommandBuffer(device, kind, slotLabel)
		if err != nil {
			q.release()
			return nil, err
		}
		fence, err := newFence(device, &q.counter, slotLabel)
		if err != nil {
			cb.release()
			q.release()
			return nil, err
		}
		q.slots = append(q.slots, frameSlot{buffer: cb, fence: fence})
	}

	q.log.Info("submission queue created", "label", label, "frames_in_flight", o.framesInFlight)
	return q, nil
}

func (q *SubmissionQueue) slot(i int) (*frameSlot, error) {
	if q.closed {
		return nil, ErrClosed
	}
	if i < 0 || i >= len(q.slots) {
		return nil, logicViolation(ErrSlotOutOfRange, "slot %d of %d on queue %q", i, len(q.slots), q.label)
	}
	return &q.slots[i], nil
}

// AcquireBufferForSlot blocks until the GPU finished the slot's previous
// submission, then opens and returns the slot's command buffer.
//
// This is the only suspension point of the per-frame flow. With at least
// two frames in flight it normally returns without blocking, because the
// GPU had a whole frame to finish.
func (q *SubmissionQueue) AcquireBufferForSlot(i int) (*CommandBuffer, error) {
	s, err := q.slot(i)
	if err != nil {
		return nil, err
	}
	if s.buffer.state == Open {
		return nil, logicViolation(ErrAlreadyOpen, "acquire slot %d on queue %q", i, q.label)
	}

	waited, err := q.waitSlot(s, s.lastSignaled)
	if err != nil {
		return nil, err
	}
	if q.slowWait > 0 && waited > q.slowWait {
		q.log.Warn("slow frame slot wait", "slot", i, "value", s.lastSignaled, "blocked", waited)
	}

	if err := s.buffer.open(); err != nil {
		return nil, err
	}
	q.log.Debug("slot acquired", "slot", i, "fence", s.lastSignaled)
	return s.buffer, nil
}

// waitSlot blocks until the slot's fence reaches value and accounts for the
// time spent suspended.
func (q *SubmissionQueue) waitSlot(s *frameSlot, value uint64) (time.Duration, error) {
	waits, before := s.fence.BlockingWaits(), s.fence.WaitTime()
	err := s.fence.WaitUntil(value, Infinite)
	waited := s.fence.WaitTime() - before
	q.blockingWaits += s.fence.BlockingWaits() - waits
	q.waitTime += waited
	return waited, err
}

// SubmitAndSignal closes the slot's command buffer, submits it and signals
// the slot's fence. It returns the signaled value; the buffer becomes
// reusable once the GPU reaches it.
//
// Failures are fatal. A failed submission is never retried because the
// recorded commands can no longer be trusted.
func (q *SubmissionQueue) SubmitAndSignal(i int) (uint64, error) {
	s, err := q.slot(i)
	if err != nil {
		return 0, err
	}
	if s.buffer.state != Open {
		return 0, logicViolation(ErrNotRecording, "submit slot %d on queue %q", i, q.label)
	}
	if err := s.buffer.close(); err != nil {
		return 0, err
	}
	if err := q.native.Execute(s.buffer.list); err != nil {
		q.log.Error("submission failed", "slot", i, "err", err)
		return 0, markFatal(err, ErrSubmission, "execute slot %d on queue %q", i, q.label)
	}
	value, err := s.fence.Signal(q.native)
	if err != nil {
		q.log.Error("signal failed", "slot", i, "err", err)
		return 0, err
	}
	s.lastSignaled = value
	q.submissions++
	q.log.Debug("slot submitted", "slot", i, "fence", value, "commands", s.buffer.commands)
	return value, nil
}

// Flush blocks until every submission made so far has retired on the GPU.
func (q *SubmissionQueue) Flush() error {
	if q.closed {
		return ErrClosed
	}
	return q.drain(false)
}

// drain waits for every slot still in use. With final set, each busy slot
// gets one last signal before the wait; idle slots are neither signaled nor
// waited on.
func (q *SubmissionQueue) drain(final bool) error {
	for i := range q.slots {
		s := &q.slots[i]
		if !s.busy() {
			continue
		}
		target := s.lastSignaled
		if final {
			value, err := s.fence.Signal(q.native)
			if err != nil {
				return err
			}
			s.lastSignaled = value
			target = value
		}
		if _, err := q.waitSlot(s, target); err != nil {
			return err
		}
	}
	return nil
}

// Close drains every busy slot and then releases all native objects.
// Calling Close more than once is a no-op.
//
// If the drain fails for any reason other than device loss, nothing is
// released and the queue stays open, so Close can be retried. After device
// loss the GPU will never read the objects again and they are released.
func (q *SubmissionQueue) Close() error {
	if q.closed {
		return nil
	}
	for i := range q.slots {
		if q.slots[i].buffer.state == Open {
			// Nothing will ever submit it; drop the recording.
			q.slots[i].buffer.state = Closed
			q.log.Warn("closing queue with an open command buffer", "slot", i)
		}
	}
	err := q.drain(true)
	if err != nil && !errors.Is(err, ErrDeviceLost) {
		q.log.Error("queue drain failed, native objects kept", "err", err)
		return err
	}
	q.closed = true
	q.release()
	if err != nil {
		return err
	}
	q.log.Info("submission queue drained", "submissions", q.submissions)
	return nil
}

func (q *SubmissionQueue) release() {
	for i := range q.slots {
		q.slots[i].buffer.release()
		q.slots[i].fence.Release()
	}
	q.slots = nil
	if q.native != nil {
		q.native.Release()
		q.native = nil
	}
}

// Stats returns cumulative submission and wait statistics.
func (q *SubmissionQueue) Stats() QueueStats {
	return QueueStats{
		Submissions:   q.submissions,
		BlockingWaits: q.blockingWaits,
		WaitTime:      q.waitTime,
	}
}

// FramesInFlight returns the number of frame slots.
func (q *SubmissionQueue) FramesInFlight() int { return len(q.slots) }

// LastSignaled returns the fence value of slot i's last submission.
func (q *SubmissionQueue) LastSignaled(i int) uint64 {
	if i < 0 || i >= len(q.slots) {
		return 0
	}
	return q.slots[i].lastSignaled
}

// Kind returns the hardware queue kind.
func (q *SubmissionQueue) Kind() QueueKind { return q.kind }

// ID returns the identifier attached to the queue's log records.
func (q *SubmissionQueue) ID() uuid.UUID { return q.id }

// Native returns the hardware queue, e.g. for swapchain creation.
func (q *SubmissionQueue) Native() NativeQueue { return q.native }

// SetDebugLabel names the queue. It has no behavioral effect.
func (q *SubmissionQueue) SetDebugLabel(name string) {
	q.label = name
	setLabel(q.native, name)
}
