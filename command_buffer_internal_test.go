package framesync

import (
	"testing"

	"github.com/cockroachdb/errors"
)

func TestCommandBuffer_Lifecycle(t *testing.T) {
	dev := &countingDevice{}
	cb, err := newCommandBuffer(dev, QueueGraphics, "cb")
	if err != nil {
		t.Fatalf("newCommandBuffer: %v", err)
	}
	if cb.State() != Closed {
		t.Fatalf("new buffer state = %v, want closed", cb.State())
	}

	if err := cb.close(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("close of closed buffer = %v, want ErrNotRecording", err)
	}
	if err := cb.open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cb.open(); !errors.Is(err, ErrAlreadyOpen) || !IsLogicViolation(err) {
		t.Errorf("second open = %v, want ErrAlreadyOpen logic violation", err)
	}

	res := NewResource("tex", StatePresent, "tex")
	if err := cb.Transition(res, StateRenderTarget); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if cb.Len() != 1 {
		t.Errorf("Len = %d, want 1", cb.Len())
	}
	if err := cb.close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if cb.State() != Submitted {
		t.Errorf("state after close = %v, want submitted", cb.State())
	}

	list := cb.list.(*countingList)
	if len(list.barriers) != 1 || list.barriers[0].From != StatePresent || list.barriers[0].To != StateRenderTarget {
		t.Errorf("recorded barriers = %v", list.barriers)
	}
	if a := cb.allocator.(*countingAllocator); a.resets != 1 {
		t.Errorf("allocator resets = %d, want 1", a.resets)
	}

	cb.release()
	if dev.live != 0 {
		t.Errorf("live objects after release = %d, want 0", dev.live)
	}
}

func TestCommandBuffer_StateErrors(t *testing.T) {
	dev := &countingDevice{}
	cb, err := newCommandBuffer(dev, QueueGraphics, "cb")
	if err != nil {
		t.Fatalf("newCommandBuffer: %v", err)
	}
	defer cb.release()
	res := NewResource("tex", StatePresent, "tex")

	// Never opened: plain ErrNotRecording.
	err = cb.Transition(res, StateRenderTarget)
	if !errors.Is(err, ErrNotRecording) || errors.Is(err, ErrBufferSubmitted) {
		t.Errorf("Transition on new buffer = %v, want ErrNotRecording only", err)
	}

	if err := cb.open(); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := cb.close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tests := []struct {
		name string
		call func() error
	}{
		{"close", cb.close},
		{"transition", func() error { return cb.Transition(res, StateRenderTarget) }},
		{"barrier", func() error { return cb.ResourceBarrier(Barrier{From: StatePresent, To: StateCopyDest}) }},
		{"native", func() error { _, err := cb.Native(); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !errors.Is(err, ErrBufferSubmitted) {
				t.Errorf("error = %v, want ErrBufferSubmitted", err)
			}
			if !errors.Is(err, ErrNotRecording) {
				t.Errorf("error = %v, want it to match ErrNotRecording", err)
			}
			if !IsLogicViolation(err) {
				t.Errorf("error = %v, want a logic violation", err)
			}
		})
	}
	if res.State() != StatePresent {
		t.Errorf("resource state = %s after rejected transitions", res.State())
	}

	// A submitted buffer reopens for the next frame on its slot.
	if err := cb.open(); err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if cb.State() != Open {
		t.Errorf("state after reopen = %v, want open", cb.State())
	}
	if a := cb.allocator.(*countingAllocator); a.resets != 2 {
		t.Errorf("allocator resets = %d, want 2", a.resets)
	}
}

func TestNewCommandBuffer_ListFailureReleasesAllocator(t *testing.T) {
	dev := &countingDevice{}
	_, err := newCommandBuffer(failingListDevice{dev}, QueueCopy, "cb")
	if !errors.Is(err, ErrInitialization) {
		t.Fatalf("error = %v, want ErrInitialization", err)
	}
	if dev.live != 0 {
		t.Errorf("live objects = %d, want 0", dev.live)
	}
}

// failingListDevice fails every command list creation.
type failingListDevice struct {
	*countingDevice
}

func (failingListDevice) CreateCommandList(QueueKind, Allocator) (CommandList, error) {
	return nil, errors.New("out of memory")
}

func TestSubmissionQueue_CloseReleasesEverything(t *testing.T) {
	dev := &countingDevice{}
	q, err := NewSubmissionQueue(dev, QueueGraphics, WithFramesInFlight(3))
	if err != nil {
		t.Fatalf("NewSubmissionQueue: %v", err)
	}
	// queue + 3 * (allocator, list, fence)
	if dev.live != 10 {
		t.Errorf("live objects = %d, want 10", dev.live)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dev.live != 0 {
		t.Errorf("live objects after Close = %d, want 0", dev.live)
	}
}
