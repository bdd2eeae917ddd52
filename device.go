package framesync

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
)

// QueueKind selects the hardware queue family a SubmissionQueue drives.
type QueueKind uint8

const (
	// QueueGraphics accepts draw, clear, copy and compute work.
	QueueGraphics QueueKind = iota
	// QueueCompute accepts compute and copy work.
	QueueCompute
	// QueueCopy accepts transfer work only.
	QueueCopy
)

// String returns the queue kind name.
func (k QueueKind) String() string {
	switch k {
	case QueueGraphics:
		return "graphics"
	case QueueCompute:
		return "compute"
	case QueueCopy:
		return "copy"
	default:
		return fmt.Sprintf("QueueKind(%d)", k)
	}
}

// NativeHandle is an opaque device object: a texture, a buffer or a
// swapchain image. framesync never inspects it.
type NativeHandle any

// Device is the factory collaborator. It is shared read-only; framesync
// never mutates it after creation, but exclusively owns every object it
// creates through it.
type Device interface {
	// CreateQueue creates a hardware submission queue of the given kind.
	CreateQueue(kind QueueKind) (NativeQueue, error)

	// CreateAllocator creates resettable backing memory for command lists.
	CreateAllocator(kind QueueKind) (Allocator, error)

	// CreateCommandList creates a command list bound to allocator.
	// The list is returned closed.
	CreateCommandList(kind QueueKind, allocator Allocator) (CommandList, error)

	// CreateFence creates a fence whose completed value starts at initial.
	CreateFence(initial uint64) (NativeFence, error)
}

// NativeQueue is a hardware submission port. Work executes in submission
// order.
type NativeQueue interface {
	// Execute submits a closed command list. It does not block.
	Execute(list CommandList) error

	// Signal asks the device to write value into fence once all work
	// previously submitted to this queue has retired. It does not block.
	Signal(fence NativeFence, value uint64) error

	Release()
}

// NativeFence is the device side of a Fence.
type NativeFence interface {
	// CompletedValue returns the last value the GPU wrote. Non-blocking.
	CompletedValue() uint64

	// WaitValue blocks until the completed value is at least value or the
	// timeout expires. A negative timeout waits forever. It reports whether
	// the value was reached.
	WaitValue(value uint64, timeout time.Duration) (bool, error)

	Release()
}

// Allocator is the memory backing one command list recording.
type Allocator interface {
	// Reset reclaims all memory. The GPU must have finished reading it.
	Reset() error

	Release()
}

// CommandList is a native command recording.
type CommandList interface {
	// Reset reopens the list for recording on allocator.
	Reset(allocator Allocator) error

	// Close finalizes the recording.
	Close() error

	ResourceBarrier(barriers ...Barrier)
	ClearRenderTarget(target NativeHandle, color gputypes.Color)
	ClearDepth(target NativeHandle, depth float32)
	CopyBuffer(dst, src NativeHandle, size uint64)

	Release()
}

// Labeler is implemented by native objects that accept a debug name.
type Labeler interface {
	SetDebugLabel(name string)
}

// HeapKind selects where a buffer lives.
type HeapKind uint8

const (
	// HeapDefault is GPU-local memory, not CPU-visible.
	HeapDefault HeapKind = iota
	// HeapUpload is CPU-writable memory the GPU reads from.
	HeapUpload
)

// BufferDesc describes a buffer created through a BufferAllocator.
type BufferDesc struct {
	Label string
	Size  uint64
	Heap  HeapKind
}

// BufferAllocator is an optional Device capability used by the Uploader.
type BufferAllocator interface {
	CreateBuffer(desc BufferDesc) (NativeHandle, error)

	// WriteBuffer copies data into an upload-heap buffer.
	WriteBuffer(buffer NativeHandle, data []byte) error

	ReleaseBuffer(buffer NativeHandle)
}

// PresentOptions controls a single Present call.
type PresentOptions struct {
	// SyncInterval is the number of vertical blanks to wait; 0 presents
	// immediately.
	SyncInterval int

	// AllowTearing requests an unsynchronized flip. Only set when the
	// surface supports it and SyncInterval is 0.
	AllowTearing bool
}

// Surface is the presentation collaborator. The surface, not the
// application, decides which image becomes current after each Present.
type Surface interface {
	ImageCount() int
	Image(i int) (NativeHandle, error)
	CurrentImageIndex() int
	Present(opts PresentOptions) error
}

// TearingSupporter is implemented by surfaces that can present with tearing.
type TearingSupporter interface {
	AllowTearing() bool
}

// setLabel forwards name to v if it accepts debug labels.
func setLabel(v any, name string) {
	if l, ok := v.(Labeler); ok {
		l.SetDebugLabel(name)
	}
}
