package framesync

import (
	"time"

	"github.com/gogpu/gputypes"
)

// countingDevice is a minimal in-package collaborator whose GPU finishes
// every signal immediately. It counts live objects.
type countingDevice struct {
	live     int
	failNext error
}

func (d *countingDevice) take() error {
	err := d.failNext
	d.failNext = nil
	return err
}

func (d *countingDevice) CreateQueue(QueueKind) (NativeQueue, error) {
	if err := d.take(); err != nil {
		return nil, err
	}
	d.live++
	return &countingQueue{dev: d}, nil
}

func (d *countingDevice) CreateAllocator(QueueKind) (Allocator, error) {
	if err := d.take(); err != nil {
		return nil, err
	}
	d.live++
	return &countingAllocator{dev: d}, nil
}

func (d *countingDevice) CreateCommandList(QueueKind, Allocator) (CommandList, error) {
	if err := d.take(); err != nil {
		return nil, err
	}
	d.live++
	return &countingList{dev: d}, nil
}

func (d *countingDevice) CreateFence(initial uint64) (NativeFence, error) {
	if err := d.take(); err != nil {
		return nil, err
	}
	d.live++
	return &countingFence{dev: d, completed: initial}, nil
}

type countingQueue struct{ dev *countingDevice }

func (q *countingQueue) Execute(CommandList) error { return nil }
func (q *countingQueue) Signal(f NativeFence, v uint64) error {
	f.(*countingFence).completed = v
	return nil
}
func (q *countingQueue) Release() { q.dev.live-- }

type countingFence struct {
	dev       *countingDevice
	completed uint64
}

func (f *countingFence) CompletedValue() uint64 { return f.completed }
func (f *countingFence) WaitValue(v uint64, _ time.Duration) (bool, error) {
	return f.completed >= v, nil
}
func (f *countingFence) Release() { f.dev.live-- }

type countingAllocator struct {
	dev    *countingDevice
	resets int
}

func (a *countingAllocator) Reset() error { a.resets++; return nil }
func (a *countingAllocator) Release()     { a.dev.live-- }

type countingList struct {
	dev      *countingDevice
	barriers []Barrier
}

func (l *countingList) Reset(Allocator) error                          { l.barriers = nil; return nil }
func (l *countingList) Close() error                                   { return nil }
func (l *countingList) ResourceBarrier(b ...Barrier)                   { l.barriers = append(l.barriers, b...) }
func (l *countingList) ClearRenderTarget(NativeHandle, gputypes.Color) {}
func (l *countingList) ClearDepth(NativeHandle, float32)               {}
func (l *countingList) CopyBuffer(NativeHandle, NativeHandle, uint64)  {}
func (l *countingList) Release()                                       { l.dev.live-- }
