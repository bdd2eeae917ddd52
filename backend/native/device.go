// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

// Package native implements the framesync collaborator interfaces on top of
// gogpu/wgpu/hal.
//
// HAL exposes a single queue per device and timeline fences; command lists
// map to hal command encoders and allocators own the command buffers their
// lists produced until the next Reset.
package native

import (
	"math"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// forever is the HAL timeout used for unbounded waits.
const forever = time.Duration(math.MaxInt64)

// Device implements framesync.Device and framesync.BufferAllocator using a
// HAL device and queue.
//
// Thread Safety: Device is safe for concurrent use. The objects it creates
// follow the framesync ownership rules and are used from one goroutine.
type Device struct {
	mu       sync.Mutex
	device   hal.Device
	queue    hal.Queue
	external bool
	closed   bool
}

var (
	_ framesync.Device          = (*Device)(nil)
	_ framesync.BufferAllocator = (*Device)(nil)
)

// New wraps a HAL device and queue. The caller keeps ownership of both.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHALDevice
	}
	return &Device{device: device, queue: queue, external: true}, nil
}

// NewFromProvider shares the device of an external provider such as a
// gogpu window. The provider must expose HalDevice() any and HalQueue() any
// returning hal.Device and hal.Queue.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, errors.Wrapf(ErrNoHAL, "%T", provider)
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, errors.Wrap(ErrNoHAL, "HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, errors.Wrap(ErrNoHAL, "HalQueue is not hal.Queue")
	}
	framesync.Logger().Info("native: using provider device", "format", provider.SurfaceFormat())
	return &Device{device: device, queue: queue, external: true}, nil
}

// HAL returns the wrapped HAL device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// CreateQueue implements framesync.Device. HAL has one queue per device, so
// every kind shares it; submission order is preserved across kinds.
func (d *Device) CreateQueue(kind framesync.QueueKind) (framesync.NativeQueue, error) {
	if d.device == nil {
		return nil, ErrNilHALDevice
	}
	return &Queue{dev: d, kind: kind}, nil
}

// CreateAllocator implements framesync.Device.
func (d *Device) CreateAllocator(kind framesync.QueueKind) (framesync.Allocator, error) {
	if d.device == nil {
		return nil, ErrNilHALDevice
	}
	return &Allocator{dev: d, kind: kind}, nil
}

// CreateCommandList implements framesync.Device.
func (d *Device) CreateCommandList(kind framesync.QueueKind, allocator framesync.Allocator) (framesync.CommandList, error) {
	a, ok := allocator.(*Allocator)
	if !ok {
		return nil, errors.Wrapf(ErrForeignObject, "allocator %T", allocator)
	}
	label := kind.String() + "_list"
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: label,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command encoder")
	}
	return &CommandList{dev: d, allocator: a, encoder: encoder, label: label}, nil
}

// CreateFence implements framesync.Device. HAL fences start at zero; a
// non-zero initial value is reached by an empty signal.
func (d *Device) CreateFence(initial uint64) (framesync.NativeFence, error) {
	fence, err := d.device.CreateFence()
	if err != nil {
		return nil, errors.Wrap(err, "create fence")
	}
	f := &Fence{dev: d, fence: fence}
	if initial > 0 {
		if err := d.queue.Submit(nil, fence, initial); err != nil {
			d.device.DestroyFence(fence)
			return nil, errors.Wrapf(err, "initialize fence to %d", initial)
		}
		f.signaled = initial
	}
	return f, nil
}

// Queue implements framesync.NativeQueue over the device's HAL queue.
type Queue struct {
	dev  *Device
	kind framesync.QueueKind
}

// Execute implements framesync.NativeQueue.
func (q *Queue) Execute(list framesync.CommandList) error {
	l, ok := list.(*CommandList)
	if !ok {
		return errors.Wrapf(ErrForeignObject, "command list %T", list)
	}
	if l.recording || l.cmd == nil {
		return errors.Newf("native: command list %q is not closed", l.label)
	}
	if err := q.dev.queue.Submit([]hal.CommandBuffer{l.cmd}, nil, 0); err != nil {
		return errors.Wrapf(err, "submit %q", l.label)
	}
	// The allocator frees the buffer on its next Reset, after the fence wait.
	l.cmd = nil
	return nil
}

// Signal implements framesync.NativeQueue.
func (q *Queue) Signal(fence framesync.NativeFence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Wrapf(ErrForeignObject, "fence %T", fence)
	}
	if err := q.dev.queue.Submit(nil, f.fence, value); err != nil {
		return errors.Wrapf(err, "signal fence to %d", value)
	}
	f.mu.Lock()
	f.signaled = value
	f.mu.Unlock()
	return nil
}

// Release implements framesync.NativeQueue. The HAL queue belongs to the device.
func (q *Queue) Release() {}

// Fence implements framesync.NativeFence with a HAL timeline fence.
type Fence struct {
	dev   *Device
	fence hal.Fence

	mu        sync.Mutex
	signaled  uint64
	completed uint64
}

// CompletedValue implements framesync.NativeFence. HAL only answers
// "reached value v?", so the fence polls its last signaled value and
// otherwise reports the last value it saw complete.
func (f *Fence) CompletedValue() uint64 {
	f.mu.Lock()
	signaled, completed := f.signaled, f.completed
	f.mu.Unlock()
	if completed >= signaled {
		return completed
	}
	reached, err := f.dev.device.Wait(f.fence, signaled, 0)
	if err != nil || !reached {
		return completed
	}
	f.observe(signaled)
	return signaled
}

func (f *Fence) observe(value uint64) {
	f.mu.Lock()
	if value > f.completed {
		f.completed = value
	}
	f.mu.Unlock()
}

// WaitValue implements framesync.NativeFence.
func (f *Fence) WaitValue(value uint64, timeout time.Duration) (bool, error) {
	if timeout < 0 {
		timeout = forever
	}
	reached, err := f.dev.device.Wait(f.fence, value, timeout)
	if err != nil {
		return false, err
	}
	if reached {
		f.observe(value)
	}
	return reached, nil
}

// Release implements framesync.NativeFence.
func (f *Fence) Release() {
	if f.fence != nil {
		f.dev.device.DestroyFence(f.fence)
		f.fence = nil
	}
}

// Allocator owns the command buffers encoded from it until the GPU is done
// with them.
type Allocator struct {
	dev     *Device
	kind    framesync.QueueKind
	buffers []hal.CommandBuffer
}

// Reset implements framesync.Allocator by freeing every command buffer
// encoded since the previous Reset.
func (a *Allocator) Reset() error {
	for _, cb := range a.buffers {
		a.dev.device.FreeCommandBuffer(cb)
	}
	a.buffers = a.buffers[:0]
	return nil
}

// Release implements framesync.Allocator.
func (a *Allocator) Release() { _ = a.Reset() }

// CommandList records into a HAL command encoder.
type CommandList struct {
	dev       *Device
	allocator *Allocator
	encoder   hal.CommandEncoder
	label     string
	recording bool
	cmd       hal.CommandBuffer

	// dropped counts commands rejected because the list was not recording.
	dropped int
}

// recordable reports whether op may be encoded now. Commands issued
// outside Reset/Close are dropped and logged instead of reaching a
// finished encoder.
func (l *CommandList) recordable(op string) bool {
	if l.recording {
		return true
	}
	l.dropped++
	framesync.Logger().Error("native: command recorded into closed list",
		"list", l.label, "op", op, "dropped", l.dropped)
	return false
}

// Dropped returns the number of commands rejected because the list was
// closed when they were recorded.
func (l *CommandList) Dropped() int { return l.dropped }

// Reset implements framesync.CommandList.
func (l *CommandList) Reset(allocator framesync.Allocator) error {
	a, ok := allocator.(*Allocator)
	if !ok {
		return errors.Wrapf(ErrForeignObject, "allocator %T", allocator)
	}
	if l.recording {
		l.encoder.DiscardEncoding()
		l.recording = false
	}
	if err := l.encoder.BeginEncoding(l.label); err != nil {
		return errors.Wrapf(err, "begin encoding %q", l.label)
	}
	l.allocator = a
	l.recording = true
	l.cmd = nil
	return nil
}

// Close implements framesync.CommandList.
func (l *CommandList) Close() error {
	if !l.recording {
		return errors.Newf("native: command list %q is not recording", l.label)
	}
	l.recording = false
	cmd, err := l.encoder.EndEncoding()
	if err != nil {
		return errors.Wrapf(err, "end encoding %q", l.label)
	}
	l.cmd = cmd
	l.allocator.buffers = append(l.allocator.buffers, cmd)
	return nil
}

// ResourceBarrier implements framesync.CommandList. Only texture barriers
// reach HAL; buffer usage is tracked by the backend itself.
func (l *CommandList) ResourceBarrier(barriers ...framesync.Barrier) {
	if !l.recordable("barrier") {
		return
	}
	var out []hal.TextureBarrier
	for _, b := range barriers {
		tex, ok := b.Resource.(*Texture)
		if !ok {
			continue
		}
		from, to := textureUsage(b.From), textureUsage(b.To)
		if from == to {
			continue
		}
		out = append(out, hal.TextureBarrier{
			Texture: tex.texture,
			Usage: hal.TextureUsageTransition{
				OldUsage: from,
				NewUsage: to,
			},
		})
	}
	if len(out) > 0 {
		l.encoder.TransitionTextures(out)
	}
}

// ClearRenderTarget implements framesync.CommandList with an empty render
// pass that clears and stores.
func (l *CommandList) ClearRenderTarget(target framesync.NativeHandle, color gputypes.Color) {
	if !l.recordable("clear") {
		return
	}
	tex, ok := target.(*Texture)
	if !ok {
		return
	}
	rp := l.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: tex.label + "_clear",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       tex.view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: color,
		}},
	})
	rp.End()
}

// ClearDepth implements framesync.CommandList.
func (l *CommandList) ClearDepth(target framesync.NativeHandle, depth float32) {
	if !l.recordable("clear_depth") {
		return
	}
	tex, ok := target.(*Texture)
	if !ok {
		return
	}
	rp := l.encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: tex.label + "_clear_depth",
		DepthStencilAttachment: &hal.RenderPassDepthStencilAttachment{
			View:            tex.view,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: depth,
			StencilLoadOp:   gputypes.LoadOpClear,
			StencilStoreOp:  gputypes.StoreOpDiscard,
		},
	})
	rp.End()
}

// CopyBuffer implements framesync.CommandList.
func (l *CommandList) CopyBuffer(dst, src framesync.NativeHandle, size uint64) {
	if !l.recordable("copy") {
		return
	}
	d, ok1 := dst.(*Buffer)
	s, ok2 := src.(*Buffer)
	if !ok1 || !ok2 {
		return
	}
	l.encoder.CopyBufferToBuffer(s.buffer, d.buffer, []hal.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	}})
}

// Encoder returns the HAL encoder for application recording. It is only
// valid between Reset and Close.
func (l *CommandList) Encoder() hal.CommandEncoder { return l.encoder }

// SetDebugLabel implements framesync.Labeler. The label is used for the
// next encoding.
func (l *CommandList) SetDebugLabel(name string) { l.label = name }

// Release implements framesync.CommandList.
func (l *CommandList) Release() {
	if l.recording {
		l.encoder.DiscardEncoding()
		l.recording = false
	}
}

// textureUsage maps a tracked resource state to the HAL usage that
// produces the matching image layout.
func textureUsage(s framesync.ResourceState) gputypes.TextureUsage {
	switch s {
	case framesync.StateRenderTarget, framesync.StateDepthWrite, framesync.StateDepthRead:
		return gputypes.TextureUsageRenderAttachment
	case framesync.StateCopyDest:
		return gputypes.TextureUsageCopyDst
	case framesync.StateCopySource:
		return gputypes.TextureUsageCopySrc
	case framesync.StateShaderResource, framesync.StateGenericRead, framesync.StateUnorderedAccess:
		return gputypes.TextureUsageTextureBinding
	default:
		// Present and common have no HAL usage bit.
		return 0
	}
}
