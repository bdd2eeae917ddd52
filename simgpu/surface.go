// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package simgpu

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/gputypes"
)

// stateful is a simulated resource whose state the GPU tracks as barriers
// execute.
type stateful interface {
	stateLocked() framesync.ResourceState
	setStateLocked(framesync.ResourceState)
	name() string
}

// Texture is a simulated texture: a swapchain image or a depth buffer.
type Texture struct {
	dev        *Device
	label      string
	state      framesync.ResourceState
	clearColor gputypes.Color
	depth      float32
	clears     int
}

// NewTexture creates a texture in the given state.
func (d *Device) NewTexture(label string, state framesync.ResourceState) *Texture {
	return &Texture{dev: d, label: label, state: state}
}

func (t *Texture) stateLocked() framesync.ResourceState     { return t.state }
func (t *Texture) setStateLocked(s framesync.ResourceState) { t.state = s }
func (t *Texture) name() string                             { return t.label }

// State returns the state the GPU last left the texture in.
func (t *Texture) State() framesync.ResourceState {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.state
}

// ClearColor returns the color of the last executed clear.
func (t *Texture) ClearColor() gputypes.Color {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.clearColor
}

// Depth returns the value of the last executed depth clear.
func (t *Texture) Depth() float32 {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.depth
}

// Clears returns the number of executed clears.
func (t *Texture) Clears() int {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	return t.clears
}

// Label returns the texture's debug label.
func (t *Texture) Label() string { return t.label }

// Buffer is a simulated buffer.
type Buffer struct {
	label string
	heap  framesync.HeapKind
	data  []byte
	state framesync.ResourceState
}

func (b *Buffer) stateLocked() framesync.ResourceState     { return b.state }
func (b *Buffer) setStateLocked(s framesync.ResourceState) { b.state = s }
func (b *Buffer) name() string                             { return b.label }

// CreateBuffer implements framesync.BufferAllocator. Default-heap buffers
// start in StateCopyDest, upload-heap buffers in StateGenericRead.
func (d *Device) CreateBuffer(desc framesync.BufferDesc) (framesync.NativeHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpCreateBuffer); err != nil {
		return nil, err
	}
	if desc.Size == 0 {
		return nil, errors.Newf("simgpu: zero-sized buffer %q", desc.Label)
	}
	state := framesync.StateCopyDest
	if desc.Heap == framesync.HeapUpload {
		state = framesync.StateGenericRead
	}
	b := &Buffer{label: desc.Label, heap: desc.Heap, data: make([]byte, desc.Size), state: state}
	d.buffers[b] = struct{}{}
	d.recordLocked(EventCreateBuffer, b.label, desc.Size)
	return b, nil
}

// WriteBuffer implements framesync.BufferAllocator.
func (d *Device) WriteBuffer(buffer framesync.NativeHandle, data []byte) error {
	b, ok := buffer.(*Buffer)
	if !ok {
		return errors.Newf("simgpu: foreign buffer %T", buffer)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if b.heap != framesync.HeapUpload {
		d.violationLocked("CPU write to default-heap buffer %s", b.label)
		return errors.Newf("simgpu: buffer %s is not CPU-visible", b.label)
	}
	if len(data) > len(b.data) {
		return errors.Newf("simgpu: write of %d bytes into %d-byte buffer %s", len(data), len(b.data), b.label)
	}
	copy(b.data, data)
	return nil
}

// ReleaseBuffer implements framesync.BufferAllocator.
func (d *Device) ReleaseBuffer(buffer framesync.NativeHandle) {
	b, ok := buffer.(*Buffer)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, live := d.buffers[b]; !live {
		d.violationLocked("double release of buffer %s", b.label)
		return
	}
	delete(d.buffers, b)
	d.recordLocked(EventRelease, b.label, 0)
}

// LiveBuffers returns the number of buffers created and not released.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Data returns a copy of the buffer contents as the GPU sees them.
func (b *Buffer) Data() []byte {
	return append([]byte(nil), b.data...)
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string { return b.label }

// SurfaceOption configures a simulated Surface.
type SurfaceOption func(*Surface)

// WithTearing makes the surface report tearing support.
func WithTearing() SurfaceOption {
	return func(s *Surface) {
		s.tearing = true
	}
}

// WithImageOrder makes the surface hand out images in the given repeating
// order instead of round-robin.
func WithImageOrder(order ...int) SurfaceOption {
	return func(s *Surface) {
		s.order = append([]int(nil), order...)
	}
}

// Surface is a simulated swapchain. Images start in StatePresent.
type Surface struct {
	dev      *Device
	images   []*Texture
	order    []int
	position int
	tearing  bool

	presents    []framesync.PresentOptions
	failPresent error
}

var (
	_ framesync.Surface          = (*Surface)(nil)
	_ framesync.TearingSupporter = (*Surface)(nil)
)

// NewSurface creates a surface with n images on d.
func (d *Device) NewSurface(n int, opts ...SurfaceOption) *Surface {
	s := &Surface{dev: d}
	for i := 0; i < n; i++ {
		s.images = append(s.images, d.NewTexture(d.newLabel("backbuffer"), framesync.StatePresent))
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (d *Device) newLabel(prefix string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.newLabelLocked(prefix)
}

// ImageCount implements framesync.Surface.
func (s *Surface) ImageCount() int { return len(s.images) }

// Image implements framesync.Surface.
func (s *Surface) Image(i int) (framesync.NativeHandle, error) {
	if i < 0 || i >= len(s.images) {
		return nil, errors.Newf("simgpu: image %d of %d", i, len(s.images))
	}
	return s.images[i], nil
}

// Texture returns image i as its concrete type.
func (s *Surface) Texture(i int) *Texture { return s.images[i] }

// CurrentImageIndex implements framesync.Surface.
func (s *Surface) CurrentImageIndex() int {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.currentLocked()
}

func (s *Surface) currentLocked() int {
	if len(s.order) > 0 {
		return s.order[s.position%len(s.order)]
	}
	if len(s.images) == 0 {
		return 0
	}
	return s.position % len(s.images)
}

// AllowTearing implements framesync.TearingSupporter.
func (s *Surface) AllowTearing() bool { return s.tearing }

// FailNextPresent makes the next Present return err, or ErrInjected if err
// is nil.
func (s *Surface) FailNextPresent(err error) {
	if err == nil {
		err = ErrInjected
	}
	s.dev.mu.Lock()
	s.failPresent = err
	s.dev.mu.Unlock()
}

// Present implements framesync.Surface. The current image must have been
// returned to StatePresent by executed work.
func (s *Surface) Present(opts framesync.PresentOptions) error {
	d := s.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := s.failPresent; err != nil {
		s.failPresent = nil
		return err
	}
	if d.lost {
		return ErrDeviceRemoved
	}
	img := s.images[s.currentLocked()]
	if img.state != framesync.StatePresent {
		d.violationLocked("present of %s in state %s", img.label, img.state)
	}
	if opts.AllowTearing && (!s.tearing || opts.SyncInterval != 0) {
		d.violationLocked("tearing present with sync interval %d (supported %v)", opts.SyncInterval, s.tearing)
	}
	s.presents = append(s.presents, opts)
	d.recordLocked(EventPresent, img.label, uint64(len(s.presents)))
	s.position++
	return nil
}

// Presents returns the options of every successful Present, in order.
func (s *Surface) Presents() []framesync.PresentOptions {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return append([]framesync.PresentOptions(nil), s.presents...)
}
