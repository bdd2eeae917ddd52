// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

//go:build !nogpu

package native

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer is a HAL buffer created through Device.CreateBuffer.
type Buffer struct {
	buffer hal.Buffer
	label  string
	size   uint64
	heap   framesync.HeapKind
}

// HAL returns the wrapped buffer, e.g. to bind it as a vertex buffer.
func (b *Buffer) HAL() hal.Buffer { return b.buffer }

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Label returns the debug label.
func (b *Buffer) Label() string { return b.label }

// bufferUsage returns the HAL usage for a heap. Default-heap buffers are
// copy destinations that can be bound for drawing; upload buffers are
// written by the queue and copied from.
func bufferUsage(heap framesync.HeapKind) gputypes.BufferUsage {
	if heap == framesync.HeapUpload {
		return gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageCopyDst | gputypes.BufferUsageVertex | gputypes.BufferUsageStorage
}

// CreateBuffer implements framesync.BufferAllocator.
func (d *Device) CreateBuffer(desc framesync.BufferDesc) (framesync.NativeHandle, error) {
	if desc.Size == 0 {
		return nil, errors.Newf("native: zero-sized buffer %q", desc.Label)
	}
	buf, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  desc.Size,
		Usage: bufferUsage(desc.Heap),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create buffer %q", desc.Label)
	}
	return &Buffer{buffer: buf, label: desc.Label, size: desc.Size, heap: desc.Heap}, nil
}

// WriteBuffer implements framesync.BufferAllocator through the queue's
// staging path.
func (d *Device) WriteBuffer(buffer framesync.NativeHandle, data []byte) error {
	b, ok := buffer.(*Buffer)
	if !ok {
		return errors.Wrapf(ErrForeignObject, "buffer %T", buffer)
	}
	if b.heap != framesync.HeapUpload {
		return errors.Newf("native: buffer %q is not in the upload heap", b.label)
	}
	if uint64(len(data)) > b.size {
		return errors.Newf("native: write of %d bytes into %d-byte buffer %q", len(data), b.size, b.label)
	}
	d.queue.WriteBuffer(b.buffer, 0, data)
	return nil
}

// ReleaseBuffer implements framesync.BufferAllocator.
func (d *Device) ReleaseBuffer(buffer framesync.NativeHandle) {
	b, ok := buffer.(*Buffer)
	if !ok || b.buffer == nil {
		return
	}
	d.device.DestroyBuffer(b.buffer)
	b.buffer = nil
}

// Texture is a HAL texture with its default view. It is the native handle
// of back buffers and depth buffers.
type Texture struct {
	texture hal.Texture
	view    hal.TextureView
	label   string
	owned   bool
}

// WrapTexture wraps a texture created elsewhere, such as a swapchain image.
// The caller keeps ownership.
func WrapTexture(texture hal.Texture, view hal.TextureView, label string) *Texture {
	return &Texture{texture: texture, view: view, label: label}
}

// HAL returns the wrapped texture and view.
func (t *Texture) HAL() (hal.Texture, hal.TextureView) { return t.texture, t.view }

// Label returns the debug label.
func (t *Texture) Label() string { return t.label }

// CreateTexture creates a 2D texture usable as a render attachment plus its
// default view. Depth24PlusStencil8 creates a depth buffer.
func (d *Device) CreateTexture(label string, width, height uint32, format gputypes.TextureFormat) (*Texture, error) {
	if width == 0 || height == 0 {
		return nil, errors.Wrapf(ErrInvalidTextureSize, "%dx%d", width, height)
	}
	usage := gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc
	if format == gputypes.TextureFormatDepth24PlusStencil8 {
		usage = gputypes.TextureUsageRenderAttachment
	}
	tex, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         label,
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create texture %q", label)
	}
	view, err := d.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: label + "_view",
	})
	if err != nil {
		d.device.DestroyTexture(tex)
		return nil, errors.Wrapf(err, "create view of %q", label)
	}
	return &Texture{texture: tex, view: view, label: label, owned: true}, nil
}

// DestroyTexture releases a texture created by CreateTexture.
func (d *Device) DestroyTexture(t *Texture) {
	if t == nil || !t.owned {
		return
	}
	if t.view != nil {
		d.device.DestroyTextureView(t.view)
		t.view = nil
	}
	if t.texture != nil {
		d.device.DestroyTexture(t.texture)
		t.texture = nil
	}
}

// OffscreenSurface is a framesync.Surface of device textures that are never
// shown. It hands out images round-robin, which is what a FIFO swapchain
// does in steady state, and serves headless rendering and tests.
type OffscreenSurface struct {
	dev     *Device
	images  []*Texture
	current int
	frames  uint64
}

var _ framesync.Surface = (*OffscreenSurface)(nil)

// NewOffscreenSurface creates n images of the given size.
func (d *Device) NewOffscreenSurface(n int, width, height uint32) (*OffscreenSurface, error) {
	if n < 1 {
		return nil, errors.Newf("native: surface needs at least one image, got %d", n)
	}
	s := &OffscreenSurface{dev: d}
	for i := 0; i < n; i++ {
		tex, err := d.CreateTexture(fmt.Sprintf("offscreen_%d", i), width, height, gputypes.TextureFormatBGRA8Unorm)
		if err != nil {
			s.Destroy()
			return nil, err
		}
		s.images = append(s.images, tex)
	}
	return s, nil
}

// ImageCount implements framesync.Surface.
func (s *OffscreenSurface) ImageCount() int { return len(s.images) }

// Image implements framesync.Surface.
func (s *OffscreenSurface) Image(i int) (framesync.NativeHandle, error) {
	if i < 0 || i >= len(s.images) {
		return nil, errors.Newf("native: image %d of %d", i, len(s.images))
	}
	return s.images[i], nil
}

// CurrentImageIndex implements framesync.Surface.
func (s *OffscreenSurface) CurrentImageIndex() int { return s.current }

// Present implements framesync.Surface.
func (s *OffscreenSurface) Present(framesync.PresentOptions) error {
	s.frames++
	s.current = (s.current + 1) % len(s.images)
	return nil
}

// Presented returns the number of Present calls.
func (s *OffscreenSurface) Presented() uint64 { return s.frames }

// Destroy releases every image. The surface must not be in use.
func (s *OffscreenSurface) Destroy() {
	for _, img := range s.images {
		s.dev.DestroyTexture(img)
	}
	s.images = nil
}
