package framesync

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
)

// depthClearValue is the far plane value the depth buffer is reset to.
const depthClearValue float32 = 1.0

// Renderer drives the per-present protocol: it ties the graphics
// SubmissionQueue, the surface's current image index and the state of the
// active back buffer together.
//
// Frame sequence, on the render goroutine:
//
//	f, _ := r.BeginFrame() // wait for the slot, back buffer -> render target, clear
//	// record draws into f.CommandBuffer()
//	r.Present()            // back buffer -> present, submit + signal, present, read next index
//
// Frame slots are used round-robin, one per presented frame, independent
// of which image the surface hands out.
//
// Renderer is not safe for concurrent use.
type Renderer struct {
	surface     Surface
	queue       *SubmissionQueue
	backBuffers []*Resource
	depth       *Resource
	clock       *FrameClock

	clearColor gputypes.Color
	present    PresentOptions

	active int
	slot   int
	frame  *Frame
	frames uint64
	closed bool
}

// NewRenderer creates the graphics queue, wraps every surface image as a
// back buffer in the present state and reads the initial image index.
//
// The depth buffer, when given with WithDepthBuffer, is tracked in the
// depth-write state from creation on. It is only ever used as a depth
// attachment, so the renderer never transitions it.
func NewRenderer(device Device, surface Surface, opts ...Option) (*Renderer, error) {
	o := applyOptions(opts)
	label := o.label
	if label == "" {
		label = "renderer"
	}

	n := surface.ImageCount()
	if n < 1 {
		return nil, errors.Mark(errors.Newf("surface reports %d images", n), ErrInitialization)
	}

	queue, err := NewSubmissionQueue(device, QueueGraphics,
		WithFramesInFlight(o.framesInFlight),
		WithLabel(label+"/graphics"),
		WithSlowWaitThreshold(o.slowWait),
	)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		surface:    surface,
		queue:      queue,
		clock:      NewFrameClock(),
		clearColor: o.clearColor,
	}

	r.backBuffers = make([]*Resource, n)
	for i := range r.backBuffers {
		img, err := surface.Image(i)
		if err != nil {
			_ = queue.Close()
			return nil, markFatal(err, ErrInitialization, "get surface image %d", i)
		}
		r.backBuffers[i] = NewResource(img, StatePresent, fmt.Sprintf("%s/backbuffer%d", label, i))
	}

	if o.depthBuffer != nil {
		r.depth = NewResource(o.depthBuffer, StateDepthWrite, label+"/depth")
	}

	r.present = PresentOptions{SyncInterval: 1}
	if !o.vsync {
		r.present.SyncInterval = 0
		if ts, ok := surface.(TearingSupporter); ok && ts.AllowTearing() {
			r.present.AllowTearing = true
		}
	}

	if r.active, err = r.currentIndex(); err != nil {
		_ = queue.Close()
		return nil, err
	}

	Logger().Info("renderer created",
		"back_buffers", n,
		"frames_in_flight", queue.FramesInFlight(),
		"depth", r.depth != nil,
		"sync_interval", r.present.SyncInterval,
		"tearing", r.present.AllowTearing)
	return r, nil
}

// currentIndex reads and validates the surface's current image index.
func (r *Renderer) currentIndex() (int, error) {
	i := r.surface.CurrentImageIndex()
	if i < 0 || i >= len(r.backBuffers) {
		return 0, errors.Mark(
			errors.Newf("surface image index %d outside [0,%d)", i, len(r.backBuffers)),
			ErrSubmission)
	}
	return i, nil
}

// BeginFrame waits until the next frame slot is free,
// opens its command buffer, transitions the back buffer to the render
// target state and clears it (and the depth buffer, if any).
func (r *Renderer) BeginFrame() (*Frame, error) {
	if r.closed {
		return nil, ErrClosed
	}
	if r.frame != nil {
		return nil, logicViolation(ErrFrameState, "BeginFrame while frame %d is open", r.frame.number)
	}

	slot := r.slot
	cb, err := r.queue.AcquireBufferForSlot(slot)
	if err != nil {
		return nil, err
	}

	bb := r.backBuffers[r.active]
	if err := cb.Transition(bb, StateRenderTarget); err != nil {
		return nil, err
	}
	if err := cb.ClearRenderTarget(bb, r.clearColor); err != nil {
		return nil, err
	}
	if r.depth != nil {
		if err := cb.ClearDepth(r.depth, depthClearValue); err != nil {
			return nil, err
		}
	}

	r.frame = &Frame{
		renderer:   r,
		number:     r.frames,
		index:      r.active,
		slot:       slot,
		buffer:     cb,
		backBuffer: bb,
	}
	return r.frame, nil
}

// Present transitions the back buffer back to the present state, submits
// the frame, presents the surface and adopts the surface's next image index.
func (r *Renderer) Present() error {
	if r.closed {
		return ErrClosed
	}
	f := r.frame
	if f == nil {
		return logicViolation(ErrFrameState, "Present without BeginFrame")
	}
	r.frame = nil

	if err := f.buffer.Transition(f.backBuffer, StatePresent); err != nil {
		return err
	}
	value, err := r.queue.SubmitAndSignal(f.slot)
	if err != nil {
		return err
	}
	r.slot = (f.slot + 1) % r.queue.FramesInFlight()
	if err := r.surface.Present(r.present); err != nil {
		Logger().Error("present failed", "frame", f.number, "err", err)
		return markFatal(err, ErrSubmission, "present frame %d", f.number)
	}

	next, err := r.currentIndex()
	if err != nil {
		return err
	}
	Logger().Debug("frame presented", "frame", f.number, "image", f.index, "slot", f.slot,
		"fence", value, "next_image", next)
	r.active = next
	r.frames++
	r.clock.Tick()
	return nil
}

// RenderFrame runs BeginFrame, record and Present. An error from record
// leaves the frame open; the renderer must then be closed.
func (r *Renderer) RenderFrame(record func(f *Frame) error) error {
	f, err := r.BeginFrame()
	if err != nil {
		return err
	}
	if record != nil {
		if err := record(f); err != nil {
			return errors.Wrapf(err, "record frame %d", f.number)
		}
	}
	return r.Present()
}

// Close drains the graphics queue. All back buffers and the depth buffer
// are owned by the surface and the caller; Close does not release them.
// A Close that failed to drain the queue can be retried.
func (r *Renderer) Close() error {
	first := !r.closed
	r.closed = true
	r.frame = nil
	err := r.queue.Close()
	if first {
		Logger().Info("renderer closed", "frames", r.frames, "stats", r.queue.Stats().String())
	}
	return err
}

// ActiveIndex returns the back buffer index the next frame renders into.
func (r *Renderer) ActiveIndex() int { return r.active }

// NextSlot returns the frame slot the next frame records into.
func (r *Renderer) NextSlot() int { return r.slot }

// FrameCount returns the number of presented frames.
func (r *Renderer) FrameCount() uint64 { return r.frames }

// Queue returns the graphics submission queue.
func (r *Renderer) Queue() *SubmissionQueue { return r.queue }

// Clock returns the clock ticked at every Present.
func (r *Renderer) Clock() *FrameClock { return r.clock }

// BackBuffer returns the back buffer resource for surface image i.
func (r *Renderer) BackBuffer(i int) *Resource {
	if i < 0 || i >= len(r.backBuffers) {
		return nil
	}
	return r.backBuffers[i]
}

// BackBufferCount returns the number of surface images.
func (r *Renderer) BackBufferCount() int { return len(r.backBuffers) }

// DepthBuffer returns the depth buffer resource, or nil.
func (r *Renderer) DepthBuffer() *Resource { return r.depth }

// PresentOptions returns the options passed to every Present call.
func (r *Renderer) PresentOptions() PresentOptions { return r.present }
