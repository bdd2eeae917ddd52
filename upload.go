package framesync

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Uploader copies CPU data into GPU-local buffers on a dedicated copy
// queue with a single frame slot.
//
// Usage:
//
//	u, _ := framesync.NewUploader(device)
//	batch, _ := u.Begin()
//	vb, _ := batch.Buffer("vertices", vertexBytes)
//	ib, _ := batch.Buffer("indices", indexBytes)
//	_ = batch.Finish() // blocks until the copies retired
//
// Finished buffers are left in StateCopyDest; the graphics queue
// transitions them before first use.
type Uploader struct {
	alloc BufferAllocator
	queue *SubmissionQueue
	batch *UploadBatch
}

// NewUploader creates a copy queue on device, which must implement
// BufferAllocator.
func NewUploader(device Device, opts ...Option) (*Uploader, error) {
	alloc, ok := device.(BufferAllocator)
	if !ok {
		return nil, errors.Wrapf(ErrUnsupported, "%T cannot allocate buffers", device)
	}
	o := applyOptions(opts)
	label := o.label
	if label == "" {
		label = "upload"
	}
	queue, err := NewSubmissionQueue(device, QueueCopy,
		WithFramesInFlight(1),
		WithLabel(label),
		WithSlowWaitThreshold(o.slowWait),
	)
	if err != nil {
		return nil, err
	}
	return &Uploader{alloc: alloc, queue: queue}, nil
}

// UploadBatch collects buffer copies recorded into one copy command buffer.
type UploadBatch struct {
	uploader *Uploader
	buffer   *CommandBuffer
	staging  []NativeHandle
	results  []*Resource
	done     bool
}

// Begin waits for the previous batch to retire and opens a new one.
func (u *Uploader) Begin() (*UploadBatch, error) {
	if u.batch != nil {
		return nil, logicViolation(ErrFrameState, "upload batch already open")
	}
	cb, err := u.queue.AcquireBufferForSlot(0)
	if err != nil {
		return nil, err
	}
	u.batch = &UploadBatch{uploader: u, buffer: cb}
	return u.batch, nil
}

// Buffer creates a GPU-local buffer holding data and records the copy from
// a freshly written upload buffer. The returned resource is in
// StateCopyDest and may only be read after Finish.
func (b *UploadBatch) Buffer(label string, data []byte) (*Resource, error) {
	if b.done {
		return nil, logicViolation(ErrNotRecording, "upload %q after Finish", label)
	}
	if len(data) == 0 {
		return nil, errors.Newf("upload %q: empty data", label)
	}
	alloc := b.uploader.alloc
	size := uint64(len(data))

	dst, err := alloc.CreateBuffer(BufferDesc{Label: label, Size: size, Heap: HeapDefault})
	if err != nil {
		return nil, markFatal(err, ErrInitialization, "create buffer %q", label)
	}
	src, err := alloc.CreateBuffer(BufferDesc{Label: label + "/staging", Size: size, Heap: HeapUpload})
	if err != nil {
		alloc.ReleaseBuffer(dst)
		return nil, markFatal(err, ErrInitialization, "create staging buffer for %q", label)
	}
	b.staging = append(b.staging, src)

	if err := alloc.WriteBuffer(src, data); err != nil {
		alloc.ReleaseBuffer(dst)
		return nil, errors.Wrapf(err, "write staging buffer for %q", label)
	}

	dstRes := NewResource(dst, StateCopyDest, label)
	srcRes := NewResource(src, StateGenericRead, fmt.Sprintf("%s/staging", label))
	if err := b.buffer.CopyBuffer(dstRes, srcRes, size); err != nil {
		alloc.ReleaseBuffer(dst)
		return nil, err
	}
	b.results = append(b.results, dstRes)
	return dstRes, nil
}

// Finish submits the batch, waits for the GPU to complete the copies and
// releases the staging buffers.
func (b *UploadBatch) Finish() error {
	if b.done {
		return logicViolation(ErrNotRecording, "upload batch finished twice")
	}
	b.done = true
	u := b.uploader
	u.batch = nil

	_, err := u.queue.SubmitAndSignal(0)
	if err == nil {
		err = u.queue.Flush()
	}
	if err != nil {
		// The GPU may still read the staging memory; leak it rather than
		// free it under the device.
		return err
	}
	for _, h := range b.staging {
		u.alloc.ReleaseBuffer(h)
	}
	Logger().Debug("upload batch finished", "buffers", len(b.results))
	b.staging = nil
	return nil
}

// Resources returns the destination buffers recorded so far.
func (b *UploadBatch) Resources() []*Resource { return b.results }

// Queue returns the copy submission queue.
func (u *Uploader) Queue() *SubmissionQueue { return u.queue }

// Close drains the copy queue and drops an unfinished batch. Destination
// buffers are owned by the caller.
func (u *Uploader) Close() error {
	err := u.queue.Close()
	if b := u.batch; b != nil && err == nil {
		for _, h := range b.staging {
			u.alloc.ReleaseBuffer(h)
		}
		b.staging = nil
		b.done = true
		u.batch = nil
	}
	return err
}
