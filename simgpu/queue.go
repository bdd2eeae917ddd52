// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package simgpu

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
)

// Queue is a simulated hardware queue.
type Queue struct {
	dev   *Device
	kind  framesync.QueueKind
	label string

	unsignaled []*Allocator
	executed   [][]Command
	released   bool
}

var _ framesync.NativeQueue = (*Queue)(nil)

// Execute implements framesync.NativeQueue. Commands are validated and
// applied to the simulated resources in submission order.
func (q *Queue) Execute(list framesync.CommandList) error {
	l, ok := list.(*CommandList)
	if !ok {
		return errors.Newf("simgpu: foreign command list %T", list)
	}
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFailureLocked(OpExecute); err != nil {
		return err
	}
	if q.released {
		d.violationLocked("execute on released queue %s", q.label)
		return errors.Newf("simgpu: queue %s released", q.label)
	}
	if l.open {
		d.violationLocked("execute of open command list %s", l.label)
		return errors.Newf("simgpu: command list %s is open", l.label)
	}

	for _, c := range l.commands {
		d.applyLocked(q, c)
	}
	q.executed = append(q.executed, append([]Command(nil), l.commands...))
	q.unsignaled = append(q.unsignaled, l.allocator)
	d.recordLocked(EventExecute, l.label, uint64(len(l.commands)))
	return nil
}

// applyLocked performs what the GPU would do for one command and checks
// the resource states it relies on.
func (d *Device) applyLocked(q *Queue, c Command) {
	switch c.Kind {
	case CommandBarrier:
		s, ok := c.Barrier.Resource.(stateful)
		if !ok {
			return
		}
		if cur := s.stateLocked(); cur != c.Barrier.From {
			d.violationLocked("barrier %s on %s but resource is %s", c.Barrier, s.name(), cur)
		}
		s.setStateLocked(c.Barrier.To)
	case CommandClearRenderTarget:
		if q.kind != framesync.QueueGraphics {
			d.violationLocked("clear on %s queue %s", q.kind, q.label)
		}
		if t, ok := c.Target.(*Texture); ok {
			if t.state != framesync.StateRenderTarget {
				d.violationLocked("clear of %s in state %s", t.label, t.state)
			}
			t.clearColor = c.Color
			t.clears++
		}
	case CommandClearDepth:
		if t, ok := c.Target.(*Texture); ok {
			if t.state != framesync.StateDepthWrite {
				d.violationLocked("depth clear of %s in state %s", t.label, t.state)
			}
			t.depth = c.Depth
			t.clears++
		}
	case CommandCopyBuffer:
		dst, ok1 := c.Target.(*Buffer)
		src, ok2 := c.Source.(*Buffer)
		if !ok1 || !ok2 {
			return
		}
		if dst.state != framesync.StateCopyDest {
			d.violationLocked("copy into %s in state %s", dst.label, dst.state)
		}
		n := c.Size
		if n > uint64(len(src.data)) || n > uint64(len(dst.data)) {
			d.violationLocked("copy of %d bytes out of bounds (%s -> %s)", n, src.label, dst.label)
			return
		}
		copy(dst.data[:n], src.data[:n])
	}
}

// Signal implements framesync.NativeQueue.
func (q *Queue) Signal(fence framesync.NativeFence, value uint64) error {
	f, ok := fence.(*Fence)
	if !ok {
		return errors.Newf("simgpu: foreign fence %T", fence)
	}
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.takeFailureLocked(OpSignal); err != nil {
		return err
	}
	if value <= f.signaled {
		d.violationLocked("signal %s to %d after %d", f.label, value, f.signaled)
	}
	f.signaled = value
	d.recordLocked(EventSignal, f.label, value)
	d.enqueueLocked(pendingSignal{fence: f, value: value, allocators: q.unsignaled})
	q.unsignaled = nil
	return nil
}

// Executed returns the commands of every list executed on the queue, in
// submission order.
func (q *Queue) Executed() [][]Command {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	out := make([][]Command, len(q.executed))
	copy(out, q.executed)
	return out
}

// Label returns the queue's debug label.
func (q *Queue) Label() string {
	q.dev.mu.Lock()
	defer q.dev.mu.Unlock()
	return q.label
}

// SetDebugLabel implements framesync.Labeler.
func (q *Queue) SetDebugLabel(name string) {
	q.dev.mu.Lock()
	q.label = name
	q.dev.mu.Unlock()
}

// Release implements framesync.NativeQueue.
func (q *Queue) Release() {
	d := q.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	q.released = true
	d.recordLocked(EventRelease, q.label, 0)
}

type waiter struct {
	value uint64
	ch    chan struct{}
}

// Fence is a simulated fence.
type Fence struct {
	dev       *Device
	label     string
	completed uint64
	signaled  uint64
	waiters   []*waiter
	released  bool
}

var _ framesync.NativeFence = (*Fence)(nil)

// CompletedValue implements framesync.NativeFence.
func (f *Fence) CompletedValue() uint64 {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.completed
}

// WaitValue implements framesync.NativeFence. It blocks the calling
// goroutine until the GPU timeline reaches value.
func (f *Fence) WaitValue(value uint64, timeout time.Duration) (bool, error) {
	d := f.dev
	d.mu.Lock()
	if d.lost {
		d.mu.Unlock()
		return false, ErrDeviceRemoved
	}
	d.recordLocked(EventWait, f.label, value)
	if f.completed >= value {
		d.mu.Unlock()
		return true, nil
	}
	w := &waiter{value: value, ch: make(chan struct{})}
	f.waiters = append(f.waiters, w)
	d.recordLocked(EventBlocked, f.label, value)
	d.notifyBlockedLocked()
	d.mu.Unlock()

	var expired <-chan time.Time
	if timeout >= 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	select {
	case <-w.ch:
	case <-expired:
		d.mu.Lock()
		f.removeWaiterLocked(w)
		d.mu.Unlock()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return false, ErrDeviceRemoved
	}
	return f.completed >= value, nil
}

// advanceLocked moves the completed value forward and wakes satisfied
// waiters.
func (f *Fence) advanceLocked(value uint64) {
	if value > f.completed {
		f.completed = value
	}
	kept := f.waiters[:0]
	for _, w := range f.waiters {
		if w.value <= f.completed {
			close(w.ch)
			continue
		}
		kept = append(kept, w)
	}
	f.waiters = kept
}

func (f *Fence) wakeAllLocked() {
	for _, w := range f.waiters {
		close(w.ch)
	}
	f.waiters = nil
}

func (f *Fence) removeWaiterLocked(target *waiter) {
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return
		}
	}
}

// Signaled returns the last value requested through Queue.Signal.
func (f *Fence) Signaled() uint64 {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.signaled
}

// Label returns the fence's debug label.
func (f *Fence) Label() string {
	f.dev.mu.Lock()
	defer f.dev.mu.Unlock()
	return f.label
}

// SetDebugLabel implements framesync.Labeler.
func (f *Fence) SetDebugLabel(name string) {
	f.dev.mu.Lock()
	f.label = name
	f.dev.mu.Unlock()
}

// Release implements framesync.NativeFence. Releasing a fence the GPU
// still has to signal is a validation failure.
func (f *Fence) Release() {
	d := f.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if f.released {
		d.violationLocked("double release of %s", f.label)
		return
	}
	if f.completed < f.signaled && !d.lost {
		d.violationLocked("release of %s at %d before %d retired", f.label, f.completed, f.signaled)
	}
	f.released = true
	d.recordLocked(EventRelease, f.label, f.completed)
}
