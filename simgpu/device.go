// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package simgpu is a simulated GPU implementing the framesync collaborator
// interfaces.
//
// The simulated GPU has its own timeline: submitted work retires either
// immediately (Instant), when the test says so (Manual), or after a fixed
// execution time per signal (Timed). It validates what a debug layer would:
// allocators reset while the GPU still reads them, barriers whose source
// state does not match the resource, images presented outside the present
// state. Violations are counted and logged rather than panicking so that
// tests can assert on them.
//
// All methods are safe for concurrent use; the GPU timeline may advance on
// another goroutine while the render goroutine waits.
package simgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
)

// Simulated device errors.
var (
	// ErrDeviceRemoved is returned by every wait once the device is lost.
	ErrDeviceRemoved = errors.New("simgpu: device removed")

	// ErrInjected is the default error returned by FailNext.
	ErrInjected = errors.New("simgpu: injected failure")
)

// Mode selects how submitted work retires.
type Mode uint8

const (
	// Instant retires every signal as soon as it is issued.
	Instant Mode = iota
	// Manual retires signals only through Retire and RetireAll.
	Manual
	// Timed retires each signal a fixed execution time after the previous
	// one finished, in submission order.
	Timed
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case Instant:
		return "instant"
	case Manual:
		return "manual"
	case Timed:
		return "timed"
	default:
		return fmt.Sprintf("Mode(%d)", m)
	}
}

// Op identifies a device operation for failure injection.
type Op uint8

const (
	OpCreateQueue Op = iota
	OpCreateAllocator
	OpCreateCommandList
	OpCreateFence
	OpCreateBuffer
	OpReset
	OpClose
	OpExecute
	OpSignal
	opCount
)

// pendingSignal is a fence write waiting on the GPU timeline.
type pendingSignal struct {
	seq        uint64
	fence      *Fence
	value      uint64
	allocators []*Allocator
}

// Device is a simulated GPU device.
type Device struct {
	mu sync.Mutex

	mode     Mode
	execTime time.Duration
	lastDue  time.Time

	nextID     int
	nextSeq    uint64
	pending    []pendingSignal
	events     []Event
	violations []string
	failures   [opCount]error
	lost       bool

	blockedWaits int
	waitNotify   []chan struct{}

	fences  []*Fence
	buffers map[*Buffer]struct{}
}

// Option configures a simulated Device.
type Option func(*Device)

// WithMode selects how submitted work retires.
func WithMode(m Mode) Option {
	return func(d *Device) {
		d.mode = m
	}
}

// WithExecutionTime selects Timed mode with the given per-signal GPU time.
func WithExecutionTime(t time.Duration) Option {
	return func(d *Device) {
		d.mode = Timed
		d.execTime = t
	}
}

// New creates a simulated device. The default mode is Instant.
func New(opts ...Option) *Device {
	d := &Device{buffers: make(map[*Buffer]struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ framesync.Device = (*Device)(nil)
var _ framesync.BufferAllocator = (*Device)(nil)

func (d *Device) newLabelLocked(prefix string) string {
	d.nextID++
	return fmt.Sprintf("%s#%d", prefix, d.nextID)
}

// takeFailureLocked returns and clears the injected failure for op.
func (d *Device) takeFailureLocked(op Op) error {
	err := d.failures[op]
	d.failures[op] = nil
	return err
}

// FailNext makes the next call of op fail with err, or ErrInjected if err
// is nil.
func (d *Device) FailNext(op Op, err error) {
	if err == nil {
		err = ErrInjected
	}
	d.mu.Lock()
	d.failures[op] = err
	d.mu.Unlock()
}

// violationLocked records a validation failure.
func (d *Device) violationLocked(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	d.violations = append(d.violations, msg)
	d.recordLocked(EventViolation, msg, 0)
	framesync.Logger().Error("simgpu validation", "violation", msg)
}

// Violations returns every validation failure observed so far.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// CreateQueue implements framesync.Device.
func (d *Device) CreateQueue(kind framesync.QueueKind) (framesync.NativeQueue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpCreateQueue); err != nil {
		return nil, err
	}
	q := &Queue{dev: d, kind: kind, label: d.newLabelLocked(kind.String() + "-queue")}
	d.recordLocked(EventCreateQueue, q.label, 0)
	return q, nil
}

// CreateAllocator implements framesync.Device.
func (d *Device) CreateAllocator(kind framesync.QueueKind) (framesync.Allocator, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpCreateAllocator); err != nil {
		return nil, err
	}
	a := &Allocator{dev: d, kind: kind, label: d.newLabelLocked("allocator")}
	d.recordLocked(EventCreateAllocator, a.label, 0)
	return a, nil
}

// CreateCommandList implements framesync.Device.
func (d *Device) CreateCommandList(kind framesync.QueueKind, allocator framesync.Allocator) (framesync.CommandList, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpCreateCommandList); err != nil {
		return nil, err
	}
	a, ok := allocator.(*Allocator)
	if !ok {
		return nil, errors.Newf("simgpu: foreign allocator %T", allocator)
	}
	l := &CommandList{dev: d, kind: kind, allocator: a, label: d.newLabelLocked("list")}
	d.recordLocked(EventCreateCommandList, l.label, 0)
	return l, nil
}

// CreateFence implements framesync.Device.
func (d *Device) CreateFence(initial uint64) (framesync.NativeFence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpCreateFence); err != nil {
		return nil, err
	}
	f := &Fence{dev: d, completed: initial, label: d.newLabelLocked("fence")}
	d.fences = append(d.fences, f)
	d.recordLocked(EventCreateFence, f.label, initial)
	return f, nil
}

// enqueueLocked puts a fence write on the GPU timeline and retires work
// according to the device mode.
func (d *Device) enqueueLocked(p pendingSignal) {
	d.nextSeq++
	p.seq = d.nextSeq
	for _, a := range p.allocators {
		a.inFlight++
	}
	d.pending = append(d.pending, p)

	switch d.mode {
	case Instant:
		d.retireLocked(len(d.pending))
	case Timed:
		now := time.Now()
		due := d.lastDue
		if due.Before(now) {
			due = now
		}
		due = due.Add(d.execTime)
		d.lastDue = due
		seq := p.seq
		time.AfterFunc(due.Sub(now), func() { d.retireThrough(seq) })
	}
}

// retireThrough retires every pending signal up to and including seq.
func (d *Device) retireThrough(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for n < len(d.pending) && d.pending[n].seq <= seq {
		n++
	}
	d.retireLocked(n)
}

// retireLocked completes the n oldest pending signals in order.
func (d *Device) retireLocked(n int) int {
	if n > len(d.pending) {
		n = len(d.pending)
	}
	for _, p := range d.pending[:n] {
		for _, a := range p.allocators {
			a.inFlight--
		}
		p.fence.advanceLocked(p.value)
		d.recordLocked(EventRetire, p.fence.label, p.value)
	}
	d.pending = append(d.pending[:0], d.pending[n:]...)
	return n
}

// Retire completes the n oldest outstanding signals and returns how many
// were retired.
func (d *Device) Retire(n int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retireLocked(n)
}

// RetireAll completes every outstanding signal.
func (d *Device) RetireAll() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.retireLocked(len(d.pending))
}

// SetMode switches the retirement mode. Switching to Instant retires every
// outstanding signal.
func (d *Device) SetMode(m Mode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = m
	if m == Instant {
		d.retireLocked(len(d.pending))
	}
}

// Pending returns the number of signals the GPU has not reached yet.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Lose simulates device removal: pending work never retires and every wait,
// current or future, fails with ErrDeviceRemoved.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return
	}
	d.lost = true
	d.pending = nil
	d.recordLocked(EventDeviceLost, "device", 0)
	for _, f := range d.fences {
		f.wakeAllLocked()
	}
}

// Lost reports whether Lose was called.
func (d *Device) Lost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

// BlockedWaits returns how many fence waits suspended.
func (d *Device) BlockedWaits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blockedWaits
}

// NextBlockedWait returns a channel closed when the next wait suspends.
// Tests use it to advance the GPU exactly when the CPU is stalled.
func (d *Device) NextBlockedWait() <-chan struct{} {
	ch := make(chan struct{})
	d.mu.Lock()
	d.waitNotify = append(d.waitNotify, ch)
	d.mu.Unlock()
	return ch
}

func (d *Device) notifyBlockedLocked() {
	d.blockedWaits++
	for _, ch := range d.waitNotify {
		close(ch)
	}
	d.waitNotify = nil
}
