// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package simgpu

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/gputypes"
)

// ErrAllocatorInUse is returned when an allocator is reset while the GPU
// may still read commands recorded from it.
var ErrAllocatorInUse = errors.New("simgpu: allocator reset while in flight")

// Allocator is simulated command memory.
type Allocator struct {
	dev      *Device
	kind     framesync.QueueKind
	label    string
	inFlight int
	resets   int
}

var _ framesync.Allocator = (*Allocator)(nil)

// Reset implements framesync.Allocator.
func (a *Allocator) Reset() error {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpReset); err != nil {
		return err
	}
	if a.inFlight > 0 {
		d.violationLocked("reset of %s with %d submissions in flight", a.label, a.inFlight)
		return errors.Wrapf(ErrAllocatorInUse, "%s", a.label)
	}
	a.resets++
	d.recordLocked(EventAllocatorReset, a.label, uint64(a.resets))
	return nil
}

// Resets returns how many times the allocator was reset.
func (a *Allocator) Resets() int {
	a.dev.mu.Lock()
	defer a.dev.mu.Unlock()
	return a.resets
}

// SetDebugLabel implements framesync.Labeler.
func (a *Allocator) SetDebugLabel(name string) {
	a.dev.mu.Lock()
	a.label = name
	a.dev.mu.Unlock()
}

// Release implements framesync.Allocator.
func (a *Allocator) Release() {
	d := a.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.inFlight > 0 && !d.lost {
		d.violationLocked("release of %s with %d submissions in flight", a.label, a.inFlight)
	}
	d.recordLocked(EventRelease, a.label, 0)
}

// CommandKind identifies a recorded command.
type CommandKind uint8

const (
	CommandBarrier CommandKind = iota
	CommandClearRenderTarget
	CommandClearDepth
	CommandCopyBuffer
	CommandDraw
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CommandBarrier:
		return "barrier"
	case CommandClearRenderTarget:
		return "clear"
	case CommandClearDepth:
		return "clear_depth"
	case CommandCopyBuffer:
		return "copy"
	case CommandDraw:
		return "draw"
	default:
		return fmt.Sprintf("CommandKind(%d)", k)
	}
}

// Command is one recorded command.
type Command struct {
	Kind    CommandKind
	Barrier framesync.Barrier
	Target  framesync.NativeHandle
	Source  framesync.NativeHandle
	Color   gputypes.Color
	Depth   float32
	Size    uint64

	// VertexCount and InstanceCount describe a draw.
	VertexCount   uint32
	InstanceCount uint32
}

// CommandList is a simulated command list.
type CommandList struct {
	dev       *Device
	kind      framesync.QueueKind
	allocator *Allocator
	label     string
	open      bool
	commands  []Command
}

var _ framesync.CommandList = (*CommandList)(nil)

// Reset implements framesync.CommandList.
func (l *CommandList) Reset(allocator framesync.Allocator) error {
	a, ok := allocator.(*Allocator)
	if !ok {
		return errors.Newf("simgpu: foreign allocator %T", allocator)
	}
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpReset); err != nil {
		return err
	}
	if l.open {
		d.violationLocked("reset of open command list %s", l.label)
	}
	if a.inFlight > 0 {
		d.violationLocked("reset of %s onto in-flight %s", l.label, a.label)
		return errors.Wrapf(ErrAllocatorInUse, "%s", a.label)
	}
	l.allocator = a
	l.open = true
	l.commands = l.commands[:0]
	d.recordLocked(EventListReset, l.label, 0)
	return nil
}

// Close implements framesync.CommandList.
func (l *CommandList) Close() error {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.takeFailureLocked(OpClose); err != nil {
		l.open = false
		return err
	}
	if !l.open {
		d.violationLocked("close of closed command list %s", l.label)
		return errors.Newf("simgpu: command list %s is closed", l.label)
	}
	l.open = false
	d.recordLocked(EventListClose, l.label, uint64(len(l.commands)))
	return nil
}

func (l *CommandList) record(c Command) {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	if !l.open {
		d.violationLocked("%s recorded into closed list %s", c.Kind, l.label)
		return
	}
	l.commands = append(l.commands, c)
}

// ResourceBarrier implements framesync.CommandList.
func (l *CommandList) ResourceBarrier(barriers ...framesync.Barrier) {
	for _, b := range barriers {
		l.record(Command{Kind: CommandBarrier, Barrier: b, Target: b.Resource})
	}
}

// ClearRenderTarget implements framesync.CommandList.
func (l *CommandList) ClearRenderTarget(target framesync.NativeHandle, color gputypes.Color) {
	l.record(Command{Kind: CommandClearRenderTarget, Target: target, Color: color})
}

// ClearDepth implements framesync.CommandList.
func (l *CommandList) ClearDepth(target framesync.NativeHandle, depth float32) {
	l.record(Command{Kind: CommandClearDepth, Target: target, Depth: depth})
}

// CopyBuffer implements framesync.CommandList.
func (l *CommandList) CopyBuffer(dst, src framesync.NativeHandle, size uint64) {
	l.record(Command{Kind: CommandCopyBuffer, Target: dst, Source: src, Size: size})
}

// Draw records a non-indexed draw. It stands in for application recording
// done through framesync.CommandBuffer.Native.
func (l *CommandList) Draw(vertexCount, instanceCount uint32) {
	l.record(Command{Kind: CommandDraw, VertexCount: vertexCount, InstanceCount: instanceCount})
}

// Commands returns the commands recorded since the last Reset.
func (l *CommandList) Commands() []Command {
	l.dev.mu.Lock()
	defer l.dev.mu.Unlock()
	return append([]Command(nil), l.commands...)
}

// SetDebugLabel implements framesync.Labeler.
func (l *CommandList) SetDebugLabel(name string) {
	l.dev.mu.Lock()
	l.label = name
	l.dev.mu.Unlock()
}

// Release implements framesync.CommandList.
func (l *CommandList) Release() {
	d := l.dev
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordLocked(EventRelease, l.label, 0)
}
