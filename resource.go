package framesync

import "fmt"

// ResourceState is the access mode a GPU resource is in at a point of the
// recorded command stream.
type ResourceState uint8

const (
	StateCommon ResourceState = iota
	StatePresent
	StateRenderTarget
	StateCopyDest
	StateCopySource
	StateDepthWrite
	StateDepthRead
	StateVertexAndConstantBuffer
	StateIndexBuffer
	StateShaderResource
	StateUnorderedAccess
	StateGenericRead
)

var stateNames = [...]string{
	StateCommon:                  "common",
	StatePresent:                 "present",
	StateRenderTarget:            "render_target",
	StateCopyDest:                "copy_dest",
	StateCopySource:              "copy_source",
	StateDepthWrite:              "depth_write",
	StateDepthRead:               "depth_read",
	StateVertexAndConstantBuffer: "vertex_and_constant_buffer",
	StateIndexBuffer:             "index_buffer",
	StateShaderResource:          "shader_resource",
	StateUnorderedAccess:         "unordered_access",
	StateGenericRead:             "generic_read",
}

// String returns the state name.
func (s ResourceState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("ResourceState(%d)", s)
}

// Barrier describes a state transition to be recorded into a command
// buffer before any command that depends on the new state.
type Barrier struct {
	Resource NativeHandle
	From     ResourceState
	To       ResourceState
}

// String returns a short description for logs.
func (b Barrier) String() string {
	return fmt.Sprintf("%s -> %s", b.From, b.To)
}

// Resource wraps a single GPU-visible allocation with its current state.
//
// The state is a property of the recorded command stream, not of real time:
// it changes when a transition is recorded even though the GPU executes it
// later. Resources must only be transitioned on the render thread between
// acquiring a command buffer and submitting it.
type Resource struct {
	native NativeHandle
	state  ResourceState
	label  string
}

// NewResource wraps native, which must currently be in state initial.
func NewResource(native NativeHandle, initial ResourceState, label string) *Resource {
	r := &Resource{native: native, state: initial, label: label}
	setLabel(native, label)
	return r
}

// TransitionTo returns the barrier that moves the resource from its current
// state to target and records target as the new current state.
//
// Transitioning to the current state is a logic violation: a no-op barrier
// means the caller mis-tracked the resource usage.
func (r *Resource) TransitionTo(target ResourceState) (Barrier, error) {
	if target == r.state {
		return Barrier{}, logicViolation(ErrRedundantTransition,
			"resource %q is already in state %s", r.label, target)
	}
	b := Barrier{Resource: r.native, From: r.state, To: target}
	r.state = target
	return b, nil
}

// State returns the state the last recorded barrier left the resource in.
func (r *Resource) State() ResourceState { return r.state }

// Native returns the wrapped device object.
func (r *Resource) Native() NativeHandle { return r.native }

// Label returns the debug label.
func (r *Resource) Label() string { return r.label }

// SetDebugLabel names the resource. It has no behavioral effect.
func (r *Resource) SetDebugLabel(name string) {
	r.label = name
	setLabel(r.native, name)
}
