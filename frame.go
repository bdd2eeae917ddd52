package framesync

// Frame is one in-progress frame between BeginFrame and Present.
type Frame struct {
	renderer   *Renderer
	number     uint64
	index      int
	slot       int
	buffer     *CommandBuffer
	backBuffer *Resource
}

// CommandBuffer returns the open command buffer to record draws into.
func (f *Frame) CommandBuffer() *CommandBuffer { return f.buffer }

// BackBuffer returns the back buffer being rendered, in the render target
// state.
func (f *Frame) BackBuffer() *Resource { return f.backBuffer }

// DepthBuffer returns the renderer's depth buffer, or nil.
func (f *Frame) DepthBuffer() *Resource { return f.renderer.depth }

// Number returns the zero-based frame number.
func (f *Frame) Number() uint64 { return f.number }

// ImageIndex returns the surface image index the frame renders into.
func (f *Frame) ImageIndex() int { return f.index }

// Slot returns the frame slot whose command buffer and fence the frame uses.
func (f *Frame) Slot() int { return f.slot }
