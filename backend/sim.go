package backend

import (
	"time"

	"github.com/gogpu/framesync"
	"github.com/gogpu/framesync/simgpu"
)

// Backend name constants.
const (
	// BackendSim is the name of the simulated GPU backend.
	BackendSim = "sim"
	// BackendNative is the name of the gogpu/wgpu HAL backend.
	BackendNative = "native"
)

// DefaultSimGPUTime is the per-frame GPU time of the registered sim backend.
const DefaultSimGPUTime = 4 * time.Millisecond

// SimBackend serves collaborators from a simulated GPU. It is always
// available.
type SimBackend struct {
	opts []simgpu.Option
	dev  *simgpu.Device
}

// init registers the sim backend on package import.
func init() {
	Register(BackendSim, func() Backend {
		return NewSimBackend(simgpu.WithExecutionTime(DefaultSimGPUTime))
	})
}

// NewSimBackend creates a sim backend whose device is configured by opts.
func NewSimBackend(opts ...simgpu.Option) *SimBackend {
	return &SimBackend{opts: opts}
}

// Name returns the backend identifier.
func (b *SimBackend) Name() string { return BackendSim }

// Init creates the simulated device.
func (b *SimBackend) Init() error {
	if b.dev == nil {
		b.dev = simgpu.New(b.opts...)
	}
	return nil
}

// Close drops the device. Outstanding simulated work is retired so no
// timer fires into a released backend.
func (b *SimBackend) Close() {
	if b.dev != nil {
		b.dev.SetMode(simgpu.Instant)
		b.dev = nil
	}
}

// Device returns the simulated device, or nil before Init.
func (b *SimBackend) Device() framesync.Device {
	if b.dev == nil {
		return nil
	}
	return b.dev
}

// Sim returns the concrete simulated device for inspection.
func (b *SimBackend) Sim() *simgpu.Device { return b.dev }

// NewSurface creates a simulated swapchain. Sizes are ignored.
func (b *SimBackend) NewSurface(images int, _, _ uint32) (framesync.Surface, error) {
	if b.dev == nil {
		return nil, ErrNotInitialized
	}
	return b.dev.NewSurface(images), nil
}

// NewDepthBuffer creates a simulated depth texture.
func (b *SimBackend) NewDepthBuffer(_, _ uint32) (framesync.NativeHandle, error) {
	if b.dev == nil {
		return nil, ErrNotInitialized
	}
	return b.dev.NewTexture("depth", framesync.StateDepthWrite), nil
}
