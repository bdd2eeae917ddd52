package backend

import (
	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not available.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNotInitialized is returned when operations are called before Init.
	ErrNotInitialized = errors.New("backend: not initialized")
)

// Backend is a source of framesync collaborators: a device, a presentation
// surface and a depth buffer.
//
// Backends must be registered via Register() and are selected via
// Get() or Default().
type Backend interface {
	// Name returns the backend identifier (e.g., "sim", "native").
	Name() string

	// Init acquires the device. It must be called before any other method.
	Init() error

	// Close releases the device and everything the backend created.
	// The renderer using it must be closed first.
	Close()

	// Device returns the device collaborator, or nil before Init.
	Device() framesync.Device

	// NewSurface creates a surface with the given number of images.
	NewSurface(images int, width, height uint32) (framesync.Surface, error)

	// NewDepthBuffer creates a depth buffer in the depth-write state.
	NewDepthBuffer(width, height uint32) (framesync.NativeHandle, error)
}
