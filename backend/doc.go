// Package backend provides a pluggable device backend abstraction.
//
// A backend supplies the collaborators framesync drives: a Device, a
// Surface and a depth buffer. The simulated backend is always available;
// the native backend registers itself when its package is imported:
//
//	import _ "github.com/gogpu/framesync/backend/native"
//
// # Backend Selection
//
// Use Default() to get the best available backend, or Get() to request
// a specific backend by name:
//
//	b, err := backend.Init("sim")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer b.Close()
//
//	surface, _ := b.NewSurface(3, 800, 600)
//	r, _ := framesync.NewRenderer(b.Device(), surface)
//
// # Available Backends
//
// - "sim": simulated GPU with a timed execution model (always available)
// - "native": gogpu/wgpu HAL device
package backend
