// Package framesync submits GPU work and paces frames against the GPU.
//
// # Overview
//
// framesync sits between an application's rendering code and an explicit
// GPU API. It owns the three things that must agree for a frame to be
// correct: which command memory the CPU may reuse, which state every
// resource is in, and which swapchain image the next frame renders into.
//
// # Quick Start
//
//	dev := simgpu.New()                  // or native.New(halDevice, halQueue)
//	surface := dev.NewSurface(3)
//
//	r, err := framesync.NewRenderer(dev, surface,
//	    framesync.WithFramesInFlight(2),
//	    framesync.WithVSync(true),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	for running {
//	    f, err := r.BeginFrame()
//	    // record draws into f.CommandBuffer()
//	    err = r.Present()
//	}
//
// # Frames in Flight
//
// A SubmissionQueue holds a ring of frame slots. Each slot owns a command
// allocator, a command buffer and a fence. Submitting a slot signals the
// next value of the queue's timeline; acquiring the slot again waits until
// the GPU reached that value. With two slots the CPU records frame N+1
// while the GPU executes frame N, and blocks only when it gets two frames
// ahead.
//
// # Resource States
//
// Every Resource knows its current state. Transitioning it produces the
// Barrier the command buffer records; transitioning to the state it is
// already in is a programming error.
//
// # Errors
//
// Errors fall into three groups, all classifiable with errors.Is:
//   - fatal: ErrInitialization, ErrSubmission, ErrDeviceLost
//   - recoverable: ErrWaitTimeout, ErrUnsupported, ErrClosed
//   - logic violations (see IsLogicViolation), such as recording into a
//     closed buffer or presenting without BeginFrame
//
// IsFatal reports whether the process should stop rendering.
//
// # Architecture
//
// The package is organized into:
//   - Core: Fence, CommandBuffer, SubmissionQueue, Resource
//   - Frame protocol: Renderer, Frame, FrameClock
//   - Transfers: Uploader, UploadBatch
//   - Collaborators: Device, NativeQueue, NativeFence, Surface interfaces
//   - Backends: simgpu (simulated GPU), backend/native (gogpu/wgpu HAL)
//
// # Thread Safety
//
// Recording and submission happen on one goroutine. Only the GPU timeline
// advances concurrently; it is observed through fences.
package framesync
