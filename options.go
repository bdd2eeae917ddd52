package framesync

import (
	"time"

	"github.com/gogpu/gputypes"
)

// Default configuration values.
const (
	// DefaultFramesInFlight is the number of frame slots when none is given.
	DefaultFramesInFlight = 2

	// DefaultSlowWaitThreshold is the blocking slot wait above which a
	// warning is logged.
	DefaultSlowWaitThreshold = 100 * time.Millisecond
)

// DefaultClearColor is the back buffer clear color used by BeginFrame.
var DefaultClearColor = gputypes.Color{R: 0.4, G: 0.6, B: 0.9, A: 1.0}

// Option configures a SubmissionQueue, Renderer or Uploader during creation.
//
// Example:
//
//	r, err := framesync.NewRenderer(device, surface,
//	    framesync.WithFramesInFlight(3),
//	    framesync.WithVSync(false),
//	)
type Option func(*options)

// options holds optional configuration. Options that do not apply to the
// object being created are ignored.
type options struct {
	framesInFlight int
	label          string
	clearColor     gputypes.Color
	vsync          bool
	depthBuffer    NativeHandle
	slowWait       time.Duration
}

// defaultOptions returns the default configuration.
func defaultOptions() options {
	return options{
		framesInFlight: DefaultFramesInFlight,
		clearColor:     DefaultClearColor,
		vsync:          true,
		slowWait:       DefaultSlowWaitThreshold,
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.framesInFlight < 1 {
		o.framesInFlight = DefaultFramesInFlight
	}
	return o
}

// WithFramesInFlight sets the number of frame slots (allocator, command
// buffer and fence sets). Values below 1 select DefaultFramesInFlight.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.framesInFlight = n
	}
}

// WithLabel sets the debug label prefix for created objects.
func WithLabel(label string) Option {
	return func(o *options) {
		o.label = label
	}
}

// WithClearColor sets the color BeginFrame clears the back buffer to.
func WithClearColor(c gputypes.Color) Option {
	return func(o *options) {
		o.clearColor = c
	}
}

// WithVSync selects synchronized presentation. With vsync off the renderer
// presents with tearing when the surface supports it.
func WithVSync(enabled bool) Option {
	return func(o *options) {
		o.vsync = enabled
	}
}

// WithDepthBuffer attaches an externally created depth buffer. It must be
// in the depth-write state; the renderer keeps it there and clears it at the
// start of every frame.
func WithDepthBuffer(native NativeHandle) Option {
	return func(o *options) {
		o.depthBuffer = native
	}
}

// WithSlowWaitThreshold sets the blocking slot wait duration above which a
// warning is logged. Zero disables the warning.
func WithSlowWaitThreshold(d time.Duration) Option {
	return func(o *options) {
		o.slowWait = d
	}
}
