package framesync

import (
	"testing"
	"time"

	"github.com/gogpu/gputypes"
)

func TestApplyOptions_Defaults(t *testing.T) {
	o := applyOptions(nil)
	if o.framesInFlight != DefaultFramesInFlight {
		t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultFramesInFlight)
	}
	if o.clearColor != DefaultClearColor {
		t.Errorf("clearColor = %v, want %v", o.clearColor, DefaultClearColor)
	}
	if !o.vsync {
		t.Error("vsync should default to true")
	}
	if o.slowWait != DefaultSlowWaitThreshold {
		t.Errorf("slowWait = %v, want %v", o.slowWait, DefaultSlowWaitThreshold)
	}
	if o.depthBuffer != nil {
		t.Error("depthBuffer should default to nil")
	}
}

func TestApplyOptions(t *testing.T) {
	red := gputypes.Color{R: 1, A: 1}
	tests := []struct {
		name  string
		opts  []Option
		check func(t *testing.T, o options)
	}{
		{
			name: "frames in flight",
			opts: []Option{WithFramesInFlight(3)},
			check: func(t *testing.T, o options) {
				if o.framesInFlight != 3 {
					t.Errorf("framesInFlight = %d, want 3", o.framesInFlight)
				}
			},
		},
		{
			name: "zero frames in flight falls back",
			opts: []Option{WithFramesInFlight(0)},
			check: func(t *testing.T, o options) {
				if o.framesInFlight != DefaultFramesInFlight {
					t.Errorf("framesInFlight = %d, want %d", o.framesInFlight, DefaultFramesInFlight)
				}
			},
		},
		{
			name: "last option wins",
			opts: []Option{WithLabel("a"), WithLabel("b")},
			check: func(t *testing.T, o options) {
				if o.label != "b" {
					t.Errorf("label = %q, want b", o.label)
				}
			},
		},
		{
			name: "clear color and vsync",
			opts: []Option{WithClearColor(red), WithVSync(false)},
			check: func(t *testing.T, o options) {
				if o.clearColor != red {
					t.Errorf("clearColor = %v, want %v", o.clearColor, red)
				}
				if o.vsync {
					t.Error("vsync = true, want false")
				}
			},
		},
		{
			name: "slow wait disabled",
			opts: []Option{WithSlowWaitThreshold(0)},
			check: func(t *testing.T, o options) {
				if o.slowWait != 0 {
					t.Errorf("slowWait = %v, want 0", o.slowWait)
				}
			},
		},
		{
			name: "depth buffer",
			opts: []Option{WithDepthBuffer("depth"), WithSlowWaitThreshold(time.Second)},
			check: func(t *testing.T, o options) {
				if o.depthBuffer != "depth" {
					t.Errorf("depthBuffer = %v, want depth", o.depthBuffer)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, applyOptions(tt.opts))
		})
	}
}
