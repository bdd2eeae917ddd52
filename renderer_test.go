package framesync_test

import (
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/framesync/simgpu"
	"github.com/gogpu/gputypes"
)

type rendererFixture struct {
	dev     *simgpu.Device
	surface *simgpu.Surface
	depth   *simgpu.Texture
	r       *framesync.Renderer
}

func newRendererFixture(t *testing.T, dev *simgpu.Device, surface *simgpu.Surface, opts ...framesync.Option) *rendererFixture {
	t.Helper()
	depth := dev.NewTexture("depth", framesync.StateDepthWrite)
	opts = append([]framesync.Option{framesync.WithDepthBuffer(depth)}, opts...)
	r, err := framesync.NewRenderer(dev, surface, opts...)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	t.Cleanup(func() {
		dev.SetMode(simgpu.Instant)
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
		if v := dev.Violations(); len(v) > 0 {
			t.Errorf("validation failures:\n%s", strings.Join(v, "\n"))
		}
	})
	return &rendererFixture{dev: dev, surface: surface, depth: depth, r: r}
}

func TestRenderer_FivePresentsWithoutBlocking(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(2))
	r := fx.r

	wantIndex := []int{0, 1, 0, 1, 0}
	for i, want := range wantIndex {
		if r.ActiveIndex() != want {
			t.Fatalf("frame %d: ActiveIndex = %d, want %d", i, r.ActiveIndex(), want)
		}
		f, err := r.BeginFrame()
		if err != nil {
			t.Fatalf("frame %d: BeginFrame: %v", i, err)
		}
		if f.ImageIndex() != want || f.Number() != uint64(i) {
			t.Errorf("frame %d: image %d number %d", i, f.ImageIndex(), f.Number())
		}
		if f.BackBuffer().State() != framesync.StateRenderTarget {
			t.Errorf("frame %d: back buffer in %s during recording", i, f.BackBuffer().State())
		}
		if err := r.Present(); err != nil {
			t.Fatalf("frame %d: Present: %v", i, err)
		}
	}

	if got := r.Queue().Stats().BlockingWaits; got != 0 {
		t.Errorf("BlockingWaits = %d, want 0", got)
	}
	if r.FrameCount() != 5 || r.Clock().Ticks() != 5 {
		t.Errorf("FrameCount = %d, clock ticks = %d, want 5", r.FrameCount(), r.Clock().Ticks())
	}
	for i := 0; i < 2; i++ {
		if s := r.BackBuffer(i).State(); s != framesync.StatePresent {
			t.Errorf("back buffer %d tracked in %s, want present", i, s)
		}
		if s := fx.surface.Texture(i).State(); s != framesync.StatePresent {
			t.Errorf("image %d left in %s by the GPU, want present", i, s)
		}
	}
	if got := fx.surface.Texture(0).Clears(); got != 3 {
		t.Errorf("image 0 clears = %d, want 3", got)
	}
	if got := fx.depth.Clears(); got != 5 {
		t.Errorf("depth clears = %d, want 5", got)
	}
	if fx.depth.Depth() != 1.0 {
		t.Errorf("depth cleared to %v, want 1", fx.depth.Depth())
	}
	if r.DepthBuffer().State() != framesync.StateDepthWrite {
		t.Errorf("depth buffer state = %s, want depth_write", r.DepthBuffer().State())
	}
	presents := fx.surface.Presents()
	if len(presents) != 5 || presents[0].SyncInterval != 1 {
		t.Errorf("presents = %+v", presents)
	}
}

func TestRenderer_FrameCommandSequence(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(2))

	err := fx.r.RenderFrame(func(f *framesync.Frame) error {
		list, err := f.CommandBuffer().Native()
		if err != nil {
			return err
		}
		list.(*simgpu.CommandList).Draw(36, 1)
		return nil
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}

	executed := fx.r.Queue().Native().(*simgpu.Queue).Executed()
	if len(executed) != 1 {
		t.Fatalf("executed lists = %d, want 1", len(executed))
	}
	var kinds []string
	for _, c := range executed[0] {
		kinds = append(kinds, c.Kind.String())
	}
	want := "barrier clear clear_depth draw barrier"
	if got := strings.Join(kinds, " "); got != want {
		t.Errorf("commands = %q, want %q", got, want)
	}
	first, last := executed[0][0].Barrier, executed[0][len(executed[0])-1].Barrier
	if first.From != framesync.StatePresent || first.To != framesync.StateRenderTarget {
		t.Errorf("first barrier = %s", first)
	}
	if last.From != framesync.StateRenderTarget || last.To != framesync.StatePresent {
		t.Errorf("last barrier = %s", last)
	}
	if executed[0][1].Color != framesync.DefaultClearColor {
		t.Errorf("clear color = %v, want default", executed[0][1].Color)
	}
}

func TestRenderer_SlotMapping(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(3), framesync.WithFramesInFlight(2))

	wantImages := []int{0, 1, 2, 0, 1, 2}
	for i, wantImage := range wantImages {
		wantSlot := i % 2
		if fx.r.NextSlot() != wantSlot {
			t.Errorf("frame %d: NextSlot = %d, want %d", i, fx.r.NextSlot(), wantSlot)
		}
		f, err := fx.r.BeginFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.ImageIndex() != wantImage || f.Slot() != wantSlot {
			t.Errorf("frame %d: image %d slot %d, want image %d slot %d",
				i, f.ImageIndex(), f.Slot(), wantImage, wantSlot)
		}
		if err := fx.r.Present(); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestRenderer_OddImageCountDoesNotStall(t *testing.T) {
	tests := []struct {
		name     string
		images   int
		inFlight int
	}{
		{"3 images 2 slots", 3, 2},
		{"2 images 3 slots", 2, 3},
		{"5 images 2 slots", 5, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
			fx := newRendererFixture(t, dev, dev.NewSurface(tt.images),
				framesync.WithFramesInFlight(tt.inFlight))

			for i := 0; i < 4*tt.images*tt.inFlight; i++ {
				// The GPU runs one frame behind: only the latest
				// submission is still executing.
				if n := dev.Pending(); n > 1 {
					dev.Retire(n - 1)
				}
				if err := fx.r.RenderFrame(nil); err != nil {
					t.Fatalf("frame %d: %v", i, err)
				}
			}
			if got := fx.r.Queue().Stats().BlockingWaits; got != 0 {
				t.Errorf("BlockingWaits = %d, want 0", got)
			}
			if got := dev.BlockedWaits(); got != 0 {
				t.Errorf("device blocked waits = %d, want 0", got)
			}
		})
	}
}

func TestRenderer_PacesAgainstGPU(t *testing.T) {
	dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
	fx := newRendererFixture(t, dev, dev.NewSurface(2))

	for i := 0; i < 2; i++ {
		if err := fx.r.RenderFrame(nil); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}

	// Both slots are in flight: the third frame waits for the first.
	blocked := dev.NextBlockedWait()
	go func() {
		<-blocked
		dev.Retire(1)
	}()
	if err := fx.r.RenderFrame(nil); err != nil {
		t.Fatalf("frame 2: %v", err)
	}
	if got := fx.r.Queue().Stats().BlockingWaits; got != 1 {
		t.Errorf("BlockingWaits = %d, want 1", got)
	}
}

func TestRenderer_Tearing(t *testing.T) {
	tests := []struct {
		name        string
		vsync       bool
		tearing     bool
		wantSync    int
		wantTearing bool
	}{
		{"vsync", true, true, 1, false},
		{"immediate with tearing", false, true, 0, true},
		{"immediate without tearing", false, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := simgpu.New()
			var opts []simgpu.SurfaceOption
			if tt.tearing {
				opts = append(opts, simgpu.WithTearing())
			}
			fx := newRendererFixture(t, dev, dev.NewSurface(2, opts...), framesync.WithVSync(tt.vsync))
			if err := fx.r.RenderFrame(nil); err != nil {
				t.Fatal(err)
			}
			got := fx.surface.Presents()[0]
			if got.SyncInterval != tt.wantSync || got.AllowTearing != tt.wantTearing {
				t.Errorf("present options = %+v", got)
			}
			if fx.r.PresentOptions() != got {
				t.Errorf("PresentOptions = %+v, presented %+v", fx.r.PresentOptions(), got)
			}
		})
	}
}

func TestRenderer_ClearColor(t *testing.T) {
	dev := simgpu.New()
	red := gputypes.Color{R: 1, A: 1}
	fx := newRendererFixture(t, dev, dev.NewSurface(2), framesync.WithClearColor(red))
	if err := fx.r.RenderFrame(nil); err != nil {
		t.Fatal(err)
	}
	if got := fx.surface.Texture(0).ClearColor(); got != red {
		t.Errorf("clear color = %v, want %v", got, red)
	}
}

func TestRenderer_FrameOrderViolations(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(2))

	if err := fx.r.Present(); !errors.Is(err, framesync.ErrFrameState) {
		t.Errorf("Present without BeginFrame = %v, want ErrFrameState", err)
	}
	if _, err := fx.r.BeginFrame(); err != nil {
		t.Fatal(err)
	}
	_, err := fx.r.BeginFrame()
	if !errors.Is(err, framesync.ErrFrameState) || !framesync.IsLogicViolation(err) {
		t.Errorf("second BeginFrame = %v, want ErrFrameState logic violation", err)
	}
	if err := fx.r.Present(); err != nil {
		t.Errorf("Present after rejected BeginFrame: %v", err)
	}
}

func TestRenderer_RecordError(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(2))
	boom := errors.New("boom")
	err := fx.r.RenderFrame(func(*framesync.Frame) error { return boom })
	if !errors.Is(err, boom) {
		t.Errorf("RenderFrame = %v, want boom", err)
	}
	if len(fx.surface.Presents()) != 0 {
		t.Error("frame presented after record error")
	}
}

func TestRenderer_PresentFailure(t *testing.T) {
	dev := simgpu.New()
	fx := newRendererFixture(t, dev, dev.NewSurface(2))
	fx.surface.FailNextPresent(nil)

	err := fx.r.RenderFrame(nil)
	if !errors.Is(err, framesync.ErrSubmission) || !framesync.IsFatal(err) {
		t.Errorf("RenderFrame = %v, want fatal ErrSubmission", err)
	}
}

func TestRenderer_InvalidImageIndex(t *testing.T) {
	t.Run("initial", func(t *testing.T) {
		dev := simgpu.New()
		_, err := framesync.NewRenderer(dev, dev.NewSurface(2, simgpu.WithImageOrder(5)))
		if !errors.Is(err, framesync.ErrSubmission) {
			t.Errorf("NewRenderer = %v, want ErrSubmission", err)
		}
	})
	t.Run("after present", func(t *testing.T) {
		dev := simgpu.New()
		fx := newRendererFixture(t, dev, dev.NewSurface(2, simgpu.WithImageOrder(0, 7)))
		err := fx.r.RenderFrame(nil)
		if !errors.Is(err, framesync.ErrSubmission) {
			t.Errorf("RenderFrame = %v, want ErrSubmission", err)
		}
	})
	t.Run("no images", func(t *testing.T) {
		dev := simgpu.New()
		_, err := framesync.NewRenderer(dev, dev.NewSurface(0))
		if !errors.Is(err, framesync.ErrInitialization) {
			t.Errorf("NewRenderer = %v, want ErrInitialization", err)
		}
	})
}

func TestRenderer_DeviceLost(t *testing.T) {
	dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
	r, err := framesync.NewRenderer(dev, dev.NewSurface(2))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := r.RenderFrame(nil); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	dev.Lose()

	_, err = r.BeginFrame()
	if !errors.Is(err, framesync.ErrDeviceLost) || !framesync.IsFatal(err) {
		t.Fatalf("BeginFrame after device loss = %v, want fatal ErrDeviceLost", err)
	}
	if err := r.Close(); !errors.Is(err, framesync.ErrDeviceLost) {
		t.Errorf("Close after device loss = %v, want ErrDeviceLost", err)
	}
}

func TestRenderer_CloseDrainsGPU(t *testing.T) {
	dev := simgpu.New(simgpu.WithExecutionTime(time.Millisecond))
	r, err := framesync.NewRenderer(dev, dev.NewSurface(3))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		if err := r.RenderFrame(nil); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if dev.Pending() != 0 {
		t.Errorf("Pending after Close = %d, want 0", dev.Pending())
	}
	if v := dev.Violations(); len(v) > 0 {
		t.Errorf("validation failures: %v", v)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
	if _, err := r.BeginFrame(); !errors.Is(err, framesync.ErrClosed) {
		t.Errorf("BeginFrame after Close = %v, want ErrClosed", err)
	}
}
