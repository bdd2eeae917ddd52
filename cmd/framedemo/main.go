// Command framedemo drives the framesync renderer against a registered
// backend and reports frame pacing statistics.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"log"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/framesync/backend"
	_ "github.com/gogpu/framesync/backend/native"
	"github.com/gogpu/framesync/simgpu"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		frames      = flag.Int("frames", 120, "number of frames to present")
		inFlight    = flag.Int("frames-in-flight", framesync.DefaultFramesInFlight, "frame slots")
		images      = flag.Int("images", 3, "swapchain images")
		width       = flag.Uint("width", 640, "surface width")
		height      = flag.Uint("height", 480, "surface height")
		gpuTime     = flag.Duration("gpu-time", backend.DefaultSimGPUTime, "simulated GPU time per frame")
		backendName = flag.String("backend", backend.BackendSim, "device backend: "+strings.Join(backend.Available(), ", "))
		vsync       = flag.Bool("vsync", true, "present with sync interval 1")
		verbose     = flag.Bool("verbose", false, "debug logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	framesync.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var b backend.Backend
	if *backendName == backend.BackendSim {
		b = backend.NewSimBackend(simgpu.WithExecutionTime(*gpuTime))
	} else {
		b = backend.Get(*backendName)
	}
	if b == nil {
		log.Fatalf("unknown backend %q (available: %v)", *backendName, backend.Available())
	}

	cfg := config{
		frames:   *frames,
		inFlight: *inFlight,
		images:   *images,
		width:    uint32(*width),
		height:   uint32(*height),
		vsync:    *vsync,
	}
	if err := runBackend(ctx, b, cfg); err != nil {
		if framesync.IsFatal(err) {
			log.Fatalf("fatal: %+v", err)
		}
		log.Fatalf("framedemo: %v", err)
	}
}

type config struct {
	frames   int
	inFlight int
	images   int
	width    uint32
	height   uint32
	vsync    bool
}

func runBackend(ctx context.Context, b backend.Backend, cfg config) error {
	if err := b.Init(); err != nil {
		return errors.Wrapf(err, "init %s backend", b.Name())
	}
	defer b.Close()
	framesync.Logger().Info("backend ready", "backend", b.Name())

	surface, err := b.NewSurface(cfg.images, cfg.width, cfg.height)
	if err != nil {
		return err
	}
	depth, err := b.NewDepthBuffer(cfg.width, cfg.height)
	if err != nil {
		return err
	}

	dev := b.Device()
	if err := upload(dev); err != nil {
		return err
	}
	err = run(ctx, dev, surface, depth, cfg)

	if sim, ok := b.(*backend.SimBackend); ok {
		if v := sim.Sim().Violations(); len(v) > 0 {
			return errors.Newf("%d validation failures, first: %s", len(v), v[0])
		}
	}
	return err
}

// run renders on one goroutine and reports progress on another until the
// frame budget is spent or ctx is canceled.
func run(ctx context.Context, dev framesync.Device, surface framesync.Surface, depth framesync.NativeHandle, cfg config) error {
	r, err := framesync.NewRenderer(dev, surface,
		framesync.WithFramesInFlight(cfg.inFlight),
		framesync.WithDepthBuffer(depth),
		framesync.WithVSync(cfg.vsync),
	)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	progress := make(chan uint64, 1)

	g.Go(func() error {
		defer close(progress)
		for i := 0; i < cfg.frames; i++ {
			if err := ctx.Err(); err != nil {
				break
			}
			if err := r.RenderFrame(nil); err != nil {
				_ = r.Close()
				return err
			}
			select {
			case progress <- r.FrameCount():
			default:
			}
		}
		return r.Close()
	})

	g.Go(func() error {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		var last uint64
		for {
			select {
			case n, ok := <-progress:
				if !ok {
					return nil
				}
				last = n
			case <-ticker.C:
				framesync.Logger().Info("progress", "frames", last)
			}
		}
	})

	if err := g.Wait(); err != nil {
		return err
	}

	clock := r.Clock()
	stats := r.Queue().Stats()
	avg := time.Duration(0)
	if clock.Ticks() > 0 {
		avg = clock.Total() / time.Duration(clock.Ticks())
	}
	log.Printf("presented %d frames, avg frame %v, %s", r.FrameCount(), avg, stats)
	return nil
}

// upload copies the cube mesh to GPU-local buffers through the copy queue.
func upload(dev framesync.Device) error {
	u, err := framesync.NewUploader(dev)
	if errors.Is(err, framesync.ErrUnsupported) {
		framesync.Logger().Warn("device cannot allocate buffers, skipping upload")
		return nil
	}
	if err != nil {
		return err
	}
	defer u.Close()

	batch, err := u.Begin()
	if err != nil {
		return err
	}
	if _, err := batch.Buffer("cube_vertices", float32Bytes(cubeVertices)); err != nil {
		return err
	}
	if _, err := batch.Buffer("cube_indices", uint16Bytes(cubeIndices)); err != nil {
		return err
	}
	return batch.Finish()
}

// cubeVertices holds position and color for the eight cube corners.
var cubeVertices = []float32{
	-1, -1, -1, 0, 0, 0,
	-1, +1, -1, 0, 1, 0,
	+1, +1, -1, 1, 1, 0,
	+1, -1, -1, 1, 0, 0,
	-1, -1, +1, 0, 0, 1,
	-1, +1, +1, 0, 1, 1,
	+1, +1, +1, 1, 1, 1,
	+1, -1, +1, 1, 0, 1,
}

var cubeIndices = []uint16{
	0, 1, 2, 0, 2, 3, // front
	4, 6, 5, 4, 7, 6, // back
	4, 5, 1, 4, 1, 0, // left
	3, 2, 6, 3, 6, 7, // right
	1, 5, 6, 1, 6, 2, // top
	4, 0, 3, 4, 3, 7, // bottom
}

func float32Bytes(v []float32) []byte {
	b := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(f))
	}
	return b
}

func uint16Bytes(v []uint16) []byte {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		binary.LittleEndian.PutUint16(b[2*i:], x)
	}
	return b
}
