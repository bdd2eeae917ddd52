package framesync_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/framesync"
	"github.com/gogpu/framesync/simgpu"
)

func newTestFence(t *testing.T, dev *simgpu.Device) (*framesync.Fence, framesync.NativeQueue) {
	t.Helper()
	q, err := dev.CreateQueue(framesync.QueueGraphics)
	if err != nil {
		t.Fatalf("CreateQueue: %v", err)
	}
	f, err := framesync.NewFence(dev, "test")
	if err != nil {
		t.Fatalf("NewFence: %v", err)
	}
	return f, q
}

func TestFence_SignalValuesIncrease(t *testing.T) {
	dev := simgpu.New()
	f, q := newTestFence(t, dev)

	for want := uint64(1); want <= 3; want++ {
		got, err := f.Signal(q)
		if err != nil {
			t.Fatalf("Signal: %v", err)
		}
		if got != want {
			t.Errorf("Signal = %d, want %d", got, want)
		}
		if f.LastRequested() != want {
			t.Errorf("LastRequested = %d, want %d", f.LastRequested(), want)
		}
	}
	if f.Completed() != 3 || !f.IsComplete(3) {
		t.Errorf("Completed = %d, want 3", f.Completed())
	}
}

func TestFence_WaitUntilCompleteDoesNotBlock(t *testing.T) {
	dev := simgpu.New()
	f, q := newTestFence(t, dev)

	v, _ := f.Signal(q)
	if err := f.WaitUntil(v, framesync.Infinite); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}
	if f.BlockingWaits() != 0 {
		t.Errorf("BlockingWaits = %d, want 0", f.BlockingWaits())
	}
	if dev.BlockedWaits() != 0 {
		t.Errorf("device blocked waits = %d, want 0", dev.BlockedWaits())
	}
}

func TestFence_WaitUntilBlocksUntilRetired(t *testing.T) {
	dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
	f, q := newTestFence(t, dev)

	v, _ := f.Signal(q)
	if f.IsComplete(v) {
		t.Fatal("fence complete before the GPU retired the signal")
	}

	blocked := dev.NextBlockedWait()
	go func() {
		<-blocked
		dev.Retire(1)
	}()

	if err := f.WaitUntil(v, framesync.Infinite); err != nil {
		t.Fatalf("WaitUntil: %v", err)
	}
	if f.BlockingWaits() != 1 {
		t.Errorf("BlockingWaits = %d, want 1", f.BlockingWaits())
	}
	if f.Completed() < v {
		t.Errorf("Completed = %d, want >= %d", f.Completed(), v)
	}
}

func TestFence_BoundedWaitTimesOut(t *testing.T) {
	dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
	f, q := newTestFence(t, dev)

	v, _ := f.Signal(q)
	err := f.WaitUntil(v, 5*time.Millisecond)
	if !errors.Is(err, framesync.ErrWaitTimeout) {
		t.Fatalf("WaitUntil = %v, want ErrWaitTimeout", err)
	}
	if framesync.IsFatal(err) {
		t.Error("a timed out bounded wait must not be fatal")
	}
	if f.WaitTime() <= 0 {
		t.Error("WaitTime not accounted")
	}
}

func TestFence_DeviceLostDuringWait(t *testing.T) {
	dev := simgpu.New(simgpu.WithMode(simgpu.Manual))
	f, q := newTestFence(t, dev)

	v, _ := f.Signal(q)
	blocked := dev.NextBlockedWait()
	go func() {
		<-blocked
		dev.Lose()
	}()

	err := f.WaitUntil(v, framesync.Infinite)
	if !errors.Is(err, framesync.ErrDeviceLost) {
		t.Fatalf("WaitUntil = %v, want ErrDeviceLost", err)
	}
	if !errors.Is(err, simgpu.ErrDeviceRemoved) {
		t.Errorf("device cause lost from chain: %v", err)
	}
	if !framesync.IsFatal(err) {
		t.Error("device loss must be fatal")
	}
}

func TestFence_Failures(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		dev := simgpu.New()
		dev.FailNext(simgpu.OpCreateFence, nil)
		_, err := framesync.NewFence(dev, "broken")
		if !errors.Is(err, framesync.ErrInitialization) {
			t.Errorf("NewFence = %v, want ErrInitialization", err)
		}
	})
	t.Run("signal", func(t *testing.T) {
		dev := simgpu.New()
		f, q := newTestFence(t, dev)
		dev.FailNext(simgpu.OpSignal, nil)
		_, err := f.Signal(q)
		if !errors.Is(err, framesync.ErrSubmission) || !errors.Is(err, simgpu.ErrInjected) {
			t.Errorf("Signal = %v, want ErrSubmission wrapping ErrInjected", err)
		}
		if f.LastRequested() != 0 {
			t.Errorf("LastRequested = %d after failed signal, want 0", f.LastRequested())
		}
	})
}
