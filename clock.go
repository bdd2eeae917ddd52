package framesync

import (
	"time"

	"github.com/loov/hrtime"
)

// FrameClock measures the time between frames with the high resolution
// timer.
type FrameClock struct {
	prev  time.Duration
	delta time.Duration
	total time.Duration
	ticks uint64
}

// NewFrameClock returns a clock started now.
func NewFrameClock() *FrameClock {
	return &FrameClock{prev: hrtime.Now()}
}

// Tick closes the current frame interval.
func (c *FrameClock) Tick() {
	now := hrtime.Now()
	c.delta = now - c.prev
	c.total += c.delta
	c.prev = now
	c.ticks++
}

// Reset zeroes the accumulated time and restarts the interval.
func (c *FrameClock) Reset() {
	c.prev = hrtime.Now()
	c.delta = 0
	c.total = 0
	c.ticks = 0
}

// Delta returns the duration of the last frame interval.
func (c *FrameClock) Delta() time.Duration { return c.delta }

// Total returns the time accumulated over all ticks since the last Reset.
func (c *FrameClock) Total() time.Duration { return c.total }

// Ticks returns the number of ticks since the last Reset.
func (c *FrameClock) Ticks() uint64 { return c.ticks }
