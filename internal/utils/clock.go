package utils

import (
	"sync/atomic"
	"time"
)

// Clock is a hybrid logical clock producing strictly increasing millisecond
// readings. A reading is the wall clock when it is ahead of every previous
// reading and observed remote timestamp, otherwise last+1.
type Clock struct {
	last atomic.Int64
	wall func() time.Time
}

// NewClock returns a clock driven by time.Now.
func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource returns a clock driven by wall. Used by tests to pin time.
func NewClockWithSource(wall func() time.Time) *Clock {
	return &Clock{wall: wall}
}

// Now returns the next reading.
func (c *Clock) Now() int64 {
	wall := c.wall().UnixMilli()
	for {
		last := c.last.Load()
		next := max(wall, last+1)
		if c.last.CompareAndSwap(last, next) {
			return next
		}
	}
}

// Current returns the last reading without advancing the clock.
func (c *Clock) Current() int64 {
	return c.last.Load()
}

// Observe merges a timestamp seen on a remote item so that later local
// readings order after it.
func (c *Clock) Observe(ts int64) {
	for {
		last := c.last.Load()
		if ts <= last {
			return
		}
		if c.last.CompareAndSwap(last, ts) {
			return
		}
	}
}
