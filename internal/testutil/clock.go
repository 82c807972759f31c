package testutil

import (
	"sync"

	"github.com/roach88/mongoversioning/internal/oplog"
)

// DefaultEpoch is the seconds part of timestamps issued by a
// DeterministicClock created with NewDeterministicClock.
const DefaultEpoch uint32 = 1700000000

// DeterministicClock issues strictly increasing oplog timestamps for tests.
//
// Timestamps share the clock's seconds value and count up the increment,
// the way a busy primary stamps entries within one second. Tick advances
// to the next second and restarts the increment.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch uint32
	t     uint32
	i     uint32
}

// NewDeterministicClock creates a clock at DefaultEpoch.
//
// The first call to Next() returns Timestamp(DefaultEpoch, 1).
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch)
}

// NewDeterministicClockAt creates a clock whose first timestamp is
// Timestamp(t, 1).
func NewDeterministicClockAt(t uint32) *DeterministicClock {
	return &DeterministicClock{epoch: t, t: t}
}

// Next returns the next timestamp.
//
// Monotonic: every result compares greater than the one before.
func (c *DeterministicClock) Next() oplog.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.i++
	return oplog.Timestamp{T: c.t, I: c.i}
}

// Current returns the last issued timestamp without advancing.
// Before the first Next it returns Timestamp(t, 0).
func (c *DeterministicClock) Current() oplog.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return oplog.Timestamp{T: c.t, I: c.i}
}

// Tick moves the clock to the next second.
func (c *DeterministicClock) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t++
	c.i = 0
}

// Reset returns the clock to its starting second.
//
// Used for test reuse. After Reset(), Next() repeats the same sequence.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.epoch
	c.i = 0
}
