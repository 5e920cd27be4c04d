// Package hlc implements a hybrid logical clock: a monotonic timestamp
// that combines a physical wall-clock reading with a logical counter,
// so that timestamps assigned on one node can be compared against,
// and always ordered after, timestamps observed from another node.
package hlc

import (
	"fmt"
	"sync"
	"time"
)

// Timestamp is a (physical, counter) pair with a total order: physical
// time first, counter as a tiebreaker.
type Timestamp struct {
	Physical int64  // milliseconds since Unix epoch
	Counter  uint32
}

// Less reports whether t sorts strictly before other.
func (t Timestamp) Less(other Timestamp) bool {
	if t.Physical != other.Physical {
		return t.Physical < other.Physical
	}
	return t.Counter < other.Counter
}

// Compare returns -1, 0 or 1 as t is less than, equal to, or greater
// than other. Useful as a map-ordering key function.
func (t Timestamp) Compare(other Timestamp) int {
	switch {
	case t.Physical < other.Physical:
		return -1
	case t.Physical > other.Physical:
		return 1
	case t.Counter < other.Counter:
		return -1
	case t.Counter > other.Counter:
		return 1
	default:
		return 0
	}
}

// IsZero reports whether t is the zero Timestamp.
func (t Timestamp) IsZero() bool {
	return t.Physical == 0 && t.Counter == 0
}

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d", t.Physical, t.Counter)
}

// Clock is a process-wide hybrid logical clock. It is safe for
// concurrent use: every operation is an atomic read-modify-write that
// returns a timestamp strictly greater than any timestamp it has
// previously returned.
type Clock struct {
	mu   sync.Mutex
	last Timestamp
	now  func() time.Time
}

// NewClock constructs a Clock. The clock is a process-wide singleton in
// typical use: constructed once before any partition starts, shared by
// every partition's State Machine.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

func (c *Clock) physicalMillis() int64 {
	return c.now().UnixMilli()
}

// LocalEvent returns a timestamp greater than or equal to every
// previously returned timestamp. Call this when an event happens
// purely locally (e.g. starting an election).
func (c *Clock) LocalEvent() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advanceLocked(c.physicalMillis())
}

// SendEvent returns a timestamp with the same guarantee as LocalEvent;
// used when stamping an outbound message (e.g. a leader's proposal).
func (c *Clock) SendEvent() Timestamp {
	return c.LocalEvent()
}

// ReceiveEvent merges in a timestamp observed on an inbound message and
// returns a timestamp greater than or equal to both the local clock and
// remote, advancing internal state so subsequent calls stay ahead of
// what this node has seen from its peers.
func (c *Clock) ReceiveEvent(remote Timestamp) Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	physical := c.physicalMillis()
	if remote.Physical > physical {
		physical = remote.Physical
	}

	if physical == remote.Physical && physical >= c.last.Physical {
		counter := remote.Counter
		if physical == c.last.Physical && c.last.Counter > counter {
			counter = c.last.Counter
		}
		c.last = Timestamp{Physical: physical, Counter: counter + 1}
		return c.last
	}

	return c.advanceLocked(physical)
}

// advanceLocked must be called with mu held. It produces a timestamp at
// least physical, strictly after c.last.
func (c *Clock) advanceLocked(physical int64) Timestamp {
	if physical > c.last.Physical {
		c.last = Timestamp{Physical: physical, Counter: 0}
		return c.last
	}
	// physical <= c.last.Physical: the wall clock hasn't advanced (or
	// went backwards); bump the logical counter to stay monotonic.
	c.last = Timestamp{Physical: c.last.Physical, Counter: c.last.Counter + 1}
	return c.last
}
