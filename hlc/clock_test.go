package hlc

import (
	"testing"
	"time"
)

func TestLocalEventMonotonic(t *testing.T) {
	c := NewClock()
	var prev Timestamp
	for i := 0; i < 1000; i++ {
		ts := c.LocalEvent()
		if !prev.Less(ts) {
			t.Fatalf("timestamp %v did not advance past %v", ts, prev)
		}
		prev = ts
	}
}

func TestReceiveEventAdvancesPastRemote(t *testing.T) {
	c := NewClock()
	remote := Timestamp{Physical: 1 << 40, Counter: 7}

	ts := c.ReceiveEvent(remote)
	if !remote.Less(ts) && ts != remote {
		t.Fatalf("expected ts >= remote, got ts=%v remote=%v", ts, remote)
	}
	if ts.Physical < remote.Physical {
		t.Fatalf("expected ts.Physical >= remote.Physical, got %v < %v", ts.Physical, remote.Physical)
	}

	next := c.LocalEvent()
	if !ts.Less(next) {
		t.Fatalf("expected subsequent LocalEvent %v to be after %v", next, ts)
	}
}

func TestReceiveEventSameMillisBumpsCounter(t *testing.T) {
	frozen := time.UnixMilli(5000)
	c := &Clock{now: func() time.Time { return frozen }}

	first := c.LocalEvent()
	if first.Physical != 5000 || first.Counter != 0 {
		t.Fatalf("unexpected first timestamp %v", first)
	}

	remote := Timestamp{Physical: 5000, Counter: 9}
	second := c.ReceiveEvent(remote)
	if second.Physical != 5000 || second.Counter != 10 {
		t.Fatalf("expected counter to advance past remote, got %v", second)
	}

	third := c.LocalEvent()
	if !second.Less(third) {
		t.Fatalf("expected %v to advance past %v", third, second)
	}
}

func TestCompareOrdering(t *testing.T) {
	a := Timestamp{Physical: 10, Counter: 1}
	b := Timestamp{Physical: 10, Counter: 2}
	c := Timestamp{Physical: 11, Counter: 0}

	if a.Compare(b) != -1 || b.Compare(a) != 1 {
		t.Fatal("counter tiebreak ordering wrong")
	}
	if b.Compare(c) != -1 {
		t.Fatal("physical ordering wrong")
	}
	if a.Compare(a) != 0 {
		t.Fatal("equal timestamps should compare equal")
	}
}
