package queue

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCoalescerRapidTriggersCollapseToOne(t *testing.T) {
	var calls int32

	c := newCoalescer(30*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer c.Stop()

	for i := 0; i < 10; i++ {
		c.Trigger()
	}
	if !c.Pending() {
		t.Error("expected pending trigger inside the window")
	}

	time.Sleep(80 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected 1 callback, got %d", got)
	}
	if c.Pending() {
		t.Error("nothing should be pending after the callback")
	}
}

func TestCoalescerSpacedTriggersFireSeparately(t *testing.T) {
	var calls int32

	c := newCoalescer(10*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })
	defer c.Stop()

	c.Trigger()
	time.Sleep(50 * time.Millisecond)
	c.Trigger()
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Errorf("expected 2 callbacks, got %d", got)
	}
}

func TestCoalescerStopPreventsCallbacks(t *testing.T) {
	var calls int32

	c := newCoalescer(20*time.Millisecond, func() { atomic.AddInt32(&calls, 1) })

	c.Trigger()
	c.Stop()
	c.Trigger()

	time.Sleep(60 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Errorf("expected 0 callbacks after stop, got %d", got)
	}
}
