package socketio

import (
	"sync"
	"time"

	"github.com/edumarques81/stellar-queue/internal/domain/projector"
)

// Change marks what a snapshot changed, for broadcast purposes.
type Change int

const (
	ChangeState Change = 1 << iota
	ChangeQueue
)

// BroadcastDebouncer batches snapshots arriving within window and emits the
// latest one once, with the union of their changes. A steady stream of
// snapshots is still emitted at least every maxDelay.
type BroadcastDebouncer struct {
	window   time.Duration
	maxDelay time.Duration
	emit     func(snap *projector.Snapshot, c Change)

	mu      sync.Mutex
	pending Change
	latest  *projector.Snapshot
	since   time.Time
	timer   *time.Timer
	stopped bool
}

// NewBroadcastDebouncer creates a debouncer that hands batches to emit.
func NewBroadcastDebouncer(window time.Duration, emit func(*projector.Snapshot, Change)) *BroadcastDebouncer {
	return &BroadcastDebouncer{
		window:   window,
		maxDelay: 4 * window,
		emit:     emit,
	}
}

// Trigger records snap. A queue change implies a state change: the active
// index and current entry are part of the state payload.
func (d *BroadcastDebouncer) Trigger(snap *projector.Snapshot, c Change) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || c == 0 || snap == nil {
		return
	}
	if c&ChangeQueue != 0 {
		c |= ChangeState
	}

	now := time.Now()
	if d.pending == 0 {
		d.since = now
	}
	d.pending |= c
	d.latest = snap

	delay := d.window
	if left := d.maxDelay - now.Sub(d.since); left < delay {
		delay = max(left, 0)
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, d.flush)
}

func (d *BroadcastDebouncer) flush() {
	d.mu.Lock()
	if d.stopped || d.pending == 0 {
		d.mu.Unlock()
		return
	}
	c, snap := d.pending, d.latest
	d.pending, d.latest = 0, nil
	d.mu.Unlock()

	d.emit(snap, c)
}

// Stop drops anything pending and prevents further emits.
func (d *BroadcastDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending, d.latest = 0, nil
}
