// Package projector publishes the UI-facing read model of the queue core.
//
// A Projector holds the latest Snapshot behind an atomic pointer, so reads
// never take a lock, and fans every new snapshot out to subscribers through
// single-slot channels where an unread value is replaced by the newer one.
package projector

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
)

// ConnectionState describes the transport session as shown to the UI.
type ConnectionState string

const (
	Connecting   ConnectionState = "connecting"
	Connected    ConnectionState = "connected"
	Reconnecting ConnectionState = "reconnecting"
	Released     ConnectionState = "released"
)

// Snapshot is an immutable view of queue and transport state.
// Values obtained from a Projector must not be modified.
type Snapshot struct {
	Version      uint64             `json:"version"`
	QueueVersion uint64             `json:"queueVersion"`
	Current      *session.Entry     `json:"current"`
	Active       int                `json:"active"` // -1 when nothing is active
	Queue        []session.Entry    `json:"queue"`
	Playing      bool               `json:"playing"`
	Position     int64              `json:"position"` // milliseconds
	Duration     int64              `json:"duration"` // milliseconds
	Progress     float64            `json:"progress"`
	Shuffle      bool               `json:"shuffle"`
	Repeat       session.RepeatMode `json:"repeat"`
	Phase        string             `json:"phase"`
	Connection   ConnectionState    `json:"connection"`
	SleepTimer   sleeptimer.Status  `json:"sleepTimer"`
	LastError    string             `json:"lastError,omitempty"`
	ErrorAt      time.Time          `json:"errorAt,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt"`
}

// Progress returns position/duration clamped to [0,1], or 0 without a duration.
func Progress(position, duration int64) float64 {
	if duration <= 0 || position <= 0 {
		return 0
	}
	if position >= duration {
		return 1
	}
	return float64(position) / float64(duration)
}

// Projector is the latest-value store. Publish is meant to be called by a
// single owner; Current and Subscribe are safe from any goroutine.
type Projector struct {
	current atomic.Pointer[Snapshot]

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// New creates a projector holding an empty, connecting snapshot.
func New() *Projector {
	p := &Projector{subs: make(map[*Subscription]struct{})}
	p.current.Store(&Snapshot{
		Active:     -1,
		Queue:      []session.Entry{},
		Connection: Connecting,
		UpdatedAt:  time.Now(),
	})
	return p
}

// Current returns the latest snapshot without locking.
func (p *Projector) Current() *Snapshot {
	return p.current.Load()
}

// Publish stores s as the latest snapshot and offers it to every subscriber.
// It assigns the next Version and never blocks on a subscriber.
func (p *Projector) Publish(s Snapshot) *Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.current.Load()
	s.Version = prev.Version + 1
	s.Queue = append(make([]session.Entry, 0, len(s.Queue)), s.Queue...)
	if s.Current != nil {
		cur := *s.Current
		s.Current = &cur
	}
	s.Progress = Progress(s.Position, s.Duration)
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}

	snap := &s
	p.current.Store(snap)

	if !p.closed {
		for sub := range p.subs {
			sub.offer(snap)
		}
	}
	return snap
}

// Subscribe registers an observer. The subscription's channel holds at most
// one pending snapshot, always the newest.
func (p *Projector) Subscribe() *Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan *Snapshot, 1)
	sub := &Subscription{C: ch, ch: ch, p: p}
	if p.closed {
		close(ch)
		return sub
	}
	p.subs[sub] = struct{}{}
	return sub
}

// Close detaches every subscriber and closes their channels.
func (p *Projector) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for sub := range p.subs {
		delete(p.subs, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of attached subscriptions.
func (p *Projector) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Subscription receives snapshots on C until closed.
type Subscription struct {
	C  <-chan *Snapshot
	ch chan *Snapshot
	p  *Projector
}

// offer replaces any unread snapshot with snap (caller holds p.mu).
func (s *Subscription) offer(snap *Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		// Drop the stale value so the newest one fits.
		select {
		case <-s.ch:
		default:
		}
	}
}

// Close detaches the subscription and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.p.mu.Lock()
	defer s.p.mu.Unlock()

	if _, ok := s.p.subs[s]; !ok {
		return
	}
	delete(s.p.subs, s)
	close(s.ch)
}
