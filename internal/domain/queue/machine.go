// Package queue holds the authoritative in-memory view of the play queue.
//
// A Machine owns the queue and the mirrored transport state on a single
// goroutine (Run). Transport events, UI intents and resync results are all
// serialized onto that goroutine. The local queue is never edited
// optimistically: every change is sent to the transport and the queue is
// replaced wholesale from a transport pull once the transport reports it.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
)

var (
	// ErrBusy is the rejection reason when the command backlog is full.
	ErrBusy = errors.New("too many pending commands")
	// ErrNotRunning is returned by intents once Run has returned.
	ErrNotRunning = errors.New("queue machine is not running")
)

// Session is the transport boundary the machine drives. *session.Adapter implements it.
type Session interface {
	Events() <-chan session.Event
	Issue(ctx context.Context, cmd session.Command) error
	Timeline(ctx context.Context) (session.Timeline, error)
	Passthrough(ctx context.Context, name string, args ...string) (map[string]string, error)
}

// Options tunes the machine.
type Options struct {
	ResyncWindow  time.Duration // triggers closer together than this share one pull
	CommandBuffer int
}

// DefaultOptions returns the default machine options.
func DefaultOptions() Options {
	return Options{
		ResyncWindow:  25 * time.Millisecond,
		CommandBuffer: 32,
	}
}

type request struct {
	fn    func() error
	reply chan error
}

// job is a unit of work for the command worker.
type job struct {
	cmd *session.Command
	fn  func(ctx context.Context)
}

// state is owned by the Run goroutine.
type state struct {
	queue        []session.Entry
	queueVersion uint64
	active       int
	current      *session.Entry
	playing      bool
	position     int64
	duration     int64
	shuffle      bool
	repeat       session.RepeatMode
	phase        Phase
	conn         projector.ConnectionState
	sleep        sleeptimer.Status
	lastErr      string
	errorAt      time.Time
}

// Machine is the queue state machine.
type Machine struct {
	session Session
	catalog catalog.Catalog
	proj    *projector.Projector
	opts    Options

	requests  chan request
	jobs      chan job
	done      chan struct{}
	coalescer *coalescer
	ctx       context.Context

	// Owned by Run.
	st            state
	released      bool
	inFlight      bool
	trigger       uint64
	pendingRemove int
}

// New creates a machine. cat may be nil, in which case queue entries keep
// only what the transport reports.
func New(s Session, cat catalog.Catalog, proj *projector.Projector, opts Options) *Machine {
	def := DefaultOptions()
	if opts.ResyncWindow <= 0 {
		opts.ResyncWindow = def.ResyncWindow
	}
	if opts.CommandBuffer <= 0 {
		opts.CommandBuffer = def.CommandBuffer
	}

	m := &Machine{
		session:       s,
		catalog:       cat,
		proj:          proj,
		opts:          opts,
		requests:      make(chan request),
		jobs:          make(chan job, opts.CommandBuffer),
		done:          make(chan struct{}),
		pendingRemove: -1,
		st: state{
			queue:  []session.Entry{},
			active: -1,
			phase:  PhaseIdle,
			conn:   projector.Connecting,
		},
	}
	m.coalescer = newCoalescer(opts.ResyncWindow, func() { m.post(m.startResync) })
	return m
}

// Snapshot returns the latest published state.
func (m *Machine) Snapshot() *projector.Snapshot {
	return m.proj.Current()
}

// Done is closed when Run returns.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}

// Run processes events and intents until ctx is done or the session's event
// stream is closed. It must be called exactly once.
func (m *Machine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	m.ctx = ctx
	defer func() {
		cancel()
		m.coalescer.Stop()
		close(m.done)
	}()

	go m.work(ctx)
	m.publish()

	events := m.session.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				m.released = true
				m.st.conn = projector.Released
				m.st.playing = false
				m.publish()
				log.Info().Msg("Queue machine stopped: session released")
				return nil
			}
			m.handle(ev)
		case req := <-m.requests:
			err := req.fn()
			if req.reply != nil {
				req.reply <- err
			}
		}
	}
}

// call runs fn on the owner goroutine and returns its error.
func (m *Machine) call(fn func() error) error {
	req := request{fn: fn, reply: make(chan error, 1)}
	select {
	case m.requests <- req:
	case <-m.done:
		return ErrNotRunning
	}
	select {
	case err := <-req.reply:
		return err
	case <-m.done:
		return ErrNotRunning
	}
}

// post runs fn on the owner goroutine without waiting for it.
func (m *Machine) post(fn func()) {
	req := request{fn: func() error { fn(); return nil }}
	select {
	case m.requests <- req:
	case <-m.done:
	}
}

func (m *Machine) handle(ev session.Event) {
	log.Debug().Str("event", ev.Kind.String()).Msg("Session event")

	switch ev.Kind {
	case session.EventConnected:
		m.st.conn = projector.Connected
		m.triggerResync()

	case session.EventDisconnected:
		m.st.conn = projector.Reconnecting
		m.st.playing = false
		if ev.Err != nil {
			m.setError(ev.Err)
		}

	case session.EventTimelineChanged:
		m.triggerResync()
		return

	case session.EventItemTransitioned:
		m.transition(ev)

	case session.EventIsPlayingChanged:
		m.st.playing = ev.Playing
		switch {
		case ev.Playing:
			m.st.phase = PhasePlaying
		case m.st.phase == PhasePlaying || m.st.phase == PhaseLoading:
			m.st.phase = PhasePaused
		}

	case session.EventModeChanged:
		m.st.shuffle = ev.Shuffle
		m.st.repeat = ev.Repeat

	case session.EventProgress:
		if !m.progress(ev) {
			return
		}

	case session.EventCompleted:
		m.st.phase = PhaseCompleted
		m.st.playing = false
		m.advance()

	case session.EventStopped:
		m.st.phase = PhaseIdle
		m.st.playing = false
		m.st.position = 0
	}

	m.publish()
}

// transition moves the cursor to the item the transport reports as current.
func (m *Machine) transition(ev session.Event) {
	entry := ev.Entry
	idx := indexOfSong(m.st.queue, entry.SongID)
	switch {
	case idx >= 0:
		entry = m.st.queue[idx]
	case entry.SongID == "" && ev.Index >= 0 && ev.Index < len(m.st.queue):
		idx = ev.Index
		entry = m.st.queue[idx]
	default:
		// Not in the local queue yet; the resync that follows places it.
		if entry.Title == "" {
			entry.Title = catalog.BaseName(entry.URI)
		}
		m.triggerResync()
	}

	m.st.active = idx
	m.st.current = &entry
	m.st.position = 0
	m.st.duration = entry.Duration
	if m.st.playing {
		m.st.phase = PhasePlaying
	} else {
		m.st.phase = PhaseLoading
	}

	log.Info().Int("index", idx).Str("uri", entry.URI).Msg("Track transition")

	if !ev.Initial && entry.URI != "" {
		m.recordPlay(entry)
	}
}

// progress applies a position update; it reports whether anything changed.
func (m *Machine) progress(ev session.Event) bool {
	cur := m.st.current
	if cur != nil && cur.SongID != "" && ev.Entry.SongID != "" && cur.SongID != ev.Entry.SongID {
		return false
	}
	duration := m.st.duration
	if ev.Duration > 0 {
		duration = ev.Duration
	}
	if ev.Position == m.st.position && duration == m.st.duration {
		return false
	}
	m.st.position = ev.Position
	m.st.duration = duration
	return true
}

// advance resolves the Advancing phase after the transport finished by itself.
func (m *Machine) advance() {
	m.st.phase = PhaseAdvancing

	switch m.st.repeat {
	case session.RepeatOne:
		if m.st.active >= 0 && m.st.active < len(m.st.queue) {
			if m.enqueue(session.PlayAt(m.st.active)) == nil {
				m.st.phase = PhaseLoading
				return
			}
		}
	case session.RepeatAll:
		if len(m.st.queue) > 0 {
			if m.enqueue(session.PlayAt(0)) == nil {
				m.st.phase = PhaseLoading
				return
			}
		}
	}

	m.st.phase = PhaseIdle
	m.st.position = 0
	log.Info().Msg("Playback completed")
}

func (m *Machine) triggerResync() {
	m.trigger++
	m.coalescer.Trigger()
}

// startResync pulls the transport timeline unless a pull is already in flight.
func (m *Machine) startResync() {
	if m.inFlight || m.released {
		return
	}
	m.inFlight = true
	gen := m.trigger
	ctx := m.ctx

	go func() {
		tl, err := m.session.Timeline(ctx)
		if err == nil {
			m.enrich(tl.Entries)
		}
		m.post(func() { m.finishResync(gen, tl, err) })
	}()
}

func (m *Machine) finishResync(gen uint64, tl session.Timeline, err error) {
	m.inFlight = false
	if m.released {
		return
	}
	if gen != m.trigger {
		// A newer trigger arrived while pulling; this result may predate it.
		log.Debug().Uint64("gen", gen).Uint64("latest", m.trigger).Msg("Discarding stale resync")
		if !m.coalescer.Pending() {
			m.startResync()
		}
		return
	}
	if err != nil {
		log.Warn().Err(err).Msg("Resync failed, keeping previous queue")
		m.setError(err)
		m.publish()
		return
	}

	m.apply(tl)
	m.publish()
}

// apply replaces the local queue with a transport pull.
func (m *Machine) apply(tl session.Timeline) {
	prevCurrent := m.st.current
	m.st.queue = tl.Entries
	if m.st.queue == nil {
		m.st.queue = []session.Entry{}
	}
	m.st.queueVersion++
	m.st.shuffle = tl.Shuffle
	m.st.repeat = tl.Repeat
	m.st.playing = tl.Playing

	active := tl.Current
	n := len(m.st.queue)
	if active < 0 && n > 0 {
		switch {
		case m.pendingRemove >= 0:
			// The active item was removed and the transport stopped: keep the cursor in place.
			active = min(m.pendingRemove, n-1)
		case prevCurrent != nil && prevCurrent.SongID != "":
			active = indexOfSong(m.st.queue, prevCurrent.SongID)
		}
	}
	m.pendingRemove = -1
	m.st.active = active

	if active >= 0 {
		entry := m.st.queue[active]
		if prevCurrent == nil || prevCurrent.SongID != entry.SongID {
			m.st.position = 0
		}
		m.st.current = &entry
		if entry.Duration > 0 {
			m.st.duration = entry.Duration
		}
	} else {
		m.st.current = nil
		m.st.position = 0
		m.st.duration = 0
		if !m.st.playing {
			m.st.phase = PhaseIdle
		}
	}

	log.Debug().Int("items", n).Int("active", active).Msg("Queue resynced")
}

// enrich fills display fields from the catalog. Runs off the owner goroutine.
func (m *Machine) enrich(entries []session.Entry) {
	for i := range entries {
		e := &entries[i]
		if m.catalog != nil && e.URI != "" {
			t, err := m.catalog.TrackByURI(e.URI)
			switch {
			case err == nil:
				e.TrackID = t.ID
				if e.Title == "" {
					e.Title = t.Title
				}
				if e.Artist == "" {
					e.Artist = t.Artist
				}
				if e.Album == "" {
					e.Album = t.Album
				}
				if e.Duration == 0 {
					e.Duration = t.Duration
				}
				if t.ArtworkRef != "" {
					e.ArtworkRef = t.ArtworkRef
				}
			case !errors.Is(err, catalog.ErrTrackNotFound):
				log.Debug().Err(err).Str("uri", e.URI).Msg("Catalog lookup failed")
			}
		}
		if e.Title == "" {
			e.Title = catalog.BaseName(e.URI)
		}
	}
}

func (m *Machine) setError(err error) {
	m.st.lastErr = err.Error()
	m.st.errorAt = time.Now()
}

func (m *Machine) publish() {
	m.proj.Publish(projector.Snapshot{
		QueueVersion: m.st.queueVersion,
		Current:      m.st.current,
		Active:       m.st.active,
		Queue:        m.st.queue,
		Playing:      m.st.playing,
		Position:     m.st.position,
		Duration:     m.st.duration,
		Shuffle:      m.st.shuffle,
		Repeat:       m.st.repeat,
		Phase:        m.st.phase.String(),
		Connection:   m.st.conn,
		SleepTimer:   m.st.sleep,
		LastError:    m.st.lastErr,
		ErrorAt:      m.st.errorAt,
	})
}

// enqueue hands cmd to the command worker without blocking.
func (m *Machine) enqueue(cmd session.Command) error {
	select {
	case m.jobs <- job{cmd: &cmd}:
		log.Debug().Str("command", cmd.Kind.String()).Str("id", cmd.ID).Msg("Command queued")
		return nil
	default:
		return session.Reject(cmd.Kind, ErrBusy)
	}
}

// recordPlay bumps the play count of the catalog track behind entry.
func (m *Machine) recordPlay(entry session.Entry) {
	if m.catalog == nil {
		return
	}
	uri, id := entry.URI, entry.TrackID
	at := time.Now()
	select {
	case m.jobs <- job{fn: func(context.Context) {
		if id == 0 {
			t, err := m.catalog.TrackByURI(uri)
			if err != nil {
				return
			}
			id = t.ID
		}
		if err := m.catalog.IncrementPlayCount(id, at); err != nil {
			log.Warn().Err(err).Int64("track_id", id).Msg("Failed to record play")
		}
	}}:
	default:
		log.Warn().Str("uri", uri).Msg("Dropping play count update, worker busy")
	}
}

// work issues commands in order. Failures are reported back to the owner.
func (m *Machine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-m.jobs:
			if j.fn != nil {
				j.fn(ctx)
				continue
			}
			cmd := *j.cmd
			if err := m.session.Issue(ctx, cmd); err != nil {
				m.post(func() {
					if cmd.Kind == session.CmdRemoveItem {
						m.pendingRemove = -1
					}
					m.setError(err)
					if errors.Is(err, session.ErrIndexOutOfRange) || errors.Is(err, session.ErrEmptyQueue) {
						// Our view was stale.
						m.triggerResync()
					}
					m.publish()
				})
			}
		}
	}
}

func indexOfSong(entries []session.Entry, songID string) int {
	if songID == "" {
		return -1
	}
	for i, e := range entries {
		if e.SongID == songID {
			return i
		}
	}
	return -1
}
