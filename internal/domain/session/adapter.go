package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
)

// Transport is the playback engine handle driven by the adapter.
// *mpd.Client satisfies it.
type Transport interface {
	Connect() error
	Close() error
	Ping() error
	Status() (map[string]string, error)
	CurrentSong() (map[string]string, error)
	PlaylistInfo() ([]map[string]string, error)
	Play(pos int) error
	Pause(pause bool) error
	Stop() error
	Next() error
	Previous() error
	SeekCur(pos time.Duration) error
	SetRandom(on bool) error
	SetRepeat(on bool) error
	SetSingle(on bool) error
	Move(from, to int) error
	Delete(pos int) error
	Clear() error
	Add(uri string) error
	Command(name string, args ...string) (map[string]string, error)
	Watch(ctx context.Context, subsystems ...string) (<-chan string, <-chan error, error)
}

// Subsystems the adapter listens to.
var watchedSubsystems = []string{"player", "playlist", "options"}

// Options tunes the adapter.
type Options struct {
	PollInterval time.Duration // position pull cadence while playing
	EventBuffer  int
	// ReleaseTimeout bounds how long Release waits for in-flight transport calls.
	ReleaseTimeout time.Duration
}

// DefaultOptions returns the default adapter options.
func DefaultOptions() Options {
	return Options{
		PollInterval:   200 * time.Millisecond,
		EventBuffer:    64,
		ReleaseTimeout: time.Second,
	}
}

// connection holds the per-connection lifecycle.
type connection struct {
	cancel context.CancelFunc
	lost   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup // watcher, poll loop and in-flight pulls
}

func (c *connection) markLost() {
	c.once.Do(func() { close(c.lost) })
}

// Adapter is the sole owner of the transport handle. It turns transport
// notifications into one ordered event stream and validates commands against
// the transport's current queue before sending them. It never keeps queue state
// of its own.
type Adapter struct {
	transport Transport
	opts      Options
	events    chan Event

	mu       sync.Mutex // guards conn and released
	conn     *connection
	released bool

	emitMu       sync.RWMutex // guards eventsClosed against in-flight sends
	eventsClosed bool

	connected  atomic.Bool
	releasing  atomic.Bool
	playing    atomic.Bool
	pulling    atomic.Bool
	stopIssued atomic.Bool
	skipped    atomic.Int64

	releaseOnce sync.Once
}

// NewAdapter creates an adapter over t. It does not connect.
func NewAdapter(t Transport, opts Options) *Adapter {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if opts.ReleaseTimeout <= 0 {
		opts.ReleaseTimeout = def.ReleaseTimeout
	}
	return &Adapter{
		transport: t,
		opts:      opts,
		events:    make(chan Event, opts.EventBuffer),
	}
}

// Events returns the ordered event stream. It is closed by Release.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Connected reports whether a session is currently established.
func (a *Adapter) Connected() bool {
	return a.connected.Load()
}

// SkippedTicks counts poll ticks dropped because the previous pull had not returned.
func (a *Adapter) SkippedTicks() int64 {
	return a.skipped.Load()
}

func (a *Adapter) addr() string {
	if t, ok := a.transport.(interface{ Addr() string }); ok {
		return t.Addr()
	}
	return ""
}

// Connect establishes the session and starts the watcher and poll loop.
// It does not retry; see KeepConnected.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return &ConnectionError{Addr: a.addr(), Err: err}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.released {
		return &ConnectionError{Addr: a.addr(), Err: ErrReleased}
	}
	if a.connected.Load() {
		return nil
	}
	a.stopLocked()

	if err := a.transport.Connect(); err != nil {
		return &ConnectionError{Addr: a.addr(), Err: err}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	subsystems, errs, err := a.transport.Watch(watchCtx, watchedSubsystems...)
	if err != nil {
		cancel()
		a.transport.Close()
		return &ConnectionError{Addr: a.addr(), Err: err}
	}

	c := &connection{cancel: cancel, lost: make(chan struct{})}
	a.conn = c
	a.connected.Store(true)

	c.wg.Add(2)
	go a.watch(watchCtx, c, subsystems, errs)
	go a.poll(watchCtx, c)

	log.Info().Str("addr", a.addr()).Msg("Session connected")
	return nil
}

// Lost returns a channel closed when the current connection drops or the
// adapter is released. Without a connection the channel is already closed.
func (a *Adapter) Lost() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.conn.lost
}

// stopLocked cancels the current connection goroutines and waits for them,
// at most ReleaseTimeout (must hold lock). A goroutine stuck in a transport
// call is abandoned: its context is cancelled, so it emits nothing once the
// call returns.
func (a *Adapter) stopLocked() {
	c := a.conn
	if c == nil {
		return
	}
	a.conn = nil
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.opts.ReleaseTimeout):
		log.Warn().Dur("timeout", a.opts.ReleaseTimeout).Msg("Transport call still in flight, abandoning it")
	}
	c.markLost()
}

// Release stops polling and watching, closes the transport handle and the
// event stream. It returns within about twice ReleaseTimeout even when a
// transport call hangs. Safe to call more than once and from any goroutine.
func (a *Adapter) Release() {
	a.releaseOnce.Do(func() {
		a.releasing.Store(true)

		a.mu.Lock()
		a.released = true
		if a.conn != nil {
			a.conn.cancel()
		}
		// Closing the handle unblocks calls stuck on the connection.
		closed := make(chan error, 1)
		go func() { closed <- a.transport.Close() }()
		a.stopLocked()
		a.mu.Unlock()

		a.connected.Store(false)
		a.playing.Store(false)
		select {
		case err := <-closed:
			if err != nil {
				log.Warn().Err(err).Msg("Failed to close transport")
			}
		case <-time.After(a.opts.ReleaseTimeout):
			log.Warn().Msg("Transport close did not return, leaving it behind")
		}

		a.emitMu.Lock()
		a.eventsClosed = true
		close(a.events)
		a.emitMu.Unlock()
		log.Info().Msg("Session released")
	})
}

// emit delivers ev in order unless the connection is being torn down.
func (a *Adapter) emit(ctx context.Context, ev Event) {
	a.emitMu.RLock()
	defer a.emitMu.RUnlock()

	if a.eventsClosed || ctx.Err() != nil {
		return
	}
	select {
	case a.events <- ev:
	case <-ctx.Done():
	}
}

// watch serializes transport notifications into events.
func (a *Adapter) watch(ctx context.Context, c *connection, subsystems <-chan string, errs <-chan error) {
	defer c.wg.Done()

	a.emit(ctx, Event{Kind: EventConnected})
	last := a.refresh(ctx, playerStatus{}, true)

	for {
		select {
		case <-ctx.Done():
			return
		case name, ok := <-subsystems:
			if !ok {
				a.markLost(ctx, c, errors.New("watcher closed"))
				return
			}
			log.Debug().Str("subsystem", name).Msg("Transport notification")
			if name == "playlist" {
				a.emit(ctx, Event{Kind: EventTimelineChanged})
			}
			last = a.refresh(ctx, last, false)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if perr := a.transport.Ping(); perr != nil {
				a.markLost(ctx, c, err)
				return
			}
		}
	}
}

func (a *Adapter) markLost(ctx context.Context, c *connection, cause error) {
	if ctx.Err() != nil {
		return
	}
	log.Warn().Err(cause).Msg("Session lost")
	a.connected.Store(false)
	a.playing.Store(false)
	a.emit(ctx, Event{Kind: EventDisconnected, Err: &ConnectionError{Addr: a.addr(), Err: cause}})
	c.markLost()
}

// refresh reads the transport status and emits the events implied by the
// difference from prev. With initial set every field is reported.
func (a *Adapter) refresh(ctx context.Context, prev playerStatus, initial bool) playerStatus {
	status, err := a.transport.Status()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read transport status")
		return prev
	}
	cur := parseStatus(status)

	if cur.songID != "" && (initial || cur.songID != prev.songID) {
		song, err := a.transport.CurrentSong()
		if err != nil {
			log.Warn().Err(err).Msg("Failed to read current song")
			song = map[string]string{}
		}
		entry := entryFromSong(song)
		if entry.SongID == "" {
			entry.SongID = cur.songID
		}
		if entry.Duration == 0 {
			entry.Duration = cur.duration
		}
		a.emit(ctx, Event{Kind: EventItemTransitioned, Entry: entry, Index: cur.index, Initial: initial})
	}

	if initial || cur.playing() != prev.playing() {
		a.playing.Store(cur.playing())
		a.emit(ctx, Event{Kind: EventIsPlayingChanged, Playing: cur.playing(), Initial: initial})
	}

	if initial || cur.shuffle != prev.shuffle || cur.repeat != prev.repeat {
		a.emit(ctx, Event{Kind: EventModeChanged, Shuffle: cur.shuffle, Repeat: cur.repeat, Initial: initial})
	}

	if !initial && prev.active() && cur.state == stateStop {
		if a.stopIssued.Swap(false) {
			a.emit(ctx, Event{Kind: EventStopped})
		} else {
			a.emit(ctx, Event{Kind: EventCompleted})
		}
	}

	a.emit(ctx, Event{
		Kind:     EventProgress,
		Entry:    Entry{SongID: cur.songID},
		Position: cur.position,
		Duration: cur.duration,
	})
	return cur
}

// poll pulls position and duration while playing.
func (a *Adapter) poll(ctx context.Context, c *connection) {
	defer c.wg.Done()

	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(ctx, c)
		}
	}
}

func (a *Adapter) tick(ctx context.Context, c *connection) {
	if a.releasing.Load() || !a.connected.Load() || !a.playing.Load() {
		return
	}
	if !a.pulling.CompareAndSwap(false, true) {
		a.skipped.Add(1)
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer a.pulling.Store(false)

		status, err := a.transport.Status()
		if err != nil {
			log.Debug().Err(err).Msg("Progress poll failed")
			return
		}
		if a.releasing.Load() || ctx.Err() != nil {
			return
		}
		st := parseStatus(status)
		if !st.playing() {
			// The watcher reports the state change.
			return
		}
		a.emit(ctx, Event{
			Kind:     EventProgress,
			Entry:    Entry{SongID: st.songID},
			Position: st.position,
			Duration: st.duration,
		})
	}()
}

// Issue validates cmd against the transport's current queue and sends it.
// Invalid commands return *CommandRejected and never reach the transport.
func (a *Adapter) Issue(ctx context.Context, cmd Command) error {
	if err := ctx.Err(); err != nil {
		return Reject(cmd.Kind, err)
	}
	if a.releasing.Load() || !a.connected.Load() {
		return Reject(cmd.Kind, ErrNoSession)
	}

	logger := log.With().Str("command", cmd.Kind.String()).Str("id", cmd.ID).Logger()
	logger.Debug().Msg("Issuing transport command")

	if err := a.issue(cmd); err != nil {
		var rejected *CommandRejected
		if !errors.As(err, &rejected) {
			err = fmt.Errorf("%s: %w", cmd.Kind, err)
		}
		logger.Warn().Err(err).Msg("Transport command failed")
		return err
	}
	return nil
}

func (a *Adapter) status() (playerStatus, error) {
	status, err := a.transport.Status()
	if err != nil {
		return playerStatus{}, err
	}
	return parseStatus(status), nil
}

// checkIndex validates i against the transport queue length.
func checkIndex(kind CommandKind, length int, indices ...int) error {
	if length == 0 {
		return Reject(kind, ErrEmptyQueue)
	}
	for _, i := range indices {
		if i < 0 || i >= length {
			return Reject(kind, ErrIndexOutOfRange)
		}
	}
	return nil
}

func (a *Adapter) issue(cmd Command) error {
	switch cmd.Kind {
	case CmdPlay:
		if len(cmd.URIs) == 0 {
			return Reject(cmd.Kind, ErrEmptyList)
		}
		if cmd.Index < 0 || cmd.Index >= len(cmd.URIs) {
			return Reject(cmd.Kind, ErrIndexOutOfRange)
		}
		a.stopIssued.Store(false)
		if err := a.transport.Clear(); err != nil {
			return err
		}
		for _, uri := range cmd.URIs {
			if err := a.transport.Add(uri); err != nil {
				return err
			}
		}
		return a.transport.Play(cmd.Index)

	case CmdAppend:
		if len(cmd.URIs) == 0 {
			return Reject(cmd.Kind, ErrEmptyList)
		}
		for _, uri := range cmd.URIs {
			if err := a.transport.Add(uri); err != nil {
				return err
			}
		}
		return nil

	case CmdPause:
		return a.transport.Pause(true)

	case CmdResume:
		st, err := a.status()
		if err != nil {
			return err
		}
		if st.length == 0 {
			return Reject(cmd.Kind, ErrEmptyQueue)
		}
		a.stopIssued.Store(false)
		if st.state == stateStop {
			return a.transport.Play(-1)
		}
		return a.transport.Pause(false)

	case CmdStop:
		a.stopIssued.Store(true)
		if err := a.transport.Stop(); err != nil {
			a.stopIssued.Store(false)
			return err
		}
		return a.transport.Clear()

	case CmdNext, CmdPrevious:
		st, err := a.status()
		if err != nil {
			return err
		}
		if st.length == 0 {
			return Reject(cmd.Kind, ErrEmptyQueue)
		}
		a.stopIssued.Store(false)
		if cmd.Kind == CmdNext {
			return a.transport.Next()
		}
		return a.transport.Previous()

	case CmdSeekTo:
		if math.IsNaN(cmd.Fraction) || cmd.Fraction < 0 || cmd.Fraction > 1 {
			return Reject(cmd.Kind, ErrInvalidFraction)
		}
		st, err := a.status()
		if err != nil {
			return err
		}
		if st.songID == "" || st.duration <= 0 {
			return Reject(cmd.Kind, ErrNoActiveTrack)
		}
		pos := time.Duration(cmd.Fraction*float64(st.duration)) * time.Millisecond
		return a.transport.SeekCur(pos)

	case CmdSetShuffle:
		return a.transport.SetRandom(cmd.Enabled)

	case CmdSetRepeat:
		repeat, single := repeatFlags(cmd.Repeat)
		if err := a.transport.SetRepeat(repeat); err != nil {
			return err
		}
		return a.transport.SetSingle(single)

	case CmdMoveItem:
		st, err := a.status()
		if err != nil {
			return err
		}
		if err := checkIndex(cmd.Kind, st.length, cmd.From, cmd.To); err != nil {
			return err
		}
		if cmd.From == cmd.To {
			return nil
		}
		return a.transport.Move(cmd.From, cmd.To)

	case CmdRemoveItem:
		st, err := a.status()
		if err != nil {
			return err
		}
		if err := checkIndex(cmd.Kind, st.length, cmd.Index); err != nil {
			return err
		}
		return a.transport.Delete(cmd.Index)

	case CmdPlayAt:
		st, err := a.status()
		if err != nil {
			return err
		}
		if err := checkIndex(cmd.Kind, st.length, cmd.Index); err != nil {
			return err
		}
		a.stopIssued.Store(false)
		return a.transport.Play(cmd.Index)

	default:
		return Reject(cmd.Kind, fmt.Errorf("unsupported command"))
	}
}

// Passthrough relays an opaque request to the transport and returns its
// response without interpreting either.
func (a *Adapter) Passthrough(ctx context.Context, name string, args ...string) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, Reject(CmdPassthrough, err)
	}
	if a.releasing.Load() || !a.connected.Load() {
		return nil, Reject(CmdPassthrough, ErrNoSession)
	}

	log.Debug().Str("name", name).Strs("args", args).Msg("Passthrough")
	resp, err := a.transport.Command(name, args...)
	if err != nil {
		return nil, fmt.Errorf("passthrough %s: %w", name, err)
	}
	if resp == nil {
		resp = map[string]string{}
	}
	return resp, nil
}

// Timeline pulls the full transport queue and the current index.
func (a *Adapter) Timeline(ctx context.Context) (Timeline, error) {
	if err := ctx.Err(); err != nil {
		return Timeline{}, &ResyncFailure{Err: err}
	}
	if a.releasing.Load() || !a.connected.Load() {
		return Timeline{}, &ResyncFailure{Err: ErrNoSession}
	}

	items, err := a.transport.PlaylistInfo()
	if err != nil {
		return Timeline{}, &ResyncFailure{Err: fmt.Errorf("playlistinfo: %w", err)}
	}
	st, err := a.status()
	if err != nil {
		return Timeline{}, &ResyncFailure{Err: fmt.Errorf("status: %w", err)}
	}

	tl := Timeline{
		Entries: make([]Entry, len(items)),
		Current: -1,
		Playing: st.playing(),
		Shuffle: st.shuffle,
		Repeat:  st.repeat,
	}
	for i, item := range items {
		tl.Entries[i] = entryFromSong(item)
	}
	if st.index >= 0 && st.index < len(tl.Entries) {
		tl.Current = st.index
	}
	return tl, nil
}
