// Package sessiontest provides an in-memory transport that behaves like MPD
// for tests of the session adapter and the queue machine.
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNotConnected is returned by every call made while disconnected.
var ErrNotConnected = errors.New("not connected")

// Song is one queued item.
type Song struct {
	ID       int
	URI      string
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
}

// Transport is a fake MPD. All methods are safe for concurrent use.
type Transport struct {
	mu        sync.Mutex
	connected bool
	queue     []Song
	current   int
	state     string
	elapsed   time.Duration
	random    bool
	repeat    bool
	single    bool
	nextID    int
	library   map[string]Song
	calls     []string
	watchers  []*watcher

	connectErr   error
	playlistHook func()
	statusHook   func()
	commandFunc  func(name string, args ...string) (map[string]string, error)

	statusCalls   atomic.Int64
	playlistCalls atomic.Int64
}

type watcher struct {
	ch     chan string
	errCh  chan error
	done   chan struct{}
	closed bool
}

// New creates a stopped fake with an empty queue.
func New() *Transport {
	return &Transport{
		current: -1,
		state:   "stop",
		nextID:  1,
		library: make(map[string]Song),
	}
}

// AddLibrary registers tag data returned for a URI when it is queued.
func (t *Transport) AddLibrary(songs ...Song) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range songs {
		t.library[s.URI] = s
	}
}

// SetConnectErr makes Connect fail while err is non-nil.
func (t *Transport) SetConnectErr(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connectErr = err
}

// SetStatusHook installs fn to run at the start of every Status call, outside the lock.
func (t *Transport) SetStatusHook(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.statusHook = fn
}

// SetPlaylistHook installs fn to run at the start of every PlaylistInfo call, outside the lock.
func (t *Transport) SetPlaylistHook(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playlistHook = fn
}

// SetCommandFunc installs the responder for passthrough commands.
func (t *Transport) SetCommandFunc(fn func(name string, args ...string) (map[string]string, error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.commandFunc = fn
}

func (t *Transport) hook(get func() func()) {
	t.mu.Lock()
	fn := get()
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Calls returns the mutating commands received, in order.
func (t *Transport) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// ResetCalls clears the recorded commands.
func (t *Transport) ResetCalls() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = nil
}

// StatusCalls counts Status calls.
func (t *Transport) StatusCalls() int64 { return t.statusCalls.Load() }

// PlaylistCalls counts PlaylistInfo calls.
func (t *Transport) PlaylistCalls() int64 { return t.playlistCalls.Load() }

// URIs returns the queued URIs.
func (t *Transport) URIs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.queue))
	for i, s := range t.queue {
		out[i] = s.URI
	}
	return out
}

// Current returns the current index and state.
func (t *Transport) Current() (int, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.state
}

func (t *Transport) record(call string) {
	t.calls = append(t.calls, call)
}

// notify is called with the lock held and collects subsystems for delivery.
func (t *Transport) notify(subsystems ...string) func() {
	watchers := append([]*watcher(nil), t.watchers...)
	return func() {
		for _, w := range watchers {
			for _, s := range subsystems {
				select {
				case w.ch <- s:
				case <-w.done:
				}
			}
		}
	}
}

// Connect marks the fake connected.
func (t *Transport) Connect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

// Close disconnects and stops all watchers.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closeWatchersLocked()
	return nil
}

// Drop simulates the server going away: watchers close and calls fail.
func (t *Transport) Drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.closeWatchersLocked()
}

func (t *Transport) closeWatchersLocked() {
	for _, w := range t.watchers {
		if !w.closed {
			w.closed = true
			close(w.done)
		}
	}
	t.watchers = nil
}

// Ping fails while disconnected.
func (t *Transport) Ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	return nil
}

// Watch delivers subsystem notifications until ctx is done or the fake drops.
func (t *Transport) Watch(ctx context.Context, subsystems ...string) (<-chan string, <-chan error, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, nil, ErrNotConnected
	}
	w := &watcher{
		ch:    make(chan string, 64),
		errCh: make(chan error),
		done:  make(chan struct{}),
	}
	t.watchers = append(t.watchers, w)
	t.mu.Unlock()

	wanted := make(map[string]bool, len(subsystems))
	for _, s := range subsystems {
		wanted[s] = true
	}

	out := make(chan string, 64)
	errOut := make(chan error)
	go func() {
		defer close(out)
		defer close(errOut)
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.done:
				return
			case s := <-w.ch:
				if len(wanted) > 0 && !wanted[s] {
					continue
				}
				select {
				case out <- s:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, errOut, nil
}

func (t *Transport) songAttrs(i int) map[string]string {
	s := t.queue[i]
	attrs := map[string]string{
		"file":     s.URI,
		"Id":       strconv.Itoa(s.ID),
		"Pos":      strconv.Itoa(i),
		"duration": fmt.Sprintf("%.3f", s.Duration.Seconds()),
	}
	if s.Title != "" {
		attrs["Title"] = s.Title
	}
	if s.Artist != "" {
		attrs["Artist"] = s.Artist
	}
	if s.Album != "" {
		attrs["Album"] = s.Album
	}
	return attrs
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Status returns an MPD style status map.
func (t *Transport) Status() (map[string]string, error) {
	t.statusCalls.Add(1)
	t.hook(func() func() { return t.statusHook })

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, ErrNotConnected
	}

	status := map[string]string{
		"state":          t.state,
		"random":         boolFlag(t.random),
		"repeat":         boolFlag(t.repeat),
		"single":         boolFlag(t.single),
		"playlistlength": strconv.Itoa(len(t.queue)),
	}
	if t.current >= 0 && t.current < len(t.queue) {
		s := t.queue[t.current]
		status["song"] = strconv.Itoa(t.current)
		status["songid"] = strconv.Itoa(s.ID)
		status["elapsed"] = fmt.Sprintf("%.3f", t.elapsed.Seconds())
		status["duration"] = fmt.Sprintf("%.3f", s.Duration.Seconds())
	}
	return status, nil
}

// CurrentSong returns the current song or an empty map.
func (t *Transport) CurrentSong() (map[string]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, ErrNotConnected
	}
	if t.current < 0 || t.current >= len(t.queue) {
		return map[string]string{}, nil
	}
	return t.songAttrs(t.current), nil
}

// PlaylistInfo returns the queue.
func (t *Transport) PlaylistInfo() ([]map[string]string, error) {
	t.playlistCalls.Add(1)
	t.hook(func() func() { return t.playlistHook })

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return nil, ErrNotConnected
	}
	out := make([]map[string]string, len(t.queue))
	for i := range t.queue {
		out[i] = t.songAttrs(i)
	}
	return out, nil
}

// mutate runs fn under the lock and delivers the notifications it returns.
func (t *Transport) mutate(call string, fn func() ([]string, error)) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	subsystems, err := fn()
	if err != nil {
		t.mu.Unlock()
		return err
	}
	t.record(call)
	deliver := t.notify(subsystems...)
	t.mu.Unlock()
	deliver()
	return nil
}

func (t *Transport) Play(pos int) error {
	return t.mutate(fmt.Sprintf("play %d", pos), func() ([]string, error) {
		if pos < 0 {
			pos = t.current
			if pos < 0 {
				pos = 0
			}
		}
		if pos >= len(t.queue) {
			return nil, fmt.Errorf("Bad song index")
		}
		t.current = pos
		t.state = "play"
		t.elapsed = 0
		return []string{"player"}, nil
	})
}

func (t *Transport) Pause(pause bool) error {
	return t.mutate(fmt.Sprintf("pause %s", boolFlag(pause)), func() ([]string, error) {
		if t.state == "stop" {
			return nil, nil
		}
		if pause {
			t.state = "pause"
		} else {
			t.state = "play"
		}
		return []string{"player"}, nil
	})
}

func (t *Transport) Stop() error {
	return t.mutate("stop", func() ([]string, error) {
		t.state = "stop"
		t.elapsed = 0
		return []string{"player"}, nil
	})
}

func (t *Transport) Next() error {
	return t.mutate("next", func() ([]string, error) {
		if t.state == "stop" || t.current < 0 {
			return nil, nil
		}
		t.advanceLocked()
		return []string{"player"}, nil
	})
}

func (t *Transport) Previous() error {
	return t.mutate("previous", func() ([]string, error) {
		if t.state == "stop" || t.current < 0 {
			return nil, nil
		}
		if t.current > 0 {
			t.current--
		}
		t.elapsed = 0
		return []string{"player"}, nil
	})
}

func (t *Transport) SeekCur(pos time.Duration) error {
	return t.mutate(fmt.Sprintf("seekcur %.3f", pos.Seconds()), func() ([]string, error) {
		if t.current < 0 {
			return nil, fmt.Errorf("Not playing")
		}
		t.elapsed = pos
		return []string{"player"}, nil
	})
}

func (t *Transport) SetRandom(on bool) error {
	return t.mutate("random "+boolFlag(on), func() ([]string, error) {
		t.random = on
		return []string{"options"}, nil
	})
}

func (t *Transport) SetRepeat(on bool) error {
	return t.mutate("repeat "+boolFlag(on), func() ([]string, error) {
		t.repeat = on
		return []string{"options"}, nil
	})
}

func (t *Transport) SetSingle(on bool) error {
	return t.mutate("single "+boolFlag(on), func() ([]string, error) {
		t.single = on
		return []string{"options"}, nil
	})
}

func (t *Transport) Move(from, to int) error {
	return t.mutate(fmt.Sprintf("move %d %d", from, to), func() ([]string, error) {
		if from < 0 || from >= len(t.queue) || to < 0 || to >= len(t.queue) {
			return nil, fmt.Errorf("Bad song index")
		}
		var currentID int
		if t.current >= 0 {
			currentID = t.queue[t.current].ID
		}
		s := t.queue[from]
		q := append(t.queue[:from:from], t.queue[from+1:]...)
		q = append(q[:to], append([]Song{s}, q[to:]...)...)
		t.queue = q
		if t.current >= 0 {
			for i, song := range t.queue {
				if song.ID == currentID {
					t.current = i
				}
			}
		}
		return []string{"playlist"}, nil
	})
}

func (t *Transport) Delete(pos int) error {
	return t.mutate(fmt.Sprintf("delete %d", pos), func() ([]string, error) {
		if pos < 0 || pos >= len(t.queue) {
			return nil, fmt.Errorf("Bad song index")
		}
		t.queue = append(t.queue[:pos:pos], t.queue[pos+1:]...)
		subsystems := []string{"playlist"}
		switch {
		case t.current < 0:
		case pos < t.current:
			t.current--
		case pos == t.current:
			// The following song takes over; deleting the last one stops playback.
			t.elapsed = 0
			if pos >= len(t.queue) {
				t.current = -1
				t.state = "stop"
			}
			subsystems = append(subsystems, "player")
		}
		return subsystems, nil
	})
}

func (t *Transport) Clear() error {
	return t.mutate("clear", func() ([]string, error) {
		t.queue = nil
		t.current = -1
		t.elapsed = 0
		subsystems := []string{"playlist"}
		if t.state != "stop" {
			t.state = "stop"
			subsystems = append(subsystems, "player")
		}
		return subsystems, nil
	})
}

func (t *Transport) Add(uri string) error {
	return t.mutate("add "+uri, func() ([]string, error) {
		s, ok := t.library[uri]
		if !ok {
			s = Song{URI: uri, Duration: 3 * time.Minute}
		}
		s.ID = t.nextID
		t.nextID++
		t.queue = append(t.queue, s)
		return []string{"playlist"}, nil
	})
}

// Command answers passthrough requests through CommandFunc.
func (t *Transport) Command(name string, args ...string) (map[string]string, error) {
	t.mu.Lock()
	connected := t.connected
	fn := t.commandFunc
	t.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	if fn == nil {
		return nil, fmt.Errorf("unknown command %q", name)
	}
	return fn(name, args...)
}

// Finish simulates the current song ending by itself.
func (t *Transport) Finish() {
	t.mu.Lock()
	if t.state != "play" {
		t.mu.Unlock()
		return
	}
	t.advanceLocked()
	deliver := t.notify("player")
	t.mu.Unlock()
	deliver()
}

// SetElapsed moves the play position without notifying, like playback does.
func (t *Transport) SetElapsed(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.elapsed = d
}

// Load replaces the queue out of band, as another client would, and notifies.
func (t *Transport) Load(uris ...string) {
	t.mu.Lock()
	t.queue = nil
	for _, uri := range uris {
		s, ok := t.library[uri]
		if !ok {
			s = Song{URI: uri, Duration: 3 * time.Minute}
		}
		s.ID = t.nextID
		t.nextID++
		t.queue = append(t.queue, s)
	}
	t.current = -1
	t.state = "stop"
	deliver := t.notify("playlist", "player")
	t.mu.Unlock()
	deliver()
}

// advanceLocked moves past the current song following MPD's repeat rules.
func (t *Transport) advanceLocked() {
	t.elapsed = 0
	switch {
	case t.repeat && t.single:
	case t.single:
		t.state = "stop"
	case t.current+1 < len(t.queue):
		t.current++
	case t.repeat && len(t.queue) > 0:
		t.current = 0
	default:
		t.current = -1
		t.state = "stop"
	}
}
