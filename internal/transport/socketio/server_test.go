package socketio

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
)

type fakeController struct {
	mu    sync.Mutex
	calls []string
	err   error
	snap  *projector.Snapshot
	panic bool
}

func (c *fakeController) record(format string, args ...any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panic {
		panic("boom")
	}
	c.calls = append(c.calls, fmt.Sprintf(format, args...))
	return c.err
}

func (c *fakeController) recorded() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.calls...)
}

func (c *fakeController) Snapshot() *projector.Snapshot {
	if c.snap != nil {
		return c.snap
	}
	return &projector.Snapshot{Active: -1}
}

func (c *fakeController) Play(track catalog.Track, fromList []catalog.Track) error {
	ids := make([]int64, len(fromList))
	for i, t := range fromList {
		ids[i] = t.ID
	}
	return c.record("play %d %v", track.ID, ids)
}

func (c *fakeController) PlayAt(index int) error       { return c.record("playAt %d", index) }
func (c *fakeController) Pause() error                 { return c.record("pause") }
func (c *fakeController) Resume() error                { return c.record("resume") }
func (c *fakeController) Toggle() error                { return c.record("toggle") }
func (c *fakeController) Stop() error                  { return c.record("stop") }
func (c *fakeController) Next() error                  { return c.record("next") }
func (c *fakeController) Previous() error              { return c.record("previous") }
func (c *fakeController) SeekTo(f float64) error       { return c.record("seek %.2f", f) }
func (c *fakeController) SetShuffle(on bool) error     { return c.record("shuffle %t", on) }
func (c *fakeController) MoveQueueItem(f, t int) error { return c.record("move %d %d", f, t) }
func (c *fakeController) RemoveQueueItem(i int) error  { return c.record("remove %d", i) }

func (c *fakeController) SetRepeat(mode session.RepeatMode) error {
	return c.record("repeat %s", mode)
}

func (c *fakeController) Append(tracks []catalog.Track) error {
	return c.record("append %d", len(tracks))
}

func (c *fakeController) Passthrough(_ context.Context, name string, args ...string) (map[string]string, error) {
	if err := c.record("passthrough %s %v", name, args); err != nil {
		return nil, err
	}
	return map[string]string{"volume": "40"}, nil
}

type fakeLibrary struct {
	tracks    map[int64]catalog.Track
	favorites map[int64]bool
	queries   []catalog.Filter
}

func newFakeLibrary(ids ...int64) *fakeLibrary {
	l := &fakeLibrary{tracks: map[int64]catalog.Track{}, favorites: map[int64]bool{}}
	for _, id := range ids {
		l.tracks[id] = catalog.Track{ID: id, URI: fmt.Sprintf("music/%d.flac", id)}
	}
	return l
}

func (l *fakeLibrary) TrackByID(id int64) (*catalog.Track, error) {
	t, ok := l.tracks[id]
	if !ok {
		return nil, catalog.ErrTrackNotFound
	}
	return &t, nil
}

func (l *fakeLibrary) TracksByIDs(ids []int64) ([]catalog.Track, error) {
	var out []catalog.Track
	for _, id := range ids {
		if t, ok := l.tracks[id]; ok {
			out = append(out, t)
		}
	}
	return out, nil
}

func (l *fakeLibrary) Query(f catalog.Filter) ([]catalog.Track, error) {
	l.queries = append(l.queries, f)
	var all []catalog.Track
	for id := int64(1); id <= int64(len(l.tracks)); id++ {
		all = append(all, l.tracks[id])
	}
	return f.Apply(all), nil
}

func (l *fakeLibrary) ToggleFavorite(id int64) (bool, error) {
	if _, ok := l.tracks[id]; !ok {
		return false, catalog.ErrTrackNotFound
	}
	l.favorites[id] = !l.favorites[id]
	return l.favorites[id], nil
}

type fakeSleep struct {
	status sleeptimer.Status
}

func (s *fakeSleep) Start(d time.Duration) sleeptimer.Status {
	s.status = sleeptimer.Status{Active: true, Minutes: int(d / time.Minute), Remaining: d.Milliseconds()}
	return s.status
}

func (s *fakeSleep) Cancel() bool {
	was := s.status.Active
	s.status = sleeptimer.Status{}
	return was
}

func (s *fakeSleep) Status() sleeptimer.Status { return s.status }

type fixture struct {
	srv   *Server
	ctrl  *fakeController
	lib   *fakeLibrary
	sleep *fakeSleep
	proj  *projector.Projector
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctrl:  &fakeController{},
		lib:   newFakeLibrary(1, 2, 3),
		sleep: &fakeSleep{},
		proj:  projector.New(),
	}
	srv, err := NewServer(f.ctrl, f.proj, f.lib, f.sleep, Options{BroadcastWindow: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	f.srv = srv
	return f
}

func TestNewServerRequiresDependencies(t *testing.T) {
	proj := projector.New()
	if _, err := NewServer(nil, proj, newFakeLibrary(), &fakeSleep{}, Options{}); err == nil {
		t.Error("expected error without controller")
	}
	if _, err := NewServer(&fakeController{}, nil, newFakeLibrary(), &fakeSleep{}, Options{}); err == nil {
		t.Error("expected error without projector")
	}
	if _, err := NewServer(&fakeController{}, proj, nil, &fakeSleep{}, Options{}); err == nil {
		t.Error("expected error without library")
	}
	if _, err := NewServer(&fakeController{}, proj, newFakeLibrary(), nil, Options{}); err == nil {
		t.Error("expected error without sleep timer")
	}
}

func TestServerBroadcastWithoutClients(t *testing.T) {
	f := newFixture(t)

	f.srv.Broadcast(f.srv.ctrl.Snapshot(), ChangeState|ChangeQueue)

	if got := f.srv.ClientCount(); got != 0 {
		t.Errorf("ClientCount() = %d, want 0", got)
	}
}

func TestDispatchTransportIntents(t *testing.T) {
	tests := []struct {
		name    string
		intent  string
		payload any
		want    string
	}{
		{"pause", "pause", nil, "pause"},
		{"resume", "resume", nil, "resume"},
		{"toggle", "toggle", nil, "toggle"},
		{"stop", "stop", nil, "stop"},
		{"next", "next", nil, "next"},
		{"previous", "prev", nil, "previous"},
		{"play at index", "playAt", map[string]interface{}{"index": float64(2)}, "playAt 2"},
		{"play at bare value", "playAt", float64(1), "playAt 1"},
		{"seek fraction", "seek", map[string]interface{}{"fraction": 0.5}, "seek 0.50"},
		{"seek bare value", "seek", 0.25, "seek 0.25"},
		{"shuffle", "setRandom", true, "shuffle true"},
		{"repeat by mode", "setRepeat", map[string]interface{}{"mode": "one"}, "repeat one"},
		{"repeat all legacy", "setRepeat", map[string]interface{}{"value": true}, "repeat all"},
		{"repeat single legacy", "setRepeat", map[string]interface{}{"value": true, "repeatSingle": true}, "repeat one"},
		{"repeat off legacy", "setRepeat", false, "repeat off"},
		{"move", "moveQueue", map[string]interface{}{"from": float64(0), "to": float64(2)}, "move 0 2"},
		{"move missing fields", "moveQueue", map[string]interface{}{}, "move -1 -1"},
		{"remove", "removeFromQueue", map[string]interface{}{"index": float64(1)}, "remove 1"},
		{"append", "appendToQueue", map[string]interface{}{"trackIds": []interface{}{float64(1), float64(3)}}, "append 2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			var args []any
			if tt.payload != nil {
				args = append(args, tt.payload)
			}
			if _, err := f.srv.dispatch(context.Background(), tt.intent, args...); err != nil {
				t.Fatalf("dispatch(%s) failed: %v", tt.intent, err)
			}
			if got := f.ctrl.recorded(); !reflect.DeepEqual(got, []string{tt.want}) {
				t.Errorf("calls = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestDispatchPlay(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		want    string
	}{
		{
			name:    "track from explicit list",
			payload: map[string]interface{}{"trackId": float64(2), "trackIds": []interface{}{float64(3), float64(2), float64(1)}},
			want:    "play 2 [3 2 1]",
		},
		{
			name:    "first of list without track",
			payload: map[string]interface{}{"trackIds": []interface{}{float64(3), float64(1)}},
			want:    "play 3 [3 1]",
		},
		{
			name:    "track alone",
			payload: map[string]interface{}{"trackId": float64(1)},
			want:    "play 1 [1]",
		},
		{
			name:    "track within filter",
			payload: map[string]interface{}{"trackId": float64(3), "filter": map[string]interface{}{"kind": "all"}},
			want:    "play 3 [1 2 3]",
		},
		{
			name:    "nothing to play",
			payload: map[string]interface{}{},
			want:    "play 0 []",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if _, err := f.srv.dispatch(context.Background(), "play", tt.payload); err != nil {
				t.Fatalf("dispatch(play) failed: %v", err)
			}
			if got := f.ctrl.recorded(); !reflect.DeepEqual(got, []string{tt.want}) {
				t.Errorf("calls = %v, want [%s]", got, tt.want)
			}
		})
	}
}

func TestDispatchPlayUnknownTrack(t *testing.T) {
	f := newFixture(t)

	_, err := f.srv.dispatch(context.Background(), "play", map[string]interface{}{"trackId": float64(99)})
	if !errors.Is(err, catalog.ErrTrackNotFound) {
		t.Errorf("expected ErrTrackNotFound, got %v", err)
	}
	if got := f.ctrl.recorded(); len(got) != 0 {
		t.Errorf("controller should not be called, got %v", got)
	}
}

func TestDispatchRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		intent  string
		payload any
	}{
		{"seek", map[string]interface{}{}},
		{"setRandom", "yes"},
		{"setRepeat", map[string]interface{}{}},
		{"toggleFavorite", map[string]interface{}{}},
		{"setSleepTimer", map[string]interface{}{"minutes": float64(-5)}},
		{"passthrough", map[string]interface{}{"args": []interface{}{"1"}}},
		{"play", map[string]interface{}{"filter": "favorites"}},
	}

	for _, tt := range tests {
		t.Run(tt.intent, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.srv.dispatch(context.Background(), tt.intent, tt.payload)
			if !errors.Is(err, errBadPayload) {
				t.Errorf("expected errBadPayload, got %v", err)
			}
			if got := f.ctrl.recorded(); len(got) != 0 {
				t.Errorf("controller should not be called, got %v", got)
			}
		})
	}
}

func TestDispatchUnknownIntent(t *testing.T) {
	f := newFixture(t)

	if _, err := f.srv.dispatch(context.Background(), "shutdown"); err == nil {
		t.Error("expected error for unknown intent")
	}
}

func TestDispatchSurfacesControllerError(t *testing.T) {
	f := newFixture(t)
	f.ctrl.err = session.Reject(session.CmdNext, session.ErrEmptyQueue)

	_, err := f.srv.dispatch(context.Background(), "next")
	if !errors.Is(err, session.ErrEmptyQueue) {
		t.Errorf("expected ErrEmptyQueue, got %v", err)
	}
	toast := errorToast("next", err)
	if toast.Type != "error" || toast.Message != err.Error() {
		t.Errorf("unexpected toast %+v", toast)
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.ctrl.panic = true

	r, err := f.srv.dispatch(context.Background(), "pause")
	if err == nil {
		t.Error("expected error after panic")
	}
	if r != nil {
		t.Errorf("expected no reply after panic, got %+v", r)
	}
}

func TestDispatchReplies(t *testing.T) {
	f := newFixture(t)
	f.ctrl.snap = &projector.Snapshot{
		Active:  0,
		Queue:   []session.Entry{{URI: "music/1.flac", Title: "One"}},
		Current: &session.Entry{URI: "music/1.flac", Title: "One"},
		Playing: true,
	}

	r, err := f.srv.dispatch(context.Background(), "getState")
	if err != nil || r.event != "pushState" {
		t.Fatalf("getState: %+v %v", r, err)
	}
	if state := r.payload.(map[string]interface{}); state["title"] != "One" || state["status"] != StatusPlay {
		t.Errorf("unexpected state %v", state)
	}

	r, err = f.srv.dispatch(context.Background(), "getQueue")
	if err != nil || r.event != "pushQueue" {
		t.Fatalf("getQueue: %+v %v", r, err)
	}
	if q := r.payload.([]map[string]interface{}); len(q) != 1 || q[0]["active"] != true {
		t.Errorf("unexpected queue %v", q)
	}

	r, err = f.srv.dispatch(context.Background(), "toggleFavorite", map[string]interface{}{"trackId": float64(2)})
	if err != nil || r.event != "pushFavorite" {
		t.Fatalf("toggleFavorite: %+v %v", r, err)
	}
	if fav := r.payload.(map[string]interface{}); fav["favorite"] != true || fav["trackId"] != int64(2) {
		t.Errorf("unexpected favorite reply %v", fav)
	}

	r, err = f.srv.dispatch(context.Background(), "browse", map[string]interface{}{
		"filter": map[string]interface{}{"kind": "favorites"},
	})
	if err != nil || r.event != "pushBrowse" {
		t.Fatalf("browse: %+v %v", r, err)
	}
	if f.lib.queries[0].Kind != catalog.FilterFavorites {
		t.Errorf("browse should query favorites, got %+v", f.lib.queries[0])
	}

	r, err = f.srv.dispatch(context.Background(), "browse")
	if err != nil {
		t.Fatalf("browse without filter: %v", err)
	}
	if f.lib.queries[1].Kind != catalog.FilterAll {
		t.Errorf("browse without filter should list all, got %+v", f.lib.queries[1])
	}
	if tracks := r.payload.(map[string]interface{})["tracks"].([]catalog.Track); len(tracks) != 3 {
		t.Errorf("expected 3 tracks, got %d", len(tracks))
	}
}

func TestDispatchSleepTimer(t *testing.T) {
	f := newFixture(t)

	r, err := f.srv.dispatch(context.Background(), "setSleepTimer", map[string]interface{}{"minutes": float64(15)})
	if err != nil {
		t.Fatalf("setSleepTimer failed: %v", err)
	}
	st := r.payload.(sleeptimer.Status)
	if r.event != "pushSleepTimer" || !st.Active || st.Minutes != 15 {
		t.Errorf("unexpected reply %+v", r)
	}

	r, err = f.srv.dispatch(context.Background(), "cancelSleepTimer")
	if err != nil {
		t.Fatalf("cancelSleepTimer failed: %v", err)
	}
	if st := r.payload.(sleeptimer.Status); st.Active {
		t.Errorf("timer should be inactive after cancel, got %+v", st)
	}
}

func TestDispatchPassthrough(t *testing.T) {
	f := newFixture(t)

	r, err := f.srv.dispatch(context.Background(), "passthrough", map[string]interface{}{
		"command": "setvol",
		"args":    []interface{}{float64(40)},
	})
	if err != nil {
		t.Fatalf("passthrough failed: %v", err)
	}
	if got := f.ctrl.recorded(); !reflect.DeepEqual(got, []string{"passthrough setvol [40]"}) {
		t.Errorf("calls = %v", got)
	}
	resp := r.payload.(map[string]interface{})["response"].(map[string]string)
	if resp["volume"] != "40" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestObserveSchedulesQueueBroadcastOnQueueVersion(t *testing.T) {
	f := newFixture(t)

	var states, queues atomic.Int32
	f.srv.debouncer.Stop()
	f.srv.debouncer = NewBroadcastDebouncer(10*time.Millisecond, func(_ *projector.Snapshot, c Change) {
		if c&ChangeState != 0 {
			states.Add(1)
		}
		if c&ChangeQueue != 0 {
			queues.Add(1)
		}
	})

	f.srv.observe(&projector.Snapshot{QueueVersion: 1})
	time.Sleep(40 * time.Millisecond)
	if states.Load() != 1 || queues.Load() != 1 {
		t.Errorf("first snapshot: states=%d queues=%d, want 1/1", states.Load(), queues.Load())
	}

	f.srv.observe(&projector.Snapshot{QueueVersion: 1, Position: 1000})
	time.Sleep(40 * time.Millisecond)
	if states.Load() != 2 || queues.Load() != 1 {
		t.Errorf("position change: states=%d queues=%d, want 2/1", states.Load(), queues.Load())
	}

	f.srv.observe(&projector.Snapshot{QueueVersion: 2})
	time.Sleep(40 * time.Millisecond)
	if states.Load() != 3 || queues.Load() != 2 {
		t.Errorf("queue change: states=%d queues=%d, want 3/2", states.Load(), queues.Load())
	}
}

func TestObserveTracksErrors(t *testing.T) {
	f := newFixture(t)
	at := time.Now()

	f.srv.observe(&projector.Snapshot{LastError: "connection refused", ErrorAt: at})
	if !f.srv.lastErrorAt.Equal(at) {
		t.Errorf("lastErrorAt = %v, want %v", f.srv.lastErrorAt, at)
	}

	f.srv.observe(&projector.Snapshot{LastError: "connection refused", ErrorAt: at.Add(-time.Second)})
	if !f.srv.lastErrorAt.Equal(at) {
		t.Error("older error must not replace the latest")
	}
}

func TestRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.srv.Run(ctx)
		close(done)
	}()

	f.proj.Publish(projector.Snapshot{Active: -1, QueueVersion: 1})
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
