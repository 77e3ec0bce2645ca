// Package socketio provides the Socket.io server for client communication.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
)

// Controller is the queue surface driven by client intents. *queue.Machine implements it.
type Controller interface {
	Snapshot() *projector.Snapshot
	Play(track catalog.Track, fromList []catalog.Track) error
	PlayAt(index int) error
	Pause() error
	Resume() error
	Toggle() error
	Stop() error
	Next() error
	Previous() error
	SeekTo(fraction float64) error
	SetShuffle(enabled bool) error
	SetRepeat(mode session.RepeatMode) error
	MoveQueueItem(from, to int) error
	RemoveQueueItem(index int) error
	Append(tracks []catalog.Track) error
	Passthrough(ctx context.Context, name string, args ...string) (map[string]string, error)
}

// Library is the catalog surface used for browsing and play requests.
type Library interface {
	TrackByID(id int64) (*catalog.Track, error)
	TracksByIDs(ids []int64) ([]catalog.Track, error)
	Query(f catalog.Filter) ([]catalog.Track, error)
	ToggleFavorite(id int64) (bool, error)
}

// SleepTimer is the sleep timer surface.
type SleepTimer interface {
	Start(d time.Duration) sleeptimer.Status
	Cancel() bool
	Status() sleeptimer.Status
}

// Options tunes the server.
type Options struct {
	BroadcastWindow  time.Duration
	MaxRemoteClients int // 0 disables the limit
}

// Server handles Socket.io connections and events.
type Server struct {
	io      *socket.Server
	ctrl    Controller
	proj    *projector.Projector
	library Library
	sleep   SleepTimer

	debouncer *BroadcastDebouncer
	limiter   *ConnectionLimiter
	handlers  map[string]intentFunc

	mu      sync.RWMutex
	clients map[string]*socket.Socket

	// Owned by Run.
	lastQueueVersion uint64
	lastErrorAt      time.Time
}

// NewServer creates a new Socket.io server.
func NewServer(ctrl Controller, proj *projector.Projector, library Library, sleep SleepTimer, opts Options) (*Server, error) {
	if ctrl == nil || proj == nil || library == nil || sleep == nil {
		return nil, errors.New("socketio: controller, projector, library and sleep timer are required")
	}
	if opts.BroadcastWindow <= 0 {
		opts.BroadcastWindow = 50 * time.Millisecond
	}

	sopts := socket.DefaultServerOptions()
	sopts.SetPingTimeout(20 * time.Second)
	sopts.SetPingInterval(25 * time.Second)
	sopts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})

	s := &Server{
		io:      socket.NewServer(nil, sopts),
		ctrl:    ctrl,
		proj:    proj,
		library: library,
		sleep:   sleep,
		clients: make(map[string]*socket.Socket),
	}
	if opts.MaxRemoteClients > 0 {
		s.limiter = NewConnectionLimiter(opts.MaxRemoteClients)
	}
	s.debouncer = NewBroadcastDebouncer(opts.BroadcastWindow, s.Broadcast)
	s.handlers = s.intents()

	s.setupHandlers()

	return s, nil
}

// setupHandlers registers all Socket.io event handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		remote := remoteIP(client)

		log.Info().Str("id", clientID).Str("remote", remote).Msg("Client connected")

		if s.limiter != nil {
			if _, evicted := s.limiter.TryAdd(clientID, remote); evicted != "" {
				s.evict(evicted)
			}
		}

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		// Send initial state after small delay
		go func() {
			time.Sleep(100 * time.Millisecond)
			snap := s.ctrl.Snapshot()
			client.Emit("pushQueue", BuildQueue(snap))
			client.Emit("pushState", BuildState(snap))
		}()

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			if s.limiter != nil {
				s.limiter.Remove(clientID)
			}
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		for name := range s.handlers {
			name := name
			client.On(name, func(args ...any) {
				log.Debug().Str("id", clientID).Interface("data", args).Msg(name)
				r, err := s.dispatch(context.Background(), name, args...)
				if err != nil {
					client.Emit("pushToast", errorToast(name, err))
					return
				}
				if r != nil {
					client.Emit(r.event, r.payload)
				}
			})
		}
	})
}

// dispatch runs the handler for a client event. Handler panics are
// recovered and reported as errors.
func (s *Server) dispatch(ctx context.Context, name string, args ...any) (r *reply, err error) {
	fn, ok := s.handlers[name]
	if !ok {
		return nil, errors.New("unknown intent " + name)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Str("intent", name).Msg("Intent handler panicked")
			r, err = nil, errors.New("internal error")
		}
	}()

	r, err = fn(ctx, payloadMap(args))
	if err != nil {
		log.Warn().Err(err).Str("intent", name).Msg("Intent failed")
	}
	return r, err
}

// payloadMap returns the first argument as a map; a bare value becomes {"value": v}.
func payloadMap(args []any) map[string]interface{} {
	if len(args) == 0 || args[0] == nil {
		return map[string]interface{}{}
	}
	if m, ok := args[0].(map[string]interface{}); ok {
		return m
	}
	return map[string]interface{}{"value": args[0]}
}

func remoteIP(client *socket.Socket) string {
	hs := client.Handshake()
	if hs == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(hs.Address); err == nil {
		return host
	}
	return hs.Address
}

func (s *Server) evict(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if ok {
		log.Info().Str("id", clientID).Msg("Evicting oldest remote client")
		client.Disconnect(true)
	}
}

// Run broadcasts snapshots until ctx is done or the projector is closed.
func (s *Server) Run(ctx context.Context) {
	sub := s.proj.Subscribe()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			s.observe(snap)
		}
	}
}

// observe schedules the broadcasts implied by snap and pushes new errors at once.
func (s *Server) observe(snap *projector.Snapshot) {
	change := ChangeState
	if snap.QueueVersion != s.lastQueueVersion {
		s.lastQueueVersion = snap.QueueVersion
		change |= ChangeQueue
	}
	s.debouncer.Trigger(snap, change)

	if !snap.ErrorAt.IsZero() && snap.ErrorAt.After(s.lastErrorAt) {
		s.lastErrorAt = snap.ErrorAt
		s.io.Emit("pushToast", Toast{Type: "error", Title: "Playback", Message: snap.LastError})
	}
}

// Broadcast pushes snap to every client. The queue goes first so clients
// can resolve the active index against it.
func (s *Server) Broadcast(snap *projector.Snapshot, c Change) {
	if c&ChangeQueue != 0 {
		s.io.Emit("pushQueue", BuildQueue(snap))
	}
	if c&ChangeState == 0 {
		return
	}
	state := BuildState(snap)
	s.io.Emit("pushState", state)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(state)
		log.Debug().RawJSON("state", data).Int("clients", s.ClientCount()).Msg("Broadcast state")
	}
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close closes the Socket.io server.
func (s *Server) Close() error {
	s.debouncer.Stop()
	s.io.Close(nil)
	return nil
}
