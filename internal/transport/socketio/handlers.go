package socketio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
)

var errBadPayload = errors.New("invalid payload")

// reply is an event emitted back to the requesting client.
type reply struct {
	event   string
	payload any
}

type intentFunc func(ctx context.Context, data map[string]interface{}) (*reply, error)

// intents maps each client event to its handler.
func (s *Server) intents() map[string]intentFunc {
	return map[string]intentFunc{
		"getState": func(context.Context, map[string]interface{}) (*reply, error) {
			return &reply{"pushState", BuildState(s.ctrl.Snapshot())}, nil
		},
		"getQueue": func(context.Context, map[string]interface{}) (*reply, error) {
			return &reply{"pushQueue", BuildQueue(s.ctrl.Snapshot())}, nil
		},
		"play":   s.handlePlay,
		"playAt": s.handlePlayAt,
		"pause":  noArgs(s.ctrl.Pause),
		"resume": noArgs(s.ctrl.Resume),
		"toggle": noArgs(s.ctrl.Toggle),
		"stop":   noArgs(s.ctrl.Stop),
		"next":   noArgs(s.ctrl.Next),
		"prev":   noArgs(s.ctrl.Previous),
		"seek": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			fraction, ok := getFloatFromMap(data, "fraction")
			if !ok {
				fraction, ok = getFloatFromMap(data, "value")
			}
			if !ok {
				return nil, fmt.Errorf("seek: %w: fraction required", errBadPayload)
			}
			return nil, s.ctrl.SeekTo(fraction)
		},
		"setRandom": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			on, ok := data["value"].(bool)
			if !ok {
				return nil, fmt.Errorf("setRandom: %w: value required", errBadPayload)
			}
			return nil, s.ctrl.SetShuffle(on)
		},
		"setRepeat": s.handleSetRepeat,
		"moveQueue": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			from, to := getIntFromMap(data, "from", -1), getIntFromMap(data, "to", -1)
			return nil, s.ctrl.MoveQueueItem(from, to)
		},
		"removeFromQueue": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			return nil, s.ctrl.RemoveQueueItem(getIntFromMap(data, "index", -1))
		},
		"appendToQueue": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			tracks, err := s.library.TracksByIDs(getIDsFromMap(data, "trackIds"))
			if err != nil {
				return nil, err
			}
			return nil, s.ctrl.Append(tracks)
		},
		"toggleFavorite": s.handleToggleFavorite,
		"browse":         s.handleBrowse,
		"setSleepTimer": func(_ context.Context, data map[string]interface{}) (*reply, error) {
			minutes := getIntFromMap(data, "minutes", 0)
			if minutes < 0 {
				return nil, fmt.Errorf("setSleepTimer: %w: minutes must not be negative", errBadPayload)
			}
			return &reply{"pushSleepTimer", s.sleep.Start(time.Duration(minutes) * time.Minute)}, nil
		},
		"cancelSleepTimer": func(context.Context, map[string]interface{}) (*reply, error) {
			s.sleep.Cancel()
			return &reply{"pushSleepTimer", s.sleep.Status()}, nil
		},
		"passthrough": s.handlePassthrough,
	}
}

func noArgs(fn func() error) intentFunc {
	return func(context.Context, map[string]interface{}) (*reply, error) {
		return nil, fn()
	}
}

// handlePlay starts trackId from trackIds, a catalog filter, or on its own.
func (s *Server) handlePlay(_ context.Context, data map[string]interface{}) (*reply, error) {
	var list []catalog.Track
	var err error

	switch {
	case data["trackIds"] != nil:
		list, err = s.library.TracksByIDs(getIDsFromMap(data, "trackIds"))
	case data["filter"] != nil:
		f, ferr := parseFilter(data["filter"])
		if ferr != nil {
			return nil, ferr
		}
		list, err = s.library.Query(f)
	}
	if err != nil {
		return nil, err
	}

	id, hasID := getInt64FromMap(data, "trackId")
	var track catalog.Track
	switch {
	case hasID:
		t, err := s.library.TrackByID(id)
		if err != nil {
			return nil, err
		}
		track = *t
		if list == nil {
			list = []catalog.Track{track}
		}
	case len(list) > 0:
		track = list[0]
	}

	return nil, s.ctrl.Play(track, list)
}

func (s *Server) handlePlayAt(_ context.Context, data map[string]interface{}) (*reply, error) {
	index := getIntFromMap(data, "index", getIntFromMap(data, "value", -1))
	return nil, s.ctrl.PlayAt(index)
}

// handleSetRepeat accepts {mode} or the {value, repeatSingle} pair.
func (s *Server) handleSetRepeat(_ context.Context, data map[string]interface{}) (*reply, error) {
	if mode, ok := data["mode"].(string); ok {
		m, err := session.ParseRepeatMode(mode)
		if err != nil {
			return nil, err
		}
		return nil, s.ctrl.SetRepeat(m)
	}

	repeat, ok := data["value"].(bool)
	if !ok {
		return nil, fmt.Errorf("setRepeat: %w: mode required", errBadPayload)
	}
	single, _ := data["repeatSingle"].(bool)
	mode := session.RepeatOff
	switch {
	case repeat && single:
		mode = session.RepeatOne
	case repeat:
		mode = session.RepeatAll
	}
	return nil, s.ctrl.SetRepeat(mode)
}

func (s *Server) handleToggleFavorite(_ context.Context, data map[string]interface{}) (*reply, error) {
	id, ok := getInt64FromMap(data, "trackId")
	if !ok {
		return nil, fmt.Errorf("toggleFavorite: %w: trackId required", errBadPayload)
	}
	favorite, err := s.library.ToggleFavorite(id)
	if err != nil {
		return nil, err
	}
	return &reply{"pushFavorite", map[string]interface{}{"trackId": id, "favorite": favorite}}, nil
}

func (s *Server) handleBrowse(_ context.Context, data map[string]interface{}) (*reply, error) {
	f := catalog.Filter{Kind: catalog.FilterAll}
	if raw, ok := data["filter"]; ok {
		var err error
		if f, err = parseFilter(raw); err != nil {
			return nil, err
		}
	}
	tracks, err := s.library.Query(f)
	if err != nil {
		return nil, err
	}
	return &reply{"pushBrowse", map[string]interface{}{"filter": f, "tracks": tracks}}, nil
}

func (s *Server) handlePassthrough(ctx context.Context, data map[string]interface{}) (*reply, error) {
	name, _ := data["command"].(string)
	if name == "" {
		return nil, fmt.Errorf("passthrough: %w: command required", errBadPayload)
	}
	var args []string
	if raw, ok := data["args"].([]interface{}); ok {
		for _, a := range raw {
			args = append(args, fmt.Sprint(a))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	resp, err := s.ctrl.Passthrough(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return &reply{"pushPassthrough", map[string]interface{}{"command": name, "response": resp}}, nil
}

// parseFilter reads {kind, value, trackIds, limit}.
func parseFilter(raw any) (catalog.Filter, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return catalog.Filter{}, fmt.Errorf("filter: %w", errBadPayload)
	}
	kind, _ := m["kind"].(string)
	k, err := catalog.ParseFilterKind(kind)
	if err != nil {
		return catalog.Filter{}, err
	}
	value, _ := m["value"].(string)
	return catalog.Filter{
		Kind:     k,
		Value:    value,
		TrackIDs: getIDsFromMap(m, "trackIds"),
		Limit:    getIntFromMap(m, "limit", 0),
	}, nil
}

func getIntFromMap(m map[string]interface{}, key string, defaultVal int) int {
	if m == nil {
		return defaultVal
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	}
	return defaultVal
}

func getInt64FromMap(m map[string]interface{}, key string) (int64, bool) {
	switch v := m[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func getFloatFromMap(m map[string]interface{}, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func getIDsFromMap(m map[string]interface{}, key string) []int64 {
	raw, ok := m[key].([]interface{})
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(raw))
	for _, v := range raw {
		if id, ok := getInt64FromMap(map[string]interface{}{"v": v}, "v"); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
