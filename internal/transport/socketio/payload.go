package socketio

import (
	"strings"

	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
)

// Playback status values, as the UI expects them.
const (
	StatusPlay  = "play"
	StatusPause = "pause"
	StatusStop  = "stop"
)

// BuildState converts a snapshot to the pushState payload.
func BuildState(snap *projector.Snapshot) map[string]interface{} {
	state := make(map[string]interface{})

	switch {
	case snap.Playing:
		state["status"] = StatusPlay
	case snap.Current != nil && snap.Phase == "paused":
		state["status"] = StatusPause
	default:
		state["status"] = StatusStop
	}

	state["version"] = snap.Version
	state["phase"] = snap.Phase
	state["position"] = snap.Active
	state["seek"] = snap.Position
	state["duration"] = snap.Duration / 1000 // seconds
	state["progress"] = snap.Progress

	state["random"] = snap.Shuffle
	state["repeatMode"] = snap.Repeat.String()
	state["repeat"] = snap.Repeat != session.RepeatOff
	state["repeatSingle"] = snap.Repeat == session.RepeatOne

	state["title"] = ""
	state["artist"] = ""
	state["album"] = ""
	state["albumart"] = ""
	state["uri"] = ""
	if cur := snap.Current; cur != nil {
		state["title"] = cur.Title
		state["artist"] = cur.Artist
		state["album"] = cur.Album
		state["albumart"] = cur.ArtworkRef
		state["uri"] = cur.URI
		if cur.TrackID != 0 {
			state["trackId"] = cur.TrackID
		}
		if t := trackType(cur.URI); t != "" {
			state["trackType"] = t
		}
	}

	state["service"] = "mpd"
	state["connection"] = string(snap.Connection)
	state["sleepTimer"] = snap.SleepTimer
	if snap.LastError != "" {
		state["error"] = snap.LastError
	}

	return state
}

// BuildQueue converts the snapshot queue to the pushQueue payload.
func BuildQueue(snap *projector.Snapshot) []map[string]interface{} {
	queue := make([]map[string]interface{}, len(snap.Queue))
	for i, e := range snap.Queue {
		item := map[string]interface{}{
			"uri":      e.URI,
			"title":    e.Title,
			"artist":   e.Artist,
			"album":    e.Album,
			"albumart": e.ArtworkRef,
			"duration": e.Duration / 1000,
			"service":  "mpd",
			"active":   i == snap.Active,
		}
		if e.TrackID != 0 {
			item["trackId"] = e.TrackID
		}
		if t := trackType(e.URI); t != "" {
			item["trackType"] = t
		}
		queue[i] = item
	}
	return queue
}

// trackType returns the lower-case file extension.
func trackType(uri string) string {
	if idx := strings.LastIndex(uri, "."); idx != -1 && !strings.Contains(uri[idx:], "/") {
		return strings.ToLower(uri[idx+1:])
	}
	return ""
}

// Toast is the pushToast payload.
type Toast struct {
	Type    string `json:"type"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

func errorToast(title string, err error) Toast {
	return Toast{Type: "error", Title: title, Message: err.Error()}
}
