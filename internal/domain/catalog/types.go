// Package catalog defines the playable track catalog consumed by the queue core.
package catalog

import (
	"errors"
	"time"
)

// ErrTrackNotFound is returned when a track id or uri is not in the catalog.
var ErrTrackNotFound = errors.New("track not found")

// Track is an immutable snapshot of a playable item.
type Track struct {
	ID         int64     `json:"id"`
	URI        string    `json:"uri"`      // MPD song path
	Title      string    `json:"title"`
	Artist     string    `json:"artist"`
	Album      string    `json:"album"`
	Duration   int64     `json:"duration"` // milliseconds
	ArtworkRef string    `json:"albumart,omitempty"`
	Favorite   bool      `json:"favorite"`
	PlayCount  int       `json:"playCount"`
	LastPlayed time.Time `json:"lastPlayed,omitempty"`
}

// DisplayTitle returns the title, falling back to the last path element of the uri.
func (t Track) DisplayTitle() string {
	if t.Title != "" {
		return t.Title
	}
	return BaseName(t.URI)
}

// Reader is the read side of the catalog.
type Reader interface {
	ListTracks() ([]Track, error)
	TrackByID(id int64) (*Track, error)
	TrackByURI(uri string) (*Track, error)
}

// Catalog is the full catalog contract, including the mutation hooks used on playback events.
type Catalog interface {
	Reader
	ToggleFavorite(id int64) (bool, error)
	IncrementPlayCount(id int64, at time.Time) error
	Delete(id int64) error
}

// BaseName returns the last element of a slash separated uri.
func BaseName(uri string) string {
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' {
			return uri[i+1:]
		}
	}
	return uri
}

// ArtworkRefFor builds the artwork locator served by the /albumart endpoint.
func ArtworkRefFor(uri string) string {
	if uri == "" {
		return ""
	}
	return "/albumart?path=" + uri
}
