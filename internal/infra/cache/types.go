package cache

import (
	"errors"
	"time"
)

var errNotOpen = errors.New("database not open")

// ErrPlaylistNotFound is returned for an unknown playlist id or name.
var ErrPlaylistNotFound = errors.New("playlist not found")

// Stats summarizes the catalog contents.
type Stats struct {
	TrackCount    int       `json:"trackCount"`
	FavoriteCount int       `json:"favoriteCount"`
	PlaylistCount int       `json:"playlistCount"`
	SchemaVersion string    `json:"schemaVersion"`
	LastImport    time.Time `json:"lastImport"`
	Importing     bool      `json:"importing"`
}

// Playlist is a named, ordered list of catalog tracks.
type Playlist struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	TrackCount int       `json:"trackCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ImportResult reports what an import changed.
type ImportResult struct {
	Seen     int           `json:"seen"`
	Upserted int           `json:"upserted"`
	Removed  int           `json:"removed"`
	Duration time.Duration `json:"duration"`
}
