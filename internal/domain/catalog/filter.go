package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// FilterKind selects one of the catalog views.
type FilterKind string

const (
	FilterAll       FilterKind = "all"
	FilterAlbum     FilterKind = "album"
	FilterArtist    FilterKind = "artist"
	FilterPlaylist  FilterKind = "playlist"
	FilterFavorites FilterKind = "favorites"
	FilterRecents   FilterKind = "recents"
)

// DefaultRecentsLimit caps the recents view when no limit is given.
const DefaultRecentsLimit = 50

// Filter is a closed set of predicates over a catalog listing.
// Value holds the album or artist name; TrackIDs holds playlist membership.
type Filter struct {
	Kind     FilterKind `json:"kind"`
	Value    string     `json:"value,omitempty"`
	TrackIDs []int64    `json:"trackIds,omitempty"`
	Limit    int        `json:"limit,omitempty"`
}

// ParseFilterKind parses a filter kind, defaulting to FilterAll for an empty string.
func ParseFilterKind(s string) (FilterKind, error) {
	switch k := FilterKind(strings.ToLower(s)); k {
	case "":
		return FilterAll, nil
	case FilterAll, FilterAlbum, FilterArtist, FilterPlaylist, FilterFavorites, FilterRecents:
		return k, nil
	default:
		return "", fmt.Errorf("unknown filter kind %q", s)
	}
}

// Apply returns the tracks selected by the filter, preserving catalog order
// except for recents which are ordered by last played, newest first.
func (f Filter) Apply(tracks []Track) []Track {
	var out []Track

	switch f.Kind {
	case FilterPlaylist:
		byID := make(map[int64]Track, len(tracks))
		for _, t := range tracks {
			byID[t.ID] = t
		}
		// Playlist order wins, duplicates included.
		for _, id := range f.TrackIDs {
			if t, ok := byID[id]; ok {
				out = append(out, t)
			}
		}
		return out
	case FilterRecents:
		for _, t := range tracks {
			if !t.LastPlayed.IsZero() {
				out = append(out, t)
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].LastPlayed.After(out[j].LastPlayed)
		})
		limit := f.Limit
		if limit <= 0 {
			limit = DefaultRecentsLimit
		}
		if len(out) > limit {
			out = out[:limit]
		}
		return out
	}

	for _, t := range tracks {
		if f.matches(t) {
			out = append(out, t)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (f Filter) matches(t Track) bool {
	switch f.Kind {
	case FilterAlbum:
		return strings.EqualFold(t.Album, f.Value)
	case FilterArtist:
		return strings.EqualFold(t.Artist, f.Value)
	case FilterFavorites:
		return t.Favorite
	default:
		return true
	}
}

// IndexOf returns the position of the track with the given id, or -1.
func IndexOf(tracks []Track, id int64) int {
	for i, t := range tracks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
