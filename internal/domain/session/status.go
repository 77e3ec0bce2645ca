package session

import (
	"strconv"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/infra/mpd"
)

// Transport states reported by MPD.
const (
	statePlay  = "play"
	statePause = "pause"
	stateStop  = "stop"
)

// playerStatus is the part of the MPD status the adapter diffs between notifications.
type playerStatus struct {
	state    string
	songID   string
	index    int
	position int64
	duration int64
	length   int
	shuffle  bool
	repeat   RepeatMode
}

func (s playerStatus) playing() bool { return s.state == statePlay }

func (s playerStatus) active() bool { return s.state == statePlay || s.state == statePause }

// parseStatus converts an MPD status response.
func parseStatus(status map[string]string) playerStatus {
	ps := playerStatus{
		state:  status["state"],
		songID: status["songid"],
		index:  -1,
	}
	if ps.state != statePlay && ps.state != statePause {
		ps.state = stateStop
	}

	if pos, err := strconv.Atoi(status["song"]); err == nil {
		ps.index = pos
	}
	if n, err := strconv.Atoi(status["playlistlength"]); err == nil {
		ps.length = n
	}

	// Elapsed and duration are seconds with decimals; older servers only send "time" as elapsed:total.
	if ms, ok := mpd.ParseSeconds(status["elapsed"]); ok {
		ps.position = ms
	}
	if ms, ok := mpd.ParseSeconds(status["duration"]); ok {
		ps.duration = ms
	} else if elapsed, total, ok := splitTime(status["time"]); ok {
		if ps.position == 0 {
			ps.position = elapsed
		}
		ps.duration = total
	}

	ps.shuffle = status["random"] == "1"
	ps.repeat = repeatFromFlags(status["repeat"] == "1", status["single"] == "1")
	return ps
}

// repeatFromFlags maps MPD's repeat and single flags onto a RepeatMode.
func repeatFromFlags(repeat, single bool) RepeatMode {
	switch {
	case repeat && single:
		return RepeatOne
	case repeat:
		return RepeatAll
	default:
		return RepeatOff
	}
}

// repeatFlags is the inverse of repeatFromFlags.
func repeatFlags(mode RepeatMode) (repeat, single bool) {
	switch mode {
	case RepeatOne:
		return true, true
	case RepeatAll:
		return true, false
	default:
		return false, false
	}
}

func splitTime(s string) (int64, int64, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			elapsed, err1 := strconv.ParseInt(s[:i], 10, 64)
			total, err2 := strconv.ParseInt(s[i+1:], 10, 64)
			if err1 != nil || err2 != nil {
				return 0, 0, false
			}
			return elapsed * 1000, total * 1000, true
		}
	}
	return 0, 0, false
}

// entryFromSong converts an MPD song (playlistinfo or currentsong) into a queue entry.
// Missing tags stay empty so they can be filled from the catalog.
func entryFromSong(song map[string]string) Entry {
	e := Entry{
		URI:    song["file"],
		SongID: song["Id"],
		Title:  song["Title"],
		Artist: song["Artist"],
		Album:  song["Album"],
	}
	if e.Artist == "" {
		e.Artist = song["AlbumArtist"]
	}
	if ms, ok := mpd.ParseSeconds(song["duration"]); ok {
		e.Duration = ms
	} else if ms, ok := mpd.ParseSeconds(song["Time"]); ok {
		e.Duration = ms
	}
	e.ArtworkRef = catalog.ArtworkRefFor(e.URI)
	return e
}

// EntryFromTrack builds a queue entry from a catalog track.
func EntryFromTrack(t catalog.Track) Entry {
	e := Entry{
		TrackID:    t.ID,
		URI:        t.URI,
		Title:      t.DisplayTitle(),
		Artist:     t.Artist,
		Album:      t.Album,
		Duration:   t.Duration,
		ArtworkRef: t.ArtworkRef,
	}
	if e.ArtworkRef == "" {
		e.ArtworkRef = catalog.ArtworkRefFor(t.URI)
	}
	return e
}
