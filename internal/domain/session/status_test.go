package session

import (
	"testing"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		name   string
		status map[string]string
		want   playerStatus
	}{
		{
			name:   "empty",
			status: map[string]string{},
			want:   playerStatus{state: stateStop, index: -1},
		},
		{
			name: "playing with decimals",
			status: map[string]string{
				"state": "play", "song": "2", "songid": "17", "playlistlength": "5",
				"elapsed": "12.5", "duration": "200.25", "random": "1", "repeat": "1", "single": "0",
			},
			want: playerStatus{
				state: statePlay, songID: "17", index: 2, position: 12500, duration: 200250,
				length: 5, shuffle: true, repeat: RepeatAll,
			},
		},
		{
			name: "legacy time field",
			status: map[string]string{
				"state": "pause", "song": "0", "songid": "3", "playlistlength": "1",
				"time": "30:240", "repeat": "1", "single": "1",
			},
			want: playerStatus{
				state: statePause, songID: "3", index: 0, position: 30000, duration: 240000,
				length: 1, repeat: RepeatOne,
			},
		},
		{
			name:   "unknown state is stop",
			status: map[string]string{"state": "weird"},
			want:   playerStatus{state: stateStop, index: -1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseStatus(tt.status); got != tt.want {
				t.Errorf("parseStatus() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRepeatFlagsRoundTrip(t *testing.T) {
	for _, mode := range []RepeatMode{RepeatOff, RepeatAll, RepeatOne} {
		repeat, single := repeatFlags(mode)
		if got := repeatFromFlags(repeat, single); got != mode {
			t.Errorf("round trip of %s gave %s", mode, got)
		}
	}
	// single without repeat stops after the current song; it is not a repeat mode.
	if got := repeatFromFlags(false, true); got != RepeatOff {
		t.Errorf("expected off for single without repeat, got %s", got)
	}
}

func TestParseRepeatMode(t *testing.T) {
	tests := []struct {
		input   string
		want    RepeatMode
		wantErr bool
	}{
		{"off", RepeatOff, false},
		{"", RepeatOff, false},
		{"ALL", RepeatAll, false},
		{"Playlist", RepeatAll, false},
		{"one", RepeatOne, false},
		{"Track", RepeatOne, false},
		{"sometimes", RepeatOff, true},
	}

	for _, tt := range tests {
		got, err := ParseRepeatMode(tt.input)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseRepeatMode(%q) = %s, %v; want %s, err %v", tt.input, got, err, tt.want, tt.wantErr)
		}
	}
}

func TestEntryFromSong(t *testing.T) {
	e := entryFromSong(map[string]string{
		"file": "NAS/Album/01.flac", "Id": "9", "AlbumArtist": "Band", "Album": "LP", "Time": "61",
	})
	if e.URI != "NAS/Album/01.flac" || e.SongID != "9" || e.Artist != "Band" || e.Album != "LP" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Duration != 61000 {
		t.Errorf("expected duration 61000, got %d", e.Duration)
	}
	if e.Title != "" {
		t.Errorf("missing title should stay empty, got %q", e.Title)
	}
	if e.ArtworkRef != "/albumart?path=NAS/Album/01.flac" {
		t.Errorf("unexpected artwork ref %q", e.ArtworkRef)
	}
}

func TestEntryFromTrack(t *testing.T) {
	e := EntryFromTrack(catalog.Track{ID: 4, URI: "x/y.flac", Artist: "A", Duration: 1000})
	if e.TrackID != 4 || e.Title != "y.flac" || e.ArtworkRef != "/albumart?path=x/y.flac" {
		t.Errorf("unexpected entry %+v", e)
	}
}

func TestCommandKindString(t *testing.T) {
	if CmdMoveItem.String() != "moveItem" {
		t.Errorf("unexpected name %q", CmdMoveItem.String())
	}
	if CommandKind(99).String() != "command(99)" {
		t.Errorf("unexpected name %q", CommandKind(99).String())
	}
	if EventTimelineChanged.String() != "timelineChanged" {
		t.Errorf("unexpected name %q", EventTimelineChanged.String())
	}
}
