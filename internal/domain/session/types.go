// Package session is the boundary between the queue core and the playback transport.
package session

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// RepeatMode is the transport repeat setting.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatAll
	RepeatOne
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatAll:
		return "all"
	case RepeatOne:
		return "one"
	default:
		return "off"
	}
}

// MarshalText encodes the mode as its name.
func (m RepeatMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a mode name.
func (m *RepeatMode) UnmarshalText(b []byte) error {
	mode, err := ParseRepeatMode(string(b))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// ParseRepeatMode parses "off", "all" or "one". MPRIS style names are accepted too.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return RepeatOff, nil
	case "all", "playlist":
		return RepeatAll, nil
	case "one", "track", "single":
		return RepeatOne, nil
	default:
		return RepeatOff, fmt.Errorf("unknown repeat mode %q", s)
	}
}

// Entry is one queue item: track identity plus the display fields needed to
// render it without the catalog.
type Entry struct {
	TrackID    int64  `json:"trackId,omitempty"` // catalog id, 0 if unresolved
	URI        string `json:"uri"`
	SongID     string `json:"songId,omitempty"` // transport id, stable across moves
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	Duration   int64  `json:"duration"` // milliseconds
	ArtworkRef string `json:"albumart,omitempty"`
}

// Timeline is a full pull of the transport queue.
type Timeline struct {
	Entries []Entry
	Current int // -1 when the transport has no current song
	Playing bool
	Shuffle bool
	Repeat  RepeatMode
}

// CommandKind enumerates the transport command vocabulary.
type CommandKind int

const (
	CmdPlay CommandKind = iota
	CmdPause
	CmdResume
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeekTo
	CmdSetShuffle
	CmdSetRepeat
	CmdMoveItem
	CmdRemoveItem
	CmdPlayAt
	CmdAppend
	CmdPassthrough
)

var commandNames = [...]string{
	CmdPlay:        "play",
	CmdPause:       "pause",
	CmdResume:      "resume",
	CmdStop:        "stop",
	CmdNext:        "next",
	CmdPrevious:    "previous",
	CmdSeekTo:      "seekTo",
	CmdSetShuffle:  "setShuffle",
	CmdSetRepeat:   "setRepeat",
	CmdMoveItem:    "moveItem",
	CmdRemoveItem:  "removeItem",
	CmdPlayAt:      "playAt",
	CmdAppend:      "append",
	CmdPassthrough: "passthrough",
}

func (k CommandKind) String() string {
	if int(k) >= 0 && int(k) < len(commandNames) {
		return commandNames[k]
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// Command is a single transport command. Only the fields relevant to Kind are read.
type Command struct {
	ID       string // correlation id for logs
	Kind     CommandKind
	URIs     []string // play, append
	Index    int      // play start, playAt, removeItem
	From, To int      // moveItem
	Fraction float64  // seekTo
	Enabled  bool     // setShuffle
	Repeat   RepeatMode
}

func newCommand(kind CommandKind) Command {
	return Command{ID: uuid.NewString(), Kind: kind}
}

// Play replaces the transport queue with uris and starts at index start.
func Play(uris []string, start int) Command {
	c := newCommand(CmdPlay)
	c.URIs = uris
	c.Index = start
	return c
}

// Append adds uris to the end of the transport queue.
func Append(uris []string) Command {
	c := newCommand(CmdAppend)
	c.URIs = uris
	return c
}

func Pause() Command    { return newCommand(CmdPause) }
func Resume() Command   { return newCommand(CmdResume) }
func Stop() Command     { return newCommand(CmdStop) }
func Next() Command     { return newCommand(CmdNext) }
func Previous() Command { return newCommand(CmdPrevious) }

// SeekTo seeks to a fraction of the current track.
func SeekTo(fraction float64) Command {
	c := newCommand(CmdSeekTo)
	c.Fraction = fraction
	return c
}

func SetShuffle(on bool) Command {
	c := newCommand(CmdSetShuffle)
	c.Enabled = on
	return c
}

func SetRepeat(mode RepeatMode) Command {
	c := newCommand(CmdSetRepeat)
	c.Repeat = mode
	return c
}

// MoveItem relocates the item at from to position to.
func MoveItem(from, to int) Command {
	c := newCommand(CmdMoveItem)
	c.From = from
	c.To = to
	return c
}

func RemoveItem(index int) Command {
	c := newCommand(CmdRemoveItem)
	c.Index = index
	return c
}

func PlayAt(index int) Command {
	c := newCommand(CmdPlayAt)
	c.Index = index
	return c
}

// EventKind enumerates normalized transport events.
type EventKind int

const (
	EventItemTransitioned EventKind = iota
	EventTimelineChanged
	EventIsPlayingChanged
	EventModeChanged
	EventProgress
	EventCompleted
	EventStopped
	EventConnected
	EventDisconnected
)

var eventNames = [...]string{
	EventItemTransitioned: "itemTransitioned",
	EventTimelineChanged:  "timelineChanged",
	EventIsPlayingChanged: "isPlayingChanged",
	EventModeChanged:      "modeChanged",
	EventProgress:         "progress",
	EventCompleted:        "completed",
	EventStopped:          "stopped",
	EventConnected:        "connected",
	EventDisconnected:     "disconnected",
}

func (k EventKind) String() string {
	if int(k) >= 0 && int(k) < len(eventNames) {
		return eventNames[k]
	}
	return fmt.Sprintf("event(%d)", int(k))
}

// Event is a normalized transport event. Only the fields relevant to Kind are set.
type Event struct {
	Kind     EventKind
	Entry    Entry // itemTransitioned
	Index    int   // itemTransitioned
	Playing  bool  // isPlayingChanged
	Position int64 // progress, milliseconds
	Duration int64 // progress, milliseconds
	Shuffle  bool  // modeChanged
	Repeat   RepeatMode
	Initial  bool  // reported while (re)connecting rather than observed as a change
	Err      error // disconnected
}
