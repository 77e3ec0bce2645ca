// Package media bridges the queue core to OS-level media controls
// (MPRIS on Linux). Media keys and desktop widgets issue the same intents
// as the UI; snapshots from the projector drive the displayed state.
package media

import (
	"time"
)

// PlaybackState is the transport state shown by the OS.
type PlaybackState int

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "Playing"
	case StatePaused:
		return "Paused"
	default:
		return "Stopped"
	}
}

// Metadata describes the current entry.
type Metadata struct {
	TrackID  int64
	Title    string
	Artist   string
	Album    string
	Duration time.Duration
	ArtURL   string
}

// LoopStatus is the MPRIS name of a repeat mode.
type LoopStatus string

const (
	LoopNone     LoopStatus = "None"
	LoopTrack    LoopStatus = "Track"
	LoopPlaylist LoopStatus = "Playlist"
)

// Session is an OS media session.
type Session interface {
	UpdateMetadata(metadata Metadata) error
	UpdatePlaybackState(state PlaybackState, position time.Duration) error
	UpdateShuffle(enabled bool) error
	UpdateLoopStatus(status LoopStatus) error

	// SetCommandHandler sets the receiver of commands coming from the OS.
	SetCommandHandler(handler CommandHandler)

	Close() error
}

// Command is a request coming from the OS.
type Command int

const (
	CmdPlay Command = iota
	CmdPause
	CmdPlayPause
	CmdStop
	CmdNext
	CmdPrevious
	CmdSeek // data: absolute time.Duration or a SeekOffset
	CmdSetShuffle
	CmdSetLoopStatus
)

func (c Command) String() string {
	switch c {
	case CmdPlay:
		return "Play"
	case CmdPause:
		return "Pause"
	case CmdPlayPause:
		return "PlayPause"
	case CmdStop:
		return "Stop"
	case CmdNext:
		return "Next"
	case CmdPrevious:
		return "Previous"
	case CmdSeek:
		return "Seek"
	case CmdSetShuffle:
		return "SetShuffle"
	case CmdSetLoopStatus:
		return "SetLoopStatus"
	default:
		return "Unknown"
	}
}

// SeekOffset is a position change relative to the current position.
type SeekOffset time.Duration

// CommandHandler handles media commands from the OS.
type CommandHandler interface {
	OnCommand(cmd Command, data interface{}) error
}

// CommandHandlerFunc adapts a function to CommandHandler.
type CommandHandlerFunc func(cmd Command, data interface{}) error

func (f CommandHandlerFunc) OnCommand(cmd Command, data interface{}) error {
	return f(cmd, data)
}

// NoOpSession is used where no media session integration exists.
type NoOpSession struct{}

func NewNoOpSession() *NoOpSession {
	return &NoOpSession{}
}

func (s *NoOpSession) UpdateMetadata(Metadata) error                          { return nil }
func (s *NoOpSession) UpdatePlaybackState(PlaybackState, time.Duration) error { return nil }
func (s *NoOpSession) UpdateShuffle(bool) error                               { return nil }
func (s *NoOpSession) UpdateLoopStatus(LoopStatus) error                      { return nil }
func (s *NoOpSession) SetCommandHandler(CommandHandler)                       {}
func (s *NoOpSession) Close() error                                           { return nil }
