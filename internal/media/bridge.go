package media

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
)

// Controls is the queue surface the OS can drive. *queue.Machine implements it.
type Controls interface {
	Snapshot() *projector.Snapshot
	Resume() error
	Pause() error
	Toggle() error
	Stop() error
	Next() error
	Previous() error
	SeekTo(fraction float64) error
	SetShuffle(enabled bool) error
	SetRepeat(mode session.RepeatMode) error
}

// Bridge connects a Session to the queue core.
type Bridge struct {
	session  Session
	controls Controls
	artBase  string // e.g. http://host:3000, joined with the entry's artwork ref

	// Last values pushed to the session. Owned by Run.
	last struct {
		version uint64
		meta    Metadata
		state   PlaybackState
		shuffle bool
		loop    LoopStatus
		seeded  bool
	}
}

// NewBridge wires s to controls and installs itself as the command handler.
func NewBridge(s Session, controls Controls, artBase string) *Bridge {
	b := &Bridge{session: s, controls: controls, artBase: artBase}
	s.SetCommandHandler(b)
	return b
}

// OnCommand maps an OS command to a queue intent.
func (b *Bridge) OnCommand(cmd Command, data interface{}) error {
	var err error
	switch cmd {
	case CmdPlay:
		err = b.controls.Resume()
	case CmdPause:
		err = b.controls.Pause()
	case CmdPlayPause:
		err = b.controls.Toggle()
	case CmdStop:
		err = b.controls.Stop()
	case CmdNext:
		err = b.controls.Next()
	case CmdPrevious:
		err = b.controls.Previous()
	case CmdSeek:
		switch v := data.(type) {
		case time.Duration:
			err = b.seek(func(*projector.Snapshot) time.Duration { return v })
		case SeekOffset:
			err = b.seek(func(snap *projector.Snapshot) time.Duration {
				return time.Duration(snap.Position)*time.Millisecond + time.Duration(v)
			})
		default:
			return fmt.Errorf("seek: unexpected position %T", data)
		}
	case CmdSetShuffle:
		on, ok := data.(bool)
		if !ok {
			return fmt.Errorf("shuffle: unexpected value %T", data)
		}
		err = b.controls.SetShuffle(on)
	case CmdSetLoopStatus:
		status, ok := data.(LoopStatus)
		if !ok {
			return fmt.Errorf("loop status: unexpected value %T", data)
		}
		mode, perr := RepeatModeFor(status)
		if perr != nil {
			return perr
		}
		err = b.controls.SetRepeat(mode)
	default:
		return fmt.Errorf("unsupported media command %s", cmd)
	}

	if err != nil {
		log.Warn().Err(err).Str("command", cmd.String()).Msg("Media command rejected")
	}
	return err
}

// seek converts a target position to a fraction of the current entry.
func (b *Bridge) seek(target func(*projector.Snapshot) time.Duration) error {
	snap := b.controls.Snapshot()
	if snap.Current == nil || snap.Duration <= 0 {
		return session.Reject(session.CmdSeekTo, session.ErrNoActiveTrack)
	}
	fraction := float64(target(snap).Milliseconds()) / float64(snap.Duration)
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	return b.controls.SeekTo(fraction)
}

// Run mirrors projector snapshots into the session until ctx is done.
func (b *Bridge) Run(ctx context.Context, proj *projector.Projector) {
	sub := proj.Subscribe()
	defer sub.Close()

	b.Sync(proj.Current())
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			b.Sync(snap)
		}
	}
}

// Sync pushes whatever changed in snap to the session.
func (b *Bridge) Sync(snap *projector.Snapshot) {
	if snap == nil || (b.last.seeded && snap.Version == b.last.version) {
		return
	}
	first := !b.last.seeded
	b.last.seeded = true
	b.last.version = snap.Version

	if meta := b.MetadataFor(snap); first || meta != b.last.meta {
		b.last.meta = meta
		b.report("metadata", b.session.UpdateMetadata(meta))
	}

	if state := StateFor(snap); first || state != b.last.state {
		b.last.state = state
		b.report("playback state", b.session.UpdatePlaybackState(state, time.Duration(snap.Position)*time.Millisecond))
	}

	if first || snap.Shuffle != b.last.shuffle {
		b.last.shuffle = snap.Shuffle
		b.report("shuffle", b.session.UpdateShuffle(snap.Shuffle))
	}

	if loop := LoopStatusFor(snap.Repeat); first || loop != b.last.loop {
		b.last.loop = loop
		b.report("loop status", b.session.UpdateLoopStatus(loop))
	}
}

func (b *Bridge) report(what string, err error) {
	if err != nil {
		log.Debug().Err(err).Str("property", what).Msg("Media session update failed")
	}
}

// MetadataFor builds session metadata from the current entry.
func (b *Bridge) MetadataFor(snap *projector.Snapshot) Metadata {
	cur := snap.Current
	if cur == nil {
		return Metadata{}
	}
	md := Metadata{
		TrackID:  cur.TrackID,
		Title:    cur.Title,
		Artist:   cur.Artist,
		Album:    cur.Album,
		Duration: time.Duration(cur.Duration) * time.Millisecond,
	}
	if cur.ArtworkRef != "" && b.artBase != "" {
		if base, err := url.Parse(b.artBase); err == nil {
			if ref, err := url.Parse(cur.ArtworkRef); err == nil {
				md.ArtURL = base.ResolveReference(ref).String()
			}
		}
	}
	return md
}

// StateFor maps the snapshot to an MPRIS playback state.
func StateFor(snap *projector.Snapshot) PlaybackState {
	switch {
	case snap.Playing:
		return StatePlaying
	case snap.Current != nil && snap.Phase == "paused":
		return StatePaused
	default:
		return StateStopped
	}
}

// LoopStatusFor maps a repeat mode to its MPRIS name.
func LoopStatusFor(mode session.RepeatMode) LoopStatus {
	switch mode {
	case session.RepeatAll:
		return LoopPlaylist
	case session.RepeatOne:
		return LoopTrack
	default:
		return LoopNone
	}
}

// RepeatModeFor maps an MPRIS loop status to a repeat mode.
func RepeatModeFor(status LoopStatus) (session.RepeatMode, error) {
	switch status {
	case LoopNone:
		return session.RepeatOff, nil
	case LoopPlaylist:
		return session.RepeatAll, nil
	case LoopTrack:
		return session.RepeatOne, nil
	}
	return session.RepeatOff, fmt.Errorf("unknown loop status %q", status)
}
