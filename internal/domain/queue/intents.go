package queue

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
)

// intent validates on the owner goroutine and hands the command to the worker.
// Only validation errors are returned; transport failures show up as LastError.
func (m *Machine) intent(kind session.CommandKind, build func(st *state) (session.Command, error)) error {
	return m.call(func() error {
		if m.st.conn != projector.Connected {
			return session.Reject(kind, session.ErrNoSession)
		}
		cmd, err := build(&m.st)
		if err != nil {
			log.Debug().Err(err).Msg("Intent rejected")
			return err
		}
		return m.enqueue(cmd)
	})
}

// Play replaces the transport queue with fromList and starts at track.
// The local queue changes only once the transport reports the new queue.
func (m *Machine) Play(track catalog.Track, fromList []catalog.Track) error {
	return m.intent(session.CmdPlay, func(*state) (session.Command, error) {
		if len(fromList) == 0 {
			return session.Command{}, session.Reject(session.CmdPlay, session.ErrEmptyList)
		}
		start := -1
		uris := make([]string, len(fromList))
		for i, t := range fromList {
			uris[i] = t.URI
			if start < 0 && t.ID == track.ID {
				start = i
			}
		}
		return session.Play(uris, max(start, 0)), nil
	})
}

// Append adds tracks to the end of the transport queue.
func (m *Machine) Append(tracks []catalog.Track) error {
	return m.intent(session.CmdAppend, func(*state) (session.Command, error) {
		if len(tracks) == 0 {
			return session.Command{}, session.Reject(session.CmdAppend, session.ErrEmptyList)
		}
		uris := make([]string, len(tracks))
		for i, t := range tracks {
			uris[i] = t.URI
		}
		return session.Append(uris), nil
	})
}

// PlayAt starts the queue item at index.
func (m *Machine) PlayAt(index int) error {
	return m.intent(session.CmdPlayAt, func(st *state) (session.Command, error) {
		if err := validIndex(session.CmdPlayAt, len(st.queue), index); err != nil {
			return session.Command{}, err
		}
		return session.PlayAt(index), nil
	})
}

// MoveQueueItem moves the item at from to to.
func (m *Machine) MoveQueueItem(from, to int) error {
	return m.intent(session.CmdMoveItem, func(st *state) (session.Command, error) {
		if err := validIndex(session.CmdMoveItem, len(st.queue), from, to); err != nil {
			return session.Command{}, err
		}
		return session.MoveItem(from, to), nil
	})
}

// RemoveQueueItem removes the item at index.
func (m *Machine) RemoveQueueItem(index int) error {
	return m.intent(session.CmdRemoveItem, func(st *state) (session.Command, error) {
		if err := validIndex(session.CmdRemoveItem, len(st.queue), index); err != nil {
			return session.Command{}, err
		}
		if index == st.active {
			m.pendingRemove = index
		}
		return session.RemoveItem(index), nil
	})
}

// Next skips to the next item.
func (m *Machine) Next() error {
	return m.intent(session.CmdNext, func(st *state) (session.Command, error) {
		if len(st.queue) == 0 {
			return session.Command{}, session.Reject(session.CmdNext, session.ErrEmptyQueue)
		}
		return session.Next(), nil
	})
}

// Previous goes back one item.
func (m *Machine) Previous() error {
	return m.intent(session.CmdPrevious, func(st *state) (session.Command, error) {
		if len(st.queue) == 0 {
			return session.Command{}, session.Reject(session.CmdPrevious, session.ErrEmptyQueue)
		}
		return session.Previous(), nil
	})
}

func (m *Machine) Pause() error {
	return m.intent(session.CmdPause, func(*state) (session.Command, error) {
		return session.Pause(), nil
	})
}

func (m *Machine) Resume() error {
	return m.intent(session.CmdResume, func(st *state) (session.Command, error) {
		if len(st.queue) == 0 {
			return session.Command{}, session.Reject(session.CmdResume, session.ErrEmptyQueue)
		}
		return session.Resume(), nil
	})
}

// Toggle pauses while playing and resumes otherwise.
func (m *Machine) Toggle() error {
	return m.intent(session.CmdResume, func(st *state) (session.Command, error) {
		if st.playing {
			return session.Pause(), nil
		}
		if len(st.queue) == 0 {
			return session.Command{}, session.Reject(session.CmdResume, session.ErrEmptyQueue)
		}
		return session.Resume(), nil
	})
}

// Stop stops playback and clears the transport queue.
func (m *Machine) Stop() error {
	return m.intent(session.CmdStop, func(*state) (session.Command, error) {
		return session.Stop(), nil
	})
}

// SeekTo seeks the current track to fraction of its duration.
func (m *Machine) SeekTo(fraction float64) error {
	return m.intent(session.CmdSeekTo, func(st *state) (session.Command, error) {
		if !(fraction >= 0 && fraction <= 1) {
			return session.Command{}, session.Reject(session.CmdSeekTo, session.ErrInvalidFraction)
		}
		if st.current == nil {
			return session.Command{}, session.Reject(session.CmdSeekTo, session.ErrNoActiveTrack)
		}
		return session.SeekTo(fraction), nil
	})
}

func (m *Machine) SetShuffle(enabled bool) error {
	return m.intent(session.CmdSetShuffle, func(*state) (session.Command, error) {
		return session.SetShuffle(enabled), nil
	})
}

func (m *Machine) SetRepeat(mode session.RepeatMode) error {
	return m.intent(session.CmdSetRepeat, func(*state) (session.Command, error) {
		return session.SetRepeat(mode), nil
	})
}

// Passthrough sends an opaque command straight to the session.
func (m *Machine) Passthrough(ctx context.Context, name string, args ...string) (map[string]string, error) {
	return m.session.Passthrough(ctx, name, args...)
}

// UpdateSleepTimer republishes the snapshot with the given timer status.
func (m *Machine) UpdateSleepTimer(st sleeptimer.Status) {
	m.post(func() {
		m.st.sleep = st
		m.publish()
	})
}

func validIndex(kind session.CommandKind, length int, indices ...int) error {
	if length == 0 {
		return session.Reject(kind, session.ErrEmptyQueue)
	}
	for _, i := range indices {
		if i < 0 || i >= length {
			return session.Reject(kind, session.ErrIndexOutOfRange)
		}
	}
	return nil
}
