//go:build linux

package media

import (
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/rs/zerolog/log"
)

const (
	mprisInterface       = "org.mpris.MediaPlayer2"
	mprisPlayerInterface = "org.mpris.MediaPlayer2.Player"
	mprisBusName         = "org.mpris.MediaPlayer2.stellar"
	mprisObjectPath      = "/org/mpris/MediaPlayer2"
	propertiesInterface  = "org.freedesktop.DBus.Properties"

	identity = "Stellar"
)

// MPRISSession exports org.mpris.MediaPlayer2.Player on the session bus.
// D-Bus method calls arrive on godbus goroutines, so all fields are guarded.
type MPRISSession struct {
	conn *dbus.Conn

	mu         sync.Mutex
	handler    CommandHandler
	metadata   Metadata
	state      PlaybackState
	position   time.Duration
	updatedAt  time.Time
	shuffle    bool
	loopStatus LoopStatus
}

// NewSession claims the MPRIS bus name and exports the player object.
func NewSession() (Session, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	reply, err := conn.RequestName(mprisBusName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("bus name %s already taken", mprisBusName)
	}

	s := &MPRISSession{
		conn:       conn,
		state:      StateStopped,
		loopStatus: LoopNone,
	}

	for _, iface := range []string{mprisInterface, mprisPlayerInterface, propertiesInterface} {
		if err := conn.Export(s, dbus.ObjectPath(mprisObjectPath), iface); err != nil {
			conn.Close()
			return nil, fmt.Errorf("export %s: %w", iface, err)
		}
	}

	log.Info().Str("name", mprisBusName).Msg("MPRIS session registered")
	return s, nil
}

func (s *MPRISSession) UpdateMetadata(metadata Metadata) error {
	s.mu.Lock()
	s.metadata = metadata
	s.mu.Unlock()

	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"Metadata": dbus.MakeVariant(metadataMap(metadata)),
	})
}

func (s *MPRISSession) UpdatePlaybackState(state PlaybackState, position time.Duration) error {
	s.mu.Lock()
	changed := s.state != state
	s.state = state
	s.position = position
	s.updatedAt = time.Now()
	s.mu.Unlock()

	// Clients extrapolate position from Rate; Seeked resyncs them.
	if changed && state == StatePlaying {
		if err := s.emitSeeked(position); err != nil {
			return err
		}
	}
	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(state.String()),
	})
}

func (s *MPRISSession) UpdateShuffle(enabled bool) error {
	s.mu.Lock()
	s.shuffle = enabled
	s.mu.Unlock()

	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"Shuffle": dbus.MakeVariant(enabled),
	})
}

func (s *MPRISSession) UpdateLoopStatus(status LoopStatus) error {
	s.mu.Lock()
	s.loopStatus = status
	s.mu.Unlock()

	return s.emitPropertiesChanged(map[string]dbus.Variant{
		"LoopStatus": dbus.MakeVariant(string(status)),
	})
}

func (s *MPRISSession) SetCommandHandler(handler CommandHandler) {
	s.mu.Lock()
	s.handler = handler
	s.mu.Unlock()
}

func (s *MPRISSession) Close() error {
	if s.conn == nil {
		return nil
	}
	s.conn.ReleaseName(mprisBusName)
	return s.conn.Close()
}

// dispatch forwards a command to the handler, reporting rejections as D-Bus errors.
func (s *MPRISSession) dispatch(cmd Command, data interface{}) *dbus.Error {
	s.mu.Lock()
	h := s.handler
	s.mu.Unlock()

	if h == nil {
		return nil
	}
	if err := h.OnCommand(cmd, data); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}

// org.mpris.MediaPlayer2

func (s *MPRISSession) Raise() *dbus.Error { return nil }
func (s *MPRISSession) Quit() *dbus.Error  { return nil }

// org.mpris.MediaPlayer2.Player

func (s *MPRISSession) Play() *dbus.Error      { return s.dispatch(CmdPlay, nil) }
func (s *MPRISSession) Pause() *dbus.Error     { return s.dispatch(CmdPause, nil) }
func (s *MPRISSession) PlayPause() *dbus.Error { return s.dispatch(CmdPlayPause, nil) }
func (s *MPRISSession) Stop() *dbus.Error      { return s.dispatch(CmdStop, nil) }
func (s *MPRISSession) Next() *dbus.Error      { return s.dispatch(CmdNext, nil) }
func (s *MPRISSession) Previous() *dbus.Error  { return s.dispatch(CmdPrevious, nil) }

// Seek moves by offset microseconds.
func (s *MPRISSession) Seek(offset int64) *dbus.Error {
	return s.dispatch(CmdSeek, SeekOffset(time.Duration(offset)*time.Microsecond))
}

// SetPosition is ignored unless trackID names the current entry.
func (s *MPRISSession) SetPosition(trackID dbus.ObjectPath, position int64) *dbus.Error {
	s.mu.Lock()
	current := trackPath(s.metadata)
	s.mu.Unlock()

	if trackID != current {
		return nil
	}
	return s.dispatch(CmdSeek, time.Duration(position)*time.Microsecond)
}

func (s *MPRISSession) OpenUri(string) *dbus.Error {
	return dbus.MakeFailedError(fmt.Errorf("OpenUri is not supported"))
}

// org.freedesktop.DBus.Properties

func (s *MPRISSession) Get(iface, prop string) (dbus.Variant, *dbus.Error) {
	var props map[string]dbus.Variant
	switch iface {
	case mprisInterface:
		props = rootProperties()
	case mprisPlayerInterface:
		props = s.playerProperties()
	default:
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
	}
	v, ok := props[prop]
	if !ok {
		return dbus.Variant{}, dbus.MakeFailedError(fmt.Errorf("unknown property: %s", prop))
	}
	return v, nil
}

func (s *MPRISSession) GetAll(iface string) (map[string]dbus.Variant, *dbus.Error) {
	switch iface {
	case mprisInterface:
		return rootProperties(), nil
	case mprisPlayerInterface:
		return s.playerProperties(), nil
	}
	return nil, dbus.MakeFailedError(fmt.Errorf("unknown interface: %s", iface))
}

// Set applies writable player properties through the queue, never locally.
// The confirmed value comes back through UpdateShuffle/UpdateLoopStatus.
func (s *MPRISSession) Set(iface, prop string, value dbus.Variant) *dbus.Error {
	if iface != mprisPlayerInterface {
		return nil
	}

	switch prop {
	case "Shuffle":
		enabled, ok := value.Value().(bool)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for Shuffle"))
		}
		return s.dispatch(CmdSetShuffle, enabled)
	case "LoopStatus":
		status, ok := value.Value().(string)
		if !ok {
			return dbus.MakeFailedError(fmt.Errorf("invalid type for LoopStatus"))
		}
		return s.dispatch(CmdSetLoopStatus, LoopStatus(status))
	}
	return nil
}

func rootProperties() map[string]dbus.Variant {
	return map[string]dbus.Variant{
		"CanQuit":             dbus.MakeVariant(false),
		"CanRaise":            dbus.MakeVariant(false),
		"HasTrackList":        dbus.MakeVariant(false),
		"Identity":            dbus.MakeVariant(identity),
		"SupportedUriSchemes": dbus.MakeVariant([]string{}),
		"SupportedMimeTypes":  dbus.MakeVariant([]string{}),
	}
}

func (s *MPRISSession) playerProperties() map[string]dbus.Variant {
	s.mu.Lock()
	defer s.mu.Unlock()

	position := s.position
	if s.state == StatePlaying && !s.updatedAt.IsZero() {
		position += time.Since(s.updatedAt)
	}
	hasTrack := s.metadata.Title != "" || s.metadata.TrackID != 0

	return map[string]dbus.Variant{
		"PlaybackStatus": dbus.MakeVariant(s.state.String()),
		"Metadata":       dbus.MakeVariant(metadataMap(s.metadata)),
		"Position":       dbus.MakeVariant(position.Microseconds()),
		"Rate":           dbus.MakeVariant(1.0),
		"MinimumRate":    dbus.MakeVariant(1.0),
		"MaximumRate":    dbus.MakeVariant(1.0),
		"Volume":         dbus.MakeVariant(1.0),
		"CanGoNext":      dbus.MakeVariant(true),
		"CanGoPrevious":  dbus.MakeVariant(true),
		"CanPlay":        dbus.MakeVariant(hasTrack),
		"CanPause":       dbus.MakeVariant(hasTrack),
		"CanSeek":        dbus.MakeVariant(s.metadata.Duration > 0),
		"CanControl":     dbus.MakeVariant(true),
		"Shuffle":        dbus.MakeVariant(s.shuffle),
		"LoopStatus":     dbus.MakeVariant(string(s.loopStatus)),
	}
}

// trackPath is the mpris:trackid of an entry.
func trackPath(md Metadata) dbus.ObjectPath {
	if md.TrackID == 0 && md.Title == "" {
		return "/org/mpris/MediaPlayer2/TrackList/NoTrack"
	}
	return dbus.ObjectPath(fmt.Sprintf("/org/stellar/track/%d", md.TrackID))
}

func metadataMap(md Metadata) map[string]dbus.Variant {
	m := map[string]dbus.Variant{
		"mpris:trackid": dbus.MakeVariant(trackPath(md)),
	}
	if md.Title != "" {
		m["xesam:title"] = dbus.MakeVariant(md.Title)
	}
	if md.Artist != "" {
		m["xesam:artist"] = dbus.MakeVariant([]string{md.Artist})
	}
	if md.Album != "" {
		m["xesam:album"] = dbus.MakeVariant(md.Album)
	}
	if md.Duration > 0 {
		m["mpris:length"] = dbus.MakeVariant(md.Duration.Microseconds())
	}
	if md.ArtURL != "" {
		m["mpris:artUrl"] = dbus.MakeVariant(md.ArtURL)
	}
	return m
}

func (s *MPRISSession) emitSeeked(position time.Duration) error {
	return s.conn.Emit(dbus.ObjectPath(mprisObjectPath), mprisPlayerInterface+".Seeked", position.Microseconds())
}

func (s *MPRISSession) emitPropertiesChanged(props map[string]dbus.Variant) error {
	return s.conn.Emit(
		dbus.ObjectPath(mprisObjectPath),
		propertiesInterface+".PropertiesChanged",
		mprisPlayerInterface,
		props,
		[]string{},
	)
}
