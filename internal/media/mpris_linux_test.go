//go:build linux

package media

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

func TestMetadataMap(t *testing.T) {
	m := metadataMap(Metadata{
		TrackID:  12,
		Title:    "So What",
		Artist:   "Miles Davis",
		Album:    "Kind of Blue",
		Duration: 9*time.Minute + 22*time.Second,
		ArtURL:   "http://player.local:3000/albumart?path=a.flac",
	})

	if got := m["mpris:trackid"].Value(); got != dbus.ObjectPath("/org/stellar/track/12") {
		t.Errorf("trackid = %v", got)
	}
	if got := m["xesam:artist"].Value(); !reflect.DeepEqual(got, []string{"Miles Davis"}) {
		t.Errorf("artist = %v", got)
	}
	if got := m["mpris:length"].Value(); got != int64(562000000) {
		t.Errorf("length = %v", got)
	}
	if got := m["mpris:artUrl"].Value(); got != "http://player.local:3000/albumart?path=a.flac" {
		t.Errorf("artUrl = %v", got)
	}
}

func TestMetadataMapWithoutTrack(t *testing.T) {
	m := metadataMap(Metadata{})
	if len(m) != 1 {
		t.Errorf("expected only the trackid, got %v", m)
	}
	if got := m["mpris:trackid"].Value(); got != dbus.ObjectPath("/org/mpris/MediaPlayer2/TrackList/NoTrack") {
		t.Errorf("trackid = %v", got)
	}
}

func TestMPRISSessionDispatch(t *testing.T) {
	var got []Command
	var data []interface{}
	s := &MPRISSession{state: StatePlaying, metadata: Metadata{TrackID: 3, Title: "T", Duration: time.Minute}}
	s.SetCommandHandler(CommandHandlerFunc(func(cmd Command, d interface{}) error {
		got = append(got, cmd)
		data = append(data, d)
		if cmd == CmdStop {
			return errors.New("rejected")
		}
		return nil
	}))

	if err := s.PlayPause(); err != nil {
		t.Errorf("PlayPause: %v", err)
	}
	if err := s.Seek(-5000000); err != nil {
		t.Errorf("Seek: %v", err)
	}
	if err := s.SetPosition("/org/stellar/track/3", 10000000); err != nil {
		t.Errorf("SetPosition: %v", err)
	}
	if err := s.SetPosition("/org/stellar/track/4", 10000000); err != nil {
		t.Errorf("stale SetPosition: %v", err)
	}
	if err := s.Set(mprisPlayerInterface, "LoopStatus", dbus.MakeVariant("Track")); err != nil {
		t.Errorf("Set LoopStatus: %v", err)
	}
	if err := s.Stop(); err == nil {
		t.Error("handler rejection should surface as a D-Bus error")
	}

	wantCmds := []Command{CmdPlayPause, CmdSeek, CmdSeek, CmdSetLoopStatus, CmdStop}
	if !reflect.DeepEqual(got, wantCmds) {
		t.Fatalf("commands = %v, want %v", got, wantCmds)
	}
	if data[1] != SeekOffset(-5*time.Second) {
		t.Errorf("seek data = %v", data[1])
	}
	if data[2] != 10*time.Second {
		t.Errorf("set position data = %v", data[2])
	}
	if data[3] != LoopTrack {
		t.Errorf("loop data = %v", data[3])
	}
}

func TestMPRISPlayerProperties(t *testing.T) {
	s := &MPRISSession{state: StatePaused, position: 15 * time.Second, shuffle: true, loopStatus: LoopPlaylist}

	v, derr := s.Get(mprisPlayerInterface, "PlaybackStatus")
	if derr != nil || v.Value() != "Paused" {
		t.Errorf("PlaybackStatus = %v, %v", v, derr)
	}
	v, _ = s.Get(mprisPlayerInterface, "Position")
	if v.Value() != int64(15000000) {
		t.Errorf("paused position should not advance, got %v", v.Value())
	}
	if v, _ := s.Get(mprisPlayerInterface, "CanSeek"); v.Value() != false {
		t.Error("CanSeek should be false without a duration")
	}
	if _, derr := s.Get(mprisPlayerInterface, "Bogus"); derr == nil {
		t.Error("unknown property should fail")
	}
	if _, derr := s.GetAll("org.example.Nope"); derr == nil {
		t.Error("unknown interface should fail")
	}
	all, _ := s.GetAll(mprisInterface)
	if all["Identity"].Value() != identity {
		t.Errorf("Identity = %v", all["Identity"].Value())
	}
}
