package mpd_test

import (
	"context"
	"testing"
	"time"

	"github.com/edumarques81/stellar-queue/internal/infra/mpd"
)

func TestNewClient(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	if client == nil {
		t.Fatal("NewClient should return a non-nil client")
	}
	if got := client.Addr(); got != "localhost:6600" {
		t.Errorf("expected addr localhost:6600, got %s", got)
	}
}

func TestClientConnectFailure(t *testing.T) {
	// Test connection to non-existent server
	client := mpd.NewClient("localhost", 16600, "") // Wrong port

	err := client.Connect()
	if err == nil {
		t.Error("Connect should fail for non-existent server")
		client.Close()
	}
}

func TestClientPingWithoutConnect(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	if err := client.Ping(); err == nil {
		t.Error("Ping should fail when not connected")
	}
}

func TestClientCommandsWithoutConnect(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	tests := []struct {
		name string
		call func() error
	}{
		{"Status", func() error { _, err := client.Status(); return err }},
		{"CurrentSong", func() error { _, err := client.CurrentSong(); return err }},
		{"PlaylistInfo", func() error { _, err := client.PlaylistInfo(); return err }},
		{"Play", func() error { return client.Play(0) }},
		{"Pause", func() error { return client.Pause(true) }},
		{"Stop", func() error { return client.Stop() }},
		{"Next", func() error { return client.Next() }},
		{"Previous", func() error { return client.Previous() }},
		{"SeekCur", func() error { return client.SeekCur(10 * time.Second) }},
		{"SetRandom", func() error { return client.SetRandom(true) }},
		{"SetRepeat", func() error { return client.SetRepeat(true) }},
		{"SetSingle", func() error { return client.SetSingle(true) }},
		{"Move", func() error { return client.Move(0, 1) }},
		{"Delete", func() error { return client.Delete(0) }},
		{"Clear", func() error { return client.Clear() }},
		{"Add", func() error { return client.Add("test.flac") }},
		{"ListAllInfo", func() error { _, err := client.ListAllInfo(""); return err }},
		{"ReadPicture", func() error { _, err := client.ReadPicture("test.flac"); return err }},
		{"AlbumArt", func() error { _, err := client.AlbumArt("test.flac"); return err }},
		{"Command", func() error { _, err := client.Command("replay_gain_status"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); err == nil {
				t.Errorf("%s should fail when not connected", tt.name)
			}
		})
	}
}

func TestClientCommandRejectsInvalidName(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	for _, name := range []string{"", "  ", "play 1", "status\nclear"} {
		if _, err := client.Command(name); err == nil {
			t.Errorf("Command(%q) should fail", name)
		}
	}
}

func TestClientClosedStaysDisconnected(t *testing.T) {
	client := mpd.NewClient("localhost", 6600, "")

	if err := client.Close(); err != nil {
		t.Fatalf("Close on unconnected client should not fail: %v", err)
	}
	if _, err := client.Status(); err == nil {
		t.Error("Status should fail after Close")
	}
}

func TestClientWatchFailure(t *testing.T) {
	client := mpd.NewClient("localhost", 16600, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, _, err := client.Watch(ctx, "player"); err == nil {
		t.Error("Watch should fail for non-existent server")
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		input  string
		want   int64
		wantOK bool
	}{
		{"", 0, false},
		{"12", 12000, true},
		{"12.345", 12345, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
	}

	for _, tt := range tests {
		got, ok := mpd.ParseSeconds(tt.input)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("ParseSeconds(%q) = %d, %v; expected %d, %v", tt.input, got, ok, tt.want, tt.wantOK)
		}
	}
}
