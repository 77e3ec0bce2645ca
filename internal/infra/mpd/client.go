// Package mpd provides a wrapper around the gompd MPD client.
package mpd

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"
)

// Client wraps the MPD client with reconnection logic.
// Results are returned as plain maps so callers do not depend on gompd types.
type Client struct {
	mu       sync.RWMutex
	client   *mpd.Client
	host     string
	port     int
	password string
	closed   bool
}

// NewClient creates a new MPD client wrapper.
func NewClient(host string, port int, password string) *Client {
	return &Client{
		host:     host,
		port:     port,
		password: password,
	}
}

// Addr returns the host:port MPD is reached on.
func (c *Client) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// Connect establishes connection to MPD, replacing any previous connection.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		c.client.Close()
		c.client = nil
	}
	c.closed = false
	return c.connectLocked()
}

// connectLocked establishes connection (must hold lock).
func (c *Client) connectLocked() error {
	addr := c.Addr()
	log.Info().Str("addr", addr).Msg("Connecting to MPD")

	client, err := mpd.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to MPD: %w", err)
	}

	if c.password != "" {
		if err := client.Command("password %s", c.password).OK(); err != nil {
			client.Close()
			return fmt.Errorf("MPD authentication failed: %w", err)
		}
	}

	c.client = client
	log.Info().Msg("Connected to MPD")
	return nil
}

// ensureConnected checks the connection and reconnects if it dropped.
// A client that was never connected, or was closed, stays disconnected.
func (c *Client) ensureConnected() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("not connected")
	}
	if c.client == nil {
		return fmt.Errorf("not connected")
	}

	if err := c.client.Ping(); err != nil {
		log.Warn().Err(err).Msg("MPD connection lost, reconnecting...")
		c.client.Close()
		c.client = nil
		return c.connectLocked()
	}

	return nil
}

// Close closes the MPD connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.client != nil {
		err := c.client.Close()
		c.client = nil
		return err
	}
	return nil
}

// Ping checks if the connection is alive.
func (c *Client) Ping() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return c.client.Ping()
}

// do runs fn against a live connection.
func (c *Client) do(fn func(cl *mpd.Client) error) error {
	if err := c.ensureConnected(); err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return fmt.Errorf("not connected")
	}
	return fn(c.client)
}

// Status returns the current MPD status.
func (c *Client) Status() (map[string]string, error) {
	var attrs mpd.Attrs
	err := c.do(func(cl *mpd.Client) error {
		var err error
		attrs, err = cl.Status()
		return err
	})
	return attrs, err
}

// CurrentSong returns the currently playing song.
func (c *Client) CurrentSong() (map[string]string, error) {
	var attrs mpd.Attrs
	err := c.do(func(cl *mpd.Client) error {
		var err error
		attrs, err = cl.CurrentSong()
		return err
	})
	return attrs, err
}

// PlaylistInfo returns the current queue.
func (c *Client) PlaylistInfo() ([]map[string]string, error) {
	var items []mpd.Attrs
	err := c.do(func(cl *mpd.Client) error {
		var err error
		items, err = cl.PlaylistInfo(-1, -1)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toMaps(items), nil
}

// Play starts playback. If pos is -1, resumes current track.
func (c *Client) Play(pos int) error {
	if pos < 0 {
		pos = -1
	}
	return c.do(func(cl *mpd.Client) error { return cl.Play(pos) })
}

// Pause sets the pause state.
func (c *Client) Pause(pause bool) error {
	return c.do(func(cl *mpd.Client) error { return cl.Pause(pause) })
}

// Stop stops playback.
func (c *Client) Stop() error {
	return c.do(func(cl *mpd.Client) error { return cl.Stop() })
}

// Next plays the next song.
func (c *Client) Next() error {
	return c.do(func(cl *mpd.Client) error { return cl.Next() })
}

// Previous plays the previous song.
func (c *Client) Previous() error {
	return c.do(func(cl *mpd.Client) error { return cl.Previous() })
}

// SeekCur seeks to an absolute position in the current song.
func (c *Client) SeekCur(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	return c.do(func(cl *mpd.Client) error { return cl.SeekCur(pos, false) })
}

// SetRandom sets random/shuffle mode.
func (c *Client) SetRandom(on bool) error {
	return c.do(func(cl *mpd.Client) error { return cl.Random(on) })
}

// SetRepeat sets repeat mode.
func (c *Client) SetRepeat(on bool) error {
	return c.do(func(cl *mpd.Client) error { return cl.Repeat(on) })
}

// SetSingle sets single mode (repeat single song when repeat is on).
func (c *Client) SetSingle(on bool) error {
	return c.do(func(cl *mpd.Client) error { return cl.Single(on) })
}

// Move moves the song at position from to position to.
func (c *Client) Move(from, to int) error {
	return c.do(func(cl *mpd.Client) error { return cl.Move(from, from+1, to) })
}

// Delete removes the song at position pos from the queue.
func (c *Client) Delete(pos int) error {
	return c.do(func(cl *mpd.Client) error { return cl.Delete(pos, pos+1) })
}

// Clear clears the current queue.
func (c *Client) Clear() error {
	return c.do(func(cl *mpd.Client) error { return cl.Clear() })
}

// Add adds a URI to the queue.
func (c *Client) Add(uri string) error {
	return c.do(func(cl *mpd.Client) error { return cl.Add(uri) })
}

// ListAllInfo lists all songs in the database below uri.
func (c *Client) ListAllInfo(uri string) ([]map[string]string, error) {
	var items []mpd.Attrs
	err := c.do(func(cl *mpd.Client) error {
		var err error
		items, err = cl.ListAllInfo(uri)
		return err
	})
	if err != nil {
		return nil, err
	}
	return toMaps(items), nil
}

// ReadPicture retrieves embedded album art for a song.
func (c *Client) ReadPicture(uri string) ([]byte, error) {
	var data []byte
	err := c.do(func(cl *mpd.Client) error {
		var err error
		data, err = cl.ReadPicture(uri)
		return err
	})
	return data, err
}

// AlbumArt retrieves album art from the music directory (cover.jpg, etc).
func (c *Client) AlbumArt(uri string) ([]byte, error) {
	var data []byte
	err := c.do(func(cl *mpd.Client) error {
		var err error
		data, err = cl.AlbumArt(uri)
		return err
	})
	return data, err
}

// Command sends a raw protocol command and returns its response attributes.
// Arguments are quoted by gompd.
func (c *Client) Command(name string, args ...string) (map[string]string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, " \n") {
		return nil, fmt.Errorf("invalid command name %q", name)
	}

	format := name + strings.Repeat(" %s", len(args))
	params := make([]interface{}, len(args))
	for i, a := range args {
		params[i] = a
	}

	var attrs mpd.Attrs
	err := c.do(func(cl *mpd.Client) error {
		var err error
		attrs, err = cl.Command(format, params...).Attrs()
		return err
	})
	return attrs, err
}

// Watch starts watching MPD subsystem changes until ctx is cancelled.
// Subsystem names arrive on the first channel, watcher errors on the second.
// Both channels are closed when watching stops.
func (c *Client) Watch(ctx context.Context, subsystems ...string) (<-chan string, <-chan error, error) {
	watcher, err := mpd.NewWatcher("tcp", c.Addr(), c.password, subsystems...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ch := make(chan string, 10)
	errCh := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(errCh)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case subsystem, ok := <-watcher.Event:
				if !ok {
					return
				}
				select {
				case ch <- subsystem:
				case <-ctx.Done():
					return
				}
			case err, ok := <-watcher.Error:
				if !ok {
					return
				}
				log.Error().Err(err).Msg("MPD watcher error")
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return ch, errCh, nil
}

// toMaps converts gompd attribute lists.
func toMaps(items []mpd.Attrs) []map[string]string {
	out := make([]map[string]string, len(items))
	for i, item := range items {
		out[i] = item
	}
	return out
}

// ParseSeconds parses an MPD seconds field ("12.345" or "12") into milliseconds.
func ParseSeconds(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return int64(math.Round(f * 1000)), true
}
