// Package config loads daemon settings from defaults, an optional .env file
// and STELLAR_* environment variables. Command-line flags are bound on top
// of the loaded values by the caller.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "STELLAR_"

// Config holds the daemon settings.
type Config struct {
	Port      string
	StaticDir string
	PublicURL string // base for artwork links handed to the OS media session

	MPDHost     string
	MPDPort     int
	MPDPassword string

	DBPath     string
	ArtworkDir string // thumbnail cache, empty disables it

	PollInterval   time.Duration
	ResyncWindow   time.Duration
	ReconnectDelay time.Duration
	ReconnectMax   time.Duration

	MaxRemoteClients int
	MPRIS            bool

	LogFile string
	Debug   bool
}

// Defaults returns the built-in settings.
func Defaults() Config {
	return Config{
		Port:             "3001",
		MPDHost:          "localhost",
		MPDPort:          6600,
		DBPath:           "data/stellar.db",
		ArtworkDir:       "data/artwork",
		PollInterval:     200 * time.Millisecond,
		ResyncWindow:     25 * time.Millisecond,
		ReconnectDelay:   500 * time.Millisecond,
		ReconnectMax:     30 * time.Second,
		MaxRemoteClients: 4,
	}
}

// Load reads envFiles (".env" when none are given) without overriding
// variables already set, then applies STELLAR_* variables over the defaults.
// A missing env file is not an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				log.Debug().Str("file", f).Msg("No env file, using environment and defaults")
				continue
			}
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Defaults()
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("PORT", &cfg.Port)
	str("STATIC_DIR", &cfg.StaticDir)
	str("PUBLIC_URL", &cfg.PublicURL)
	str("MPD_HOST", &cfg.MPDHost)
	num("MPD_PORT", &cfg.MPDPort)
	str("MPD_PASSWORD", &cfg.MPDPassword)
	str("DB_PATH", &cfg.DBPath)
	str("ARTWORK_DIR", &cfg.ArtworkDir)
	dur("POLL_INTERVAL", &cfg.PollInterval)
	dur("RESYNC_WINDOW", &cfg.ResyncWindow)
	dur("RECONNECT_DELAY", &cfg.ReconnectDelay)
	dur("RECONNECT_MAX", &cfg.ReconnectMax)
	num("MAX_REMOTE_CLIENTS", &cfg.MaxRemoteClients)
	flag("MPRIS", &cfg.MPRIS)
	str("LOG_FILE", &cfg.LogFile)
	flag("DEBUG", &cfg.Debug)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func lookup(key string) (string, bool) {
	return os.LookupEnv(EnvPrefix + key)
}

// Validate checks ranges after flags have been applied.
func (c *Config) Validate() error {
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.MPDPort <= 0 || c.MPDPort > 65535 {
		return fmt.Errorf("invalid MPD port %d", c.MPDPort)
	}
	if c.MPDHost == "" {
		return errors.New("MPD host is required")
	}
	if c.DBPath == "" {
		return errors.New("database path is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.ResyncWindow < 0 {
		return fmt.Errorf("resync window must not be negative, got %s", c.ResyncWindow)
	}
	if c.MaxRemoteClients < 0 {
		return fmt.Errorf("max remote clients must not be negative, got %d", c.MaxRemoteClients)
	}
	return nil
}

// MPDAddr returns host:port of the MPD server.
func (c *Config) MPDAddr() string {
	return net.JoinHostPort(c.MPDHost, strconv.Itoa(c.MPDPort))
}

// ListenAddr returns the HTTP listen address.
func (c *Config) ListenAddr() string {
	return ":" + c.Port
}
