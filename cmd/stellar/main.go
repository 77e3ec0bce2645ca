// Package main is the entry point for the Stellar queue daemon.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/edumarques81/stellar-queue/internal/config"
	"github.com/edumarques81/stellar-queue/internal/version"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string
	cfg := config.Defaults()
	var logCloser io.Closer

	root := &cobra.Command{
		Use:           "stellar",
		Short:         "Playback queue and session sync daemon for MPD",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			applyFlags(cmd, &cfg, loaded)
			if err := cfg.Validate(); err != nil {
				return err
			}
			logCloser, err = setupLogging(cfg, os.Stderr)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&envFile, "env-file", ".env", "Env file with STELLAR_* settings")
	f.StringVar(&cfg.MPDHost, "mpd-host", cfg.MPDHost, "MPD host")
	f.IntVar(&cfg.MPDPort, "mpd-port", cfg.MPDPort, "MPD port")
	f.StringVar(&cfg.MPDPassword, "mpd-password", cfg.MPDPassword, "MPD password")
	f.StringVar(&cfg.DBPath, "db", cfg.DBPath, "Catalog database path")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "Also write logs to this file (rotated)")
	f.BoolVar(&cfg.Debug, "debug", cfg.Debug, "Enable debug logging")

	root.AddCommand(newServeCmd(&cfg), newImportCmd(&cfg), newVersionCmd())
	return root
}

// applyFlags merges loaded settings into cfg for every flag the user did not set.
func applyFlags(cmd *cobra.Command, cfg *config.Config, loaded *config.Config) {
	flags := cmd.Flags()
	keep := func(name string) bool { return flags.Lookup(name) != nil && flags.Changed(name) }

	merged := *loaded
	if keep("mpd-host") {
		merged.MPDHost = cfg.MPDHost
	}
	if keep("mpd-port") {
		merged.MPDPort = cfg.MPDPort
	}
	if keep("mpd-password") {
		merged.MPDPassword = cfg.MPDPassword
	}
	if keep("db") {
		merged.DBPath = cfg.DBPath
	}
	if keep("log-file") {
		merged.LogFile = cfg.LogFile
	}
	if keep("debug") {
		merged.Debug = cfg.Debug
	}
	if keep("port") {
		merged.Port = cfg.Port
	}
	if keep("static") {
		merged.StaticDir = cfg.StaticDir
	}
	if keep("public-url") {
		merged.PublicURL = cfg.PublicURL
	}
	if keep("poll-interval") {
		merged.PollInterval = cfg.PollInterval
	}
	if keep("resync-window") {
		merged.ResyncWindow = cfg.ResyncWindow
	}
	if keep("max-remote-clients") {
		merged.MaxRemoteClients = cfg.MaxRemoteClients
	}
	if keep("artwork-dir") {
		merged.ArtworkDir = cfg.ArtworkDir
	}
	if keep("mpris") {
		merged.MPRIS = cfg.MPRIS
	}
	*cfg = merged
}

// setupLogging installs the global logger: console output, plus a rotated
// JSON log file when configured.
func setupLogging(cfg config.Config, console io.Writer) (io.Closer, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	cw := zerolog.ConsoleWriter{Out: console, TimeFormat: time.RFC3339}
	if cfg.LogFile == "" {
		log.Logger = log.Output(cw)
		return nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	file := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(cw, file)).With().Timestamp().Logger()
	return file, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading and logging.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetInfo().String())
		},
	}
}
