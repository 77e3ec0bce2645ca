package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-queue/internal/config"
	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/domain/queue"
	"github.com/edumarques81/stellar-queue/internal/domain/session"
	"github.com/edumarques81/stellar-queue/internal/domain/sleeptimer"
	"github.com/edumarques81/stellar-queue/internal/infra/artwork"
	"github.com/edumarques81/stellar-queue/internal/infra/cache"
	"github.com/edumarques81/stellar-queue/internal/infra/mpd"
	"github.com/edumarques81/stellar-queue/internal/media"
	"github.com/edumarques81/stellar-queue/internal/transport/socketio"
	"github.com/edumarques81/stellar-queue/internal/version"
)

func newServeCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue daemon and its UI transport",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	f.StringVar(&cfg.StaticDir, "static", cfg.StaticDir, "Directory to serve static files from (optional)")
	f.StringVar(&cfg.PublicURL, "public-url", cfg.PublicURL, "Base URL for artwork links in media controls")
	f.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Position poll interval while playing")
	f.DurationVar(&cfg.ResyncWindow, "resync-window", cfg.ResyncWindow, "Window in which queue changes share one resync")
	f.IntVar(&cfg.MaxRemoteClients, "max-remote-clients", cfg.MaxRemoteClients, "Remote UI clients kept before the oldest is evicted (0 = unlimited)")
	f.StringVar(&cfg.ArtworkDir, "artwork-dir", cfg.ArtworkDir, "Thumbnail cache directory (empty disables caching)")
	f.BoolVar(&cfg.MPRIS, "mpris", cfg.MPRIS, "Expose MPRIS media controls on the session bus")
	return cmd
}

func serve(ctx context.Context, cfg config.Config) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	info := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", info.String())
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("mpd", cfg.MPDAddr()).
		Bool("password_set", cfg.MPDPassword != "").
		Str("db", cfg.DBPath).
		Dur("poll_interval", cfg.PollInterval).
		Bool("mpris", cfg.MPRIS).
		Msg("Configuration")

	db := cache.NewDB(cfg.DBPath)
	if err := db.Open(); err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	defer db.Close()
	store := cache.NewTrackStore(db)
	prefs := cache.NewPreferences(db)

	// The adapter owns its transport handle; artwork uses a separate connection.
	transport := mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
	artClient := mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
	defer artClient.Close()
	covers := artwork.NewResolver(artClient, artwork.NewThumbnailer(cfg.ArtworkDir))

	adapter := session.NewAdapter(transport, session.Options{PollInterval: cfg.PollInterval})
	defer adapter.Release()
	proj := projector.New()
	defer proj.Close()
	machine := queue.New(adapter, store, proj, queue.Options{ResyncWindow: cfg.ResyncWindow})

	timer := sleeptimer.New(prefs, machine.Stop)
	timer.OnChange(machine.UpdateSleepTimer)
	defer timer.Cancel()

	socketServer, err := socketio.NewServer(machine, proj, store, timer, socketio.Options{
		MaxRemoteClients: cfg.MaxRemoteClients,
	})
	if err != nil {
		return fmt.Errorf("create socket.io server: %w", err)
	}
	defer socketServer.Close()

	var wg sync.WaitGroup
	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debug().Str("component", name).Msg("Stopped")
		}()
	}

	run("machine", func() {
		if err := machine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("Queue machine stopped")
		}
	})
	run("session", func() {
		backoff := session.Backoff{Initial: cfg.ReconnectDelay, Max: cfg.ReconnectMax, Factor: 2}
		if err := session.KeepConnected(ctx, adapter, backoff); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("Session supervisor stopped")
		}
	})
	run("socket.io", func() { socketServer.Run(ctx) })

	if cfg.MPRIS {
		if ms, err := media.NewSession(); err != nil {
			log.Warn().Err(err).Msg("MPRIS unavailable, media controls disabled")
		} else {
			defer ms.Close()
			bridge := media.NewBridge(ms, machine, cfg.PublicURL)
			run("mpris", func() { bridge.Run(ctx, proj) })
		}
	}

	rt := &routes{
		snapshot:  proj.Current,
		connected: adapter.Connected,
		stats:     db.GetStats,
		art:       covers,
		socket:    socketServer,
		staticDir: cfg.StaticDir,
	}
	server := newHTTPServer(cfg.ListenAddr(), rt.handler())

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("HTTP server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	cancel()
	adapter.Release()
	wg.Wait()

	log.Info().Msg("Server stopped")
	return serveErr
}
