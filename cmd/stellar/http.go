package main

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/projector"
	"github.com/edumarques81/stellar-queue/internal/infra/artwork"
	"github.com/edumarques81/stellar-queue/internal/infra/cache"
	"github.com/edumarques81/stellar-queue/internal/version"
)

// routes holds what the HTTP endpoints read from.
type routes struct {
	snapshot  func() *projector.Snapshot
	connected func() bool
	stats     func() (*cache.Stats, error)
	art       *artwork.Resolver
	socket    http.Handler
	staticDir string
}

func (rt *routes) handler() http.Handler {
	mux := http.NewServeMux()

	if rt.socket != nil {
		mux.Handle("/socket.io/", rt.socket)
	}
	mux.HandleFunc("/health", rt.health)
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})
	mux.HandleFunc("/api/v1/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, rt.snapshot())
	})
	mux.HandleFunc("/api/v1/catalog", rt.catalogStats)
	mux.HandleFunc("/albumart", rt.albumArt)

	if rt.staticDir != "" {
		log.Info().Str("dir", rt.staticDir).Msg("Serving static files")
		mux.Handle("/", spaHandler(rt.staticDir))
	}

	return corsMiddleware(mux)
}

func (rt *routes) health(w http.ResponseWriter, r *http.Request) {
	snap := rt.snapshot()
	body := map[string]interface{}{
		"status":     "ok",
		"mpd":        "connected",
		"connection": snap.Connection,
	}
	if !rt.connected() {
		body["status"] = "error"
		body["mpd"] = "disconnected"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (rt *routes) catalogStats(w http.ResponseWriter, r *http.Request) {
	if rt.stats == nil {
		http.Error(w, "catalog not available", http.StatusNotFound)
		return
	}
	stats, err := rt.stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// albumArt serves /albumart?path=<uri>[&size=small|medium|large].
func (rt *routes) albumArt(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		http.Error(w, "path parameter required", http.StatusBadRequest)
		return
	}
	size, err := artwork.ParseSize(q.Get("size"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if rt.art == nil {
		http.Error(w, "album art not available", http.StatusNotFound)
		return
	}

	img, err := rt.art.Resolve(path, size)
	if err != nil {
		log.Debug().Err(err).Str("path", path).Msg("Album art not found")
		http.Error(w, "album art not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", img.MimeType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.Write(img.Data)
}

// spaHandler serves dir, answering unknown paths with index.html.
func spaHandler(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	index := filepath.Join(dir, "index.html")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := filepath.Join(dir, filepath.Clean("/"+r.URL.Path))
		if r.URL.Path == "/" {
			p = index
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			http.ServeFile(w, r, index)
			return
		}
		fs.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

func newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
	}
}
