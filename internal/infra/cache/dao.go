package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
)

const trackColumns = `id, uri, title, artist, album, duration, artwork_ref, favorite, play_count, last_played`

// playedLayout sorts lexically in time order.
const playedLayout = "2006-01-02T15:04:05.000000000Z07:00"

// TrackStore is the catalog backed by the tracks and playlist tables.
// It implements catalog.Catalog.
type TrackStore struct {
	db *DB
}

var _ catalog.Catalog = (*TrackStore)(nil)

// NewTrackStore creates a store over an opened database.
func NewTrackStore(db *DB) *TrackStore {
	return &TrackStore{db: db}
}

func (s *TrackStore) conn() (*sql.DB, error) {
	db := s.db.DB()
	if db == nil {
		return nil, errNotOpen
	}
	return db, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrack(row rowScanner) (catalog.Track, error) {
	var t catalog.Track
	var favorite int
	var lastPlayed sql.NullString

	err := row.Scan(&t.ID, &t.URI, &t.Title, &t.Artist, &t.Album, &t.Duration,
		&t.ArtworkRef, &favorite, &t.PlayCount, &lastPlayed)
	if err != nil {
		return t, err
	}
	t.Favorite = favorite != 0
	if lastPlayed.Valid && lastPlayed.String != "" {
		t.LastPlayed, _ = time.Parse(playedLayout, lastPlayed.String)
	}
	return t, nil
}

func (s *TrackStore) queryTracks(query string, args ...any) ([]catalog.Track, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tracks := []catalog.Track{}
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (s *TrackStore) queryTrack(query string, args ...any) (*catalog.Track, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	t, err := scanTrack(db.QueryRow(query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, catalog.ErrTrackNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTracks returns every track in insertion order.
func (s *TrackStore) ListTracks() ([]catalog.Track, error) {
	return s.queryTracks("SELECT " + trackColumns + " FROM tracks ORDER BY id")
}

// TrackByID returns catalog.ErrTrackNotFound for an unknown id.
func (s *TrackStore) TrackByID(id int64) (*catalog.Track, error) {
	return s.queryTrack("SELECT "+trackColumns+" FROM tracks WHERE id = ?", id)
}

// TrackByURI returns catalog.ErrTrackNotFound for an unknown uri.
func (s *TrackStore) TrackByURI(uri string) (*catalog.Track, error) {
	return s.queryTrack("SELECT "+trackColumns+" FROM tracks WHERE uri = ?", uri)
}

// TracksByIDs returns the tracks with the given ids in the given order.
// Unknown ids are skipped.
func (s *TrackStore) TracksByIDs(ids []int64) ([]catalog.Track, error) {
	if len(ids) == 0 {
		return []catalog.Track{}, nil
	}
	all, err := s.ListTracks()
	if err != nil {
		return nil, err
	}
	return catalog.Filter{Kind: catalog.FilterPlaylist, TrackIDs: ids}.Apply(all), nil
}

// ToggleFavorite flips the favorite flag and returns the new value.
func (s *TrackStore) ToggleFavorite(id int64) (bool, error) {
	db, err := s.conn()
	if err != nil {
		return false, err
	}

	res, err := db.Exec(`UPDATE tracks SET favorite = 1 - favorite, updated_at = ? WHERE id = ?`,
		time.Now().Format(time.RFC3339), id)
	if err != nil {
		return false, fmt.Errorf("toggle favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, catalog.ErrTrackNotFound
	}

	var favorite int
	if err := db.QueryRow("SELECT favorite FROM tracks WHERE id = ?", id).Scan(&favorite); err != nil {
		return false, err
	}
	return favorite != 0, nil
}

// IncrementPlayCount bumps the play count and sets the last played time.
func (s *TrackStore) IncrementPlayCount(id int64, at time.Time) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec(`
		UPDATE tracks SET play_count = play_count + 1, last_played = ?, updated_at = ?
		WHERE id = ?
	`, at.UTC().Format(playedLayout), time.Now().Format(time.RFC3339), id)
	if err != nil {
		return fmt.Errorf("increment play count: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrTrackNotFound
	}
	return nil
}

// Delete removes a track and its playlist memberships.
func (s *TrackStore) Delete(id int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec("DELETE FROM tracks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete track: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return catalog.ErrTrackNotFound
	}
	return nil
}

// Upsert inserts or updates a track by uri and returns its id.
// Favorite and play history are kept on update.
func (s *TrackStore) Upsert(t catalog.Track) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	return upsertTrack(db, t)
}

type execQueryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

func upsertTrack(q execQueryer, t catalog.Track) (int64, error) {
	if t.URI == "" {
		return 0, fmt.Errorf("upsert track: empty uri")
	}
	now := time.Now().Format(time.RFC3339)
	_, err := q.Exec(`
		INSERT INTO tracks (uri, title, artist, album, duration, artwork_ref, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(uri) DO UPDATE SET
			title = excluded.title, artist = excluded.artist, album = excluded.album,
			duration = excluded.duration, artwork_ref = excluded.artwork_ref,
			updated_at = excluded.updated_at
	`, t.URI, t.Title, t.Artist, t.Album, t.Duration, t.ArtworkRef, now, now)
	if err != nil {
		return 0, fmt.Errorf("upsert track %s: %w", t.URI, err)
	}

	var id int64
	if err := q.QueryRow("SELECT id FROM tracks WHERE uri = ?", t.URI).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// Query returns the tracks selected by f.
func (s *TrackStore) Query(f catalog.Filter) ([]catalog.Track, error) {
	var conditions []string
	var args []any
	order := "id"
	limit := f.Limit

	switch f.Kind {
	case catalog.FilterAll, "":
	case catalog.FilterAlbum:
		conditions = append(conditions, "album = ? COLLATE NOCASE")
		args = append(args, f.Value)
	case catalog.FilterArtist:
		conditions = append(conditions, "artist = ? COLLATE NOCASE")
		args = append(args, f.Value)
	case catalog.FilterFavorites:
		conditions = append(conditions, "favorite = 1")
	case catalog.FilterRecents:
		conditions = append(conditions, "last_played IS NOT NULL AND last_played != ''")
		order = "last_played DESC"
		if limit <= 0 {
			limit = catalog.DefaultRecentsLimit
		}
	case catalog.FilterPlaylist:
		return s.queryPlaylist(f)
	default:
		return nil, fmt.Errorf("unknown filter kind %q", f.Kind)
	}

	query := "SELECT " + trackColumns + " FROM tracks"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY " + order
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	tracks, err := s.queryTracks(query, args...)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("kind", string(f.Kind)).Str("value", f.Value).Int("count", len(tracks)).Msg("Catalog query")
	return tracks, nil
}

// queryPlaylist resolves membership from TrackIDs, or from the playlist named by Value.
func (s *TrackStore) queryPlaylist(f catalog.Filter) ([]catalog.Track, error) {
	ids := f.TrackIDs
	if len(ids) == 0 && f.Value != "" {
		p, err := s.PlaylistByName(f.Value)
		if err != nil {
			return nil, err
		}
		if ids, err = s.PlaylistTrackIDs(p.ID); err != nil {
			return nil, err
		}
	}

	tracks, err := s.TracksByIDs(ids)
	if err != nil {
		return nil, err
	}
	if f.Limit > 0 && len(tracks) > f.Limit {
		tracks = tracks[:f.Limit]
	}
	return tracks, nil
}

// --- Playlist Operations ---

// CreatePlaylist creates an empty playlist and returns it.
func (s *TrackStore) CreatePlaylist(name string) (*Playlist, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("create playlist: empty name")
	}

	now := time.Now()
	res, err := db.Exec("INSERT INTO playlists (name, created_at) VALUES (?, ?)", name, now.Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("create playlist %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Playlist{ID: id, Name: name, CreatedAt: now.Truncate(time.Second)}, nil
}

// Playlists lists every playlist with its track count.
func (s *TrackStore) Playlists() ([]Playlist, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query(`
		SELECT p.id, p.name, p.created_at, COUNT(pt.track_id)
		FROM playlists p LEFT JOIN playlist_tracks pt ON pt.playlist_id = p.id
		GROUP BY p.id ORDER BY p.name COLLATE NOCASE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var p Playlist
		var createdAt sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &createdAt, &p.TrackCount); err != nil {
			return nil, err
		}
		if createdAt.Valid {
			p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
		}
		playlists = append(playlists, p)
	}
	return playlists, rows.Err()
}

// PlaylistByName returns ErrPlaylistNotFound for an unknown name.
func (s *TrackStore) PlaylistByName(name string) (*Playlist, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	var p Playlist
	var createdAt sql.NullString
	err = db.QueryRow("SELECT id, name, created_at FROM playlists WHERE name = ?", name).
		Scan(&p.ID, &p.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlaylistNotFound
	}
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt.String)
	}
	return &p, nil
}

// SetPlaylistTracks replaces the playlist contents with trackIDs, in order.
func (s *TrackStore) SetPlaylistTracks(playlistID int64, trackIDs []int64) error {
	tx, err := s.db.BeginTx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM playlists WHERE id = ?", playlistID).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrPlaylistNotFound
	}

	if _, err := tx.Exec("DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
		return err
	}
	for pos, id := range trackIDs {
		if _, err := tx.Exec("INSERT INTO playlist_tracks (playlist_id, position, track_id) VALUES (?, ?, ?)",
			playlistID, pos, id); err != nil {
			return fmt.Errorf("add track %d to playlist: %w", id, err)
		}
	}
	return tx.Commit()
}

// PlaylistTrackIDs returns the playlist's track ids in order.
func (s *TrackStore) PlaylistTrackIDs(playlistID int64) ([]int64, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.Query("SELECT track_id FROM playlist_tracks WHERE playlist_id = ? ORDER BY position", playlistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeletePlaylist removes a playlist and its membership rows.
func (s *TrackStore) DeletePlaylist(playlistID int64) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	res, err := db.Exec("DELETE FROM playlists WHERE id = ?", playlistID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}
