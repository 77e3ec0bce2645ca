package cache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/infra/mpd"
)

// SongSource lists song attributes from the MPD database.
type SongSource interface {
	ListAllInfo(uri string) ([]map[string]string, error)
}

// Importer copies MPD's song listing into the tracks table.
type Importer struct {
	db     *DB
	source SongSource
	root   string
	prune  bool
}

// NewImporter creates an importer over the whole MPD database.
func NewImporter(db *DB, source SongSource) *Importer {
	return &Importer{db: db, source: source, prune: true}
}

// SetRoot limits the import to one directory of the MPD database.
func (b *Importer) SetRoot(uri string) {
	b.root = uri
}

// SetPrune controls whether tracks missing from MPD are removed.
func (b *Importer) SetPrune(prune bool) {
	b.prune = prune
}

// Run performs the import in a single transaction.
func (b *Importer) Run(ctx context.Context) (*ImportResult, error) {
	start := time.Now()
	log.Info().Str("root", b.root).Msg("Starting catalog import from MPD")

	b.db.SetImporting(true)
	defer b.db.SetImporting(false)

	items, err := b.source.ListAllInfo(b.root)
	if err != nil {
		return nil, fmt.Errorf("listallinfo: %w", err)
	}

	tx, err := b.db.BeginTx()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result := &ImportResult{}
	seen := make(map[string]struct{}, len(items))

	for i, attrs := range items {
		if i%500 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		t, ok := TrackFromAttrs(attrs)
		if !ok {
			continue
		}
		result.Seen++
		seen[t.URI] = struct{}{}

		if _, err := upsertTrack(tx, t); err != nil {
			return nil, err
		}
		result.Upserted++
	}

	if b.prune {
		removed, err := pruneTracks(tx, b.root, seen)
		if err != nil {
			return nil, fmt.Errorf("prune: %w", err)
		}
		result.Removed = removed
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit import: %w", err)
	}
	if err := b.db.MarkImportComplete(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	log.Info().
		Int("seen", result.Seen).
		Int("upserted", result.Upserted).
		Int("removed", result.Removed).
		Dur("duration", result.Duration).
		Msg("Catalog import complete")

	return result, nil
}

type txQuerier interface {
	execQueryer
	Query(query string, args ...any) (*sql.Rows, error)
}

// pruneTracks deletes tracks under root whose uri was not seen.
func pruneTracks(tx txQuerier, root string, seen map[string]struct{}) (int, error) {
	rows, err := tx.Query("SELECT id, uri FROM tracks")
	if err != nil {
		return 0, err
	}

	var stale []int64
	for rows.Next() {
		var id int64
		var uri string
		if err := rows.Scan(&id, &uri); err != nil {
			rows.Close()
			return 0, err
		}
		if !underRoot(uri, root) {
			continue
		}
		if _, ok := seen[uri]; !ok {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range stale {
		if _, err := tx.Exec("DELETE FROM tracks WHERE id = ?", id); err != nil {
			return 0, err
		}
	}
	return len(stale), nil
}

func underRoot(uri, root string) bool {
	if root == "" {
		return true
	}
	return len(uri) > len(root) && uri[:len(root)] == root && uri[len(root)] == '/'
}

// TrackFromAttrs converts one listallinfo entry. Directory and playlist
// entries report false.
func TrackFromAttrs(attrs map[string]string) (catalog.Track, bool) {
	uri := attrs["file"]
	if uri == "" {
		return catalog.Track{}, false
	}

	t := catalog.Track{
		URI:        uri,
		Title:      attrs["Title"],
		Artist:     attrs["Artist"],
		Album:      attrs["Album"],
		ArtworkRef: catalog.ArtworkRefFor(uri),
	}
	if t.Artist == "" {
		t.Artist = attrs["AlbumArtist"]
	}
	if ms, ok := mpd.ParseSeconds(attrs["duration"]); ok {
		t.Duration = ms
	} else if ms, ok := mpd.ParseSeconds(attrs["Time"]); ok {
		t.Duration = ms
	}
	return t, true
}
