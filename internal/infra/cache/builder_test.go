package cache_test

import (
	"context"
	"errors"
	"testing"

	"github.com/edumarques81/stellar-queue/internal/domain/catalog"
	"github.com/edumarques81/stellar-queue/internal/infra/cache"
)

func trackAt(uri string) catalog.Track {
	return catalog.Track{URI: uri, Title: catalog.BaseName(uri)}
}

type fakeSource struct {
	items []map[string]string
	err   error
	root  string
}

func (f *fakeSource) ListAllInfo(uri string) ([]map[string]string, error) {
	f.root = uri
	return f.items, f.err
}

func TestTrackFromAttrs(t *testing.T) {
	tests := []struct {
		name     string
		attrs    map[string]string
		ok       bool
		title    string
		artist   string
		duration int64
	}{
		{"directory", map[string]string{"directory": "Albums"}, false, "", "", 0},
		{"tagged", map[string]string{"file": "a/b.flac", "Title": "B", "Artist": "A", "duration": "201.512"}, true, "B", "A", 201512},
		{"album artist fallback", map[string]string{"file": "a/c.flac", "AlbumArtist": "Various", "Time": "60"}, true, "", "Various", 60000},
		{"bad duration", map[string]string{"file": "a/d.flac", "duration": "n/a"}, true, "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, ok := cache.TrackFromAttrs(tt.attrs)
			if ok != tt.ok {
				t.Fatalf("Expected ok=%v, got %v", tt.ok, ok)
			}
			if !ok {
				return
			}
			if tr.Title != tt.title || tr.Artist != tt.artist || tr.Duration != tt.duration {
				t.Errorf("Unexpected track %+v", tr)
			}
			if tr.ArtworkRef == "" {
				t.Error("Expected an artwork reference")
			}
		})
	}
}

func TestImporterRun(t *testing.T) {
	db := openTestDB(t)
	store := cache.NewTrackStore(db)

	stale, _ := store.Upsert(trackAt("old/gone.flac"))
	src := &fakeSource{items: []map[string]string{
		{"directory": "new"},
		{"file": "new/1.flac", "Title": "One", "duration": "100"},
		{"file": "new/2.flac", "Title": "Two", "duration": "200"},
		{"playlist": "new/list.m3u"},
	}}

	res, err := cache.NewImporter(db, src).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Seen != 2 || res.Upserted != 2 || res.Removed != 1 {
		t.Errorf("Unexpected result %+v", res)
	}
	if _, err := store.TrackByID(stale); err == nil {
		t.Error("Track missing from MPD should be pruned")
	}

	stats, _ := db.GetStats()
	if stats.TrackCount != 2 || stats.LastImport.IsZero() || stats.Importing {
		t.Errorf("Unexpected stats %+v", stats)
	}
}

func TestImporterRootAndNoPrune(t *testing.T) {
	db := openTestDB(t)
	store := cache.NewTrackStore(db)

	outside, _ := store.Upsert(trackAt("other/keep.flac"))
	src := &fakeSource{items: []map[string]string{{"file": "NAS/x.flac"}}}

	imp := cache.NewImporter(db, src)
	imp.SetRoot("NAS")
	res, err := imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if src.root != "NAS" {
		t.Errorf("Expected listing of NAS, got %q", src.root)
	}
	if res.Removed != 0 {
		t.Errorf("Tracks outside the root must be kept, removed %d", res.Removed)
	}
	if _, err := store.TrackByID(outside); err != nil {
		t.Errorf("Track outside root was removed: %v", err)
	}

	imp.SetRoot("")
	imp.SetPrune(false)
	src.items = nil
	res, err = imp.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Removed != 0 {
		t.Errorf("Prune disabled, removed %d", res.Removed)
	}
}

func TestImporterErrors(t *testing.T) {
	db := openTestDB(t)

	src := &fakeSource{err: errors.New("connection refused")}
	if _, err := cache.NewImporter(db, src).Run(context.Background()); err == nil {
		t.Error("Expected listing error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	src = &fakeSource{items: []map[string]string{{"file": "a.flac"}}}
	if _, err := cache.NewImporter(db, src).Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
