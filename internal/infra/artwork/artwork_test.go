package artwork_test

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"sync/atomic"
	"testing"

	"github.com/edumarques81/stellar-queue/internal/infra/artwork"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 40, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func decodedBounds(t *testing.T, data []byte) image.Rectangle {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	return img.Bounds()
}

type fakeSource struct {
	embedded map[string][]byte
	folder   map[string][]byte
	calls    atomic.Int32
}

func (s *fakeSource) ReadPicture(uri string) ([]byte, error) {
	s.calls.Add(1)
	if d, ok := s.embedded[uri]; ok {
		return d, nil
	}
	return nil, errors.New("no picture")
}

func (s *fakeSource) AlbumArt(uri string) ([]byte, error) {
	s.calls.Add(1)
	if d, ok := s.folder[uri]; ok {
		return d, nil
	}
	return nil, errors.New("no cover")
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in      string
		want    artwork.Size
		wantErr bool
	}{
		{"", artwork.Original, false},
		{"original", artwork.Original, false},
		{"small", artwork.Small, false},
		{"medium", artwork.Medium, false},
		{"large", artwork.Large, false},
		{"huge", artwork.Original, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := artwork.ParseSize(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSize(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSize(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D}, "image/png"},
		{"gif", []byte("GIF89a......"), "image/gif"},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), "image/webp"},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01"), "image/jpeg"},
		{"short", []byte("GIF"), "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := artwork.DetectType(tt.data); got != tt.want {
				t.Errorf("DetectType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestThumbnailScalesLongestEdge(t *testing.T) {
	thumbs := artwork.NewThumbnailer(t.TempDir())

	data, err := thumbs.Thumbnail("a/b.flac", encodePNG(t, 800, 600), artwork.Small)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}

	b := decodedBounds(t, data)
	if b.Dx() != 150 {
		t.Errorf("width = %d, want 150", b.Dx())
	}
	if want := 600 * 150 / 800; b.Dy() != want {
		t.Errorf("height = %d, want %d", b.Dy(), want)
	}

	if _, err := os.Stat(thumbs.Path("a/b.flac", artwork.Small)); err != nil {
		t.Errorf("thumbnail not cached on disk: %v", err)
	}
}

func TestThumbnailDoesNotUpscale(t *testing.T) {
	thumbs := artwork.NewThumbnailer("")

	data, err := thumbs.Thumbnail("tiny.flac", encodePNG(t, 40, 60), artwork.Large)
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if b := decodedBounds(t, data); b.Dx() != 40 || b.Dy() != 60 {
		t.Errorf("bounds = %v, want 40x60", b)
	}
	if thumbs.Path("tiny.flac", artwork.Large) != "" {
		t.Error("empty dir should disable the disk cache")
	}
}

func TestThumbnailRejectsGarbage(t *testing.T) {
	thumbs := artwork.NewThumbnailer(t.TempDir())
	if _, err := thumbs.Thumbnail("x", []byte("not an image"), artwork.Small); err == nil {
		t.Error("expected decode error")
	}
	if _, err := thumbs.Thumbnail("x", encodePNG(t, 10, 10), artwork.Original); err == nil {
		t.Error("expected error for original size")
	}
}

func TestThumbnailPurge(t *testing.T) {
	thumbs := artwork.NewThumbnailer(t.TempDir())
	if _, err := thumbs.Thumbnail("a", encodePNG(t, 300, 300), artwork.Small); err != nil {
		t.Fatal(err)
	}
	if err := thumbs.Purge(); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if _, ok := thumbs.Cached("a", artwork.Small); ok {
		t.Error("thumbnail survived purge")
	}
}

func TestResolverFallbackOrder(t *testing.T) {
	cover := encodePNG(t, 20, 20)
	src := &fakeSource{
		embedded: map[string][]byte{"embedded.flac": cover},
		folder:   map[string][]byte{"folder.flac": cover, "embedded.flac": []byte("unused")},
	}
	r := artwork.NewResolver(src, nil)

	tests := []struct {
		uri     string
		source  string
		wantErr error
	}{
		{"embedded.flac", "embedded", nil},
		{"folder.flac", "folder", nil},
		{"missing.flac", "", artwork.ErrNoArtwork},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			img, err := r.Resolve(tt.uri, artwork.Small)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if img.Source != tt.source || img.MimeType != "image/png" {
				t.Errorf("got source=%q mime=%q", img.Source, img.MimeType)
			}
		})
	}
}

func TestResolverServesCachedThumbnail(t *testing.T) {
	src := &fakeSource{embedded: map[string][]byte{"song.flac": encodePNG(t, 600, 600)}}
	r := artwork.NewResolver(src, artwork.NewThumbnailer(t.TempDir()))

	first, err := r.Resolve("song.flac", artwork.Medium)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if first.Source != "embedded+thumb" || first.MimeType != "image/jpeg" {
		t.Errorf("first = %q %q", first.Source, first.MimeType)
	}
	if b := decodedBounds(t, first.Data); b.Dx() != 300 {
		t.Errorf("width = %d, want 300", b.Dx())
	}

	calls := src.calls.Load()
	second, err := r.Resolve("song.flac", artwork.Medium)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if second.Source != "cache" {
		t.Errorf("second source = %q, want cache", second.Source)
	}
	if src.calls.Load() != calls {
		t.Error("cached thumbnail should not hit MPD")
	}
}

func TestResolverServesOriginalWhenUndecodable(t *testing.T) {
	raw := []byte("\xff\xd8\xff\xe0 truncated jpeg")
	src := &fakeSource{folder: map[string][]byte{"odd.flac": raw}}
	r := artwork.NewResolver(src, artwork.NewThumbnailer(t.TempDir()))

	img, err := r.Resolve("odd.flac", artwork.Small)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !bytes.Equal(img.Data, raw) || img.Source != "folder" {
		t.Errorf("expected original bytes from folder, got source %q", img.Source)
	}
}
