package artwork

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif" // GIF decoder
	"image/jpeg"
	_ "image/png" // PNG decoder
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // WebP decoder
)

// Thumbnailer scales cover images to JPEG thumbnails, keeping them under dir.
// An empty dir disables the disk cache.
type Thumbnailer struct {
	dir string
}

// NewThumbnailer creates a thumbnailer caching into dir/thumbs.
func NewThumbnailer(dir string) *Thumbnailer {
	if dir != "" {
		dir = filepath.Join(dir, "thumbs")
	}
	return &Thumbnailer{dir: dir}
}

// Path returns the cache file for key at size, or "" when caching is disabled.
func (t *Thumbnailer) Path(key string, size Size) string {
	if t.dir == "" {
		return ""
	}
	sum := md5.Sum([]byte(key))
	return filepath.Join(t.dir, fmt.Sprintf("%s_%d.jpg", hex.EncodeToString(sum[:]), size))
}

// Cached returns a previously generated thumbnail.
func (t *Thumbnailer) Cached(key string, size Size) ([]byte, bool) {
	p := t.Path(key, size)
	if p == "" {
		return nil, false
	}
	data, err := os.ReadFile(p)
	if err != nil || len(data) == 0 {
		return nil, false
	}
	return data, true
}

// Thumbnail scales data so its longest edge is size and encodes it as JPEG.
// Images already within size are re-encoded without upscaling.
func (t *Thumbnailer) Thumbnail(key string, data []byte, size Size) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid thumbnail size %d", size)
	}
	if cached, ok := t.Cached(key, size); ok {
		return cached, nil
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	log.Debug().
		Str("key", key).
		Str("format", format).
		Int("size", int(size)).
		Msg("Generating thumbnail")

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resize(img, int(size)), &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}

	if p := t.Path(key, size); p != "" {
		if err := t.store(p, buf.Bytes()); err != nil {
			log.Warn().Err(err).Str("path", p).Msg("Failed to cache thumbnail")
		}
	}
	return buf.Bytes(), nil
}

// store writes through a temp file so readers never see a partial thumbnail.
func (t *Thumbnailer) store(path string, data []byte) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("create thumbnail directory: %w", err)
	}
	tmp, err := os.CreateTemp(t.dir, ".thumb-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Purge removes every cached thumbnail.
func (t *Thumbnailer) Purge() error {
	if t.dir == "" {
		return nil
	}
	return os.RemoveAll(t.dir)
}

// resize scales src to fit within maxSize, keeping the aspect ratio.
func resize(src image.Image, maxSize int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxSize && h <= maxSize {
		return src
	}

	var newW, newH int
	if w > h {
		newW = maxSize
		newH = max(1, int(float64(h)*float64(maxSize)/float64(w)))
	} else {
		newH = maxSize
		newW = max(1, int(float64(w)*float64(maxSize)/float64(h)))
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)
	return dst
}
