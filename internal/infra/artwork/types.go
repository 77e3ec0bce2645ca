// Package artwork serves cover images for queue entries: MPD's embedded or
// folder artwork, optionally scaled to a cached JPEG thumbnail.
package artwork

import (
	"errors"
	"fmt"
)

// ErrNoArtwork is returned when neither the embedded picture nor a folder cover exists.
var ErrNoArtwork = errors.New("no artwork found")

// Source fetches raw artwork bytes. *mpd.Client implements it.
type Source interface {
	// ReadPicture retrieves artwork embedded in the file's tags.
	ReadPicture(uri string) ([]byte, error)
	// AlbumArt retrieves a cover file (cover.jpg, folder.jpg, ...) next to the song.
	AlbumArt(uri string) ([]byte, error)
}

// Size is the longest edge of a thumbnail in pixels. Original keeps the source bytes.
type Size int

const (
	Original Size = 0
	// Small is for queue rows.
	Small Size = 150
	// Medium is for grid views.
	Medium Size = 300
	// Large is for the now-playing view.
	Large Size = 500
)

// ParseSize accepts "", "original", "small", "medium" and "large".
func ParseSize(s string) (Size, error) {
	switch s {
	case "", "original":
		return Original, nil
	case "small":
		return Small, nil
	case "medium":
		return Medium, nil
	case "large":
		return Large, nil
	}
	return Original, fmt.Errorf("unknown artwork size %q", s)
}

// Image is a resolved cover.
type Image struct {
	Data     []byte
	MimeType string
	Source   string // "embedded" or "folder", plus "+thumb" when scaled
}

// DetectType detects the image format from its magic bytes, defaulting to JPEG.
func DetectType(data []byte) string {
	if len(data) >= 12 {
		switch {
		case data[0] == 0x89 && data[1] == 'P' && data[2] == 'N' && data[3] == 'G':
			return "image/png"
		case data[0] == 'G' && data[1] == 'I' && data[2] == 'F':
			return "image/gif"
		case string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
			return "image/webp"
		}
	}
	return "image/jpeg"
}
