package artwork

import (
	"github.com/rs/zerolog/log"
)

// Resolver finds the cover for a song: the embedded picture first, then a
// folder cover. Sized requests are served from the thumbnailer.
type Resolver struct {
	src    Source
	thumbs *Thumbnailer
}

// NewResolver creates a resolver. thumbs may be nil, in which case every
// request returns the original image.
func NewResolver(src Source, thumbs *Thumbnailer) *Resolver {
	return &Resolver{src: src, thumbs: thumbs}
}

// Resolve returns the artwork for uri at the requested size.
func (r *Resolver) Resolve(uri string, size Size) (*Image, error) {
	if size != Original && r.thumbs != nil {
		if data, ok := r.thumbs.Cached(uri, size); ok {
			return &Image{Data: data, MimeType: "image/jpeg", Source: "cache"}, nil
		}
	}

	img, err := r.fetch(uri)
	if err != nil {
		return nil, err
	}
	if size == Original || r.thumbs == nil {
		return img, nil
	}

	thumb, err := r.thumbs.Thumbnail(uri, img.Data, size)
	if err != nil {
		// Undecodable covers are still worth showing at full size.
		log.Debug().Err(err).Str("uri", uri).Msg("Thumbnail failed, serving original")
		return img, nil
	}
	return &Image{Data: thumb, MimeType: "image/jpeg", Source: img.Source + "+thumb"}, nil
}

func (r *Resolver) fetch(uri string) (*Image, error) {
	if data, err := r.src.ReadPicture(uri); err == nil && len(data) > 0 {
		return &Image{Data: data, MimeType: DetectType(data), Source: "embedded"}, nil
	}
	data, err := r.src.AlbumArt(uri)
	if err != nil || len(data) == 0 {
		if err != nil {
			log.Debug().Err(err).Str("uri", uri).Msg("No folder cover")
		}
		return nil, ErrNoArtwork
	}
	return &Image{Data: data, MimeType: DetectType(data), Source: "folder"}, nil
}
