// Package exifmeta carries EXIF metadata from an original JPEG into a freshly encoded one
// without touching the compressed image data.
package exifmeta

import (
	"errors"
	"fmt"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

var ErrNoExif = errors.New("JPEG has no EXIF segment")

// Extract finds the Exif APP1 segment of a JPEG stream and decodes it into a Block.
func Extract(jpegData []byte) (*Block, error) {
	segs, _, err := splitJPEG(jpegData)
	if err != nil {
		return nil, err
	}
	raw := findExif(segs)
	if raw == nil {
		return nil, ErrNoExif
	}
	return DecodeBlock(raw)
}

// StripOrientation removes the orientation tag from the main image and the thumbnail.
// Pixels are already upright after decoding, a stale tag would rotate them twice.
func StripOrientation(b *Block) bool {
	main := b.Delete(IFD0, TagOrientation)
	thumb := b.Delete(IFD1, TagOrientation)
	return main || thumb
}

// Preserve copies the metadata of original into encoded, minus orientation.
// It never fails the caller: on any EXIF problem the encoded bytes are returned as is
// together with an error wrapping model.ErrExif, which is meant to be logged only.
// A source without EXIF is not an error.
func Preserve(original, encoded []byte) ([]byte, error) {
	block, err := Extract(original)
	if errors.Is(err, ErrNoExif) {
		return encoded, nil
	}
	if err != nil {
		return encoded, fmt.Errorf("%w: extract: %v", model.ErrExif, err)
	}

	StripOrientation(block)

	tiffData, err := block.Marshal()
	if err != nil {
		return encoded, fmt.Errorf("%w: marshal: %v", model.ErrExif, err)
	}

	out, err := Insert(encoded, tiffData)
	if err != nil {
		return encoded, fmt.Errorf("%w: insert: %v", model.ErrExif, err)
	}
	return out, nil
}
