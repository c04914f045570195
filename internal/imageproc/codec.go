package imageproc

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // imaging регистрирует bmp/tiff, webp подключаем сами
)

const (
	DefaultPNGCompression = 6
	DefaultJPEGQuality    = 100
)

// EncodeOptions - настройки кодирования результата
type EncodeOptions struct {
	PNGCompression int // 0..9 как у zlib
	JPEGQuality    int // 1..100
}

func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{PNGCompression: DefaultPNGCompression, JPEGQuality: DefaultJPEGQuality}
}

// Decode decodes an encoded image into an NRGBA raster with origin at (0,0).
// EXIF orientation of the source is applied, so the raster is always upright.
// The returned format is the registered decoder name ("jpeg", "png", "webp"...).
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty input", model.ErrDecode)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", model.ErrDecode, err)
	}

	return imaging.Clone(img), format, nil
}

// OutputFormat picks the encoder by the target file name. Unknown extensions fall back to PNG.
func OutputFormat(fileName string) imaging.Format {
	f, err := imaging.FormatFromFilename(fileName)
	if err != nil {
		return imaging.PNG
	}
	return f
}

func Encode(img image.Image, format imaging.Format, opts EncodeOptions) ([]byte, error) {
	var buf bytes.Buffer
	err := imaging.Encode(&buf, img, format,
		imaging.JPEGQuality(opts.jpegQuality()),
		imaging.PNGCompressionLevel(opts.pngLevel()),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrEncode, err)
	}
	return buf.Bytes(), nil
}

func (o EncodeOptions) jpegQuality() int {
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		return DefaultJPEGQuality
	}
	return o.JPEGQuality
}

// image/png умеет только четыре уровня, раскладываем шкалу 0..9 по ним
func (o EncodeOptions) pngLevel() png.CompressionLevel {
	switch {
	case o.PNGCompression <= 0:
		return png.NoCompression
	case o.PNGCompression <= 3:
		return png.BestSpeed
	case o.PNGCompression <= 6:
		return png.DefaultCompression
	default:
		return png.BestCompression
	}
}
