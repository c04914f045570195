package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
)

var (
	FillWhite = colorful.Color{R: 1, G: 1, B: 1}
	FillBlack = colorful.Color{R: 0, G: 0, B: 0}
)

// Fill returns the contrasting fill: white on dark backgrounds, black on light ones.
func (b Background) Fill() colorful.Color {
	if b == BackgroundDark {
		return FillWhite
	}
	return FillBlack
}

// Recolor returns a copy of wm where every pixel with non-zero alpha gets the fill RGB.
// Alpha is never touched, fully transparent pixels are copied as is.
func Recolor(wm *image.NRGBA, fill colorful.Color) *image.NRGBA {
	dst := imaging.Clone(wm)
	r, g, b := fill.RGB255()

	w, h := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < h; y++ {
		row := dst.Pix[y*dst.Stride : y*dst.Stride+w*4]
		for i := 0; i < len(row); i += 4 {
			if row[i+3] == 0 {
				continue
			}
			row[i], row[i+1], row[i+2] = r, g, b
		}
	}

	return dst
}
