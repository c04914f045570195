package imageproc

import (
	"image"
	"math"
)

// OpacityFactor converts a 0..100 opacity into a blend factor.
// Zero (and anything below) means fully opaque: clients have always relied on
// an unset opacity drawing the watermark at full strength.
func OpacityFactor(opacity int) float64 {
	if opacity <= 0 || opacity >= 100 {
		return 1
	}
	return float64(opacity) / 100
}

// Composite draws wm over canvas at origin using straight-alpha "over" blending,
// with the watermark alpha multiplied by opacity. The canvas is modified in place;
// the part of wm falling outside the canvas is ignored.
func Composite(canvas, wm *image.NRGBA, origin image.Point, opacity float64) {
	opacity = math.Min(math.Max(opacity, 0), 1)

	paste := image.Rectangle{Min: origin, Max: origin.Add(wm.Rect.Size())}
	inter := paste.Intersect(canvas.Rect)
	if inter.Empty() || opacity == 0 {
		return
	}

	for y := inter.Min.Y; y < inter.Max.Y; y++ {
		for x := inter.Min.X; x < inter.Max.X; x++ {
			di := canvas.PixOffset(x, y)
			si := wm.PixOffset(wm.Rect.Min.X+x-origin.X, wm.Rect.Min.Y+y-origin.Y)
			blendOver(canvas.Pix[di:di+4:di+4], wm.Pix[si:si+4:si+4], opacity)
		}
	}
}

func blendOver(d, s []uint8, opacity float64) {
	sa := float64(s[3]) / 255 * opacity
	if sa == 0 {
		return
	}
	da := float64(d[3]) / 255
	outA := sa + da*(1-sa)

	for c := 0; c < 3; c++ {
		v := (float64(s[c])*sa + float64(d[c])*da*(1-sa)) / outA
		d[c] = uint8(math.Min(math.Round(v), 255))
	}
	d[3] = uint8(math.Min(math.Round(outA*255), 255))
}
