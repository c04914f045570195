// Package imageproc provides the watermark compositing engine: decoding/encoding,
// placement geometry, background brightness sampling, adaptive recoloring and blending.
package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

// Options - параметры наложения одного ватермарка
type Options struct {
	Placement PlacementOptions
	Opacity   int // 0..100, 0 трактуется как 100
	Adaptive  bool
}

// ApplyWatermark places wm onto canvas in place and returns the geometry it used.
// With Adaptive set the watermark is recolored white or black depending on the
// brightness of the canvas under it, sampled before anything is drawn.
func ApplyWatermark(canvas *image.NRGBA, wm image.Image, opts Options) (Geometry, error) {
	geo, err := ResolveGeometry(canvas.Rect.Size(), wm.Bounds().Size(), opts.Placement)
	if err != nil {
		return Geometry{}, err
	}
	if geo.Empty() {
		return geo, nil
	}

	// масштабируем ватермарк до рассчитанного размера, пропорции уже учтены в геометрии
	mark := imaging.Resize(wm, geo.Width, geo.Height, imaging.Lanczos)

	if opts.Adaptive {
		avg := AverageLuma(canvas, geo.Rect())
		mark = Recolor(mark, Classify(avg).Fill())
	}

	Composite(canvas, mark, geo.Origin, OpacityFactor(opts.Opacity))

	return geo, nil
}
