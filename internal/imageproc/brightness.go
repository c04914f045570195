package imageproc

import "image"

// берем каждый десятый пиксель области, чтобы не гонять весь буфер на больших картинках
const sampleStep = 10

// lumaThreshold splits dark backgrounds from light ones
const lumaThreshold = 128

type Background int

const (
	BackgroundDark Background = iota
	BackgroundLight
)

// AverageLuma walks the region (clipped to the image) as a row-major pixel buffer,
// samples every tenth pixel and returns the mean of 0.299R + 0.587G + 0.114B.
// An empty region averages to 0.
func AverageLuma(img *image.NRGBA, region image.Rectangle) float64 {
	r := region.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}

	rw := r.Dx()
	total := rw * r.Dy()

	var sum float64
	var n int
	for k := 0; k < total; k += sampleStep {
		i := img.PixOffset(r.Min.X+k%rw, r.Min.Y+k/rw)
		p := img.Pix[i : i+3 : i+3]
		sum += 0.299*float64(p[0]) + 0.587*float64(p[1]) + 0.114*float64(p[2])
		n++
	}

	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func Classify(avgLuma float64) Background {
	if avgLuma < lumaThreshold {
		return BackgroundDark
	}
	return BackgroundLight
}
