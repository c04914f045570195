package imageproc

import (
	"fmt"
	"image"
	"math"

	"github.com/UnendingLoop/MarkFlow/internal/model"
)

// отступ от края основы для предустановленных позиций
const edgeInset = 10.0

// PlacementOptions - where and how big the watermark should be
type PlacementOptions struct {
	Position model.Placement
	Scale    int // 0..100, доля диагонали основы
	AnchorX  int // 0..100, только для custom
	AnchorY  int // 0..100, только для custom
}

// Geometry is the resolved draw rectangle of the watermark inside the base image.
type Geometry struct {
	Width  int
	Height int
	Origin image.Point
}

func (g Geometry) Empty() bool {
	return g.Width <= 0 || g.Height <= 0
}

func (g Geometry) Rect() image.Rectangle {
	return image.Rect(g.Origin.X, g.Origin.Y, g.Origin.X+g.Width, g.Origin.Y+g.Height)
}

// ResolveGeometry sizes the watermark so its diagonal is Scale percent of the base
// diagonal, anchors its center according to Position and clamps the result so the
// whole rectangle stays inside the base. A zero-area watermark yields an empty Geometry.
func ResolveGeometry(baseSize, wmSize image.Point, opts PlacementOptions) (Geometry, error) {
	pos := opts.Position
	if pos == "" {
		pos = model.DefaultPlacement
	}

	bw, bh := float64(baseSize.X), float64(baseSize.Y)

	var cx, cy float64
	switch pos {
	case model.PlaceTopLeft:
		cx, cy = edgeInset, edgeInset
	case model.PlaceTopRight:
		cx, cy = bw-edgeInset, edgeInset
	case model.PlaceBottomLeft:
		cx, cy = edgeInset, bh-edgeInset
	case model.PlaceBottomRight:
		cx, cy = bw-edgeInset, bh-edgeInset
	case model.PlaceCenter:
		cx, cy = bw/2, bh/2
	case model.PlaceCustom:
		cx = bw * float64(opts.AnchorX) / 100
		cy = bh * float64(opts.AnchorY) / 100
	default:
		return Geometry{}, fmt.Errorf("%w: %q", model.ErrIncorrectPlacement, pos)
	}

	w, h := scaledSize(baseSize, wmSize, opts.Scale)
	if w <= 0 || h <= 0 {
		return Geometry{}, nil
	}

	// якорь - это центр ватермарка, зажимаем его так, чтобы прямоугольник не вылезал за основу
	fw, fh := float64(w), float64(h)
	cx = clamp(cx, fw/2, bw-fw/2)
	cy = clamp(cy, fh/2, bh-fh/2)

	origin := image.Pt(
		clampInt(int(math.Round(cx-fw/2)), 0, baseSize.X-w),
		clampInt(int(math.Round(cy-fh/2)), 0, baseSize.Y-h),
	)

	return Geometry{Width: w, Height: h, Origin: origin}, nil
}

// scaledSize applies the diagonal-ratio formula and shrinks the result to fit the base.
func scaledSize(base, wm image.Point, scale int) (int, int) {
	if scale <= 0 || base.X <= 0 || base.Y <= 0 || wm.X <= 0 || wm.Y <= 0 {
		return 0, 0
	}

	baseDiag := math.Hypot(float64(base.X), float64(base.Y))
	wmDiag := math.Hypot(float64(wm.X), float64(wm.Y))
	factor := baseDiag * float64(scale) / 100 / wmDiag

	fw, fh := float64(wm.X)*factor, float64(wm.Y)*factor
	if fw > float64(base.X) || fh > float64(base.Y) {
		fit := math.Min(float64(base.X)/fw, float64(base.Y)/fh)
		fw, fh = fw*fit, fh*fit
	}

	return min(int(math.Round(fw)), base.X), min(int(math.Round(fh)), base.Y)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
