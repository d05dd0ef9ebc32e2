package pixelpruner

import (
	"image"
	"math"
)

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Bounds returns the rectangle (0,0)-(Width,Height).
func (s Size) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// SizeOf returns the size of a rectangle.
func SizeOf(r image.Rectangle) Size {
	return Size{Width: r.Dx(), Height: r.Dy()}
}

// Point is a location in displayed coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SelectionRect is a user-drawn rectangle in displayed coordinates.
type SelectionRect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Canon returns the rectangle with non-negative width and height, so that a
// selection dragged towards the top-left covers the same area.
func (s SelectionRect) Canon() SelectionRect {
	if s.Width < 0 {
		s.X, s.Width = s.X+s.Width, -s.Width
	}
	if s.Height < 0 {
		s.Y, s.Height = s.Y+s.Height, -s.Height
	}
	return s
}

func (s SelectionRect) finite() bool {
	for _, v := range [...]float64{s.X, s.Y, s.Width, s.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// DisplayTransform holds the size an image was rendered at on screen.
type DisplayTransform struct {
	RenderedWidth  int `json:"width"`
	RenderedHeight int `json:"height"`
}

// Identity returns the transform of an image shown at its native size.
func Identity(src Size) DisplayTransform {
	return DisplayTransform{RenderedWidth: src.Width, RenderedHeight: src.Height}
}

// Scale returns the factors mapping displayed coordinates onto src. The axes are
// independent; they differ when the display did not preserve the aspect ratio.
func (t DisplayTransform) Scale(src Size) (sx, sy float64, err error) {
	if t.RenderedWidth <= 0 || t.RenderedHeight <= 0 {
		return 0, 0, ErrInvalidDisplay
	}
	sx = float64(src.Width) / float64(t.RenderedWidth)
	sy = float64(src.Height) / float64(t.RenderedHeight)
	return sx, sy, nil
}

// Clamp limits r to the bounds of src. The result is empty when r lies entirely
// outside. Clamping an in-bounds rectangle returns it unchanged.
func Clamp(r image.Rectangle, src Size) image.Rectangle {
	return r.Intersect(src.Bounds())
}

// MapSelection converts a selection drawn on a display rendering into a pixel
// region of the source image.
//
// The origin is scaled and rounded, the extent is scaled and rounded on its own,
// and the resulting rectangle is clamped to src. Selections that end up without
// area return ErrEmptySelection.
func MapSelection(sel SelectionRect, t DisplayTransform, src Size) (image.Rectangle, error) {
	sx, sy, err := t.Scale(src)
	if err != nil {
		return image.Rectangle{}, err
	}
	if !sel.finite() || src.Empty() {
		return image.Rectangle{}, ErrEmptySelection
	}
	sel = sel.Canon()
	x0, x1 := span(sel.X, sel.Width, sx, src.Width)
	y0, y1 := span(sel.Y, sel.Height, sy, src.Height)
	r := Clamp(image.Rect(x0, y0, x1, y1), src)
	if r.Empty() {
		return image.Rectangle{}, ErrEmptySelection
	}
	return r, nil
}

// span scales a 1-D interval and clamps both ends to [0, limit] before the
// conversion to int, so far out-of-range selections cannot overflow.
func span(origin, extent, scale float64, limit int) (lo, hi int) {
	a := math.Round(origin * scale)
	b := a + math.Round(extent*scale)
	return clampPixel(a, limit), clampPixel(b, limit)
}

func clampPixel(v float64, limit int) int {
	if v <= 0 {
		return 0
	}
	if v >= float64(limit) {
		return limit
	}
	return int(v)
}

// FitDisplay returns the size src is rendered at inside box, keeping its aspect
// ratio. Images are never scaled up, and an empty box means native size.
func FitDisplay(src, box Size) DisplayTransform {
	if box.Empty() || src.Empty() {
		return Identity(src)
	}
	scale := math.Min(
		float64(box.Width)/float64(src.Width),
		float64(box.Height)/float64(src.Height),
	)
	if scale >= 1 {
		return Identity(src)
	}
	return DisplayTransform{
		RenderedWidth:  max(1, int(math.Round(float64(src.Width)*scale))),
		RenderedHeight: max(1, int(math.Round(float64(src.Height)*scale))),
	}
}

// PresetRegion returns the source region for a click-centred preset crop.
//
// The preset is divided by zoom, so zooming in selects a smaller area that is
// later resized back up to the preset. The box is centred on the clicked pixel
// and shifted, not shrunk, to stay inside the image; it only shrinks when the
// image itself is smaller than the box.
func PresetRegion(click Point, t DisplayTransform, src Size, preset Size, zoom float64) (image.Rectangle, error) {
	if preset.Empty() || !(zoom > 0) || math.IsInf(zoom, 0) {
		return image.Rectangle{}, ErrInvalidPreset
	}
	sx, sy, err := t.Scale(src)
	if err != nil {
		return image.Rectangle{}, err
	}
	if src.Empty() || math.IsNaN(click.X) || math.IsNaN(click.Y) {
		return image.Rectangle{}, ErrEmptySelection
	}
	ew := max(1, int(float64(preset.Width)/zoom))
	eh := max(1, int(float64(preset.Height)/zoom))
	cx := clampPixel(math.Trunc(click.X*sx), src.Width)
	cy := clampPixel(math.Trunc(click.Y*sy), src.Height)

	x := max(0, min(cx-ew/2, src.Width-ew))
	y := max(0, min(cy-eh/2, src.Height-eh))
	w := min(ew, src.Width-x)
	h := min(eh, src.Height-y)
	return image.Rect(x, y, x+w, y+h), nil
}
