// Package pngx crops decoded images in memory and encodes the result as PNG.
package pngx

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/sebnyberg/pixelpruner"
)

var _ pixelpruner.Cropper = new(Cropper)

type Cropper struct {
	img    image.Image
	level  png.CompressionLevel
	resize pixelpruner.Size
}

type Option func(*Cropper)

func WithCompression(level png.CompressionLevel) Option {
	return func(c *Cropper) { c.level = level }
}

// WithResize resizes every crop to size with a Lanczos filter.
func WithResize(size pixelpruner.Size) Option {
	return func(c *Cropper) { c.resize = size }
}

func NewCropper(img image.Image, opts ...Option) *Cropper {
	c := &Cropper{img: img}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Crop copies the region out of the image into a new buffer and writes it as
// PNG. The region is clamped to the image bounds first.
func (c *Cropper) Crop(r image.Rectangle, to io.Writer) error {
	out, err := c.Image(r)
	if err != nil {
		return err
	}
	return imaging.Encode(to, out, imaging.PNG, imaging.PNGCompressionLevel(c.level))
}

// Image returns the cropped (and possibly resized) pixels without encoding.
func (c *Cropper) Image(r image.Rectangle) (*image.NRGBA, error) {
	r = r.Intersect(c.img.Bounds())
	if r.Empty() {
		return nil, pixelpruner.ErrEmptySelection
	}
	out := imaging.Crop(c.img, r)
	if !c.resize.Empty() && pixelpruner.SizeOf(out.Rect) != c.resize {
		out = imaging.Resize(out, c.resize.Width, c.resize.Height, imaging.Lanczos)
	}
	return out, nil
}

// ParseCompression maps "default", "none", "speed" and "best" onto PNG
// compression levels.
func ParseCompression(s string) (png.CompressionLevel, error) {
	switch strings.ToLower(s) {
	case "", "default":
		return png.DefaultCompression, nil
	case "none":
		return png.NoCompression, nil
	case "speed":
		return png.BestSpeed, nil
	case "best":
		return png.BestCompression, nil
	}
	return 0, fmt.Errorf("unknown png compression %q", s)
}

// ZlibLevel returns the zlib level (0-9) a compression level corresponds to.
func ZlibLevel(level png.CompressionLevel) int {
	switch level {
	case png.NoCompression:
		return 0
	case png.BestSpeed:
		return 1
	case png.BestCompression:
		return 9
	}
	return 6
}
