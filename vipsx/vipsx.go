//go:build vips

// Package vipsx crops encoded images with libvips. It is compiled only with the
// vips build tag since it needs libvips and cgo.
package vipsx

import (
	"errors"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/sebnyberg/pixelpruner"
)

// Available reports whether the package was built with libvips.
const Available = true

// ErrUnavailable is returned by NewCropper in builds without libvips.
var ErrUnavailable = errors.New("vipsx: built without libvips")

var _ pixelpruner.Cropper = new(Cropper)

var startOnce sync.Once

// Startup starts libvips with critical-only logging. It is called by
// NewCropper and is safe to call more than once.
func Startup() {
	startOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelCritical)
		vips.Startup(nil)
	})
}

// Shutdown stops libvips. No Cropper may be used afterwards.
func Shutdown() {
	vips.Shutdown()
}

type Cropper struct {
	mtx   sync.Mutex
	src   []byte
	level int
}

// NewCropper returns a cropper for an encoded image. level is the zlib level
// of the PNG output.
func NewCropper(encoded []byte, level int) (*Cropper, error) {
	Startup()
	return &Cropper{src: encoded, level: level}, nil
}

// Crop loads the image, applies its EXIF orientation, extracts the region and
// writes it as PNG.
func (c *Cropper) Crop(region image.Rectangle, out io.Writer) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	img, err := vips.NewImageFromBuffer(c.src)
	if err != nil {
		return fmt.Errorf("vips load err, %w", err)
	}
	defer img.Close()
	if err := img.AutoRotate(); err != nil {
		return fmt.Errorf("vips autorotate err, %w", err)
	}
	region = region.Intersect(image.Rect(0, 0, img.Width(), img.Height()))
	if region.Empty() {
		return pixelpruner.ErrEmptySelection
	}
	if err := img.ExtractArea(region.Min.X, region.Min.Y, region.Dx(), region.Dy()); err != nil {
		return fmt.Errorf("vips extract err, %w", err)
	}
	params := vips.NewPngExportParams()
	params.Compression = c.level
	buf, _, err := img.ExportPng(params)
	if err != nil {
		return fmt.Errorf("vips export err, %w", err)
	}
	_, err = out.Write(buf)
	return err
}
