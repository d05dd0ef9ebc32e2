//go:build !vips

package vipsx

import (
	"errors"
	"image"
	"io"
)

// Available reports whether the package was built with libvips.
const Available = false

// ErrUnavailable is returned by NewCropper in builds without libvips.
var ErrUnavailable = errors.New("vipsx: built without libvips, rebuild with -tags vips")

func Startup()  {}
func Shutdown() {}

type Cropper struct{}

func NewCropper(encoded []byte, level int) (*Cropper, error) {
	return nil, ErrUnavailable
}

func (c *Cropper) Crop(region image.Rectangle, out io.Writer) error {
	return ErrUnavailable
}
