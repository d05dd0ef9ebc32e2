// Package pixelpruner maps crop selections drawn on a scaled-down preview onto the
// full-resolution source image, and defines the pieces shared by the Image Store,
// the Crop Engine and the crop backends.
//
// Selections arrive in displayed coordinates together with the size the image was
// rendered at. MapSelection turns that pair into a pixel region of the source,
// clamped to its bounds. Backends implementing Cropper then write the region as PNG.
package pixelpruner

import (
	"errors"
	"image"
	"io"
)

var (
	// ErrUnsupportedFormat is returned when an input cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrIndexOutOfRange is returned when an image index does not exist in a store.
	ErrIndexOutOfRange = errors.New("image index out of range")

	// ErrEmptySelection is returned when a selection has no area left after it has
	// been clamped to the source bounds. No file is written.
	ErrEmptySelection = errors.New("crop area empty or out of bounds")

	// ErrInvalidDisplay is returned for a display transform with a non-positive
	// rendered size.
	ErrInvalidDisplay = errors.New("invalid display size")

	// ErrInvalidPreset is returned for preset sizes or zoom levels that cannot
	// produce a crop.
	ErrInvalidPreset = errors.New("invalid crop preset")
)

type Cropper interface {
	// Crop crops the provided region out of an image and puts the result in
	// the provided writer as PNG
	Crop(r image.Rectangle, to io.Writer) error
}
