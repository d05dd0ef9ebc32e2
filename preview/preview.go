// Package preview renders the downscaled images a client shows and crops on,
// and the thumbnails of image galleries.
package preview

import (
	"bytes"
	"image"

	"github.com/disintegration/imaging"

	"github.com/sebnyberg/pixelpruner"
)

const (
	ThumbnailSize = 150

	thumbnailQuality = 85
	displayQuality   = 90
	originalQuality  = 95
)

// Render fits img into box and returns the rendered image together with the
// transform a client must send back with selections drawn on it.
func Render(img image.Image, box pixelpruner.Size) (*image.NRGBA, pixelpruner.DisplayTransform) {
	src := pixelpruner.SizeOf(img.Bounds())
	t := pixelpruner.FitDisplay(src, box)
	if t == pixelpruner.Identity(src) {
		return imaging.Clone(img), t
	}
	return imaging.Resize(img, t.RenderedWidth, t.RenderedHeight, imaging.Lanczos), t
}

// Display renders img into box and encodes it as JPEG.
func Display(img image.Image, box pixelpruner.Size) ([]byte, pixelpruner.DisplayTransform, error) {
	out, t := Render(img, box)
	quality := displayQuality
	if box.Empty() {
		quality = originalQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, t, err
	}
	return buf.Bytes(), t, nil
}

// Thumbnail returns a JPEG no larger than ThumbnailSize on either side.
func Thumbnail(img image.Image) ([]byte, error) {
	out := imaging.Fit(img, ThumbnailSize, ThumbnailSize, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
