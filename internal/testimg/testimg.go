// Package testimg generates images for tests.
package testimg

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// RandNRGBA returns a w*h image of random pixels. Alpha is random unless
// opaque is set.
func RandNRGBA(rng *rand.Rand, w, h int, opaque bool) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	if opaque {
		for i := 3; i < len(img.Pix); i += 4 {
			img.Pix[i] = 0xff
		}
	}
	return img
}

// Gradient returns an opaque image whose pixel (x, y) is (x%256, y%256, 0x80).
// Useful to check which region a crop came from.
func Gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x), uint8(y), 0x80, 0xff})
		}
	}
	return img
}

// Encode encodes img in format ("png", "jpeg", "gif", "bmp" or "tiff").
func Encode(t testing.TB, img image.Image, format string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case "gif":
		err = gif.Encode(&buf, img, nil)
	case "bmp":
		err = bmp.Encode(&buf, img)
	case "tiff":
		err = tiff.Encode(&buf, img, nil)
	default:
		t.Fatalf("unknown format %q", format)
	}
	require.NoError(t, err)
	return buf.Bytes()
}

// EncodeAlphaBMP encodes img as a bottom-up 32bpp BMP with a BITMAPV4HEADER and
// an alpha mask. bmp.Encode only writes BITMAPINFOHEADER, where the 4th byte
// of a pixel is padding and decoders read the image as opaque.
func EncodeAlphaBMP(img image.Image) []byte {
	const (
		fileHeaderLen = 14
		v4HeaderLen   = 108
	)
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pixLen := w * h * 4
	out := make([]byte, fileHeaderLen+v4HeaderLen, fileHeaderLen+v4HeaderLen+pixLen)
	le := binary.LittleEndian

	copy(out, "BM")
	le.PutUint32(out[2:], uint32(len(out)+pixLen))
	le.PutUint32(out[10:], fileHeaderLen+v4HeaderLen)

	info := out[fileHeaderLen:]
	le.PutUint32(info[0:], v4HeaderLen)
	le.PutUint32(info[4:], uint32(w))
	le.PutUint32(info[8:], uint32(h))
	le.PutUint16(info[12:], 1)
	le.PutUint16(info[14:], 32)
	le.PutUint32(info[16:], 3) // BI_BITFIELDS
	le.PutUint32(info[20:], uint32(pixLen))
	le.PutUint32(info[40:], 0xff0000)
	le.PutUint32(info[44:], 0xff00)
	le.PutUint32(info[48:], 0xff)
	le.PutUint32(info[52:], 0xff000000)
	le.PutUint32(info[56:], 0x73524742) // sRGB

	for y := b.Max.Y - 1; y >= b.Min.Y; y-- {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out = append(out, c.B, c.G, c.R, c.A)
		}
	}
	return out
}

// WriteFile encodes img by the extension of name and writes it into dir.
func WriteFile(t testing.TB, dir, name string, img image.Image) string {
	t.Helper()
	format := map[string]string{
		".png": "png", ".jpg": "jpeg", ".jpeg": "jpeg", ".gif": "gif",
		".bmp": "bmp", ".tif": "tiff", ".tiff": "tiff",
	}[filepath.Ext(name)]
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, Encode(t, img, format), 0o644))
	return p
}

// SamePixels fails unless a and b have the same size and the same NRGBA
// colours at every pixel.
func SamePixels(t testing.TB, want, got image.Image) {
	t.Helper()
	wb, gb := want.Bounds(), got.Bounds()
	require.Equal(t, wb.Size(), gb.Size())
	for y := 0; y < wb.Dy(); y++ {
		for x := 0; x < wb.Dx(); x++ {
			w := color.NRGBAModel.Convert(want.At(wb.Min.X+x, wb.Min.Y+y))
			g := color.NRGBAModel.Convert(got.At(gb.Min.X+x, gb.Min.Y+y))
			require.Equal(t, w, g, "(%v,%v)", x, y)
		}
	}
}
