// Package bmpx crops uncompressed BMP images by streaming only the rows of the
// cropping region, without decoding the whole image.
package bmpx

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"

	"github.com/sebnyberg/pixelpruner"
)

// ErrUnsupported is returned for BMP variants the streaming cropper does not
// handle. Callers fall back to a decoding cropper.
var ErrUnsupported = errors.New(".BMP: unsupported variant")

var _ pixelpruner.Cropper = new(Cropper)

// Cropper crops regions of one encoded BMP and writes them as PNG.
type Cropper struct {
	src   []byte
	level png.CompressionLevel
}

func NewCropper(encoded []byte, level png.CompressionLevel) *Cropper {
	return &Cropper{src: encoded, level: level}
}

// Crop streams the region into a small BMP, then re-encodes only that as PNG.
func (c *Cropper) Crop(region image.Rectangle, to io.Writer) error {
	var cropped bytes.Buffer
	if err := Crop(bytes.NewReader(c.src), &cropped, region); err != nil {
		return err
	}
	img, err := bmp.Decode(&cropped)
	if err != nil {
		return fmt.Errorf("decode cropped bmp err, %w", err)
	}
	return imaging.Encode(to, img, imaging.PNG, imaging.PNGCompressionLevel(c.level))
}

// CropFile crops the provided region of the BMP found at srcPath to a BMP at
// dstPath. For more info, see Crop().
func CropFile(srcPath, dstPath string, region image.Rectangle) error {
	srcPath = path.Clean(srcPath)
	src, err := os.OpenFile(srcPath, os.O_RDONLY, 0)
	if err != nil {
		return fmt.Errorf("open file %q err, %w", srcPath, err)
	}
	defer src.Close()
	dst, err := os.OpenFile(dstPath, os.O_RDWR|os.O_TRUNC|os.O_CREATE, 0640)
	if err != nil {
		return fmt.Errorf("open file %q err, %w", dstPath, err)
	}
	if err := Crop(src, dst, region); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return err
	}
	return dst.Close()
}

// Crop crops the provided region of the BMP found in the input stream to the
// output stream.
//
// The input BMP must be bottom-up, no alpha, and uncompressed. The region is
// clamped to the image bounds.
//
// If src is an io.Seeker, then the cropper will seek to skip pixels that
// are outside the cropping region.
//
// Cropping complexity scales primarily with number of cropped rows, not
// columns.
func Crop(src io.Reader, dst io.Writer, region image.Rectangle) error {
	hdr, err := DecodeHeader(src)
	if err != nil {
		return err
	}
	if hdr.TopDown {
		return fmt.Errorf("%w: top-down", ErrUnsupported)
	}
	if hdr.AllowAlpha {
		return fmt.Errorf("%w: alpha", ErrUnsupported)
	}

	region = region.Intersect(image.Rect(0, 0, hdr.Config.Width, hdr.Config.Height))
	if region.Empty() {
		return pixelpruner.ErrEmptySelection
	}

	bytesPerPixel := hdr.BitsPerPixel / 8
	rowBytes := stride(hdr.Config.Width, hdr.BitsPerPixel)
	outRowBytes := stride(region.Dx(), hdr.BitsPerPixel)

	// Rewrite size fields of the header for the cropped dimensions
	out := append([]byte(nil), hdr.HeaderBytes...)
	putUint32(out[2:6], uint32(len(out)+outRowBytes*region.Dy()))
	putUint32(out[18:22], uint32(region.Dx()))
	putUint32(out[22:26], uint32(region.Dy()))
	putUint32(out[34:38], uint32(outRowBytes*region.Dy()))
	if _, err := dst.Write(out); err != nil {
		return err
	}

	skip := discarder(src)

	// Rows are stored bottom-up, so the rows below the region come first
	if err := skip(rowBytes * (hdr.Config.Height - region.Max.Y)); err != nil {
		return err
	}

	// Each row is padded to 4 bytes, both in the input and in the output
	left := bytesPerPixel * region.Min.X
	mid := bytesPerPixel * region.Dx()
	right := rowBytes - left - mid
	row := make([]byte, outRowBytes)
	for y := 0; y < region.Dy(); y++ {
		if err := skip(left); err != nil {
			return err
		}
		if _, err := io.ReadFull(src, row[:mid]); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		if _, err := dst.Write(row); err != nil {
			return err
		}
		if err := skip(right); err != nil {
			return err
		}
	}
	return nil
}

// discarder seeks past n bytes when possible, otherwise copies them to discard.
func discarder(src io.Reader) func(n int) error {
	if s, ok := src.(io.Seeker); ok {
		return func(n int) error {
			_, err := s.Seek(int64(n), io.SeekCurrent)
			return err
		}
	}
	return func(n int) error {
		_, err := io.CopyN(io.Discard, src, int64(n))
		return err
	}
}

func stride(pixels, bitsPerPixel int) int {
	return ((pixels*bitsPerPixel + 31) / 32) * 4
}

func readUint16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

func readUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putUint32(b []byte, v uint32) {
	b[0], b[1], b[2], b[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

type DecodeResult struct {
	Config       image.Config
	BitsPerPixel int
	TopDown      bool
	AllowAlpha   bool
	HeaderBytes  []byte
	ImageOffset  uint32
}

// DecodeHeader is derived from 'x/image/bmp'. Unlike the upstream decoder, the
// header and palette bytes are retained so that they can be re-written to
// cropped images. On return r is positioned at the first pixel row.
func DecodeHeader(r io.Reader) (res DecodeResult, err error) {
	// Supported DIB headers: BITMAPINFOHEADER (40 bytes), BITMAPV4HEADER (108
	// bytes) and BITMAPV5HEADER (124 bytes)
	const (
		fileHeaderLen   = 14
		infoHeaderLen   = 40
		v4InfoHeaderLen = 108
		v5InfoHeaderLen = 124
		paletteLen      = 256 * 4
	)
	var empty DecodeResult
	b := make([]byte, fileHeaderLen+v5InfoHeaderLen+paletteLen)
	if _, err := io.ReadFull(r, b[:fileHeaderLen+4]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return empty, err
	}
	if string(b[:2]) != "BM" {
		return empty, errors.New("bmp: invalid format")
	}
	offset := readUint32(b[10:14])
	infoLen := readUint32(b[14:18])
	if infoLen != infoHeaderLen && infoLen != v4InfoHeaderLen && infoLen != v5InfoHeaderLen {
		return empty, fmt.Errorf("%w: info header length %d", ErrUnsupported, infoLen)
	}
	if _, err := io.ReadFull(r, b[fileHeaderLen+4:fileHeaderLen+infoLen]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return empty, err
	}
	width := int(int32(readUint32(b[18:22])))
	height := int(int32(readUint32(b[22:26])))
	if height < 0 {
		height, res.TopDown = -height, true
	}
	if width < 0 {
		return empty, fmt.Errorf("%w: negative width", ErrUnsupported)
	}
	// Only 1 plane, 8, 24 or 32 bits per pixel and no compression
	planes, bpp, compression := readUint16(b[26:28]), readUint16(b[28:30]), readUint32(b[30:34])
	// BI_BITFIELDS with the default masks is the same as no compression
	if compression == 3 && infoLen > infoHeaderLen &&
		readUint32(b[54:58]) == 0xff0000 && readUint32(b[58:62]) == 0xff00 &&
		readUint32(b[62:66]) == 0xff && readUint32(b[66:70]) == 0xff000000 {
		compression = 0
	}
	if planes != 1 || compression != 0 {
		return empty, fmt.Errorf("%w: compression %d", ErrUnsupported, compression)
	}
	headerLen := fileHeaderLen + infoLen
	res.ImageOffset = offset
	res.BitsPerPixel = int(bpp)
	switch bpp {
	case 8:
		if offset != headerLen+paletteLen {
			return empty, fmt.Errorf("%w: palette size", ErrUnsupported)
		}
		if _, err := io.ReadFull(r, b[headerLen:offset]); err != nil {
			return empty, err
		}
		pcm := make(color.Palette, 256)
		for i := range pcm {
			// BGR order, every 4th byte is padding
			p := b[int(headerLen)+4*i:]
			pcm[i] = color.RGBA{p[2], p[1], p[0], 0xFF}
		}
		res.Config = image.Config{ColorModel: pcm, Width: width, Height: height}
	case 24, 32:
		if offset != headerLen {
			return empty, fmt.Errorf("%w: pixel offset", ErrUnsupported)
		}
		res.Config = image.Config{ColorModel: color.RGBAModel, Width: width, Height: height}
		// For BITMAPINFOHEADER the 4th byte is padding; later headers carry an
		// alpha mask which is respected
		res.AllowAlpha = bpp == 32 && infoLen > infoHeaderLen
	default:
		return empty, fmt.Errorf("%w: %d bits per pixel", ErrUnsupported, bpp)
	}
	res.HeaderBytes = b[:offset]
	return res, nil
}
