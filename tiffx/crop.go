// Package tiffx crops uncompressed, strip-organised TIFF images by reading only
// the rows of the cropping region.
//
// Only a subset of TIFF 6.0 is handled: a single image (the first IFD), no
// compression, chunky planar configuration, 8 bits per sample, grayscale or
// RGB with an optional alpha sample. This is the layout x/image/tiff and most
// scanners write by default. Anything else returns ErrUnsupported so that
// callers can fall back to a full decode.
//
// https://web.archive.org/web/20210108174645/https://www.adobe.io/content/dam/udp/en/open/standards/tiff/TIFF6.pdf
package tiffx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"

	"github.com/disintegration/imaging"

	"github.com/sebnyberg/pixelpruner"
)

// ErrUnsupported is returned for TIFF variants the streaming cropper does not
// handle.
var ErrUnsupported = errors.New(".TIFF: unsupported variant")

var _ pixelpruner.Cropper = new(Cropper)

// Cropper crops regions of one encoded TIFF and writes them as PNG.
type Cropper struct {
	src   []byte
	level png.CompressionLevel
}

func NewCropper(encoded []byte, level png.CompressionLevel) *Cropper {
	return &Cropper{src: encoded, level: level}
}

func (c *Cropper) Crop(region image.Rectangle, to io.Writer) error {
	img, err := Crop(bytes.NewReader(c.src), region)
	if err != nil {
		return err
	}
	// Converted like a fully decoded source so both paths give equal pixels
	return imaging.Encode(to, imaging.Clone(img), imaging.PNG, imaging.PNGCompressionLevel(c.level))
}

// Crop reads region out of the TIFF in src. The region is clamped to the image
// bounds. The result is an *image.Gray, *image.RGBA or *image.NRGBA with its
// origin at (0, 0), matching what x/image/tiff decodes the file into.
func Crop(src io.ReaderAt, region image.Rectangle) (image.Image, error) {
	hdr, err := DecodeHeader(src)
	if err != nil {
		return nil, err
	}
	region = region.Intersect(image.Rect(0, 0, hdr.Config.Width, hdr.Config.Height))
	if region.Empty() {
		return nil, pixelpruner.ErrEmptySelection
	}

	var (
		dst    image.Image
		pix    []byte
		stride int
	)
	bounds := image.Rect(0, 0, region.Dx(), region.Dy())
	switch {
	case hdr.Samples == 1:
		m := image.NewGray(bounds)
		dst, pix, stride = m, m.Pix, m.Stride
	case hdr.Alpha == AlphaUnassociated:
		m := image.NewNRGBA(bounds)
		dst, pix, stride = m, m.Pix, m.Stride
	default:
		m := image.NewRGBA(bounds)
		dst, pix, stride = m, m.Pix, m.Stride
	}

	rowBytes := hdr.Config.Width * hdr.Samples
	mid := region.Dx() * hdr.Samples
	row := make([]byte, mid)
	for y := 0; y < region.Dy(); y++ {
		sy := region.Min.Y + y
		strip := sy / hdr.RowsPerStrip
		off := hdr.StripOffsets[strip] +
			int64(sy%hdr.RowsPerStrip)*int64(rowBytes) +
			int64(region.Min.X*hdr.Samples)
		if _, err := src.ReadAt(row, off); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("read row %d err, %w", sy, err)
		}
		out := pix[y*stride : y*stride+region.Dx()*dstSamples(hdr.Samples)]
		if hdr.Samples == 3 {
			for i, j := 0, 0; i < len(row); i, j = i+3, j+4 {
				out[j], out[j+1], out[j+2], out[j+3] = row[i], row[i+1], row[i+2], 0xff
			}
			continue
		}
		copy(out, row)
	}
	return dst, nil
}

func dstSamples(samples int) int {
	if samples == 1 {
		return 1
	}
	return 4
}

type AlphaMode uint8

const (
	AlphaNone AlphaMode = iota
	AlphaAssociated
	AlphaUnassociated
)

type DecodeResult struct {
	ByteOrder binary.ByteOrder
	Config    image.Config
	// Samples per pixel: 1 (gray), 3 (RGB) or 4 (RGB and alpha).
	Samples         int
	Alpha           AlphaMode
	RowsPerStrip    int
	StripOffsets    []int64
	StripByteCounts []int64
}

const (
	tImageWidth                = 256
	tImageLength               = 257
	tBitsPerSample             = 258
	tCompression               = 259
	tPhotometricInterpretation = 262
	tStripOffsets              = 273
	tOrientation               = 274
	tSamplesPerPixel           = 277
	tRowsPerStrip              = 278
	tStripByteCounts           = 279
	tPlanarConfiguration       = 284
	tTileWidth                 = 322
	tExtraSamples              = 338

	dtShort = 3
	dtLong  = 4

	pBlackIsZero = 1
	pRGB         = 2
)

// DecodeHeader reads the header and the first IFD of a TIFF and checks that its
// pixels can be addressed directly.
func DecodeHeader(r io.ReaderAt) (res DecodeResult, err error) {
	const (
		leHeader = "II\x2A\x00" // Header for little-endian files.
		beHeader = "MM\x00\x2A" // Header for big-endian files.

		ifdLen = 12 // Length of an IFD entry in bytes.
	)
	var empty DecodeResult
	var b [8]byte
	if _, err := r.ReadAt(b[:], 0); err != nil {
		return empty, unexpectedEOF(err)
	}
	switch string(b[0:4]) {
	case leHeader:
		res.ByteOrder = binary.LittleEndian
	case beHeader:
		res.ByteOrder = binary.BigEndian
	default:
		return empty, errors.New("tiff: invalid format")
	}
	bo := res.ByteOrder

	ifdOffset := int64(bo.Uint32(b[4:8]))
	if _, err := r.ReadAt(b[:2], ifdOffset); err != nil {
		return empty, unexpectedEOF(err)
	}
	n := int(bo.Uint16(b[:2]))
	ifd := make([]byte, n*ifdLen)
	if _, err := r.ReadAt(ifd, ifdOffset+2); err != nil {
		return empty, unexpectedEOF(err)
	}

	tags := make(map[uint16][]uint32, n)
	for i := 0; i < n; i++ {
		e := ifd[i*ifdLen : (i+1)*ifdLen]
		tag := bo.Uint16(e[0:2])
		vals, err := entryValues(r, bo, e)
		if err != nil {
			return empty, err
		}
		if vals != nil {
			tags[tag] = vals
		}
	}
	first := func(tag uint16, def uint32) uint32 {
		if v := tags[tag]; len(v) > 0 {
			return v[0]
		}
		return def
	}

	width, height := int(first(tImageWidth, 0)), int(first(tImageLength, 0))
	if width <= 0 || height <= 0 {
		return empty, errors.New("tiff: missing image dimensions")
	}
	if c := first(tCompression, 1); c != 1 {
		return empty, fmt.Errorf("%w: compression %d", ErrUnsupported, c)
	}
	if p := first(tPlanarConfiguration, 1); p != 1 {
		return empty, fmt.Errorf("%w: planar configuration %d", ErrUnsupported, p)
	}
	if _, tiled := tags[tTileWidth]; tiled {
		return empty, fmt.Errorf("%w: tiled", ErrUnsupported)
	}
	if o := first(tOrientation, 1); o != 1 {
		return empty, fmt.Errorf("%w: orientation %d", ErrUnsupported, o)
	}
	res.Samples = int(first(tSamplesPerPixel, 1))
	bits := tags[tBitsPerSample]
	if len(bits) == 0 {
		bits = []uint32{1}
	}
	for _, v := range bits {
		if v != 8 {
			return empty, fmt.Errorf("%w: %d bits per sample", ErrUnsupported, v)
		}
	}

	switch photometric := first(tPhotometricInterpretation, 0xffff); {
	case photometric == pBlackIsZero && res.Samples == 1:
		res.Config.ColorModel = color.GrayModel
	case photometric == pRGB && res.Samples == 3:
		res.Config.ColorModel = color.RGBAModel
	case photometric == pRGB && res.Samples == 4:
		switch first(tExtraSamples, 0) {
		case 1:
			res.Alpha = AlphaAssociated
			res.Config.ColorModel = color.RGBAModel
		case 2:
			res.Alpha = AlphaUnassociated
			res.Config.ColorModel = color.NRGBAModel
		default:
			return empty, fmt.Errorf("%w: extra samples", ErrUnsupported)
		}
	default:
		return empty, fmt.Errorf("%w: photometric %d with %d samples", ErrUnsupported, photometric, res.Samples)
	}
	res.Config.Width, res.Config.Height = width, height

	res.RowsPerStrip = height
	if rps := first(tRowsPerStrip, 0); rps > 0 && int64(rps) < int64(height) {
		res.RowsPerStrip = int(rps)
	}
	offsets, counts := tags[tStripOffsets], tags[tStripByteCounts]
	strips := (height + res.RowsPerStrip - 1) / res.RowsPerStrip
	if len(offsets) != strips || len(counts) != strips {
		return empty, fmt.Errorf("tiff: %d strip offsets and %d byte counts for %d strips", len(offsets), len(counts), strips)
	}
	rowBytes := int64(width * res.Samples)
	for i := range offsets {
		rows := int64(min(res.RowsPerStrip, height-i*res.RowsPerStrip))
		if int64(counts[i]) < rows*rowBytes {
			return empty, fmt.Errorf("%w: strip %d is short", ErrUnsupported, i)
		}
		res.StripOffsets = append(res.StripOffsets, int64(offsets[i]))
		res.StripByteCounts = append(res.StripByteCounts, int64(counts[i]))
	}
	return res, nil
}

// entryValues returns the SHORT or LONG values of an IFD entry, reading them
// from their offset when they do not fit in the entry. Other types yield nil.
func entryValues(r io.ReaderAt, bo binary.ByteOrder, e []byte) ([]uint32, error) {
	typ, count := bo.Uint16(e[2:4]), bo.Uint32(e[4:8])
	size := 0
	switch typ {
	case dtShort:
		size = 2
	case dtLong:
		size = 4
	default:
		return nil, nil
	}
	if count > 1<<24 {
		return nil, errors.New("tiff: ifd entry too large")
	}
	raw := e[8:12]
	if n := int(count) * size; n > 4 {
		raw = make([]byte, n)
		if _, err := r.ReadAt(raw, int64(bo.Uint32(e[8:12]))); err != nil {
			return nil, unexpectedEOF(err)
		}
	}
	vals := make([]uint32, count)
	for i := range vals {
		if size == 2 {
			vals[i] = uint32(bo.Uint16(raw[2*i:]))
		} else {
			vals[i] = bo.Uint32(raw[4*i:])
		}
	}
	return vals, nil
}

func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
