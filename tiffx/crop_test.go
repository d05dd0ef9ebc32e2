package tiffx

import (
	"bytes"
	"encoding/binary"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/internal/testimg"
)

func randRegion(rng *rand.Rand, w, h int) image.Rectangle {
	offx := rng.Intn(w)
	offy := rng.Intn(h)
	return image.Rect(offx, offy, offx+1+rng.Intn(w-offx), offy+1+rng.Intn(h-offy))
}

func encode(t *testing.T, img image.Image) []byte {
	var buf bytes.Buffer
	require.NoError(t, tiff.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestCrop(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 60; i++ {
		w := 1 + rng.Intn(120)
		h := 1 + rng.Intn(120)
		nrgba := testimg.RandNRGBA(rng, w, h, false)

		var img image.Image
		switch i % 3 {
		case 0:
			img = nrgba
		case 1:
			rgba := image.NewRGBA(nrgba.Rect)
			draw.Draw(rgba, rgba.Rect, nrgba, image.Point{}, draw.Src)
			img = rgba
		case 2:
			gray := image.NewGray(nrgba.Rect)
			rng.Read(gray.Pix)
			img = gray
		}
		b := encode(t, img)
		region := randRegion(rng, w, h)

		got, err := Crop(bytes.NewReader(b), region)
		require.NoError(t, err)
		want, err := tiff.Decode(bytes.NewReader(b))
		require.NoError(t, err)
		require.IsType(t, want, got)
		testimg.SamePixels(t, want.(interface {
			SubImage(image.Rectangle) image.Image
		}).SubImage(region), got)
	}
}

// buildRGB writes img as an uncompressed 3-sample RGB TIFF split into strips
// of rowsPerStrip rows.
func buildRGB(img *image.NRGBA, bo binary.ByteOrder, rowsPerStrip int) []byte {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	rowBytes := w * 3
	var buf bytes.Buffer
	if bo == binary.LittleEndian {
		buf.WriteString("II\x2A\x00")
	} else {
		buf.WriteString("MM\x00\x2A")
	}
	buf.Write(make([]byte, 4)) // IFD offset, patched below
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := img.NRGBAAt(x, y)
			buf.Write([]byte{c.R, c.G, c.B})
		}
	}
	strips := (h + rowsPerStrip - 1) / rowsPerStrip
	offsets := make([]uint32, strips)
	counts := make([]uint32, strips)
	for i := range offsets {
		offsets[i] = uint32(8 + i*rowsPerStrip*rowBytes)
		counts[i] = uint32(min(rowsPerStrip, h-i*rowsPerStrip) * rowBytes)
	}
	u16 := func(v uint16) { binary.Write(&buf, bo, v) }
	u32 := func(v uint32) { binary.Write(&buf, bo, v) }

	bitsAt := uint32(buf.Len())
	u16(8)
	u16(8)
	u16(8)
	offsetsAt := uint32(buf.Len())
	for _, v := range offsets {
		u32(v)
	}
	countsAt := uint32(buf.Len())
	for _, v := range counts {
		u32(v)
	}
	longs := func(vals []uint32, at uint32) uint32 {
		if len(vals) == 1 {
			return vals[0]
		}
		return at
	}

	ifdAt := uint32(buf.Len())
	type entry struct {
		tag, typ uint16
		count    uint32
		value    uint32
	}
	entries := []entry{
		{tImageWidth, dtLong, 1, uint32(w)},
		{tImageLength, dtLong, 1, uint32(h)},
		{tBitsPerSample, dtShort, 3, bitsAt},
		{tCompression, dtShort, 1, 1},
		{tPhotometricInterpretation, dtShort, 1, pRGB},
		{tStripOffsets, dtLong, uint32(strips), longs(offsets, offsetsAt)},
		{tSamplesPerPixel, dtShort, 1, 3},
		{tRowsPerStrip, dtLong, 1, uint32(rowsPerStrip)},
		{tStripByteCounts, dtLong, uint32(strips), longs(counts, countsAt)},
	}
	u16(uint16(len(entries)))
	for _, e := range entries {
		u16(e.tag)
		u16(e.typ)
		u32(e.count)
		if e.typ == dtShort && e.count == 1 {
			u16(uint16(e.value))
			u16(0)
		} else {
			u32(e.value)
		}
	}
	u32(0)

	out := buf.Bytes()
	bo.PutUint32(out[4:8], ifdAt)
	return out
}

func TestCropStripsAndByteOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for _, bo := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		for _, rps := range []int{1, 3, 7, 1000} {
			img := testimg.RandNRGBA(rng, 23, 17, true)
			b := buildRGB(img, bo, rps)

			hdr, err := DecodeHeader(bytes.NewReader(b))
			require.NoError(t, err)
			require.Equal(t, 3, hdr.Samples)
			require.Equal(t, min(rps, 17), hdr.RowsPerStrip)

			for i := 0; i < 20; i++ {
				region := randRegion(rng, 23, 17)
				got, err := Crop(bytes.NewReader(b), region)
				require.NoError(t, err)
				testimg.SamePixels(t, img.SubImage(region), got)
			}
		}
	}
}

func TestCropperWritesPNG(t *testing.T) {
	img := testimg.Gradient(64, 48)
	region := image.Rect(10, 5, 50, 45)
	var out bytes.Buffer
	require.NoError(t, NewCropper(encode(t, img), png.BestSpeed).Crop(region, &out))
	got, err := png.Decode(&out)
	require.NoError(t, err)
	testimg.SamePixels(t, img.SubImage(region), got)
}

func TestCropClampsAndRejects(t *testing.T) {
	img := testimg.Gradient(40, 30)
	b := encode(t, img)

	got, err := Crop(bytes.NewReader(b), image.Rect(30, 20, 100, 100))
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 10, 10), got.Bounds())

	_, err = Crop(bytes.NewReader(b), image.Rect(50, 50, 60, 60))
	require.ErrorIs(t, err, pixelpruner.ErrEmptySelection)

	var deflated bytes.Buffer
	require.NoError(t, tiff.Encode(&deflated, img, &tiff.Options{Compression: tiff.Deflate}))
	_, err = Crop(bytes.NewReader(deflated.Bytes()), image.Rect(0, 0, 5, 5))
	require.ErrorIs(t, err, ErrUnsupported)

	pal := image.NewPaletted(image.Rect(0, 0, 4, 4), []color.Color{color.Black, color.White})
	_, err = Crop(bytes.NewReader(encode(t, pal)), image.Rect(0, 0, 2, 2))
	require.ErrorIs(t, err, ErrUnsupported)

	_, err = DecodeHeader(bytes.NewReader([]byte("GIF89a..")))
	require.Error(t, err)
	_, err = DecodeHeader(bytes.NewReader(b[:6]))
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
