package dataset_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sebnyberg/pixelpruner/dataset"
	"github.com/sebnyberg/pixelpruner/internal/testimg"
)

func decodeFile(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, _, err := image.Decode(f)
	require.NoError(t, err)
	return img
}

func TestConvertRGB(t *testing.T) {
	dir := t.TempDir()

	gray := image.NewGray(image.Rect(0, 0, 4, 3))
	for i := range gray.Pix {
		gray.Pix[i] = uint8(i * 10)
	}
	testimg.WriteFile(t, dir, "gray.png", gray)

	alpha := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	alpha.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 40})
	alpha.SetNRGBA(1, 1, color.NRGBA{200, 100, 50, 255})
	testimg.WriteFile(t, dir, "alpha.png", alpha)

	rgbPath := testimg.WriteFile(t, dir, "rgb.png", testimg.Gradient(5, 5))
	rgbBefore, err := os.ReadFile(rgbPath)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.png"), []byte("not a png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("text"), 0o644))

	convs, err := dataset.ConvertRGB(dir, nil)
	require.Error(t, err)
	require.ElementsMatch(t, []dataset.Conversion{
		{Name: "alpha.png", From: "alpha"},
		{Name: "gray.png", From: "grayscale"},
	}, convs)

	got := decodeFile(t, filepath.Join(dir, "gray.png"))
	require.IsType(t, &image.RGBA{}, got)
	r, g, b, a := got.At(3, 2).RGBA()
	require.Equal(t, []uint32{110, 110, 110, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})

	got = decodeFile(t, filepath.Join(dir, "alpha.png"))
	require.True(t, got.(interface{ Opaque() bool }).Opaque())
	c := color.NRGBAModel.Convert(got.At(0, 0)).(color.NRGBA)
	require.Equal(t, color.NRGBA{10, 20, 30, 255}, c)

	rgbAfter, err := os.ReadFile(rgbPath)
	require.NoError(t, err)
	require.Equal(t, rgbBefore, rgbAfter)
}

func TestConvertRGBMissingDir(t *testing.T) {
	_, err := dataset.ConvertRGB(filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
}

func truncatedPNG(t *testing.T) []byte {
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, testimg.Gradient(64, 64)))
	return buf.Bytes()[:buf.Len()/2]
}

func TestQuarantine(t *testing.T) {
	src := t.TempDir()
	testimg.WriteFile(t, src, "good.png", testimg.Gradient(8, 8))
	require.NoError(t, os.WriteFile(filepath.Join(src, "bad.png"), truncatedPNG(t), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "notes.txt"), []byte("text"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(src, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "bad.png"), truncatedPNG(t), 0o644))

	moved, err := dataset.Quarantine(src, "", nil)
	require.NoError(t, err)
	require.Equal(t, []string{"bad.png", filepath.Join("sub", "bad.png")}, moved)

	dst := filepath.Join(src, dataset.QuarantineDir)
	for _, name := range []string{"bad.png", "bad_1.png"} {
		_, err := os.Stat(filepath.Join(dst, name))
		require.NoError(t, err, name)
	}
	for _, name := range []string{"good.png", "notes.txt"} {
		_, err := os.Stat(filepath.Join(src, name))
		require.NoError(t, err, name)
	}

	// A second scan finds nothing and does not descend into the quarantine.
	moved, err = dataset.Quarantine(src, "", nil)
	require.NoError(t, err)
	require.Empty(t, moved)
}
