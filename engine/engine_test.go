package engine

import (
	"bytes"
	"image"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/internal/testimg"
	"github.com/sebnyberg/pixelpruner/store"
	"github.com/sebnyberg/pixelpruner/vipsx"
)

func newStore(t *testing.T, files map[string]image.Image, order ...string) *store.Store {
	t.Helper()
	s := store.New()
	for _, name := range order {
		format := map[string]string{".png": "png", ".bmp": "bmp", ".jpg": "jpeg"}[filepath.Ext(name)]
		_, err := s.Load(name, bytes.NewReader(testimg.Encode(t, files[name], format)))
		require.NoError(t, err)
	}
	return s
}

func readPNG(t *testing.T, path string) image.Image {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	return img
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestCrop(t *testing.T) {
	src := testimg.RandNRGBA(rand.New(rand.NewSource(1)), 400, 300, false)
	s := newStore(t, map[string]image.Image{"cat.png": src}, "cat.png")
	dir := filepath.Join(t.TempDir(), "crops")
	e := New(s, dir)

	res, err := e.Crop(0, pixelpruner.SelectionRect{X: 10, Y: 20, Width: 50, Height: 40}, pixelpruner.DisplayTransform{RenderedWidth: 200, RenderedHeight: 150})
	require.NoError(t, err)
	require.Equal(t, "cat_crop0.png", res.Filename)
	require.Equal(t, filepath.Join(dir, "cat_crop0.png"), res.Path)
	require.Equal(t, image.Rect(20, 40, 120, 120), res.Region)
	require.Equal(t, pixelpruner.Size{Width: 100, Height: 80}, res.Size)

	// Decoding the written crop gives back exactly the extracted pixels
	got := readPNG(t, res.Path)
	testimg.SamePixels(t, src.SubImage(res.Region), got)

	// Re-encoding the decoded crop keeps the pixels as well
	var again bytes.Buffer
	require.NoError(t, png.Encode(&again, got))
	redecoded, err := png.Decode(&again)
	require.NoError(t, err)
	testimg.SamePixels(t, got, redecoded)
}

func TestCropNeverOverwrites(t *testing.T) {
	s := newStore(t, map[string]image.Image{"dog.png": testimg.Gradient(100, 100)}, "dog.png")
	dir := t.TempDir()
	e := New(s, dir)
	full := pixelpruner.Identity(pixelpruner.Size{Width: 100, Height: 100})

	first, err := e.Crop(0, pixelpruner.SelectionRect{X: 0, Y: 0, Width: 10, Height: 10}, full)
	require.NoError(t, err)
	firstBytes, err := os.ReadFile(first.Path)
	require.NoError(t, err)

	second, err := e.Crop(0, pixelpruner.SelectionRect{X: 50, Y: 50, Width: 20, Height: 20}, full)
	require.NoError(t, err)
	require.Equal(t, "dog_crop0.png", first.Filename)
	require.Equal(t, "dog_crop1.png", second.Filename)

	after, err := os.ReadFile(first.Path)
	require.NoError(t, err)
	require.Equal(t, firstBytes, after)

	// The smallest free suffix is reused
	require.NoError(t, os.Remove(first.Path))
	third, err := e.Crop(0, pixelpruner.SelectionRect{X: 0, Y: 0, Width: 5, Height: 5}, full)
	require.NoError(t, err)
	require.Equal(t, "dog_crop0.png", third.Filename)
}

func TestCropEmptySelection(t *testing.T) {
	s := newStore(t, map[string]image.Image{"a.png": testimg.Gradient(100, 50)}, "a.png")
	dir := t.TempDir()
	e := New(s, dir)

	_, err := e.Crop(0, pixelpruner.SelectionRect{X: 300, Y: 300, Width: 50, Height: 50}, pixelpruner.DisplayTransform{RenderedWidth: 100, RenderedHeight: 50})
	require.ErrorIs(t, err, pixelpruner.ErrEmptySelection)
	require.Empty(t, dirNames(t, dir))

	_, err = e.Crop(3, pixelpruner.SelectionRect{Width: 1, Height: 1}, pixelpruner.DisplayTransform{RenderedWidth: 1, RenderedHeight: 1})
	require.ErrorIs(t, err, pixelpruner.ErrIndexOutOfRange)

	_, err = e.Crop(0, pixelpruner.SelectionRect{Width: 1, Height: 1}, pixelpruner.DisplayTransform{})
	require.ErrorIs(t, err, pixelpruner.ErrInvalidDisplay)
	require.Empty(t, dirNames(t, dir))
}

func TestSaveFailureLeavesNothing(t *testing.T) {
	s := newStore(t, map[string]image.Image{"a.png": testimg.Gradient(10, 10)}, "a.png")
	notDir := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(notDir, nil, 0o644))
	e := New(s, notDir)
	disp := pixelpruner.Identity(pixelpruner.Size{Width: 10, Height: 10})
	res, err := e.Crop(0, pixelpruner.SelectionRect{Width: 5, Height: 5}, disp)
	require.Error(t, err)
	require.Nil(t, res)
	res, err = e.CropAt(0, pixelpruner.Point{X: 5, Y: 5}, disp, pixelpruner.Size{Width: 4, Height: 4}, 1)
	require.Error(t, err)
	require.Nil(t, res)

	outcomes := e.Batch(nil, pixelpruner.SelectionRect{Width: 5, Height: 5}, pixelpruner.Size{})
	require.Len(t, outcomes, 1)
	require.True(t, outcomes[0].Skipped())
	require.Nil(t, outcomes[0].Result)

	// Nothing was created next to the file standing in for the output dir
	require.Equal(t, []string{"file"}, dirNames(t, filepath.Dir(notDir)))
}

func TestBatch(t *testing.T) {
	files := map[string]image.Image{
		"one.png":   testimg.Gradient(400, 300),
		"two.png":   testimg.Gradient(50, 20),
		"three.png": testimg.Gradient(800, 600),
	}
	s := newStore(t, files, "one.png", "two.png", "three.png")
	dir := t.TempDir()
	e := New(s, dir)

	outcomes := e.Batch(nil, pixelpruner.SelectionRect{X: 100, Y: 75, Width: 50, Height: 50}, pixelpruner.Size{Width: 200, Height: 150})
	require.Len(t, outcomes, 3)

	require.NoError(t, outcomes[0].Err)
	require.Equal(t, "one_crop0.png", outcomes[0].Result.Filename)
	require.Equal(t, image.Rect(200, 150, 300, 250), outcomes[0].Result.Region)

	require.True(t, outcomes[1].Skipped())
	require.Equal(t, "two.png", outcomes[1].Source)
	require.ErrorIs(t, outcomes[1].Err, pixelpruner.ErrEmptySelection)

	require.NoError(t, outcomes[2].Err)
	require.Equal(t, "three_crop0.png", outcomes[2].Result.Filename)
	require.Equal(t, image.Rect(400, 300, 600, 500), outcomes[2].Result.Region)

	require.ElementsMatch(t, []string{"one_crop0.png", "three_crop0.png"}, dirNames(t, dir))

	saved, skipped := Summary(outcomes)
	require.Equal(t, 2, saved)
	require.Equal(t, 1, skipped)

	outcomes = e.Batch([]int{2, 7}, pixelpruner.SelectionRect{X: 0, Y: 0, Width: 10, Height: 10}, pixelpruner.Size{})
	require.Len(t, outcomes, 2)
	require.Equal(t, "three_crop1.png", outcomes[0].Result.Filename)
	require.ErrorIs(t, outcomes[1].Err, pixelpruner.ErrIndexOutOfRange)
}

func TestCropAt(t *testing.T) {
	s := newStore(t, map[string]image.Image{"p.png": testimg.Gradient(2000, 1000)}, "p.png")
	e := New(s, t.TempDir())
	res, err := e.CropAt(0, pixelpruner.Point{X: 500, Y: 250}, pixelpruner.DisplayTransform{RenderedWidth: 1000, RenderedHeight: 500}, pixelpruner.Size{Width: 512, Height: 512}, 2)
	require.NoError(t, err)
	require.Equal(t, image.Rect(872, 372, 1128, 628), res.Region)
	require.Equal(t, pixelpruner.Size{Width: 512, Height: 512}, res.Size)
	cfg, err := png.DecodeConfig(bytes.NewReader(res.PNG))
	require.NoError(t, err)
	require.Equal(t, 512, cfg.Width)
	require.Equal(t, 512, cfg.Height)
	require.Equal(t, "p_crop0.png", res.Filename)

	_, err = e.ExtractAt(0, pixelpruner.Point{}, pixelpruner.DisplayTransform{RenderedWidth: 1, RenderedHeight: 1}, pixelpruner.Size{Width: 512, Height: 512}, 0)
	require.ErrorIs(t, err, pixelpruner.ErrInvalidPreset)
}

func TestBackends(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	opaque := testimg.RandNRGBA(rng, 120, 90, true)
	alpha := testimg.RandNRGBA(rng, 120, 90, false)

	var opaqueBMP, rgbxBMP bytes.Buffer
	require.NoError(t, bmp.Encode(&opaqueBMP, opaque))
	require.NoError(t, bmp.Encode(&rgbxBMP, alpha))
	// A BITMAPINFOHEADER has no alpha mask, so decoders make it opaque
	rgbx, err := bmp.Decode(bytes.NewReader(rgbxBMP.Bytes()))
	require.NoError(t, err)

	s := store.New()
	_, err = s.Load("opaque.bmp", &opaqueBMP)
	require.NoError(t, err)
	_, err = s.Load("alpha.bmp", bytes.NewReader(testimg.EncodeAlphaBMP(alpha)))
	require.NoError(t, err)
	_, err = s.Load("plain.png", bytes.NewReader(testimg.Encode(t, opaque, "png")))
	require.NoError(t, err)
	_, err = s.Load("alpha.tif", bytes.NewReader(testimg.Encode(t, alpha, "tiff")))
	require.NoError(t, err)
	var deflated bytes.Buffer
	require.NoError(t, tiff.Encode(&deflated, opaque, &tiff.Options{Compression: tiff.Deflate}))
	_, err = s.Load("deflated.tif", &deflated)
	require.NoError(t, err)
	_, err = s.Load("rgbx.bmp", &rgbxBMP)
	require.NoError(t, err)

	sel := pixelpruner.SelectionRect{X: 13, Y: 7, Width: 61, Height: 45}
	disp := pixelpruner.Identity(pixelpruner.Size{Width: 120, Height: 90})
	want := map[int]image.Image{0: opaque, 1: alpha, 2: opaque, 3: alpha, 4: opaque, 5: rgbx}

	for _, backend := range []Backend{BackendImage, BackendStream, BackendVips} {
		t.Run(string(backend), func(t *testing.T) {
			if backend == BackendVips && vipsx.Available {
				t.Skip("libvips builds may lack BMP support")
			}
			e := New(s, t.TempDir(), WithBackend(backend), WithCompression(png.BestSpeed))
			for idx, src := range want {
				res, err := e.Extract(idx, sel, disp)
				require.NoError(t, err)
				got, err := png.Decode(bytes.NewReader(res.PNG))
				require.NoError(t, err)
				testimg.SamePixels(t, src.(*image.NRGBA).SubImage(res.Region), got)
			}
		})
	}
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	require.Equal(t, BackendImage, b)
	b, err = ParseBackend("Stream")
	require.NoError(t, err)
	require.Equal(t, BackendStream, b)
	_, err = ParseBackend("gpu")
	require.Error(t, err)
}
