package watch

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/internal/testimg"
	"github.com/sebnyberg/pixelpruner/store"
)

func newWatcher(t *testing.T, opts ...Option) (w *Watcher, in, out string) {
	in, out = t.TempDir(), t.TempDir()
	e := engine.New(store.New(), out)
	w, err := New(in, e, pixelpruner.Size{Width: 64, Height: 64}, 1, append([]Option{WithDebounce(10 * time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return w, in, out
}

func run(t *testing.T, w *Watcher) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
}

// writeAtomic writes an image under a temporary name and renames it into
// place, like most tools that drop files into a folder.
func writeAtomic(t *testing.T, dir, name string, w, h int) {
	tmp := testimg.WriteFile(t, t.TempDir(), name, testimg.Gradient(w, h))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func decodeSize(t *testing.T, path string) image.Point {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	require.NoError(t, err)
	return image.Pt(cfg.Width, cfg.Height)
}

func exists(path string) func() bool {
	return func() bool {
		_, err := os.Stat(path)
		return err == nil
	}
}

func TestWatchCropsNewImages(t *testing.T) {
	w, in, out := newWatcher(t)
	run(t, w)

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)
	writeAtomic(t, in, "photo.png", 200, 100)
	require.NoError(t, os.WriteFile(filepath.Join(in, "notes.txt"), []byte("x"), 0o644))

	crop := filepath.Join(out, "photo_crop0.png")
	require.Eventually(t, exists(crop), 5*time.Second, 10*time.Millisecond)
	require.Equal(t, image.Pt(64, 64), decodeSize(t, crop))

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWatchExisting(t *testing.T) {
	w, in, out := newWatcher(t, WithExisting(true))
	testimg.WriteFile(t, in, "a.png", testimg.Gradient(100, 100))
	testimg.WriteFile(t, in, "b.bmp", testimg.Gradient(30, 20))
	run(t, w)

	require.Eventually(t, exists(filepath.Join(out, "a_crop0.png")), 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, exists(filepath.Join(out, "b_crop0.png")), 5*time.Second, 10*time.Millisecond)
	// Images smaller than the preset are cropped whole and resized up.
	require.Equal(t, image.Pt(64, 64), decodeSize(t, filepath.Join(out, "b_crop0.png")))
}

func TestProcessSkipsUnchangedAndBroken(t *testing.T) {
	w, in, out := newWatcher(t)
	p := testimg.WriteFile(t, in, "a.png", testimg.Gradient(100, 100))

	w.process(p)
	w.process(p)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	bad := filepath.Join(in, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))
	w.process(bad)
	w.process(filepath.Join(in, "missing.png"))
	entries, err = os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 0, w.engine.Store().Len())
}

func TestWatchForgetsRemovedFiles(t *testing.T) {
	w, in, out := newWatcher(t)
	run(t, w)

	time.Sleep(50 * time.Millisecond)
	p := filepath.Join(in, "photo.png")
	writeAtomic(t, in, "photo.png", 120, 80)
	require.Eventually(t, exists(filepath.Join(out, "photo_crop0.png")), 5*time.Second, 10*time.Millisecond)
	fi, err := os.Stat(p)
	require.NoError(t, err)

	// The same file put back with the same modification time is a new image
	require.NoError(t, os.Remove(p))
	time.Sleep(50 * time.Millisecond)
	tmp := testimg.WriteFile(t, t.TempDir(), "photo.png", testimg.Gradient(120, 80))
	require.NoError(t, os.Chtimes(tmp, fi.ModTime(), fi.ModTime()))
	require.NoError(t, os.Rename(tmp, p))
	require.Eventually(t, exists(filepath.Join(out, "photo_crop1.png")), 5*time.Second, 10*time.Millisecond)
}

func TestProcessRemembersBoundedFiles(t *testing.T) {
	w, in, out := newWatcher(t)
	p := testimg.WriteFile(t, in, "a.png", testimg.Gradient(40, 40))
	w.process(p)
	require.Equal(t, 1, w.seen.Len())

	w.seen.Remove(p)
	w.process(p)
	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	for i := 0; i < seenSize+10; i++ {
		w.seen.Add(filepath.Join(in, fmt.Sprintf("f%d.png", i)), time.Time{})
	}
	require.Equal(t, seenSize, w.seen.Len())
}

func TestNewValidates(t *testing.T) {
	dir := t.TempDir()
	e := engine.New(store.New(), dir)
	_, err := New(dir, e, pixelpruner.Size{Width: 64, Height: 64}, 1)
	require.Error(t, err)

	other := engine.New(store.New(), t.TempDir())
	_, err = New(dir, other, pixelpruner.Size{}, 1)
	require.ErrorIs(t, err, pixelpruner.ErrInvalidPreset)
	_, err = New(dir, other, pixelpruner.Size{Width: 64, Height: 64}, 10)
	require.ErrorIs(t, err, pixelpruner.ErrInvalidPreset)
}
