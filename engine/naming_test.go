package engine

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNextName(t *testing.T) {
	dir := t.TempDir()
	name, err := NextName(dir, "img")
	require.NoError(t, err)
	require.Equal(t, "img_crop0.png", name)

	for _, n := range []string{"img_crop0.png", "img_crop1.png", "img_crop3.png", "other_crop2.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), nil, 0o644))
	}
	name, err = NextName(dir, "img")
	require.NoError(t, err)
	require.Equal(t, "img_crop2.png", name)

	name, err = writeNew(dir, "img", bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	require.Equal(t, "img_crop2.png", name)
	name, err = writeNew(dir, "img", bytes.NewReader([]byte("y")))
	require.NoError(t, err)
	require.Equal(t, "img_crop4.png", name)

	b, err := os.ReadFile(filepath.Join(dir, "img_crop2.png"))
	require.NoError(t, err)
	require.Equal(t, "x", string(b))
}

// halfWriter writes part of its data and then fails.
type halfWriter []byte

func (h halfWriter) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(h[:len(h)/2])
	if err != nil {
		return int64(n), err
	}
	return int64(n), errors.New("disk full")
}

func TestWriteNewRemovesPartialFile(t *testing.T) {
	dir := t.TempDir()
	_, err := writeNew(dir, "img", halfWriter("partial png"))
	require.ErrorContains(t, err, "disk full")
	des, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, des)

	name, err := writeNew(dir, "img", bytes.NewReader([]byte("ok")))
	require.NoError(t, err)
	require.Equal(t, "img_crop0.png", name)
}

func TestCleanStem(t *testing.T) {
	require.Equal(t, "image", cleanStem(""))
	require.Equal(t, "image", cleanStem(".."))
	require.Equal(t, "a_b", cleanStem("a/b"))
	require.Equal(t, "photo.final", cleanStem("photo.final"))
}
