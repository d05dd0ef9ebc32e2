//go:build !vips

package vipsx

import (
	"image"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnavailable(t *testing.T) {
	require.False(t, Available)
	_, err := NewCropper(nil, 6)
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, new(Cropper).Crop(image.Rect(0, 0, 1, 1), io.Discard), ErrUnavailable)
}
