package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestZerolog(t *testing.T) {
	var buf bytes.Buffer
	zl, err := NewZerologWriter(&buf, "auto", "debug")
	require.NoError(t, err)
	l := NewZerolog(zl)

	l.Info("saved crop",
		String("file", "cat_crop0.png"),
		Int("width", 512),
		Bytes("size", 2048),
		Err(errors.New("boom")),
	)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "saved crop", line["message"])
	require.Equal(t, "info", line["level"])
	require.Equal(t, "cat_crop0.png", line["file"])
	require.EqualValues(t, 512, line["width"])
	require.Equal(t, "2.0 kB", line["size"])
	require.Equal(t, "boom", line["error"])
}

func TestZerologLevel(t *testing.T) {
	var buf bytes.Buffer
	zl, err := NewZerologWriter(&buf, "json", "warn")
	require.NoError(t, err)
	l := NewZerolog(zl)
	l.Info("dropped")
	require.Zero(t, buf.Len())
	l.Warn("kept")
	require.Contains(t, buf.String(), "kept")

	_, err = NewZerologWriter(&buf, "json", "loud")
	require.Error(t, err)
}

func TestOrNoop(t *testing.T) {
	require.Equal(t, Noop{}, OrNoop(nil))
	l := NewZerolog(zerolog.Nop())
	require.Same(t, l, OrNoop(l))
}
