package export

import (
	"archive/tar"
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	seekable "github.com/SaveTheRbtz/zstd-seekable-format-go"
	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
)

// Format is an archive format.
type Format string

const (
	FormatZip     Format = "zip"
	FormatTarZstd Format = "tar.zst"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case "", FormatZip:
		return FormatZip, nil
	case FormatTarZstd, "tzst":
		return FormatTarZstd, nil
	}
	return "", fmt.Errorf("unknown archive format %q", s)
}

// ContentType returns the MIME type of an archive format.
func (f Format) ContentType() string {
	if f == FormatTarZstd {
		return "application/zstd"
	}
	return "application/zip"
}

// Write archives every crop in dir to w and returns how many were written.
func Write(w io.Writer, dir string, f Format) (int, error) {
	if f == FormatTarZstd {
		return WriteTarZstd(w, dir)
	}
	return WriteZip(w, dir)
}

// WriteZip writes the crops in dir as a zip archive. PNGs are already
// compressed, so entries are stored.
func WriteZip(w io.Writer, dir string) (int, error) {
	entries, err := List(dir)
	if err != nil {
		return 0, err
	}
	zw := zip.NewWriter(w)
	for _, e := range entries {
		hdr := &zip.FileHeader{Name: e.Name, Method: zip.Store}
		fw, err := zw.CreateHeader(hdr)
		if err != nil {
			return 0, err
		}
		if err := copyFile(fw, filepath.Join(dir, e.Name)); err != nil {
			return 0, err
		}
	}
	return len(entries), zw.Close()
}

// FrameSize is the uncompressed size of one seekable zstd frame.
const FrameSize = 1 << 20

// WriteTarZstd writes the crops in dir as a tar stream compressed into
// seekable zstd frames, so single crops can be read back without
// decompressing the whole archive.
func WriteTarZstd(w io.Writer, dir string) (int, error) {
	entries, err := List(dir)
	if err != nil {
		return 0, err
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, err
	}
	defer enc.Close()
	sw, err := seekable.NewWriter(w, enc)
	if err != nil {
		return 0, err
	}
	// Every write to sw ends a frame
	bw := bufio.NewWriterSize(sw, FrameSize)
	tw := tar.NewWriter(bw)
	for _, e := range entries {
		p := filepath.Join(dir, e.Name)
		fi, err := os.Stat(p)
		if err != nil {
			return 0, err
		}
		hdr, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return 0, err
		}
		hdr.Name = e.Name
		if err := tw.WriteHeader(hdr); err != nil {
			return 0, err
		}
		if err := copyFile(tw, p); err != nil {
			return 0, err
		}
	}
	if err := tw.Close(); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return len(entries), sw.Close()
}

// ReadTarZstd reads an archive written by WriteTarZstd and calls fn for each
// file in it.
func ReadTarZstd(rs io.ReadSeeker, fn func(name string, r io.Reader) error) error {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return err
	}
	defer dec.Close()
	sr, err := seekable.NewReader(rs, dec)
	if err != nil {
		return err
	}
	defer sr.Close()
	tr := tar.NewReader(sr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr.Name, tr); err != nil {
			return err
		}
	}
}

func copyFile(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open file %q err, %w", path, err)
	}
	defer f.Close()
	_, err = io.Copy(w, f)
	return err
}
