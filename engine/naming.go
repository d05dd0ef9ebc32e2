package engine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// maxSuffix bounds the search for a free output name.
const maxSuffix = 1 << 20

// CropName returns the output filename of the n-th crop of stem.
func CropName(stem string, n int) string {
	return fmt.Sprintf("%s_crop%d.png", stem, n)
}

// NextName returns the first CropName(stem, N), N >= 0, that does not exist in
// dir.
func NextName(dir, stem string) (string, error) {
	stem = cleanStem(stem)
	for n := 0; n < maxSuffix; n++ {
		name := CropName(stem, n)
		_, err := os.Lstat(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("no free crop name for %q in %q", stem, dir)
}

// writeNew writes src under the first free crop name of stem. Files are
// created exclusively, so an existing crop is never overwritten even if it
// appears between the lookup and the write. A failed write leaves no file.
func writeNew(dir, stem string, src io.WriterTo) (string, error) {
	stem = cleanStem(stem)
	for n := 0; n < maxSuffix; n++ {
		name := CropName(stem, n)
		p := filepath.Join(dir, name)
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("open file %q err, %w", p, err)
		}
		_, err = src.WriteTo(f)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(p)
			return "", fmt.Errorf("write file %q err, %w", p, err)
		}
		return name, nil
	}
	return "", fmt.Errorf("no free crop name for %q in %q", stem, dir)
}

func cleanStem(stem string) string {
	stem = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == 0 {
			return '_'
		}
		return r
	}, stem)
	if stem == "" || stem == "." || stem == ".." {
		return "image"
	}
	return stem
}
