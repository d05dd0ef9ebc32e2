// Package dataset holds housekeeping tools for folders of training images:
// forcing RGB and moving unreadable files out of the way.
package dataset

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/store"
)

// QuarantineDir is the default destination of Quarantine, relative to the
// scanned directory.
const QuarantineDir = "TruncatedImages"

// Conversion records an image rewritten by ConvertRGB.
type Conversion struct {
	Name string
	From string // "grayscale", "paletted" or "alpha"
}

var rgbExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// colorKind classifies the color model of a decoded image. It returns "" for
// images that are already RGB.
func colorKind(img image.Image) string {
	switch m := img.(type) {
	case *image.Gray, *image.Gray16:
		return "grayscale"
	case *image.Paletted:
		return "paletted"
	case *image.NRGBA, *image.NRGBA64:
		return "alpha"
	case *image.RGBA:
		if !m.Opaque() {
			return "alpha"
		}
	case *image.RGBA64:
		if !m.Opaque() {
			return "alpha"
		}
	}
	return ""
}

// toRGB drops the alpha channel, keeping the straight color values.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// ConvertRGB rewrites every grayscale, paletted or alpha image directly in dir
// as an opaque RGB image in its original format. Files that cannot be
// processed are reported in the returned error and do not stop the scan.
func ConvertRGB(dir string, logger log.Logger) ([]Conversion, error) {
	logger = log.OrNoop(logger)
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %q err, %w", dir, err)
	}
	var res []Conversion
	var errs []error
	for _, de := range des {
		if !de.Type().IsRegular() || !rgbExtensions[strings.ToLower(filepath.Ext(de.Name()))] {
			continue
		}
		p := filepath.Join(dir, de.Name())
		kind, err := convertFile(p)
		if err != nil {
			logger.Warn("rgb conversion failed", log.String("file", de.Name()), log.Err(err))
			errs = append(errs, err)
			continue
		}
		if kind == "" {
			continue
		}
		logger.Info("converted to rgb", log.String("file", de.Name()), log.String("from", kind))
		res = append(res, Conversion{Name: de.Name(), From: kind})
	}
	return res, errors.Join(errs...)
}

func convertFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file %q err, %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(b))
	if err != nil {
		return "", fmt.Errorf("decode %q err, %w", path, err)
	}
	kind := colorKind(img)
	if kind == "" {
		return "", nil
	}
	if err := imaging.Save(toRGB(img), path, imaging.JPEGQuality(95)); err != nil {
		return "", fmt.Errorf("save %q err, %w", path, err)
	}
	return kind, nil
}

var scanExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true,
}

// Quarantine walks src and moves every image that fails to decode into dst,
// which is created if missing. An empty dst means src/TruncatedImages. The
// moved files are returned as paths relative to src.
func Quarantine(src, dst string, logger log.Logger) ([]string, error) {
	logger = log.OrNoop(logger)
	if dst == "" {
		dst = filepath.Join(src, QuarantineDir)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("create dir %q err, %w", dst, err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return nil, err
	}
	var moved []string
	err = filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if abs, _ := filepath.Abs(p); abs == absDst {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !scanExtensions[strings.ToLower(filepath.Ext(d.Name()))] {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("read file %q err, %w", p, err)
		}
		_, derr := store.Decode(d.Name(), b, false)
		if derr == nil {
			return nil
		}
		logger.Warn("moving unreadable image", log.String("file", p), log.Err(derr))
		target, err := freePath(dst, d.Name())
		if err != nil {
			return err
		}
		if err := os.Rename(p, target); err != nil {
			return fmt.Errorf("move %q err, %w", p, err)
		}
		rel, _ := filepath.Rel(src, p)
		moved = append(moved, rel)
		return nil
	})
	return moved, err
}

// freePath returns dir/name, or dir/<stem>_<n><ext> for the first n that is
// not taken.
func freePath(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 1; ; n++ {
		p := filepath.Join(dir, candidate)
		_, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return p, nil
		}
		if err != nil {
			return "", err
		}
		candidate = stem + "_" + strconv.Itoa(n) + ext
	}
}
