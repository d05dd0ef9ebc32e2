// Package engine turns selections on displayed images into PNG crops of the
// source images and writes them to an output directory.
package engine

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/bmpx"
	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/pngx"
	"github.com/sebnyberg/pixelpruner/store"
	"github.com/sebnyberg/pixelpruner/tiffx"
	"github.com/sebnyberg/pixelpruner/vipsx"
)

// Backend selects how regions are cut out of a source image.
type Backend string

const (
	// BackendImage crops the decoded image in memory.
	BackendImage Backend = "image"
	// BackendStream reads only the region out of uncompressed BMP and TIFF
	// sources and uses BackendImage for anything else.
	BackendStream Backend = "stream"
	// BackendVips crops with libvips when built with the vips tag.
	BackendVips Backend = "vips"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(s)); b {
	case "":
		return BackendImage, nil
	case BackendImage, BackendStream, BackendVips:
		return b, nil
	}
	return "", fmt.Errorf("unknown backend %q", s)
}

// CropResult is an extracted crop. Filename and Path are set once it is saved.
type CropResult struct {
	Source   string
	Region   image.Rectangle
	Size     pixelpruner.Size
	PNG      []byte
	Filename string
	Path     string
}

type Engine struct {
	store   *store.Store
	dir     string
	backend Backend
	level   png.CompressionLevel
	log     log.Logger
}

type Option func(*Engine)

func WithBackend(b Backend) Option {
	return func(e *Engine) { e.backend = b }
}

func WithCompression(level png.CompressionLevel) Option {
	return func(e *Engine) { e.level = level }
}

func WithLogger(l log.Logger) Option {
	return func(e *Engine) { e.log = log.OrNoop(l) }
}

// New returns an engine reading from s and writing crops into dir.
func New(s *store.Store, dir string, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		dir:     dir,
		backend: BackendImage,
		level:   png.DefaultCompression,
		log:     log.Noop{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Dir returns the output directory.
func (e *Engine) Dir() string {
	return e.dir
}

func (e *Engine) Store() *store.Store {
	return e.store
}

// Extract maps sel through t onto the image at index and encodes the region as
// PNG. Nothing is written.
func (e *Engine) Extract(index int, sel pixelpruner.SelectionRect, t pixelpruner.DisplayTransform) (*CropResult, error) {
	src, err := e.store.Get(index)
	if err != nil {
		return nil, err
	}
	region, err := pixelpruner.MapSelection(sel, t, src.Size())
	if err != nil {
		return nil, fmt.Errorf("crop %q err, %w", src.Name, err)
	}
	var buf bytes.Buffer
	if err := e.cut(src, region, &buf); err != nil {
		return nil, fmt.Errorf("crop %q err, %w", src.Name, err)
	}
	return &CropResult{
		Source: src.Name,
		Region: region,
		Size:   pixelpruner.SizeOf(region),
		PNG:    buf.Bytes(),
	}, nil
}

// ExtractAt cuts a preset-sized crop centred on a click, see
// pixelpruner.PresetRegion. The crop is resized to preset.
func (e *Engine) ExtractAt(index int, click pixelpruner.Point, t pixelpruner.DisplayTransform, preset pixelpruner.Size, zoom float64) (*CropResult, error) {
	src, err := e.store.Get(index)
	if err != nil {
		return nil, err
	}
	region, err := pixelpruner.PresetRegion(click, t, src.Size(), preset, zoom)
	if err != nil {
		return nil, fmt.Errorf("crop %q err, %w", src.Name, err)
	}
	var buf bytes.Buffer
	c := pngx.NewCropper(src.Image, pngx.WithResize(preset), pngx.WithCompression(e.level))
	if err := c.Crop(region, &buf); err != nil {
		return nil, fmt.Errorf("crop %q err, %w", src.Name, err)
	}
	return &CropResult{
		Source: src.Name,
		Region: region,
		Size:   preset,
		PNG:    buf.Bytes(),
	}, nil
}

// Save writes an extracted crop as <stem>_crop<N>.png with the smallest free N.
func (e *Engine) Save(res *CropResult) error {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir %q err, %w", e.dir, err)
	}
	stem := strings.TrimSuffix(res.Source, filepath.Ext(res.Source))
	name, err := writeNew(e.dir, stem, bytes.NewReader(res.PNG))
	if err != nil {
		return err
	}
	res.Filename = name
	res.Path = filepath.Join(e.dir, name)
	e.log.Info("saved crop",
		log.String("source", res.Source),
		log.String("file", name),
		log.String("region", res.Region.String()),
		log.Bytes("size", len(res.PNG)),
	)
	return nil
}

// Crop extracts and saves a crop. On error no file is written.
func (e *Engine) Crop(index int, sel pixelpruner.SelectionRect, t pixelpruner.DisplayTransform) (*CropResult, error) {
	res, err := e.Extract(index, sel, t)
	if err != nil {
		return nil, err
	}
	if err := e.Save(res); err != nil {
		return nil, err
	}
	return res, nil
}

// CropAt extracts and saves a click-centred preset crop.
func (e *Engine) CropAt(index int, click pixelpruner.Point, t pixelpruner.DisplayTransform, preset pixelpruner.Size, zoom float64) (*CropResult, error) {
	res, err := e.ExtractAt(index, click, t, preset, zoom)
	if err != nil {
		return nil, err
	}
	if err := e.Save(res); err != nil {
		return nil, err
	}
	return res, nil
}

// cut writes region of src as PNG with the configured backend. Sources the
// backend cannot handle go through the in-memory cropper.
func (e *Engine) cut(src *store.SourceImage, region image.Rectangle, buf *bytes.Buffer) error {
	var c pixelpruner.Cropper
	switch {
	case e.backend == BackendStream && src.Format == "bmp":
		c = bmpx.NewCropper(src.Encoded, e.level)
	case e.backend == BackendStream && src.Format == "tiff":
		c = tiffx.NewCropper(src.Encoded, e.level)
	case e.backend == BackendVips:
		vc, err := vipsx.NewCropper(src.Encoded, pngx.ZlibLevel(e.level))
		if err != nil {
			e.log.Debug("vips unavailable, cropping in memory", log.Err(err))
			break
		}
		c = vc
	}
	if c != nil {
		err := c.Crop(region, buf)
		if !errors.Is(err, bmpx.ErrUnsupported) && !errors.Is(err, tiffx.ErrUnsupported) {
			return err
		}
		e.log.Debug("streaming crop unsupported, cropping in memory",
			log.String("source", src.Name), log.Err(err))
		buf.Reset()
	}
	return pngx.NewCropper(src.Image, pngx.WithCompression(e.level)).Crop(region, buf)
}
