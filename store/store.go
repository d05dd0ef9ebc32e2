// Package store holds the decoded source images of one cropping session.
//
// A Store is a plain owned collection indexed by insertion order. It is not
// safe for concurrent mutation; each session owns its own Store.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoders for image.DecodeConfig
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/maruel/natural"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/log"
)

// SourceImage is an uploaded image, decoded and held in memory. It must not be
// modified once loaded.
type SourceImage struct {
	Name   string // original filename, without directories
	Format string // format name as registered with package image
	Image  *image.NRGBA
	// Encoded is the file as it was read, for backends that crop without a
	// full decode.
	Encoded []byte
}

func (s *SourceImage) Width() int  { return s.Image.Rect.Dx() }
func (s *SourceImage) Height() int { return s.Image.Rect.Dy() }

func (s *SourceImage) Size() pixelpruner.Size {
	return pixelpruner.SizeOf(s.Image.Rect)
}

// Stem returns the filename without its extension.
func (s *SourceImage) Stem() string {
	return strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
}

var extensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".bmp": true, ".tif": true, ".tiff": true,
}

// Supported reports whether name has an extension the store decodes.
func Supported(name string, webp bool) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return extensions[ext] || (webp && ext == ".webp")
}

type Option func(*Store)

// WithWebP enables WEBP decoding.
func WithWebP(enabled bool) Option {
	return func(s *Store) { s.webp = enabled }
}

func WithLogger(l log.Logger) Option {
	return func(s *Store) { s.log = log.OrNoop(l) }
}

type Store struct {
	webp   bool
	log    log.Logger
	images []*SourceImage
}

func New(opts ...Option) *Store {
	s := &Store{log: log.Noop{}}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Decode decodes b into a SourceImage. EXIF orientation is applied, so Width and
// Height are those of the image as it is displayed.
func Decode(name string, b []byte, webp bool) (*SourceImage, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("decode %q err, %w: %v", name, pixelpruner.ErrUnsupportedFormat, err)
	}
	if format == "webp" && !webp {
		return nil, fmt.Errorf("decode %q err, %w: webp disabled", name, pixelpruner.ErrUnsupportedFormat)
	}
	img, err := imaging.Decode(bytes.NewReader(b), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode %q err, %w: %v", name, pixelpruner.ErrUnsupportedFormat, err)
	}
	nrgba, ok := img.(*image.NRGBA)
	if !ok || nrgba.Rect.Min != (image.Point{}) {
		nrgba = imaging.Clone(img)
	}
	if nrgba.Rect.Empty() {
		return nil, fmt.Errorf("decode %q err, %w: empty image", name, pixelpruner.ErrUnsupportedFormat)
	}
	return &SourceImage{
		Name:    filepath.Base(name),
		Format:  format,
		Image:   nrgba,
		Encoded: b,
	}, nil
}

// Load reads and decodes an image and appends it to the store.
func (s *Store) Load(name string, r io.Reader) (*SourceImage, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %q err, %w", name, err)
	}
	img, err := Decode(name, b, s.webp)
	if err != nil {
		s.log.Warn("skipping image", log.String("name", name), log.Err(err))
		return nil, err
	}
	s.images = append(s.images, img)
	s.log.Debug("loaded image",
		log.String("name", img.Name),
		log.String("format", img.Format),
		log.Int("width", img.Width()),
		log.Int("height", img.Height()),
		log.Bytes("size", len(b)),
	)
	return img, nil
}

// LoadFile loads the image at path.
func (s *Store) LoadFile(path string) (*SourceImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file %q err, %w", path, err)
	}
	defer f.Close()
	return s.Load(filepath.Base(path), f)
}

// LoadPaths loads files and the supported images found directly inside
// directories, in natural filename order. A file that fails to load does not
// stop the others; all failures are returned joined.
func (s *Store) LoadPaths(paths ...string) (loaded int, err error) {
	var errs []error
	for _, p := range paths {
		files, err := expand(p, s.webp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, f := range files {
			if _, err := s.LoadFile(f); err != nil {
				errs = append(errs, err)
				continue
			}
			loaded++
		}
	}
	return loaded, errors.Join(errs...)
}

func expand(p string, webp bool) ([]string, error) {
	fi, err := os.Stat(p)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{p}, nil
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, fmt.Errorf("read dir %q err, %w", p, err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && Supported(e.Name(), webp) {
			names = append(names, e.Name())
		}
	}
	sort.Slice(names, func(i, j int) bool { return natural.Less(names[i], names[j]) })
	files := make([]string, len(names))
	for i, n := range names {
		files[i] = filepath.Join(p, n)
	}
	return files, nil
}

// Get returns the image at index.
func (s *Store) Get(index int) (*SourceImage, error) {
	if index < 0 || index >= len(s.images) {
		return nil, fmt.Errorf("get %d of %d err, %w", index, len(s.images), pixelpruner.ErrIndexOutOfRange)
	}
	return s.images[index], nil
}

// Lookup returns the first image loaded under name.
func (s *Store) Lookup(name string) (img *SourceImage, index int, ok bool) {
	for i, img := range s.images {
		if img.Name == name {
			return img, i, true
		}
	}
	return nil, -1, false
}

// Remove drops the image at index. Later images move down by one.
func (s *Store) Remove(index int) error {
	if _, err := s.Get(index); err != nil {
		return err
	}
	copy(s.images[index:], s.images[index+1:])
	s.images[len(s.images)-1] = nil
	s.images = s.images[:len(s.images)-1]
	return nil
}

func (s *Store) Len() int {
	return len(s.images)
}

// All returns the images in insertion order.
func (s *Store) All() []*SourceImage {
	return append([]*SourceImage(nil), s.images...)
}

// Reset empties the store.
func (s *Store) Reset() {
	s.images = nil
}
