// Package watch crops images as they appear in a directory. Every new image
// gets one click-centred preset crop taken at its centre.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/store"
)

const DefaultDebounce = 500 * time.Millisecond

// seenSize caps how many processed files are remembered.
const seenSize = 4096

type Option func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is cropped.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithExisting crops the images already in the directory on start.
func WithExisting(enabled bool) Option {
	return func(w *Watcher) { w.existing = enabled }
}

func WithWebP(enabled bool) Option {
	return func(w *Watcher) { w.webp = enabled }
}

func WithLogger(l log.Logger) Option {
	return func(w *Watcher) { w.log = log.OrNoop(l) }
}

// Watcher feeds new files of a directory through a crop engine.
type Watcher struct {
	dir      string
	engine   *engine.Engine
	preset   pixelpruner.Size
	zoom     float64
	debounce time.Duration
	existing bool
	webp     bool
	log      log.Logger

	// seen holds the modification time of recently processed files.
	seen *lru.Cache[string, time.Time]
}

// New returns a watcher of dir cropping with e. The engine's output directory
// must not be dir itself.
func New(dir string, e *engine.Engine, preset pixelpruner.Size, zoom float64, opts ...Option) (*Watcher, error) {
	if preset.Empty() || zoom < pixelpruner.MinZoom || zoom > pixelpruner.MaxZoom {
		return nil, pixelpruner.ErrInvalidPreset
	}
	absIn, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	absOut, err := filepath.Abs(e.Dir())
	if err != nil {
		return nil, err
	}
	if absIn == absOut {
		return nil, fmt.Errorf("watch %q err, input and output dir are the same", dir)
	}
	seen, err := lru.New[string, time.Time](seenSize)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      dir,
		engine:   e,
		preset:   preset,
		zoom:     zoom,
		debounce: DefaultDebounce,
		log:      log.Noop{},
		seen:     seen,
	}
	for _, o := range opts {
		o(w)
	}
	return w, nil
}

// Run watches the directory until ctx is cancelled. Files are handled one at a
// time on the calling goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher err, %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %q err, %w", w.dir, err)
	}
	w.log.Info("watching", log.String("dir", w.dir), log.String("output_dir", w.engine.Dir()))

	if w.existing {
		if err := w.scan(); err != nil {
			return err
		}
	}

	pending := make(map[string]time.Time)
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				w.seen.Remove(event.Name)
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !store.Supported(event.Name, w.webp) {
				continue
			}
			pending[event.Name] = time.Now().Add(w.debounce)
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", log.Err(err))

		case now := <-timer.C:
			next := time.Duration(0)
			for p, due := range pending {
				if wait := due.Sub(now); wait > 0 {
					if next == 0 || wait < next {
						next = wait
					}
					continue
				}
				delete(pending, p)
				w.process(p)
			}
			if next > 0 {
				timer.Reset(next)
			}
		}
	}
}

func (w *Watcher) scan() error {
	des, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read dir %q err, %w", w.dir, err)
	}
	for _, de := range des {
		if de.Type().IsRegular() && store.Supported(de.Name(), w.webp) {
			w.process(filepath.Join(w.dir, de.Name()))
		}
	}
	return nil
}

// process crops the centre of the image at path. Files that vanished, did not
// change since they were last cropped, or fail to decode are skipped.
func (w *Watcher) process(path string) {
	fi, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.log.Warn("stat failed", log.String("file", path), log.Err(err))
		}
		return
	}
	if !fi.Mode().IsRegular() {
		return
	}
	if mt, ok := w.seen.Get(path); ok && mt.Equal(fi.ModTime()) {
		return
	}
	w.seen.Add(path, fi.ModTime())

	st := w.engine.Store()
	img, err := st.LoadFile(path)
	if err != nil {
		w.log.Warn("skipped file", log.String("file", path), log.Err(err))
		return
	}
	index := st.Len() - 1
	defer st.Remove(index)

	click := pixelpruner.Point{X: float64(img.Width()) / 2, Y: float64(img.Height()) / 2}
	res, err := w.engine.CropAt(index, click, pixelpruner.Identity(img.Size()), w.preset, w.zoom)
	if err != nil {
		w.log.Warn("crop failed", log.String("file", path), log.Err(err))
		return
	}
	w.log.Info("cropped new image", log.String("file", path), log.String("crop", res.Filename))
}
