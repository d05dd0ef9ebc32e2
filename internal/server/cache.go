package server

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/preview"
	"github.com/sebnyberg/pixelpruner/store"
)

type renderKind uint8

const (
	kindThumbnail renderKind = iota
	kindDisplay
)

// renderKey identifies a render. Source images are immutable, so the pointer
// is a stable identity for as long as the image is referenced.
type renderKey struct {
	img  *store.SourceImage
	kind renderKind
	box  pixelpruner.Size
}

type rendered struct {
	jpeg      []byte
	transform pixelpruner.DisplayTransform
}

// renderCache keeps recent thumbnails and display renders.
type renderCache struct {
	lru *lru.Cache[renderKey, rendered]
}

func newRenderCache(size int) (*renderCache, error) {
	c, err := lru.New[renderKey, rendered](size)
	if err != nil {
		return nil, err
	}
	return &renderCache{lru: c}, nil
}

func (c *renderCache) thumbnail(img *store.SourceImage) (rendered, error) {
	key := renderKey{img: img, kind: kindThumbnail}
	if r, ok := c.lru.Get(key); ok {
		return r, nil
	}
	b, err := preview.Thumbnail(img.Image)
	if err != nil {
		return rendered{}, err
	}
	r := rendered{jpeg: b, transform: pixelpruner.FitDisplay(img.Size(), pixelpruner.Size{Width: preview.ThumbnailSize, Height: preview.ThumbnailSize})}
	c.lru.Add(key, r)
	return r, nil
}

func (c *renderCache) display(img *store.SourceImage, box pixelpruner.Size) (rendered, error) {
	key := renderKey{img: img, kind: kindDisplay, box: box}
	if r, ok := c.lru.Get(key); ok {
		return r, nil
	}
	b, t, err := preview.Display(img.Image, box)
	if err != nil {
		return rendered{}, err
	}
	r := rendered{jpeg: b, transform: t}
	c.lru.Add(key, r)
	return r, nil
}

// forget drops the renders of the given images.
func (c *renderCache) forget(imgs []*store.SourceImage) {
	drop := make(map[*store.SourceImage]bool, len(imgs))
	for _, img := range imgs {
		drop[img] = true
	}
	for _, k := range c.lru.Keys() {
		if drop[k.img] {
			c.lru.Remove(k)
		}
	}
}
