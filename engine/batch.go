package engine

import (
	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/log"
)

// Outcome reports what happened to one image of a batch.
type Outcome struct {
	Index  int
	Source string
	Result *CropResult
	Err    error
}

// Skipped reports whether no crop was written for the image.
func (o Outcome) Skipped() bool {
	return o.Err != nil
}

// Batch applies the same selection to several images. Each image is fitted
// into the display box to get its own DisplayTransform, so the selection keeps
// its position relative to what was shown even when the sources differ in
// size. A nil indices slice selects every image in the store.
//
// A failing image is reported in its Outcome and does not stop the batch.
func (e *Engine) Batch(indices []int, sel pixelpruner.SelectionRect, box pixelpruner.Size) []Outcome {
	if indices == nil {
		indices = make([]int, e.store.Len())
		for i := range indices {
			indices[i] = i
		}
	}
	out := make([]Outcome, 0, len(indices))
	for _, idx := range indices {
		o := Outcome{Index: idx}
		src, err := e.store.Get(idx)
		if err != nil {
			o.Err = err
			out = append(out, o)
			continue
		}
		o.Source = src.Name
		o.Result, o.Err = e.Crop(idx, sel, pixelpruner.FitDisplay(src.Size(), box))
		if o.Err != nil {
			e.log.Warn("skipped image", log.Int("index", idx), log.String("source", src.Name), log.Err(o.Err))
		}
		out = append(out, o)
	}
	return out
}

// Summary counts the saved and skipped images of a batch.
func Summary(outcomes []Outcome) (saved, skipped int) {
	for _, o := range outcomes {
		if o.Skipped() {
			skipped++
		} else {
			saved++
		}
	}
	return saved, skipped
}
