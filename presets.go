package pixelpruner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// CropPresets are the named target sizes for click-centred crops.
var CropPresets = map[string]Size{
	"512x512":   {512, 512},
	"768x768":   {768, 768},
	"1024x1024": {1024, 1024},
	"2048x2048": {2048, 2048},
	"512x768":   {512, 768},
	"768x512":   {768, 512},
}

// DisplaySizes are the boxes previews are fitted into. Original renders the
// image at its native size.
var DisplaySizes = map[string]Size{
	"small":    {600, 480},
	"medium":   {800, 600},
	"large":    {1000, 750},
	"x-large":  {1200, 900},
	"original": {0, 0},
}

// DefaultDisplay is the display size used when none is given.
const DefaultDisplay = "medium"

// Zoom range of click-centred crops.
const (
	MinZoom = 0.1
	MaxZoom = 3.0
)

// ParseSize parses "WxH" into a Size.
func ParseSize(s string) (Size, error) {
	ws, hs, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Size{}, fmt.Errorf("parse size %q err, want WxH", s)
	}
	w, err := strconv.Atoi(ws)
	if err != nil {
		return Size{}, fmt.Errorf("parse size %q err, %w", s, err)
	}
	h, err := strconv.Atoi(hs)
	if err != nil {
		return Size{}, fmt.Errorf("parse size %q err, %w", s, err)
	}
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("parse size %q err, %w", s, ErrInvalidPreset)
	}
	return Size{Width: w, Height: h}, nil
}

// LookupPreset resolves a crop preset by name, falling back to a custom "WxH".
func LookupPreset(name string) (Size, error) {
	if s, ok := CropPresets[name]; ok {
		return s, nil
	}
	return ParseSize(name)
}

// LookupDisplay resolves a display size by name (case-insensitive) or "WxH".
// An empty name selects DefaultDisplay.
func LookupDisplay(name string) (Size, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = DefaultDisplay
	}
	if s, ok := DisplaySizes[key]; ok {
		return s, nil
	}
	return ParseSize(key)
}

// PresetNames returns the crop preset names, smallest area first.
func PresetNames() []string {
	names := make([]string, 0, len(CropPresets))
	for k := range CropPresets {
		names = append(names, k)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := CropPresets[names[i]], CropPresets[names[j]]
		if a.Width*a.Height != b.Width*b.Height {
			return a.Width*a.Height < b.Width*b.Height
		}
		return names[i] < names[j]
	})
	return names
}
