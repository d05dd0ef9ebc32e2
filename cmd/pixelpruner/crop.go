package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/log"
)

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("parse %q err, want %d comma separated numbers", s, n)
	}
	res := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse %q err, %w", s, err)
		}
		res[i] = v
	}
	return res, nil
}

func newCropCmd(a *app) *cobra.Command {
	var rect, at string
	cmd := &cobra.Command{
		Use:   "crop [flags] FILE|DIR...",
		Short: "Crop the same display selection out of every image",
		Long: strings.TrimSpace(`
Each image is fitted into the display size, as a client would show it, and the
selection is mapped from that rendering onto the source. With --rect the
selection is x,y,width,height; with --at a preset-sized box is centred on x,y.
Images the selection misses are skipped.`),
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (rect == "") == (at == "") {
				return errors.New("exactly one of --rect and --at is required")
			}
			box, err := pixelpruner.LookupDisplay(a.cfg.Display)
			if err != nil {
				return err
			}
			s := a.newStore()
			loaded, err := s.LoadPaths(args...)
			if err != nil {
				a.log.Warn("some inputs were not loaded", log.Err(err))
			}
			if loaded == 0 {
				return errors.New("no images loaded")
			}
			e, err := a.newEngine(s)
			if err != nil {
				return err
			}

			var outcomes []engine.Outcome
			if rect != "" {
				v, err := parseFloats(rect, 4)
				if err != nil {
					return err
				}
				sel := pixelpruner.SelectionRect{X: v[0], Y: v[1], Width: v[2], Height: v[3]}
				outcomes = e.Batch(nil, sel, box)
			} else {
				v, err := parseFloats(at, 2)
				if err != nil {
					return err
				}
				preset, err := pixelpruner.LookupPreset(a.cfg.Preset)
				if err != nil {
					return err
				}
				outcomes = cropAt(e, pixelpruner.Point{X: v[0], Y: v[1]}, box, preset, a.cfg.Zoom)
			}

			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				if o.Skipped() {
					fmt.Fprintf(out, "skipped %s: %v\n", o.Source, o.Err)
					continue
				}
				fmt.Fprintln(out, o.Result.Path)
			}
			saved, skipped := engine.Summary(outcomes)
			a.log.Info("crop done", log.Int("saved", saved), log.Int("skipped", skipped))
			if saved == 0 {
				return errors.New("no crops written")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&rect, "rect", "", "selection x,y,width,height in display coordinates")
	cmd.Flags().StringVar(&at, "at", "", "centre x,y of a preset crop in display coordinates")
	cmd.Flags().StringVar(&a.cfg.Display, "display", a.cfg.Display, "display size: small, medium, large, x-large, original or WxH")
	cmd.Flags().StringVar(&a.cfg.Preset, "preset", a.cfg.Preset, "crop preset for --at, e.g. 512x512 or WxH")
	cmd.Flags().Float64Var(&a.cfg.Zoom, "zoom", a.cfg.Zoom, "zoom for --at, within [0.1, 3]")
	return cmd
}

// cropAt takes a click-centred crop of every image in the engine's store.
func cropAt(e *engine.Engine, click pixelpruner.Point, box, preset pixelpruner.Size, zoom float64) []engine.Outcome {
	all := e.Store().All()
	out := make([]engine.Outcome, 0, len(all))
	for i, src := range all {
		o := engine.Outcome{Index: i, Source: src.Name}
		o.Result, o.Err = e.CropAt(i, click, pixelpruner.FitDisplay(src.Size(), box), preset, zoom)
		out = append(out, o)
	}
	return out
}
