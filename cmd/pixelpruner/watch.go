package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner"
	"github.com/sebnyberg/pixelpruner/internal/watch"
)

func newWatchCmd(a *app) *cobra.Command {
	var existing bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Crop the centre of every image dropped into a directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.cfg.InputDir == "" {
				return errors.New("input-dir is required")
			}
			preset, err := pixelpruner.LookupPreset(a.cfg.Preset)
			if err != nil {
				return err
			}
			e, err := a.newEngine(a.newStore())
			if err != nil {
				return err
			}
			w, err := watch.New(a.cfg.InputDir, e, preset, a.cfg.Zoom,
				watch.WithDebounce(a.cfg.Debounce),
				watch.WithExisting(existing),
				watch.WithWebP(a.cfg.WebP),
				watch.WithLogger(a.log),
			)
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return w.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&a.cfg.InputDir, "input-dir", a.cfg.InputDir, "directory to watch")
	cmd.Flags().StringVar(&a.cfg.Preset, "preset", a.cfg.Preset, "crop preset")
	cmd.Flags().Float64Var(&a.cfg.Zoom, "zoom", a.cfg.Zoom, "zoom, within [0.1, 3]")
	cmd.Flags().DurationVar(&a.cfg.Debounce, "debounce", a.cfg.Debounce, "quiet time before a new file is cropped")
	cmd.Flags().BoolVar(&existing, "existing", false, "also crop the images already in the directory")
	return cmd
}
