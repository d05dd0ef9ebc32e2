package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/internal/server"
	"github.com/sebnyberg/pixelpruner/pngx"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON crop API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := engine.ParseBackend(a.cfg.Backend)
			if err != nil {
				return err
			}
			level, err := pngx.ParseCompression(a.cfg.PNGCompression)
			if err != nil {
				return err
			}
			srv, err := server.New(server.Options{
				OutputDir:   a.cfg.OutputDir,
				WebP:        a.cfg.WebP,
				Backend:     backend,
				Compression: level,
				Display:     a.cfg.Display,
				Preset:      a.cfg.Preset,
				Zoom:        a.cfg.Zoom,
				Logger:      a.log,
			})
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return srv.ListenAndServe(ctx, a.cfg.Listen)
		},
	}
	cmd.Flags().StringVar(&a.cfg.Listen, "listen", a.cfg.Listen, "address to listen on")
	cmd.Flags().StringVar(&a.cfg.Display, "display", a.cfg.Display, "default display size")
	cmd.Flags().StringVar(&a.cfg.Preset, "preset", a.cfg.Preset, "default crop preset")
	cmd.Flags().Float64Var(&a.cfg.Zoom, "zoom", a.cfg.Zoom, "default zoom")
	return cmd
}
