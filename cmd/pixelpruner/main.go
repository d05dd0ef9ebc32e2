package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/sebnyberg/pixelpruner/engine"
	"github.com/sebnyberg/pixelpruner/internal/cliconfig"
	"github.com/sebnyberg/pixelpruner/log"
	"github.com/sebnyberg/pixelpruner/pngx"
	"github.com/sebnyberg/pixelpruner/store"
)

var longHelp = strings.TrimSpace(`
Crop images into PNG training samples.

Selections are given in the coordinates of a scaled-down display of each
image and mapped onto the full-resolution source. Crops are written as
<name>_crop<N>.png and never overwrite an existing file.

Configuration is read from $XDG_CONFIG_HOME/pixelpruner/config.toml, then
PIXELPRUNER_* environment variables, then flags.
`)

var exampleUsage = strings.TrimSpace(`
  pixelpruner crop --rect 100,50,400,300 --display medium photos/
  pixelpruner crop --at 400,300 --preset 1024x1024 --zoom 1.5 photo.jpg
  pixelpruner serve --listen :7860
  pixelpruner watch --input-dir inbox/ --preset 768x768
  pixelpruner export archive crops.tar.zst
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

// app is the state shared by the subcommands once flags, environment and the
// config file have been merged.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	zl      zerolog.Logger
	log     log.Logger
}

func (a *app) load(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}
	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}

	zl, err := log.NewZerologWriter(os.Stderr, a.cfg.LogFormat, a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.zl = zl
	a.log = log.NewZerolog(zl)
	a.zl.Debug().Interface("config", a.cfg).Msg("configuration")
	return nil
}

func (a *app) newStore() *store.Store {
	return store.New(store.WithWebP(a.cfg.WebP), store.WithLogger(a.log))
}

func (a *app) newEngine(s *store.Store) (*engine.Engine, error) {
	backend, err := engine.ParseBackend(a.cfg.Backend)
	if err != nil {
		return nil, err
	}
	level, err := pngx.ParseCompression(a.cfg.PNGCompression)
	if err != nil {
		return nil, err
	}
	return engine.New(s, a.cfg.OutputDir,
		engine.WithBackend(backend),
		engine.WithCompression(level),
		engine.WithLogger(a.log),
	), nil
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{cfg: cliconfig.DefaultConfig(), zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}

	root := &cobra.Command{
		Use:           "pixelpruner",
		Short:         "Crop images into PNG training samples",
		Long:          longHelp,
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to config file (default: $XDG_CONFIG_HOME/pixelpruner/config.toml)")
	pf.StringVar(&a.cfg.OutputDir, "output-dir", a.cfg.OutputDir, "directory crops are written to")
	pf.BoolVar(&a.cfg.WebP, "webp", a.cfg.WebP, "accept WEBP input")
	pf.StringVar(&a.cfg.Backend, "backend", a.cfg.Backend, "crop backend: image, stream or vips")
	pf.StringVar(&a.cfg.PNGCompression, "png-compression", a.cfg.PNGCompression, "PNG compression: default, none, speed or best")
	pf.StringVar(&a.cfg.LogLevel, "log-level", a.cfg.LogLevel, "log level")
	pf.StringVar(&a.cfg.LogFormat, "log-format", a.cfg.LogFormat, "log format: auto, console or json")

	root.AddCommand(
		newCropCmd(a),
		newServeCmd(a),
		newWatchCmd(a),
		newExportCmd(a),
		newRGBCmd(a),
		newScanCmd(a),
		newBenchCmd(a),
	)
	return root, a
}

func main() {
	root, a := newRootCmd()
	if err := root.Execute(); err != nil {
		a.zl.Error().Err(err).Msg("pixelpruner")
		os.Exit(1)
	}
}
