package main

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner"
)

func newBenchCmd(a *app) *cobra.Command {
	var (
		size  string
		count int
		seed  int64
	)
	cmd := &cobra.Command{
		Use:    "bench FILE",
		Short:  "Cut random regions out of an image with the configured backend",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dims, err := pixelpruner.ParseSize(size)
			if err != nil {
				return err
			}
			s := a.newStore()
			img, err := s.LoadFile(args[0])
			if err != nil {
				return err
			}
			dx := min(dims.Width, img.Width())
			dy := min(dims.Height, img.Height())
			e, err := a.newEngine(s)
			if err != nil {
				return err
			}

			rng := rand.New(rand.NewSource(seed))
			out := cmd.OutOrStdout()
			t := pixelpruner.Identity(img.Size())
			var written int
			start := time.Now()
			for i := 0; i < count; i++ {
				offx := rng.Intn(img.Width() - dx + 1)
				offy := rng.Intn(img.Height() - dy + 1)
				sel := pixelpruner.SelectionRect{X: float64(offx), Y: float64(offy), Width: float64(dx), Height: float64(dy)}
				res, err := e.Extract(0, sel, t)
				if err != nil {
					return err
				}
				written += len(res.PNG)
				if i%100 == 0 {
					fmt.Fprintln(out, i)
				}
			}
			elapsed := time.Since(start)
			fmt.Fprintf(out, "%d crops of %dx%d with %s backend in %v (%v/crop, %s PNG)\n",
				count, dx, dy, a.cfg.Backend, elapsed.Round(time.Millisecond),
				(elapsed / time.Duration(max(count, 1))).Round(time.Microsecond),
				humanize.Bytes(uint64(written)))
			return nil
		},
	}
	cmd.Flags().StringVar(&size, "size", "1000x1000", "crop size WxH")
	cmd.Flags().IntVar(&count, "count", 100, "number of crops")
	cmd.Flags().Int64Var(&seed, "seed", 1, "random seed")
	return cmd
}
