package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner/dataset"
)

func newRGBCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rgb DIR",
		Short: "Rewrite grayscale, paletted and alpha images in DIR as RGB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			convs, err := dataset.ConvertRGB(args[0], a.log)
			for _, c := range convs {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Name, c.From)
			}
			return err
		},
	}
}

func newScanCmd(a *app) *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "scan DIR",
		Short: "Move images that fail to decode out of DIR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			moved, err := dataset.Quarantine(args[0], dest, a.log)
			for _, m := range moved {
				fmt.Fprintln(cmd.OutOrStdout(), m)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&dest, "dest", "", "destination of unreadable images (default: DIR/"+dataset.QuarantineDir+")")
	return cmd
}
