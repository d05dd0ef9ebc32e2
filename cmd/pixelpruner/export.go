package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/sebnyberg/pixelpruner/export"
	"github.com/sebnyberg/pixelpruner/log"
)

func newExportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "List, delete and archive the crops in the output directory",
	}
	cmd.AddCommand(newExportListCmd(a), newExportDeleteCmd(a), newExportArchiveCmd(a))
	return cmd
}

func newExportListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the crops",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := export.List(a.cfg.OutputDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, e := range entries {
				fmt.Fprintf(out, "%s\t%s\n", e.Name, humanize.Bytes(uint64(e.Size)))
			}
			return nil
		},
	}
}

func newExportDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME...",
		Short: "Delete crops by filename",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deleted, err := export.Delete(a.cfg.OutputDir, args)
			for _, n := range deleted {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return err
		},
	}
}

func newExportArchiveCmd(a *app) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "archive FILE",
		Short: "Pack all crops into a zip or tar.zst archive (FILE - writes to stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			if format == "" {
				format = "zip"
				if strings.HasSuffix(path, ".tar.zst") || strings.HasSuffix(path, ".tzst") {
					format = "tar.zst"
				}
			}
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}

			var n int
			if path == "-" {
				n, err = export.Write(cmd.OutOrStdout(), a.cfg.OutputDir, f)
			} else {
				n, err = writeArchive(path, a.cfg.OutputDir, f)
			}
			if err != nil {
				return err
			}
			a.log.Info("archive written", log.String("file", path), log.String("format", string(f)), log.Int("files", n))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "archive format: zip or tar.zst (default: from the file extension)")
	return cmd
}

func writeArchive(path, dir string, f export.Format) (int, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create file %q err, %w", path, err)
	}
	n, err := export.Write(out, dir, f)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return n, err
}
