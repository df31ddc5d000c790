package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"chronicle/internal/archive"

	"github.com/spf13/cobra"
)

func newExportCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [name]",
		Short: "Write committed records to an archive",
		Long:  "Writes the committed records in [--from, --to) to an archive file, or stdout with --file -.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			codecName, _ := cmd.Flags().GetString("codec")
			from, _ := cmd.Flags().GetUint64("from")
			to, _ := cmd.Flags().GetUint64("to")
			file, _ := cmd.Flags().GetString("file")

			codec, err := archive.ParseCodec(codecName)
			if err != nil {
				return err
			}
			c, err := e.open(args, true)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			if file == "-" {
				bw := bufio.NewWriter(cmd.OutOrStdout())
				if _, err := archive.Export(ctx, c, bw, archive.ExportOptions{Codec: codec, From: from, To: to, Logger: e.logger}); err != nil {
					return err
				}
				return bw.Flush()
			}

			// Write to a temp file and rename so a failed export leaves
			// nothing behind.
			tmp, err := os.CreateTemp(filepath.Dir(file), ".export-*")
			if err != nil {
				return err
			}
			defer func() { _ = os.Remove(tmp.Name()) }()
			bw := bufio.NewWriter(tmp)
			n, err := archive.Export(ctx, c, bw, archive.ExportOptions{Codec: codec, From: from, To: to, Logger: e.logger})
			if err == nil {
				err = bw.Flush()
			}
			if err == nil {
				err = tmp.Sync()
			}
			if cerr := tmp.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			if err := os.Rename(tmp.Name(), file); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records to %s (%s)\n", n, file, codec)
			return nil
		},
	}
	cmd.Flags().String("codec", "zstd", "compression: none, zstd or brotli")
	cmd.Flags().Uint64("from", 0, "first sequence number")
	cmd.Flags().Uint64("to", 0, "one past the last sequence number (0 = all committed)")
	cmd.Flags().String("file", "-", "output file, - for stdout")
	return cmd
}

func newImportCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [name]",
		Short: "Append the records of an archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			file, _ := cmd.Flags().GetString("file")

			c, err := e.open(args, false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			in := cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(filepath.Clean(file))
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			n, err := archive.Import(ctx, c, bufio.NewReader(in), e.logger)
			if err != nil {
				return fmt.Errorf("imported %d records before failing: %w", n, err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "imported %d records into %s\n", n, c.Path())
			return nil
		},
	}
	cmd.Flags().String("file", "-", "archive file, - for stdin")
	return cmd
}
