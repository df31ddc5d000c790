package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"chronicle/internal/chronicle"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
)

func newWriteCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write [name]",
		Short: "Append each line of stdin as a record",
		Long:  "Reads lines from stdin and appends each one as a record holding the current time and the line text.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			perSec, _ := cmd.Flags().GetFloat64("rate")
			burst, _ := cmd.Flags().GetInt("burst")
			doSync, _ := cmd.Flags().GetBool("sync")

			c, err := e.open(args, false)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			var limiter *rate.Limiter
			if perSec > 0 {
				limiter = rate.NewLimiter(rate.Limit(perSec), max(burst, 1))
			}
			n, err := writeLines(ctx, c, cmd.InOrStdin(), limiter)
			e.logger.Info("write finished", "records", n, "size", c.Size())
			if err != nil {
				return err
			}
			if doSync {
				return c.Sync()
			}
			return nil
		},
	}
	cmd.Flags().Float64("rate", 0, "records per second (0 = unlimited)")
	cmd.Flags().Int("burst", 1, "records allowed above --rate in a burst")
	cmd.Flags().Bool("sync", false, "msync both files before exiting")
	return cmd
}

// writeLines appends every line of r to c and returns how many were
// written.
func writeLines(ctx context.Context, c *chronicle.Chronicle, r io.Reader, limiter *rate.Limiter) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), c.MaxCapacity())

	ex := c.CreateExcerpt()
	n := 0
	for sc.Scan() {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return n, err
			}
		} else if err := ctx.Err(); err != nil {
			return n, err
		}
		line := sc.Text()
		if err := ex.StartExcerpt(lineCapacity(line)); err != nil {
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		if err := encodeLine(ex, time.Now().UnixMilli(), line); err != nil {
			_ = ex.Finish()
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		if err := ex.Finish(); err != nil {
			return n, fmt.Errorf("record %d: %w", n, err)
		}
		n++
	}
	return n, sc.Err()
}
