package main

import (
	"bufio"
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"time"

	"chronicle/internal/chronicle"
	"chronicle/internal/codec"
	"chronicle/internal/logging"
	"chronicle/internal/metrics"
	"chronicle/internal/wait"
	"chronicle/internal/watch"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errRemoved = errors.New("chronicle files removed")

func newTailCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail [name]",
		Short: "Print records as they are committed",
		Long: "Opens the chronicle read-only, waiting for it to be created if needed, " +
			"and prints every record from --from onwards. With --follow it keeps polling " +
			"for new records and restarts from the beginning when the chronicle is cleared.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			from, _ := cmd.Flags().GetUint64("from")
			follow, _ := cmd.Flags().GetBool("follow")
			hexOut, _ := cmd.Flags().GetBool("hex")
			waitName, _ := cmd.Flags().GetString("wait")
			metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

			strategy, err := wait.Parse(cmp.Or(waitName, e.cfg.Wait))
			if err != nil {
				return err
			}
			cc, err := e.chronicleConfig(args, true)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			w, err := watch.New(cc.Path, e.logger)
			if err != nil {
				return err
			}
			defer func() { _ = w.Close() }()
			if err := w.WaitForFiles(ctx); err != nil {
				return err
			}

			c, err := chronicle.Open(cc)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			t := &tailer{
				c:        c,
				out:      bufio.NewWriter(cmd.OutOrStdout()),
				hex:      hexOut,
				follow:   follow,
				strategy: strategy,
				logger:   logging.Component(e.logger, "tail"),
			}
			defer func() { _ = t.out.Flush() }()

			g, gctx := errgroup.WithContext(ctx)
			if follow {
				g.Go(func() error { return t.watch(gctx, w) })
			}
			if addr := cmp.Or(metricsAddr, e.cfg.Metrics.Addr); addr != "" {
				reg := prometheus.NewRegistry()
				if _, err := metrics.Register(reg, c); err != nil {
					return err
				}
				g.Go(func() error { return serveMetrics(gctx, addr, reg, t.logger) })
			}
			g.Go(func() error {
				defer cancel()
				return t.run(gctx, from)
			})
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().Uint64("from", 0, "first sequence number to print")
	cmd.Flags().BoolP("follow", "f", false, "keep waiting for new records")
	cmd.Flags().Bool("hex", false, "print records as hex instead of decoding lines")
	cmd.Flags().String("wait", "", "wait strategy: spin, yield, backoff, sleep[:duration]")
	cmd.Flags().String("metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

type tailer struct {
	c        *chronicle.Chronicle
	out      *bufio.Writer
	hex      bool
	follow   bool
	strategy wait.Strategy
	logger   *slog.Logger

	// recheck is set by the watcher when the index file was truncated or
	// replaced. The reader then compares its position with the index.
	recheck atomic.Bool
	removed atomic.Bool
}

func (t *tailer) run(ctx context.Context, next uint64) error {
	ex := t.c.CreateExcerpt()
	defer func() { _ = ex.Finish() }()
	if r, ok := t.strategy.(wait.Resetter); ok {
		r.Reset()
	}

	var line []byte
	for {
		ok, err := ex.Index(next)
		if err != nil {
			return err
		}
		if ok {
			line = t.format(line[:0], ex)
			if _, err := t.out.Write(line); err != nil {
				return err
			}
			next++
			if r, ok := t.strategy.(wait.Resetter); ok {
				r.Reset()
			}
			continue
		}
		if !t.follow {
			return nil
		}
		if err := t.out.Flush(); err != nil {
			return err
		}
		if t.removed.Load() {
			return errRemoved
		}
		if t.recheck.Swap(false) && t.c.Size() < next {
			t.logger.Info("chronicle cleared, restarting from 0", "was", next)
			next = 0
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		t.strategy.OnMiss()
	}
}

func (t *tailer) format(dst []byte, ex *chronicle.Excerpt) []byte {
	dst = strconv.AppendUint(dst, ex.Sequence(), 10)
	dst = append(dst, '\t')
	if t.hex {
		dst = hex.AppendEncode(dst, ex.Bytes())
		return append(dst, '\n')
	}
	millis, text, err := decodeLine(ex)
	if err != nil || ex.Remaining() != 0 {
		// Not written by "chronicle write".
		dst = fmt.Appendf(dst, "<%d bytes>", ex.Length())
		return append(dst, '\n')
	}
	dst = codec.AppendDateTime(dst, millis)
	dst = append(dst, '\t')
	dst = append(dst, text...)
	return append(dst, '\n')
}

func (t *tailer) watch(ctx context.Context, w *watch.Watcher) error {
	return w.Run(ctx, func(ev watch.Event) {
		t.logger.Debug("file event", "kind", ev.Kind, "path", ev.Path, "size", ev.Size)
		switch {
		case ev.Kind == watch.Removed:
			t.removed.Store(true)
		case ev.Index():
			t.recheck.Store(true)
		}
	})
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	logger.Info("metrics server listening", "addr", addr)

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	}
}
