package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"chronicle/internal/chronicle"
	"chronicle/internal/wait"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const benchGreeting = "Hello World!"

var errBenchMismatch = errors.New("bench: unexpected record")

type benchOptions struct {
	Dir         string
	Runs        int
	Rate        float64
	SegmentSize int64
	IndexSize   int64
	Wait        func() wait.Strategy
	Logger      *slog.Logger
}

type benchResult struct {
	Runs     int           `json:"runs"`
	Entries  int           `json:"entries"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Rate     float64       `json:"entries_per_sec"`
	Requests string        `json:"requests_path"`
}

func newBenchCmd(app func() *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure request/response throughput over two chronicles",
		Long: "The requester writes a request record to one chronicle and the responder, " +
			"polling it through a second opener, answers on another. Both chronicles are " +
			"created in a fresh directory that is removed afterwards unless --keep is set.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e := app()
			runs, _ := cmd.Flags().GetInt("runs")
			perSec, _ := cmd.Flags().GetFloat64("rate")
			waitName, _ := cmd.Flags().GetString("wait")
			keep, _ := cmd.Flags().GetBool("keep")

			if _, err := wait.Parse(waitName); err != nil {
				return err
			}
			if err := e.home.EnsureExists(); err != nil {
				return err
			}
			dir := filepath.Join(e.home.ChroniclesDir(), "bench-"+uuid.Must(uuid.NewV7()).String())
			if !keep {
				defer func() { _ = os.RemoveAll(dir) }()
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			res, err := runBench(ctx, benchOptions{
				Dir:         dir,
				Runs:        runs,
				Rate:        perSec,
				SegmentSize: int64(e.cfg.DataSegmentSize),
				IndexSize:   int64(e.cfg.IndexSegmentSize),
				Wait: func() wait.Strategy {
					s, _ := wait.Parse(waitName)
					return s
				},
				Logger: e.logger,
			})
			if err != nil {
				return err
			}
			return e.out.report(res, func() []field {
				return []field{
					{"Runs", strconv.Itoa(res.Runs)},
					{"Entries", strconv.Itoa(res.Entries)},
					{"Elapsed", res.Elapsed.Round(time.Microsecond).String()},
					{"Rate", fmt.Sprintf("%.2f M entries/sec", res.Rate/1e6)},
				}
			})
		},
	}
	cmd.Flags().Int("runs", 1_000_000, "request/response round trips")
	cmd.Flags().Float64("rate", 0, "requests per second (0 = unlimited)")
	cmd.Flags().String("wait", "spin", "wait strategy: spin, yield, backoff, sleep[:duration]")
	cmd.Flags().Bool("keep", false, "keep the bench chronicles")
	return cmd
}

// runBench writes Runs requests and waits for as many responses. Each side
// opens its own Chronicle on both paths, as separate processes would.
func runBench(ctx context.Context, opts benchOptions) (benchResult, error) {
	reqPath := filepath.Join(opts.Dir, "request")
	respPath := filepath.Join(opts.Dir, "response")
	open := func(path string) (*chronicle.Chronicle, error) {
		return chronicle.Open(chronicle.Config{
			Path:             path,
			DataSegmentSize:  opts.SegmentSize,
			IndexSegmentSize: opts.IndexSize,
			Logger:           opts.Logger,
		})
	}

	var cs []*chronicle.Chronicle
	defer func() {
		for _, c := range cs {
			_ = c.Close()
		}
	}()
	for _, p := range []string{reqPath, respPath, reqPath, respPath} {
		c, err := open(p)
		if err != nil {
			return benchResult{}, err
		}
		cs = append(cs, c)
	}
	if err := cs[0].Clear(); err != nil {
		return benchResult{}, err
	}
	if err := cs[1].Clear(); err != nil {
		return benchResult{}, err
	}

	var limiter *rate.Limiter
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), 1)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return respond(gctx, cs[2], cs[3], opts.Runs, opts.Wait()) })
	g.Go(func() error { return request(gctx, cs[0], cs[1], opts.Runs, limiter, opts.Wait()) })
	if err := g.Wait(); err != nil {
		return benchResult{}, err
	}
	elapsed := time.Since(start)

	return benchResult{
		Runs:     opts.Runs,
		Entries:  2 * opts.Runs,
		Elapsed:  elapsed,
		Rate:     float64(2*opts.Runs) / elapsed.Seconds(),
		Requests: reqPath,
	}, nil
}

// request writes every request, draining whatever responses are already
// available between writes, then waits for the rest.
func request(ctx context.Context, reqs, resps *chronicle.Chronicle, runs int, limiter *rate.Limiter, s wait.Strategy) error {
	out := reqs.CreateExcerpt()
	in := resps.CreateExcerpt()
	next := 0
	for i := range runs {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := out.StartExcerpt(32); err != nil {
			return err
		}
		if err := writeRequest(out, int32(i)); err != nil { //nolint:gosec // G115: runs fits int32 in practice
			return err
		}
		if err := out.Finish(); err != nil {
			return err
		}
		for next < runs {
			ok, err := in.Index(uint64(next))
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			if err := readResponse(in, next); err != nil {
				return err
			}
			next++
		}
	}
	for ; next < runs; next++ {
		if err := wait.Until(ctx, in, uint64(next), s); err != nil {
			return err
		}
		if err := readResponse(in, next); err != nil {
			return err
		}
	}
	return nil
}

func respond(ctx context.Context, reqs, resps *chronicle.Chronicle, runs int, s wait.Strategy) error {
	in := reqs.CreateExcerpt()
	out := resps.CreateExcerpt()
	buf := make([]byte, 0, 2*len(benchGreeting))
	for i := range runs {
		if err := wait.Until(ctx, in, uint64(i), s); err != nil {
			return err
		}
		n, err := readRequest(in, i, buf[:0])
		if err != nil {
			return err
		}
		if err := out.StartExcerpt(8); err != nil {
			return err
		}
		if err := writeResponse(out, n); err != nil {
			return err
		}
		if err := out.Finish(); err != nil {
			return err
		}
	}
	return nil
}

func writeRequest(ex *chronicle.Excerpt, n int32) error {
	if err := ex.WriteChar('T'); err != nil {
		return err
	}
	if err := ex.WriteInt(n); err != nil {
		return err
	}
	return ex.WriteChars(benchGreeting)
}

func readRequest(ex *chronicle.Excerpt, want int, buf []byte) (int32, error) {
	defer func() { _ = ex.Finish() }()
	typ, err := ex.ReadChar()
	if err != nil {
		return 0, err
	}
	n, err := ex.ReadInt()
	if err != nil {
		return 0, err
	}
	if typ != 'T' || int(n) != want {
		return 0, fmt.Errorf("%w: request %d: type %q n %d", errBenchMismatch, want, typ, n)
	}
	if _, err := ex.ReadCharsTo(buf); err != nil {
		return 0, err
	}
	return n, nil
}

func writeResponse(ex *chronicle.Excerpt, n int32) error {
	if err := ex.WriteChar('R'); err != nil {
		return err
	}
	if err := ex.WriteInt(n); err != nil {
		return err
	}
	return ex.WriteShort(-1)
}

func readResponse(ex *chronicle.Excerpt, want int) error {
	defer func() { _ = ex.Finish() }()
	typ, err := ex.ReadChar()
	if err != nil {
		return err
	}
	n, err := ex.ReadInt()
	if err != nil {
		return err
	}
	if typ != 'R' || int(n) != want {
		return fmt.Errorf("%w: response %d: type %q n %d", errBenchMismatch, want, typ, n)
	}
	_, err = ex.ReadShort()
	return err
}
