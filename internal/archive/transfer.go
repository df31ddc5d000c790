package archive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"chronicle/internal/chronicle"
	"chronicle/internal/logging"
)

// ExportOptions selects the records to export.
type ExportOptions struct {
	Codec Codec
	// From is the first sequence number exported.
	From uint64
	// To is one past the last sequence number exported. Zero means the
	// number of records committed when Export starts.
	To     uint64
	Logger *slog.Logger
}

// Export writes the committed records of c in [From, To) to w and returns
// the number written. Records committed after Export starts are not
// included.
func Export(ctx context.Context, c *chronicle.Chronicle, w io.Writer, opts ExportOptions) (uint64, error) {
	logger := logging.Component(opts.Logger, "archive", "path", c.Path())

	to := c.Size()
	if opts.To != 0 && opts.To < to {
		to = opts.To
	}
	from := min(opts.From, to)

	aw, err := NewWriter(w, opts.Codec, Manifest{
		Source:   c.Path(),
		Instance: c.Instance(),
		Created:  time.Now().UTC(),
		First:    from,
		Count:    to - from,
	})
	if err != nil {
		return 0, err
	}

	ex := c.CreateExcerpt()
	defer func() { _ = ex.Finish() }()
	for seq := from; seq < to; seq++ {
		if err := ctx.Err(); err != nil {
			_ = aw.Close()
			return seq - from, err
		}
		ok, err := ex.Index(seq)
		if err != nil {
			_ = aw.Close()
			return seq - from, err
		}
		if !ok {
			// The chronicle was cleared underneath us.
			_ = aw.Close()
			return seq - from, fmt.Errorf("%w: record %d disappeared", ErrCountMismatch, seq)
		}
		if err := aw.Write(seq, ex.Bytes()); err != nil {
			_ = aw.Close()
			return seq - from, err
		}
	}
	if err := aw.Close(); err != nil {
		return to - from, err
	}
	logger.Info("exported archive", "codec", opts.Codec, "first", from, "count", to-from)
	return to - from, nil
}

// Import appends every record of the archive in r to c and returns the
// number appended. Source sequence numbers are not preserved: records are
// assigned the next sequence numbers of c.
func Import(ctx context.Context, c *chronicle.Chronicle, r io.Reader, logger *slog.Logger) (uint64, error) {
	logger = logging.Component(logger, "archive", "path", c.Path())

	ar, err := NewReader(r)
	if err != nil {
		return 0, err
	}
	defer func() { _ = ar.Close() }()

	ex := c.CreateExcerpt()
	var n uint64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		rec, err := ar.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, err
		}
		if err := ex.StartExcerpt(len(rec.Data)); err != nil {
			return n, fmt.Errorf("import record %d: %w", rec.Seq, err)
		}
		if err := ex.WriteBytes(rec.Data); err != nil {
			ex.Abandon()
			return n, fmt.Errorf("import record %d: %w", rec.Seq, err)
		}
		if err := ex.Finish(); err != nil {
			return n, fmt.Errorf("import record %d: %w", rec.Seq, err)
		}
		n++
	}
	m := ar.Manifest()
	logger.Info("imported archive", "source", m.Source, "codec", ar.Codec(), "count", n)
	return n, nil
}
