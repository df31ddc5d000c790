package chronicle

import (
	"fmt"
	"log/slog"
	"os"

	"chronicle/internal/idxstore"
	"chronicle/internal/mapped"
)

// MaxDataSegmentSize bounds DataSegmentSize so that every record length
// fits the index's 32-bit length field.
const MaxDataSegmentSize = 1 << 30

type Config struct {
	// Path is the base path. The chronicle lives in Path.data and
	// Path.index, plus Path.lock when WriterLock is set.
	Path string

	// DataSegmentSize is the data file growth unit and the largest
	// reservation StartExcerpt accepts. Defaults to 64 MiB.
	// Every process opening the same path must use the same value.
	DataSegmentSize int64

	// IndexSegmentSize is the index file growth unit. Defaults to 16 MiB.
	IndexSegmentSize int64

	// MaxDataSize and MaxIndexSize bound the file sizes. Zero means no limit.
	MaxDataSize  int64
	MaxIndexSize int64

	FileMode os.FileMode

	// ReadOnly maps both files without write access. The files must exist.
	ReadOnly bool

	// WriterLock takes an exclusive lock on Path.lock for the lifetime of the
	// chronicle, so a second locking writer fails with ErrWriterLocked.
	WriterLock bool

	// InstanceID identifies this opener in logs and in the lock file.
	// A UUIDv7 is generated when empty.
	InstanceID string

	// Logger receives lifecycle events. Nil disables logging.
	// The chronicle scopes this logger with component="chronicle".
	Logger *slog.Logger
}

func (cfg Config) validate() error {
	switch {
	case cfg.Path == "":
		return fmt.Errorf("%w: path is required", ErrInvalidConfig)
	case cfg.DataSegmentSize < 0 || cfg.DataSegmentSize > MaxDataSegmentSize:
		return fmt.Errorf("%w: data segment size %d out of range", ErrInvalidConfig, cfg.DataSegmentSize)
	case cfg.IndexSegmentSize < 0:
		return fmt.Errorf("%w: index segment size %d out of range", ErrInvalidConfig, cfg.IndexSegmentSize)
	case cfg.MaxDataSize < 0 || cfg.MaxIndexSize < 0:
		return fmt.Errorf("%w: negative size limit", ErrInvalidConfig)
	case cfg.ReadOnly && cfg.WriterLock:
		return fmt.Errorf("%w: read-only chronicles cannot take the writer lock", ErrInvalidConfig)
	}
	return nil
}

func (cfg Config) dataPath() string  { return cfg.Path + ".data" }
func (cfg Config) indexPath() string { return cfg.Path + ".index" }
func (cfg Config) lockPath() string  { return cfg.Path + ".lock" }

func (cfg Config) dataOptions() mapped.Options {
	return mapped.Options{
		SegmentSize: cfg.DataSegmentSize,
		MaxSize:     cfg.MaxDataSize,
		ReadOnly:    cfg.ReadOnly,
		FileMode:    cfg.FileMode,
		Logger:      cfg.Logger,
	}
}

func (cfg Config) indexOptions() idxstore.Options {
	return idxstore.Options{
		SegmentSize: cfg.IndexSegmentSize,
		MaxSize:     cfg.MaxIndexSize,
		ReadOnly:    cfg.ReadOnly,
		FileMode:    cfg.FileMode,
		Logger:      cfg.Logger,
	}
}
