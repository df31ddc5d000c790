// Package chronicle implements an indexed, memory-mapped record log.
//
// A Chronicle pairs a data file holding record bytes with an index file
// holding one fixed-size slot per committed record. Writers reserve space at
// the write frontier, encode values directly into mapped memory through an
// Excerpt, and publish the record by appending its index slot. Readers poll
// Excerpt.Index until a sequence number becomes available, then decode values
// in place.
//
// File layout for base path P:
//   - P.data: record bytes, no header, grows in whole segments
//   - P.index: 16-byte little-endian slots {offset u64, length u32, state u32}
//   - P.lock: writer lock holder (only with Config.WriterLock)
//
// Any number of Chronicles, in one process or many, may open the same path.
// Each is an independent mapping over the same files. Only one of them may
// write at a time; Config.WriterLock enforces that between processes.
//
// Logging:
//   - Logger is dependency-injected via Config.Logger
//   - Only lifecycle events are logged (open, clear, close)
//   - Nothing is logged on the excerpt path
package chronicle

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"chronicle/internal/idxstore"
	"chronicle/internal/logging"
	"chronicle/internal/mapped"

	"github.com/google/uuid"
)

// Chronicle is one open data/index pair.
type Chronicle struct {
	cfg      Config
	instance string

	data  *mapped.Region
	index *idxstore.Store
	lock  *writerLock

	// mu serialises frontier reservation and index appends between
	// excerpts of this Chronicle.
	mu       sync.Mutex
	frontier int64
	// scanned is the number of index entries folded into frontier.
	scanned uint64

	closed atomic.Bool

	logger *slog.Logger
}

// Stats is a point-in-time view of a Chronicle.
type Stats struct {
	Path          string `json:"path"`
	Instance      string `json:"instance"`
	ReadOnly      bool   `json:"read_only"`
	Entries       uint64 `json:"entries"`
	Frontier      int64  `json:"frontier"`
	DataBytes     int64  `json:"data_bytes"`
	DataSegments  int    `json:"data_segments"`
	IndexBytes    int64  `json:"index_bytes"`
	IndexSegments int    `json:"index_segments"`
}

// Open opens or creates the chronicle at cfg.Path.
func Open(cfg Config) (*Chronicle, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.FileMode == 0 {
		cfg.FileMode = 0o644
	}
	instance := cfg.InstanceID
	if instance == "" {
		instance = uuid.Must(uuid.NewV7()).String()
	}
	logger := logging.Component(cfg.Logger, "chronicle", "path", cfg.Path, "instance", instance)
	cfg.Logger = logger

	if !cfg.ReadOnly {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, wrapErr("create directory", err)
		}
	}

	var lock *writerLock
	if cfg.WriterLock {
		var err error
		if lock, err = acquireWriterLock(cfg.lockPath(), instance, cfg.FileMode); err != nil {
			return nil, err
		}
	}

	data, err := mapped.Open(cfg.dataPath(), cfg.dataOptions())
	if err != nil {
		_ = lock.release()
		return nil, wrapErr("open data", err)
	}
	index, err := idxstore.Open(cfg.indexPath(), cfg.indexOptions())
	if err != nil {
		_ = data.Close()
		_ = lock.release()
		return nil, wrapErr("open index", err)
	}

	c := &Chronicle{
		cfg:      cfg,
		instance: instance,
		data:     data,
		index:    index,
		lock:     lock,
		logger:   logger,
	}
	c.mu.Lock()
	err = c.catchUpLocked()
	c.mu.Unlock()
	if err != nil {
		_ = c.Close()
		return nil, wrapErr("recover frontier", err)
	}

	logger.Info("chronicle opened",
		"entries", index.Count(),
		"frontier", c.frontier,
		"read_only", cfg.ReadOnly,
		"writer_lock", cfg.WriterLock,
	)
	return c, nil
}

func (c *Chronicle) Path() string { return c.cfg.Path }

// Instance returns the id this opener logs and locks under.
func (c *Chronicle) Instance() string { return c.instance }

// MaxCapacity returns the largest reservation StartExcerpt accepts.
func (c *Chronicle) MaxCapacity() int { return int(c.data.SegmentSize()) }

// CreateExcerpt returns a new idle cursor bound to c.
func (c *Chronicle) CreateExcerpt() *Excerpt {
	return &Excerpt{c: c}
}

// Size returns the number of committed records. A closed Chronicle reports
// 0; use Closed to tell it apart from an empty one.
func (c *Chronicle) Size() uint64 {
	if c.closed.Load() {
		return 0
	}
	return c.index.Count()
}

// Closed reports whether Close has been called.
func (c *Chronicle) Closed() bool { return c.closed.Load() }

// catchUpLocked folds entries committed since the last call into the
// frontier. Excerpts publish in completion order, not reservation order, so
// the frontier is the largest end of any entry rather than the end of the
// last one.
func (c *Chronicle) catchUpLocked() error {
	n := c.index.Count()
	if n < c.scanned {
		// Cleared through another mapping.
		c.scanned = 0
	}
	for ; c.scanned < n; c.scanned++ {
		e, ok, err := c.index.EntryAt(c.scanned)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		c.frontier = max(c.frontier, int64(e.End())) //nolint:gosec // G115: bounded by the data file size
	}
	return nil
}

// reserve claims capacity bytes at the write frontier. A reservation never
// straddles a data segment boundary; when it would, it starts at the next
// segment and the tail of the current one is left unused.
func (c *Chronicle) reserve(capacity int) (int64, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.catchUpLocked(); err != nil {
		return 0, nil, wrapErr("read index", err)
	}

	start := c.frontier
	n := int64(capacity)
	if n > c.data.SegmentRemaining(start) {
		start += c.data.SegmentRemaining(start)
	}
	if n > 0 {
		if err := c.data.EnsureCapacity(start, n); err != nil {
			return 0, nil, wrapErr("grow data", err)
		}
	}
	buf, err := c.data.Slice(start, n)
	if err != nil {
		return 0, nil, wrapErr("reserve", err)
	}
	c.frontier = start + n
	return start, buf, nil
}

// publish appends the index slot for a finished record.
func (c *Chronicle) publish(start int64, length int) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq, err := c.index.Append(uint64(start), uint32(length)) //nolint:gosec // G115: length <= MaxDataSegmentSize
	if err != nil {
		return 0, wrapErr("append index", err)
	}
	return seq, nil
}

// record returns a view of a committed record, mapping data segments added
// by other writers when needed.
func (c *Chronicle) record(e idxstore.Entry) ([]byte, error) {
	start := int64(e.Offset) //nolint:gosec // G115: bounded by the data file size
	end := start + int64(e.Length)
	if end > c.data.Capacity() {
		ok, err := c.data.Remap(end)
		if err != nil {
			return nil, wrapErr("remap data", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w: record [%d, %d) lies beyond the data file", ErrIO, start, end)
		}
	}
	buf, err := c.data.Slice(start, int64(e.Length))
	if err != nil {
		return nil, wrapErr("read record", err)
	}
	return buf, nil
}

// Clear drops every record and resets sequence numbering to zero. It must
// not run while other excerpts of any mapping are in use.
func (c *Chronicle) Clear() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if c.cfg.ReadOnly {
		return ErrReadOnly
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	before := c.index.Count()
	// Index first, so no reader can find an entry whose data is gone.
	if err := c.index.Clear(); err != nil {
		return wrapErr("clear index", err)
	}
	if err := c.data.Clear(); err != nil {
		return wrapErr("clear data", err)
	}
	c.frontier = 0
	c.scanned = 0
	c.logger.Info("chronicle cleared", "dropped", before)
	return nil
}

// Sync flushes both files. Records are visible to readers without it; Sync
// only narrows the window of loss on a machine crash.
func (c *Chronicle) Sync() error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.data.Sync(); err != nil {
		return wrapErr("sync data", err)
	}
	if err := c.index.Sync(); err != nil {
		return wrapErr("sync index", err)
	}
	return nil
}

// Stats returns current counters. On a closed chronicle only the identity
// fields are set.
func (c *Chronicle) Stats() Stats {
	s := Stats{
		Path:     c.cfg.Path,
		Instance: c.instance,
		ReadOnly: c.cfg.ReadOnly,
	}
	if c.closed.Load() {
		return s
	}
	s.Entries = c.index.Count()
	s.DataBytes = c.data.Capacity()
	s.DataSegments = c.data.Segments()
	s.IndexBytes = c.index.MappedBytes()
	s.IndexSegments = c.index.Segments()
	c.mu.Lock()
	s.Frontier = c.frontier
	c.mu.Unlock()
	return s
}

// Close unmaps both files and releases the writer lock. Excerpts bound to c
// fail with ErrClosed afterwards. Close is idempotent.
func (c *Chronicle) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	if err := c.index.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close index: %w", err))
	}
	if err := c.data.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close data: %w", err))
	}
	if err := c.lock.release(); err != nil {
		errs = append(errs, fmt.Errorf("release lock: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	c.logger.Info("chronicle closed")
	return nil
}
