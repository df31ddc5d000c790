// Package idxstore maps sequence numbers to record positions in a data file.
//
// The index is a flat array of fixed-size slots in its own mapped file. The
// slot for sequence n starts at byte n*SlotSize:
//
//	offset  u64  byte offset of the record in the data file
//	length  u32  committed length of the record
//	state   u32  0 = empty, non-zero = committed
//
// All fields are little-endian. A writer fills offset and length with plain
// stores, then publishes the slot with an atomic store of the state word.
// A reader that loads a non-zero state word sees the fields and the record
// bytes written before it, in this process or another one mapping the files.
//
// A Store supports one writer per file. Readers may be in any process.
package idxstore

import (
	"cmp"
	"errors"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync/atomic"

	"chronicle/internal/logging"
	"chronicle/internal/mapped"
)

const (
	SlotSize = 16

	// DefaultSegmentSize holds 1 Mi slots.
	DefaultSegmentSize = 16 << 20

	lengthOffset = 8
	stateOffset  = 12
	committed    = 1
)

// Entry locates one committed record.
type Entry struct {
	Offset uint64
	Length uint32
}

// End returns the first byte after the record.
func (e Entry) End() uint64 { return e.Offset + uint64(e.Length) }

type Options struct {
	SegmentSize int64
	MaxSize     int64
	ReadOnly    bool
	FileMode    os.FileMode

	// Logger for structured logging. If nil, logging is disabled.
	Logger *slog.Logger
}

// Store is the index over one file.
type Store struct {
	region *mapped.Region
	logger *slog.Logger

	// count caches the committed slot count. It is a hint: the true count is
	// always confirmed against the state words.
	count atomic.Uint64
}

// Open maps the index at path and recovers the committed entry count from
// the state words.
func Open(path string, opts Options) (*Store, error) {
	logger := logging.Component(opts.Logger, "index-store")

	region, err := mapped.Open(path, mapped.Options{
		SegmentSize: cmp.Or(opts.SegmentSize, DefaultSegmentSize),
		MaxSize:     opts.MaxSize,
		ReadOnly:    opts.ReadOnly,
		FileMode:    opts.FileMode,
		Logger:      opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Store{region: region, logger: logger}
	n := s.scan()
	s.count.Store(n)
	logger.Debug("index opened", "path", path, "entries", n, "segments", region.Segments())
	return s, nil
}

// scan binary searches the mapped slots for the end of the committed prefix.
func (s *Store) scan() uint64 {
	slots := int(s.region.Capacity() / SlotSize)
	n := sort.Search(slots, func(i int) bool {
		state, err := s.region.LoadUint32(int64(i)*SlotSize + stateOffset)
		return err != nil || state == 0
	})
	return uint64(n) //nolint:gosec // G115: n >= 0
}

// isCommitted reports whether slot seq is published, mapping index segments
// added by other processes when seq lies beyond the local mapping.
func (s *Store) isCommitted(seq uint64) (bool, error) {
	if seq >= math.MaxInt64/SlotSize {
		return false, nil
	}
	off := int64(seq) * SlotSize //nolint:gosec // G115: bounded above
	if off+SlotSize > s.region.Capacity() {
		ok, err := s.region.Remap(off + SlotSize)
		if err != nil || !ok {
			return false, err
		}
	}
	state, err := s.region.LoadUint32(off + stateOffset)
	if err != nil {
		return s.truncated(err)
	}
	return state != 0, nil
}

// truncated handles a read that faulted because another mapping cleared the
// file. Segments past the new end are dropped and the slot reads as absent;
// Count rescans on its next call.
func (s *Store) truncated(err error) (bool, error) {
	if !errors.Is(err, mapped.ErrTruncated) {
		return false, err
	}
	dropped, err := s.region.Refresh()
	if err != nil {
		return false, err
	}
	s.logger.Debug("index truncated by another mapping", "dropped_segments", dropped)
	return false, nil
}

// Count returns the number of committed entries. While no Clear happens it
// never decreases.
func (s *Store) Count() uint64 {
	n := s.count.Load()
	if n > 0 {
		if ok, _ := s.isCommitted(n - 1); !ok {
			// Cleared underneath us.
			n = s.scan()
		}
	}
	for {
		ok, _ := s.isCommitted(n)
		if !ok {
			break
		}
		n++
	}
	s.count.Store(n)
	return n
}

// EntryAt returns the entry for seq. The boolean is false when seq has not
// been committed yet, including when it lies beyond the end of the file.
func (s *Store) EntryAt(seq uint64) (Entry, bool, error) {
	ok, err := s.isCommitted(seq)
	if err != nil || !ok {
		return Entry{}, false, err
	}
	off := int64(seq) * SlotSize //nolint:gosec // G115: checked by isCommitted
	offset, err := s.region.Uint64At(off)
	if err != nil {
		_, err = s.truncated(err)
		return Entry{}, false, err
	}
	length, err := s.region.Uint32At(off + lengthOffset)
	if err != nil {
		_, err = s.truncated(err)
		return Entry{}, false, err
	}
	return Entry{Offset: offset, Length: length}, true, nil
}

// Append publishes an entry in the first uncommitted slot and returns its
// sequence number. Callers serialise Append.
func (s *Store) Append(offset uint64, length uint32) (uint64, error) {
	seq := s.Count()
	if seq >= math.MaxInt64/SlotSize {
		return 0, mapped.ErrOutOfSpace
	}
	off := int64(seq) * SlotSize //nolint:gosec // G115: bounded above
	if err := s.region.Grow(off + SlotSize); err != nil {
		return 0, err
	}
	if err := s.region.PutUint64At(off, offset); err != nil {
		return 0, err
	}
	if err := s.region.PutUint32At(off+lengthOffset, length); err != nil {
		return 0, err
	}
	if err := s.region.StoreUint32(off+stateOffset, committed); err != nil {
		return 0, err
	}
	s.count.Store(seq + 1)
	return seq, nil
}

// Clear drops every entry and shrinks the file to one segment.
func (s *Store) Clear() error {
	if err := s.region.Clear(); err != nil {
		return err
	}
	s.count.Store(0)
	return nil
}

func (s *Store) Sync() error { return s.region.Sync() }

func (s *Store) Segments() int { return s.region.Segments() }

// MappedBytes returns the size of the local mapping.
func (s *Store) MappedBytes() int64 { return s.region.Capacity() }

func (s *Store) Close() error { return s.region.Close() }
