package mapped

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func pageSize() int64 { return int64(os.Getpagesize()) }

func openTestRegion(t *testing.T, opts Options) *Region {
	t.Helper()
	if opts.SegmentSize == 0 {
		opts.SegmentSize = pageSize()
	}
	r, err := Open(filepath.Join(t.TempDir(), "region"), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestOpenMapsOneSegment(t *testing.T) {
	r := openTestRegion(t, Options{})
	if r.Segments() != 1 {
		t.Fatalf("expected 1 segment, got %d", r.Segments())
	}
	if r.Capacity() != pageSize() {
		t.Fatalf("expected capacity %d, got %d", pageSize(), r.Capacity())
	}
	info, err := os.Stat(r.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != pageSize() {
		t.Fatalf("expected file size %d, got %d", pageSize(), info.Size())
	}
}

func TestSegmentSizeRoundsToPage(t *testing.T) {
	r := openTestRegion(t, Options{SegmentSize: pageSize() + 1})
	if r.SegmentSize() != 2*pageSize() {
		t.Fatalf("expected %d, got %d", 2*pageSize(), r.SegmentSize())
	}
}

func TestGrowKeepsEarlierSlicesValid(t *testing.T) {
	r := openTestRegion(t, Options{})
	seg := r.SegmentSize()

	first, err := r.Slice(0, 5)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	copy(first, "hello")

	if err := r.Grow(3*seg + 1); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if r.Segments() != 4 {
		t.Fatalf("expected 4 segments, got %d", r.Segments())
	}

	// The slice taken before growth still refers to live memory.
	copy(first, "HELLO")
	again, err := r.Slice(0, 5)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if string(again) != "HELLO" {
		t.Fatalf("expected HELLO, got %q", again)
	}

	last, err := r.Slice(3*seg, 4)
	if err != nil {
		t.Fatalf("slice in new segment: %v", err)
	}
	copy(last, "tail")
}

func TestSliceBounds(t *testing.T) {
	r := openTestRegion(t, Options{})
	seg := r.SegmentSize()

	if _, err := r.Slice(-1, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("negative offset: expected ErrOutOfBounds, got %v", err)
	}
	if _, err := r.Slice(seg, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("past capacity: expected ErrOutOfBounds, got %v", err)
	}
	if _, err := r.Slice(seg-2, 4); !errors.Is(err, ErrSegmentSpan) {
		t.Fatalf("straddle: expected ErrSegmentSpan, got %v", err)
	}
	b, err := r.Slice(seg*10, 0)
	if err != nil || len(b) != 0 {
		t.Fatalf("empty slice: got %v, %v", b, err)
	}
	if got := r.SegmentRemaining(seg - 3); got != 3 {
		t.Fatalf("expected 3 remaining, got %d", got)
	}
}

func TestMaxSize(t *testing.T) {
	seg := pageSize()
	r := openTestRegion(t, Options{SegmentSize: seg, MaxSize: 2 * seg})

	if err := r.Grow(2 * seg); err != nil {
		t.Fatalf("grow within limit: %v", err)
	}
	if err := r.Grow(2*seg + 1); !errors.Is(err, ErrOutOfSpace) {
		t.Fatalf("expected ErrOutOfSpace, got %v", err)
	}
	if r.Segments() != 2 {
		t.Fatalf("failed growth must not change the mapping, got %d segments", r.Segments())
	}
}

func TestTypedAccessors(t *testing.T) {
	r := openTestRegion(t, Options{})

	if err := r.PutUint64At(8, 0x0102030405060708); err != nil {
		t.Fatalf("put64: %v", err)
	}
	b, _ := r.Slice(8, 8)
	if !bytes.Equal(b, []byte{8, 7, 6, 5, 4, 3, 2, 1}) {
		t.Fatalf("expected little-endian bytes, got % x", b)
	}
	if v, err := r.Uint64At(8); err != nil || v != 0x0102030405060708 {
		t.Fatalf("get64: %x, %v", v, err)
	}

	if err := r.PutUint32At(16, 0xdeadbeef); err != nil {
		t.Fatalf("put32: %v", err)
	}
	if v, err := r.Uint32At(16); err != nil || v != 0xdeadbeef {
		t.Fatalf("get32: %x, %v", v, err)
	}

	if err := r.StoreUint32(20, 1); err != nil {
		t.Fatalf("store: %v", err)
	}
	w, _ := r.Slice(20, 4)
	if !bytes.Equal(w, []byte{1, 0, 0, 0}) {
		t.Fatalf("atomic store must be little-endian, got % x", w)
	}
	if v, err := r.LoadUint32(20); err != nil || v != 1 {
		t.Fatalf("load: %d, %v", v, err)
	}
	if _, err := r.LoadUint32(21); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned, got %v", err)
	}
}

func TestReadOnlyRemapFollowsWriter(t *testing.T) {
	seg := pageSize()
	path := filepath.Join(t.TempDir(), "shared")

	w, err := Open(path, Options{SegmentSize: seg})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer func() { _ = w.Close() }()

	r, err := Open(path, Options{SegmentSize: seg, ReadOnly: true})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer func() { _ = r.Close() }()

	if err := r.Grow(2 * seg); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}

	if err := w.Grow(2 * seg); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := w.StoreUint32(seg, 7); err != nil {
		t.Fatalf("store: %v", err)
	}

	if ok, err := r.Remap(3 * seg); err != nil || ok {
		t.Fatalf("remap past file end: ok=%v err=%v", ok, err)
	}
	if r.Segments() != 2 {
		t.Fatalf("expected reader to map 2 segments, got %d", r.Segments())
	}
	if v, err := r.LoadUint32(seg); err != nil || v != 7 {
		t.Fatalf("reader load: %d, %v", v, err)
	}
}

func TestClear(t *testing.T) {
	r := openTestRegion(t, Options{})
	seg := r.SegmentSize()

	if err := r.Grow(3 * seg); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := r.PutUint64At(0, 42); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := r.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if r.Segments() != 1 {
		t.Fatalf("expected 1 segment after clear, got %d", r.Segments())
	}
	if v, _ := r.Uint64At(0); v != 0 {
		t.Fatalf("expected zeroed memory after clear, got %d", v)
	}
	info, err := os.Stat(r.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != seg {
		t.Fatalf("expected file size %d, got %d", seg, info.Size())
	}
}

func TestForeignClearFaultsAreRecovered(t *testing.T) {
	seg := pageSize()
	path := filepath.Join(t.TempDir(), "shared")

	w, err := Open(path, Options{SegmentSize: seg})
	if err != nil {
		t.Fatalf("open writer: %v", err)
	}
	defer func() { _ = w.Close() }()
	if err := w.Grow(3 * seg); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := w.StoreUint32(2*seg, 9); err != nil {
		t.Fatalf("store: %v", err)
	}

	r, err := Open(path, Options{SegmentSize: seg, ReadOnly: true})
	if err != nil {
		t.Fatalf("open reader: %v", err)
	}
	defer func() { _ = r.Close() }()
	if v, err := r.LoadUint32(2 * seg); err != nil || v != 9 {
		t.Fatalf("reader load: %d, %v", v, err)
	}
	held, err := r.Slice(2*seg, 4)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}

	if err := w.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	// The reader still maps three segments, two of them past the end of the file.
	if _, err := r.LoadUint32(2 * seg); !errors.Is(err, ErrTruncated) {
		t.Fatalf("load: expected ErrTruncated, got %v", err)
	}
	if _, err := r.Uint64At(seg); !errors.Is(err, ErrTruncated) {
		t.Fatalf("uint64: expected ErrTruncated, got %v", err)
	}
	if v, err := r.Uint32At(0); err != nil || v != 0 {
		t.Fatalf("first segment: %d, %v", v, err)
	}

	dropped, err := r.Refresh()
	if err != nil || dropped != 2 {
		t.Fatalf("refresh: dropped=%d err=%v", dropped, err)
	}
	if r.Segments() != 1 {
		t.Fatalf("expected 1 segment after refresh, got %d", r.Segments())
	}
	if n, err := r.Refresh(); err != nil || n != 0 {
		t.Fatalf("second refresh: dropped=%d err=%v", n, err)
	}

	// Growing back makes the range readable again, retired views included.
	if err := w.Grow(3 * seg); err != nil {
		t.Fatalf("regrow: %v", err)
	}
	if err := w.StoreUint32(2*seg, 11); err != nil {
		t.Fatalf("store: %v", err)
	}
	if ok, err := r.Remap(3 * seg); err != nil || !ok {
		t.Fatalf("remap: ok=%v err=%v", ok, err)
	}
	if v, err := r.LoadUint32(2 * seg); err != nil || v != 11 {
		t.Fatalf("reader load after regrow: %d, %v", v, err)
	}
	if held[0] != 11 {
		t.Fatalf("retired view: expected 11, got %d", held[0])
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := openTestRegion(t, Options{})
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := r.Grow(r.SegmentSize() * 4); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := r.Sync(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if _, err := r.Slice(0, 1); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestReopenPreservesContents(t *testing.T) {
	seg := pageSize()
	path := filepath.Join(t.TempDir(), "persist")

	r, err := Open(path, Options{SegmentSize: seg})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := r.Grow(2 * seg); err != nil {
		t.Fatalf("grow: %v", err)
	}
	if err := r.PutUint64At(seg+8, 99); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := r.Sync(); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	r, err = Open(path, Options{SegmentSize: seg})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = r.Close() }()
	if r.Segments() != 2 {
		t.Fatalf("expected 2 segments, got %d", r.Segments())
	}
	if v, _ := r.Uint64At(seg + 8); v != 99 {
		t.Fatalf("expected 99, got %d", v)
	}
}
