// Package mapped provides a growable, file-backed memory-mapped region.
//
// The region is a table of fixed-size segments, each mapped independently.
// Segment i covers file bytes [i*SegmentSize, (i+1)*SegmentSize). Growth
// appends segments to the table and never remaps existing ones, so a slice
// returned by Slice stays valid until Clear or Close.
//
// The segment table is an immutable snapshot published through an atomic
// pointer. Readers never take a lock; growth is serialised by a mutex.
//
// This is the only package that touches raw memory. Everything above it uses
// the bounds-checked accessors.
package mapped

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math/bits"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"unsafe"

	"chronicle/internal/logging"

	"golang.org/x/sys/unix"
)

// DefaultSegmentSize is the growth unit when Options.SegmentSize is zero.
const DefaultSegmentSize = 64 << 20 // 64 MiB

var (
	ErrOutOfSpace  = errors.New("mapped region would exceed its maximum size")
	ErrOutOfBounds = errors.New("offset outside mapped region")
	ErrSegmentSpan = errors.New("range spans a segment boundary")
	ErrMisaligned  = errors.New("atomic access is not 4-byte aligned")
	ErrReadOnly    = errors.New("mapped region is read-only")
	ErrClosed      = errors.New("mapped region is closed")

	// ErrTruncated is returned by the guarded accessors when the file no
	// longer backs the mapped page, after another mapping cleared it.
	ErrTruncated = errors.New("mapped page is beyond the end of the file")
)

type Options struct {
	// SegmentSize is rounded up to a multiple of the page size.
	SegmentSize int64

	// MaxSize bounds the file size in bytes, counted in whole segments.
	// Zero means unbounded.
	MaxSize int64

	// ReadOnly maps the file without write access. The file must exist and
	// is never extended; segments are mapped as other writers add them.
	ReadOnly bool

	FileMode os.FileMode

	// Logger is optional.
	Logger *slog.Logger
}

type table struct {
	segs [][]byte
}

// Region is a growable mapping over one file.
type Region struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	segSize  int64
	maxSize  int64
	readOnly bool
	prot     int
	table    atomic.Pointer[table]
	closed   atomic.Bool

	// retired holds segments dropped by Refresh. They stay mapped until
	// Close so that views handed out earlier never dangle.
	retired [][]byte

	logger *slog.Logger
}

var nativeLittle = binary.NativeEndian.Uint16([]byte{1, 0}) == 1

// Open maps path, creating it unless opts.ReadOnly is set. A writable
// region always has at least one segment mapped.
func Open(path string, opts Options) (*Region, error) {
	segSize := cmp.Or(opts.SegmentSize, DefaultSegmentSize)
	if segSize < 0 {
		return nil, fmt.Errorf("invalid segment size %d", segSize)
	}
	page := int64(os.Getpagesize())
	segSize = (segSize + page - 1) / page * page

	flag := os.O_RDWR | os.O_CREATE
	prot := unix.PROT_READ | unix.PROT_WRITE
	if opts.ReadOnly {
		flag = os.O_RDONLY
		prot = unix.PROT_READ
	}
	file, err := os.OpenFile(filepath.Clean(path), flag, cmp.Or(opts.FileMode, 0o644))
	if err != nil {
		return nil, err
	}

	r := &Region{
		file:     file,
		path:     path,
		segSize:  segSize,
		maxSize:  opts.MaxSize,
		readOnly: opts.ReadOnly,
		prot:     prot,
		logger:   logging.Component(opts.Logger, "mapped-region", "path", path),
	}
	r.table.Store(&table{})

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if opts.ReadOnly {
		err = r.mapPresentLocked(info.Size())
	} else {
		err = r.growLocked(max(info.Size(), 1))
	}
	if err != nil {
		_ = r.unmapAll()
		_ = file.Close()
		return nil, err
	}
	return r, nil
}

func (r *Region) Path() string { return r.path }

func (r *Region) SegmentSize() int64 { return r.segSize }

// Segments returns the number of mapped segments.
func (r *Region) Segments() int { return len(r.table.Load().segs) }

// Capacity returns the number of addressable bytes.
func (r *Region) Capacity() int64 {
	return int64(len(r.table.Load().segs)) * r.segSize
}

// EnsureCapacity makes [offset, offset+length) addressable, growing the file
// by whole segments when needed.
func (r *Region) EnsureCapacity(offset, length int64) error {
	if offset < 0 || length < 0 {
		return ErrOutOfBounds
	}
	return r.Grow(offset + max(length, 1))
}

// Grow makes every byte below end addressable. It fails with ErrOutOfSpace
// when that would take the file past MaxSize.
func (r *Region) Grow(end int64) error {
	if end <= r.Capacity() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	if r.readOnly {
		return ErrReadOnly
	}
	return r.growLocked(end)
}

func (r *Region) growLocked(end int64) error {
	want := (end + r.segSize - 1) / r.segSize
	if r.maxSize > 0 && want*r.segSize > r.maxSize {
		return fmt.Errorf("%w: need %d bytes, limit %d", ErrOutOfSpace, want*r.segSize, r.maxSize)
	}

	info, err := r.file.Stat()
	if err != nil {
		return err
	}
	if size := info.Size(); size < want*r.segSize {
		if err := allocate(r.file, size, want*r.segSize-size); err != nil {
			return fmt.Errorf("extend %s: %w", r.path, err)
		}
	}
	return r.mapUpToLocked(want)
}

// Remap maps segments that another writer has added to the file since they
// were last mapped here. It never extends the file. It reports whether every
// byte below end is addressable afterwards.
func (r *Region) Remap(end int64) (bool, error) {
	if end <= r.Capacity() {
		return true, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return false, ErrClosed
	}
	info, err := r.file.Stat()
	if err != nil {
		return false, err
	}
	if err := r.mapPresentLocked(info.Size()); err != nil {
		return false, err
	}
	return end <= r.Capacity(), nil
}

// mapPresentLocked maps every whole segment present in a file of the given size.
func (r *Region) mapPresentLocked(size int64) error {
	return r.mapUpToLocked(size / r.segSize)
}

func (r *Region) mapUpToLocked(count int64) error {
	old := r.table.Load()
	have := int64(len(old.segs))
	if count <= have {
		return nil
	}
	segs := make([][]byte, have, count)
	copy(segs, old.segs)
	for i := have; i < count; i++ {
		seg, err := unix.Mmap(int(r.file.Fd()), i*r.segSize, int(r.segSize), r.prot, unix.MAP_SHARED) //nolint:gosec // G115: fd fits in int
		if err != nil {
			for _, s := range segs[have:] {
				_ = unix.Munmap(s)
			}
			return fmt.Errorf("mmap %s segment %d: %w", r.path, i, err)
		}
		segs = append(segs, seg)
	}
	r.table.Store(&table{segs: segs})
	r.logger.Debug("mapped segments", "from", have, "to", count, "capacity", count*r.segSize)
	return nil
}

// Slice returns a view of [offset, offset+length). The range must lie in a
// single mapped segment.
func (r *Region) Slice(offset, length int64) ([]byte, error) {
	if offset < 0 || length < 0 {
		return nil, ErrOutOfBounds
	}
	if length == 0 {
		return []byte{}, nil
	}
	t := r.table.Load()
	idx := offset / r.segSize
	if idx >= int64(len(t.segs)) {
		return nil, ErrOutOfBounds
	}
	within := offset - idx*r.segSize
	if within+length > r.segSize {
		return nil, ErrSegmentSpan
	}
	end := within + length
	return t.segs[idx][within:end:end], nil
}

// SegmentRemaining returns how many bytes are left in the segment containing
// offset, counting from offset.
func (r *Region) SegmentRemaining(offset int64) int64 {
	return r.segSize - offset%r.segSize
}

// Uint32At, Uint64At and LoadUint32 return ErrTruncated instead of faulting
// when the page is no longer backed by the file.

func (r *Region) Uint32At(offset int64) (v uint32, err error) {
	b, err := r.Slice(offset, 4)
	if err != nil {
		return 0, err
	}
	defer recoverFault(&err)
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Region) PutUint32At(offset int64, v uint32) error {
	b, err := r.Slice(offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, v)
	return nil
}

func (r *Region) Uint64At(offset int64) (v uint64, err error) {
	b, err := r.Slice(offset, 8)
	if err != nil {
		return 0, err
	}
	defer recoverFault(&err)
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Region) PutUint64At(offset int64, v uint64) error {
	b, err := r.Slice(offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

// LoadUint32 atomically loads the little-endian uint32 at offset with
// acquire ordering.
func (r *Region) LoadUint32(offset int64) (v uint32, err error) {
	p, err := r.word(offset)
	if err != nil {
		return 0, err
	}
	defer recoverFault(&err)
	defer debug.SetPanicOnFault(debug.SetPanicOnFault(true))
	return toLittle(atomic.LoadUint32(p)), nil
}

// recoverFault converts a memory fault raised under debug.SetPanicOnFault
// into ErrTruncated. Any other panic is propagated.
func recoverFault(err *error) {
	p := recover()
	if p == nil {
		return
	}
	if _, ok := p.(interface{ Addr() uintptr }); ok {
		*err = ErrTruncated
		return
	}
	panic(p)
}

// StoreUint32 atomically stores v little-endian at offset with release
// ordering. Every plain store made before it is visible to a reader whose
// LoadUint32 observes v, in this process or any other mapping the file.
func (r *Region) StoreUint32(offset int64, v uint32) error {
	p, err := r.word(offset)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, toLittle(v))
	return nil
}

func (r *Region) word(offset int64) (*uint32, error) {
	if offset%4 != 0 {
		return nil, ErrMisaligned
	}
	b, err := r.Slice(offset, 4)
	if err != nil {
		return nil, err
	}
	// Segments are page aligned, so a 4-aligned offset is a 4-aligned address.
	return (*uint32)(unsafe.Pointer(&b[0])), nil
}

func toLittle(v uint32) uint32 {
	if nativeLittle {
		return v
	}
	return bits.ReverseBytes32(v)
}

// Clear truncates the file to zero, releases every segment but the first,
// and re-extends the file to one zeroed segment. It must not run while
// other goroutines use the region.
func (r *Region) Clear() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return ErrClosed
	}
	if r.readOnly {
		return ErrReadOnly
	}

	old := r.table.Load()
	keep := old.segs[:min(len(old.segs), 1):min(len(old.segs), 1)]
	r.table.Store(&table{segs: keep})
	for _, seg := range old.segs[len(keep):] {
		_ = unix.Munmap(seg)
	}

	if err := r.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate %s: %w", r.path, err)
	}
	if err := allocate(r.file, 0, r.segSize); err != nil {
		return fmt.Errorf("extend %s: %w", r.path, err)
	}
	if len(keep) == 0 {
		return r.mapUpToLocked(1)
	}
	r.logger.Debug("cleared", "released", len(old.segs)-len(keep))
	return nil
}

// Refresh drops segments that the file no longer backs, after another
// mapping has truncated it. Dropped segments are retired rather than
// unmapped; Remap and Grow map the range again once the file grows back.
// It returns the number of segments dropped.
func (r *Region) Refresh() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() {
		return 0, ErrClosed
	}
	info, err := r.file.Stat()
	if err != nil {
		return 0, err
	}
	old := r.table.Load()
	keep := int(min(info.Size()/r.segSize, int64(len(old.segs))))
	dropped := len(old.segs) - keep
	if dropped == 0 {
		return 0, nil
	}
	r.retired = append(r.retired, old.segs[keep:]...)
	r.table.Store(&table{segs: old.segs[:keep:keep]})
	r.logger.Debug("dropped truncated segments", "kept", keep, "dropped", dropped)
	return dropped, nil
}

// Sync flushes every mapped segment to the file.
func (r *Region) Sync() error {
	if r.closed.Load() {
		return ErrClosed
	}
	var errs []error
	for _, seg := range r.table.Load().segs {
		if err := unix.Msync(seg, unix.MS_SYNC); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("msync %s: %w", r.path, err)
	}
	return nil
}

// Close unmaps every segment and closes the file. It is safe to call more
// than once.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Swap(true) {
		return nil
	}
	err := r.unmapAll()
	if closeErr := r.file.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (r *Region) unmapAll() error {
	old := r.table.Swap(&table{})
	retired := r.retired
	r.retired = nil
	var err error
	for _, seg := range append(old.segs, retired...) {
		if unmapErr := unix.Munmap(seg); unmapErr != nil && err == nil {
			err = unmapErr
		}
	}
	return err
}
