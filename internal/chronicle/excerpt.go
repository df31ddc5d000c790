package chronicle

type mode uint8

const (
	idle mode = iota
	writing
	reading
)

func (m mode) String() string {
	switch m {
	case writing:
		return "writing"
	case reading:
		return "reading"
	default:
		return "idle"
	}
}

// Excerpt is a cursor over one record at a time. In write mode it encodes
// values into a reservation at the write frontier; in read mode it decodes
// values from a committed record.
//
//	idle    --StartExcerpt-->  writing  --Finish-->  idle
//	writing --Abandon------->  idle (nothing published)
//	idle    --Index=true--->   reading  --Finish-->  idle
//	reading --Index=true--->   reading
//	any     --Index=false-->   idle (except writing)
//
// An Excerpt is not safe for concurrent use. Every method fails with
// ErrClosed once its Chronicle is closed. Values are read and written in
// place in mapped memory; none of the fixed-width or append methods
// allocate.
type Excerpt struct {
	c    *Chronicle
	mode mode

	// buf is the reservation while writing and the committed record while
	// reading. Its length bounds pos.
	buf   []byte
	start int64
	pos   int
	seq   uint64
}

// Chronicle returns the chronicle the excerpt is bound to.
func (e *Excerpt) Chronicle() *Chronicle { return e.c }

// StartExcerpt reserves capacity bytes at the write frontier and enters write
// mode. A record being read is released first.
func (e *Excerpt) StartExcerpt(capacity int) error {
	if e.c.closed.Load() {
		return ErrClosed
	}
	if e.mode == writing {
		return ErrInvalidState
	}
	if e.c.cfg.ReadOnly {
		return ErrReadOnly
	}
	if capacity < 0 || capacity > e.c.MaxCapacity() {
		return ErrCapacityExceeded
	}
	start, buf, err := e.c.reserve(capacity)
	if err != nil {
		e.release()
		return err
	}
	e.mode = writing
	e.buf = buf
	e.start = start
	e.pos = 0
	return nil
}

// Index binds the cursor to record seq and reports whether it exists. A
// false result is not an error: the record has not been committed yet, and
// the cursor is left idle. Callers poll, typically through wait.Until.
func (e *Excerpt) Index(seq uint64) (bool, error) {
	if e.c.closed.Load() {
		return false, ErrClosed
	}
	if e.mode == writing {
		return false, ErrInvalidState
	}
	entry, ok, err := e.c.index.EntryAt(seq)
	if err != nil {
		e.release()
		return false, wrapErr("read index", err)
	}
	if !ok {
		e.release()
		return false, nil
	}
	buf, err := e.c.record(entry)
	if err != nil {
		e.release()
		return false, err
	}
	e.mode = reading
	e.buf = buf
	e.start = int64(entry.Offset) //nolint:gosec // G115: bounded by the data file size
	e.pos = 0
	e.seq = seq
	return true, nil
}

// Finish publishes the record being written, or releases the record being
// read. The cursor returns to idle even when publication fails. Finish on an
// idle cursor does nothing.
func (e *Excerpt) Finish() error {
	switch e.mode {
	case idle:
		return nil
	case reading:
		e.release()
		return nil
	}
	start, length := e.start, e.pos
	e.release()
	if e.c.closed.Load() {
		return ErrClosed
	}
	seq, err := e.c.publish(start, length)
	if err != nil {
		return err
	}
	e.seq = seq
	return nil
}

// Abandon drops the record being written without publishing it. The
// reserved bytes are left unused and no sequence number is consumed. On a
// reading or idle cursor it behaves like Finish.
func (e *Excerpt) Abandon() {
	e.release()
}

func (e *Excerpt) release() {
	e.mode = idle
	e.buf = nil
	e.pos = 0
}

// Writing reports whether the cursor holds a reservation.
func (e *Excerpt) Writing() bool { return e.mode == writing }

// Reading reports whether the cursor is bound to a committed record.
func (e *Excerpt) Reading() bool { return e.mode == reading }

// Sequence returns the sequence number of the record last bound by Index or
// published by Finish.
func (e *Excerpt) Sequence() uint64 { return e.seq }

// Position returns the offset of the cursor within the record.
func (e *Excerpt) Position() int { return e.pos }

// Capacity returns the reservation size while writing and the committed
// length while reading.
func (e *Excerpt) Capacity() int { return len(e.buf) }

// Remaining returns the bytes left before the end of the reservation or record.
func (e *Excerpt) Remaining() int { return len(e.buf) - e.pos }

// Length returns the committed length while reading and the bytes written
// so far while writing.
func (e *Excerpt) Length() int {
	if e.mode == writing {
		return e.pos
	}
	return len(e.buf)
}

// Offset returns the absolute data file offset of the current record.
func (e *Excerpt) Offset() int64 { return e.start }

// Bytes returns a view of the current record: the committed bytes while
// reading, the bytes written so far while writing. The view aliases mapped
// memory and stays valid until the chronicle is cleared or closed.
func (e *Excerpt) Bytes() []byte {
	if e.mode == writing {
		return e.buf[:e.pos]
	}
	return e.buf
}

// Seek moves the cursor to pos within the record. While writing, pos may not
// pass the reservation; while reading, it may not pass the committed length.
func (e *Excerpt) Seek(pos int) error {
	if err := e.check(); err != nil {
		return err
	}
	if e.mode == idle {
		return ErrInvalidState
	}
	if pos < 0 || pos > len(e.buf) {
		if e.mode == writing {
			return ErrCapacityExceeded
		}
		return ErrRecordExhausted
	}
	e.pos = pos
	return nil
}

func (e *Excerpt) check() error {
	if e.c.closed.Load() {
		return ErrClosed
	}
	return nil
}
