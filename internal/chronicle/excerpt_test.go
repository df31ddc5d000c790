package chronicle

import (
	"bytes"
	"errors"
	"io"
	"math"
	"testing"
	"time"
)

func TestRoundTripAllValues(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	if err := w.StartExcerpt(256); err != nil {
		t.Fatalf("start: %v", err)
	}
	steps := []error{
		w.WriteBool(true),
		w.WriteByte(0xAB),
		w.WriteChar('é'),
		w.WriteShort(-12345),
		w.WriteInt(math.MinInt32),
		w.WriteLong(math.MaxInt64),
		w.WriteFloat(3.5),
		w.WriteDouble(-0.125),
		w.WriteStopBit(-300),
		w.WriteStopBit(1 << 40),
		w.WriteChars("grüße 😀"),
		w.WriteUTF("naïve"),
		w.WriteBytes([]byte{1, 2, 3}),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("write step %d: %v", i, err)
		}
	}
	written := w.Length()
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r := c.CreateExcerpt()
	if ok, err := r.Index(0); !ok || err != nil {
		t.Fatalf("index: ok=%v err=%v", ok, err)
	}
	if r.Length() != written || r.Capacity() != written {
		t.Fatalf("committed length %d, wrote %d", r.Length(), written)
	}

	if v, err := r.ReadBool(); err != nil || !v {
		t.Fatalf("bool: %v %v", v, err)
	}
	if v, err := r.ReadByte(); err != nil || v != 0xAB {
		t.Fatalf("byte: %x %v", v, err)
	}
	if v, err := r.ReadChar(); err != nil || v != 'é' {
		t.Fatalf("char: %q %v", v, err)
	}
	if v, err := r.ReadShort(); err != nil || v != -12345 {
		t.Fatalf("short: %d %v", v, err)
	}
	if v, err := r.ReadInt(); err != nil || v != math.MinInt32 {
		t.Fatalf("int: %d %v", v, err)
	}
	if v, err := r.ReadLong(); err != nil || v != math.MaxInt64 {
		t.Fatalf("long: %d %v", v, err)
	}
	if v, err := r.ReadFloat(); err != nil || v != 3.5 {
		t.Fatalf("float: %v %v", v, err)
	}
	if v, err := r.ReadDouble(); err != nil || v != -0.125 {
		t.Fatalf("double: %v %v", v, err)
	}
	if v, err := r.ReadStopBit(); err != nil || v != -300 {
		t.Fatalf("stop bit: %d %v", v, err)
	}
	if v, err := r.ReadStopBit(); err != nil || v != 1<<40 {
		t.Fatalf("stop bit: %d %v", v, err)
	}
	if v, err := r.ReadChars(); err != nil || v != "grüße 😀" {
		t.Fatalf("chars: %q %v", v, err)
	}
	if v, err := r.ReadUTF(); err != nil || v != "naïve" {
		t.Fatalf("utf: %q %v", v, err)
	}
	tail := make([]byte, 3)
	if err := r.ReadFully(tail); err != nil || !bytes.Equal(tail, []byte{1, 2, 3}) {
		t.Fatalf("bytes: %v %v", tail, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected record consumed, %d left", r.Remaining())
	}
	if _, err := r.ReadByte(); !errors.Is(err, ErrRecordExhausted) {
		t.Fatalf("expected ErrRecordExhausted, got %v", err)
	}
}

func TestCapacityEnforced(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	if err := w.StartExcerpt(6); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.WriteInt(1); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.WriteInt(2); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if w.Position() != 4 {
		t.Fatalf("failed write moved the cursor to %d", w.Position())
	}
	if err := w.AppendInt(123); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded from append, got %v", err)
	}
	if w.Position() != 4 {
		t.Fatalf("failed append moved the cursor to %d", w.Position())
	}
	if _, err := w.Write([]byte("abc")); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded from Write, got %v", err)
	}
	if err := w.WriteShort(3); err != nil {
		t.Fatalf("exact fit: %v", err)
	}
	if w.Remaining() != 0 {
		t.Fatalf("expected full reservation, %d left", w.Remaining())
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	if err := w.StartExcerpt(c.MaxCapacity() + 1); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for oversize reservation, got %v", err)
	}
	if err := w.StartExcerpt(-1); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded for negative reservation, got %v", err)
	}
}

func TestPartialReservationCommitsWrittenLength(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	if err := w.StartExcerpt(100); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.WriteInt(7)
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	writeHello(t, w, 8)

	r := c.CreateExcerpt()
	if ok, _ := r.Index(0); !ok || r.Length() != 4 {
		t.Fatalf("expected committed length 4, got %d", r.Length())
	}
	if _, err := r.ReadLong(); !errors.Is(err, ErrRecordExhausted) {
		t.Fatalf("expected ErrRecordExhausted, got %v", err)
	}
	// The unused 96 bytes of the reservation are not reused.
	if ok, _ := r.Index(1); !ok || r.Offset() != 100 {
		t.Fatalf("expected second record at 100, got %d", r.Offset())
	}
}

func TestStateMachine(t *testing.T) {
	c := openTest(t, testConfig(t))
	e := c.CreateExcerpt()

	if err := e.WriteInt(1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("write while idle: %v", err)
	}
	if _, err := e.ReadInt(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("read while idle: %v", err)
	}
	if err := e.Seek(0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("seek while idle: %v", err)
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("finish while idle: %v", err)
	}

	if err := e.StartExcerpt(8); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.StartExcerpt(8); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("start while writing: %v", err)
	}
	if _, err := e.Index(0); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("index while writing: %v", err)
	}
	if _, err := e.ReadInt(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("read while writing: %v", err)
	}
	_ = e.WriteLong(5)
	if err := e.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if e.Writing() || e.Sequence() != 0 {
		t.Fatalf("expected idle after publishing seq 0, writing=%v seq=%d", e.Writing(), e.Sequence())
	}

	if ok, err := e.Index(0); !ok || err != nil {
		t.Fatalf("index: ok=%v err=%v", ok, err)
	}
	if !e.Reading() {
		t.Fatal("expected reading")
	}
	if err := e.WriteInt(1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("write while reading: %v", err)
	}

	// A miss leaves the cursor idle.
	if ok, err := e.Index(1); ok || err != nil {
		t.Fatalf("index past end: ok=%v err=%v", ok, err)
	}
	if e.Reading() {
		t.Fatal("expected idle after a miss")
	}

	// Reading may be abandoned for a new reservation.
	if ok, _ := e.Index(0); !ok {
		t.Fatal("expected record 0")
	}
	if err := e.StartExcerpt(4); err != nil {
		t.Fatalf("start from reading: %v", err)
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := e.Finish(); err != nil {
		t.Fatalf("second finish: %v", err)
	}
}

func TestAbandonPublishesNothing(t *testing.T) {
	c := openTest(t, testConfig(t))
	e := c.CreateExcerpt()

	if err := e.StartExcerpt(16); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = e.WriteLong(99)
	e.Abandon()
	if e.Writing() {
		t.Fatal("expected idle after abandon")
	}
	if c.Size() != 0 {
		t.Fatalf("abandoned record was published, size %d", c.Size())
	}
	if err := e.WriteInt(1); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("write after abandon: %v", err)
	}

	// The next record takes seq 0 and starts past the abandoned reservation.
	if err := e.StartExcerpt(8); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = e.WriteLong(7)
	if err := e.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if e.Sequence() != 0 || e.Offset() != 16 {
		t.Fatalf("expected seq 0 at offset 16, got seq %d offset %d", e.Sequence(), e.Offset())
	}
	if ok, err := e.Index(0); !ok || err != nil {
		t.Fatalf("index: ok=%v err=%v", ok, err)
	}
	if v, _ := e.ReadLong(); v != 7 {
		t.Fatalf("expected 7, got %d", v)
	}
	e.Abandon()
	if e.Reading() {
		t.Fatal("expected idle after abandoning a read")
	}
}

func TestIndexIsStable(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()
	r := c.CreateExcerpt()

	if ok, _ := r.Index(0); ok {
		t.Fatal("expected no record before commit")
	}
	if err := w.StartExcerpt(8); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.WriteLong(1)
	if ok, _ := r.Index(0); ok {
		t.Fatal("record must not be visible before Finish")
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}
	for range 3 {
		if ok, err := r.Index(0); !ok || err != nil {
			t.Fatalf("index: ok=%v err=%v", ok, err)
		}
	}
	if ok, _ := r.Index(1 << 50); ok {
		t.Fatal("expected a far sequence to be absent")
	}
}

func TestAppendText(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()
	ms := time.Date(2013, time.March, 7, 9, 5, 3, 42*int(time.Millisecond), time.UTC).UnixMilli()

	if err := w.StartExcerpt(128); err != nil {
		t.Fatalf("start: %v", err)
	}
	steps := []error{
		w.AppendBool(true),
		w.Append(" "),
		w.AppendInt(-42),
		w.AppendChar(' '),
		w.AppendDecimal(1.25, 1),
		w.AppendBytes([]byte(" ")),
		w.AppendFloat(0.25),
		w.Append(" "),
		w.AppendDate(ms),
		w.Append(" "),
		w.AppendTime(ms),
		w.Append(" "),
		w.AppendDateTime(ms),
		w.Append(" "),
		w.AppendScaled(-12345, 2),
		w.Append(" "),
		w.AppendStringer(time.March),
		w.Append(" "),
		w.AppendStringer(nil),
	}
	for i, err := range steps {
		if err != nil {
			t.Fatalf("append step %d: %v", i, err)
		}
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r := c.CreateExcerpt()
	if ok, _ := r.Index(0); !ok {
		t.Fatal("expected record")
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	want := "true -42 1.3 0.25 2013-03-07 09:05:03.042 2013-03-07T09:05:03.042 -123.45 March <nil>"
	if string(got) != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if !bytes.Equal(r.Bytes(), got) {
		t.Fatal("Bytes must cover the whole record")
	}
}

func TestSeekAndSkip(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	if err := w.StartExcerpt(16); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.WriteInt(0)
	_ = w.WriteInt(2)
	// Patch the first field once the second is known.
	if err := w.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_ = w.WriteInt(1)
	if err := w.Seek(8); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if err := w.Seek(17); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r := c.CreateExcerpt()
	if ok, _ := r.Index(0); !ok || r.Length() != 8 {
		t.Fatalf("expected 8-byte record, got %d", r.Length())
	}
	if err := r.Skip(4); err != nil {
		t.Fatalf("skip: %v", err)
	}
	if v, _ := r.ReadInt(); v != 2 {
		t.Fatalf("expected 2, got %d", v)
	}
	if err := r.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	if v, _ := r.ReadInt(); v != 1 {
		t.Fatalf("expected 1, got %d", v)
	}
	if err := r.Skip(5); !errors.Is(err, ErrRecordExhausted) {
		t.Fatalf("expected ErrRecordExhausted, got %v", err)
	}
}

func TestTruncatedVariableLengthRead(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	if err := w.StartExcerpt(8); err != nil {
		t.Fatalf("start: %v", err)
	}
	// A chars header claiming 100 units with nothing after it.
	_ = w.WriteStopBit(100)
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r := c.CreateExcerpt()
	if ok, _ := r.Index(0); !ok {
		t.Fatal("expected record")
	}
	if _, err := r.ReadChars(); !errors.Is(err, ErrRecordExhausted) {
		t.Fatalf("expected ErrRecordExhausted, got %v", err)
	}
	if r.Position() != 0 {
		t.Fatalf("failed read moved the cursor to %d", r.Position())
	}
}

func TestHotPathDoesNotAllocate(t *testing.T) {
	cfg := testConfig(t)
	// Large enough that no run triggers growth, which maps new segments.
	cfg.DataSegmentSize = 1 << 20
	cfg.IndexSegmentSize = 1 << 20
	c := openTest(t, cfg)

	w := c.CreateExcerpt()
	r := c.CreateExcerpt()
	text := make([]byte, 0, 32)
	var seq uint64
	var failed bool

	allocs := testing.AllocsPerRun(200, func() {
		if w.StartExcerpt(64) != nil {
			failed = true
			return
		}
		_ = w.WriteChar('T')
		_ = w.WriteInt(42)
		_ = w.WriteChars("Hello World!")
		_ = w.AppendDecimal(12.345, 2)
		_ = w.AppendDateTime(1_000_000)
		if w.Finish() != nil {
			failed = true
			return
		}

		if ok, err := r.Index(seq); !ok || err != nil {
			failed = true
			return
		}
		_, _ = r.ReadChar()
		_, _ = r.ReadInt()
		var err error
		if text, err = r.ReadCharsTo(text[:0]); err != nil {
			failed = true
		}
		_ = r.Finish()
		seq++
	})
	if failed {
		t.Fatal("excerpt operation failed inside the measured loop")
	}
	if allocs != 0 {
		t.Fatalf("expected 0 allocations per record, got %v", allocs)
	}
	if string(text) != "Hello World!" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestValueSinkEncoder(t *testing.T) {
	c := openTest(t, testConfig(t))
	w := c.CreateExcerpt()

	encode := func(s ValueSink, id int64, sym string, px float64) error {
		if err := s.WriteLong(id); err != nil {
			return err
		}
		if err := s.WriteUTF(sym); err != nil {
			return err
		}
		return s.WriteDouble(px)
	}

	if err := w.StartExcerpt(64); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := encode(w, 9, "ACME", 101.5); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := w.Finish(); err != nil {
		t.Fatalf("finish: %v", err)
	}

	r := c.CreateExcerpt()
	if ok, _ := r.Index(0); !ok {
		t.Fatal("expected record")
	}
	var src ValueSource = r
	id, _ := src.ReadLong()
	sym, _ := src.ReadUTF()
	px, _ := src.ReadDouble()
	if id != 9 || sym != "ACME" || px != 101.5 || src.Remaining() != 0 {
		t.Fatalf("decoded %d %q %v (%d left)", id, sym, px, src.Remaining())
	}
}
