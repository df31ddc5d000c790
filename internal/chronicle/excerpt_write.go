package chronicle

import (
	"fmt"

	"chronicle/internal/codec"
)

// grab returns the next n reserved bytes and advances past them.
func (e *Excerpt) grab(n int) ([]byte, error) {
	if e.c.closed.Load() {
		return nil, ErrClosed
	}
	if e.mode != writing {
		return nil, ErrInvalidState
	}
	if n > len(e.buf)-e.pos {
		return nil, ErrCapacityExceeded
	}
	b := e.buf[e.pos : e.pos+n]
	e.pos += n
	return b, nil
}

func (e *Excerpt) WriteBool(v bool) error {
	b, err := e.grab(codec.BoolSize)
	if err != nil {
		return err
	}
	codec.PutBool(b, v)
	return nil
}

func (e *Excerpt) WriteByte(v byte) error {
	b, err := e.grab(codec.ByteSize)
	if err != nil {
		return err
	}
	b[0] = v
	return nil
}

// WriteChar writes r as one UTF-16 code unit. Runes outside the basic
// multilingual plane are written as U+FFFD.
func (e *Excerpt) WriteChar(r rune) error {
	b, err := e.grab(codec.CharSize)
	if err != nil {
		return err
	}
	codec.PutChar(b, r)
	return nil
}

func (e *Excerpt) WriteShort(v int16) error {
	b, err := e.grab(codec.ShortSize)
	if err != nil {
		return err
	}
	codec.PutInt16(b, v)
	return nil
}

func (e *Excerpt) WriteInt(v int32) error {
	b, err := e.grab(codec.IntSize)
	if err != nil {
		return err
	}
	codec.PutInt32(b, v)
	return nil
}

func (e *Excerpt) WriteLong(v int64) error {
	b, err := e.grab(codec.LongSize)
	if err != nil {
		return err
	}
	codec.PutInt64(b, v)
	return nil
}

func (e *Excerpt) WriteFloat(v float32) error {
	b, err := e.grab(codec.FloatSize)
	if err != nil {
		return err
	}
	codec.PutFloat32(b, v)
	return nil
}

func (e *Excerpt) WriteDouble(v float64) error {
	b, err := e.grab(codec.DoubleSize)
	if err != nil {
		return err
	}
	codec.PutFloat64(b, v)
	return nil
}

// WriteStopBit writes v in the variable-length stop-bit encoding.
func (e *Excerpt) WriteStopBit(v int64) error {
	b, err := e.grab(codec.StopBitSize(v))
	if err != nil {
		return err
	}
	codec.PutStopBit(b, v)
	return nil
}

// WriteChars writes s as a stop-bit unit count followed by UTF-16 code units.
func (e *Excerpt) WriteChars(s string) error {
	b, err := e.grab(codec.CharsSize(s))
	if err != nil {
		return err
	}
	codec.PutChars(b, s)
	return nil
}

// WriteUTF writes s as a stop-bit byte count followed by its UTF-8 bytes.
func (e *Excerpt) WriteUTF(s string) error {
	b, err := e.grab(codec.UTFSize(s))
	if err != nil {
		return err
	}
	codec.PutUTF(b, s)
	return nil
}

// WriteBytes copies p into the record without a length prefix.
func (e *Excerpt) WriteBytes(p []byte) error {
	b, err := e.grab(len(p))
	if err != nil {
		return err
	}
	copy(b, p)
	return nil
}

// Write implements io.Writer. It writes all of p or nothing.
func (e *Excerpt) Write(p []byte) (int, error) {
	if err := e.WriteBytes(p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// WriteString implements io.StringWriter. It writes all of s or nothing.
func (e *Excerpt) WriteString(s string) (int, error) {
	b, err := e.grab(len(s))
	if err != nil {
		return 0, err
	}
	return copy(b, s), nil
}

// tail returns a zero-length slice at the cursor whose capacity is the rest
// of the reservation, for the text renderers to append into.
func (e *Excerpt) tail() ([]byte, error) {
	if e.c.closed.Load() {
		return nil, ErrClosed
	}
	if e.mode != writing {
		return nil, ErrInvalidState
	}
	return e.buf[e.pos:e.pos], nil
}

// advance accepts rendered text. Output longer than the reservation means
// append moved it to the heap; the cursor then stays where it was.
func (e *Excerpt) advance(out []byte) error {
	if len(out) > len(e.buf)-e.pos {
		return ErrCapacityExceeded
	}
	e.pos += len(out)
	return nil
}

// Append writes s as raw text.
func (e *Excerpt) Append(s string) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(append(dst, s...))
}

func (e *Excerpt) AppendBytes(p []byte) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(append(dst, p...))
}

func (e *Excerpt) AppendBool(v bool) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendBool(dst, v))
}

func (e *Excerpt) AppendChar(r rune) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendChar(dst, r))
}

func (e *Excerpt) AppendInt(v int64) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendInt(dst, v))
}

// AppendFloat renders the shortest decimal that round-trips to v.
func (e *Excerpt) AppendFloat(v float64) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendFloat(dst, v))
}

// AppendDecimal renders v with exactly precision fractional digits, rounding
// half away from zero.
func (e *Excerpt) AppendDecimal(v float64, precision int) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendDecimal(dst, v, precision))
}

// AppendScaled renders the fixed-point value mantissa * 10^-scale.
func (e *Excerpt) AppendScaled(mantissa int64, scale int) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendScaled(dst, mantissa, scale))
}

// AppendStringer writes v.String(), or "<nil>" for a nil v. Enumerations
// are rendered this way; the String method may allocate.
func (e *Excerpt) AppendStringer(v fmt.Stringer) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	if v == nil {
		return e.advance(append(dst, "<nil>"...))
	}
	return e.advance(append(dst, v.String()...))
}

// AppendDate renders epoch milliseconds as YYYY-MM-DD (UTC).
func (e *Excerpt) AppendDate(millis int64) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendDate(dst, millis))
}

// AppendTime renders epoch milliseconds as HH:MM:SS.mmm (UTC).
func (e *Excerpt) AppendTime(millis int64) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendTime(dst, millis))
}

// AppendDateTime renders epoch milliseconds as YYYY-MM-DDTHH:MM:SS.mmm (UTC).
func (e *Excerpt) AppendDateTime(millis int64) error {
	dst, err := e.tail()
	if err != nil {
		return err
	}
	return e.advance(codec.AppendDateTime(dst, millis))
}
