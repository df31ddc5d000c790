package chronicle

import (
	"errors"
	"io"

	"chronicle/internal/codec"
)

// take returns the next n committed bytes and advances past them.
func (e *Excerpt) take(n int) ([]byte, error) {
	if e.c.closed.Load() {
		return nil, ErrClosed
	}
	if e.mode != reading {
		return nil, ErrInvalidState
	}
	if n > len(e.buf)-e.pos {
		return nil, ErrRecordExhausted
	}
	b := e.buf[e.pos : e.pos+n]
	e.pos += n
	return b, nil
}

// rest returns the unread part of the record without advancing.
func (e *Excerpt) rest() ([]byte, error) {
	if e.c.closed.Load() {
		return nil, ErrClosed
	}
	if e.mode != reading {
		return nil, ErrInvalidState
	}
	return e.buf[e.pos:], nil
}

func (e *Excerpt) ReadBool() (bool, error) {
	b, err := e.take(codec.BoolSize)
	if err != nil {
		return false, err
	}
	return codec.Bool(b), nil
}

func (e *Excerpt) ReadByte() (byte, error) {
	b, err := e.take(codec.ByteSize)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (e *Excerpt) ReadChar() (rune, error) {
	b, err := e.take(codec.CharSize)
	if err != nil {
		return 0, err
	}
	return codec.Char(b), nil
}

func (e *Excerpt) ReadShort() (int16, error) {
	b, err := e.take(codec.ShortSize)
	if err != nil {
		return 0, err
	}
	return codec.Int16(b), nil
}

func (e *Excerpt) ReadInt() (int32, error) {
	b, err := e.take(codec.IntSize)
	if err != nil {
		return 0, err
	}
	return codec.Int32(b), nil
}

func (e *Excerpt) ReadLong() (int64, error) {
	b, err := e.take(codec.LongSize)
	if err != nil {
		return 0, err
	}
	return codec.Int64(b), nil
}

func (e *Excerpt) ReadFloat() (float32, error) {
	b, err := e.take(codec.FloatSize)
	if err != nil {
		return 0, err
	}
	return codec.Float32(b), nil
}

func (e *Excerpt) ReadDouble() (float64, error) {
	b, err := e.take(codec.DoubleSize)
	if err != nil {
		return 0, err
	}
	return codec.Float64(b), nil
}

func (e *Excerpt) ReadStopBit() (int64, error) {
	b, err := e.rest()
	if err != nil {
		return 0, err
	}
	v, n, err := codec.StopBit(b)
	if err != nil {
		return 0, decodeErr(err)
	}
	e.pos += n
	return v, nil
}

// ReadCharsTo decodes a chars value, appends it to dst as UTF-8 and returns
// the extended buffer. It does not allocate when dst has room.
func (e *Excerpt) ReadCharsTo(dst []byte) ([]byte, error) {
	b, err := e.rest()
	if err != nil {
		return dst, err
	}
	out, n, err := codec.AppendChars(dst, b)
	if err != nil {
		return dst, decodeErr(err)
	}
	e.pos += n
	return out, nil
}

// ReadChars decodes a chars value into a new string.
func (e *Excerpt) ReadChars() (string, error) {
	out, err := e.ReadCharsTo(nil)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// ReadUTFBytes returns a view of the UTF-8 bytes of a utf value. The view
// aliases mapped memory.
func (e *Excerpt) ReadUTFBytes() ([]byte, error) {
	b, err := e.rest()
	if err != nil {
		return nil, err
	}
	v, n, err := codec.UTF(b)
	if err != nil {
		return nil, decodeErr(err)
	}
	e.pos += n
	return v, nil
}

func (e *Excerpt) ReadUTF() (string, error) {
	v, err := e.ReadUTFBytes()
	if err != nil {
		return "", err
	}
	return string(v), nil
}

// ReadFully fills p from the record, or fails without advancing.
func (e *Excerpt) ReadFully(p []byte) error {
	b, err := e.take(len(p))
	if err != nil {
		return err
	}
	copy(p, b)
	return nil
}

// Read implements io.Reader over the unread part of the record.
func (e *Excerpt) Read(p []byte) (int, error) {
	b, err := e.rest()
	if err != nil {
		return 0, err
	}
	if len(b) == 0 {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n := copy(p, b)
	e.pos += n
	return n, nil
}

// Skip advances the read position by n bytes.
func (e *Excerpt) Skip(n int) error {
	if n < 0 {
		return ErrRecordExhausted
	}
	_, err := e.take(n)
	return err
}

func decodeErr(err error) error {
	if errors.Is(err, codec.ErrTruncated) {
		return ErrRecordExhausted
	}
	return err
}
