// Package codec encodes and decodes excerpt values against raw byte regions.
//
// Fixed-width values are little-endian two's complement. Variable-length
// values use a stop-bit length prefix. All functions are stateless and
// operate on caller-supplied slices; none allocate.
//
// Layout:
//
//	bool    1 byte, 0 or 1
//	char    2 bytes, one UTF-16 code unit
//	short   2 bytes
//	int     4 bytes
//	long    8 bytes
//	float   4 bytes, IEEE-754 bits
//	double  8 bytes, IEEE-754 bits
//	chars   stop-bit unit count, then 2 bytes per UTF-16 unit
//	utf     stop-bit byte count, then UTF-8 bytes
package codec

import (
	"encoding/binary"
	"errors"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

const (
	BoolSize   = 1
	ByteSize   = 1
	CharSize   = 2
	ShortSize  = 2
	IntSize    = 4
	LongSize   = 8
	FloatSize  = 4
	DoubleSize = 8

	// MaxStopBitSize is the longest stop-bit encoding (a negative int64).
	MaxStopBitSize = 10
)

var (
	ErrTruncated = errors.New("codec: value truncated")
	ErrOverflow  = errors.New("codec: stop-bit value overflows int64")
)

func PutBool(b []byte, v bool) {
	if v {
		b[0] = 1
	} else {
		b[0] = 0
	}
}

func Bool(b []byte) bool { return b[0] != 0 }

// PutChar stores r as a single UTF-16 code unit. Runes outside the basic
// multilingual plane are stored as U+FFFD.
func PutChar(b []byte, r rune) {
	if r < 0 || r > 0xFFFF || utf16.IsSurrogate(r) {
		r = utf8.RuneError
	}
	binary.LittleEndian.PutUint16(b, uint16(r))
}

func Char(b []byte) rune { return rune(binary.LittleEndian.Uint16(b)) }

func PutInt16(b []byte, v int16) { binary.LittleEndian.PutUint16(b, uint16(v)) }
func Int16(b []byte) int16       { return int16(binary.LittleEndian.Uint16(b)) }

func PutInt32(b []byte, v int32) { binary.LittleEndian.PutUint32(b, uint32(v)) }
func Int32(b []byte) int32       { return int32(binary.LittleEndian.Uint32(b)) }

func PutInt64(b []byte, v int64) { binary.LittleEndian.PutUint64(b, uint64(v)) }
func Int64(b []byte) int64       { return int64(binary.LittleEndian.Uint64(b)) }

func PutFloat32(b []byte, v float32) { binary.LittleEndian.PutUint32(b, math.Float32bits(v)) }
func Float32(b []byte) float32       { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }

func PutFloat64(b []byte, v float64) { binary.LittleEndian.PutUint64(b, math.Float64bits(v)) }
func Float64(b []byte) float64       { return math.Float64frombits(binary.LittleEndian.Uint64(b)) }

// StopBitSize returns the number of bytes PutStopBit writes for v.
func StopBitSize(v int64) int {
	n := 1
	u := uint64(v)
	if v < 0 {
		// ^v groups, each with the continuation bit, then a zero terminator.
		u = uint64(^v)
		n = 2
	}
	for u >= 0x80 {
		u >>= 7
		n++
	}
	return n
}

// PutStopBit encodes v seven bits per byte, low group first. The high bit of
// each byte marks continuation. Negative values encode ^v with the
// continuation bit on every group followed by a zero byte.
// b must hold StopBitSize(v) bytes. It returns the bytes written.
func PutStopBit(b []byte, v int64) int {
	i := 0
	if v < 0 {
		u := uint64(^v)
		for u >= 0x80 {
			b[i] = byte(u) | 0x80
			u >>= 7
			i++
		}
		b[i] = byte(u) | 0x80
		b[i+1] = 0
		return i + 2
	}
	u := uint64(v)
	for u >= 0x80 {
		b[i] = byte(u) | 0x80
		u >>= 7
		i++
	}
	b[i] = byte(u)
	return i + 1
}

// StopBit decodes a value written by PutStopBit and returns it with the
// number of bytes consumed.
func StopBit(b []byte) (int64, int, error) {
	var u uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if c&0x80 == 0 {
			if c == 0 && i > 0 {
				return ^int64(u), i + 1, nil
			}
			if shift == 63 && c != 0 {
				return 0, 0, ErrOverflow
			}
			u |= uint64(c) << shift
			return int64(u), i + 1, nil
		}
		if shift >= 63 {
			return 0, 0, ErrOverflow
		}
		u |= uint64(c&0x7f) << shift
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// CharsSize returns the encoded size of s as a chars value.
func CharsSize(s string) int {
	units := utf16Len(s)
	return StopBitSize(int64(units)) + units*CharSize
}

func utf16Len(s string) int {
	units := 0
	for _, r := range s {
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
	}
	return units
}

// PutChars writes s as a stop-bit unit count followed by UTF-16 code units.
// b must hold CharsSize(s) bytes. It returns the bytes written.
func PutChars(b []byte, s string) int {
	n := PutStopBit(b, int64(utf16Len(s)))
	for _, r := range s {
		if r >= 0x10000 {
			r1, r2 := utf16.EncodeRune(r)
			binary.LittleEndian.PutUint16(b[n:], uint16(r1))
			binary.LittleEndian.PutUint16(b[n+2:], uint16(r2))
			n += 4
			continue
		}
		binary.LittleEndian.PutUint16(b[n:], uint16(r))
		n += 2
	}
	return n
}

// AppendChars decodes a chars value from b, appends it to dst as UTF-8 and
// returns the extended buffer with the number of bytes consumed from b.
func AppendChars(dst, b []byte) ([]byte, int, error) {
	count, n, err := StopBit(b)
	if err != nil {
		return dst, 0, err
	}
	if count < 0 || count > int64(len(b)-n)/CharSize {
		return dst, 0, ErrTruncated
	}
	end := n + int(count)*CharSize
	for n < end {
		r := rune(binary.LittleEndian.Uint16(b[n:]))
		n += CharSize
		if utf16.IsSurrogate(r) && n < end {
			r2 := rune(binary.LittleEndian.Uint16(b[n:]))
			if dec := utf16.DecodeRune(r, r2); dec != utf8.RuneError {
				r = dec
				n += CharSize
			}
		}
		dst = utf8.AppendRune(dst, r)
	}
	return dst, n, nil
}

// UTFSize returns the encoded size of s as a utf value.
func UTFSize(s string) int {
	return StopBitSize(int64(len(s))) + len(s)
}

// PutUTF writes s as a stop-bit byte count followed by its UTF-8 bytes.
func PutUTF(b []byte, s string) int {
	n := PutStopBit(b, int64(len(s)))
	n += copy(b[n:], s)
	return n
}

// UTF returns a view of the UTF-8 bytes of the utf value at the start of b,
// and the total bytes consumed. The view aliases b.
func UTF(b []byte) ([]byte, int, error) {
	size, n, err := StopBit(b)
	if err != nil {
		return nil, 0, err
	}
	if size < 0 || int64(len(b)-n) < size {
		return nil, 0, ErrTruncated
	}
	end := n + int(size)
	return b[n:end], end, nil
}
