package chronicle

import (
	"fmt"
	"io"
)

// ValueSink is the write side of an Excerpt. Message encoders take a
// ValueSink so they can be exercised without a mapped file.
type ValueSink interface {
	io.Writer
	io.ByteWriter
	io.StringWriter

	WriteBool(v bool) error
	WriteChar(r rune) error
	WriteShort(v int16) error
	WriteInt(v int32) error
	WriteLong(v int64) error
	WriteFloat(v float32) error
	WriteDouble(v float64) error
	WriteStopBit(v int64) error
	WriteChars(s string) error
	WriteUTF(s string) error
	WriteBytes(p []byte) error

	Append(s string) error
	AppendBytes(p []byte) error
	AppendBool(v bool) error
	AppendChar(r rune) error
	AppendInt(v int64) error
	AppendFloat(v float64) error
	AppendDecimal(v float64, precision int) error
	AppendScaled(mantissa int64, scale int) error
	AppendStringer(v fmt.Stringer) error
	AppendDate(millis int64) error
	AppendTime(millis int64) error
	AppendDateTime(millis int64) error
}

// ValueSource is the read side of an Excerpt.
type ValueSource interface {
	io.Reader
	io.ByteReader

	ReadBool() (bool, error)
	ReadChar() (rune, error)
	ReadShort() (int16, error)
	ReadInt() (int32, error)
	ReadLong() (int64, error)
	ReadFloat() (float32, error)
	ReadDouble() (float64, error)
	ReadStopBit() (int64, error)
	ReadChars() (string, error)
	ReadCharsTo(dst []byte) ([]byte, error)
	ReadUTF() (string, error)
	ReadUTFBytes() ([]byte, error)
	ReadFully(p []byte) error
	Skip(n int) error
	Remaining() int
}

var (
	_ ValueSink   = (*Excerpt)(nil)
	_ ValueSource = (*Excerpt)(nil)
)
