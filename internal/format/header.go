// Package format frames the streams a chronicle produces.
//
// The data and index files carry no header because their layout is fixed.
// Archives do: a 4-byte header lets a reader reject foreign input before
// touching the compressed body.
//
//	byte 0  signature 'c'
//	byte 1  stream type ('a' = record archive)
//	byte 2  version of that type
//	byte 3  flags, meaning defined by the type
package format

import (
	"errors"
	"fmt"
	"io"
)

const (
	Signature  = 'c'
	HeaderSize = 4

	TypeArchive = 'a'

	// FlagCodecMask selects the compression codec bits of an archive.
	FlagCodecMask = 0x0F
)

var (
	ErrHeaderTooSmall    = errors.New("header too small")
	ErrSignatureMismatch = errors.New("signature mismatch")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrVersionMismatch   = errors.New("version mismatch")
)

type Header struct {
	Type    byte
	Version byte
	Flags   byte
}

// Bytes returns the wire form of h.
func (h Header) Bytes() [HeaderSize]byte {
	return [HeaderSize]byte{Signature, h.Type, h.Version, h.Flags}
}

func (h Header) WriteTo(w io.Writer) (int64, error) {
	b := h.Bytes()
	n, err := w.Write(b[:])
	return int64(n), err
}

// Parse decodes the first HeaderSize bytes of b. Only the signature is
// checked; see Expect.
func Parse(b []byte) (Header, error) {
	switch {
	case len(b) < HeaderSize:
		return Header{}, fmt.Errorf("%w: %d bytes", ErrHeaderTooSmall, len(b))
	case b[0] != Signature:
		return Header{}, fmt.Errorf("%w: 0x%02x", ErrSignatureMismatch, b[0])
	}
	return Header{Type: b[1], Version: b[2], Flags: b[3]}, nil
}

// Expect reports whether h is the given stream type and version.
func (h Header) Expect(typ, version byte) error {
	if h.Type != typ {
		return fmt.Errorf("%w: got %q, want %q", ErrTypeMismatch, h.Type, typ)
	}
	if h.Version != version {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, version)
	}
	return nil
}

// Read consumes exactly HeaderSize bytes from r and checks them against typ
// and version. A short stream is ErrHeaderTooSmall.
func Read(r io.Reader, typ, version byte) (Header, error) {
	var b [HeaderSize]byte
	n, err := io.ReadFull(r, b[:])
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrHeaderTooSmall, n)
	}
	if err != nil {
		return Header{}, err
	}
	h, err := Parse(b[:])
	if err != nil {
		return Header{}, err
	}
	return h, h.Expect(typ, version)
}
