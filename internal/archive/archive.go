// Package archive streams the records of a chronicle to and from a portable
// file.
//
// An archive is a format header followed by a body, compressed according to
// the codec in the header flags. The body is a msgpack manifest followed by
// exactly Manifest.Count records.
package archive

import (
	"errors"
	"fmt"
	"io"
	"time"

	"chronicle/internal/format"

	"github.com/vmihailenco/msgpack/v5"
)

// Version is the archive body version written into the header.
const Version = 1

var (
	ErrUnknownCodec  = errors.New("unknown archive codec")
	ErrCountMismatch = errors.New("archive record count mismatch")
	ErrWriterClosed  = errors.New("archive writer closed")
)

// Manifest describes where the records came from.
type Manifest struct {
	Source   string    `msgpack:"source"`
	Instance string    `msgpack:"instance"`
	Created  time.Time `msgpack:"created"`
	// First is the sequence number of the first record in the source.
	First uint64 `msgpack:"first"`
	Count uint64 `msgpack:"count"`
}

// Record is one archived record and its sequence number in the source.
type Record struct {
	_msgpack struct{} `msgpack:",as_array"` //nolint:unused

	Seq  uint64
	Data []byte
}

// Writer writes an archive. Records must be written in order and exactly
// Manifest.Count of them before Close.
type Writer struct {
	body     io.WriteCloser
	enc      *msgpack.Encoder
	manifest Manifest
	written  uint64
	closed   bool
}

// NewWriter writes the header and manifest to w.
func NewWriter(w io.Writer, codec Codec, m Manifest) (*Writer, error) {
	if codec > CodecBrotli {
		return nil, fmt.Errorf("%w: %d", ErrUnknownCodec, byte(codec))
	}
	hdr := format.Header{Type: format.TypeArchive, Version: Version, Flags: byte(codec)}
	if _, err := hdr.WriteTo(w); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	body, err := codec.compress(w)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", codec, err)
	}
	enc := msgpack.NewEncoder(body)
	if err := enc.Encode(&m); err != nil {
		_ = body.Close()
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	return &Writer{body: body, enc: enc, manifest: m}, nil
}

// Write appends one record.
func (w *Writer) Write(seq uint64, data []byte) error {
	if w.closed {
		return ErrWriterClosed
	}
	if w.written >= w.manifest.Count {
		return fmt.Errorf("%w: more than %d records", ErrCountMismatch, w.manifest.Count)
	}
	if err := w.enc.Encode(&Record{Seq: seq, Data: data}); err != nil {
		return fmt.Errorf("write record %d: %w", seq, err)
	}
	w.written++
	return nil
}

// Close flushes the compressor. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	err := w.body.Close()
	if w.written != w.manifest.Count {
		return errors.Join(err, fmt.Errorf("%w: wrote %d of %d", ErrCountMismatch, w.written, w.manifest.Count))
	}
	return err
}

// Reader reads an archive.
type Reader struct {
	dec      *msgpack.Decoder
	release  func()
	codec    Codec
	manifest Manifest
	read     uint64
}

// NewReader validates the header and decodes the manifest.
func NewReader(r io.Reader) (*Reader, error) {
	hdr, err := format.Read(r, format.TypeArchive, Version)
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	codec, err := codecFromFlags(hdr.Flags)
	if err != nil {
		return nil, err
	}
	body, release, err := codec.decompress(r)
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", codec, err)
	}
	dec := msgpack.NewDecoder(body)
	var m Manifest
	if err := dec.Decode(&m); err != nil {
		release()
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return &Reader{dec: dec, release: release, codec: codec, manifest: m}, nil
}

func (r *Reader) Manifest() Manifest { return r.manifest }
func (r *Reader) Codec() Codec       { return r.codec }

// Next returns the next record, or io.EOF after Manifest.Count records.
// The returned Data is owned by the caller.
func (r *Reader) Next() (Record, error) {
	if r.read >= r.manifest.Count {
		return Record{}, io.EOF
	}
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return Record{}, fmt.Errorf("read record %d of %d: %w", r.read, r.manifest.Count, err)
	}
	r.read++
	return rec, nil
}

// Close releases decoder resources. It does not close the underlying reader.
func (r *Reader) Close() error {
	if r.release != nil {
		r.release()
		r.release = nil
	}
	return nil
}
