package archive

import (
	"fmt"
	"io"
	"strings"

	"chronicle/internal/format"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/zstd"
)

// Codec selects how the archive body is compressed. It is stored in the low
// bits of the header flags.
type Codec byte

const (
	CodecNone Codec = iota
	CodecZstd
	CodecBrotli
)

// brotliQuality trades some ratio for speed; archives of hot logs are
// written while the writer is still producing.
const brotliQuality = 5

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecZstd:
		return "zstd"
	case CodecBrotli:
		return "brotli"
	default:
		return fmt.Sprintf("codec(%d)", byte(c))
	}
}

// ParseCodec accepts "none", "zstd" or "brotli". The empty string means zstd.
func ParseCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none", "raw":
		return CodecNone, nil
	case "zstd", "":
		return CodecZstd, nil
	case "brotli", "br":
		return CodecBrotli, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func codecFromFlags(flags byte) (Codec, error) {
	c := Codec(flags & format.FlagCodecMask)
	if c > CodecBrotli {
		return 0, fmt.Errorf("%w: %d", ErrUnknownCodec, byte(c))
	}
	return c, nil
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func (c Codec) compress(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CodecZstd:
		return zstd.NewWriter(w,
			zstd.WithEncoderLevel(zstd.SpeedDefault),
			zstd.WithEncoderConcurrency(1),
		)
	case CodecBrotli:
		return brotli.NewWriterLevel(w, brotliQuality), nil
	default:
		return nopWriteCloser{w}, nil
	}
}

// decompress returns the body reader and a release func for decoder
// resources.
func (c Codec) decompress(r io.Reader) (io.Reader, func(), error) {
	switch c {
	case CodecZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, nil, err
		}
		return dec, dec.Close, nil
	case CodecBrotli:
		return brotli.NewReader(r), func() {}, nil
	default:
		return r, func() {}, nil
	}
}
