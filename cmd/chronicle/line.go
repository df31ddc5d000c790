package main

import (
	"chronicle/internal/chronicle"
	"chronicle/internal/codec"
)

// Records written by "chronicle write" hold a millisecond timestamp
// followed by the line as UTF.

func lineCapacity(line string) int {
	return 8 + codec.UTFSize(line)
}

func encodeLine(dst chronicle.ValueSink, millis int64, line string) error {
	if err := dst.WriteLong(millis); err != nil {
		return err
	}
	return dst.WriteUTF(line)
}

// decodeLine returns the timestamp and a view of the line in mapped memory.
func decodeLine(src chronicle.ValueSource) (int64, []byte, error) {
	millis, err := src.ReadLong()
	if err != nil {
		return 0, nil, err
	}
	line, err := src.ReadUTFBytes()
	if err != nil {
		return 0, nil, err
	}
	return millis, line, nil
}
