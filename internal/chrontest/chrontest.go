// Package chrontest provides shared test helpers for opening small
// chronicles in temporary directories. It eliminates the config and cleanup
// boilerplate repeated across the archive, metrics and watch tests.
package chrontest

import (
	"path/filepath"
	"testing"

	"chronicle/internal/chronicle"
)

// SegmentSize keeps test files small while still being page aligned.
const SegmentSize = 1 << 16

// Config returns a config for a chronicle named name in a fresh temporary
// directory.
func Config(t testing.TB, name string) chronicle.Config {
	t.Helper()
	return chronicle.Config{
		Path:             filepath.Join(t.TempDir(), name),
		DataSegmentSize:  SegmentSize,
		IndexSegmentSize: SegmentSize,
	}
}

// Open opens cfg and closes it when the test ends.
func Open(t testing.TB, cfg chronicle.Config) *chronicle.Chronicle {
	t.Helper()
	c, err := chronicle.Open(cfg)
	if err != nil {
		t.Fatalf("chrontest.Open %s: %v", cfg.Path, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// New opens a fresh chronicle named name.
func New(t testing.TB, name string) *chronicle.Chronicle {
	t.Helper()
	return Open(t, Config(t, name))
}

// Append writes each payload as one record.
func Append(t testing.TB, c *chronicle.Chronicle, payloads ...[]byte) {
	t.Helper()
	ex := c.CreateExcerpt()
	for i, p := range payloads {
		if err := ex.StartExcerpt(len(p)); err != nil {
			t.Fatalf("chrontest.Append %d: start: %v", i, err)
		}
		if err := ex.WriteBytes(p); err != nil {
			t.Fatalf("chrontest.Append %d: write: %v", i, err)
		}
		if err := ex.Finish(); err != nil {
			t.Fatalf("chrontest.Append %d: finish: %v", i, err)
		}
	}
}
