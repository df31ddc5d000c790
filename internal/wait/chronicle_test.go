package wait

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"chronicle/internal/chronicle"
)

func TestUntilWithExcerpt(t *testing.T) {
	c, err := chronicle.Open(chronicle.Config{
		Path:             filepath.Join(t.TempDir(), "poll"),
		DataSegmentSize:  1 << 16,
		IndexSegmentSize: 1 << 16,
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = c.Close() }()

	go func() {
		time.Sleep(10 * time.Millisecond)
		w := c.CreateExcerpt()
		if err := w.StartExcerpt(8); err != nil {
			return
		}
		_ = w.WriteLong(77)
		_ = w.Finish()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r := c.CreateExcerpt()
	if err := Until(ctx, r, 0, NewBackoff()); err != nil {
		t.Fatalf("until: %v", err)
	}
	if v, err := r.ReadLong(); err != nil || v != 77 {
		t.Fatalf("read: %d, %v", v, err)
	}
}
