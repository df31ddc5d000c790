// Package wait provides the strategies a reader uses between polls of a
// record that is not available yet.
//
// Chronicle never blocks: Excerpt.Index returns false until the record is
// committed. The caller owns the loop, and a Strategy decides what the loop
// does on each miss. Spinning gives the lowest latency and burns a core;
// sleeping frees the core and adds latency.
package wait

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Strategy is called once for every unsuccessful poll.
type Strategy interface {
	OnMiss()
}

// Resetter is implemented by strategies that escalate over consecutive
// misses. Until calls Reset before it starts polling.
type Resetter interface {
	Reset()
}

// Indexer is the polling side of an Excerpt.
type Indexer interface {
	Index(seq uint64) (bool, error)
}

// BusySpin returns immediately.
type BusySpin struct{}

func (BusySpin) OnMiss() {}

// Yield gives up the processor to other goroutines.
type Yield struct{}

func (Yield) OnMiss() { runtime.Gosched() }

// Sleep parks the goroutine for a fixed duration.
type Sleep time.Duration

func (s Sleep) OnMiss() { time.Sleep(time.Duration(s)) }

// Backoff spins, then yields, then sleeps with exponentially growing pauses.
// A Backoff is stateful and must not be shared between goroutines.
type Backoff struct {
	Spins    int
	Yields   int
	MinSleep time.Duration
	MaxSleep time.Duration

	misses int
	sleep  time.Duration
}

// NewBackoff returns a Backoff with defaults suited to a reader that mostly
// keeps up with its writer.
func NewBackoff() *Backoff {
	return &Backoff{
		Spins:    1000,
		Yields:   100,
		MinSleep: 10 * time.Microsecond,
		MaxSleep: time.Millisecond,
	}
}

func (b *Backoff) OnMiss() {
	b.misses++
	switch {
	case b.misses <= b.Spins:
	case b.misses <= b.Spins+b.Yields:
		runtime.Gosched()
	default:
		if b.sleep == 0 {
			b.sleep = max(b.MinSleep, time.Microsecond)
		} else {
			b.sleep = min(b.sleep*2, max(b.MaxSleep, b.MinSleep))
		}
		time.Sleep(b.sleep)
	}
}

func (b *Backoff) Reset() {
	b.misses = 0
	b.sleep = 0
}

// Until polls ix for seq until it is available, the context is done, or
// Index fails. Cancellation is observed between polls, so a sleeping
// strategy delays it by at most one pause.
func Until(ctx context.Context, ix Indexer, seq uint64, s Strategy) error {
	if r, ok := s.(Resetter); ok {
		r.Reset()
	}
	for {
		ok, err := ix.Index(seq)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s.OnMiss()
	}
}

// Parse builds a strategy from its name: "spin", "yield", "backoff", or
// "sleep" with an optional duration such as "sleep:500us".
func Parse(name string) (Strategy, error) {
	kind, arg, hasArg := strings.Cut(strings.ToLower(strings.TrimSpace(name)), ":")
	switch kind {
	case "spin", "busy-spin":
		return BusySpin{}, nil
	case "yield":
		return Yield{}, nil
	case "backoff", "":
		return NewBackoff(), nil
	case "sleep":
		d := time.Millisecond
		if hasArg {
			var err error
			if d, err = time.ParseDuration(arg); err != nil {
				return nil, fmt.Errorf("wait strategy %q: %w", name, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("wait strategy %q: sleep must be positive", name)
			}
		}
		return Sleep(d), nil
	default:
		return nil, fmt.Errorf("unknown wait strategy %q", name)
	}
}
