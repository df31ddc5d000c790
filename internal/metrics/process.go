package metrics

import (
	"runtime"
	"sync"
	"syscall"
	"time"
)

// cpuTracker turns cumulative rusage times into a percentage over the
// interval between calls.
type cpuTracker struct {
	mu   sync.Mutex
	wall time.Time
	user time.Duration
	sys  time.Duration
	last float64
}

func newCPUTracker() *cpuTracker {
	t := &cpuTracker{wall: time.Now()}
	t.user, t.sys = rusageTimes()
	return t
}

func (t *cpuTracker) percent() float64 {
	now := time.Now()
	user, sys := rusageTimes()

	t.mu.Lock()
	defer t.mu.Unlock()

	wall := now.Sub(t.wall)
	if wall <= 0 {
		return t.last
	}
	used := (user - t.user) + (sys - t.sys)
	t.last = float64(used) / float64(wall) * 100
	t.wall, t.user, t.sys = now, user, sys
	return t.last
}

// memoryInuse is HeapInuse plus StackInuse: committed memory only, not
// reserved address space. Mapped chronicle files are not counted.
func memoryInuse() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.HeapInuse + m.StackInuse
}

func rusageTimes() (user, sys time.Duration) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, 0
	}
	return time.Duration(ru.Utime.Nano()), time.Duration(ru.Stime.Nano())
}
