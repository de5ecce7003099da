// Package metrics is a minimal, process-local counters/timers sink. The
// controller treats a real metrics collector as an external collaborator
// (see DESIGN.md); this package only gives the rest of the code a place to
// record numbers without importing a monitoring SDK.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Sink accumulates counters and timing samples. The zero value is usable;
// Default is the process-wide singleton every package records against.
type Sink struct {
	mu      sync.Mutex
	counts  map[string]*int64
	timings map[string]*timingStat
}

type timingStat struct {
	count int64
	total time.Duration
	max   time.Duration
}

// Default is the singleton sink used by the ice controller and its
// collaborators. Tests may construct their own *Sink instead.
var Default = New()

// New returns an empty Sink.
func New() *Sink {
	return &Sink{
		counts:  make(map[string]*int64),
		timings: make(map[string]*timingStat),
	}
}

// Incr increments the named counter by delta. Safe for concurrent use and
// cheap enough to call from a hot path (a single atomic add per call once
// the counter exists).
func (s *Sink) Incr(name string, delta int64) {
	s.mu.Lock()
	p, ok := s.counts[name]
	if !ok {
		var v int64
		p = &v
		s.counts[name] = p
	}
	s.mu.Unlock()
	atomic.AddInt64(p, delta)
}

// Observe records a single timing sample for the named metric, e.g. the
// latency of a connectivity check's request/response round trip.
func (s *Sink) Observe(name string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timings[name]
	if !ok {
		t = &timingStat{}
		s.timings[name] = t
	}
	t.count++
	t.total += d
	if d > t.max {
		t.max = d
	}
}

// Since is a convenience for Observe(name, time.Since(start)), meant to be
// deferred at the top of a timed section.
func (s *Sink) Since(name string, start time.Time) {
	s.Observe(name, time.Since(start))
}

// Snapshot is a point-in-time, read-only copy of every counter and timing
// stat recorded so far.
type Snapshot struct {
	Counts  map[string]int64
	Timings map[string]TimingSnapshot
}

// TimingSnapshot summarizes the samples recorded for one timing metric.
type TimingSnapshot struct {
	Count   int64
	Average time.Duration
	Max     time.Duration
}

// Snapshot returns the current value of every counter and timing stat.
func (s *Sink) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Snapshot{
		Counts:  make(map[string]int64, len(s.counts)),
		Timings: make(map[string]TimingSnapshot, len(s.timings)),
	}
	for name, p := range s.counts {
		out.Counts[name] = atomic.LoadInt64(p)
	}
	for name, t := range s.timings {
		avg := time.Duration(0)
		if t.count > 0 {
			avg = t.total / time.Duration(t.count)
		}
		out.Timings[name] = TimingSnapshot{Count: t.count, Average: avg, Max: t.max}
	}
	return out
}

// Reset clears all recorded counters and timings.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = make(map[string]*int64)
	s.timings = make(map[string]*timingStat)
}
