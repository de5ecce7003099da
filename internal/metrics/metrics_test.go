package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIncrAccumulates(t *testing.T) {
	s := New()
	s.Incr("checks_sent", 1)
	s.Incr("checks_sent", 2)

	snap := s.Snapshot()
	assert.Equal(t, int64(3), snap.Counts["checks_sent"])
}

func TestObserveTracksCountAverageAndMax(t *testing.T) {
	s := New()
	s.Observe("round_trip", 10*time.Millisecond)
	s.Observe("round_trip", 30*time.Millisecond)

	snap := s.Snapshot()
	timing := snap.Timings["round_trip"]
	assert.Equal(t, int64(2), timing.Count)
	assert.Equal(t, 20*time.Millisecond, timing.Average)
	assert.Equal(t, 30*time.Millisecond, timing.Max)
}

func TestResetClearsState(t *testing.T) {
	s := New()
	s.Incr("x", 1)
	s.Observe("y", time.Second)

	s.Reset()

	snap := s.Snapshot()
	assert.Empty(t, snap.Counts)
	assert.Empty(t, snap.Timings)
}

func TestSnapshotIsolatedFromConcurrentIncr(t *testing.T) {
	s := New()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			s.Incr("concurrent", 1)
		}
		close(done)
	}()
	<-done

	snap := s.Snapshot()
	assert.Equal(t, int64(100), snap.Counts["concurrent"])
}
