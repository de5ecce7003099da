package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCandidatePairPriorityTotalOrder(t *testing.T) {
	mk := func(localPriority, remotePriority uint32) *CandidatePair {
		return &CandidatePair{
			local:  Candidate{priority: localPriority, component: 1},
			remote: Candidate{priority: remotePriority, component: 1},
		}
	}

	lo := mk(100, 200)
	hi := mk(300, 400)
	assert.Less(t, lo.Priority(), hi.Priority())

	// Swapping local/remote priority changes only the tie-break bit, not
	// the ordering against an unrelated pair.
	a := mk(100, 200)
	b := mk(200, 100)
	assert.NotEqual(t, a.Priority(), b.Priority())
}

func TestCandidatePairStateString(t *testing.T) {
	assert.Equal(t, "Frozen", Frozen.String())
	assert.Equal(t, "Waiting", Waiting.String())
	assert.Equal(t, "InProgress", InProgress.String())
	assert.Equal(t, "Succeeded", Succeeded.String())
	assert.Equal(t, "Failed", Failed.String())
}

func TestNewCandidatePairPanicsOnComponentMismatch(t *testing.T) {
	local := Candidate{component: 1}
	remote := Candidate{component: 2}
	assert.Panics(t, func() {
		newCandidatePair(0, local, remote)
	})
}
