package ice

import (
	"fmt"
)

// CandidatePair couples a local and remote candidate for connectivity
// checking. See [RFC8445 §6.1.2].
type CandidatePair struct {
	id         string
	local      Candidate
	remote     Candidate
	foundation string
	component  int

	state     CandidatePairState
	nominated bool

	// controlling records which side held the controlling role when this
	// pair was created, so Priority() assigns G/D correctly even across a
	// role-conflict flip partway through checking.
	controlling bool
}

// CandidatePairState is the Frozen/Waiting/InProgress/Succeeded/Failed state
// machine driving the pair manager.
type CandidatePairState int

const (
	Frozen CandidatePairState = iota
	Waiting
	InProgress
	Succeeded
	Failed
)

func (s CandidatePairState) String() string {
	switch s {
	case Frozen:
		return "Frozen"
	case Waiting:
		return "Waiting"
	case InProgress:
		return "InProgress"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("CandidatePairState(%d)", int(s))
	}
}

func newCandidatePair(seq int, local, remote Candidate) *CandidatePair {
	if local.component != remote.component {
		panic(fmt.Sprintf("ice: candidates in pair have different components: %d != %d", local.component, remote.component))
	}
	id := fmt.Sprintf("pair#%d", seq)
	foundation := fmt.Sprintf("%s/%s", local.foundation, remote.foundation)
	return &CandidatePair{id: id, local: local, remote: remote, foundation: foundation, component: local.component}
}

func (p *CandidatePair) String() string {
	return fmt.Sprintf("%s: %s -> %s [%s]", p.id, p.local.address, p.remote.address, p.state)
}

// Priority computes the candidate pair priority. See [RFC8445 §6.1.2.3]:
// pair-priority = 2^32*MIN(G,D) + 2*MAX(G,D) + (G>D?1:0), where G is the
// controlling agent's candidate priority and D is the controlled agent's.
func (p *CandidatePair) Priority() uint64 {
	var G, D uint64
	if p.controlling {
		G = uint64(p.local.priority)
		D = uint64(p.remote.priority)
	} else {
		G = uint64(p.remote.priority)
		D = uint64(p.local.priority)
	}
	var B uint64
	if G > D {
		B = 1
	}
	return min64(G, D)<<32 + max64(G, D)<<1 + B
}

func min64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
