package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidate(t *testing.T) {
	desc := "candidate:0 1 UDP 123456789 192.168.1.1 12345 typ host"
	c, err := ParseCandidate(desc, "mid")
	require.NoError(t, err)

	assert.Equal(t, "0", c.foundation)
	assert.Equal(t, 1, c.component)
	assert.Equal(t, UDP, c.address.protocol)
	assert.Equal(t, "192.168.1.1", c.address.ip)
	assert.Equal(t, 12345, c.address.port)
	assert.Equal(t, uint32(123456789), c.priority)
	assert.Equal(t, "host", c.typ)
	assert.Equal(t, "mid", c.Mid())
}

func TestCandidateString(t *testing.T) {
	desc := "candidate:0 1 udp 123456789 192.168.1.1 12345 typ host"
	c, err := ParseCandidate(desc, "mid")
	require.NoError(t, err)

	assert.Equal(t, desc, c.String())
}

func TestParseCandidateRejectsUnknownType(t *testing.T) {
	desc := "candidate:0 1 udp 123456789 192.168.1.1 12345 typ bogus"
	_, err := ParseCandidate(desc, "mid")
	assert.ErrorIs(t, err, ErrUnsupportedCandidateType)
}

func TestParseCandidateRejectsShortLine(t *testing.T) {
	// Only 7 space-separated tokens: missing the type-value position.
	desc := "candidate:0 1 udp 123456789 192.168.1.1 12345 typ"
	_, err := ParseCandidate(desc, "mid")
	assert.ErrorIs(t, err, ErrLackOfElement)
}

func TestParseCandidateRejectsBadComponent(t *testing.T) {
	desc := "candidate:0 0 udp 123456789 192.168.1.1 12345 typ host"
	_, err := ParseCandidate(desc, "mid")
	assert.Error(t, err)
}

func TestComputePriorityOrdering(t *testing.T) {
	// Strict preference order, for the same component:
	// host > peer-reflexive > server-reflexive > relayed.
	assert.Greater(t, computePriority(hostType, 1), computePriority(prflxType, 1))
	assert.Greater(t, computePriority(prflxType, 1), computePriority(srflxType, 1))
	assert.Greater(t, computePriority(srflxType, 1), computePriority(relayType, 1))
}

func TestComputeFoundationStable(t *testing.T) {
	addr := TransportAddress{protocol: UDP, ip: "10.0.0.1", port: 0}
	a := computeFoundation(hostType, addr, "")
	b := computeFoundation(hostType, addr, "")
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)

	c := computeFoundation(srflxType, addr, "stun.example.com")
	assert.NotEqual(t, a, c)
}
