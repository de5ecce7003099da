package ice

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeerSharesControllerCredentials(t *testing.T) {
	p := newPeer("0", "aUfr", "aPasswordaPasswordaPassw")
	assert.Equal(t, "aUfr", p.localUfrag)
	assert.Equal(t, "aPasswordaPasswordaPassw", p.localPassword)
	assert.Equal(t, "aPasswordaPasswordaPassw", p.checklist.localPassword)
}

func TestSetRemoteCredentialsCombinedUsername(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")
	require.NoError(t, p.setRemoteCredentials("remu", "remotepassword123456789012"))

	assert.Equal(t, "remu:locu", p.combinedUsername)
	assert.Equal(t, "remu:locu", p.checklist.username)
	assert.Equal(t, "remotepassword123456789012", p.checklist.remotePassword)
}

func TestSetRemoteCredentialsRejectsOverlongUfrag(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")
	longUfrag := strings.Repeat("u", maxRemoteCredentialLength+1)

	err := p.setRemoteCredentials(longUfrag, "remotepassword123456789012")
	assert.ErrorIs(t, err, ErrInvalidRemoteUsername)
	assert.Empty(t, p.combinedUsername)
}

func TestSetRemoteCredentialsRejectsOverlongPassword(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")
	longPassword := strings.Repeat("p", maxRemoteCredentialLength+1)

	err := p.setRemoteCredentials("remu", longPassword)
	assert.ErrorIs(t, err, ErrInvalidRemoteUsername)
	assert.Empty(t, p.combinedUsername)
}

func TestCheckRemoteUsername(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")
	require.NoError(t, p.setRemoteCredentials("remu", "remotepassword123456789012"))

	require.NoError(t, p.checkRemoteUsername("remu:locu"))
	assert.ErrorIs(t, p.checkRemoteUsername("wrong:username"), ErrInvalidRemoteUsername)
}

func TestAddRemoteCandidatePairsAgainstLocals(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")

	base := &Base{address: TransportAddress{protocol: UDP, ip: "10.0.0.1", port: 5000, family: IPv4}, component: 1}
	p.addLocalCandidate(makeHostCandidate("0", base))

	err := p.addRemoteCandidate("candidate:abcd1234 1 udp 100 192.168.1.1 6000 typ host")
	require.NoError(t, err)

	assert.Len(t, p.remoteCandidates, 1)
	p.checklist.mutex.Lock()
	pairs := len(p.checklist.pairs)
	p.checklist.mutex.Unlock()
	assert.Equal(t, 1, pairs)
}

func TestLocalCandidateLines(t *testing.T) {
	p := newPeer("0", "locu", "localpassword123456789012")
	base := &Base{address: TransportAddress{protocol: UDP, ip: "10.0.0.1", port: 5000, family: IPv4}, component: 1}
	p.addLocalCandidate(makeHostCandidate("0", base))

	lines := p.localCandidateLines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "typ host")
}
