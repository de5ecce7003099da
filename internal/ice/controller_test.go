package ice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewControllerGeneratesCredentials(t *testing.T) {
	c, err := NewController(Config{Region: "us-west-2"})
	require.NoError(t, err)

	assert.Len(t, c.localUfrag, ufragLength)
	assert.Len(t, c.localPassword, passwordLength)
	assert.NotEmpty(t, c.servers)
	assert.Equal(t, "stun.kinesisvideo.us-west-2.amazonaws.com", c.servers[0].Host)
}

func TestNewControllerCredentialsDifferPerInstance(t *testing.T) {
	a, err := NewController(Config{Region: "us-west-2"})
	require.NoError(t, err)
	b, err := NewController(Config{Region: "us-west-2"})
	require.NoError(t, err)

	assert.NotEqual(t, a.localUfrag, b.localUfrag)
	assert.NotEqual(t, a.localPassword, b.localPassword)
}

func TestNewControllerDefaultsRegionTLD(t *testing.T) {
	c, err := NewController(Config{Region: "cn-north-1"})
	require.NoError(t, err)
	assert.Equal(t, "stun.kinesisvideo.cn-north-1.amazonaws.com.cn", c.servers[0].Host)
}

func TestAddRemoteCandidateUnknownClient(t *testing.T) {
	c, err := NewController(Config{Region: "us-west-2"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	err = c.AddRemoteCandidate("nonexistent", "candidate:abc 1 udp 100 1.2.3.4 1000 typ host")
	assert.Error(t, err)
}

func TestAddRemoteCandidateQueueFull(t *testing.T) {
	c, err := NewController(Config{Region: "us-west-2"})
	require.NoError(t, err)

	// No Run loop draining the queue: fill it past capacity.
	for i := 0; i < commandQueueCapacity; i++ {
		c.cmdQueue <- connectivityTickCmd{}
	}

	done := make(chan error, 1)
	go func() { done <- c.AddRemoteCandidate("x", "candidate:abc 1 udp 100 1.2.3.4 1000 typ host") }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrQueueFull)
	case <-time.After(time.Second):
		t.Fatal("AddRemoteCandidate should not block when queue is full")
	}
}

func TestGetOrCreatePeerRespectsMaxPeers(t *testing.T) {
	c, err := NewController(Config{Region: "us-west-2", MaxPeers: 1})
	require.NoError(t, err)

	_, created, err := c.getOrCreatePeer("peer-a")
	require.NoError(t, err)
	assert.True(t, created)

	_, _, err = c.getOrCreatePeer("peer-b")
	assert.ErrorIs(t, err, ErrExceedRemotePeer)

	// Re-fetching the same peer never hits the limit.
	_, created, err = c.getOrCreatePeer("peer-a")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRemovePeerFreesSlot(t *testing.T) {
	c, err := NewController(Config{Region: "us-west-2", MaxPeers: 1})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	peer, created, err := c.getOrCreatePeer("peer-a")
	require.NoError(t, err)
	require.True(t, created)
	require.NotNil(t, peer)

	require.NoError(t, c.RemovePeer("peer-a"))

	require.Eventually(t, func() bool {
		c.mutex.Lock()
		defer c.mutex.Unlock()
		_, ok := c.peers["peer-a"]
		return !ok
	}, time.Second, 10*time.Millisecond)

	_, created, err = c.getOrCreatePeer("peer-a")
	require.NoError(t, err)
	assert.True(t, created)
}
