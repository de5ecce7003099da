package ice

import (
	"context"
	"crypto/md5"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLongTermCredentialKey(t *testing.T) {
	want := md5.Sum([]byte("alice:example.org:password123"))
	got := longTermCredentialKey("alice", "example.org", "password123")
	assert.Equal(t, string(want[:]), got)
}

func TestNewTurnAllocateRequestRequestsUDPTransport(t *testing.T) {
	req := newTurnAllocateRequest("")
	attr := req.getAttribute(0x0019)
	if assert.NotNil(t, attr) {
		assert.Equal(t, byte(0x11), attr.Value[0])
	}
	assert.Equal(t, uint16(turnAllocateMethod), req.method)
	assert.Equal(t, uint16(stunRequest), req.class)
}

func TestKeepRelayFreshStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	base := &Base{address: TransportAddress{protocol: UDP, ip: "10.0.0.1", port: 5000, family: IPv4}}
	server := ICEServer{Scheme: "turn", Host: "turn.example.com", Port: 3478, Transport: "udp"}

	done := make(chan struct{})
	go func() {
		base.keepRelayFresh(ctx, server, turnAllocation{lifetime: 600 * time.Second})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("keepRelayFresh did not return promptly after context cancellation")
	}
}
