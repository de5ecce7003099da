package ice

import (
	"context"
	"crypto/md5"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
)

// TURN (Traversal Using Relays around NAT, RFC 8656) long-term-credential
// Allocate/Refresh, built on the same hand-rolled STUN codec the rest of
// the candidate gatherer uses (see stun.go).

const (
	turnDefaultLifetime = 600 * time.Second
	timeoutAllocate     = 5 * time.Second

	// turnRefreshFraction is the portion of an allocation's lifetime this
	// controller waits before sending a Refresh, leaving headroom for the
	// round trip itself.
	turnRefreshFraction = 0.8
)

// turnAllocation is the state an Allocate handshake hands back: the relayed
// transport address plus the realm/nonce/lifetime a subsequent Refresh
// needs to extend it.
type turnAllocation struct {
	relayed  TransportAddress
	realm    string
	nonce    string
	lifetime time.Duration
}

// allocateRelay performs the long-term-credential TURN Allocate handshake
// against server and returns the relayed transport address. A first
// Allocate without credentials is expected to be challenged with a 401
// (REALM/NONCE); the second Allocate carries a USERNAME/REALM/NONCE and a
// MESSAGE-INTEGRITY computed over the long-term-credential key.
func (base *Base) allocateRelay(ctx context.Context, server ICEServer) (turnAllocation, error) {
	serverAddr, err := net.ResolveUDPAddr("udp", server.hostport())
	if err != nil {
		return turnAllocation{}, errors.Wrapf(err, "resolving TURN server %s", server.hostport())
	}

	resp, err := base.turnRoundTrip(ctx, serverAddr, newTurnAllocateRequest(""), server)
	if err != nil {
		return turnAllocation{}, err
	}

	var realm, nonce string
	if resp.class == stunErrorResponse && resp.getErrorCode() == 401 {
		realm, nonce = resp.getRealm(), resp.getNonce()
		req := newTurnAllocateRequest("")
		req.addAttribute(stunAttrUsername, []byte(server.Username))
		req.addAttribute(stunAttrRealm, []byte(realm))
		req.addAttribute(stunAttrNonce, []byte(nonce))
		req.addLifetime(uint32(turnDefaultLifetime.Seconds()))
		req.addMessageIntegrity(longTermCredentialKey(server.Username, realm, server.Password))
		req.addFingerprint()

		resp, err = base.turnRoundTrip(ctx, serverAddr, req, server)
		if err != nil {
			return turnAllocation{}, err
		}
	}

	if resp.class != stunSuccessResponse {
		return turnAllocation{}, fmt.Errorf("ice: TURN allocate failed with error %d", resp.getErrorCode())
	}

	relayed := resp.getRelayedAddress()
	if relayed == nil {
		return turnAllocation{}, fmt.Errorf("%w: TURN allocate response missing XOR-RELAYED-ADDRESS", ErrMalformedMessage)
	}

	lifetime := turnDefaultLifetime
	if secs, ok := resp.getLifetime(); ok {
		lifetime = time.Duration(secs) * time.Second
	}

	return turnAllocation{
		relayed:  makeTransportAddress(relayed),
		realm:    realm,
		nonce:    nonce,
		lifetime: lifetime,
	}, nil
}

// keepRelayFresh refreshes a TURN allocation before its lifetime expires,
// for as long as ctx (the owning peer session) remains alive. It returns
// once ctx is cancelled or a Refresh fails outright; the relayed candidate
// is left to expire at the server in that case.
func (base *Base) keepRelayFresh(ctx context.Context, server ICEServer, alloc turnAllocation) {
	lifetime := alloc.lifetime
	if lifetime <= 0 {
		lifetime = turnDefaultLifetime
	}
	realm, nonce := alloc.realm, alloc.nonce

	for {
		wait := time.Duration(float64(lifetime) * turnRefreshFraction)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		if err := base.refreshAllocation(ctx, server, lifetime, realm, nonce); err != nil {
			log.Warn("TURN refresh against %s failed for base %s: %s\n", server.hostport(), base.address, err)
			return
		}
	}
}

// refreshAllocation extends an existing TURN allocation's lifetime. A
// lifetime of 0 instead tears the allocation down immediately.
func (base *Base) refreshAllocation(ctx context.Context, server ICEServer, lifetime time.Duration, realm, nonce string) error {
	serverAddr, err := net.ResolveUDPAddr("udp", server.hostport())
	if err != nil {
		return errors.Wrapf(err, "resolving TURN server %s", server.hostport())
	}

	req := newStunMessage(stunRequest, turnRefreshMethod, "")
	req.addAttribute(stunAttrUsername, []byte(server.Username))
	req.addAttribute(stunAttrRealm, []byte(realm))
	req.addAttribute(stunAttrNonce, []byte(nonce))
	req.addLifetime(uint32(lifetime.Seconds()))
	req.addMessageIntegrity(longTermCredentialKey(server.Username, realm, server.Password))
	req.addFingerprint()

	resp, err := base.turnRoundTrip(ctx, serverAddr, req, server)
	if err != nil {
		return err
	}
	if resp.class != stunSuccessResponse {
		return fmt.Errorf("ice: TURN refresh failed with error %d", resp.getErrorCode())
	}
	return nil
}

func (base *Base) turnRoundTrip(ctx context.Context, serverAddr net.Addr, req *stunMessage, server ICEServer) (*stunMessage, error) {
	respCh := make(chan *stunMessage, 1)
	err := base.sendStun(req, serverAddr, func(resp *stunMessage, raddr net.Addr, b *Base) {
		respCh <- resp
	})
	if err != nil {
		return nil, errors.Wrap(err, "sending TURN request")
	}

	select {
	case resp := <-respCh:
		return resp, nil
	case <-ctx.Done():
		base.handlers.remove(req.transactionID)
		return nil, ctx.Err()
	case <-time.After(timeoutAllocate):
		base.handlers.remove(req.transactionID)
		return nil, fmt.Errorf("ice: TURN request to %s timed out", serverAddr)
	}
}

func newTurnAllocateRequest(transactionID string) *stunMessage {
	msg := newStunMessage(stunRequest, turnAllocateMethod, transactionID)
	// UDP transport, RFC 8656 §9.1.
	msg.addAttribute(0x0019, []byte{0x11, 0x00, 0x00, 0x00})
	return msg
}

// longTermCredentialKey computes the key used for the long-term-credential
// MESSAGE-INTEGRITY over TURN/STUN requests: MD5(username ":" realm ":" password).
// RFC 5389 §15.4 defines this key derivation for long-term credentials;
// MD5 is mandated by the spec for this purpose, not chosen for strength.
func longTermCredentialKey(username, realm, password string) string {
	sum := md5.Sum([]byte(username + ":" + realm + ":" + password))
	return string(sum[:])
}
