package ice

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"sync"
)

const (
	ufragLength    = 4
	passwordLength = 24

	// credentialAlphabet is the JSON-safe alphabet [A-Za-z0-9+/] the local
	// ufrag/password are drawn from.
	credentialAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789+/"

	// maxRemoteCredentialLength bounds the remote ufrag/password carried in
	// a session description, mirroring ICE_MAX_CONFIG_USER_NAME_LEN /
	// ICE_MAX_CONFIG_CREDENTIAL_LEN (256 bytes each).
	maxRemoteCredentialLength = 256
)

// Peer is one remote endpoint's ICE session: its credentials, candidates,
// Checklist, and (once connectivity succeeds) its data connection. A
// Controller manages one Peer per remote viewer.
type Peer struct {
	mid string

	localUfrag    string
	localPassword string

	remoteUfrag    string
	remotePassword string

	// combinedUsername is the "remoteUfrag:localUfrag" fragment this peer's
	// checklist expects on inbound STUN Binding requests, and sends on
	// outbound ones, per [RFC8445 §7.1.1].
	combinedUsername string

	mutex            sync.Mutex
	remoteCandidates []Candidate
	localCandidates  []Candidate

	checklist *Checklist

	dataConn *ChannelConn
	dataIn   chan []byte

	ready chan *ChannelConn
}

// newPeer creates a Peer sharing the controller's local ufrag/password — per
// the data model, a peer session's local credentials are "shared with
// controller", not generated per peer.
func newPeer(mid, localUfrag, localPassword string) *Peer {
	return &Peer{
		mid:           mid,
		localUfrag:    localUfrag,
		localPassword: localPassword,
		dataIn:        make(chan []byte, 16),
		ready:         make(chan *ChannelConn, 1),
		checklist: &Checklist{
			localPassword: localPassword,
			// This agent nominates the selected pair once checks succeed,
			// i.e. it starts out controlling; a role conflict with a peer
			// that also claims controlling flips this per [RFC8445 §7.3.1.1].
			controlling: true,
			tieBreaker:  randomTieBreaker(),
		},
	}
}

// randomTieBreaker draws the 64-bit value [RFC8445 §16] ICE role conflicts
// are resolved by comparison against the remote agent's own tie-breaker.
func randomTieBreaker() uint64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand failing is a process-fatal condition this controller
		// has no sane fallback for; a zero tie-breaker would just always
		// lose role conflicts, silently corrupting nomination.
		panic("ice: failed to generate ICE tie-breaker: " + err.Error())
	}
	return binary.BigEndian.Uint64(buf[:])
}

func randomCredential(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = credentialAlphabet[int(b)%len(credentialAlphabet)]
	}
	return string(out), nil
}

// setRemoteCredentials attaches the remote ufrag/password carried in the
// remote session description, and derives the combined username both sides
// use on the wire. Returns ErrInvalidRemoteUsername if either credential
// exceeds maxRemoteCredentialLength.
func (p *Peer) setRemoteCredentials(ufrag, password string) error {
	if len(ufrag) > maxRemoteCredentialLength {
		return fmt.Errorf("%w: remote ufrag is %d bytes, exceeds %d", ErrInvalidRemoteUsername, len(ufrag), maxRemoteCredentialLength)
	}
	if len(password) > maxRemoteCredentialLength {
		return fmt.Errorf("%w: remote password is %d bytes, exceeds %d", ErrInvalidRemoteUsername, len(password), maxRemoteCredentialLength)
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.remoteUfrag = ufrag
	p.remotePassword = password
	p.combinedUsername = p.remoteUfrag + ":" + p.localUfrag

	p.checklist.username = p.combinedUsername
	p.checklist.remotePassword = password
	return nil
}

// addRemoteCandidate parses and stores a trickled remote candidate, then
// pairs it against every known local candidate.
func (p *Peer) addRemoteCandidate(desc string) error {
	c, err := ParseCandidate(desc, p.mid)
	if err != nil {
		return err
	}

	p.mutex.Lock()
	p.remoteCandidates = append(p.remoteCandidates, c)
	locals := append([]Candidate(nil), p.localCandidates...)
	p.mutex.Unlock()

	p.checklist.addCandidatePairs(locals, []Candidate{c})
	return nil
}

// addLocalCandidate stores a newly gathered local candidate and pairs it
// against every known remote candidate.
func (p *Peer) addLocalCandidate(c Candidate) {
	p.mutex.Lock()
	p.localCandidates = append(p.localCandidates, c)
	remotes := append([]Candidate(nil), p.remoteCandidates...)
	p.mutex.Unlock()

	p.checklist.addCandidatePairs([]Candidate{c}, remotes)
}

// localCandidateLines returns this peer's gathered local candidates as SDP
// attribute lines, for inclusion in an outgoing offer/answer.
func (p *Peer) localCandidateLines() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	lines := make([]string, len(p.localCandidates))
	for i, c := range p.localCandidates {
		lines[i] = c.sdpString()
	}
	return lines
}

// run starts this peer's checklist and waits for a candidate pair to be
// selected, at which point it hands back a ChannelConn bound to that pair.
func (p *Peer) run(ctx context.Context) {
	go p.checklist.run(ctx)

	lid, stateCh := p.checklist.addListener()
	defer p.checklist.removeListener(lid)

	for {
		select {
		case <-ctx.Done():
			return
		case state := <-stateCh:
			if state != checklistCompleted {
				continue
			}
			sel := p.checklist.selected
			if sel == nil {
				continue
			}
			conn := p.bindDataConn(sel)
			select {
			case p.ready <- conn:
			default:
			}
			return
		}
	}
}

// bindDataConn constructs the ChannelConn for the selected pair, wiring
// writes straight back into that pair's base.
func (p *Peer) bindDataConn(pair *CandidatePair) *ChannelConn {
	out := make(chan []byte, 16)
	base := pair.local.base
	raddr := pair.remote.address.netAddr()

	go func() {
		for {
			select {
			case buf, ok := <-out:
				if !ok {
					return
				}
				if _, err := base.WriteTo(buf, raddr); err != nil {
					log.Warn("%s: data write failed: %s", p.mid, err)
					p.checklist.handleSendFailure(pair)
				}
			case <-p.dataDone():
				return
			}
		}
	}()

	conn := newChannelConn(p.dataIn, out, base.LocalAddr(), raddr)
	p.mutex.Lock()
	p.dataConn = conn
	p.mutex.Unlock()
	return conn
}

// dataDone is closed when the data connection is torn down, to stop the
// write-forwarding goroutine started in bindDataConn.
func (p *Peer) dataDone() <-chan struct{} {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if p.dataConn == nil {
		return nil
	}
	return p.dataConn.closed
}

// checkRemoteUsername validates the USERNAME attribute carried by an
// inbound STUN Binding request against the combined username this peer
// advertised.
func (p *Peer) checkRemoteUsername(username string) error {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	if username != p.combinedUsername {
		return fmt.Errorf("%w: got %q, want %q", ErrInvalidRemoteUsername, username, p.combinedUsername)
	}
	return nil
}
