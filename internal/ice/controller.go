package ice

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const (
	// component is the RTP component ID this controller negotiates. A
	// second component (RTCP) is out of scope — see spec Non-goals.
	component = 1

	// commandQueueCapacity bounds the cross-thread command queue: the
	// controller's single event loop is the only place peer/controller
	// state is mutated from a dequeued command.
	commandQueueCapacity = 10

	// connectivityCheckPeriod is unused directly by Controller.run (each
	// peer's Checklist owns its own ticker, see checklist.go) but documents
	// the period the source's command queue would have posted
	// ConnectivityCheckTick at.
	connectivityCheckPeriod = 50 * time.Millisecond

	// idleCeiling bounds how long Controller.run can go without observing
	// any readiness, mirroring the 500ms poll(2) ceiling of the scheduling
	// model this controller's loop was translated from.
	idleCeiling = 500 * time.Millisecond

	defaultMaxPeers = 10
)

// command is the tagged-union of work items the command queue carries.
// Dispatch in Controller.run is a type-switch, not per-variant interface
// methods.
type command interface{}

type addRemoteCandidateCmd struct {
	clientID string
	desc     string
	done     chan error
}

type connectivityTickCmd struct{}

type removePeerCmd struct {
	clientID string
}

// Signaler is the external collaborator this controller pushes outbound
// signaling messages through. A concrete implementation lives in
// internal/signaling; this interface is the seam spec.md's "external
// collaborator" leaves for it.
type Signaler interface {
	Send(ctx context.Context, kind, receiverID string, payload interface{}) error
}

// Controller is the ICE controller core: it owns the event loop, the
// bounded command queue, the per-peer table, and the shared local
// credentials every peer session negotiates with.
type Controller struct {
	region  string
	servers []ICEServer
	signal  Signaler

	localUfrag    string
	localPassword string

	maxPeers int

	mutex      sync.Mutex
	peers      map[string]*Peer
	bases      map[string][]*Base            // per-peer bases, keyed by clientID
	peerCancel map[string]context.CancelFunc // per-peer teardown, keyed by clientID

	cmdQueue chan command

	stopOnce sync.Once
	stopped  chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// Config supplies the process-level parameters a Controller needs at Init
// time: region (for the default STUN server), additional ICE servers, and
// the maximum number of concurrent peer sessions.
type Config struct {
	Region   string
	Servers  []ICEServer
	MaxPeers int
}

// NewController allocates a Controller and generates its local ufrag and
// password. Credentials are regenerated every time a new Controller is
// constructed, i.e. at every session start, rather than reused.
func NewController(cfg Config) (*Controller, error) {
	ufrag, err := randomCredential(ufragLength)
	if err != nil {
		return nil, errors.Wrap(err, "generating local ufrag")
	}
	password, err := randomCredential(passwordLength)
	if err != nil {
		return nil, errors.Wrap(err, "generating local password")
	}

	maxPeers := cfg.MaxPeers
	if maxPeers <= 0 {
		maxPeers = defaultMaxPeers
	}

	servers := append([]ICEServer{}, cfg.Servers...)
	if len(servers) == 0 || servers[0].Host == "" {
		uri := defaultStunServerURL(cfg.Region)
		if flagStunServer != defaultStunServer {
			// SetDefaultStunServer was called: it overrides the
			// region-derived default for every subsequent Controller.
			uri = flagStunServer
		}
		def, err := parseICEServerURI(uri)
		if err != nil {
			return nil, err
		}
		servers = append([]ICEServer{def}, servers...)
	}

	return &Controller{
		region:        cfg.Region,
		servers:       servers,
		localUfrag:    ufrag,
		localPassword: password,
		maxPeers:      maxPeers,
		peers:         make(map[string]*Peer),
		bases:         make(map[string][]*Base),
		peerCancel:    make(map[string]context.CancelFunc),
		cmdQueue:      make(chan command, commandQueueCapacity),
		stopped:       make(chan struct{}),
	}, nil
}

// Init attaches the signaling collaborator this controller pushes outbound
// messages through. ICE-server host names are resolved synchronously here
// (the only blocking step besides the event loop's readiness wait) so later
// candidate gathering never pays DNS latency mid-session.
func (c *Controller) Init(ctx context.Context, signal Signaler) error {
	c.signal = signal
	for i, s := range c.servers {
		if _, err := resolveAddr("udp", s.hostport()); err != nil {
			return errors.Wrapf(err, "resolving ICE server %s", s.hostport())
		}
		c.servers[i] = s
	}
	return nil
}

// Run blocks, servicing the command queue until ctx is cancelled or Stop is
// called. Exactly one Controller should call Run.
func (c *Controller) Run(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	idle := time.NewTimer(idleCeiling)
	defer idle.Stop()

	for {
		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(idleCeiling)

		select {
		case <-c.ctx.Done():
			return nil

		case <-c.stopped:
			return nil

		case cmd, ok := <-c.cmdQueue:
			if !ok {
				return nil
			}
			c.dispatch(cmd)

		case <-idle.C:
			// No readiness within the ceiling; loop back around. Peer
			// checklists and base readers run on their own goroutines, so
			// this is just a liveness heartbeat for the command queue.
		}
	}
}

func (c *Controller) dispatch(cmd command) {
	switch v := cmd.(type) {
	case addRemoteCandidateCmd:
		err := c.handleAddRemoteCandidate(v.clientID, v.desc)
		if v.done != nil {
			v.done <- err
		}
	case connectivityTickCmd:
		log.Debug("connectivity tick command observed; checklists self-schedule")
	case removePeerCmd:
		c.removePeer(v.clientID)
	default:
		log.Warn("ice: unknown command type %T", cmd)
	}
}

// Stop cancels the event loop. Safe to call more than once.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopped)
		if c.cancel != nil {
			c.cancel()
		}
	})
}

// Deinit tears down every peer session and releases their sockets. Errors
// are accumulated per peer but do not prevent the remaining peers from
// being torn down.
func (c *Controller) Deinit() error {
	c.mutex.Lock()
	clientIDs := make([]string, 0, len(c.peers))
	for id := range c.peers {
		clientIDs = append(clientIDs, id)
	}
	c.mutex.Unlock()

	for _, id := range clientIDs {
		c.removePeer(id)
	}
	return nil
}

// SetRemoteDescription implements set_remote_description: it creates the
// peer session if this is the first message referencing clientID, then
// records the remote ufrag/password and starts local candidate gathering.
func (c *Controller) SetRemoteDescription(clientID, remoteUfrag, remotePassword string) ([]string, error) {
	peer, created, err := c.getOrCreatePeer(clientID)
	if err != nil {
		return nil, err
	}
	if err := peer.setRemoteCredentials(remoteUfrag, remotePassword); err != nil {
		if created {
			c.removePeer(clientID)
		}
		return nil, err
	}

	if created {
		peerCtx, cancel := context.WithCancel(c.loopContext())
		c.mutex.Lock()
		c.peerCancel[clientID] = cancel
		c.mutex.Unlock()

		c.gatherFor(peerCtx, clientID, peer)
		go peer.run(peerCtx)
	}

	return peer.localCandidateLines(), nil
}

// LocalCredentials returns the ufrag/password every peer session shares,
// for inclusion in an outbound SDP answer.
func (c *Controller) LocalCredentials() (ufrag, password string) {
	return c.localUfrag, c.localPassword
}

// AddRemoteCandidate implements add_remote_candidate. The candidate is
// applied through the command queue, the only cross-thread mutation path,
// and returns ErrQueueFull if the queue is saturated.
func (c *Controller) AddRemoteCandidate(clientID, desc string) error {
	done := make(chan error, 1)
	select {
	case c.cmdQueue <- addRemoteCandidateCmd{clientID: clientID, desc: desc, done: done}:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-done:
		return err
	case <-c.loopContext().Done():
		return ErrClosed
	}
}

// DataConn blocks until clientID's checklist selects a candidate pair, then
// returns the net.Conn bound to it. Returns ErrNotReady if ctx is cancelled
// first, or an error if clientID names no known peer.
func (c *Controller) DataConn(ctx context.Context, clientID string) (net.Conn, error) {
	c.mutex.Lock()
	peer, ok := c.peers[clientID]
	c.mutex.Unlock()
	if !ok {
		return nil, fmt.Errorf("ice: unknown client id %q", clientID)
	}

	select {
	case conn := <-peer.ready:
		return conn, nil
	case <-ctx.Done():
		return nil, ErrNotReady
	}
}

// RemovePeer enqueues teardown of a peer session: its bases are closed, its
// checklist goroutine observes its context and exits, and its slot is freed.
func (c *Controller) RemovePeer(clientID string) error {
	select {
	case c.cmdQueue <- removePeerCmd{clientID: clientID}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (c *Controller) handleAddRemoteCandidate(clientID, desc string) error {
	c.mutex.Lock()
	peer, ok := c.peers[clientID]
	c.mutex.Unlock()
	if !ok {
		return fmt.Errorf("ice: unknown client id %q", clientID)
	}
	return peer.addRemoteCandidate(desc)
}

func (c *Controller) getOrCreatePeer(clientID string) (*Peer, bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if peer, ok := c.peers[clientID]; ok {
		return peer, false, nil
	}

	if len(c.peers) >= c.maxPeers {
		return nil, false, ErrExceedRemotePeer
	}

	peer := newPeer(clientID, c.localUfrag, c.localPassword)
	c.peers[clientID] = peer
	return peer, true, nil
}

// gatherFor gathers local candidates for clientID's bases and attaches each
// one to the peer session as it's discovered, so early candidates can be
// trickled to the remote side without waiting on the slowest STUN/TURN
// round trip.
func (c *Controller) gatherFor(ctx context.Context, clientID string, peer *Peer) {
	bases, err := initializeBases(component, clientID)
	if err != nil {
		log.Warn("%s: failed to initialize local bases: %s", clientID, err)
		return
	}

	c.mutex.Lock()
	c.bases[clientID] = bases
	c.mutex.Unlock()

	for _, base := range bases {
		go base.readLoop(c.stunRequestHandler(peer), peer.dataIn)
	}

	gatherAllCandidates(ctx, clientID, bases, c.servers, func(cand Candidate) {
		peer.addLocalCandidate(cand)
		if c.signal != nil {
			if err := c.signal.Send(ctx, "IceCandidate", clientID, cand.sdpString()); err != nil {
				log.Warn("%s: failed to trickle local candidate: %s", clientID, err)
			}
		}
	})
}

// stunRequestHandler returns the default STUN handler for a peer's bases:
// Binding requests are checked against the peer's combined username before
// being handed to its checklist, per [RFC8445 §7.3].
func (c *Controller) stunRequestHandler(peer *Peer) stunHandler {
	return func(msg *stunMessage, raddr net.Addr, base *Base) {
		if msg.class != stunRequest || msg.method != stunBindingMethod {
			log.Debug("%s: ignoring unexpected STUN message from %s", peer.mid, raddr)
			return
		}

		if attr := msg.getAttribute(stunAttrUsername); attr != nil {
			if err := peer.checkRemoteUsername(string(attr.Value)); err != nil {
				log.Debug("%s: %s", peer.mid, err)
				return
			}
		}

		peer.checklist.handleStunRequest(msg, raddr, base)
	}
}

func (c *Controller) removePeer(clientID string) {
	c.mutex.Lock()
	_, ok := c.peers[clientID]
	bases := c.bases[clientID]
	cancel := c.peerCancel[clientID]
	delete(c.peers, clientID)
	delete(c.bases, clientID)
	delete(c.peerCancel, clientID)
	c.mutex.Unlock()

	if !ok {
		return
	}

	if cancel != nil {
		cancel()
	}
	for _, base := range bases {
		base.Close()
	}
}

func (c *Controller) loopContext() context.Context {
	if c.ctx != nil {
		return c.ctx
	}
	return context.Background()
}
