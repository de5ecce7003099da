package ice

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	// Packets larger than the maximum transmission unit (MTU) of a path are
	// fragmented or dropped. The MTU should be discovered, but 1500 is
	// typically a safe value.
	sizeMaximumTransmissionUnit = 1500

	// Timeout for querying a STUN/TURN server.
	timeoutQuerySTUNServer = 5 * time.Second

	// Timeout for reads from a base (i.e. its UDPConn). STUN re-bindings
	// are sent every 2500ms by some browsers, so this stays comfortably
	// above that.
	timeoutReadFromBase = 5 * time.Second
)

// [RFC8445] defines a base to be "The transport address that an ICE agent
// sends from for a particular candidate." It is represented here by a UDP
// connection listening on a single port.
type Base struct {
	net.PacketConn

	address   TransportAddress
	component int
	sdpMid    string

	// STUN response handlers for transactions sent from this base, keyed
	// by transaction ID.
	handlers transactionHandlers

	// Single-fire channel used to indicate that the read loop has died.
	dead chan struct{}

	// Error that caused the read loop to terminate.
	err error
}

type stunHandler func(msg *stunMessage, addr net.Addr, base *Base)

// initializeBases creates a base for each non-loopback, up interface
// address, skipping IPv6 unless explicitly enabled.
func initializeBases(component int, sdpMid string) (bases []*Base, err error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return
	}
	for _, iface := range ifaces {
		log.Debug("Interface %d: %s (%s)\n", iface.Index, iface.Name, iface.Flags)
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagUp == 0 {
			continue
		}

		var addrs []net.Addr
		addrs, err = iface.Addrs()
		if err != nil {
			return
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				log.Error("Unexpected address type: %T", addr)
				continue
			}

			ip := ipnet.IP
			if !flagEnableIPv6 {
				if ip4 := ip.To4(); ip4 == nil {
					continue
				}
			}

			base, err := createBase(ip, component, sdpMid)
			if err != nil {
				// Can happen for link-local IPv6 addresses; just skip it.
				log.Debug("Failed to create base for %s: %s\n", ip, err)
				continue
			}
			bases = append(bases, base)
		}
	}
	return
}

func createBase(ip net.IP, component int, sdpMid string) (*Base, error) {
	listenAddr := &net.UDPAddr{IP: ip, Port: 0}
	conn, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return nil, err
	}

	address := makeTransportAddress(conn.LocalAddr())
	log.Info("Listening on %s\n", address)

	return &Base{
		PacketConn: conn,
		address:    address,
		component:  component,
		sdpMid:     sdpMid,
	}, nil
}

// gatherAllCandidates gathers host, server-reflexive, and (if a TURN server
// is configured) relayed candidates for each base. Blocks until gathering
// is complete.
func gatherAllCandidates(ctx context.Context, mid string, bases []*Base, servers []ICEServer, take func(c Candidate)) {
	var wg sync.WaitGroup
	for _, b := range bases {
		wg.Add(1)
		go func(base *Base) {
			defer wg.Done()
			base.gatherCandidates(ctx, mid, servers, take)
		}(b)
	}
	wg.Wait()
}

// gatherCandidates gathers host, server-reflexive, and relayed candidates
// for this base.
func (base *Base) gatherCandidates(ctx context.Context, mid string, servers []ICEServer, take func(c Candidate)) {
	log.Debug("Gathering local candidates for base %s\n", base.address)
	take(makeHostCandidate(mid, base))

	if base.address.protocol != UDP || base.address.linkLocal {
		return
	}

	for _, server := range servers {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if server.isTurn() {
			if server.Transport == "tcp" {
				// This controller only ever dials its bases over UDP; a TURN
				// server configured for TCP transport has no matching socket
				// to relay through.
				log.Debug("Skipping TCP-transport TURN server %s: only UDP relays are dialed\n", server.hostport())
				continue
			}
			alloc, err := base.allocateRelay(ctx, server)
			if err != nil {
				log.Warn("TURN allocate against %s failed for base %s: %s\n", server.hostport(), base.address, err)
				continue
			}
			take(makeRelayedCandidate(mid, alloc.relayed, base, server.hostport()))
			go base.keepRelayFresh(ctx, server, alloc)
			continue
		}

		mapped, err := base.queryStunServer(ctx, server.hostport())
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err != nil {
			log.Debug("Failed to create STUN server candidate for base %s: %s\n", base.address, err)
		} else if mapped == base.address {
			log.Debug("Server-reflexive address for %s is same as base\n", base.address)
		} else {
			take(makeServerReflexiveCandidate(mid, mapped, base, server.hostport()))
		}
	}
}

// queryStunServer returns the server-reflexive address of this base.
func (base *Base) queryStunServer(ctx context.Context, stunServer string) (mapped TransportAddress, err error) {
	stunServerAddr, err := net.ResolveUDPAddr("udp", stunServer)
	if err != nil {
		return
	}

	req := newStunBindingRequest("")
	log.Debug("Sending to %s: %s\n", stunServer, req)

	errCh := make(chan error, 1)
	err = base.sendStun(req, stunServerAddr, func(resp *stunMessage, raddr net.Addr, base *Base) {
		if resp.class == stunSuccessResponse {
			if addr := resp.getMappedAddress(); addr != nil {
				mapped = makeTransportAddress(addr)
				errCh <- nil
				return
			}
		}
		errCh <- fmt.Errorf("STUN server query failed: %s", resp)
	})
	if err != nil {
		return
	}

	select {
	case err = <-errCh:
	case <-ctx.Done():
		err = ctx.Err()
	case <-time.After(timeoutQuerySTUNServer):
		err = fmt.Errorf("ice: STUN query to %s timed out", stunServer)
	}

	base.handlers.remove(req.transactionID)
	return
}

// sendStun sends a STUN message to the given remote address. If a handler
// is supplied, it is registered to process the response by transaction ID.
func (base *Base) sendStun(msg *stunMessage, raddr net.Addr, responseHandler stunHandler) error {
	_, err := base.WriteTo(msg.Bytes(), raddr)
	if err == nil && responseHandler != nil {
		base.handlers.put(msg.transactionID, responseHandler)
	}
	return err
}

// classifyPacket implements the [RFC7983 §7] demultiplexing rule this
// controller needs: the top two bits of the first byte distinguish STUN
// (00) from everything this controller treats as application data (01 TURN
// ChannelData, 10/11 unused here but passed through unchanged).
func classifyPacket(data []byte) bool {
	if len(data) < 1 {
		return false
	}
	return data[0]&0xC0 == 0x00
}

// readLoop reads incoming packets from the underlying PacketConn until an
// error occurs. STUN messages are dispatched to defaultHandler (or a
// transaction-specific handler); everything else is forwarded to dataIn.
func (base *Base) readLoop(defaultHandler stunHandler, dataIn chan []byte) {
	if base.dead != nil {
		panic("ice: base read loop already started")
	}

	base.dead = make(chan struct{})
	defer close(base.dead)

	buf := make([]byte, sizeMaximumTransmissionUnit)

	var logOnce sync.Once
	for {
		base.SetReadDeadline(time.Now().Add(timeoutReadFromBase))

		n, raddr, err := base.ReadFrom(buf)
		if err != nil {
			if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
				log.Debug("Connection timed out: %s\n", base.address)
				base.err = errReadTimeout
				break
			}
			if operr, ok := err.(*net.OpError); ok && operr.Op == "read" {
				log.Debug("Connection closed while reading: %s\n", base.address)
				break
			}
			log.Warn("Read error in %s: %v\n", base.address, err)
			base.err = err
			break
		}

		data := make([]byte, n)
		copy(data, buf[0:n])

		if classifyPacket(data) {
			msg, err := parseStunMessage(data)
			if err != nil {
				log.Warn("Malformed STUN message from %s: %s\n", raddr, err)
				continue
			}
			if msg != nil {
				log.Debug("Received from %s: %s\n", raddr, msg)
				handler := base.handlers.get(msg.transactionID, defaultHandler)
				handler(msg, raddr, base)
			}
		} else {
			select {
			case dataIn <- data:
			default:
				logOnce.Do(func() {
					log.Warn("Dropping data packet (first byte %x) because reader cannot keep up", data[0])
				})
			}
		}
	}
}

// transactionHandlers manages a map of STUN transaction ID -> stunHandler.
// When an outgoing STUN request is made, a handler can be registered for
// processing the remote peer's STUN response.
type transactionHandlers struct {
	sync.Mutex
	m map[string]stunHandler
}

func (t *transactionHandlers) get(transactionID string, def stunHandler) stunHandler {
	t.lockAndInitialize()
	handler, found := t.m[transactionID]
	if found {
		delete(t.m, transactionID)
	} else {
		handler = def
	}
	t.Unlock()
	return handler
}

func (t *transactionHandlers) put(transactionID string, handler stunHandler) {
	t.lockAndInitialize()
	t.m[transactionID] = handler
	t.Unlock()
}

func (t *transactionHandlers) remove(transactionID string) {
	t.lockAndInitialize()
	delete(t.m, transactionID)
	t.Unlock()
}

func (t *transactionHandlers) lockAndInitialize() {
	t.Lock()
	if t.m == nil {
		t.m = make(map[string]stunHandler)
	}
}
