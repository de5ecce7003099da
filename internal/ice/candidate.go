package ice

import (
	"encoding/base32"
	"fmt"
	"hash/fnv"
	"net"
	"strconv"
	"strings"
)

// An ICE candidate (either local or remote).
// See [RFC8445 §5.3] for a definition of fields.
type Candidate struct {
	// The peer session that this candidate belongs to.
	mid string

	address    TransportAddress
	typ        string
	priority   uint32
	foundation string
	component  int
	attrs      []Attribute // Extension attributes

	base *Base // nil for remote candidates
}

type Attribute struct {
	name  string
	value string
}

const (
	hostType  = "host"
	srflxType = "srflx"
	prflxType = "prflx"
	relayType = "relay"
)

func makeHostCandidate(mid string, base *Base) Candidate {
	return Candidate{
		mid:        mid,
		address:    base.address,
		typ:        hostType,
		priority:   computePriority(hostType, base.component),
		foundation: computeFoundation(hostType, base.address, ""),
		component:  base.component,
		base:       base,
	}
}

func makeServerReflexiveCandidate(mid string, mapped TransportAddress, base *Base, stunServer string) Candidate {
	c := Candidate{
		mid:        mid,
		address:    mapped,
		typ:        srflxType,
		priority:   computePriority(srflxType, base.component),
		foundation: computeFoundation(srflxType, base.address, stunServer),
		component:  base.component,
		base:       base,
	}
	// [RFC5245 §15.1] requires raddr/rport. This is enforced by some browsers.
	c.addAttribute("raddr", "0.0.0.0")
	c.addAttribute("rport", "0")
	return c
}

func makeRelayedCandidate(mid string, relayed TransportAddress, base *Base, turnServer string) Candidate {
	c := Candidate{
		mid:        mid,
		address:    relayed,
		typ:        relayType,
		priority:   computePriority(relayType, base.component),
		foundation: computeFoundation(relayType, base.address, turnServer),
		component:  base.component,
		base:       base,
	}
	c.addAttribute("raddr", base.address.ip)
	c.addAttribute("rport", strconv.Itoa(base.address.port))
	return c
}

func makePeerReflexiveCandidate(mid string, addr net.Addr, base *Base, priority uint32) Candidate {
	ta := makeTransportAddress(addr)
	c := Candidate{
		mid:        mid,
		address:    ta,
		typ:        prflxType,
		priority:   priority,
		foundation: computeFoundation(prflxType, ta, ""),
		component:  base.component,
		base:       base,
	}
	c.addAttribute("raddr", "0.0.0.0")
	c.addAttribute("rport", "0")
	return c
}

// [RFC8445 §5.1.2] Prioritizing Candidates
func computePriority(typ string, component int) uint32 {
	// [RFC8445 §5.1.2.1] recommends strict preference order
	// host > peer-reflexive > server-reflexive > relayed.
	var typePref int
	switch typ {
	case hostType:
		typePref = 126
	case prflxType:
		typePref = 110
	case srflxType:
		typePref = 100
	case relayType:
		typePref = 0
	default:
		panic("ice: illegal candidate type: " + typ)
	}

	// A single local IP address is assumed; ties are broken by component only.
	localPref := 65535

	return uint32((typePref << 24) + (localPref << 8) + (256 - component))
}

// [RFC8445 §5.1.1.3] The foundation must be unique for each tuple of
//
//	(candidate type, base IP address, protocol, STUN/TURN server)
func computeFoundation(typ string, baseAddress TransportAddress, server string) string {
	fingerprint := fmt.Sprintf("%s/%s/%s", typ, baseAddress.protocol, baseAddress.ip)
	if server != "" {
		fingerprint += "/" + server
	}
	hash := fnv.New64()
	hash.Write([]byte(fingerprint))
	return base32.StdEncoding.EncodeToString(hash.Sum(nil))[0:8]
}

func (c *Candidate) addAttribute(name, value string) {
	c.attrs = append(c.attrs, Attribute{name, value})
}

func (c *Candidate) isReflexive() bool {
	return c.typ == srflxType || c.typ == prflxType
}

// peerPriority computes the priority of this candidate as if it were
// peer-reflexive, for use in outgoing connectivity checks.
func (c *Candidate) peerPriority() uint32 {
	return computePriority(prflxType, c.component)
}

func (c *Candidate) sdpString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "candidate:%s %d %s %d %s %d typ %s",
		c.foundation, c.component, c.address.protocol, c.priority, c.address.ip, c.address.port, c.typ)
	for _, a := range c.attrs {
		fmt.Fprintf(&b, " %s %s", a.name, a.value)
	}
	return b.String()
}

func (c *Candidate) Mid() string {
	return c.mid
}

func (c Candidate) String() string {
	return c.sdpString()
}

// ParseCandidate parses an ICE candidate attribute line, of the form
//
//	candidate:{foundation} {component-id} {protocol} {priority} {address} {port} typ {type} ...
//
// See https://tools.ietf.org/html/draft-ietf-mmusic-ice-sip-sdp-24#section-4.1.
// The deserializer walks the fixed-order fields foundation, component,
// protocol, priority, address, port, and type, then falls through to the
// free-form "name value" attribute pairs that may follow — mirroring the
// eight-state walk (foundation/component/protocol/priority/ip/port/type-id/
// type-value) this wire format has always used.
func ParseCandidate(desc, mid string) (Candidate, error) {
	c := Candidate{mid: mid}
	if err := parseCandidateSDP(desc, &c); err != nil {
		return Candidate{}, err
	}
	return c, nil
}

// candidateTokenCount is the number of fixed-order, space-delimited tokens
// {foundation, component, protocol, priority, ip, port, "typ", type-value}
// that must precede any free-form extension attributes (raddr, rport, ...).
const candidateTokenCount = 8

func parseCandidateSDP(desc string, c *Candidate) error {
	const prefix = "candidate:"
	if !strings.HasPrefix(desc, prefix) {
		return fmt.Errorf("ice: candidate line missing %q prefix", prefix)
	}

	fields := strings.Fields(strings.TrimPrefix(desc, prefix))
	if len(fields) < candidateTokenCount {
		return fmt.Errorf("%w: candidate line has %d of %d required fields", ErrLackOfElement, len(fields), candidateTokenCount)
	}

	c.foundation = fields[0]

	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("ice: invalid component %q: %w", fields[1], err)
	}
	c.component = component
	if c.component < 1 || c.component > 256 {
		return fmt.Errorf("ice: component ID out of range: %d", c.component)
	}

	protocol := fields[2]

	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return fmt.Errorf("ice: invalid priority %q: %w", fields[3], err)
	}
	c.priority = uint32(priority)

	ip := fields[4]
	port := fields[5]

	if fields[6] != "typ" {
		return fmt.Errorf("ice: expected \"typ\" at field 7, got %q", fields[6])
	}
	c.typ = fields[7]
	switch c.typ {
	case hostType, srflxType, prflxType, relayType:
	default:
		return ErrUnsupportedCandidateType
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("ice: invalid port %q: %w", port, err)
	}

	network := strings.ToLower(protocol)
	addr, err := resolveAddr(network, net.JoinHostPort(ip, port))
	if err != nil {
		return err
	}
	c.address = makeTransportAddress(addr)
	c.address.port = portNum

	// Trailing tokens are "name value" extension attribute pairs (e.g.
	// raddr, rport); accepted and preserved, not interpreted.
	extra := fields[candidateTokenCount:]
	if len(extra)%2 != 0 {
		return fmt.Errorf("ice: unmatched attribute name: %s", extra[len(extra)-1])
	}
	for i := 0; i < len(extra); i += 2 {
		c.addAttribute(extra[i], extra[i+1])
	}

	return nil
}
