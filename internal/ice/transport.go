package ice

import (
	"fmt"
	"net"
	"strings"
)

// Transport protocol names used throughout the candidate and pair tables.
const (
	UDP = "udp"
	TCP = "tcp"
)

// Address families, used to decide whether two candidates can be paired.
const (
	IPv4 = 4
	IPv6 = 6
)

// TransportAddress is the Go realization of the data model's IP endpoint:
// protocol, IP, and port, plus the family/link-local classification needed
// by the pair manager's compatibility check.
type TransportAddress struct {
	protocol  string // "tcp" or "udp"
	ip        string
	port      int
	family    int
	linkLocal bool
}

func makeTransportAddress(addr net.Addr) TransportAddress {
	var ip net.IP
	var port int
	var protocol string
	switch a := addr.(type) {
	case *net.TCPAddr:
		ip, port, protocol = a.IP, a.Port, TCP
	case *net.UDPAddr:
		ip, port, protocol = a.IP, a.Port, UDP
	default:
		panic("ice: unsupported net.Addr type: " + addr.String())
	}

	family := IPv6
	if ip.To4() != nil {
		family = IPv4
	}

	return TransportAddress{
		protocol:  protocol,
		ip:        ip.String(),
		port:      port,
		family:    family,
		linkLocal: ip.IsLinkLocalUnicast(),
	}
}

func (ta *TransportAddress) netAddr() net.Addr {
	hostport := net.JoinHostPort(ta.ip, fmt.Sprintf("%d", ta.port))
	var addr net.Addr
	switch ta.protocol {
	case TCP:
		addr, _ = net.ResolveTCPAddr("tcp", hostport)
	case UDP:
		addr, _ = net.ResolveUDPAddr("udp", hostport)
	}
	return addr
}

func (ta *TransportAddress) resolved() bool {
	return net.ParseIP(ta.ip) != nil
}

func (ta *TransportAddress) displayIP() string {
	return ta.ip
}

func (ta TransportAddress) String() string {
	host := ta.ip
	if ta.family == IPv6 {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s/%s:%d", ta.protocol, host, ta.port)
}

func resolveAddr(network, address string) (net.Addr, error) {
	switch strings.ToLower(network) {
	case TCP:
		return net.ResolveTCPAddr(network, address)
	case UDP:
		return net.ResolveUDPAddr(network, address)
	default:
		return nil, fmt.Errorf("ice: invalid network type: %s", network)
	}
}
