package ice

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ICEServer describes one STUN or TURN server: its URI plus, for TURN,
// long-term credentials. See [RFC8489 §H] / [RFC7064] / [RFC7065] for the
// "stun:"/"stuns:"/"turn:"/"turns:" URI grammar.
type ICEServer struct {
	Scheme    string // "stun", "stuns", "turn", or "turns"
	Host      string
	Port      int
	Transport string // "udp" or "tcp"; always "udp" for stun/stuns
	Username  string
	Password  string
}

func (s ICEServer) hostport() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s ICEServer) isTurn() bool {
	return s.Scheme == "turn" || s.Scheme == "turns"
}

// String re-emits the URI parseICEServerURI produced this ICEServer from,
// so parse -> String round-trips byte-for-byte for any URI this parser
// accepts.
func (s ICEServer) String() string {
	uri := fmt.Sprintf("%s:%s", s.Scheme, s.hostport())
	if s.isTurn() {
		uri += "?transport=" + s.Transport
	}
	return uri
}

// parseICEServerURI parses a "stun:host:port" or
// "turn:host:port?transport=udp" URI into an ICEServer. Credentials, if
// supplied by the signaling collaborator, are attached separately by the
// caller. A TURN URI without a transport= token is rejected: the original
// ICE server config a TURN entry is parsed from always carries one.
func parseICEServerURI(uri string) (ICEServer, error) {
	schemeSep := strings.IndexByte(uri, ':')
	if schemeSep < 0 {
		return ICEServer{}, fmt.Errorf("%w: missing scheme in %q", ErrInvalidIceServer, uri)
	}
	scheme := uri[:schemeSep]
	switch scheme {
	case "stun", "stuns", "turn", "turns":
	default:
		return ICEServer{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidIceServer, scheme)
	}

	rest := uri[schemeSep+1:]
	isTurn := scheme == "turn" || scheme == "turns"

	var transport string
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		query := rest[i+1:]
		rest = rest[:i]
		switch {
		case query == "transport=udp":
			transport = "udp"
		case query == "transport=tcp":
			transport = "tcp"
		default:
			return ICEServer{}, fmt.Errorf("%w: unknown transport string %q", ErrInvalidIceServer, query)
		}
	} else if isTurn {
		return ICEServer{}, fmt.Errorf("%w: TURN URI %q missing transport= token", ErrInvalidIceServer, uri)
	}
	if !isTurn {
		transport = "udp"
	}

	host, portStr, err := net.SplitHostPort(rest)
	if err != nil {
		// No explicit port: use the RFC 8489 default.
		host = rest
		if scheme == "stuns" || scheme == "turns" {
			portStr = "5349"
		} else {
			portStr = "3478"
		}
	}
	if host == "" {
		return ICEServer{}, fmt.Errorf("%w: missing host in %q", ErrInvalidIceServer, uri)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return ICEServer{}, fmt.Errorf("%w: invalid port in %q", ErrInvalidIceServer, uri)
	}

	return ICEServer{Scheme: scheme, Host: host, Port: port, Transport: transport}, nil
}

// defaultStunServerURL follows the source controller's region/TLD
// resolution: Chinese regions resolve against amazonaws.com.cn, all others
// against amazonaws.com, both beneath a "stun.kinesisvideo." prefix.
func defaultStunServerURL(region string) string {
	tld := "amazonaws.com"
	if strings.HasPrefix(region, "cn-") {
		tld = "amazonaws.com.cn"
	}
	return fmt.Sprintf("stun:stun.kinesisvideo.%s.%s", region, tld)
}
