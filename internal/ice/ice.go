package ice

import (
	"github.com/lanikai/icecore/internal/logging"
)

// log is this package's tagged logger; its level is controlled independently
// of the rest of the process via the LOGLEVEL environment variable (e.g.
// LOGLEVEL=ice=debug).
var log = logging.DefaultLogger.WithTag("ice")

const defaultStunServer = "stun:stun.kinesisvideo.us-west-2.amazonaws.com"

var (
	// Whether or not to allow IPv6 ICE candidates. Set by cmd/icecored from
	// its optional CLI flags; left false by default since spec.md's
	// Non-goals exclude IPv6 parity.
	flagEnableIPv6 bool

	// URI of the default STUN server used when a peer session configures
	// none of its own.
	flagStunServer = defaultStunServer
)

// SetIPv6Enabled toggles whether the candidate gatherer considers IPv6
// interfaces. Intended to be called once, from cmd/icecored, before any
// controller starts gathering.
func SetIPv6Enabled(enabled bool) {
	flagEnableIPv6 = enabled
}

// SetDefaultStunServer overrides the STUN server URI used when a peer
// session is not configured with its own ICE server list.
func SetDefaultStunServer(uri string) {
	flagStunServer = uri
}
