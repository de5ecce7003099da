package signaling

import (
	"context"
	"encoding/json"

	"github.com/lanikai/icecore/internal/logging"
)

var log = logging.DefaultLogger.WithTag("signaling")

// Kind enumerates the envelope kinds this signaling transport carries
// between the controller and a remote peer.
type Kind string

const (
	KindSdpOffer           Kind = "SdpOffer"
	KindSdpAnswer          Kind = "SdpAnswer"
	KindIceCandidate       Kind = "IceCandidate"
	KindGoAway             Kind = "GoAway"
	KindReconnectIceServer Kind = "ReconnectIceServer"
	KindStatusResponse     Kind = "StatusResponse"
)

// maxPayloadBytes bounds the payload of any single envelope, inbound or
// outbound.
const maxPayloadBytes = 10000

// Envelope is the wire format exchanged over the signaling transport:
// {"kind": ..., "senderId": ..., "correlationId": ..., "payload": ...}.
type Envelope struct {
	Kind          Kind            `json:"kind"`
	SenderID      string          `json:"senderId"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload"`
}

// Handler processes one inbound envelope from a remote peer.
type Handler func(env Envelope)

// Client is the signaling transport collaborator: it carries
// Offer/Answer/ICE-candidate/control envelopes between this controller and
// one or more remote peers, independent of how those envelopes are framed
// on the wire.
type Client interface {
	// Listen starts accepting connections and blocks until Shutdown is
	// called or an unrecoverable error occurs.
	Listen(ctx context.Context, addr string) error

	// Shutdown interrupts Listen.
	Shutdown(ctx context.Context) error

	// SetHandler installs the callback invoked for each inbound envelope.
	SetHandler(h Handler)

	// Send pushes an outbound envelope to receiverID. A fresh correlation
	// ID is minted for every call.
	Send(ctx context.Context, kind, receiverID string, payload interface{}) error
}
