package ice

import "errors"

// Sentinel errors. Callers distinguish failure modes with errors.Is rather
// than string matching; call sites wrap these with errors.Wrapf from
// github.com/pkg/errors to attach context without losing the sentinel.
var (
	// ErrInvalidRemoteUsername is returned when a remote username fragment
	// does not match the combined username this controller advertised.
	ErrInvalidRemoteUsername = errors.New("ice: invalid remote username")

	// ErrInvalidIceServer is returned when a STUN/TURN URI fails to parse,
	// or names a scheme/transport this controller does not support.
	ErrInvalidIceServer = errors.New("ice: invalid ICE server URI")

	// ErrLackOfElement is returned when a bounded table (local candidates,
	// remote candidates, candidate pairs, peers) is already at capacity.
	ErrLackOfElement = errors.New("ice: no free slot in bounded table")

	// ErrExceedRemotePeer is returned when adding a peer session would
	// exceed the configured maximum concurrent viewer count.
	ErrExceedRemotePeer = errors.New("ice: exceeded maximum remote peer count")

	// ErrMalformedMessage is returned when a STUN message fails structural
	// validation (short header, bad magic cookie, truncated attribute).
	ErrMalformedMessage = errors.New("ice: malformed STUN message")

	// ErrIntegrityFailed is returned when a STUN MESSAGE-INTEGRITY or
	// FINGERPRINT attribute does not verify.
	ErrIntegrityFailed = errors.New("ice: message integrity check failed")

	// ErrUnknownTransactionID is returned when a STUN response's
	// transaction ID does not match any outstanding request.
	ErrUnknownTransactionID = errors.New("ice: unknown STUN transaction ID")

	// ErrNotReady is returned by operations that require a selected
	// candidate pair before they can proceed.
	ErrNotReady = errors.New("ice: no candidate pair selected yet")

	// ErrClosed is returned by operations attempted after Stop/Deinit.
	ErrClosed = errors.New("ice: controller already stopped")

	// ErrQueueFull is returned when the bounded command queue rejects a
	// command because the controller's event loop is not draining it fast
	// enough.
	ErrQueueFull = errors.New("ice: command queue full")

	// ErrUnsupportedCandidateType is returned by the SDP-candidate parser
	// when given a candidate type this implementation does not gather.
	ErrUnsupportedCandidateType = errors.New("ice: unsupported candidate type")

	errReadTimeout = errors.New("ice: read timeout")
)
