package ice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseICEServerURI(t *testing.T) {
	s, err := parseICEServerURI("stun:stun.example.com:3478")
	require.NoError(t, err)
	assert.Equal(t, "stun", s.Scheme)
	assert.Equal(t, "stun.example.com", s.Host)
	assert.Equal(t, 3478, s.Port)
}

func TestParseICEServerURIDefaultPort(t *testing.T) {
	s, err := parseICEServerURI("turn:turn.example.com?transport=udp")
	require.NoError(t, err)
	assert.Equal(t, 3478, s.Port)

	s, err = parseICEServerURI("turns:turn.example.com?transport=udp")
	require.NoError(t, err)
	assert.Equal(t, 5349, s.Port)
}

func TestParseICEServerURIRejectsBadScheme(t *testing.T) {
	_, err := parseICEServerURI("http://example.com")
	assert.ErrorIs(t, err, ErrInvalidIceServer)
}

func TestParseICEServerURIRejectsTurnWithoutTransport(t *testing.T) {
	_, err := parseICEServerURI("turn:turn.example.com")
	assert.ErrorIs(t, err, ErrInvalidIceServer)

	_, err = parseICEServerURI("turn:turn.example.com:3478")
	assert.ErrorIs(t, err, ErrInvalidIceServer)
}

func TestParseICEServerURIAcceptsTcpTransport(t *testing.T) {
	s, err := parseICEServerURI("turn:turn.example.com:3478?transport=tcp")
	require.NoError(t, err)
	assert.Equal(t, "tcp", s.Transport)
}

func TestParseICEServerURIRejectsUnknownTransport(t *testing.T) {
	_, err := parseICEServerURI("turn:turn.example.com:3478?transport=sctp")
	assert.ErrorIs(t, err, ErrInvalidIceServer)
}

func TestParseICEServerURIRoundTrips(t *testing.T) {
	uri := "turn:turn.example.com:3478?transport=udp"
	s, err := parseICEServerURI(uri)
	require.NoError(t, err)
	assert.Equal(t, uri, s.String())
}

func TestParseICEServerURIStunHasNoTransportToken(t *testing.T) {
	s, err := parseICEServerURI("stun:stun.example.com:3478")
	require.NoError(t, err)
	assert.Equal(t, "stun:stun.example.com:3478", s.String())
}

func TestDefaultStunServerURL(t *testing.T) {
	assert.Equal(t, "stun:stun.kinesisvideo.us-west-2.amazonaws.com", defaultStunServerURL("us-west-2"))
	assert.Equal(t, "stun:stun.kinesisvideo.cn-north-1.amazonaws.com.cn", defaultStunServerURL("cn-north-1"))
}
