package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	payload, err := json.Marshal(map[string]string{"sdp": "v=0..."})
	require.NoError(t, err)

	env := Envelope{
		Kind:          KindSdpOffer,
		SenderID:      "peer-1",
		CorrelationID: "abc-123",
		Payload:       payload,
	}

	raw, err := json.Marshal(env)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"kind":"SdpOffer"`)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, env.Kind, decoded.Kind)
	assert.Equal(t, env.SenderID, decoded.SenderID)
}

func TestWebSocketClientReceivesEnvelope(t *testing.T) {
	c := NewWebSocketClient().(*webSocketClient)

	received := make(chan Envelope, 1)
	c.SetHandler(func(env Envelope) { received <- env })

	srv := httptest.NewServer(http.HandlerFunc(c.handleWebsocket))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	payload, _ := json.Marshal(map[string]string{"ufrag": "abcd"})
	require.NoError(t, conn.WriteJSON(Envelope{
		Kind:     KindIceCandidate,
		SenderID: "peer-42",
		Payload:  payload,
	}))

	select {
	case env := <-received:
		assert.Equal(t, KindIceCandidate, env.Kind)
		assert.Equal(t, "peer-42", env.SenderID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}

func TestWebSocketClientSendUnknownReceiver(t *testing.T) {
	c := NewWebSocketClient()
	err := c.Send(context.Background(), string(KindGoAway), "nobody", map[string]string{})
	assert.Error(t, err)
}
