package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

// webSocketClient is the gorilla/websocket-backed Client: it serves a /ws
// endpoint, decodes/encodes the JSON envelope, and tracks one connection
// per remote peer so outbound Send calls can be routed by receiver ID.
type webSocketClient struct {
	server *http.Server

	mu      sync.Mutex
	conns   map[string]*websocket.Conn
	handler Handler
}

// NewWebSocketClient returns a Client that serves the signaling websocket
// endpoint over plain HTTP. TLS termination, if required, is expected to
// sit in front of this process.
func NewWebSocketClient() Client {
	c := &webSocketClient{conns: make(map[string]*websocket.Conn)}
	router := http.NewServeMux()
	router.HandleFunc("/ws", c.handleWebsocket)
	c.server = &http.Server{Handler: router}
	return c
}

func (c *webSocketClient) SetHandler(h Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

func (c *webSocketClient) Listen(ctx context.Context, addr string) error {
	c.server.Addr = addr

	go func() {
		<-ctx.Done()
		_ = c.server.Shutdown(context.Background())
	}()

	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (c *webSocketClient) Shutdown(ctx context.Context) error {
	return c.server.Shutdown(ctx)
}

func (c *webSocketClient) Send(ctx context.Context, kind, receiverID string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshaling signaling payload")
	}
	if len(raw) > maxPayloadBytes {
		return fmt.Errorf("signaling: payload for %s exceeds %d bytes", receiverID, maxPayloadBytes)
	}

	env := Envelope{
		Kind:          Kind(kind),
		SenderID:      receiverID,
		CorrelationID: uuid.New().String(),
		Payload:       raw,
	}

	c.mu.Lock()
	conn, ok := c.conns[receiverID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("signaling: no connection for receiver %q", receiverID)
	}

	return conn.WriteJSON(env)
}

func (c *webSocketClient) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := new(websocket.Upgrader).Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed: %s", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(maxPayloadBytes + 1024) // headroom for envelope framing

	var peerID string
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			log.Debug("websocket closed for %s: %s", peerID, err)
			break
		}

		if peerID == "" {
			peerID = env.SenderID
			c.mu.Lock()
			c.conns[peerID] = conn
			c.mu.Unlock()
		}

		c.mu.Lock()
		h := c.handler
		c.mu.Unlock()
		if h != nil {
			h(env)
		}
	}

	if peerID != "" {
		c.mu.Lock()
		delete(c.conns, peerID)
		c.mu.Unlock()
	}
}
