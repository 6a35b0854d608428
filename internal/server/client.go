// Package server manages individual WebSocket clients, handling read/write
// pumps, the registration handshake, rate limiting, and lifecycle control
// for each connection.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Client represents one live connection. A client starts unregistered; it
// may only relay chat messages after its first frame completes the
// registration handshake and the hub has admitted it.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	id   string
	addr string

	// username is set by the registration handshake before the client is
	// handed to the hub, and never changes afterwards.
	username string

	// closed is guarded by the hub mutex; once set, the send channel is
	// closed and no further payload may be queued.
	closed bool

	limiter *rateLimiter
}

// NewClient creates a Client for an accepted WebSocket connection. The send
// channel is buffered so slow readers do not stall broadcasts immediately.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	if conn != nil {
		conn.SetReadLimit(hub.cfg.readLimit())
	}

	return &Client{
		conn:    conn,
		send:    make(chan []byte, 256),
		hub:     hub,
		id:      uuid.NewString(),
		addr:    addr,
		limiter: newRateLimiter(hub.cfg.RateLimit.Window, hub.cfg.RateLimit.MaxMessages),
	}
}

// readDeadline is how long a connection may stay silent: one keepalive
// interval plus the grace period for the pong to come back.
func (c *Client) readDeadline() time.Duration {
	return c.hub.cfg.PingInterval + c.hub.cfg.PongTimeout
}

// setupReadConnection configures read deadlines and the pong handler.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(c.readDeadline())); err != nil {
		log.Printf("Error setting initial read deadline for %s: %v", c.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(c.readDeadline())); err != nil {
			log.Printf("Error setting read deadline in pong handler for %s: %v", c.addr, err)
		}
		return nil
	})
}

// handleReadError logs an appropriate message for a failed read. Any read
// error terminates the connection.
func (c *Client) handleReadError(err error) {
	if err == nil {
		return
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		log.Printf("Frame from %s exceeded the read limit of %d bytes", c.addr, c.hub.cfg.readLimit())
		return
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		log.Printf("Client %s disconnected: %v", c.addr, err)
		return
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		log.Printf("Client %s connection closed: %v", c.addr, err)
		return
	}

	log.Printf("WebSocket read error from %s: %v", c.addr, err)
}

// sendEvent queues a protocol event for this client's write pump. Events
// for a congested or closing client are dropped rather than blocking the
// read loop.
func (c *Client) sendEvent(event Event) {
	if !c.hub.safeSend(c, event.encode()) {
		log.Printf("Could not queue %s event for %s", event.Type, c.addr)
	}
}

// readPump drives the per-connection state machine: registration handshake
// first, then the message loop. On exit it hands the connection to the
// hub's single cleanup path; cleanup closes the send channel, which lets
// the write pump flush any final error event before it closes the
// transport. The write pump owns the transport close.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
	}()

	c.setupReadConnection()

	if !c.awaitRegistration() {
		return
	}

	for {
		_, rawMessage, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			break
		}
		c.processMessage(rawMessage)
	}
}

// awaitRegistration enforces the admission protocol: the first frame must be
// a well-formed register message. Anything else earns one explanatory error
// event (best effort, if the transport is still writable) and the
// connection never reaches the registry.
func (c *Client) awaitRegistration() bool {
	_, rawMessage, err := c.conn.ReadMessage()
	if err != nil {
		c.handleReadError(err)
		return false
	}

	var msg ClientMessage
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		log.Printf("Invalid registration payload from %s: %v", c.addr, err)
		c.sendEvent(newErrorEvent("JSON inválido en registro"))
		return false
	}

	if msg.Type != TypeRegister {
		log.Printf("First message from %s was %q, not a registration", c.addr, msg.Type)
		c.sendEvent(newErrorEvent("Debe registrarse primero"))
		return false
	}

	c.username = sanitizeUsername(msg.Username)

	select {
	case c.hub.register <- c:
		return true
	case <-c.hub.ctx.Done():
		return false
	}
}

// processMessage handles one inbound frame from a registered client: rate
// limit first, then parse, then dispatch by type. Every rejection sends
// exactly one error event and keeps the connection open.
func (c *Client) processMessage(rawMessage []byte) {
	if !c.limiter.allow(time.Now()) {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message",
			c.addr, c.hub.cfg.RateLimit.MaxMessages, c.hub.cfg.RateLimit.Window)
		c.sendEvent(newErrorEvent("Rate limit excedido. Intenta más tarde."))
		return
	}

	var msg ClientMessage
	if err := json.Unmarshal(rawMessage, &msg); err != nil {
		log.Printf("Invalid message from %s: %v", c.addr, err)
		c.sendEvent(newErrorEvent("JSON inválido"))
		return
	}

	switch msg.Type {
	case TypeChatMessage:
		c.relayChat(msg.Content)
	default:
		c.sendEvent(newErrorEvent("Tipo de mensaje no soportado"))
	}
}

// relayChat validates and re-encrypts an inbound ciphertext, then hands the
// resulting chat event to fan-out. The sender receives the broadcast too.
func (c *Client) relayChat(content string) {
	reencrypted, err := c.hub.relay.relay(content)
	if err != nil {
		log.Printf("Rejected message from %s: %v", c.id, err)
		c.sendEvent(newErrorEvent(relayFailureMessage(err)))
		return
	}

	event := newChatEvent(c.username, reencrypted, time.Now())
	select {
	case c.hub.broadcast <- BroadcastMessage{Sender: c, Payload: event.encode(), EchoToSender: true}:
	case <-c.hub.ctx.Done():
	}
}

// writePump serializes all writes to the connection: queued payloads plus
// the keepalive pings that drive disconnect detection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when
// the pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleMessage(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return c.writeCloseMessage()
	}
}

// closeConnection closes the WebSocket connection, logging only unexpected
// failures.
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error closing connection in writePump: %v", err)
		}
	}
}

// handleMessage writes one outbound payload, or the close frame when the
// send channel has been closed by cleanup.
func (c *Client) handleMessage(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.addr, err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the client.
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing close message to %s: %v", c.addr, err)
		}
	}
	return false
}

// handlePing sends a keepalive ping.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for ping to %s: %v", c.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing ping message to %s: %v", c.addr, err)
		}
		return false
	}
	return true
}
