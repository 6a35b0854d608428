// Package testhelpers provides common utilities for exercising the chat
// relay over real WebSocket connections in integration tests.
package testhelpers

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Izde13/chat-seguro/internal/crypto"
	"github.com/Izde13/chat-seguro/internal/server"
)

// StartRelay spins up a hub and an HTTP test server around it, returning
// the test server, the hub, and the process cipher. Everything is torn down
// via t.Cleanup.
func StartRelay(t *testing.T, cfg server.Config) (*httptest.Server, *server.Hub, *crypto.Cipher) {
	t.Helper()

	cipher, err := crypto.NewCipher()
	require.NoError(t, err)

	hub := server.NewHub(cfg, cipher)
	go hub.Run()

	testServer := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		_ = hub.Shutdown(2 * time.Second)
		testServer.Close()
	})

	return testServer, hub, cipher
}

// WebSocketURL converts an httptest server URL into the ws:// endpoint of
// the chat relay.
func WebSocketURL(httpURL string) string {
	return strings.Replace(httpURL, "http://", "ws://", 1) + "/ws"
}

// DialChat opens a WebSocket connection to the relay. The connection is
// closed via t.Cleanup.
func DialChat(t *testing.T, httpURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(WebSocketURL(httpURL), nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Register sends a registration message with the given username.
func Register(t *testing.T, conn *websocket.Conn, username string) {
	t.Helper()
	err := conn.WriteJSON(server.ClientMessage{Type: server.TypeRegister, Username: username})
	require.NoError(t, err)
}

// SendChat sends a chat_message frame carrying the given ciphertext.
func SendChat(t *testing.T, conn *websocket.Conn, ciphertext string) {
	t.Helper()
	err := conn.WriteJSON(server.ClientMessage{Type: server.TypeChatMessage, Content: ciphertext})
	require.NoError(t, err)
}

// ReadEvent reads the next protocol event, failing the test if nothing
// arrives within two seconds.
func ReadEvent(t *testing.T, conn *websocket.Conn) server.Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var event server.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

// ExpectEvent reads the next event and asserts its type.
func ExpectEvent(t *testing.T, conn *websocket.Conn, eventType string) server.Event {
	t.Helper()

	event := ReadEvent(t, conn)
	require.Equal(t, eventType, event.Type)
	return event
}

// RegisterAndHandshake registers a username and consumes the key delivery
// and roster events, returning the cipher derived from the delivered key
// and the roster the server reported.
func RegisterAndHandshake(t *testing.T, conn *websocket.Conn, username string) (*crypto.Cipher, []string) {
	t.Helper()

	Register(t, conn, username)

	keyEvent := ExpectEvent(t, conn, server.TypeEncryptionKey)
	cipher, err := crypto.NewCipherFromBase64Key(keyEvent.Key)
	require.NoError(t, err)

	listEvent := ExpectEvent(t, conn, server.TypeUserList)
	return cipher, listEvent.Users
}

// ExpectClosed asserts that the connection is closed or closing: the next
// read must fail rather than produce another data frame.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

// CloseWebSocket performs a clean client-side close handshake.
func CloseWebSocket(conn *websocket.Conn) {
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
}
