// Package integration contains end-to-end tests that drive the chat relay
// through real WebSocket connections: registration handshake, presence
// notifications, encrypted relay, and failure handling.
package integration

import (
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Izde13/chat-seguro/internal/server"
	"github.com/Izde13/chat-seguro/test/testhelpers"
)

func TestRegistrationHandshake(t *testing.T) {
	testServer, _, serverCipher := testhelpers.StartRelay(t, server.Config{})

	conn := testhelpers.DialChat(t, testServer.URL)
	cipher, users := testhelpers.RegisterAndHandshake(t, conn, "Ana")

	assert.Equal(t, []string{"Ana"}, users)

	// The delivered key is the process key: tokens sealed by the server
	// must open with it.
	token, err := serverCipher.Encrypt("hola")
	require.NoError(t, err)
	plaintext, err := cipher.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hola", plaintext)
}

func TestPresenceNotifications(t *testing.T) {
	testServer, _, _ := testhelpers.StartRelay(t, server.Config{})

	ana := testhelpers.DialChat(t, testServer.URL)
	_, anaRoster := testhelpers.RegisterAndHandshake(t, ana, "Ana")
	assert.Equal(t, []string{"Ana"}, anaRoster)

	bob := testhelpers.DialChat(t, testServer.URL)
	_, bobRoster := testhelpers.RegisterAndHandshake(t, bob, "Bob")
	assert.Equal(t, []string{"Ana", "Bob"}, bobRoster)

	joined := testhelpers.ExpectEvent(t, ana, server.TypeUserJoined)
	assert.Equal(t, "Bob", joined.Username)
	assert.Contains(t, joined.Message, "se ha unido")
	assert.NotEmpty(t, joined.Timestamp)

	testhelpers.CloseWebSocket(bob)

	left := testhelpers.ExpectEvent(t, ana, server.TypeUserLeft)
	assert.Equal(t, "Bob", left.Username)
	assert.Contains(t, left.Message, "ha salido")
}

func TestUsernameSanitizedOnRegistration(t *testing.T) {
	cases := []struct {
		name     string
		raw      string
		expected string
	}{
		{"markup and punctuation stripped", "  <Ana!>  ", "Ana"},
		{"empty becomes anonymous", "", "Anónimo"},
		{"long names truncated", strings.Repeat("x", 40), strings.Repeat("x", 32)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testServer, _, _ := testhelpers.StartRelay(t, server.Config{})

			conn := testhelpers.DialChat(t, testServer.URL)
			_, users := testhelpers.RegisterAndHandshake(t, conn, tc.raw)
			assert.Equal(t, []string{tc.expected}, users)
		})
	}
}

func TestFirstMessageMustBeRegistration(t *testing.T) {
	testServer, _, _ := testhelpers.StartRelay(t, server.Config{})

	conn := testhelpers.DialChat(t, testServer.URL)
	testhelpers.SendChat(t, conn, "whatever")

	errorEvent := testhelpers.ExpectEvent(t, conn, server.TypeError)
	assert.Equal(t, "Debe registrarse primero", errorEvent.Message)
	testhelpers.ExpectClosed(t, conn)
}

func TestMalformedRegistrationRejected(t *testing.T) {
	testServer, hub, _ := testhelpers.StartRelay(t, server.Config{})

	conn := testhelpers.DialChat(t, testServer.URL)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("esto no es JSON")))

	errorEvent := testhelpers.ExpectEvent(t, conn, server.TypeError)
	assert.Equal(t, "JSON inválido en registro", errorEvent.Message)
	testhelpers.ExpectClosed(t, conn)

	// The connection never made it into the registry.
	assert.Empty(t, hub.SnapshotNames())
}
