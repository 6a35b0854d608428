package server

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Izde13/chat-seguro/internal/crypto"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()

	cipher, err := crypto.NewCipher()
	require.NoError(t, err)

	hub := NewHub(Config{}, cipher)
	go hub.Run()
	t.Cleanup(func() {
		hub.cancel()
		<-hub.done
	})
	return hub
}

// newRegisteredClient pushes a client with the given name through the
// hub's admission path and drains the key and roster events it receives.
func newRegisteredClient(t *testing.T, hub *Hub, name string) *Client {
	t.Helper()

	client := NewClient(nil, hub, "127.0.0.1:0")
	client.username = name
	hub.register <- client

	key := readEvent(t, client)
	require.Equal(t, TypeEncryptionKey, key.Type)
	roster := readEvent(t, client)
	require.Equal(t, TypeUserList, roster.Type)

	return client
}

func readEvent(t *testing.T, client *Client) Event {
	t.Helper()

	select {
	case payload := <-client.send:
		var event Event
		require.NoError(t, json.Unmarshal(payload, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectNoEvent(t *testing.T, client *Client, wait time.Duration) {
	t.Helper()

	select {
	case payload := <-client.send:
		t.Fatalf("expected no event, got %s", payload)
	case <-time.After(wait):
	}
}

func TestAdmissionDeliversKeyThenRoster(t *testing.T) {
	hub := newTestHub(t)

	client := NewClient(nil, hub, "127.0.0.1:0")
	client.username = "Ana"
	hub.register <- client

	key := readEvent(t, client)
	require.Equal(t, TypeEncryptionKey, key.Type)

	// The delivered key must actually open ciphertexts sealed by the hub.
	restored, err := crypto.NewCipherFromBase64Key(key.Key)
	require.NoError(t, err)
	token, err := hub.cipher.Encrypt("hola")
	require.NoError(t, err)
	plaintext, err := restored.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "hola", plaintext)

	roster := readEvent(t, client)
	require.Equal(t, TypeUserList, roster.Type)
	assert.Equal(t, []string{"Ana"}, roster.Users)
}

func TestJoinNoticeExcludesNewcomer(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")

	bob := NewClient(nil, hub, "127.0.0.1:0")
	bob.username = "Bob"
	hub.register <- bob

	joined := readEvent(t, ana)
	assert.Equal(t, TypeUserJoined, joined.Type)
	assert.Equal(t, "Bob", joined.Username)
	assert.Contains(t, joined.Message, "Bob")
	assert.NotEmpty(t, joined.Timestamp)

	key := readEvent(t, bob)
	assert.Equal(t, TypeEncryptionKey, key.Type)
	roster := readEvent(t, bob)
	assert.Equal(t, TypeUserList, roster.Type)
	assert.Equal(t, []string{"Ana", "Bob"}, roster.Users)

	// The newcomer never sees its own join notice.
	expectNoEvent(t, bob, 100*time.Millisecond)
}

func TestDuplicateRegistrationIgnored(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")
	hub.register <- ana

	expectNoEvent(t, ana, 100*time.Millisecond)
	assert.Equal(t, []string{"Ana"}, hub.SnapshotNames())
}

func TestDropBroadcastsUserLeftExactlyOnce(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")
	bob := newRegisteredClient(t, hub, "Bob")
	readEvent(t, ana) // Bob's join notice

	hub.unregister <- ana

	left := readEvent(t, bob)
	assert.Equal(t, TypeUserLeft, left.Type)
	assert.Equal(t, "Ana", left.Username)
	assert.Equal(t, []string{"Bob"}, hub.SnapshotNames())

	// Cleanup is idempotent: a second drop is a no-op.
	hub.unregister <- ana
	expectNoEvent(t, bob, 100*time.Millisecond)
	assert.Equal(t, []string{"Bob"}, hub.SnapshotNames())
}

func TestDropOfUnregisteredClientIsSilent(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")

	// A connection that never completed registration produces no
	// user_left notice when it goes away.
	stranger := NewClient(nil, hub, "127.0.0.1:0")
	hub.unregister <- stranger

	expectNoEvent(t, ana, 100*time.Millisecond)
	assert.Equal(t, []string{"Ana"}, hub.SnapshotNames())
}

func TestBroadcastEchoAsymmetry(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")
	bob := newRegisteredClient(t, hub, "Bob")
	readEvent(t, ana) // Bob's join notice

	payload := newChatEvent("Ana", "token", time.Now()).encode()

	hub.broadcast <- BroadcastMessage{Sender: ana, Payload: payload, EchoToSender: true}
	assert.Equal(t, TypeChatMessage, readEvent(t, ana).Type)
	assert.Equal(t, TypeChatMessage, readEvent(t, bob).Type)

	hub.broadcast <- BroadcastMessage{Sender: ana, Payload: payload, EchoToSender: false}
	assert.Equal(t, TypeChatMessage, readEvent(t, bob).Type)
	expectNoEvent(t, ana, 100*time.Millisecond)
}

func TestBroadcastSurvivesFailedRecipient(t *testing.T) {
	hub := newTestHub(t)

	ana := newRegisteredClient(t, hub, "Ana")
	bob := newRegisteredClient(t, hub, "Bob")
	eve := newRegisteredClient(t, hub, "Eve")
	for i := 0; i < 2; i++ { // join notices for Bob and Eve
		readEvent(t, ana)
	}
	readEvent(t, bob) // Eve's join notice

	// Saturate Eve's send buffer so the next delivery to her fails.
	for i := 0; i < cap(eve.send); i++ {
		eve.send <- []byte("filler")
	}

	payload := newChatEvent("Ana", "token", time.Now()).encode()
	hub.broadcast <- BroadcastMessage{Sender: ana, Payload: payload, EchoToSender: true}

	// Delivery to the reachable recipients is unaffected.
	assert.Equal(t, TypeChatMessage, readEvent(t, ana).Type)
	assert.Equal(t, TypeChatMessage, readEvent(t, bob).Type)

	// The unreachable connection went through the normal cleanup path.
	left := readEvent(t, ana)
	assert.Equal(t, TypeUserLeft, left.Type)
	assert.Equal(t, "Eve", left.Username)
	assert.Equal(t, TypeUserLeft, readEvent(t, bob).Type)
	assert.Equal(t, []string{"Ana", "Bob"}, hub.SnapshotNames())
}

func TestSnapshotNamesIsSorted(t *testing.T) {
	hub := newTestHub(t)

	for _, name := range []string{"Zoe", "Ana", "Mia"} {
		client := NewClient(nil, hub, "127.0.0.1:0")
		client.username = name
		hub.register <- client
		readEvent(t, client)
		readEvent(t, client)
	}

	assert.Equal(t, []string{"Ana", "Mia", "Zoe"}, hub.SnapshotNames())
}
