// Package server defines the wire protocol types exchanged with clients
// and helpers shared across client and hub logic.
package server

import (
	"encoding/json"
	"log"
	"strings"
	"time"
)

// Message type discriminators for the JSON wire protocol. Every frame is a
// single object carrying a "type" field.
const (
	TypeRegister      = "register"
	TypeChatMessage   = "chat_message"
	TypeEncryptionKey = "encryption_key"
	TypeUserList      = "user_list"
	TypeUserJoined    = "user_joined"
	TypeUserLeft      = "user_left"
	TypeError         = "error"
)

// ClientMessage is the envelope for frames received from clients.
type ClientMessage struct {
	Type     string `json:"type"`
	Username string `json:"username,omitempty"`
	Content  string `json:"content,omitempty"`
}

// Event is an outbound protocol message. Events are immutable once
// constructed and serialized independently per recipient send.
type Event struct {
	Type      string   `json:"type"`
	Key       string   `json:"key,omitempty"`
	Users     []string `json:"users,omitempty"`
	Username  string   `json:"username,omitempty"`
	Content   string   `json:"content,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Message   string   `json:"message,omitempty"`
}

func newKeyEvent(keyBase64 string) Event {
	return Event{Type: TypeEncryptionKey, Key: keyBase64}
}

func newUserListEvent(users []string) Event {
	return Event{Type: TypeUserList, Users: users}
}

func newUserJoinedEvent(username string, now time.Time) Event {
	return Event{
		Type:      TypeUserJoined,
		Username:  username,
		Timestamp: now.Format(time.RFC3339),
		Message:   username + " se ha unido al chat",
	}
}

func newUserLeftEvent(username string, now time.Time) Event {
	return Event{
		Type:      TypeUserLeft,
		Username:  username,
		Timestamp: now.Format(time.RFC3339),
		Message:   username + " ha salido del chat",
	}
}

func newChatEvent(username, content string, now time.Time) Event {
	return Event{
		Type:      TypeChatMessage,
		Username:  username,
		Content:   content,
		Timestamp: now.Format(time.RFC3339),
	}
}

func newErrorEvent(message string) Event {
	return Event{Type: TypeError, Message: message}
}

// encode serializes the event for the wire. Event contains nothing that can
// fail to marshal, but a failure is still logged rather than propagated.
func (e Event) encode() []byte {
	payload, err := json.Marshal(e)
	if err != nil {
		log.Printf("Error encoding %s event: %v", e.Type, err)
		return []byte(`{"type":"error","message":"internal error"}`)
	}
	return payload
}

// BroadcastMessage encapsulates a payload being fanned out by the hub,
// including the originating client so it can be excluded from delivery.
type BroadcastMessage struct {
	Sender       *Client
	Payload      []byte
	EchoToSender bool
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
