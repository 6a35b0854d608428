// Package server coordinates client registration, presence notifications,
// encrypted message fan-out, and connection cleanup for the chat relay via
// the Hub type.
package server

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/Izde13/chat-seguro/internal/crypto"
)

// Hub is the connection registry and broadcast engine. It owns the mapping
// from registered connections to display names, the shared message cipher,
// and the single event loop that serializes registration, unregistration,
// and fan-out so registry transitions stay atomic with respect to each
// other.
type Hub struct {
	cfg    Config
	cipher *crypto.Cipher
	relay  relayer

	// clients maps a connection to its display name. A connection appears
	// here if and only if it completed registration and has not yet been
	// cleaned up.
	clients map[*Client]string

	register   chan *Client
	unregister chan *Client
	broadcast  chan BroadcastMessage

	mutex  sync.RWMutex
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub around the given configuration and shared cipher.
// The returned Hub is ready once Run is started in its own goroutine.
func NewHub(cfg Config, cipher *crypto.Cipher) *Hub {
	cfg = cfg.sanitized()
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		cipher:     cipher,
		relay:      newRelayer(cipher, cfg),
		clients:    make(map[*Client]string),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan BroadcastMessage),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Config returns the sanitized configuration the hub runs with.
func (h *Hub) Config() Config {
	return h.cfg
}

// StartClient launches the read and write pumps for a freshly accepted
// connection. The client is not in the registry yet; it enters on its first
// valid registration message.
func (h *Hub) StartClient(client *Client) {
	log.Printf("Connection %s accepted from %s", client.id, client.addr)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

// Run starts the hub's event loop, handling registration, unregistration,
// and message broadcasting. It should be called in a separate goroutine as
// it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.admit(client)

		case client := <-h.unregister:
			h.drop(client)

		case broadcastMsg := <-h.broadcast:
			h.broadcastEvent(broadcastMsg.Payload, broadcastMsg.Sender, broadcastMsg.EchoToSender)
		}
	}
}

// admit completes registration: the connection enters the registry, receives
// the shared key and the current roster, and everyone else is notified. A
// connection already present is left untouched.
func (h *Hub) admit(client *Client) {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	if _, ok := h.clients[client]; ok {
		h.mutex.Unlock()
		return
	}
	h.clients[client] = client.username
	clientCount := len(h.clients)
	h.mutex.Unlock()

	log.Printf("Client %s registered as %q. Total clients: %d", client.id, client.username, clientCount)

	// The key must arrive before any chat event so the newcomer can decrypt
	// everything that follows; the roster includes the newcomer itself.
	h.safeSend(client, newKeyEvent(h.cipher.KeyBase64()).encode())
	h.safeSend(client, newUserListEvent(h.SnapshotNames()).encode())
	h.broadcastEvent(newUserJoinedEvent(client.username, time.Now()).encode(), client, false)
}

// drop is the single cleanup path for a connection, reached from the read
// pump on disconnect and from fan-out on a failed send. It is idempotent:
// repeated drops of the same client are no-ops. Only connections that held
// a registry entry produce a user_left notice.
func (h *Hub) drop(client *Client) {
	if client == nil {
		return
	}

	h.mutex.Lock()
	name, wasRegistered := h.clients[client]
	if wasRegistered {
		delete(h.clients, client)
	}
	alreadyClosed := client.closed
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the send channel after releasing the lock.
	if !alreadyClosed {
		close(client.send)
	}

	if !wasRegistered {
		return
	}

	log.Printf("Client %s (%q) unregistered. Total clients: %d", client.id, name, clientCount)
	h.broadcastEvent(newUserLeftEvent(name, time.Now()).encode(), nil, false)
}

// broadcastEvent delivers one payload to every registered connection,
// skipping exclude unless echoToExcluded is set. Sends are attempted for
// all recipients even when some fail; failed recipients are funneled into
// drop in a second pass so the registry is never mutated mid-iteration.
func (h *Hub) broadcastEvent(payload []byte, exclude *Client, echoToExcluded bool) {
	clients := h.clientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if client == exclude && !echoToExcluded {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		log.Printf("Client %s unreachable during broadcast; cleaning up", client.id)
		h.drop(client)
	}
}

// safeSend queues a payload for one client's write pump without blocking.
// It reports false when the client is gone or its buffer is full, which
// marks the connection stale for cleanup.
func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the send attempt so drop cannot close the
	// channel between the closed check and the send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// SnapshotNames returns a point-in-time, alphabetically ordered list of all
// registered display names.
func (h *Hub) SnapshotNames() []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	names := make([]string, 0, len(h.clients))
	for _, name := range h.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// clientSnapshot returns a point-in-time slice of all registered connections.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes all registered connections during hub shutdown.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection %s: %v", client.id, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for the pump
// goroutines to finish or the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
