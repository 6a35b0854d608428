package integration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Izde13/chat-seguro/internal/server"
	"github.com/Izde13/chat-seguro/test/testhelpers"
)

func TestGracefulShutdownClosesClients(t *testing.T) {
	testServer, hub, _ := testhelpers.StartRelay(t, server.Config{})

	ana := testhelpers.DialChat(t, testServer.URL)
	testhelpers.RegisterAndHandshake(t, ana, "Ana")

	err := hub.Shutdown(5 * time.Second)
	assert.NoError(t, err)

	// The server side tore the connection down; the next read must fail.
	testhelpers.ExpectClosed(t, ana)
}

func TestShutdownWithNoClients(t *testing.T) {
	_, hub, _ := testhelpers.StartRelay(t, server.Config{})

	assert.NoError(t, hub.Shutdown(time.Second))
}
