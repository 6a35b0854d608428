package main

import (
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Izde13/chat-seguro/internal/crypto"
	"github.com/Izde13/chat-seguro/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log.Println("Starting secure chat server...")

	cfg := server.NewConfigFromEnv()

	cipher, err := crypto.NewCipher()
	if err != nil {
		log.Fatalf("Failed to generate shared key: %v", err)
	}

	// Local debug only: never log the key in a real deployment.
	log.Printf("Shared key (local debug only): %s", cipher.KeyBase64())
	log.Printf("To expose with ngrok: ngrok http %s (clients must connect via wss://<subdomain>.ngrok.app/ws)", cfg.ListenAddr)

	hub := server.NewHub(*cfg, cipher)
	go hub.Run()

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(cfg.ListenAddr, mux)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.StartServer(httpServer)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		log.Printf("Received signal %v, shutting down", sig)
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
}
