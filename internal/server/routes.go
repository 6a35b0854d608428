// Package server wires the HTTP handlers into a chi router.
package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// SetupRoutes configures and returns the application router: health check
// at the root and the WebSocket endpoint at /ws.
func SetupRoutes(hub *Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", HealthHandler)
	r.Get("/ws", WebSocketHandler(hub))

	return r
}
