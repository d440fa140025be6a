// Package server wires the relay's HTTP handlers into a chi router.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

// Routes configures and returns the relay's router: health check, WebSocket
// endpoint, and the read-only snapshot API under /api.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
	}))

	r.Get("/", a.HealthHandler)
	r.Get("/ws", a.WebSocketHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/users", a.UsersHandler)
		r.Get("/messages", a.MessagesHandler)
		r.Get("/rooms", a.RoomsHandler)
	})

	return r
}
