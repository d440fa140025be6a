// Package server exposes the relay's HTTP surface: the WebSocket upgrade
// endpoint, the read-only snapshot API, and the health check.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-relay/internal/presence"
	"github.com/Tyrowin/nexus-relay/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// API bundles the hub and stores behind the relay's HTTP handlers. The
// snapshot endpoints serve clients that have not yet established a live
// connection.
type API struct {
	hub      *Hub
	registry *presence.Registry
	rooms    *room.Store
}

// NewAPI creates the HTTP handler set over the given hub and stores.
func NewAPI(hub *Hub, registry *presence.Registry, rooms *room.Store) *API {
	return &API{hub: hub, registry: registry, rooms: rooms}
}

// WebSocketHandler upgrades the HTTP connection, creates a Client, and hands
// it to the hub, which launches the pump goroutines.
func (a *API) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(conn, a.hub, r.RemoteAddr)

	// A hub that has shut down no longer drains the register channel.
	select {
	case a.hub.register <- client:
	case <-a.hub.ctx.Done():
		log.Printf("Rejecting connection from %s: hub is shut down", r.RemoteAddr)
		_ = conn.Close()
	}
}

// UsersHandler returns a snapshot of every known user.
func (a *API) UsersHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.registry.List())
}

// MessagesHandler returns the ordered message log for the requested room,
// defaulting to "general". An unknown room yields a 404.
func (a *API) MessagesHandler(w http.ResponseWriter, r *http.Request) {
	roomID := r.URL.Query().Get("roomId")
	if roomID == "" {
		roomID = room.DefaultRoomID
	}

	messages, err := a.rooms.Messages(roomID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "Room not found"})
			return
		}
		log.Printf("Failed to read messages for %q: %v", roomID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
		return
	}

	if messages == nil {
		messages = []room.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

// RoomsHandler returns a snapshot of every room including its message log.
func (a *API) RoomsHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.rooms.Rooms())
}

// HealthHandler provides a simple health check endpoint.
func (a *API) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Nexus relay is running!")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}
