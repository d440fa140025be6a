// Package server implements the relay's event dispatcher, the protocol state
// machine that turns inbound client events into store mutations and outbound
// fan-out.
package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/url"
	"strings"
	"sync"

	"github.com/Tyrowin/nexus-relay/internal/presence"
	"github.com/Tyrowin/nexus-relay/internal/room"
)

// avatarURLTemplate generates a deterministic avatar for users that join
// without one. Purely an external URL; the relay never fetches it.
const avatarURLTemplate = "https://api.dicebear.com/7.x/bottts/svg?seed="

// Broadcaster is the fan-out surface the dispatcher needs from the gateway.
type Broadcaster interface {
	BroadcastAll(event string, data any)
	BroadcastExcept(connID, event string, data any)
	Unicast(connID, event string, data any)
}

// Dispatcher applies the effects of each inbound event to the session
// registry and room store, then fans the results out through the gateway.
// Presence and message snapshots are broadcast to every connection; fan-out
// is not scoped to room membership.
type Dispatcher struct {
	registry *presence.Registry
	rooms    *room.Store
	gateway  Broadcaster

	typingMu sync.Mutex
	typing   map[string]TypingPayload
}

// NewDispatcher creates a dispatcher over the given stores and gateway.
func NewDispatcher(registry *presence.Registry, rooms *room.Store, gateway Broadcaster) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		rooms:    rooms,
		gateway:  gateway,
		typing:   make(map[string]TypingPayload),
	}
}

// HandleConnect is called by the hub when a connection registers. No identity
// exists until the client sends a join event.
func (d *Dispatcher) HandleConnect(client *Client) {
	log.Printf("Connection %s awaiting join", client.ID())
}

// HandleEvent routes one decoded inbound event. Unknown events are logged and
// ignored; no inbound event may crash the relay.
func (d *Dispatcher) HandleEvent(client *Client, env Envelope) {
	switch env.Event {
	case EventJoin:
		d.handleJoin(client, env.Data)
	case EventSend:
		d.handleSend(client, env.Data)
	case EventTyping:
		d.handleTyping(client, env.Data)
	case EventRead:
		d.handleRead(client, env.Data)
	default:
		log.Printf("Ignoring unknown event %q from connection %s", env.Event, client.ID())
	}
}

// HandleDisconnect marks the identity bound to the connection offline and
// pushes a fresh presence snapshot. Connections that never joined leave no
// trace.
func (d *Dispatcher) HandleDisconnect(client *Client) {
	id := client.Identity()
	if id == "" {
		return
	}
	d.registry.MarkOffline(id)
	d.gateway.BroadcastAll(EventPresenceSnapshot, d.registry.List())
}

func (d *Dispatcher) handleJoin(client *Client, data json.RawMessage) {
	var payload JoinPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("Malformed join payload from connection %s: %v", client.ID(), err)
		return
	}

	if strings.TrimSpace(payload.Username) == "" {
		d.sendError(client, "username is required")
		return
	}

	id := payload.ID
	if id == "" {
		id = client.ID()
	}
	avatar := payload.Avatar
	if avatar == "" {
		avatar = avatarURLTemplate + url.QueryEscape(payload.Username)
	}

	user := d.registry.Upsert(presence.User{
		ID:       id,
		Username: payload.Username,
		Avatar:   avatar,
	})
	client.BindIdentity(user.ID)

	d.gateway.Unicast(client.ID(), EventIdentityConfirmed, user)
	d.gateway.BroadcastAll(EventPresenceSnapshot, d.registry.List())
}

func (d *Dispatcher) handleSend(client *Client, data json.RawMessage) {
	var payload SendPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("Malformed send payload from connection %s: %v", client.ID(), err)
		return
	}

	if strings.TrimSpace(payload.Text) == "" {
		d.sendError(client, "message text is required")
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = room.DefaultRoomID
	}

	msg, err := d.rooms.Append(roomID, room.Message{
		Text:     payload.Text,
		UserID:   payload.UserID,
		Username: payload.Username,
	})
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) {
			d.sendError(client, "Room not found")
			return
		}
		log.Printf("Failed to append message to %q: %v", roomID, err)
		return
	}

	d.gateway.BroadcastAll(EventMessageCreated, msg)
}

func (d *Dispatcher) handleTyping(client *Client, data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("Malformed typing payload from connection %s: %v", client.ID(), err)
		return
	}

	if payload.RoomID == "" {
		payload.RoomID = room.DefaultRoomID
	}

	// Latest-wins per identity; no server-side expiry. Clients clear their
	// own indicator by sending isTyping:false.
	d.typingMu.Lock()
	d.typing[payload.UserID] = payload
	d.typingMu.Unlock()

	d.gateway.BroadcastExcept(client.ID(), EventTypingChanged, payload)
}

func (d *Dispatcher) handleRead(client *Client, data json.RawMessage) {
	var payload ReadPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		log.Printf("Malformed read payload from connection %s: %v", client.ID(), err)
		return
	}

	roomID := payload.RoomID
	if roomID == "" {
		roomID = room.DefaultRoomID
	}

	d.rooms.MarkReadByOthers(roomID, payload.UserID)

	messages, err := d.rooms.Messages(roomID)
	if err != nil {
		// Unknown room on read is a silent no-op.
		return
	}
	d.gateway.BroadcastAll(EventMessagesSnapshot, messages)
}

// typingState returns the last typing payload recorded for the identity id.
func (d *Dispatcher) typingState(userID string) (TypingPayload, bool) {
	d.typingMu.Lock()
	defer d.typingMu.Unlock()
	payload, ok := d.typing[userID]
	return payload, ok
}

func (d *Dispatcher) sendError(client *Client, message string) {
	d.gateway.Unicast(client.ID(), EventError, ErrorPayload{Message: message})
}
