package server

import (
	"testing"
	"time"

	"github.com/Tyrowin/nexus-relay/internal/presence"
	"github.com/Tyrowin/nexus-relay/internal/room"
)

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub == nil {
		t.Fatal("NewHub() returned nil")
	}
	if hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialized")
	}
}

func TestHubSkipsNilRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	select {
	case hub.GetRegisterChan() <- nil:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Hub did not accept registration")
	}

	if err := hub.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestHubFanOutWithoutClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	// Fan-out against an empty hub must not panic or block.
	hub.BroadcastAll(EventPresenceSnapshot, []string{})
	hub.BroadcastExcept("nobody", EventTypingChanged, TypingPayload{})
	hub.Unicast("nobody", EventError, ErrorPayload{Message: "gone"})

	if err := hub.Shutdown(time.Second); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestHubShutdownIsIdempotentlySignaled(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	time.Sleep(10 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		done <- hub.Shutdown(time.Second)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Shutdown returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Shutdown timed out")
	}
}

// newEvictionFixture wires a hub to a real dispatcher and registers a joined
// client whose send buffer is already full, so the next fan-out evicts it.
func newEvictionFixture(t *testing.T) (*Hub, *Client, *presence.Registry) {
	t.Helper()

	registry := presence.NewRegistry()
	hub := NewHub()
	hub.SetHandler(NewDispatcher(registry, room.NewStore(0), hub))

	client := NewClient(nil, hub, "127.0.0.1:1")
	user := registry.Upsert(presence.User{ID: "u1", Username: "alice"})
	client.BindIdentity(user.ID)
	hub.clients[client.id] = client

	for i := 0; i < cap(client.send); i++ {
		client.send <- []byte("{}")
	}

	return hub, client, registry
}

func TestBroadcastEvictionMarksIdentityOffline(t *testing.T) {
	hub, client, registry := newEvictionFixture(t)

	hub.BroadcastAll(EventPresenceSnapshot, registry.List())

	hub.mutex.RLock()
	_, stillRegistered := hub.clients[client.id]
	hub.mutex.RUnlock()
	if stillRegistered {
		t.Error("Expected client with full send buffer to be evicted")
	}

	users := registry.List()
	if len(users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(users))
	}
	if users[0].IsOnline {
		t.Error("Expected evicted client's identity to be marked offline")
	}
}

func TestUnicastEvictionMarksIdentityOffline(t *testing.T) {
	hub, client, registry := newEvictionFixture(t)

	hub.Unicast(client.id, EventError, ErrorPayload{Message: "full"})

	users := registry.List()
	if len(users) != 1 {
		t.Fatalf("Expected 1 user, got %d", len(users))
	}
	if users[0].IsOnline {
		t.Error("Expected evicted client's identity to be marked offline")
	}
}

func TestClientIdentityBinding(t *testing.T) {
	client := NewClient(nil, nil, "127.0.0.1:12345")

	if client.ID() == "" {
		t.Error("Expected a transport-assigned connection id")
	}
	if client.Identity() != "" {
		t.Error("Expected no identity before join")
	}

	client.BindIdentity("u1")
	if client.Identity() != "u1" {
		t.Errorf("Expected bound identity u1, got %q", client.Identity())
	}

	client.BindIdentity("u2")
	if client.Identity() != "u2" {
		t.Error("Expected rebinding to replace the identity")
	}
}

func TestClientIDsAreUnique(t *testing.T) {
	a := NewClient(nil, nil, "127.0.0.1:1")
	b := NewClient(nil, nil, "127.0.0.1:2")

	if a.ID() == b.ID() {
		t.Error("Expected distinct connection ids")
	}
}
