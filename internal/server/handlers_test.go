package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-relay/internal/presence"
	"github.com/Tyrowin/nexus-relay/internal/room"
)

func TestWebSocketHandlerAfterHubShutdown(t *testing.T) {
	t.Cleanup(func() { SetConfig(nil) })

	hub := NewHub()
	go hub.Run()
	if err := hub.Shutdown(time.Second); err != nil {
		t.Fatalf("Hub shutdown failed: %v", err)
	}

	api := NewAPI(hub, presence.NewRegistry(), room.NewStore(0))
	testServer := httptest.NewServer(http.HandlerFunc(api.WebSocketHandler))
	defer testServer.Close()

	cfg := NewConfig()
	cfg.AllowedOrigins = []string{testServer.URL}
	SetConfig(cfg)

	headers := http.Header{}
	headers.Set("Origin", testServer.URL)
	wsURL := strings.Replace(testServer.URL, "http", "ws", 1)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		// The upgrade itself may already be refused; either way the
		// handler must not hang on to the connection.
		return
	}
	defer func() { _ = conn.Close() }()

	// The handler must close the connection promptly instead of blocking
	// on the drained register channel.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected connection to be closed by the server")
	} else if netErr, ok := err.(interface{ Timeout() bool }); ok && netErr.Timeout() {
		t.Error("Connection stayed open: registration blocked after hub shutdown")
	}
}

func TestWebSocketHandlerRejectsNonGet(t *testing.T) {
	hub := NewHub()
	api := NewAPI(hub, presence.NewRegistry(), room.NewStore(0))
	testServer := httptest.NewServer(http.HandlerFunc(api.WebSocketHandler))
	defer testServer.Close()

	resp, err := http.Post(testServer.URL, "text/plain", strings.NewReader("test"))
	if err != nil {
		t.Fatalf("Failed to make POST request: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("Expected status %d for POST request, got %d", http.StatusMethodNotAllowed, resp.StatusCode)
	}
}
