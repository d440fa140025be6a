// Package testhelpers provides common utilities for exercising the relay in
// tests: WebSocket event plumbing, HTTP requests, and response assertions.
package testhelpers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-relay/internal/server"
)

// ConnectWebSocket dials the relay's /ws endpoint, presenting the given
// origin. It returns the live connection or an error.
func ConnectWebSocket(wsURL, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(wsURL, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// SendEvent writes a named event with the given payload as a JSON envelope.
func SendEvent(conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return conn.WriteJSON(server.Envelope{Event: event, Data: raw})
}

// ReadEvent reads the next envelope from the connection.
func ReadEvent(conn *websocket.Conn) (server.Envelope, error) {
	var env server.Envelope
	err := conn.ReadJSON(&env)
	return env, err
}

// WaitForEvent reads envelopes until one matching the wanted event name
// arrives, failing the test if the timeout elapses first. Unrelated events
// are skipped, since broadcasts interleave freely.
func WaitForEvent(t *testing.T, conn *websocket.Conn, event string, timeout time.Duration) server.Envelope {
	t.Helper()

	deadline := time.Now().Add(timeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}

	for {
		env, err := ReadEvent(conn)
		if err != nil {
			t.Fatalf("Did not receive %q event: %v", event, err)
		}
		if env.Event == event {
			return env
		}
	}
}

// DecodeData unmarshals an envelope's payload into target.
func DecodeData(t *testing.T, env server.Envelope, target any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, target); err != nil {
		t.Fatalf("Failed to decode %q payload: %v", env.Event, err)
	}
}

// MakeRequest creates and executes an HTTP request with a 5-second timeout,
// failing the test on transport errors.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// DecodeJSONBody unmarshals the response body into target and closes it.
func DecodeJSONBody(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}
