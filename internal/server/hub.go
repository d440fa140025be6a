// Package server coordinates client registration, event fan-out, and
// connection cleanup for the relay via the Hub type.
package server

import (
	"context"
	"log"
	"sync"
	"time"
)

// EventHandler receives connection lifecycle notifications and decoded
// inbound events from the hub's clients. The relay's Dispatcher implements
// it; tests may substitute their own.
type EventHandler interface {
	HandleConnect(client *Client)
	HandleEvent(client *Client, env Envelope)
	HandleDisconnect(client *Client)
}

// Hub owns the set of live WebSocket connections and exposes the broadcast
// and unicast primitives the Dispatcher fans events out with. It carries no
// business logic; send failures to individual connections are swallowed
// per-destination so one stale connection cannot abort delivery to others.
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	handler    EventHandler
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub ready to manage WebSocket connections.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetHandler installs the event handler notified of connects, disconnects,
// and inbound events. It must be called before Run.
func (h *Hub) SetHandler(handler EventHandler) {
	h.handler = handler
}

// GetRegisterChan returns the channel used for registering new clients.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's main loop, handling client registration and
// unregistration until Shutdown is called. It should run in its own
// goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				log.Printf("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Connection %s registered from %s. Total connections: %d", client.id, client.addr, clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

			if h.handler != nil {
				h.handler.HandleConnect(client)
			}

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				client.closed = true
				clientCount := len(h.clients)
				h.mutex.Unlock()
				// Close the channel after releasing the lock
				close(client.send)
				log.Printf("Connection %s unregistered from %s. Total connections: %d", client.id, client.addr, clientCount)

				if h.handler != nil {
					h.handler.HandleDisconnect(client)
				}
			} else {
				h.mutex.Unlock()
			}
		}
	}
}

// BroadcastAll encodes the event and sends it to every live connection.
func (h *Hub) BroadcastAll(event string, data any) {
	h.fanOut(event, data, "")
}

// BroadcastExcept encodes the event and sends it to every live connection
// except the one identified by connID.
func (h *Hub) BroadcastExcept(connID, event string, data any) {
	h.fanOut(event, data, connID)
}

// Unicast encodes the event and sends it to the single connection identified
// by connID. Unknown or dead connections are ignored.
func (h *Hub) Unicast(connID, event string, data any) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Dropping unicast %s to %s: %v", event, connID, err)
		return
	}

	h.mutex.RLock()
	client := h.clients[connID]
	h.mutex.RUnlock()

	if client == nil {
		return
	}
	if !h.safeSend(client, frame) {
		h.removeFailedClients([]*Client{client})
	}
}

func (h *Hub) fanOut(event string, data any, exceptID string) {
	frame, err := encodeEvent(event, data)
	if err != nil {
		log.Printf("Dropping broadcast %s: %v", event, err)
		return
	}

	clients := h.getClientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if exceptID != "" && client.id == exceptID {
			continue
		}
		if !h.safeSend(client, frame) {
			failed = append(failed, client)
		}
	}
	h.removeFailedClients(failed)
}

func (h *Hub) safeSend(client *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// underneath us by a concurrent unregister.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client.id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		return false
	}
}

// getClientSnapshot returns a thread-safe snapshot of all current clients.
func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// removeFailedClients drops clients whose send buffers are full or closed and
// closes their channels.
func (h *Hub) removeFailedClients(failed []*Client) {
	if len(failed) == 0 {
		return
	}

	h.mutex.Lock()
	var removed []*Client
	var channelsToClose []chan []byte
	for _, client := range failed {
		if _, exists := h.clients[client.id]; exists {
			delete(h.clients, client.id)
			client.closed = true
			removed = append(removed, client)
			channelsToClose = append(channelsToClose, client.send)
			log.Printf("Connection %s from %s removed due to full send buffer", client.id, client.addr)
		}
	}
	h.mutex.Unlock()

	// Close channels after releasing the lock
	for _, ch := range channelsToClose {
		close(ch)
	}

	// An evicted client's readPump cannot report the disconnect itself: by
	// the time it sends on unregister the client is already gone from the
	// map, so the handler must be notified here.
	if h.handler != nil {
		for _, client := range removed {
			h.handler.HandleDisconnect(client)
		}
	}
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.getClientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or for the timeout to elapse.
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
