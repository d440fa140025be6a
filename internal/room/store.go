// Package room holds the in-memory message logs for the relay's chat rooms.
package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultRoomID names the room that exists at process start and that callers
// fall back to when an event omits a room id.
const DefaultRoomID = "general"

// ErrRoomNotFound is returned when an operation names a room id the store has
// never seen.
var ErrRoomNotFound = errors.New("room not found")

// Message is a single chat message. Everything except the read flag is
// immutable after creation; read flips false to true exactly once via
// MarkReadByOthers and never reverts.
type Message struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Timestamp time.Time `json:"timestamp"`
	RoomID    string    `json:"roomId"`
	Read      bool      `json:"read"`
}

// Room is a named channel with an ordered message log.
type Room struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
}

// Store owns every room's message log. Logs are append-only apart from the
// read-state backfill; all methods are safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	rooms        map[string]*Room
	historyLimit int
}

// NewStore creates a store seeded with the default "general" room.
// historyLimit caps the number of messages retained per room; zero or
// negative means unbounded.
func NewStore(historyLimit int) *Store {
	s := &Store{
		rooms:        make(map[string]*Room),
		historyLimit: historyLimit,
	}
	s.rooms[DefaultRoomID] = &Room{ID: DefaultRoomID, Name: "General"}
	return s
}

// EnsureRoom creates the room if it does not exist and returns a snapshot of
// it either way. Calling it again with the same id is a no-op.
func (s *Store) EnsureRoom(id, name string) Room {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[id]
	if !ok {
		r = &Room{ID: id, Name: name}
		s.rooms[id] = r
	}
	return snapshotRoom(r)
}

// Append adds msg to the tail of the room's log, assigning a message id and
// timestamp when they are unset. It returns the stored message, or
// ErrRoomNotFound if the room does not exist.
func (s *Store) Append(roomID string, msg Message) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return Message{}, fmt.Errorf("append to %q: %w", roomID, ErrRoomNotFound)
	}

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	msg.RoomID = roomID
	msg.Read = false

	r.Messages = append(r.Messages, msg)
	if s.historyLimit > 0 && len(r.Messages) > s.historyLimit {
		r.Messages = r.Messages[len(r.Messages)-s.historyLimit:]
	}
	return msg, nil
}

// MarkReadByOthers flags every unread message in the room not authored by
// readerID as read. Reapplying it changes nothing, and a reader's own
// messages are never touched. Unknown rooms are ignored.
func (s *Store) MarkReadByOthers(roomID, readerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return
	}
	for i := range r.Messages {
		if r.Messages[i].UserID != readerID && !r.Messages[i].Read {
			r.Messages[i].Read = true
		}
	}
}

// Messages returns a snapshot of the room's log in append order, or
// ErrRoomNotFound if the room does not exist.
func (s *Store) Messages(roomID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("messages of %q: %w", roomID, ErrRoomNotFound)
	}
	return append([]Message(nil), r.Messages...), nil
}

// Rooms returns a snapshot of every room, logs included, in unspecified
// order.
func (s *Store) Rooms() []Room {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, snapshotRoom(r))
	}
	return rooms
}

func snapshotRoom(r *Room) Room {
	return Room{
		ID:       r.ID,
		Name:     r.Name,
		Messages: append([]Message(nil), r.Messages...),
	}
}
