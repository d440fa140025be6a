// Package presence tracks which chat participants are known to the relay and
// whether they currently hold a live connection.
package presence

import (
	"sync"
	"time"
)

// User is a participant's presence record. Records are created on join and
// never deleted; a disconnect only flips the record to offline.
type User struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

// Registry is the authoritative in-memory set of known users. All methods are
// safe for concurrent use; the registry owns the liveness fields exclusively.
type Registry struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]User)}
}

// Upsert inserts or overwrites the record for user.ID, marking it online and
// stamping lastSeen. The stored record is returned. Last writer wins on
// concurrent upserts for the same id.
func (r *Registry) Upsert(user User) User {
	user.IsOnline = true
	user.LastSeen = time.Now().UTC()

	r.mu.Lock()
	r.users[user.ID] = user
	r.mu.Unlock()

	return user
}

// MarkOffline flips the record for id to offline and stamps lastSeen. Unknown
// ids are ignored.
func (r *Registry) MarkOffline(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return
	}
	user.IsOnline = false
	user.LastSeen = time.Now().UTC()
	r.users[id] = user
}

// List returns a snapshot of every known user in unspecified order. Callers
// that need a stable order are expected to sort the result themselves.
func (r *Registry) List() []User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make([]User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	return users
}
