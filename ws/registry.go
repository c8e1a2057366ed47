package ws

import (
	"sync"

	"github.com/cmallory/chat-relay/globals"
)

// Registry is the process-wide table of live client send paths grouped by
// room identifier. It is the single structure mutated from multiple
// connection goroutines: the outer map has its own lock and every room entry
// carries its own lock, so broadcasts in different rooms do not contend.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*roomEntry
}

type roomEntry struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*roomEntry)}
}

// Register adds the client's send path under the room identifier, creating
// the room's entry on first contact. Callers must not register the same
// client twice.
func (r *Registry) Register(roomIdentifier string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[roomIdentifier]
	if !ok {
		entry = &roomEntry{clients: make(map[*Client]struct{})}
		r.rooms[roomIdentifier] = entry
	}
	entry.mu.Lock()
	entry.clients[c] = struct{}{}
	entry.mu.Unlock()
}

// Unregister removes the client from the room's set and prunes the entry when
// it becomes empty. Calling it again for the same client is a no-op; both the
// normal close path and the error path may attempt it.
func (r *Registry) Unregister(roomIdentifier string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.rooms[roomIdentifier]
	if !ok {
		return
	}
	entry.mu.Lock()
	delete(entry.clients, c)
	empty := len(entry.clients) == 0
	entry.mu.Unlock()
	if empty {
		delete(r.rooms, roomIdentifier)
	}
}

// Broadcast delivers payload to every client registered under the room at the
// moment of the call. It iterates a consistent snapshot of the room's set; a
// client registered while a broadcast is in flight may miss that one payload
// but receives all subsequent ones. A recipient whose buffer is full or whose
// connection is already gone is dropped from the room (implicit unregister)
// instead of failing or stalling the broadcast.
func (r *Registry) Broadcast(roomIdentifier string, payload []byte) {
	r.mu.RLock()
	entry, ok := r.rooms[roomIdentifier]
	r.mu.RUnlock()
	if !ok {
		return
	}

	entry.mu.RLock()
	recipients := make([]*Client, 0, len(entry.clients))
	for c := range entry.clients {
		recipients = append(recipients, c)
	}
	entry.mu.RUnlock()

	for _, c := range recipients {
		if !c.trySend(payload) {
			globals.AppLogger.Debug("dropping unreachable client", "room", roomIdentifier)
			r.Unregister(roomIdentifier, c)
			c.closeSend()
		}
	}
}

// NoClients returns the number of clients registered for the room.
func (r *Registry) NoClients(roomIdentifier string) int {
	r.mu.RLock()
	entry, ok := r.rooms[roomIdentifier]
	r.mu.RUnlock()
	if !ok {
		return 0
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return len(entry.clients)
}

// ActiveRooms returns the identifiers of rooms with at least one connection.
func (r *Registry) ActiveRooms() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}
