package room

import (
	"sync"
)

// Process-wide mapping from room id to Room. Rooms are created lazily on
// first join and removed synchronously by the departure that empties them.
// The registry never blocks on I/O; every operation is a guarded map
// mutation.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Returns the room for the given id, creating and storing an empty one when
// absent. Callers that got a reference just before a concurrent teardown see
// Defunct inside Do and must call GetOrCreate again.
func (g *Registry) GetOrCreate(roomID string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		r = NewRoom(roomID)
		g.rooms[roomID] = r
	}
	return r
}

// Returns the room for the given id without creating one.
func (g *Registry) Get(roomID string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[roomID]
	return r, ok
}

// Deletes the room iff its presence set is empty at the time of the call.
// The check and the removal happen under both the registry lock and the
// room lock, so a join racing the emptying departure either lands before
// the check (room survives) or after the delete (a fresh room is created);
// it can never resurrect the torn-down instance.
func (g *Registry) RemoveIfEmpty(roomID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[roomID]
	if !ok {
		return
	}

	r.mu.Lock()
	empty := len(r.presence) == 0
	if empty {
		r.defunct = true
	}
	r.mu.Unlock()

	if empty {
		delete(g.rooms, roomID)
	}
}

// Number of rooms with at least one member.
func (g *Registry) RoomCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Total member count across all rooms.
func (g *Registry) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, r := range g.rooms {
		r.mu.Lock()
		total += len(r.presence)
		r.mu.Unlock()
	}
	return total
}

// Returns a map of room id to member count for every registered room.
func (g *Registry) ActiveRooms() map[string]int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	active := make(map[string]int, len(g.rooms))
	for id, r := range g.rooms {
		r.mu.Lock()
		active[id] = len(r.presence)
		r.mu.Unlock()
	}
	return active
}
