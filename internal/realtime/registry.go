// Package realtime tracks which websocket connections belong to which
// room and fans messages out to them.
package realtime

import (
	"encoding/json"
	"sync"
)

// Registry maps rooms to their live connections. A room exists exactly
// while it has at least one member; the last Leave removes it.
type Registry struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[int64]map[*Conn]struct{})}
}

// Join adds a connection to a room, creating the room on first join.
func (r *Registry) Join(room int64, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[*Conn]struct{})
		r.rooms[room] = members
	}
	members[c] = struct{}{}
}

// Leave removes a connection from a room. When the room empties it is
// deleted. Leaving a room the connection is not in is a no-op.
func (r *Registry) Leave(room int64, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a snapshot of the room's connections.
func (r *Registry) Members(room int64) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := r.rooms[room]
	out := make([]*Conn, 0, len(members))
	for c := range members {
		out = append(out, c)
	}
	return out
}

// Count returns the number of connections in a room.
func (r *Registry) Count(room int64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// Rooms returns the ids of all rooms that currently have members.
func (r *Registry) Rooms() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]int64, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// Broadcast sends payload to every member of the room except exclude
// (pass nil to reach everyone). The member set is snapshotted first so
// sends happen outside the lock. Connections whose send fails are
// dropped from the room and closed; a dead peer must not stall the
// rest of the room.
func (r *Registry) Broadcast(room int64, payload []byte, exclude *Conn) {
	var failed []*Conn
	for _, c := range r.Members(room) {
		if c == exclude {
			continue
		}
		if err := c.Send(payload); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		r.Leave(room, c)
		_ = c.Close()
	}
}

// BroadcastJSON marshals v once and broadcasts it.
func (r *Registry) BroadcastJSON(room int64, v any, exclude *Conn) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	r.Broadcast(room, payload, exclude)
	return nil
}

// CloseAll closes every connection and empties the registry. Used
// during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	rooms := r.rooms
	r.rooms = make(map[int64]map[*Conn]struct{})
	r.mu.Unlock()

	for _, members := range rooms {
		for c := range members {
			_ = c.Close()
		}
	}
}
