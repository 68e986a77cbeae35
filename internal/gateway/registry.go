// Package gateway implements the real-time side of the platform: a websocket
// endpoint, a registry of live connections, and room-scoped broadcast.
// Delivery is best effort. A frame enqueued to a healthy connection goes out
// in enqueue order; a frame to a saturated connection is dropped.
package gateway

import (
	"fmt"
	"sync"
)

// Registry tracks every live connection and its room memberships. One
// Registry is constructed at startup and handed to whoever needs to publish;
// there is no package-level instance.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[string]map[string]*Connection
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]*Connection),
		rooms: make(map[string]map[string]*Connection),
	}
}

// UserRoom is the per-user room every authenticated connection is placed in,
// used for direct notifications.
func UserRoom(userID uint) string {
	return fmt.Sprintf("user:%d", userID)
}

func (r *Registry) add(conn *Connection) {
	r.mu.Lock()
	r.conns[conn.ID] = conn
	r.mu.Unlock()
}

// remove tears the connection down synchronously: by the time it returns the
// connection is out of every room, departure events have been enqueued to the
// remaining members, and no later Publish can reach it.
func (r *Registry) remove(conn *Connection) {
	rooms := conn.roomList()
	r.mu.Lock()
	for _, room := range rooms {
		r.detachLocked(conn, room)
	}
	delete(r.conns, conn.ID)
	r.mu.Unlock()

	for _, room := range rooms {
		r.broadcast(room, Event{
			Event: EventLeft,
			Room:  room,
			Data:  map[string]uint{"userId": conn.UserID()},
		}, conn.ID)
	}
	conn.close()
}

func (r *Registry) detachLocked(conn *Connection, room string) {
	members, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
	conn.removeRoom(room)
}

// join adds the connection to a room. The membership event goes to the other
// members only; the joiner gets its own acknowledgement from the handler.
func (r *Registry) join(conn *Connection, room string) {
	if conn.inRoom(room) {
		return
	}
	r.mu.Lock()
	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[room] = members
	}
	members[conn.ID] = conn
	conn.addRoom(room)
	r.mu.Unlock()

	r.broadcast(room, Event{
		Event: EventJoined,
		Room:  room,
		Data:  map[string]uint{"userId": conn.UserID()},
	}, conn.ID)
}

// leave removes the connection from a room and notifies the remaining
// members. Leaving a room the connection is not in is a no-op.
func (r *Registry) leave(conn *Connection, room string) {
	if !conn.inRoom(room) {
		return
	}
	r.mu.Lock()
	r.detachLocked(conn, room)
	r.mu.Unlock()

	r.broadcast(room, Event{
		Event: EventLeft,
		Room:  room,
		Data:  map[string]uint{"userId": conn.UserID()},
	}, conn.ID)
}

// Publish enqueues an event to every member of a room. A room nobody is in
// is not an error; the event just has no audience.
func (r *Registry) Publish(room, event string, data interface{}) {
	r.broadcast(room, Event{Event: event, Room: room, Data: data}, "")
}

// PublishToUser is a convenience wrapper over the per-user room.
func (r *Registry) PublishToUser(userID uint, event string, data interface{}) {
	r.Publish(UserRoom(userID), event, data)
}

func (r *Registry) broadcast(room string, ev Event, skipConnID string) {
	frame := encodeEvent(ev)
	r.mu.RLock()
	members := make([]*Connection, 0, len(r.rooms[room]))
	for id, conn := range r.rooms[room] {
		if id == skipConnID {
			continue
		}
		members = append(members, conn)
	}
	r.mu.RUnlock()
	for _, conn := range members {
		conn.send(frame)
	}
}

// ConnCount reports the number of live connections.
func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// RoomSize reports the number of members in a room.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}
