package gateway

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/peerloop/peerloop/params"
)

// Connection is the registry's view of one websocket client. The network
// socket itself lives in the handler; the registry only ever touches the
// outbound queue, so a Connection can be driven by a plain channel reader in
// tests.
type Connection struct {
	ID string

	mu     sync.Mutex
	userID uint
	rooms  map[string]struct{}

	out      chan []byte
	closed   chan struct{}
	stopOnce sync.Once
}

func newConnection() *Connection {
	return &Connection{
		ID:     uuid.NewString(),
		rooms:  make(map[string]struct{}),
		out:    make(chan []byte, params.GatewaySendBufferSize),
		closed: make(chan struct{}),
	}
}

// UserID returns the authenticated user, or zero before authentication.
func (c *Connection) UserID() uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Connection) authenticated() bool {
	return c.UserID() != 0
}

func (c *Connection) setUserID(id uint) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
}

func (c *Connection) roomList() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		list = append(list, room)
	}
	return list
}

func (c *Connection) inRoom(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[room]
	return ok
}

func (c *Connection) addRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

func (c *Connection) removeRoom(room string) {
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// send enqueues a frame without blocking. Frames to a consumer that cannot
// keep up are dropped rather than stalling every other connection; ordering
// of the frames that do go out is preserved by the single outbound queue.
func (c *Connection) send(frame []byte) {
	select {
	case <-c.closed:
	case c.out <- frame:
	default:
		slog.Debug("Dropping frame for slow consumer", "connID", c.ID)
	}
}

// close signals the writer to stop. The outbound channel is never closed so
// that concurrent send calls can never panic; they observe the closed signal
// instead. Idempotent.
func (c *Connection) close() {
	c.stopOnce.Do(func() {
		close(c.closed)
	})
}
