package gateway

import (
	"encoding/json"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/peerloop/peerloop/internal/token"
	"github.com/peerloop/peerloop/params"
)

// Handler terminates websocket connections and drives the message protocol
// over the registry.
type Handler struct {
	registry *Registry
	tokens   *token.Service
}

func NewHandler(registry *Registry, tokens *token.Service) *Handler {
	return &Handler{registry: registry, tokens: tokens}
}

// UpgradeRequired gates the route so plain HTTP requests get a 426 instead
// of reaching the websocket handler.
func UpgradeRequired(ctx *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(ctx) {
		return ctx.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Serve returns the fiber handler for the websocket endpoint.
func (h *Handler) Serve() fiber.Handler {
	return websocket.New(h.handle, websocket.Config{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	})
}

func (h *Handler) handle(ws *websocket.Conn) {
	conn := newConnection()
	h.registry.add(conn)

	// Writer goroutine. Owns all writes to the socket so frames leave in
	// enqueue order.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-conn.closed:
				return
			case frame := <-conn.out:
				if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}()

	ws.SetReadLimit(params.GatewayReadLimit)
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			break
		}
		h.dispatch(conn, raw)
	}

	// Teardown is synchronous: once remove returns the connection is out of
	// every room and departure events are already enqueued to the remaining
	// members.
	h.registry.remove(conn)
	<-writerDone
	ws.Close()
}

func (h *Handler) dispatch(conn *Connection, raw []byte) {
	var msg clientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		conn.send(errorEvent("bad_message", "malformed message"))
		return
	}
	switch msg.Type {
	case MsgAuthenticate:
		h.authenticate(conn, msg.Token)
	case MsgJoin:
		h.joinRoom(conn, msg.Room)
	case MsgLeave:
		h.leaveRoom(conn, msg.Room)
	default:
		conn.send(errorEvent("bad_message", "unknown message type"))
	}
}

// authenticate binds the connection to a user. An invalid token never
// degrades the connection to some fallback identity: the client gets an
// error event and stays unauthenticated. A connection binds at most once;
// rebinding would carry the old identity's room memberships over to the new
// one, so a second authenticate is refused and the client must reconnect.
func (h *Handler) authenticate(conn *Connection, tokenStr string) {
	if conn.authenticated() {
		conn.send(errorEvent("bad_message", "connection is already authenticated"))
		return
	}
	userID, err := h.tokens.VerifyFull(tokenStr)
	if err != nil {
		conn.send(errorEvent("unauthorized", "invalid or expired token"))
		return
	}
	conn.setUserID(userID)
	h.registry.join(conn, UserRoom(userID))
	conn.send(encodeEvent(Event{
		Event: EventAuthenticated,
		Data:  map[string]uint{"userId": userID},
	}))
	slog.Debug("Websocket authenticated", "connID", conn.ID, "userID", userID)
}

func (h *Handler) joinRoom(conn *Connection, room string) {
	if !conn.authenticated() {
		conn.send(errorEvent("unauthorized", "authenticate first"))
		return
	}
	if room == "" {
		conn.send(errorEvent("bad_message", "room is required"))
		return
	}
	h.registry.join(conn, room)
	conn.send(encodeEvent(Event{Event: EventJoined, Room: room,
		Data: map[string]uint{"userId": conn.UserID()}}))
}

func (h *Handler) leaveRoom(conn *Connection, room string) {
	if !conn.authenticated() {
		conn.send(errorEvent("unauthorized", "authenticate first"))
		return
	}
	if room == "" {
		conn.send(errorEvent("bad_message", "room is required"))
		return
	}
	h.registry.leave(conn, room)
	conn.send(encodeEvent(Event{Event: EventLeft, Room: room,
		Data: map[string]uint{"userId": conn.UserID()}}))
}
