package gateway

import (
	"testing"

	"github.com/peerloop/peerloop/internal/store"
	"github.com/peerloop/peerloop/internal/token"
)

func newTestHandler() (*Handler, *token.Service) {
	tokens := token.NewService("test-master-key", store.NewMemoryStorage())
	return NewHandler(NewRegistry(), tokens), tokens
}

func TestDispatchMalformedMessage(t *testing.T) {
	handler, _ := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	handler.dispatch(conn, []byte("{not json"))

	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
}

func TestDispatchUnknownMessageType(t *testing.T) {
	handler, _ := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	handler.dispatch(conn, []byte(`{"type":"subscribe"}`))

	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
}

func TestAuthenticateWithValidToken(t *testing.T) {
	handler, tokens := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	fullToken, err := tokens.IssueFullToken(42)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+fullToken+`"}`))

	if conn.UserID() != 42 {
		t.Fatalf("userID = %d, want 42", conn.UserID())
	}
	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventAuthenticated {
		t.Fatalf("got %+v, want one authenticated event", events)
	}
	// the connection is reachable through its per-user room
	if handler.registry.RoomSize(UserRoom(42)) != 1 {
		t.Fatal("authenticated connection not in its user room")
	}
}

func TestAuthenticateWithInvalidTokenStaysUnauthenticated(t *testing.T) {
	handler, _ := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"garbage"}`))

	if conn.UserID() != 0 {
		t.Fatal("invalid token must not bind an identity")
	}
	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
}

func TestAuthenticateRejectsPendingToken(t *testing.T) {
	handler, tokens := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	pending, err := tokens.IssuePendingToken(42)
	if err != nil {
		t.Fatalf("IssuePendingToken failed: %v", err)
	}
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+pending+`"}`))

	if conn.UserID() != 0 {
		t.Fatal("a pending token is not an identity")
	}
	if events := drainEvents(t, conn); len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
}

func TestAuthenticateBindsAtMostOnce(t *testing.T) {
	handler, tokens := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	firstToken, err := tokens.IssueFullToken(1)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+firstToken+`"}`))
	drainEvents(t, conn)

	secondToken, err := tokens.IssueFullToken(2)
	if err != nil {
		t.Fatalf("IssueFullToken failed: %v", err)
	}
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+secondToken+`"}`))

	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
	if conn.UserID() != 1 {
		t.Fatalf("userID = %d, want the original binding 1", conn.UserID())
	}
	if handler.registry.RoomSize(UserRoom(2)) != 0 {
		t.Fatal("refused rebind must not join the second user's room")
	}

	// the first user's direct notifications still go to their own
	// connection, never to one bound to someone else
	handler.registry.PublishToUser(1, "note", nil)
	events = drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != "note" {
		t.Fatalf("got %+v, want the user 1 notification", events)
	}
	handler.registry.PublishToUser(2, "note", nil)
	if events := drainEvents(t, conn); len(events) != 0 {
		t.Fatalf("connection bound to user 1 received user 2 events: %+v", events)
	}
}

func TestJoinRequiresAuthentication(t *testing.T) {
	handler, _ := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	handler.dispatch(conn, []byte(`{"type":"join","room":"review:7"}`))

	if events := drainEvents(t, conn); len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
	if handler.registry.RoomSize("review:7") != 0 {
		t.Fatal("unauthenticated connection joined a room")
	}
}

func TestJoinAndLeaveRoundTrip(t *testing.T) {
	handler, tokens := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	fullToken, _ := tokens.IssueFullToken(42)
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+fullToken+`"}`))
	drainEvents(t, conn)

	handler.dispatch(conn, []byte(`{"type":"join","room":"review:7"}`))
	events := drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventJoined || events[0].Room != "review:7" {
		t.Fatalf("got %+v, want join acknowledgement", events)
	}
	if handler.registry.RoomSize("review:7") != 1 {
		t.Fatal("join did not register membership")
	}

	handler.dispatch(conn, []byte(`{"type":"leave","room":"review:7"}`))
	events = drainEvents(t, conn)
	if len(events) != 1 || events[0].Event != EventLeft || events[0].Room != "review:7" {
		t.Fatalf("got %+v, want leave acknowledgement", events)
	}
	if handler.registry.RoomSize("review:7") != 0 {
		t.Fatal("leave did not drop membership")
	}
}

func TestJoinWithoutRoomName(t *testing.T) {
	handler, tokens := newTestHandler()
	conn := newConnection()
	handler.registry.add(conn)

	fullToken, _ := tokens.IssueFullToken(42)
	handler.dispatch(conn, []byte(`{"type":"authenticate","token":"`+fullToken+`"}`))
	drainEvents(t, conn)

	handler.dispatch(conn, []byte(`{"type":"join"}`))
	if events := drainEvents(t, conn); len(events) != 1 || events[0].Event != EventError {
		t.Fatalf("got %+v, want one error event", events)
	}
}
