package ws

import (
	"testing"

	"messaging-service/internal/auth"
	"messaging-service/internal/models"
)

func testConn(userID int, username string) *Conn {
	return newConn(nil, auth.Identity{UserID: userID, Username: username}, "", "")
}

func recvEvent(t *testing.T, c *Conn) models.ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatalf("expected an event for conn %s, got none", c.ID)
		return models.ServerEvent{}
	}
}

func assertNoEvent(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case ev := <-c.send:
		t.Fatalf("expected no event for conn %s, got %q", c.ID, ev.Type)
	default:
	}
}

func TestHubJoinAndLeave(t *testing.T) {
	hub := NewHub()
	conn := testConn(1, "alice")

	hub.Register(conn)
	hub.Join(10, conn)
	if !hub.InRoom(10, conn.ID) {
		t.Fatalf("expected conn to be in room")
	}

	hub.Leave(10, conn)
	if hub.InRoom(10, conn.ID) {
		t.Fatalf("expected conn to have left room")
	}
	if len(hub.rooms) != 0 {
		t.Fatalf("expected empty room to be removed")
	}

	// Leaving again must not error or mutate anything.
	hub.Leave(10, conn)
}

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	hub.Register(alice)
	hub.Register(bob)
	hub.Join(10, alice)
	hub.Join(10, bob)

	hub.Broadcast(10, models.ServerEvent{Type: models.EventUserTyping, UserID: 1}, alice.ID)

	ev := recvEvent(t, bob)
	if ev.Type != models.EventUserTyping || ev.UserID != 1 {
		t.Fatalf("unexpected event: %+v", ev)
	}
	assertNoEvent(t, alice)
}

func TestHubBroadcastOnlyReachesRoomMembers(t *testing.T) {
	hub := NewHub()
	member := testConn(1, "alice")
	outsider := testConn(3, "eve")
	hub.Register(member)
	hub.Register(outsider)
	hub.Join(10, member)

	hub.Broadcast(10, models.ServerEvent{Type: models.EventMessagesRead}, "")

	recvEvent(t, member)
	assertNoEvent(t, outsider)
}

func TestHubBroadcastAll(t *testing.T) {
	hub := NewHub()
	alice := testConn(1, "alice")
	bob := testConn(2, "bob")
	hub.Register(alice)
	hub.Register(bob)

	hub.BroadcastAll(models.ServerEvent{Type: models.EventUserOnline, UserID: 9})

	for _, c := range []*Conn{alice, bob} {
		ev := recvEvent(t, c)
		if ev.Type != models.EventUserOnline || ev.UserID != 9 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestHubUnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub()
	conn := testConn(1, "alice")
	hub.Register(conn)
	hub.Join(10, conn)
	hub.Join(20, conn)

	hub.Unregister(conn)

	if hub.InRoom(10, conn.ID) || hub.InRoom(20, conn.ID) {
		t.Fatalf("expected conn removed from every room")
	}
	if len(hub.conns) != 0 {
		t.Fatalf("expected conn removed from global set")
	}
}
