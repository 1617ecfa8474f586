package ws

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubRoomMembership(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := uuid.New()
	bob := uuid.New()

	hub.JoinGame("ROOM1", alice)
	hub.JoinGame("ROOM1", alice) // idempotent
	hub.JoinGame("ROOM1", bob)
	assert.Equal(t, 2, hub.RoomSize("ROOM1"))

	hub.LeaveGame("ROOM1", alice)
	assert.Equal(t, 1, hub.RoomSize("ROOM1"))
	assert.Equal(t, 0, hub.RoomSize("OTHER"))
}

func TestHubSendToUser(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := uuid.New()
	conn := NewConnection(nil, zerolog.Nop())
	hub.RegisterConnection(alice, conn)

	msg := Message{Type: TypeLeaderboardUpdate, Payload: json.RawMessage(`{}`)}
	require.NoError(t, hub.SendToUser(alice, msg))

	select {
	case got := <-conn.sendCh:
		assert.Equal(t, TypeLeaderboardUpdate, got.Type)
	default:
		t.Fatal("message not queued")
	}

	assert.ErrorIs(t, hub.SendToUser(uuid.New(), msg), ErrConnectionNotFound)
}

func TestHubUnregisterLeavesRooms(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	alice := uuid.New()
	conn := NewConnection(nil, zerolog.Nop())
	hub.RegisterConnection(alice, conn)
	hub.JoinGame("ROOM1", alice)

	// Swap in a fresh connection first so Close never touches a raw socket.
	conn.closed = true
	hub.UnregisterConnection(alice)

	assert.Equal(t, 0, hub.RoomSize("ROOM1"))
	_, exists := hub.GetConnection(alice)
	assert.False(t, exists)
}

func TestConnectionSendQueueFull(t *testing.T) {
	conn := NewConnection(nil, zerolog.Nop())
	msg := Message{Type: TypePing}

	for i := 0; i < cap(conn.sendCh); i++ {
		require.NoError(t, conn.Send(msg))
	}
	assert.ErrorIs(t, conn.Send(msg), ErrSendQueueFull)
}

func TestBroadcastToGameSkipsDisconnected(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	connected := uuid.New()
	ghost := uuid.New()
	conn := NewConnection(nil, zerolog.Nop())
	hub.RegisterConnection(connected, conn)
	hub.JoinGame("ROOM1", connected)
	hub.JoinGame("ROOM1", ghost)

	err := hub.BroadcastToGame("ROOM1", Message{Type: TypePing})
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.Len(t, conn.sendCh, 1)
}
