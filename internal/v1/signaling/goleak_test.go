package signaling

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// TestConnectionLifecycleLeaksNothing drives a full connect/join/disconnect
// cycle over mock connections and verifies both pumps exit.
func TestConnectionLifecycleLeaksNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHub(50)

	conns := make([]*MockConnection, 0, 3)
	for i := 0; i < 3; i++ {
		conn := NewMockConnection()
		conns = append(conns, conn)
		h.HandleConnection(conn)
	}

	// First connection founds a room.
	frame, err := json.Marshal(types.Message{
		Event:   types.EventJoinRoom,
		Payload: types.JoinRoomPayload{RoomCode: "abc", PeerID: "p0", Name: "Host", IsHost: true},
	})
	require.NoError(t, err)
	conns[0].inbound <- frame

	require.Eventually(t, func() bool {
		return len(h.registry.ParticipantsOf("abc")) == 1
	}, time.Second, 5*time.Millisecond)

	for _, conn := range conns {
		conn.Close()
	}

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 0
	}, time.Second, 5*time.Millisecond)
}

// TestShutdownLeaksNothing verifies a hub shutdown with live connections
// terminates every per-connection goroutine.
func TestShutdownLeaksNothing(t *testing.T) {
	defer goleak.VerifyNone(t)

	h := newTestHub(50)
	for i := 0; i < 4; i++ {
		h.HandleConnection(NewMockConnection())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 0
	}, time.Second, 5*time.Millisecond)
}
