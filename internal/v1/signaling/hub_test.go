package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauravbhatia4601/meet/internal/v1/bus"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

func TestOriginAllowed(t *testing.T) {
	allowed := []string{"http://localhost:3000", "https://meet.example.com"}

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"no origin header", "", true},
		{"exact match", "http://localhost:3000", true},
		{"second entry", "https://meet.example.com", true},
		{"path ignored", "https://meet.example.com/lobby", true},
		{"scheme mismatch", "http://meet.example.com", false},
		{"host mismatch", "https://evil.example.com", false},
		{"garbage origin", "://bad", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, "/socket.io/", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, originAllowed(req, allowed))
		})
	}
}

func TestHandleConnectionRunsPumps(t *testing.T) {
	h := newTestHub(50)
	conn := NewMockConnection()

	client := h.HandleConnection(conn)

	// Push a host join through the real read pump.
	frame, err := json.Marshal(types.Message{
		Event: types.EventJoinRoom,
		Payload: types.JoinRoomPayload{
			RoomCode: "abc", PeerID: "pA", Name: "Alice", IsHost: true,
		},
	})
	require.NoError(t, err)
	conn.inbound <- frame

	// The write pump delivers room-joined to the mock connection.
	require.Eventually(t, func() bool {
		return len(conn.Written()) >= 1
	}, time.Second, 5*time.Millisecond)

	var msg types.InboundMessage
	require.NoError(t, json.Unmarshal(conn.Written()[0], &msg))
	assert.Equal(t, types.EventRoomJoined, msg.Event)

	// Closing the transport runs the departure path exactly once.
	conn.Close()
	require.Eventually(t, func() bool {
		_, ok := h.client(client.ID)
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Empty(t, h.registry.ParticipantsOf("abc"))
}

func TestMalformedFramesIgnored(t *testing.T) {
	h := newTestHub(50)
	conn := NewMockConnection()
	client := h.HandleConnection(conn)

	conn.inbound <- []byte(`this is not json`)

	// The connection survives garbage input.
	time.Sleep(20 * time.Millisecond)
	_, ok := h.client(client.ID)
	assert.True(t, ok)

	conn.Close()
}

func TestShutdownClosesClients(t *testing.T) {
	h := newTestHub(50)
	conn1 := NewMockConnection()
	conn2 := NewMockConnection()
	c1 := h.HandleConnection(conn1)
	c2 := h.HandleConnection(conn2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	require.Eventually(t, func() bool {
		_, ok1 := h.client(c1.ID)
		_, ok2 := h.client(c2.ID)
		return !ok1 && !ok2
	}, time.Second, 5*time.Millisecond)
}

func TestServeWsRefusedAfterShutdown(t *testing.T) {
	h := newTestHub(50)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Shutdown(ctx))

	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	assert.True(t, closed)

	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/socket.io/", nil)
	h.ServeWs(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleBusEventIgnoresOwnEchoes(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	payload, _ := json.Marshal(types.ChatBroadcastPayload{From: "remote", FromName: "Remote", Message: "hi"})
	h.handleBusEvent(bus.PubSubPayload{
		RoomCode: "abc",
		Event:    string(types.EventChatMessage),
		Payload:  payload,
		Origin:   h.instanceID,
	})

	assertNoFrame(t, alice)
}

func TestHandleBusEventBroadcastsRemoteEvents(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	payload, _ := json.Marshal(types.ChatBroadcastPayload{From: "remote", FromName: "Remote", Message: "hi"})
	h.handleBusEvent(bus.PubSubPayload{
		RoomCode: "abc",
		Event:    string(types.EventChatMessage),
		Payload:  payload,
		Origin:   "some-other-instance",
	})

	var p types.ChatBroadcastPayload
	recvFrameOf(t, alice, types.EventChatMessage, &p)
	assert.Equal(t, "hi", p.Message)
}

func TestHandleBusEventTargetedDelivery(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	bob := addClient(h, "conn-bob")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")
	joinAsGuest(t, h, bob, "abc", "pB", "Bob")
	drainFrames(alice, bob)

	payload, _ := json.Marshal(types.SignalPayload{To: "pA", From: "pRemote"})
	h.handleBusEvent(bus.PubSubPayload{
		RoomCode: "abc",
		Event:    string(types.EventWebRTCOffer),
		Payload:  payload,
		Origin:   "some-other-instance",
		Target:   "pA",
	})

	recvFrameOf(t, alice, types.EventWebRTCOffer, nil)
	assertNoFrame(t, bob)
}

func TestFanOutSkipsDepartedParticipants(t *testing.T) {
	h := newTestHub(50)
	alice, bob, carol := relayRoom(t, h)

	// Carol's connection is gone but the roster snapshot still lists her:
	// the fan-out just fails to find the client and moves on.
	h.mu.Lock()
	delete(h.clients, carol.ID)
	h.mu.Unlock()

	h.route(bob, &types.InboundMessage{
		Event:   types.EventChatMessage,
		Payload: mustJSON(t, types.ChatMessagePayload{Message: "still here?"}),
	})

	recvFrameOf(t, alice, types.EventChatMessage, nil)
	assertNoFrame(t, carol)
}
