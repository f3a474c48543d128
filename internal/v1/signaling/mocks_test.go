package signaling

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/gauravbhatia4601/meet/internal/v1/config"
	"github.com/gauravbhatia4601/meet/internal/v1/registry"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// MockConnection implements wsConnection for pump tests. Frames pushed into
// inbound come out of ReadMessage; Close unblocks any pending read.
type MockConnection struct {
	inbound chan []byte

	mu      sync.Mutex
	written [][]byte

	closed    chan struct{}
	closeOnce sync.Once
}

func NewMockConnection() *MockConnection {
	return &MockConnection{
		inbound: make(chan []byte, 16),
		closed:  make(chan struct{}),
	}
}

func (m *MockConnection) ReadMessage() (int, []byte, error) {
	select {
	case data := <-m.inbound:
		return websocket.TextMessage, data, nil
	case <-m.closed:
		return 0, nil, errors.New("connection closed")
	}
}

func (m *MockConnection) WriteMessage(messageType int, data []byte) error {
	select {
	case <-m.closed:
		return errors.New("connection closed")
	default:
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, append([]byte(nil), data...))
	return nil
}

func (m *MockConnection) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *MockConnection) SetWriteDeadline(time.Time) error  { return nil }
func (m *MockConnection) SetReadDeadline(time.Time) error   { return nil }
func (m *MockConnection) SetPongHandler(func(string) error) {}
func (m *MockConnection) SetReadLimit(int64)                {}

func (m *MockConnection) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.written))
	copy(out, m.written)
	return out
}

// --- Test Helpers ---

func testConfig() *config.Config {
	return &config.Config{
		Port:            "3001",
		AllowedOrigins:  []string{"http://localhost:3000"},
		MaxParticipants: 50,
		RoomIdleTimeout: time.Hour,
		SweepInterval:   5 * time.Minute,
		PingInterval:    25 * time.Second,
		PongTimeout:     60 * time.Second,
	}
}

func newTestHub(maxParticipants int) *Hub {
	cfg := testConfig()
	cfg.MaxParticipants = maxParticipants
	return NewHub(registry.New(maxParticipants), nil, nil, cfg)
}

// addClient registers a synthetic client without running its pumps. Tests
// read outbound frames straight from the send channel.
func addClient(h *Hub, id string) *Client {
	c := &Client{
		hub:  h,
		conn: NewMockConnection(),
		send: make(chan []byte, sendBufferSize),
		ID:   types.ConnIDType(id),
	}
	h.mu.Lock()
	h.clients[c.ID] = c
	h.mu.Unlock()
	return c
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// recvFrame pops the next outbound frame for a client and decodes the envelope.
func recvFrame(t *testing.T, c *Client) (types.Event, json.RawMessage) {
	t.Helper()
	select {
	case data := <-c.send:
		var msg types.InboundMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg.Event, msg.Payload
	case <-time.After(time.Second):
		t.Fatalf("no frame received for client %s", c.ID)
		return "", nil
	}
}

// recvFrameOf asserts the next frame's event name and decodes its payload
// into out.
func recvFrameOf(t *testing.T, c *Client, want types.Event, out any) {
	t.Helper()
	event, payload := recvFrame(t, c)
	require.Equal(t, want, event)
	if out != nil {
		require.NoError(t, json.Unmarshal(payload, out))
	}
}

// assertNoFrame asserts a client's outbound queue is empty.
func assertNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame for client %s: %s", c.ID, data)
	default:
	}
}

// joinAsHost drives a full host join and drains the room-joined frame.
func joinAsHost(t *testing.T, h *Hub, c *Client, roomCode, peerID, name string) {
	t.Helper()
	h.route(c, &types.InboundMessage{
		Event: types.EventJoinRoom,
		Payload: mustJSON(t, types.JoinRoomPayload{
			RoomCode: roomCode, PeerID: peerID, Name: name, IsHost: true,
		}),
	})
	recvFrameOf(t, c, types.EventRoomJoined, nil)
}

// joinAsGuest drives a guest join and drains the room-joined frame.
func joinAsGuest(t *testing.T, h *Hub, c *Client, roomCode, peerID, name string) {
	t.Helper()
	h.route(c, &types.InboundMessage{
		Event: types.EventJoinRoom,
		Payload: mustJSON(t, types.JoinRoomPayload{
			RoomCode: roomCode, PeerID: peerID, Name: name,
		}),
	})
	recvFrameOf(t, c, types.EventRoomJoined, nil)
}

// drainFrames discards every queued frame for the given clients.
func drainFrames(clients ...*Client) {
	for _, c := range clients {
		for {
			select {
			case <-c.send:
				continue
			default:
			}
			break
		}
	}
}
