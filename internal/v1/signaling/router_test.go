package signaling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

func sendJoin(t *testing.T, h *Hub, c *Client, p types.JoinRoomPayload) {
	t.Helper()
	h.route(c, &types.InboundMessage{Event: types.EventJoinRoom, Payload: mustJSON(t, p)})
}

func expectRoomError(t *testing.T, c *Client, code types.ErrorCode) {
	t.Helper()
	var p types.RoomErrorPayload
	recvFrameOf(t, c, types.EventRoomError, &p)
	assert.Equal(t, code, p.Code)
	assert.NotEmpty(t, p.Message)
}

func TestHostJoinCreatesRoom(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")

	sendJoin(t, h, alice, types.JoinRoomPayload{RoomCode: "abc", PeerID: "pA", Name: "Alice", IsHost: true})

	var joined types.RoomJoinedPayload
	recvFrameOf(t, alice, types.EventRoomJoined, &joined)
	assert.Equal(t, types.RoomCodeType("abc"), joined.RoomCode)
	assert.True(t, joined.IsHost)
	require.Len(t, joined.Participants, 1)
	assert.Equal(t, types.PeerIDType("pA"), joined.Participants[0].PeerID)
	assert.Equal(t, types.DisplayNameType("Alice"), joined.Participants[0].Name)
	assert.True(t, joined.Participants[0].IsHost)

	// No further traffic to the creator.
	assertNoFrame(t, alice)
	assert.Equal(t, types.RoomCodeType("abc"), alice.RoomCode())
}

func TestGuestJoinNormalizesCodeAndNotifiesOthers(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	bob := addClient(h, "conn-bob")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	// Code differs only in case and trailing whitespace.
	sendJoin(t, h, bob, types.JoinRoomPayload{RoomCode: "ABC ", PeerID: "pB", Name: "Bob"})

	var joined types.RoomJoinedPayload
	recvFrameOf(t, bob, types.EventRoomJoined, &joined)
	assert.Equal(t, types.RoomCodeType("abc"), joined.RoomCode)
	assert.False(t, joined.IsHost)
	assert.Len(t, joined.Participants, 2)

	var pj types.ParticipantJoinedPayload
	recvFrameOf(t, alice, types.EventParticipantJoined, &pj)
	assert.Equal(t, types.PeerIDType("pB"), pj.Participant.PeerID)
	assert.Equal(t, types.DisplayNameType("Bob"), pj.Participant.Name)

	var pu types.ParticipantsUpdatePayload
	recvFrameOf(t, alice, types.EventParticipantsUpdate, &pu)
	assert.Len(t, pu.Participants, 2)

	// Bob does not get the join echo.
	assertNoFrame(t, bob)
}

func TestJoinUnknownRoom(t *testing.T) {
	h := newTestHub(50)
	bob := addClient(h, "conn-bob")

	sendJoin(t, h, bob, types.JoinRoomPayload{RoomCode: "ghost", PeerID: "pB", Name: "Bob"})
	expectRoomError(t, bob, types.ErrCodeRoomNotFound)
	assert.Empty(t, bob.RoomCode())
}

func TestHostJoinOnExistingRoom(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	mallory := addClient(h, "conn-mallory")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	// A second host claim on the same code fails; no silent demotion.
	sendJoin(t, h, mallory, types.JoinRoomPayload{RoomCode: "abc", PeerID: "pM", Name: "Mallory", IsHost: true})
	expectRoomError(t, mallory, types.ErrCodeRoomAlreadyExists)
	assertNoFrame(t, alice)
}

func TestJoinRoomFullBoundary(t *testing.T) {
	h := newTestHub(3)
	host := addClient(h, "conn-host")
	joinAsHost(t, h, host, "abc", "p0", "Host")

	// Joining at MAX_PARTICIPANTS-1 occupancy succeeds.
	second := addClient(h, "conn-2")
	joinAsGuest(t, h, second, "abc", "p2", "Two")
	third := addClient(h, "conn-3")
	joinAsGuest(t, h, third, "abc", "p3", "Three")

	// Joining at MAX_PARTICIPANTS occupancy fails.
	fourth := addClient(h, "conn-4")
	sendJoin(t, h, fourth, types.JoinRoomPayload{RoomCode: "abc", PeerID: "p4", Name: "Four"})
	expectRoomError(t, fourth, types.ErrCodeRoomFull)
}

func TestJoinWhileAlreadyInRoom(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	sendJoin(t, h, alice, types.JoinRoomPayload{RoomCode: "other", PeerID: "pA", Name: "Alice", IsHost: true})
	expectRoomError(t, alice, types.ErrCodeAlreadyInRoom)

	// The original membership is untouched.
	assert.Equal(t, types.RoomCodeType("abc"), alice.RoomCode())
}

func TestJoinValidationErrors(t *testing.T) {
	h := newTestHub(50)

	tests := []struct {
		name    string
		payload types.JoinRoomPayload
		code    types.ErrorCode
	}{
		{"missing room code", types.JoinRoomPayload{PeerID: "p", Name: "N"}, types.ErrCodeInvalidRoomCode},
		{"blank room code", types.JoinRoomPayload{RoomCode: "  ", PeerID: "p", Name: "N"}, types.ErrCodeInvalidRoomCode},
		{"missing name", types.JoinRoomPayload{RoomCode: "abc", PeerID: "p"}, types.ErrCodeNameRequired},
		{"missing peer id", types.JoinRoomPayload{RoomCode: "abc", Name: "N"}, types.ErrCodePeerIDRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := addClient(h, "conn-"+tt.name)
			sendJoin(t, h, c, tt.payload)
			expectRoomError(t, c, tt.code)
		})
	}
}

func TestJoinNonStringRoomCode(t *testing.T) {
	h := newTestHub(50)
	c := addClient(h, "conn-weird")

	h.route(c, &types.InboundMessage{
		Event:   types.EventJoinRoom,
		Payload: []byte(`{"roomCode": 42, "peerId": "p", "name": "N"}`),
	})
	expectRoomError(t, c, types.ErrCodeInvalidRoomCode)
}

func TestJoinDuplicatePeerID(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	impostor := addClient(h, "conn-impostor")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")

	sendJoin(t, h, impostor, types.JoinRoomPayload{RoomCode: "abc", PeerID: "pA", Name: "Impostor"})
	expectRoomError(t, impostor, types.ErrCodePeerIDTaken)
}

func TestLeaveRoom(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	bob := addClient(h, "conn-bob")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")
	joinAsGuest(t, h, bob, "abc", "pB", "Bob")
	drainFrames(alice)

	h.route(bob, &types.InboundMessage{Event: types.EventLeaveRoom})

	recvFrameOf(t, bob, types.EventRoomLeft, nil)
	assert.Empty(t, bob.RoomCode())

	var left types.ParticipantLeftPayload
	recvFrameOf(t, alice, types.EventParticipantLeft, &left)
	assert.Equal(t, types.ConnIDType("conn-bob"), left.ParticipantID)
	assert.Equal(t, types.PeerIDType("pB"), left.PeerID)

	var pu types.ParticipantsUpdatePayload
	recvFrameOf(t, alice, types.EventParticipantsUpdate, &pu)
	require.Len(t, pu.Participants, 1)
	assert.True(t, pu.Participants[0].IsHost)
}

func TestLeaveRoomOutsideRoomIsSilentlyDropped(t *testing.T) {
	h := newTestHub(50)
	c := addClient(h, "conn-lost")

	h.route(c, &types.InboundMessage{Event: types.EventLeaveRoom})
	assertNoFrame(t, c)
}

func TestHostDepartureTransfersHost(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	carol := addClient(h, "conn-carol")
	bob := addClient(h, "conn-bob")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")
	joinAsGuest(t, h, carol, "abc", "pC", "Carol")
	joinAsGuest(t, h, bob, "abc", "pB", "Bob")
	drainFrames(alice, carol, bob)

	// Alice disconnects without a leave-room.
	h.handleClientDisconnect(alice)

	var left types.ParticipantLeftPayload
	recvFrameOf(t, bob, types.EventParticipantLeft, &left)
	assert.Equal(t, types.PeerIDType("pA"), left.PeerID)

	// Carol joined before Bob, so Carol inherits the host flag.
	var pu types.ParticipantsUpdatePayload
	recvFrameOf(t, bob, types.EventParticipantsUpdate, &pu)
	require.Len(t, pu.Participants, 2)
	for _, p := range pu.Participants {
		if p.PeerID == "pC" {
			assert.True(t, p.IsHost)
		} else {
			assert.False(t, p.IsHost)
		}
	}
}

func TestDisconnectDepartureIsIdempotent(t *testing.T) {
	h := newTestHub(50)
	alice := addClient(h, "conn-alice")
	bob := addClient(h, "conn-bob")
	joinAsHost(t, h, alice, "abc", "pA", "Alice")
	joinAsGuest(t, h, bob, "abc", "pB", "Bob")
	drainFrames(alice, bob)

	h.handleClientDisconnect(bob)
	recvFrameOf(t, alice, types.EventParticipantLeft, nil)
	recvFrameOf(t, alice, types.EventParticipantsUpdate, nil)

	// Running the departure path again has no further effect.
	h.handleClientDisconnect(bob)
	assertNoFrame(t, alice)
}

func TestUnknownEventIsDropped(t *testing.T) {
	h := newTestHub(50)
	c := addClient(h, "conn-x")

	h.route(c, &types.InboundMessage{Event: "no-such-event"})
	assertNoFrame(t, c)
}

func TestMalformedJoinPayload(t *testing.T) {
	h := newTestHub(50)
	c := addClient(h, "conn-x")

	h.route(c, &types.InboundMessage{Event: types.EventJoinRoom, Payload: []byte(`{broken`)})
	expectRoomError(t, c, types.ErrCodeInvalidRoomCode)

	h2 := addClient(h, "conn-y")
	h.route(h2, &types.InboundMessage{Event: types.EventJoinRoom, Payload: nil})
	expectRoomError(t, h2, types.ErrCodeInvalidRoomCode)
}
