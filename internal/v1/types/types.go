// Package types defines shared types and constants for the signaling hub.
package types

import (
	"encoding/json"
	"errors"
	"strings"
)

// --- Core Domain Types ---

// RoomCodeType represents the normalized code identifying a room.
type RoomCodeType string

// ConnIDType represents a unique identifier for a client connection,
// assigned by the transport. It doubles as the participant id.
type ConnIDType string

// PeerIDType represents the client-chosen identifier other clients use
// as the address for unicast signaling.
type PeerIDType string

// DisplayNameType represents the human-readable name for a participant.
type DisplayNameType string

// MaxChatMessageLength caps chat messages at 1000 code points of trimmed input.
const MaxChatMessageLength = 1000

// NormalizeRoomCode lowercases and trims a raw room code. Codes differing only
// in case or surrounding whitespace map to the same room.
func NormalizeRoomCode(raw string) RoomCodeType {
	return RoomCodeType(strings.ToLower(strings.TrimSpace(raw)))
}

// FallbackDisplayName derives a deterministic display name from a connection id
// for participants that joined without one.
func FallbackDisplayName(connID ConnIDType) DisplayNameType {
	id := string(connID)
	if len(id) > 8 {
		id = id[:8]
	}
	return DisplayNameType("guest-" + id)
}

// TrimChatMessage trims a chat message and truncates it to MaxChatMessageLength
// code points. The second return value is false when nothing remains after
// trimming, in which case the message must be dropped.
func TrimChatMessage(raw string) (string, bool) {
	msg := strings.TrimSpace(raw)
	if msg == "" {
		return "", false
	}
	runes := []rune(msg)
	if len(runes) > MaxChatMessageLength {
		msg = string(runes[:MaxChatMessageLength])
	}
	return msg, true
}

// --- Wire Envelope ---

// Event names a message kind on the wire.
type Event string

// Client -> server events.
const (
	EventJoinRoom         Event = "join-room"
	EventLeaveRoom        Event = "leave-room"
	EventWebRTCOffer      Event = "webrtc-offer"
	EventWebRTCAnswer     Event = "webrtc-answer"
	EventWebRTCCandidate  Event = "webrtc-ice-candidate"
	EventMediaState       Event = "media-state"
	EventChatMessage      Event = "chat-message"
	EventScreenShareStart Event = "screen-share-start"
	EventScreenShareStop  Event = "screen-share-stop"
)

// Server -> client events. The three webrtc-* relay events and chat-message
// keep their inbound names on the way out.
const (
	EventRoomJoined         Event = "room-joined"
	EventRoomError          Event = "room-error"
	EventRoomLeft           Event = "room-left"
	EventParticipantJoined  Event = "participant-joined"
	EventParticipantLeft    Event = "participant-left"
	EventParticipantsUpdate Event = "participants-update"
	EventMediaStateChanged  Event = "media-state-changed"
	EventScreenShareStarted Event = "screen-share-started"
	EventScreenShareStopped Event = "screen-share-stopped"
)

// Message is the outbound wire envelope.
type Message struct {
	Event   Event `json:"event"`
	Payload any   `json:"payload,omitempty"`
}

// InboundMessage is the inbound wire envelope. The payload stays raw until the
// router knows which shape to decode.
type InboundMessage struct {
	Event   Event           `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Error Taxonomy ---

// ErrorCode identifies a join failure carried in room-error.
type ErrorCode string

const (
	ErrCodeRoomNotFound      ErrorCode = "ROOM_NOT_FOUND"
	ErrCodeRoomFull          ErrorCode = "ROOM_FULL"
	ErrCodeRoomAlreadyExists ErrorCode = "ROOM_ALREADY_EXISTS"
	ErrCodeInvalidRoomCode   ErrorCode = "INVALID_ROOM_CODE"
	ErrCodeAlreadyInRoom     ErrorCode = "ALREADY_IN_ROOM"
	ErrCodeNameRequired      ErrorCode = "NAME_REQUIRED"
	ErrCodePeerIDRequired    ErrorCode = "PEER_ID_REQUIRED"
	ErrCodePeerIDTaken       ErrorCode = "PEER_ID_TAKEN"
	ErrCodeServerError       ErrorCode = "SERVER_ERROR"
)

// Join validation errors, mapped to wire codes at the router boundary.
var (
	ErrInvalidRoomCode = errors.New("room code is required")
	ErrNameRequired    = errors.New("display name is required")
	ErrPeerIDRequired  = errors.New("peer id is required")
)

// --- Participant Views ---

// ParticipantInfo is an immutable snapshot of one room membership, safe to
// hand across component boundaries and onto the wire.
type ParticipantInfo struct {
	ID     ConnIDType      `json:"id"`
	PeerID PeerIDType      `json:"peerId"`
	Name   DisplayNameType `json:"name"`
	IsHost bool            `json:"isHost"`
}

// --- Client -> Server Payloads ---

// JoinRoomPayload is the payload for join-room.
type JoinRoomPayload struct {
	RoomCode string `json:"roomCode"`
	PeerID   string `json:"peerId"`
	Name     string `json:"name"`
	IsHost   bool   `json:"isHost,omitempty"`
}

// Validate checks the join request fields. The room code is checked after
// normalization so whitespace-only codes are rejected too.
func (p JoinRoomPayload) Validate() error {
	if NormalizeRoomCode(p.RoomCode) == "" {
		return ErrInvalidRoomCode
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrNameRequired
	}
	if strings.TrimSpace(p.PeerID) == "" {
		return ErrPeerIDRequired
	}
	return nil
}

// SignalPayload carries one opaque negotiation fragment between two peers.
// Exactly one of Offer, Answer, Candidate is set depending on the event kind;
// the hub never parses them. From is stamped by the server from the sender's
// participant record, never copied through from the inbound payload.
type SignalPayload struct {
	To        PeerIDType      `json:"to"`
	From      PeerIDType      `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// MediaStatePayload is the payload for media-state.
type MediaStatePayload struct {
	VideoEnabled  bool `json:"videoEnabled"`
	AudioEnabled  bool `json:"audioEnabled"`
	ScreenSharing bool `json:"screenSharing,omitempty"`
}

// ChatMessagePayload is the payload for an inbound chat-message.
type ChatMessagePayload struct {
	Message string `json:"message"`
}

// --- Server -> Client Payloads ---

// RoomJoinedPayload confirms a successful join to the sender.
type RoomJoinedPayload struct {
	RoomCode     RoomCodeType      `json:"roomCode"`
	IsHost       bool              `json:"isHost"`
	Participants []ParticipantInfo `json:"participants"`
}

// RoomErrorPayload reports a failed join.
type RoomErrorPayload struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// ParticipantJoinedPayload announces a new room member to the others.
type ParticipantJoinedPayload struct {
	Participant ParticipantInfo `json:"participant"`
}

// ParticipantLeftPayload announces a departure to the remaining members.
type ParticipantLeftPayload struct {
	ParticipantID ConnIDType `json:"participantId"`
	PeerID        PeerIDType `json:"peerId"`
}

// ParticipantsUpdatePayload carries the full roster after any change. Each
// entry carries the host flag, which is how clients learn about host transfer.
type ParticipantsUpdatePayload struct {
	Participants []ParticipantInfo `json:"participants"`
}

// MediaStateChangedPayload broadcasts one participant's media state.
type MediaStateChangedPayload struct {
	ParticipantID ConnIDType `json:"participantId"`
	PeerID        PeerIDType `json:"peerId"`
	VideoEnabled  bool       `json:"videoEnabled"`
	AudioEnabled  bool       `json:"audioEnabled"`
	ScreenSharing bool       `json:"screenSharing,omitempty"`
}

// ChatBroadcastPayload is the outbound chat-message. From is the sender's
// connection id and Timestamp is server time in Unix milliseconds.
type ChatBroadcastPayload struct {
	From      ConnIDType      `json:"from"`
	FromName  DisplayNameType `json:"fromName"`
	Message   string          `json:"message"`
	Timestamp int64           `json:"timestamp"`
}

// ScreenSharePayload identifies the participant behind screen-share-started
// and screen-share-stopped.
type ScreenSharePayload struct {
	ParticipantID ConnIDType `json:"participantId"`
	PeerID        PeerIDType `json:"peerId"`
}
