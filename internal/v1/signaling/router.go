package signaling

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
	"github.com/gauravbhatia4601/meet/internal/v1/registry"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// route dispatches one inbound message to its handler. Join failures surface
// as room-error; every other failed precondition drops the message silently
// with a log entry, because the client is not a trust boundary for correct
// sequencing. A panic inside a handler is confined to this connection.
func (h *Hub) route(c *Client, msg *types.InboundMessage) {
	start := time.Now()
	status := "success"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			logging.Error(context.Background(), "Recovered from panic in message handler",
				zap.String("connId", string(c.ID)), zap.String("event", string(msg.Event)), zap.Any("panic", r))
		}
		metrics.MessageProcessingDuration.WithLabelValues(string(msg.Event)).Observe(time.Since(start).Seconds())
		metrics.WebsocketEvents.WithLabelValues(string(msg.Event), status).Inc()
	}()

	switch msg.Event {
	case types.EventJoinRoom:
		h.handleJoinRoom(c, msg.Payload)

	case types.EventLeaveRoom:
		h.handleLeaveRoom(c)

	case types.EventWebRTCOffer, types.EventWebRTCAnswer, types.EventWebRTCCandidate:
		h.handleSignal(c, msg.Event, msg.Payload)

	case types.EventMediaState:
		h.handleMediaState(c, msg.Payload)

	case types.EventChatMessage:
		h.handleChatMessage(c, msg.Payload)

	case types.EventScreenShareStart:
		h.handleScreenShare(c, types.EventScreenShareStarted)

	case types.EventScreenShareStop:
		h.handleScreenShare(c, types.EventScreenShareStopped)

	default:
		status = "unknown"
		logging.Warn(context.Background(), "Received unknown message event",
			zap.String("event", string(msg.Event)), zap.String("connId", string(c.ID)))
	}
}

// handleJoinRoom admits the connection into a room, creating it when the
// client flags itself host. All validation and lookup failures surface as
// room-error with a code from the error taxonomy.
func (h *Hub) handleJoinRoom(c *Client, raw json.RawMessage) {
	if c.RoomCode() != "" {
		c.sendRoomError(types.ErrCodeAlreadyInRoom, "connection is already in a room")
		return
	}

	var p types.JoinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		c.sendRoomError(types.ErrCodeInvalidRoomCode, "malformed join-room payload")
		return
	}
	if err := p.Validate(); err != nil {
		c.sendRoomError(validationErrorCode(err), err.Error())
		return
	}

	code := types.NormalizeRoomCode(p.RoomCode)
	peerID := types.PeerIDType(strings.TrimSpace(p.PeerID))
	name := types.DisplayNameType(strings.TrimSpace(p.Name))

	var (
		joined types.ParticipantInfo
		roster []types.ParticipantInfo
		err    error
	)
	if p.IsHost {
		roster, err = h.registry.Create(code, c.ID, peerID, name)
		if err == nil {
			joined = roster[0]
		}
	} else {
		joined, roster, err = h.registry.Join(code, c.ID, peerID, name)
	}
	if err != nil {
		c.sendRoomError(registryErrorCode(err), err.Error())
		return
	}

	c.setBinding(code, joined.PeerID, joined.Name)

	c.sendEvent(types.EventRoomJoined, types.RoomJoinedPayload{
		RoomCode:     code,
		IsHost:       joined.IsHost,
		Participants: roster,
	})

	if len(roster) > 1 {
		exclude := set.New(c.ID)
		h.broadcastToRoom(code, types.EventParticipantJoined,
			types.ParticipantJoinedPayload{Participant: joined}, exclude)
		h.broadcastToRoom(code, types.EventParticipantsUpdate,
			types.ParticipantsUpdatePayload{Participants: roster}, exclude)
	}

	logging.Info(context.Background(), "Participant joined room",
		zap.String("roomCode", string(code)),
		zap.String("connId", string(c.ID)),
		zap.Bool("isHost", joined.IsHost))
}

// handleLeaveRoom runs the departure path for an explicit leave-room and
// confirms it to the sender.
func (h *Hub) handleLeaveRoom(c *Client) {
	if c.RoomCode() == "" {
		logging.Warn(context.Background(), "leave-room from a connection outside any room",
			zap.String("connId", string(c.ID)))
		return
	}

	h.leaveCurrentRoom(c)
	c.sendEvent(types.EventRoomLeft, nil)
}

// leaveCurrentRoom removes the client from its room, emits the departure
// events to the remaining members, and clears the binding. Safe to call
// multiple times; the registry treats an unknown connection as a no-op.
func (h *Hub) leaveCurrentRoom(c *Client) {
	code, _, _ := c.binding()
	if code == "" {
		return
	}

	result, ok := h.registry.Leave(code, c.ID)
	c.clearBinding()
	if !ok {
		return
	}

	if result.RoomDeleted {
		return
	}

	// Host transfer emits no dedicated event: the roster update carries the
	// host flags and clients infer the new host from there.
	h.fanOut(code, result.Roster, types.EventParticipantLeft, types.ParticipantLeftPayload{
		ParticipantID: result.Left.ID,
		PeerID:        result.Left.PeerID,
	}, nil)
	h.fanOut(code, result.Roster, types.EventParticipantsUpdate, types.ParticipantsUpdatePayload{
		Participants: result.Roster,
	}, nil)

	logging.Info(context.Background(), "Participant left room",
		zap.String("roomCode", string(code)),
		zap.String("connId", string(c.ID)),
		zap.Bool("wasHost", result.WasHost),
		zap.String("newHostConnId", string(result.NewHostID)))
}

// validationErrorCode maps join validation errors to wire codes.
func validationErrorCode(err error) types.ErrorCode {
	switch {
	case errors.Is(err, types.ErrInvalidRoomCode):
		return types.ErrCodeInvalidRoomCode
	case errors.Is(err, types.ErrNameRequired):
		return types.ErrCodeNameRequired
	case errors.Is(err, types.ErrPeerIDRequired):
		return types.ErrCodePeerIDRequired
	default:
		return types.ErrCodeServerError
	}
}

// registryErrorCode maps registry errors to wire codes.
func registryErrorCode(err error) types.ErrorCode {
	switch {
	case errors.Is(err, registry.ErrRoomNotFound):
		return types.ErrCodeRoomNotFound
	case errors.Is(err, registry.ErrRoomExists):
		return types.ErrCodeRoomAlreadyExists
	case errors.Is(err, registry.ErrRoomFull):
		return types.ErrCodeRoomFull
	case errors.Is(err, registry.ErrPeerIDTaken):
		return types.ErrCodePeerIDTaken
	default:
		return types.ErrCodeServerError
	}
}
