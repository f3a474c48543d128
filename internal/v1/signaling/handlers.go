package signaling

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// --- Broadcast Handlers ---
// Presence, media-state, chat and screen-share events all travel the fan-out
// path: every member of the sender's room except the sender receives them.

// handleMediaState broadcasts a media-state-changed event to the rest of the
// room. The hub keeps no media state itself; it only annotates the event
// with the sender's identity.
func (h *Hub) handleMediaState(c *Client, raw json.RawMessage) {
	code, peerID, _ := c.binding()
	if code == "" {
		logging.Warn(context.Background(), "media-state from a connection outside any room",
			zap.String("connId", string(c.ID)))
		return
	}

	var p types.MediaStatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn(context.Background(), "Malformed media-state payload",
			zap.String("connId", string(c.ID)), zap.Error(err))
		return
	}

	h.registry.Touch(code)

	h.broadcastToRoom(code, types.EventMediaStateChanged, types.MediaStateChangedPayload{
		ParticipantID: c.ID,
		PeerID:        peerID,
		VideoEnabled:  p.VideoEnabled,
		AudioEnabled:  p.AudioEnabled,
		ScreenSharing: p.ScreenSharing,
	}, set.New(c.ID))
}

// handleChatMessage broadcasts a chat message to the rest of the room. The
// sender is not included: clients render their own messages optimistically.
// Empty-after-trim messages are dropped; oversized ones are truncated to the
// cap, and that is the full extent of chat policy at the hub.
func (h *Hub) handleChatMessage(c *Client, raw json.RawMessage) {
	code, _, name := c.binding()
	if code == "" {
		logging.Warn(context.Background(), "chat-message from a connection outside any room",
			zap.String("connId", string(c.ID)))
		return
	}

	var p types.ChatMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn(context.Background(), "Malformed chat-message payload",
			zap.String("connId", string(c.ID)), zap.Error(err))
		return
	}

	message, ok := types.TrimChatMessage(p.Message)
	if !ok {
		logging.Debug(context.Background(), "Empty chat-message dropped",
			zap.String("connId", string(c.ID)))
		return
	}

	h.registry.Touch(code)

	h.broadcastToRoom(code, types.EventChatMessage, types.ChatBroadcastPayload{
		From:      c.ID,
		FromName:  name,
		Message:   message,
		Timestamp: time.Now().UnixMilli(),
	}, set.New(c.ID))
}

// handleScreenShare broadcasts screen-share-started or screen-share-stopped
// for the sender.
func (h *Hub) handleScreenShare(c *Client, event types.Event) {
	code, peerID, _ := c.binding()
	if code == "" {
		logging.Warn(context.Background(), "screen-share event from a connection outside any room",
			zap.String("event", string(event)), zap.String("connId", string(c.ID)))
		return
	}

	h.registry.Touch(code)

	h.broadcastToRoom(code, event, types.ScreenSharePayload{
		ParticipantID: c.ID,
		PeerID:        peerID,
	}, set.New(c.ID))
}
