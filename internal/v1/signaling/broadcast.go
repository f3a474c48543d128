package signaling

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"k8s.io/utils/set"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// marshalEnvelope builds one wire frame from an event and payload. The
// payload may be a struct or pre-marshalled json.RawMessage.
func marshalEnvelope(event types.Event, payload any) ([]byte, error) {
	return json.Marshal(types.Message{Event: event, Payload: payload})
}

// broadcastToRoom fans an event out to the room's current membership minus
// the excluded connections. The roster snapshot is taken at send time;
// participants that leave during fan-out simply miss the event.
func (h *Hub) broadcastToRoom(code types.RoomCodeType, event types.Event, payload any, exclude set.Set[types.ConnIDType]) {
	h.fanOut(code, h.registry.ParticipantsOf(code), event, payload, exclude)
}

// fanOut writes one event to every listed participant except the excluded
// ones. No room lock is held here: the roster is an immutable snapshot, and
// writes go to per-client buffered channels, so a slow or dead recipient
// never blocks the others. When a bus is configured the event is also
// mirrored to the room's channel for members on other instances.
func (h *Hub) fanOut(code types.RoomCodeType, roster []types.ParticipantInfo, event types.Event, payload any, exclude set.Set[types.ConnIDType]) {
	frame, err := marshalEnvelope(event, payload)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal broadcast message",
			zap.String("event", string(event)), zap.Error(err))
		return
	}

	for _, member := range roster {
		if exclude.Has(member.ID) {
			continue
		}
		if client, ok := h.client(member.ID); ok {
			client.sendRaw(frame)
		}
	}

	if h.bus != nil {
		go func() {
			_ = h.bus.Publish(context.Background(), string(code), string(event), payload, h.instanceID, "")
		}()
	}
}
