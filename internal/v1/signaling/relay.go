package signaling

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// handleSignal relays one negotiation fragment (offer, answer or candidate)
// to exactly one addressee in the sender's room. The fragment itself is
// opaque: it is never parsed and never stored. The from field is stamped
// from the sender's participant record; whatever the inbound payload carried
// there is discarded, so clients cannot forge it.
func (h *Hub) handleSignal(c *Client, event types.Event, raw json.RawMessage) {
	code, peerID, _ := c.binding()
	if code == "" {
		logging.Warn(context.Background(), "Signaling message from a connection outside any room",
			zap.String("event", string(event)), zap.String("connId", string(c.ID)))
		metrics.SignalsRelayed.WithLabelValues(string(event), "no_room").Inc()
		return
	}

	var p types.SignalPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logging.Warn(context.Background(), "Malformed signaling payload",
			zap.String("event", string(event)), zap.String("connId", string(c.ID)), zap.Error(err))
		metrics.SignalsRelayed.WithLabelValues(string(event), "malformed").Inc()
		return
	}
	if p.To == "" {
		logging.Warn(context.Background(), "Signaling payload without addressee",
			zap.String("event", string(event)), zap.String("connId", string(c.ID)))
		metrics.SignalsRelayed.WithLabelValues(string(event), "no_target").Inc()
		return
	}

	p.From = peerID
	h.registry.Touch(code)

	target, ok := h.registry.Resolve(code, p.To)
	if !ok {
		logging.Warn(context.Background(), "Relay target peer not in room",
			zap.String("event", string(event)),
			zap.String("roomCode", string(code)),
			zap.String("fromPeerId", string(peerID)),
			zap.String("toPeerId", string(p.To)))
		metrics.SignalsRelayed.WithLabelValues(string(event), "target_missing").Inc()
		return
	}

	targetClient, ok := h.client(target.ID)
	if !ok {
		// The participant record exists but its connection lives on another
		// instance; mirror over the bus when one is configured.
		if h.bus != nil {
			go func() {
				_ = h.bus.Publish(context.Background(), string(code), string(event), p, h.instanceID, string(p.To))
			}()
			metrics.SignalsRelayed.WithLabelValues(string(event), "forwarded").Inc()
			return
		}
		logging.Warn(context.Background(), "Relay target connection is gone",
			zap.String("event", string(event)), zap.String("toPeerId", string(p.To)))
		metrics.SignalsRelayed.WithLabelValues(string(event), "target_gone").Inc()
		return
	}

	targetClient.sendEvent(event, p)
	metrics.SignalsRelayed.WithLabelValues(string(event), "delivered").Inc()
}
