package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRegistration(t *testing.T) {
	// These are promauto-registered against the global registry; the main goal
	// is that incrementing and observing them does not panic.

	t.Run("ActiveConnections", func(t *testing.T) {
		IncConnection()
		DecConnection()
	})

	t.Run("WebsocketEvents", func(t *testing.T) {
		WebsocketEvents.WithLabelValues("chat-message", "success").Inc()
		val := testutil.ToFloat64(WebsocketEvents.WithLabelValues("chat-message", "success"))
		if val < 1 {
			t.Errorf("Expected WebsocketEvents to be at least 1, got %v", val)
		}
	})

	t.Run("SignalsRelayed", func(t *testing.T) {
		SignalsRelayed.WithLabelValues("webrtc-offer", "delivered").Inc()
		val := testutil.ToFloat64(SignalsRelayed.WithLabelValues("webrtc-offer", "delivered"))
		if val < 1 {
			t.Errorf("Expected SignalsRelayed to be at least 1, got %v", val)
		}
	})

	t.Run("MessageProcessingDuration", func(t *testing.T) {
		MessageProcessingDuration.WithLabelValues("join-room").Observe(0.01)
	})

	t.Run("RoomGauges", func(t *testing.T) {
		ActiveRooms.Inc()
		RoomParticipants.WithLabelValues("abc").Set(2)
		RoomParticipants.DeleteLabelValues("abc")
		ActiveRooms.Dec()
		SweptRooms.Inc()
	})
}
