// Package signaling implements the WebSocket hub: connection endpoints, the
// inbound message router, the unicast relay, and broadcast fan-out.
//
// Each client runs two goroutines, readPump and writePump. The read pump owns
// the connection's room binding: it is the only writer, so the binding never
// needs more than a read lock elsewhere. Outbound traffic goes through a
// buffered send channel so that a slow or dead recipient never blocks a room.
package signaling

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// maxMessageSize bounds inbound frames. Negotiation fragments with long
	// candidate lists fit comfortably under 64KB.
	maxMessageSize = 64 * 1024

	// sendBufferSize is the per-client outbound queue. Overflow drops.
	sendBufferSize = 256
)

// wsConnection defines the interface for WebSocket connection operations.
// In production this is *websocket.Conn; tests substitute mocks.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	SetReadLimit(limit int64)
}

// Client represents a single live connection. It holds the connection's room
// binding: the code of the room it has joined and the peer id and display
// name recorded there. A connection has at most one membership; the binding
// fields are lookup keys into the registry, never ownership.
type Client struct {
	hub  *Hub
	conn wsConnection
	send chan []byte

	// ID is assigned by the transport at upgrade time and doubles as the
	// participant id for the lifetime of the connection.
	ID types.ConnIDType

	mu       sync.RWMutex
	roomCode types.RoomCodeType
	peerID   types.PeerIDType
	name     types.DisplayNameType
	closed   bool

	closeOnce sync.Once
}

// RoomCode returns the code of the joined room, or "" outside any room.
func (c *Client) RoomCode() types.RoomCodeType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode
}

// binding returns the full room binding in one consistent read.
func (c *Client) binding() (types.RoomCodeType, types.PeerIDType, types.DisplayNameType) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomCode, c.peerID, c.name
}

func (c *Client) setBinding(code types.RoomCodeType, peerID types.PeerIDType, name types.DisplayNameType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = code
	c.peerID = peerID
	c.name = name
}

func (c *Client) clearBinding() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomCode = ""
	c.peerID = ""
	c.name = ""
}

// readPump continuously processes incoming WebSocket messages. It enforces
// the keepalive read deadline; a missing pong makes ReadMessage fail, which
// runs the same departure path as an explicit disconnect.
func (c *Client) readPump() {
	defer func() {
		c.hub.handleClientDisconnect(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		// Keepalive only. Pongs never count as room activity, so an idle
		// room with a live TCP connection still ages out.
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.pongTimeout))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg types.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Warn(context.Background(), "Failed to unmarshal inbound frame",
				zap.String("connId", string(c.ID)), zap.Error(err))
			continue
		}

		c.hub.route(c, &msg)
	}
}

// writePump drains the send channel and emits transport pings on the
// configured interval. It is the only goroutine writing to the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendEvent marshals an envelope and queues it for this client.
func (c *Client) sendEvent(event types.Event, payload any) {
	data, err := json.Marshal(types.Message{Event: event, Payload: payload})
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal outbound message",
			zap.String("event", string(event)), zap.Error(err))
		return
	}
	c.sendRaw(data)
}

// sendRaw queues an already-marshalled frame. Fire-and-forget: a full or
// closed channel drops the frame rather than blocking the caller.
func (c *Client) sendRaw(data []byte) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		metrics.DroppedMessages.WithLabelValues("client_closed").Inc()
		return
	}

	// The closed flag and the channel close race by a hair during
	// disconnect; recover catches the losing side.
	defer func() {
		if r := recover(); r != nil {
			metrics.DroppedMessages.WithLabelValues("client_closed").Inc()
		}
	}()

	select {
	case c.send <- data:
	default:
		metrics.DroppedMessages.WithLabelValues("channel_full").Inc()
		logging.Warn(context.Background(), "Client send channel full, dropping message",
			zap.String("connId", string(c.ID)))
	}
}

// sendRoomError reports a failed join to this client.
func (c *Client) sendRoomError(code types.ErrorCode, message string) {
	c.sendEvent(types.EventRoomError, types.RoomErrorPayload{Code: code, Message: message})
}

// closeSend shuts the outbound queue exactly once, which makes writePump emit
// a close frame and exit.
func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.send)
	})
}
