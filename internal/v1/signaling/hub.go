package signaling

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/bus"
	"github.com/gauravbhatia4601/meet/internal/v1/config"
	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
	"github.com/gauravbhatia4601/meet/internal/v1/ratelimit"
	"github.com/gauravbhatia4601/meet/internal/v1/registry"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// Hub accepts WebSocket connections and wires them to the room registry. The
// registry is injected rather than global; the hub is the only component that
// talks to both the registry and live connections.
type Hub struct {
	registry *registry.Registry
	bus      *bus.Service        // optional: nil means single-instance mode
	limiter  *ratelimit.Limiter  // optional: nil disables connect limiting

	pingInterval time.Duration
	pongTimeout  time.Duration

	// instanceID tags bus messages so an instance can ignore its own echoes.
	instanceID string

	mu      sync.RWMutex
	clients map[types.ConnIDType]*Client
	closed  bool

	subMu    sync.Mutex
	roomSubs map[types.RoomCodeType]context.CancelFunc
	subWG    sync.WaitGroup

	upgrader websocket.Upgrader
}

// NewHub creates a Hub and registers itself for room lifecycle callbacks on
// the registry (bus subscriptions follow room creation and deletion).
func NewHub(reg *registry.Registry, busService *bus.Service, limiter *ratelimit.Limiter, cfg *config.Config) *Hub {
	h := &Hub{
		registry:     reg,
		bus:          busService,
		limiter:      limiter,
		pingInterval: cfg.PingInterval,
		pongTimeout:  cfg.PongTimeout,
		instanceID:   uuid.NewString(),
		clients:      make(map[types.ConnIDType]*Client),
		roomSubs:     make(map[types.RoomCodeType]context.CancelFunc),
	}

	allowedOrigins := cfg.AllowedOrigins
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	reg.OnRoomCreated = h.subscribeRoom
	reg.OnRoomDeleted = h.unsubscribeRoom

	return h
}

// originAllowed checks the Origin header against the whitelist by scheme and
// host. Non-browser clients without an Origin header are allowed through.
func originAllowed(r *http.Request, allowedOrigins []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			return true
		}
	}
	return false
}

// ServeWs upgrades an HTTP request to a WebSocket connection, mints the
// connection id, and starts the client's pumps. The client is not a room
// member until it sends join-room.
func (h *Hub) ServeWs(c *gin.Context) {
	h.mu.RLock()
	closed := h.closed
	h.mu.RUnlock()
	if closed {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server shutting down"})
		return
	}

	if h.limiter != nil && !h.limiter.CheckWebSocket(c) {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "Failed to upgrade connection", zap.Error(err))
		return
	}

	h.HandleConnection(conn)
}

// HandleConnection takes an established WebSocket connection and sets up the
// client endpoint. Split from ServeWs so tests can drive it with mocks.
func (h *Hub) HandleConnection(conn wsConnection) *Client {
	client := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		ID:   types.ConnIDType(uuid.NewString()),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()

	metrics.IncConnection()
	logging.Info(context.Background(), "Client connected", zap.String("connId", string(client.ID)))

	go client.writePump()
	go client.readPump()

	return client
}

// client looks up a live local connection by id.
func (h *Hub) client(id types.ConnIDType) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// handleClientDisconnect runs when a client's read pump exits, for both clean
// close frames and dropped transports. The departure path is idempotent: a
// second invocation finds no registration and no binding.
func (h *Hub) handleClientDisconnect(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.leaveCurrentRoom(c)
	c.closeSend()

	logging.Info(context.Background(), "Client disconnected", zap.String("connId", string(c.ID)))
}

// subscribeRoom opens a bus subscription for a freshly created room.
func (h *Hub) subscribeRoom(code types.RoomCodeType) {
	if h.bus == nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	h.subMu.Lock()
	if _, exists := h.roomSubs[code]; exists {
		h.subMu.Unlock()
		cancel()
		return
	}
	h.roomSubs[code] = cancel
	h.subMu.Unlock()

	h.bus.Subscribe(ctx, string(code), &h.subWG, func(p bus.PubSubPayload) {
		h.handleBusEvent(p)
	})
}

// unsubscribeRoom tears down the bus subscription of a deleted room.
func (h *Hub) unsubscribeRoom(code types.RoomCodeType) {
	if h.bus == nil {
		return
	}

	h.subMu.Lock()
	cancel, ok := h.roomSubs[code]
	if ok {
		delete(h.roomSubs, code)
	}
	h.subMu.Unlock()

	if ok {
		cancel()
	}
}

// handleBusEvent delivers a cross-instance event to local members of the
// room. Messages this instance published itself are ignored.
func (h *Hub) handleBusEvent(p bus.PubSubPayload) {
	if p.Origin == h.instanceID {
		return
	}

	code := types.RoomCodeType(p.RoomCode)
	frame, err := marshalEnvelope(types.Event(p.Event), p.Payload)
	if err != nil {
		logging.Error(context.Background(), "Failed to marshal bus event", zap.Error(err))
		return
	}

	if p.Target != "" {
		// Unicast relay: deliver only if the addressee is connected here.
		target, ok := h.registry.Resolve(code, types.PeerIDType(p.Target))
		if !ok {
			return
		}
		if client, ok := h.client(target.ID); ok {
			client.sendRaw(frame)
		}
		return
	}

	for _, member := range h.registry.ParticipantsOf(code) {
		if client, ok := h.client(member.ID); ok {
			client.sendRaw(frame)
		}
	}
}

// Shutdown gracefully closes all live connections and bus subscriptions. New
// upgrades are refused as soon as it starts.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	logging.Info(ctx, "Shutting down hub", zap.Int("connections", len(clients)))

	for _, c := range clients {
		c.closeSend()
		// The reader task notices the closed connection and drains through
		// the normal departure path.
		_ = c.conn.Close()
	}

	h.subMu.Lock()
	for code, cancel := range h.roomSubs {
		delete(h.roomSubs, code)
		cancel()
	}
	h.subMu.Unlock()

	done := make(chan struct{})
	go func() {
		h.subWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return nil
}
