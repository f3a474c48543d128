// Package registry owns all rooms and their participant records. It is the
// only globally shared mutable structure in the hub: every mutation of a
// room's state is serialised on that room's lock, and registry-wide add and
// remove are serialised on the registry lock.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gauravbhatia4601/meet/internal/v1/logging"
	"github.com/gauravbhatia4601/meet/internal/v1/metrics"
	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// Registry operation errors, mapped to wire error codes at the router boundary.
var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomExists   = errors.New("room already exists")
	ErrRoomFull     = errors.New("room full")
	ErrPeerIDTaken  = errors.New("peer id already in use in this room")
)

// Registry is the process-wide mapping from room code to room state.
type Registry struct {
	mu              sync.RWMutex
	rooms           map[types.RoomCodeType]*Room
	maxParticipants int
	now             func() time.Time

	// OnRoomCreated and OnRoomDeleted are invoked outside all registry locks
	// after a room enters or leaves the map. The hub uses them to manage
	// per-room bus subscriptions. Set before serving traffic.
	OnRoomCreated func(types.RoomCodeType)
	OnRoomDeleted func(types.RoomCodeType)
}

// LeaveResult describes the outcome of a departure.
type LeaveResult struct {
	Left        types.ParticipantInfo
	WasHost     bool
	NewHostID   types.ConnIDType // "" when no promotion happened
	RoomDeleted bool
	Roster      []types.ParticipantInfo // remaining members, empty when the room was deleted
}

// RoomSnapshot is a consistent read-only view of one room.
type RoomSnapshot struct {
	Code         types.RoomCodeType
	HostID       types.ConnIDType
	CreatedAt    time.Time
	LastActivity time.Time
	Participants []types.ParticipantInfo
}

// Stats is the registry-wide aggregate served by the admin surface.
type Stats struct {
	TotalRooms        int            `json:"totalRooms"`
	TotalParticipants int            `json:"totalParticipants"`
	RoomsBySize       map[string]int `json:"roomsBySize"`
}

// New creates a Registry enforcing the given per-room participant cap.
func New(maxParticipants int) *Registry {
	return &Registry{
		rooms:           make(map[types.RoomCodeType]*Room),
		maxParticipants: maxParticipants,
		now:             time.Now,
	}
}

// Create makes a new room with the creator as host. Fails with ErrRoomExists
// when the code is already taken. Returns the initial roster.
func (reg *Registry) Create(code types.RoomCodeType, connID types.ConnIDType, peerID types.PeerIDType, name types.DisplayNameType) ([]types.ParticipantInfo, error) {
	now := reg.now()

	reg.mu.Lock()
	if _, ok := reg.rooms[code]; ok {
		reg.mu.Unlock()
		return nil, ErrRoomExists
	}

	r := newRoom(code, now)
	host := newParticipant(connID, peerID, name, true, now)
	host.IsHost = true
	r.hostID = connID
	r.participants[connID] = host
	reg.rooms[code] = r
	reg.mu.Unlock()

	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(string(code)).Set(1)
	logging.Info(context.Background(), "Room created",
		zap.String("roomCode", string(code)), zap.String("hostConnId", string(connID)))

	if reg.OnRoomCreated != nil {
		reg.OnRoomCreated(code)
	}

	return []types.ParticipantInfo{host.Info()}, nil
}

// Join adds a connection to an existing room. Idempotent for a connection id
// that is already a member: the existing record is returned unchanged.
func (reg *Registry) Join(code types.RoomCodeType, connID types.ConnIDType, peerID types.PeerIDType, name types.DisplayNameType) (types.ParticipantInfo, []types.ParticipantInfo, error) {
	r, ok := reg.lookup(code)
	if !ok {
		return types.ParticipantInfo{}, nil, ErrRoomNotFound
	}

	now := reg.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deleted {
		return types.ParticipantInfo{}, nil, ErrRoomNotFound
	}

	if existing, ok := r.participants[connID]; ok {
		r.lastActivity = now
		return existing.Info(), r.rosterLocked(), nil
	}

	if len(r.participants) >= reg.maxParticipants {
		return types.ParticipantInfo{}, nil, ErrRoomFull
	}

	p := newParticipant(connID, peerID, name, false, now)
	if _, taken := r.resolvePeerLocked(p.PeerID); taken {
		return types.ParticipantInfo{}, nil, ErrPeerIDTaken
	}

	r.participants[connID] = p
	r.lastActivity = now

	metrics.RoomParticipants.WithLabelValues(string(code)).Set(float64(len(r.participants)))

	return p.Info(), r.rosterLocked(), nil
}

// Leave removes a connection from a room. Unknown rooms and unknown
// connections are a no-op returning ok=false, which makes the departure path
// idempotent. On success it promotes a new host if the departing participant
// held the flag and deletes the room when it became empty.
func (reg *Registry) Leave(code types.RoomCodeType, connID types.ConnIDType) (LeaveResult, bool) {
	r, ok := reg.lookup(code)
	if !ok {
		return LeaveResult{}, false
	}

	now := reg.now()

	r.mu.Lock()
	if r.deleted {
		r.mu.Unlock()
		return LeaveResult{}, false
	}
	p, ok := r.participants[connID]
	if !ok {
		r.mu.Unlock()
		return LeaveResult{}, false
	}

	result := LeaveResult{Left: p.Info(), WasHost: p.IsHost}
	delete(r.participants, connID)
	r.lastActivity = now

	if len(r.participants) == 0 {
		// Last member out: the room must not outlive its participants.
		r.deleted = true
		r.hostID = ""
		result.RoomDeleted = true
		r.mu.Unlock()

		reg.remove(code, r)
		return result, true
	}

	if result.WasHost {
		result.NewHostID = r.electHostLocked()
	}
	result.Roster = r.rosterLocked()
	r.mu.Unlock()

	metrics.RoomParticipants.WithLabelValues(string(code)).Set(float64(len(result.Roster)))

	return result, true
}

// Get returns a consistent snapshot of one room.
func (reg *Registry) Get(code types.RoomCodeType) (RoomSnapshot, bool) {
	r, ok := reg.lookup(code)
	if !ok {
		return RoomSnapshot{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return RoomSnapshot{}, false
	}
	return RoomSnapshot{
		Code:         r.code,
		HostID:       r.hostID,
		CreatedAt:    r.createdAt,
		LastActivity: r.lastActivity,
		Participants: r.rosterLocked(),
	}, true
}

// ParticipantsOf returns a roster snapshot safe to hand across the component
// boundary. Unknown rooms yield an empty roster.
func (reg *Registry) ParticipantsOf(code types.RoomCodeType) []types.ParticipantInfo {
	r, ok := reg.lookup(code)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return nil
	}
	return r.rosterLocked()
}

// Resolve finds the participant addressed by a peer id within a room. This is
// the relay's peer id -> participant lookup.
func (reg *Registry) Resolve(code types.RoomCodeType, peerID types.PeerIDType) (types.ParticipantInfo, bool) {
	r, ok := reg.lookup(code)
	if !ok {
		return types.ParticipantInfo{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deleted {
		return types.ParticipantInfo{}, false
	}
	p, ok := r.resolvePeerLocked(peerID)
	if !ok {
		return types.ParticipantInfo{}, false
	}
	return p.Info(), true
}

// Touch updates a room's last-activity timestamp. Called for every semantic
// message routed within the room; transport pings deliberately do not reach
// here, so idle means no real traffic.
func (reg *Registry) Touch(code types.RoomCodeType) {
	r, ok := reg.lookup(code)
	if !ok {
		return
	}

	r.mu.Lock()
	if !r.deleted {
		r.lastActivity = reg.now()
	}
	r.mu.Unlock()
}

// Stats aggregates room and participant counts plus a distribution of rooms
// by participant count.
func (reg *Registry) Stats() Stats {
	reg.mu.RLock()
	rooms := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		rooms = append(rooms, r)
	}
	reg.mu.RUnlock()

	stats := Stats{RoomsBySize: make(map[string]int)}
	for _, r := range rooms {
		r.mu.Lock()
		size := len(r.participants)
		deleted := r.deleted
		r.mu.Unlock()

		if deleted {
			continue
		}
		stats.TotalRooms++
		stats.TotalParticipants += size
		stats.RoomsBySize[fmt.Sprintf("%d", size)]++
	}
	return stats
}

// Sweep deletes every room whose last activity is older than idleFor and
// returns their codes. Rooms swept this way may still hold participant
// records whose transports vanished without a close frame.
func (reg *Registry) Sweep(idleFor time.Duration) []types.RoomCodeType {
	cutoff := reg.now().Add(-idleFor)

	reg.mu.Lock()
	var stale []*Room
	for _, r := range reg.rooms {
		r.mu.Lock()
		if !r.deleted && r.lastActivity.Before(cutoff) {
			r.deleted = true
			stale = append(stale, r)
		}
		r.mu.Unlock()
	}
	for _, r := range stale {
		delete(reg.rooms, r.code)
	}
	reg.mu.Unlock()

	codes := make([]types.RoomCodeType, 0, len(stale))
	for _, r := range stale {
		codes = append(codes, r.code)

		metrics.ActiveRooms.Dec()
		metrics.RoomParticipants.DeleteLabelValues(string(r.code))
		metrics.SweptRooms.Inc()
		logging.Info(context.Background(), "Idle room swept", zap.String("roomCode", string(r.code)))

		if reg.OnRoomDeleted != nil {
			reg.OnRoomDeleted(r.code)
		}
	}
	return codes
}

// lookup finds a live room under the registry read lock.
func (reg *Registry) lookup(code types.RoomCodeType) (*Room, bool) {
	reg.mu.RLock()
	r, ok := reg.rooms[code]
	reg.mu.RUnlock()
	return r, ok
}

// remove deletes a room from the map after it was marked deleted under its
// own lock. Guarded against a room that was re-created under the same code
// in the window between marking and removal.
func (reg *Registry) remove(code types.RoomCodeType, r *Room) {
	reg.mu.Lock()
	if current, ok := reg.rooms[code]; ok && current == r {
		delete(reg.rooms, code)
	}
	reg.mu.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(string(code))
	logging.Info(context.Background(), "Room deleted", zap.String("roomCode", string(code)))

	if reg.OnRoomDeleted != nil {
		reg.OnRoomDeleted(code)
	}
}
