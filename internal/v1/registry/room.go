package registry

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gauravbhatia4601/meet/internal/v1/types"
)

// Participant is one connection's membership of one room. Records are owned
// by their room and are only handed across the package boundary as
// types.ParticipantInfo value copies.
type Participant struct {
	ConnID   types.ConnIDType
	PeerID   types.PeerIDType
	Name     types.DisplayNameType
	IsHost   bool
	JoinedAt time.Time
}

// Info returns an immutable snapshot of the participant.
func (p *Participant) Info() types.ParticipantInfo {
	return types.ParticipantInfo{
		ID:     p.ConnID,
		PeerID: p.PeerID,
		Name:   p.Name,
		IsHost: p.IsHost,
	}
}

// Room holds the state of one coordination context. All fields behind mu are
// mutated only with the lock held; the registry serialises map-level add and
// remove separately.
type Room struct {
	code types.RoomCodeType

	mu           sync.Mutex
	hostID       types.ConnIDType
	participants map[types.ConnIDType]*Participant
	createdAt    time.Time
	lastActivity time.Time

	// deleted marks a room that has been (or is about to be) removed from the
	// registry map, so lookups that raced the removal treat it as gone.
	deleted bool
}

func newRoom(code types.RoomCodeType, now time.Time) *Room {
	return &Room{
		code:         code,
		participants: make(map[types.ConnIDType]*Participant),
		createdAt:    now,
		lastActivity: now,
	}
}

func newParticipant(connID types.ConnIDType, peerID types.PeerIDType, name types.DisplayNameType, isHost bool, now time.Time) *Participant {
	trimmedName := types.DisplayNameType(strings.TrimSpace(string(name)))
	if trimmedName == "" {
		trimmedName = types.FallbackDisplayName(connID)
	}
	return &Participant{
		ConnID:   connID,
		PeerID:   types.PeerIDType(strings.TrimSpace(string(peerID))),
		Name:     trimmedName,
		IsHost:   isHost,
		JoinedAt: now,
	}
}

// rosterLocked returns a snapshot of all participants ordered by join time,
// tie-broken by connection id for determinism. Caller must hold r.mu.
func (r *Room) rosterLocked() []types.ParticipantInfo {
	members := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		members = append(members, p)
	}
	sort.Slice(members, func(i, j int) bool {
		if members[i].JoinedAt.Equal(members[j].JoinedAt) {
			return members[i].ConnID < members[j].ConnID
		}
		return members[i].JoinedAt.Before(members[j].JoinedAt)
	})

	roster := make([]types.ParticipantInfo, len(members))
	for i, p := range members {
		roster[i] = p.Info()
	}
	return roster
}

// electHostLocked promotes the oldest-joined remaining participant, tie-broken
// by smallest connection id. Caller must hold r.mu and have removed the old
// host already. Returns the new host's connection id, or "" on an empty room.
func (r *Room) electHostLocked() types.ConnIDType {
	var successor *Participant
	for _, p := range r.participants {
		if successor == nil {
			successor = p
			continue
		}
		if p.JoinedAt.Before(successor.JoinedAt) ||
			(p.JoinedAt.Equal(successor.JoinedAt) && p.ConnID < successor.ConnID) {
			successor = p
		}
	}
	if successor == nil {
		r.hostID = ""
		return ""
	}
	successor.IsHost = true
	r.hostID = successor.ConnID
	return successor.ConnID
}

// resolvePeerLocked finds the participant addressed by a peer id. Caller must
// hold r.mu.
func (r *Room) resolvePeerLocked(peerID types.PeerIDType) (*Participant, bool) {
	for _, p := range r.participants {
		if p.PeerID == peerID {
			return p, true
		}
	}
	return nil, false
}
