// Package room implements the ephemeral room registry and the WebRTC
// signaling relay. Rooms are created lazily on first join and destroyed
// once their member set is empty; they are never persisted.
package room

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Conn is the outbound surface a room member exposes. It mirrors
// session.Conn but is declared independently so this package has no
// compile-time dependency on internal/session (a room member need not be
// an authenticated session's connection in principle, only a live one).
type Conn interface {
	Send(v any) error
}

// Member is one connection's membership in a room.
type Member struct {
	PeerID      string // stable within this room only, distinct from user_id
	UserID      int64
	DisplayName string
	Conn        Conn
}

// UserListEntry is what a newly-joining member sees for each prior peer.
type UserListEntry struct {
	PeerID      string `json:"peer_id"`
	UserID      int64  `json:"user_id"`
	DisplayName string `json:"name"`
}

type room struct {
	members map[string]*Member // peerID -> member
}

// Registry is the process-wide room_id -> room map.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*room
}

// NewRegistry returns an empty room registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*room)}
}

// Join adds a new member to roomID (creating it if absent), sends the
// joiner a user-list of every other current member, then broadcasts
// user-joined to those peers. The joiner's reply is written before the
// broadcast, and both complete before Join returns. Returns the newly
// assigned peer ID.
func (r *Registry) Join(roomID string, userID int64, displayName string, conn Conn) (peerID string) {
	peerID = uuid.NewString()
	member := &Member{PeerID: peerID, UserID: userID, DisplayName: displayName, Conn: conn}

	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		rm = &room{members: make(map[string]*Member)}
		r.rooms[roomID] = rm
	}
	others := make([]*Member, 0, len(rm.members))
	for _, m := range rm.members {
		others = append(others, m)
	}
	rm.members[peerID] = member
	r.mu.Unlock()

	entries := make([]UserListEntry, len(others))
	for i, m := range others {
		entries[i] = UserListEntry{PeerID: m.PeerID, UserID: m.UserID, DisplayName: m.DisplayName}
	}
	if err := conn.Send(map[string]any{
		"type":  "user-list",
		"users": entries,
	}); err != nil {
		slog.Debug("room: send user-list failed", "room_id", roomID, "peer_id", peerID, "err", err)
	}

	for _, m := range others {
		if err := m.Conn.Send(map[string]any{
			"type":    "user-joined",
			"peer_id": peerID,
			"user_id": userID,
			"name":    displayName,
		}); err != nil {
			slog.Debug("room: send user-joined failed", "room_id", roomID, "target", m.PeerID, "err", err)
		}
	}

	slog.Info("room: member joined", "room_id", roomID, "peer_id", peerID, "user_id", userID, "members", len(others)+1)
	return peerID
}

// Leave removes peerID from roomID. If the member set becomes empty the
// room is dropped; otherwise the remaining members receive user-left.
func (r *Registry) Leave(roomID, peerID string) {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return
	}
	removed, existed := rm.members[peerID]
	delete(rm.members, peerID)
	empty := len(rm.members) == 0
	var remaining []*Member
	if !empty {
		remaining = make([]*Member, 0, len(rm.members))
		for _, m := range rm.members {
			remaining = append(remaining, m)
		}
	} else {
		delete(r.rooms, roomID)
	}
	r.mu.Unlock()

	if !existed {
		return
	}

	for _, m := range remaining {
		if err := m.Conn.Send(map[string]any{
			"type":    "user-left",
			"peer_id": peerID,
			"user_id": removed.UserID,
		}); err != nil {
			slog.Debug("room: send user-left failed", "room_id", roomID, "target", m.PeerID, "err", err)
		}
	}

	slog.Info("room: member left", "room_id", roomID, "peer_id", peerID, "remaining", len(remaining), "room_dropped", empty)
}

// ErrTargetAbsent is returned by Relay when targetPeerID is not a member of
// roomID.
var ErrTargetAbsent = fmt.Errorf("target not in room")

// Relay forwards an opaque signaling payload from senderPeerID to
// targetPeerID within roomID, rewriting the envelope so the receiver sees
// sender_id = senderPeerID instead of target_id. The server
// never inspects payload beyond passthrough.
func (r *Registry) Relay(roomID, senderPeerID, targetPeerID, msgType string, payload map[string]any) error {
	r.mu.Lock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.Unlock()
		return ErrTargetAbsent
	}
	target, ok := rm.members[targetPeerID]
	r.mu.Unlock()
	if !ok {
		return ErrTargetAbsent
	}

	out := map[string]any{"type": msgType, "sender_id": senderPeerID}
	for k, v := range payload {
		out[k] = v
	}
	return target.Conn.Send(out)
}

// RoomOf reports whether peerID is currently a member of roomID.
func (r *Registry) RoomOf(roomID, peerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	_, ok = rm.members[peerID]
	return ok
}

// RoomCount returns the number of currently live rooms.
func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}
