// Package router implements the connection state machine, the message
// router, and the delivery engine. It is the glue between the transport
// (internal/wsserver), the codec (internal/protocol), and the registries
// (internal/session, internal/room) and repository (internal/store).
package router

import (
	"sync"

	"github.com/haverford/chatcore/internal/protocol"
)

// Transport is the minimal outbound surface a connection needs: writing one
// frame and closing the underlying socket. internal/wsserver implements
// this over a *websocket.Conn.
type Transport interface {
	Send(v any) error
	Close() error
}

// State is a connection's position in its lifecycle.
type State int

const (
	StateConnected State = iota
	StateAuthorized
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthorized:
		return "authorized"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection holds the per-connection state: which user (if any) it is
// bound to, which room (if any) it has joined, and its lifecycle state. It
// also implements the Conn interfaces expected by internal/session and
// internal/room, so a *Connection can be registered directly in both
// registries.
type Connection struct {
	transport Transport

	mu          sync.Mutex
	state       State
	userID      int64
	roomID      string
	peerID      string
	displayName string
}

// NewConnection wraps transport in a fresh Connected-state Connection.
func NewConnection(transport Transport) *Connection {
	return &Connection{transport: transport, state: StateConnected}
}

// Send writes an outbound frame. Satisfies session.Conn and room.Conn.
func (c *Connection) Send(v any) error {
	return c.transport.Send(v)
}

// Close terminates the underlying transport. Satisfies session.Conn.
func (c *Connection) Close() error {
	return c.transport.Close()
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// authorize transitions Connected -> Authorized and binds userID.
func (c *Connection) authorize(userID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateAuthorized
	c.userID = userID
}

// UserID returns the bound user id, or 0 if not yet authorized.
func (c *Connection) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// setRoom records the room and peer ID a join produced.
func (c *Connection) setRoom(roomID, peerID, displayName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = roomID
	c.peerID = peerID
	c.displayName = displayName
}

// clearRoom forgets room membership, e.g. after leave or disconnect.
func (c *Connection) clearRoom() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = ""
	c.peerID = ""
}

// roomState returns the connection's current room membership, if any.
func (c *Connection) roomState() (roomID, peerID string, inRoom bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.peerID, c.roomID != ""
}

// markClosed transitions to Closed regardless of the prior state.
func (c *Connection) markClosed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
}

// sendEnvelope is a convenience wrapper used by handlers.
func (c *Connection) sendEnvelope(env protocol.Envelope) {
	_ = c.Send(env)
}
