package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/haverford/chatcore/internal/auth"
	"github.com/haverford/chatcore/internal/protocol"
	"github.com/haverford/chatcore/internal/room"
	"github.com/haverford/chatcore/internal/session"
	"github.com/haverford/chatcore/internal/store"
)

// Router dispatches validated frames to handlers. It is the
// single point where the codec, registries, and repository meet.
type Router struct {
	store    *store.Store
	hasher   *auth.Hasher
	sessions *session.Registry
	rooms    *room.Registry
}

// New builds a Router over the given collaborators.
func New(st *store.Store, hasher *auth.Hasher, sessions *session.Registry, rooms *room.Registry) *Router {
	return &Router{store: st, hasher: hasher, sessions: sessions, rooms: rooms}
}

// HandleFrame decodes and routes one inbound frame for conn: decode ->
// identify type -> validate -> check allowed-in-state -> invoke handler.
// Errors are translated into an `error` envelope on the originating
// connection rather than tearing it down.
func (rt *Router) HandleFrame(ctx context.Context, conn *Connection, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		rt.reportDecodeError(conn, err)
		return
	}

	if protocol.RequiresAuth(env.Type) && conn.State() != StateAuthorized {
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Unauthorized"))
		return
	}

	switch env.Type {
	case protocol.TypeRegister:
		rt.handleRegister(ctx, conn, env)
	case protocol.TypeLogin:
		rt.handleLogin(ctx, conn, env)
	case protocol.TypeCreateGroup:
		rt.handleCreateGroup(ctx, conn, env)
	case protocol.TypePrivateMessage:
		rt.handlePrivateMessage(ctx, conn, env)
	case protocol.TypeGroupMessage:
		rt.handleGroupMessage(ctx, conn, env)
	case protocol.TypeGetUserContacts:
		rt.handleGetUserContacts(ctx, conn, env)
	case protocol.TypeJoin, protocol.TypeCreateRoom:
		rt.handleJoin(conn, env)
	case protocol.TypeOffer:
		rt.handleRelay(conn, env, protocol.TypeOffer, map[string]any{"offer": env.Offer})
	case protocol.TypeAnswer:
		rt.handleRelay(conn, env, protocol.TypeAnswer, map[string]any{"answer": env.Answer})
	case protocol.TypeICECandidate:
		rt.handleRelay(conn, env, protocol.TypeICECandidate, map[string]any{"candidate": env.Candidate})
	case protocol.TypeLeave:
		rt.handleLeave(conn)
	default:
		// protocol.Decode already rejects unknown types, so this is
		// unreachable in practice; kept as a defensive default.
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, fmt.Sprintf("Invalid message type: %s", env.Type)))
	}
}

func (rt *Router) reportDecodeError(conn *Connection, err error) {
	var valErr *protocol.ValidationError
	var typeErr *protocol.InvalidTypeError
	switch {
	case errors.As(err, &typeErr):
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, fmt.Sprintf("Invalid message type: %s", typeErr.Type)))
	case errors.As(err, &valErr):
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, fmt.Sprintf("Validation error: %s", strings.Join(valErr.Fields, ", "))))
	default:
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Invalid JSON format"))
	}
}

// handleRegister generates a salt, hashes the password, creates the user,
// binds the session, and replies auth_success.
func (rt *Router) handleRegister(ctx context.Context, conn *Connection, env protocol.Envelope) {
	salt, err := auth.NewSalt()
	if err != nil {
		slog.Error("router: generate salt", "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not generate credentials"))
		return
	}
	hash := rt.hasher.Hash(env.Password, salt)

	u, err := rt.store.CreateUser(ctx, env.Username, env.Email, string(salt), hash)
	switch {
	case errors.Is(err, store.ErrUsernameTaken):
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Username already taken"))
		return
	case errors.Is(err, store.ErrEmailTaken):
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Email already registered"))
		return
	case err != nil:
		slog.Error("router: create user", "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not create user"))
		return
	}

	rt.bindSession(conn, u)
	slog.Info("router: user registered", "user_id", u.ID, "username", u.Username)
	conn.sendEnvelope(protocol.Success(protocol.TypeAuthSuccess, toUserPublic(u)))
}

// handleLogin fetches the user, verifies the password, binds the session,
// and replies auth_success; on mismatch it replies a non-discriminating
// error.
func (rt *Router) handleLogin(ctx context.Context, conn *Connection, env protocol.Envelope) {
	u, err := rt.store.GetUserByUsername(ctx, env.Username)
	if errors.Is(err, store.ErrNotFound) {
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Invalid credentials"))
		return
	}
	if err != nil {
		slog.Error("router: get user by username", "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not log in"))
		return
	}
	if !rt.hasher.Verify(env.Password, []byte(u.Salt), u.PasswordHash) {
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Invalid credentials"))
		return
	}

	rt.bindSession(conn, u)
	slog.Info("router: user logged in", "user_id", u.ID, "username", u.Username)
	conn.sendEnvelope(protocol.Success(protocol.TypeAuthSuccess, toUserPublic(u)))
}

// bindSession performs the Connected -> Authorized transition shared by
// register and login, evicting any prior connection for the same user. The
// notice is sent while the evicted transport is still open; only then is it
// closed.
func (rt *Router) bindSession(conn *Connection, u store.User) {
	conn.authorize(u.ID)
	evicted, hadPrevious := rt.sessions.Insert(u.ID, conn)
	if hadPrevious {
		slog.Info("router: evicted duplicate login", "user_id", u.ID)
		if err := evicted.Send(protocol.Fail(protocol.TypeError, "logged in from another connection")); err != nil {
			slog.Debug("router: notify evicted connection", "user_id", u.ID, "err", err)
		}
		_ = evicted.Close()
	}
}

func toUserPublic(u store.User) protocol.UserPublic {
	return protocol.UserPublic{
		ID:        u.ID,
		Username:  u.Username,
		Nickname:  u.Nickname,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// handleGetUserContacts replies with the caller's contacts and groups.
func (rt *Router) handleGetUserContacts(ctx context.Context, conn *Connection, _ protocol.Envelope) {
	userID := conn.UserID()

	rows, err := rt.store.ListContacts(ctx, userID)
	if err != nil {
		slog.Error("router: list contacts", "user_id", userID, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not load contacts"))
		return
	}
	groups, err := rt.store.ListGroupsForUser(ctx, userID)
	if err != nil {
		slog.Error("router: list groups", "user_id", userID, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not load groups"))
		return
	}

	data := protocol.UserContactsData{
		Contacts: make([]protocol.ContactView, len(rows)),
		Groups:   make([]protocol.GroupView, len(groups)),
	}
	for i, row := range rows {
		data.Contacts[i] = protocol.ContactView{
			UserID:         row.Contact.ContactID,
			UserName:       row.TargetUsername,
			CustomNickname: row.Contact.CustomNickname,
			Status:         row.Contact.Status,
		}
	}
	for i, g := range groups {
		data.Groups[i] = protocol.GroupView{GroupID: g.ID, GroupName: g.Name, Status: protocol.GroupStatusActive}
	}

	conn.sendEnvelope(protocol.Success(protocol.TypeUserContacts, data))
}

// handleCreateGroup creates a group with the caller as creator.
func (rt *Router) handleCreateGroup(ctx context.Context, conn *Connection, env protocol.Envelope) {
	userID := conn.UserID()
	g, err := rt.store.CreateGroup(ctx, env.Name, userID, env.Members)
	if err != nil {
		slog.Error("router: create group", "user_id", userID, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not create group"))
		return
	}
	conn.sendEnvelope(protocol.Success(protocol.TypeGroupCreated, protocol.GroupCreatedData{ID: g.ID, Name: g.Name}))
}

// handleJoin joins conn to a room. A connection may belong to at most one
// room at a time, so joining a new room first leaves the old one.
func (rt *Router) handleJoin(conn *Connection, env protocol.Envelope) {
	if oldRoom, oldPeer, inRoom := conn.roomState(); inRoom {
		rt.rooms.Leave(oldRoom, oldPeer)
		conn.clearRoom()
	}
	peerID := rt.rooms.Join(env.RoomID, conn.UserID(), env.Name, conn)
	conn.setRoom(env.RoomID, peerID, env.Name)
}

// handleLeave removes conn from its current room, if any.
func (rt *Router) handleLeave(conn *Connection) {
	roomID, peerID, inRoom := conn.roomState()
	if !inRoom {
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "not in a room"))
		return
	}
	rt.rooms.Leave(roomID, peerID)
	conn.clearRoom()
}

// handleRelay forwards an offer/answer/ice-candidate frame to its target
// peer within the caller's current room.
func (rt *Router) handleRelay(conn *Connection, env protocol.Envelope, msgType string, payload map[string]any) {
	roomID, peerID, inRoom := conn.roomState()
	if !inRoom {
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "not in a room"))
		return
	}
	if err := rt.rooms.Relay(roomID, peerID, env.TargetID, msgType, payload); err != nil {
		slog.Debug("router: relay miss", "room_id", roomID, "peer_id", peerID, "target_id", env.TargetID, "type", msgType, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "target not in room"))
	}
}

// Disconnect runs the full cleanup path for a closed transport: remove
// from the session registry (if still current) and leave any joined room,
// notifying peers.
func (rt *Router) Disconnect(conn *Connection) {
	conn.markClosed()

	if userID := conn.UserID(); userID != 0 {
		rt.sessions.Remove(userID, conn)
	}
	if roomID, peerID, inRoom := conn.roomState(); inRoom {
		rt.rooms.Leave(roomID, peerID)
		conn.clearRoom()
	}
}
