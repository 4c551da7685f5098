package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/haverford/chatcore/internal/protocol"
)

// handlePrivateMessage persists a private_message via the store, invokes
// the delivery engine, and replies message_sent to the sender.
func (rt *Router) handlePrivateMessage(ctx context.Context, conn *Connection, env protocol.Envelope) {
	msg, err := rt.store.CreatePrivateMessage(ctx, env.SenderID, env.ReceiverID, env.Content)
	if err != nil {
		slog.Error("router: create private message", "sender_id", env.SenderID, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not send message"))
		return
	}

	rt.deliverPrivateMessage(ctx, msg)

	conn.sendEnvelope(protocol.Success(protocol.TypeMessageSent, protocol.PrivateMessageData{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: env.ReceiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
	}))
}

// handleGroupMessage persists a group_message, fans it out to every
// currently-online group member via the session registry (the analogue of
// room broadcast, with membership sourced from the store), and echoes
// message_sent to the sender.
func (rt *Router) handleGroupMessage(ctx context.Context, conn *Connection, env protocol.Envelope) {
	senderID := conn.UserID()
	msg, err := rt.store.CreateGroupMessage(ctx, senderID, env.GroupID, env.Content)
	if err != nil {
		slog.Error("router: create group message", "sender_id", senderID, "group_id", env.GroupID, "err", err)
		conn.sendEnvelope(protocol.Fail(protocol.TypeError, "Server error: could not send message"))
		return
	}

	memberIDs, err := rt.store.ListGroupMembers(ctx, env.GroupID)
	if err != nil {
		slog.Error("router: list group members", "group_id", env.GroupID, "err", err)
	}

	out := protocol.Success(protocol.TypeGroupMessage, protocol.GroupMessageData{
		ID:        msg.ID,
		SenderID:  senderID,
		GroupID:   env.GroupID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})
	sent := 0
	for _, memberID := range memberIDs {
		if memberID == senderID {
			continue
		}
		if memberConn, ok := rt.sessions.Lookup(memberID); ok {
			if err := memberConn.Send(out); err != nil {
				slog.Debug("router: group fan-out send failed", "group_id", env.GroupID, "member_id", memberID, "err", err)
				rt.sessions.Purge(memberID)
				continue
			}
			sent++
		}
	}
	slog.Debug("router: group message fanned out", "group_id", env.GroupID, "members", len(memberIDs), "delivered", sent)

	conn.sendEnvelope(protocol.Success(protocol.TypeMessageSent, protocol.GroupMessageData{
		ID:        msg.ID,
		SenderID:  senderID,
		GroupID:   env.GroupID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	}))
}
