package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/haverford/chatcore/internal/protocol"
	"github.com/haverford/chatcore/internal/store"
)

// deliverPrivateMessage looks up the receiver's live session, attempts
// real-time delivery, and marks the persisted row delivered/undelivered
// accordingly. A dead connection discovered mid-send is lazily purged from
// the session registry.
func (rt *Router) deliverPrivateMessage(ctx context.Context, msg store.Message) {
	receiverID := msg.ReceiverID.Int64
	conn, ok := rt.sessions.Lookup(receiverID)
	if !ok {
		slog.Debug("router: receiver offline, message stored undelivered", "message_id", msg.ID, "receiver_id", receiverID)
		return
	}

	env := protocol.Success(protocol.TypePrivateMessage, protocol.PrivateMessageData{
		ID:         msg.ID,
		SenderID:   msg.SenderID,
		ReceiverID: receiverID,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt.Format(time.RFC3339),
	})

	if err := conn.Send(env); err != nil {
		slog.Debug("router: delivery send failed, purging dead session", "message_id", msg.ID, "receiver_id", receiverID, "err", err)
		rt.sessions.Purge(receiverID)
		return
	}

	if err := rt.store.MarkDelivered(ctx, msg.ID, time.Now()); err != nil {
		slog.Error("router: mark delivered", "message_id", msg.ID, "err", err)
	}
}
