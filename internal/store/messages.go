package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Message mirrors the messages table. Exactly one of ReceiverID/GroupID is
// set, mirrored by IsGroup.
type Message struct {
	ID          int64
	Content     string
	SenderID    int64
	ReceiverID  sql.NullInt64
	GroupID     sql.NullInt64
	IsGroup     bool
	IsDelivered bool
	DeliveredAt sql.NullTime
	CreatedAt   time.Time
}

// CreatePrivateMessage persists a private message with is_delivered=false.
func (s *Store) CreatePrivateMessage(ctx context.Context, senderID, receiverID int64, content string) (Message, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(content, sender_id, receiver_id, is_group, is_delivered) VALUES(?, ?, ?, 0, 0)`,
		content, senderID, receiverID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert private message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("insert private message: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// CreateGroupMessage persists a message addressed to a group.
func (s *Store) CreateGroupMessage(ctx context.Context, senderID, groupID int64, content string) (Message, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages(content, sender_id, group_id, is_group, is_delivered) VALUES(?, ?, ?, 1, 0)`,
		content, senderID, groupID,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert group message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("insert group message: %w", err)
	}
	return s.GetMessage(ctx, id)
}

// GetMessage returns the message with the given id.
func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	var m Message
	var createdAt int64
	var deliveredAt sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, sender_id, receiver_id, group_id, is_group, is_delivered, delivered_at, created_at
		 FROM messages WHERE id = ?`, id,
	).Scan(&m.ID, &m.Content, &m.SenderID, &m.ReceiverID, &m.GroupID, &m.IsGroup, &m.IsDelivered, &deliveredAt, &createdAt)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, fmt.Errorf("scan message: %w", err)
	}
	m.CreatedAt = time.Unix(createdAt, 0).UTC()
	if deliveredAt.Valid {
		m.DeliveredAt = sql.NullTime{Time: time.Unix(deliveredAt.Int64, 0).UTC(), Valid: true}
	}
	return m, nil
}

// MarkDelivered records that messageID was successfully delivered at `at`.
func (s *Store) MarkDelivered(ctx context.Context, messageID int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET is_delivered = 1, delivered_at = ? WHERE id = ?`,
		at.UTC().Unix(), messageID,
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}
