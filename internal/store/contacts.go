package store

import (
	"context"
	"fmt"
	"time"
)

// Contact status values.
const (
	ContactPending  = "PENDING"
	ContactApproved = "APPROVED"
	ContactBlocked  = "BLOCKED"
	ContactDeleted  = "DELETED"
)

// UserContact mirrors one row of the user_contacts table.
type UserContact struct {
	ID             int64
	UserID         int64
	ContactID      int64
	CustomNickname string
	Status         string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ContactRow pairs a UserContact with the target's username, joining
// UserContact to User on contact_id — the shape list_contacts returns.
type ContactRow struct {
	Contact      UserContact
	TargetUsername string
}

// AddContact inserts a contact edge from userID to contactID in PENDING
// status. userID and contactID must differ.
func (s *Store) AddContact(ctx context.Context, userID, contactID int64, customNickname string) (UserContact, error) {
	if userID == contactID {
		return UserContact{}, fmt.Errorf("user_id and contact_id must differ")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_contacts(user_id, contact_id, custom_nickname, status) VALUES(?, ?, ?, ?)`,
		userID, contactID, customNickname, ContactPending,
	)
	if err != nil {
		return UserContact{}, fmt.Errorf("insert contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return UserContact{}, fmt.Errorf("insert contact: %w", err)
	}
	return s.getContact(ctx, id)
}

func (s *Store) getContact(ctx context.Context, id int64) (UserContact, error) {
	var c UserContact
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, contact_id, custom_nickname, status, created_at, updated_at
		 FROM user_contacts WHERE id = ?`, id,
	).Scan(&c.ID, &c.UserID, &c.ContactID, &c.CustomNickname, &c.Status, &createdAt, &updatedAt)
	if err != nil {
		return UserContact{}, fmt.Errorf("scan contact: %w", err)
	}
	c.CreatedAt = time.Unix(createdAt, 0).UTC()
	c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return c, nil
}

// SetContactStatus transitions a contact row to a new status and updates
// updated_at.
func (s *Store) SetContactStatus(ctx context.Context, contactRowID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE user_contacts SET status = ?, updated_at = unixepoch() WHERE id = ?`,
		status, contactRowID,
	)
	if err != nil {
		return fmt.Errorf("update contact status: %w", err)
	}
	return nil
}

// ListContacts returns every contact row owned by userID, joined to the
// target's username. Filtering by status is
// left to the caller.
func (s *Store) ListContacts(ctx context.Context, userID int64) ([]ContactRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uc.id, uc.user_id, uc.contact_id, uc.custom_nickname, uc.status, uc.created_at, uc.updated_at, u.username
		 FROM user_contacts uc
		 JOIN users u ON u.id = uc.contact_id
		 WHERE uc.user_id = ?
		 ORDER BY uc.id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	var out []ContactRow
	for rows.Next() {
		var c UserContact
		var createdAt, updatedAt int64
		var username string
		if err := rows.Scan(&c.ID, &c.UserID, &c.ContactID, &c.CustomNickname, &c.Status, &createdAt, &updatedAt, &username); err != nil {
			return nil, fmt.Errorf("scan contact row: %w", err)
		}
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		c.UpdatedAt = time.Unix(updatedAt, 0).UTC()
		out = append(out, ContactRow{Contact: c, TargetUsername: username})
	}
	return out, rows.Err()
}
