package store

import (
	"context"
	"fmt"
	"time"
)

// Group mirrors the groups table.
type Group struct {
	ID        int64
	Name      string
	CreatorID int64
	CreatedAt time.Time
}

// CreateGroup creates a group and its membership rows (the creator plus
// memberIDs) as one transaction: on any failure nothing persists.
func (s *Store) CreateGroup(ctx context.Context, name string, creatorID int64, memberIDs []int64) (Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Group{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op once committed

	res, err := tx.ExecContext(ctx,
		`INSERT INTO groups(name, creator_id) VALUES(?, ?)`, name, creatorID,
	)
	if err != nil {
		return Group{}, fmt.Errorf("insert group: %w", err)
	}
	groupID, err := res.LastInsertId()
	if err != nil {
		return Group{}, fmt.Errorf("insert group: %w", err)
	}

	members := map[int64]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		members[id] = struct{}{}
	}
	for memberID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO group_members(group_id, user_id) VALUES(?, ?)`, groupID, memberID,
		); err != nil {
			return Group{}, fmt.Errorf("insert group member %d: %w", memberID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Group{}, fmt.Errorf("commit: %w", err)
	}

	return Group{ID: groupID, Name: name, CreatorID: creatorID, CreatedAt: time.Now().UTC()}, nil
}

// ListGroupsForUser returns every group userID belongs to.
func (s *Store) ListGroupsForUser(ctx context.Context, userID int64) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id, g.name, g.creator_id, g.created_at
		 FROM groups g
		 JOIN group_members gm ON gm.group_id = g.id
		 WHERE gm.user_id = ?
		 ORDER BY g.id ASC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var createdAt int64
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListAllGroups returns every group ordered by id, for the `server groups`
// CLI subcommand.
func (s *Store) ListAllGroups(ctx context.Context) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, creator_id, created_at FROM groups ORDER BY id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list all groups: %w", err)
	}
	defer rows.Close()

	var out []Group
	for rows.Next() {
		var g Group
		var createdAt int64
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		g.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, g)
	}
	return out, rows.Err()
}

// ListGroupMembers returns the user ids belonging to groupID, used by the
// group_message fan-out.
func (s *Store) ListGroupMembers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id ASC`, groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
