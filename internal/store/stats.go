package store

import "context"

// Stats is a point-in-time count of the repository's rows, used by the
// `/api/stats` endpoint and the `server status` CLI subcommand.
type Stats struct {
	Users    int64
	Groups   int64
	Messages int64
}

// CountStats gathers row counts across the core tables.
func (s *Store) CountStats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&st.Users); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups`).Scan(&st.Groups); err != nil {
		return Stats{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.Messages); err != nil {
		return Stats{}, err
	}
	return st, nil
}
