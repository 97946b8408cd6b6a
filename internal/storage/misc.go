package storage

import (
	"context"
	"time"
)

// ---- groups ----

func (s *Store) UpsertGroup(ctx context.Context, chatID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups(chat_id, title) VALUES(?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET title = excluded.title`, chatID, title)
	return err
}

func (s *Store) DeleteGroup(ctx context.Context, chatID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE chat_id = ?`, chatID)
	return err
}

func (s *Store) GroupIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id FROM groups ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) CountGroups(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM groups`).Scan(&n)
	return n, err
}

// ---- requests and feedback ----

func (s *Store) InsertRequest(ctx context.Context, userID int64, username, title string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests(user_id, username, title, created_at) VALUES(?,?,?,?)`,
		userID, username, title, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (s *Store) SetRequestStatus(ctx context.Context, userID int64, title, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE requests SET status = ? WHERE user_id = ? AND title = ?`, status, userID, title)
	return err
}

func (s *Store) InsertFeedback(ctx context.Context, userID int64, text string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO feedback(user_id, text, created_at) VALUES(?,?,?)`,
		userID, text, time.Now().UTC().Format(time.RFC3339Nano))
	return err
}
